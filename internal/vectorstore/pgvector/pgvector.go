// Package pgvector keeps collections in Postgres tables using the pgvector
// extension. Each collection is one table named after it.
package pgvector

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/lib/pq"
	pgv "github.com/pgvector/pgvector-go"

	"ragflow/internal/domain"
	"ragflow/internal/vectorstore"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Storage is a Backend on Postgres + pgvector.
type Storage struct {
	db *sql.DB
}

// Open connects to Postgres and makes sure the vector extension exists.
func Open(ctx context.Context, dsn string) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	s, err := NewFromDB(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewFromDB reuses an existing connection pool.
func NewFromDB(ctx context.Context, db *sql.DB) (*Storage, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return nil, fmt.Errorf("%w: enable pgvector: %v", domain.ErrStoreUnavailable, err)
	}
	return &Storage{db: db}, nil
}

func table(name string) (string, error) {
	if !validName.MatchString(name) {
		return "", fmt.Errorf("%w: collection name %q", domain.ErrInvalidInput, name)
	}
	return pq.QuoteIdentifier(name), nil
}

func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidInput, dimension)
	}
	tbl, err := table(name)
	if err != nil {
		return err
	}
	// pgvector indexes stop at 2000 dimensions, so search is a sequential scan.
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id         text PRIMARY KEY,
  payload    jsonb NOT NULL DEFAULT '{}'::jsonb,
  embedding  vector(%d) NOT NULL,
  created_at timestamptz NOT NULL DEFAULT now(),
  updated_at timestamptz NOT NULL DEFAULT now()
)`, tbl, dimension)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrStoreUnavailable, name, err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	tbl, err := table(name)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf(`
INSERT INTO %s (id, payload, embedding, updated_at) VALUES ($1, $2, $3::vector, $4)
ON CONFLICT (id) DO UPDATE SET
  payload = EXCLUDED.payload,
  embedding = EXCLUDED.embedding,
  updated_at = EXCLUDED.updated_at`, tbl)
	now := time.Now().UTC()
	for _, p := range points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload of %s: %w", p.ID, err)
		}
		vec, err := toVector(p.Vector)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, p.ID, data, vec, now); err != nil {
			return wrapPQ(fmt.Sprintf("upsert %s", p.ID), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return wrapPQ("commit", err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, name string, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	tbl, err := table(name)
	if err != nil {
		return nil, err
	}
	vec, err := toVector(vector)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
SELECT id, 1 - (embedding <=> $1::vector) AS score, payload
FROM %s
ORDER BY embedding <=> $1::vector
LIMIT $2`, tbl)
	rows, err := s.db.QueryContext(ctx, query, vec, limit)
	if err != nil {
		return nil, wrapPQ("search "+name, err)
	}
	defer rows.Close()

	var hits []vectorstore.ScoredPoint
	for rows.Next() {
		var (
			h       vectorstore.ScoredPoint
			score   sql.NullFloat64
			payload []byte
		)
		if err := rows.Scan(&h.ID, &score, &payload); err != nil {
			return nil, err
		}
		h.Score = score.Float64
		if h.Payload, err = decodePayload(h.ID, payload); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	tbl, err := table(name)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, tbl)).Scan(&n); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P01" {
			return 0, nil
		}
		return 0, wrapPQ("count "+name, err)
	}
	return n, nil
}

func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// wrapPQ marks connection-level failures as unavailable. Errors reported by
// the server about the statement itself pass through.
func wrapPQ(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
		}
		if pqErr.Code == "22000" && strings.Contains(pqErr.Message, "dimensions") {
			return fmt.Errorf("%w: %s: %v", domain.ErrDimensionMismatch, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", domain.ErrStoreUnavailable, op, err)
}

func decodePayload(id string, data []byte) (map[string]any, error) {
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("decode payload of %s: %w", id, err)
	}
	return payload, nil
}

func toVector(v []float32) (pgv.Vector, error) {
	if len(v) == 0 {
		return pgv.Vector{}, fmt.Errorf("%w: empty vector", domain.ErrInvalidInput)
	}
	return pgv.NewVector(v), nil
}

