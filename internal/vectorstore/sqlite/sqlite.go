// Package sqlite stores vectors in a single SQLite file. Similarity is
// computed by a vec_cosine SQL function registered with the driver.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	sqlitedrv "modernc.org/sqlite"

	"ragflow/internal/domain"
	"ragflow/internal/vectorstore"
)

var registerOnce sync.Once

// registerFunctions must run before the first connection is opened.
func registerFunctions() {
	registerOnce.Do(func() {
		_ = sqlitedrv.RegisterDeterministicScalarFunction("vec_cosine", 2, vecCosine)
	})
}

func vecCosine(_ *sqlitedrv.FunctionContext, args []driver.Value) (driver.Value, error) {
	a, ok := args[0].([]byte)
	if !ok {
		return nil, nil
	}
	b, ok := args[1].([]byte)
	if !ok {
		return nil, nil
	}
	va, err := vectorstore.DecodeVector(a)
	if err != nil {
		return nil, err
	}
	vb, err := vectorstore.DecodeVector(b)
	if err != nil {
		return nil, err
	}
	return vectorstore.Cosine(va, vb), nil
}

const schema = `
CREATE TABLE IF NOT EXISTS collections (
  name      TEXT PRIMARY KEY,
  dimension INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS points (
  collection TEXT NOT NULL,
  id         TEXT NOT NULL,
  vector     BLOB NOT NULL,
  payload    TEXT NOT NULL,
  PRIMARY KEY (collection, id)
);
`

// Storage is a Backend on top of database/sql with the pure-Go SQLite driver.
type Storage struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" keeps
// everything in a single in-process connection.
func Open(ctx context.Context, path string) (*Storage, error) {
	registerFunctions()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite %s: %v", domain.ErrStoreUnavailable, path, err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: databases shared.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: init sqlite schema: %v", domain.ErrStoreUnavailable, err)
	}
	return &Storage{db: db}, nil
}

func (s *Storage) dimension(ctx context.Context, name string) (int, error) {
	var dim int
	err := s.db.QueryRowContext(ctx, `SELECT dimension FROM collections WHERE name = ?`, name).Scan(&dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return dim, nil
}

func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidInput, dimension)
	}
	existing, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	if existing != 0 {
		if existing != dimension {
			return fmt.Errorf("%w: collection %s has %d dimensions, want %d", domain.ErrDimensionMismatch, name, existing, dimension)
		}
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name, dimension) VALUES (?, ?)`, name, dimension); err != nil {
		return fmt.Errorf("%w: create collection %s: %v", domain.ErrStoreUnavailable, name, err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	dim, err := s.dimension(ctx, name)
	if err != nil {
		return err
	}
	if dim == 0 {
		return fmt.Errorf("collection %s not found", name)
	}
	for _, p := range points {
		if len(p.Vector) != dim {
			return fmt.Errorf("%w: point %s has %d dimensions, collection has %d", domain.ErrDimensionMismatch, p.ID, len(p.Vector), dim)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO points (collection, id, vector, payload) VALUES (?, ?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET vector = excluded.vector, payload = excluded.payload`
	for _, p := range points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode payload of %s: %w", p.ID, err)
		}
		if _, err := tx.ExecContext(ctx, stmt, name, p.ID, vectorstore.EncodeVector(p.Vector), string(data)); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", domain.ErrStoreUnavailable, p.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Storage) Query(ctx context.Context, name string, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, vec_cosine(vector, ?) AS score, payload
FROM points
WHERE collection = ?
ORDER BY score DESC, rowid
LIMIT ?`, vectorstore.EncodeVector(vector), name, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", domain.ErrStoreUnavailable, name, err)
	}
	defer rows.Close()

	var hits []vectorstore.ScoredPoint
	for rows.Next() {
		var (
			h       vectorstore.ScoredPoint
			score   sql.NullFloat64
			payload string
		)
		if err := rows.Scan(&h.ID, &score, &payload); err != nil {
			return nil, err
		}
		h.Score = score.Float64
		if err := json.Unmarshal([]byte(payload), &h.Payload); err != nil {
			return nil, fmt.Errorf("decode payload of %s: %w", h.ID, err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM points WHERE collection = ?`, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count %s: %v", domain.ErrStoreUnavailable, name, err)
	}
	return n, nil
}

func (s *Storage) Close() error { return s.db.Close() }
