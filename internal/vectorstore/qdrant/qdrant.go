// Package qdrant is a small REST client for the Qdrant vector database.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ragflow/internal/domain"
	"ragflow/internal/vectorstore"
)

const DefaultURL = "http://localhost:6333"

// Storage talks to Qdrant over HTTP. Collections use cosine distance.
type Storage struct {
	url    string
	apiKey string
	client *http.Client
}

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = DefaultURL
	}
	return &Storage{
		url:    base,
		apiKey: cfg.APIKey,
		client: &http.Client{Timeout: timeout},
	}
}

// statusError is a non-2xx answer from Qdrant.
type statusError struct {
	method string
	path   string
	code   int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.method, e.path, e.code, e.body)
}

// collectionInfo is the part of GET /collections/{name} we read. Named
// vector configs decode as size 0 and are not checked.
type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection when Qdrant reports it missing. An
// existing collection must have the requested vector size.
func (s *Storage) EnsureCollection(ctx context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidInput, dimension)
	}
	path := "/collections/" + url.PathEscape(name)
	var info collectionInfo
	err := s.do(ctx, http.MethodGet, path, nil, &info)
	if err == nil {
		if size := info.Result.Config.Params.Vectors.Size; size != 0 && size != dimension {
			return fmt.Errorf("%w: collection %s has %d dimensions, want %d", domain.ErrDimensionMismatch, name, size, dimension)
		}
		return nil
	}
	var se *statusError
	if !errors.As(err, &se) || se.code != http.StatusNotFound {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, path, body, nil); err != nil {
		// a concurrent creator wins with 409
		if errors.As(err, &se) && se.code == http.StatusConflict {
			return nil
		}
		return err
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, name string, points []vectorstore.Point) error {
	if len(points) == 0 {
		return nil
	}
	out := make([]map[string]any, len(points))
	for i, p := range points {
		payload := p.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		out[i] = map[string]any{
			"id":      p.ID,
			"vector":  p.Vector,
			"payload": payload,
		}
	}
	body := map[string]any{"points": out}
	return s.do(ctx, http.MethodPut, "/collections/"+url.PathEscape(name)+"/points?wait=true", body, nil)
}

func (s *Storage) Query(ctx context.Context, name string, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(name)+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]vectorstore.ScoredPoint, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, vectorstore.ScoredPoint{
			ID:      fmt.Sprint(r.ID),
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return results, nil
}

func (s *Storage) Count(ctx context.Context, name string) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	err := s.do(ctx, http.MethodPost, "/collections/"+url.PathEscape(name)+"/points/count", map[string]any{"exact": true}, &resp)
	if err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends one JSON request. Transport failures and 5xx answers wrap
// domain.ErrStoreUnavailable.
func (s *Storage) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("qdrant: encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.url+path, rdr)
	if err != nil {
		return fmt.Errorf("qdrant: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s %s: %v", domain.ErrStoreUnavailable, method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		se := &statusError{method: method, path: path, code: resp.StatusCode, body: strings.TrimSpace(string(msg))}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, se)
		}
		return se
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("qdrant: decode %s: %w", path, err)
		}
	}
	return nil
}
