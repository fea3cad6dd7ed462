// Package frontend is the client side of the event API: it stores uploads,
// emits events and polls runs until they finish.
package frontend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"ragflow/internal/domain"
	"ragflow/internal/workflow"
)

const (
	DefaultBaseURL      = "http://127.0.0.1:8288/v1"
	DefaultUploadsDir   = "uploads"
	DefaultPollInterval = 500 * time.Millisecond
	DefaultPollTimeout  = 120 * time.Second

	// NoAnswer is shown when a run completed without an answer.
	NoAnswer = "(No answer)"
)

const (
	statusFailed    = "Failed"
	statusCancelled = "Cancelled"
)

var successStatuses = map[string]struct{}{
	"Completed": {},
	"Succeeded": {},
	"Success":   {},
	"Finished":  {},
}

type Config struct {
	BaseURL      string
	UploadsDir   string
	PollInterval time.Duration
	PollTimeout  time.Duration
	HTTPTimeout  time.Duration
}

type Client struct {
	baseURL      string
	uploadsDir   string
	pollInterval time.Duration
	pollTimeout  time.Duration
	http         *http.Client
	logger       *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.UploadsDir == "" {
		cfg.UploadsDir = DefaultUploadsDir
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		uploadsDir:   cfg.UploadsDir,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
		http:         &http.Client{Timeout: cfg.HTTPTimeout},
		logger:       logger,
	}
}

// Run is one entry of the run-status listing.
type Run struct {
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error,omitempty"`
}

// SaveUpload writes r under the uploads directory using the base name of
// name and returns the absolute path of the stored file.
func (c *Client) SaveUpload(name string, r io.Reader) (string, error) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == ".." || base == string(filepath.Separator) {
		return "", fmt.Errorf("%w: upload name %q", domain.ErrInvalidInput, name)
	}
	if err := os.MkdirAll(c.uploadsDir, 0o755); err != nil {
		return "", fmt.Errorf("create uploads dir: %w", err)
	}
	path := filepath.Join(c.uploadsDir, base)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close upload: %w", err)
	}
	return filepath.Abs(path)
}

// IngestFile emits an ingest event for the file at path, using its file name
// as the source id.
func (c *Client) IngestFile(ctx context.Context, path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return c.SendEvent(ctx, domain.EventIngestPDF, workflow.IngestInput{
		PDFPath:  abs,
		SourceID: filepath.Base(abs),
	})
}

// Ask emits a query event and waits for its answer.
func (c *Client) Ask(ctx context.Context, question string, topK int) (*workflow.QueryResult, error) {
	id, err := c.SendEvent(ctx, domain.EventQueryPDFAI, workflow.QueryInput{Question: question, TopK: &topK})
	if err != nil {
		return nil, err
	}
	out, err := c.WaitForRunOutput(ctx, id)
	if err != nil {
		return nil, err
	}
	var res workflow.QueryResult
	if err := json.Unmarshal(out, &res); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	if res.Sources == nil {
		res.Sources = []string{}
	}
	return &res, nil
}

// SendEvent posts one event and returns its id.
func (c *Client) SendEvent(ctx context.Context, name string, data any) (string, error) {
	body, err := json.Marshal(map[string]any{"name": name, "data": data})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/events", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("send %s: %w", name, err)
	}
	defer resp.Body.Close()

	var out struct {
		IDs   []string `json:"ids"`
		Error string   `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("send %s: decode response (%s): %w", name, resp.Status, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("send %s: %s: %s", name, resp.Status, out.Error)
	}
	if len(out.IDs) == 0 {
		return "", fmt.Errorf("send %s: response carried no event id", name)
	}
	c.logger.Debug("event sent", "event", name, "id", out.IDs[0])
	return out.IDs[0], nil
}

// FetchRuns lists the runs started by an event.
func (c *Client) FetchRuns(ctx context.Context, eventID string) ([]Run, error) {
	endpoint := c.baseURL + "/events/" + url.PathEscape(eventID) + "/runs"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("runs of %s: %s: %s", eventID, resp.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		Data []Run `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("runs of %s: %w", eventID, err)
	}
	return out.Data, nil
}

// WaitForRunOutput polls the runs of eventID until the first run reaches a
// terminal status, the poll deadline passes or ctx is cancelled.
func (c *Client) WaitForRunOutput(ctx context.Context, eventID string) (json.RawMessage, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	lastStatus := ""
	for {
		runs, err := c.FetchRuns(pollCtx, eventID)
		switch {
		case err == nil:
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(pollCtx.Err(), context.DeadlineExceeded):
			return nil, &TimeoutError{EventID: eventID, LastStatus: lastStatus}
		default:
			return nil, err
		}

		if len(runs) > 0 {
			run := runs[0]
			if run.Status != "" {
				lastStatus = run.Status
			}
			if _, ok := successStatuses[run.Status]; ok {
				out := run.Output
				if len(out) == 0 || string(out) == "null" {
					out = json.RawMessage("{}")
				}
				return out, nil
			}
			if run.Status == statusFailed || run.Status == statusCancelled {
				return nil, &RunError{EventID: eventID, Status: run.Status, Message: run.Error}
			}
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &TimeoutError{EventID: eventID, LastStatus: lastStatus}
		case <-ticker.C:
		}
	}
}

// RenderAnswer formats a query result for display.
func RenderAnswer(res *workflow.QueryResult) string {
	answer := ""
	if res != nil {
		answer = strings.TrimSpace(res.Answer)
	}
	if answer == "" {
		answer = NoAnswer
	}
	var b strings.Builder
	b.WriteString(answer)
	if res != nil && len(res.Sources) > 0 {
		b.WriteString("\n\nSources:\n")
		for _, s := range res.Sources {
			b.WriteString("- ")
			b.WriteString(s)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
