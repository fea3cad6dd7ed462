// Package gateway exposes the event API: events are posted here, started as
// workflows, and their runs are polled by id.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const maxBodyBytes = 1 << 20

type Server struct {
	engine Engine
	logger *slog.Logger
}

func NewServer(engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, logger: logger}
}

// Handler returns the routes of the gateway.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/events", s.HandleSend)
	mux.HandleFunc("GET /v1/events/{id}/runs", s.HandleRuns)
	mux.HandleFunc("GET /healthz", s.HandleHealth)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// HandleSend validates every event before starting any workflow, so a bad
// batch starts nothing.
func (s *Server) HandleSend(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	events, err := decodeEvents(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	inputs := make([]any, len(events))
	for i := range events {
		in, err := workflowInput(events[i])
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		inputs[i] = in
		if strings.TrimSpace(events[i].ID) == "" {
			events[i].ID = uuid.NewString()
		}
	}

	ids := make([]string, 0, len(events))
	for i, ev := range events {
		if err := s.engine.Send(r.Context(), ev.ID, strings.TrimSpace(ev.Name), inputs[i]); err != nil {
			s.logger.Error("start workflow", "event", ev.Name, "id", ev.ID, "err", err)
			writeJSON(w, http.StatusBadGateway, map[string]any{"ids": ids, "error": err.Error()})
			return
		}
		s.logger.Info("event accepted", "event", ev.Name, "id", ev.ID)
		ids = append(ids, ev.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids, "status": http.StatusOK})
}

func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if strings.TrimSpace(id) == "" {
		writeError(w, http.StatusBadRequest, errors.New("event id is required"))
		return
	}
	runs, err := s.engine.Runs(r.Context(), id)
	if err != nil {
		s.logger.Error("list runs", "id", id, "err", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if runs == nil {
		runs = []Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": runs})
}
