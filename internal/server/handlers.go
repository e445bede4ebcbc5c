package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flemzord/nodetalk/internal/command"
	"github.com/flemzord/nodetalk/internal/history"
)

const (
	maxCommandBody      = 64 << 10
	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleCommand runs one inbound chat message through the command
// pipeline and returns its Result.
func (s *Server) handleCommand() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in command.Inbound
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCommandBody))
		if err := dec.Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if strings.TrimSpace(in.Body) == "" && strings.TrimSpace(in.CommandBody) == "" {
			writeError(w, http.StatusBadRequest, "body is required")
			return
		}
		if in.Surface == "" && in.Provider == "" {
			in.Surface = "http"
		}

		res := s.config.Commands.Run(r.Context(), command.BuildContext(in))
		writeJSON(w, http.StatusOK, res)
	}
}

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"` // "ok" or "degraded"
	Version string `json:"version,omitempty"`
	Uptime  int64  `json:"uptime_seconds"`
	Gateway string `json:"gateway,omitempty"`
}

// handleHealth returns 200 when the gateway probe succeeds (or none is
// configured) and 503 otherwise.
func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: s.config.Version,
			Uptime:  int64(time.Since(s.startedAt).Seconds()),
		}
		status := http.StatusOK

		if s.config.Probe != nil {
			if err := s.config.Probe(r.Context()); err != nil {
				resp.Status = "degraded"
				resp.Gateway = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				resp.Gateway = "ok"
			}
		}

		writeJSON(w, status, resp)
	}
}

// handleHistory returns the most recent invocations, newest first.
func (s *Server) handleHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.config.History == nil {
			writeError(w, http.StatusNotFound, "history is disabled")
			return
		}

		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		records, err := s.config.History.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("history query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "history query failed")
			return
		}
		if records == nil {
			records = []history.Record{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"invocations": records})
	}
}
