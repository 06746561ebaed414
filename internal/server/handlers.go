package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/jwpark/krquant/internal/cycle"
)

const defaultTradeLimit = 100

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": "krquant",
	})
}

// handlePortfolio returns a snapshot of the ledger: cash and open
// positions.
func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	led := s.cycle.Ledger()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"cash":      led.Cash,
		"positions": led.Positions,
	})
}

// handleLatestCycle returns the most recent cycle report.
func (s *Server) handleLatestCycle(w http.ResponseWriter, r *http.Request) {
	report := s.cycle.LastReport()
	if report == nil {
		s.writeError(w, http.StatusNotFound, "no cycle has completed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// handleRunCycle triggers a cycle outside the schedule. The run happens in
// the background; the report lands on /api/cycles/latest when it finishes.
func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		if _, err := s.cycle.Run(ctx); err != nil && !errors.Is(err, cycle.ErrCycleInProgress) {
			s.log.Error().Err(err).Msg("Manual cycle failed")
		}
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]any{"status": "cycle started"})
}

// handleTrades returns recent trades from the audit log.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := defaultTradeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	trades, err := s.trades.GetHistory(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to load trade history")
		s.writeError(w, http.StatusInternalServerError, "failed to load trades")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{"error": message})
}
