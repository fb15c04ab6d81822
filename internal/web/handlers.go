package web

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

const maxTradesLimit = 1000

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "active",
		"message": "Movement tracker running",
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type healthResponse struct {
	Status         string    `json:"status"`
	Service        string    `json:"service"`
	Timestamp      time.Time `json:"timestamp"`
	Uptime         string    `json:"uptime"`
	ActiveSessions int64     `json:"active_sessions"`
	TotalSignals   int64     `json:"total_signals"`
	OpenPositions  int       `json:"open_positions"`
	Execution      bool      `json:"execution_enabled"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.timeNow()
	resp := healthResponse{
		Status:    "healthy",
		Service:   "crypto-move-tracker",
		Timestamp: now,
		Uptime:    now.Sub(s.startedAt).Truncate(time.Second).String(),
		Execution: s.positions != nil,
	}
	if s.stats != nil {
		resp.ActiveSessions = s.stats.ActiveSessions()
		resp.TotalSignals = s.stats.TotalSignals()
	}
	if s.positions != nil {
		resp.OpenPositions = len(s.positions.Snapshot())
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := []domain.Position{}
	if s.positions != nil {
		positions = s.positions.Snapshot()
	}
	s.writeJSON(w, http.StatusOK, positions)
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxTradesLimit)
	}

	outcomes, err := s.outcomes.ListTradeOutcomes(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to list trades", zap.Error(err))
		http.Error(w, "Failed to list trades", http.StatusInternalServerError)
		return
	}
	if outcomes == nil {
		outcomes = []*domain.TradeOutcome{}
	}
	s.writeJSON(w, http.StatusOK, outcomes)
}
