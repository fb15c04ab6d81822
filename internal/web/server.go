package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

// PositionLister exposes the executor's open positions.
type PositionLister interface {
	Snapshot() []domain.Position
}

// SignalStats exposes dispatcher counters.
type SignalStats interface {
	ActiveSessions() int64
	TotalSignals() int64
}

type Server struct {
	router    *http.ServeMux
	server    *http.Server
	outcomes  domain.OutcomeRepository
	positions PositionLister
	stats     SignalStats
	logger    *zap.Logger
	startedAt time.Time
	timeNow   func() time.Time
}

// NewServer wires the status endpoints. positions may be nil when execution
// is disabled.
func NewServer(
	port int,
	outcomes domain.OutcomeRepository,
	positions PositionLister,
	stats SignalStats,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:    http.NewServeMux(),
		outcomes:  outcomes,
		positions: positions,
		stats:     stats,
		logger:    logger,
		startedAt: time.Now(),
		timeNow:   time.Now,
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("GET /{$}", s.handleHome)
	s.router.HandleFunc("GET /ping", s.handlePing)
	s.router.HandleFunc("GET /health", s.handleHealth)

	// Positions
	s.router.HandleFunc("GET /positions", s.handlePositions)

	// Trades
	s.router.HandleFunc("GET /trades", s.handleTrades)
}

func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
