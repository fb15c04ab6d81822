package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SymbolSource lists the instruments eligible for monitoring.
type SymbolSource interface {
	GetTradableSymbols(ctx context.Context, quoteAsset string) ([]string, error)
}

// CycleRunner monitors a symbol universe for one cycle.
type CycleRunner interface {
	Run(ctx context.Context, symbols []string, cycle time.Duration) error
}

type SupervisorConfig struct {
	QuoteAsset     string
	ExcludeSymbols []string
	Cycle          time.Duration
	RetryBackoff   time.Duration
}

// Supervisor refreshes the symbol universe and restarts the stream groups
// every cycle until ctx is done.
type Supervisor struct {
	symbols SymbolSource
	runner  CycleRunner
	cfg     SupervisorConfig
	logger  *zap.Logger
}

func NewSupervisor(symbols SymbolSource, runner CycleRunner, cfg SupervisorConfig, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		symbols: symbols,
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
	}
}

func (s *Supervisor) Run(ctx context.Context) {
	for cycle := 1; ; cycle++ {
		if err := s.runCycle(ctx, cycle); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("Cycle failed", zap.Int("cycle", cycle), zap.Error(err))
			s.logger.Info("Retrying after backoff", zap.Duration("backoff", s.cfg.RetryBackoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.RetryBackoff):
			}
			continue
		}
		if ctx.Err() != nil {
			s.logger.Info("Supervisor stopped")
			return
		}
		s.logger.Info("Cycle completed, refreshing symbol list", zap.Int("cycle", cycle))
	}
}

func (s *Supervisor) runCycle(ctx context.Context, cycle int) error {
	symbols, err := s.symbols.GetTradableSymbols(ctx, s.cfg.QuoteAsset)
	if err != nil {
		return fmt.Errorf("load symbols: %w", err)
	}
	symbols = excludeSymbols(symbols, s.cfg.ExcludeSymbols)
	if len(symbols) == 0 {
		return fmt.Errorf("no tradable %s symbols", s.cfg.QuoteAsset)
	}
	s.logger.Info("Loaded symbol universe", zap.Int("cycle", cycle), zap.Int("symbols", len(symbols)))

	if err := s.runner.Run(ctx, symbols, s.cfg.Cycle); err != nil {
		s.logger.Warn("Cycle ended with group failures", zap.Int("cycle", cycle), zap.Error(err))
	}
	return nil
}

func excludeSymbols(symbols, exclude []string) []string {
	if len(exclude) == 0 {
		return symbols
	}
	skip := make(map[string]struct{}, len(exclude))
	for _, s := range exclude {
		skip[s] = struct{}{}
	}
	out := symbols[:0:0]
	for _, s := range symbols {
		if _, ok := skip[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
