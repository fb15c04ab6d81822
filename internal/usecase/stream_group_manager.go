package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

type GroupConfig struct {
	GroupSize      int
	Window         time.Duration
	ThresholdPct   float64
	WindowCapacity int
	RecvTimeout    time.Duration
}

// MovementHandler receives detected movements. HandleMovement must not block
// the caller's receive loop.
type MovementHandler interface {
	HandleMovement(ev domain.MovementEvent)
}

// StreamGroupManager splits the symbol universe into fixed-size groups and
// runs one multiplexed subscription per group for the length of a cycle.
type StreamGroupManager struct {
	feed    domain.MarketFeed
	handler MovementHandler
	cfg     GroupConfig
	logger  *zap.Logger
	timeNow func() time.Time
}

func NewStreamGroupManager(feed domain.MarketFeed, handler MovementHandler, cfg GroupConfig, logger *zap.Logger) *StreamGroupManager {
	return &StreamGroupManager{
		feed:    feed,
		handler: handler,
		cfg:     cfg,
		logger:  logger,
		timeNow: time.Now,
	}
}

// PartitionSymbols splits symbols into consecutive groups of at most size
// entries, preserving order.
func PartitionSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = len(symbols)
	}
	var groups [][]string
	for start := 0; start < len(symbols); start += size {
		end := start + size
		if end > len(symbols) {
			end = len(symbols)
		}
		groups = append(groups, symbols[start:end])
	}
	return groups
}

// Run starts every group and blocks until the cycle elapses or ctx is done.
// A failing group never stops its siblings; the combined group errors are
// returned for reporting.
func (m *StreamGroupManager) Run(ctx context.Context, symbols []string, cycle time.Duration) error {
	cycleCtx, cancel := context.WithTimeout(ctx, cycle)
	defer cancel()

	groups := PartitionSymbols(symbols, m.cfg.GroupSize)
	m.logger.Info("Starting stream groups",
		zap.Int("symbols", len(symbols)),
		zap.Int("groups", len(groups)),
		zap.Duration("cycle", cycle),
	)

	errs := make([]error, len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(id int, syms []string) {
			defer wg.Done()
			if err := m.runGroup(cycleCtx, id, syms); err != nil {
				errs[id-1] = fmt.Errorf("group %d: %w", id, err)
			}
		}(i+1, group)
	}

	<-cycleCtx.Done()
	if ctx.Err() == nil {
		m.logger.Info("Cycle time reached, closing all streams")
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			m.logger.Warn("Stream group failed", zap.Error(err))
		}
	}
	return multierr.Combine(errs...)
}

func (m *StreamGroupManager) runGroup(ctx context.Context, id int, symbols []string) (err error) {
	log := m.logger.With(zap.Int("group", id))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	log.Info("Opening stream", zap.Int("symbols", len(symbols)))
	stream, err := m.feed.SubscribeTickers(ctx, symbols)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Debug("Stream close failed", zap.Error(cerr))
		}
		log.Info("Stream closed")
	}()

	tracker := NewSlidingWindowTracker(symbols, m.cfg.Window, m.cfg.ThresholdPct, m.cfg.WindowCapacity)
	for {
		ev, err := stream.Recv(ctx, m.cfg.RecvTimeout)
		switch {
		case err == nil:
			m.processTick(log, tracker, ev)
		case errors.Is(err, domain.ErrRecvTimeout):
		case errors.Is(err, domain.ErrMalformedMessage):
			log.Debug("Skipping malformed frame", zap.Error(err))
		case ctx.Err() != nil:
			return nil
		default:
			return fmt.Errorf("receive: %w", err)
		}
	}
}

func (m *StreamGroupManager) processTick(log *zap.Logger, tracker *SlidingWindowTracker, ev domain.TickerEvent) {
	if ev.EventType != domain.TickerEventType || !tracker.Tracks(ev.Symbol) {
		return
	}
	price, err := strconv.ParseFloat(ev.LastPrice, 64)
	if err != nil {
		log.Debug("Discarding tick with bad price", zap.String("symbol", ev.Symbol), zap.String("price", ev.LastPrice))
		return
	}
	volume, err := strconv.ParseFloat(ev.QuoteVolume, 64)
	if err != nil {
		log.Debug("Discarding tick with bad volume", zap.String("symbol", ev.Symbol), zap.String("volume", ev.QuoteVolume))
		return
	}

	move, err := tracker.Record(ev.Symbol, price, volume, m.timeNow())
	if err != nil {
		log.Debug("Discarding tick", zap.String("symbol", ev.Symbol), zap.Error(err))
		return
	}
	if move == nil {
		return
	}
	log.Info("Movement detected",
		zap.String("symbol", move.Symbol),
		zap.Float64("change_pct", move.ChangePct),
		zap.Float64("price", move.Price),
		zap.Float64("quote_volume", move.QuoteVolume),
	)
	m.handler.HandleMovement(*move)
}
