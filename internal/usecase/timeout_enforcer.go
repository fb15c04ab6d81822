package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// TimeoutEnforcer force-closes executor positions held longer than
// maxHolding and drops positions the exchange reports as already flat.
type TimeoutEnforcer struct {
	exchange   domain.Exchange
	registry   *PositionRegistry
	maxHolding time.Duration
	interval   time.Duration
	logger     *zap.Logger
	timeNow    func() time.Time
}

func NewTimeoutEnforcer(exchange domain.Exchange, registry *PositionRegistry, maxHolding, interval time.Duration, logger *zap.Logger) *TimeoutEnforcer {
	return &TimeoutEnforcer{
		exchange:   exchange,
		registry:   registry,
		maxHolding: maxHolding,
		interval:   interval,
		logger:     logger,
		timeNow:    time.Now,
	}
}

// Run sweeps on every interval until ctx is done.
func (t *TimeoutEnforcer) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	t.logger.Info("Timeout enforcer started",
		zap.Duration("max_holding", t.maxHolding),
		zap.Duration("interval", t.interval),
	)
	for {
		select {
		case <-ctx.Done():
			t.logger.Info("Timeout enforcer stopped")
			return
		case <-ticker.C:
			t.Sweep(ctx)
		}
	}
}

// Sweep closes every expired position once and returns how many it tried
// to close. Close failures are logged; the position is not retried.
func (t *TimeoutEnforcer) Sweep(ctx context.Context) int {
	now := t.timeNow()
	expired := t.registry.TakeExpired(now, t.maxHolding)
	for _, p := range expired {
		log := t.logger.With(zap.String("symbol", p.Symbol), zap.String("position", p.ID))
		log.Info("Closing position by timeout", zap.Duration("age", p.Age(now)))
		if err := t.forceClose(ctx, p); err != nil {
			// No longer tracked and possibly without protective orders.
			log.Error("Failed to close position, flatten it manually",
				zap.String("side", string(p.Side)),
				zap.String("amount", p.Amount.String()),
				zap.Error(err),
			)
			continue
		}
		log.Info("Position closed by timeout")
	}
	t.reconcile(ctx)
	return len(expired)
}

func (t *TimeoutEnforcer) forceClose(ctx context.Context, p domain.Position) error {
	var errs error
	if err := t.exchange.CancelAllOrders(ctx, p.Symbol); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("cancel orders: %w", err))
	}
	if _, err := t.exchange.MarketOrder(ctx, p.Symbol, p.Side.ExitSide(), p.Amount, true); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("market close: %w", err))
	}
	return errs
}

// reconcile removes positions whose protective orders already flattened
// them on the exchange, and cancels the leftover sibling order.
func (t *TimeoutEnforcer) reconcile(ctx context.Context) {
	for _, p := range t.registry.Snapshot() {
		amt, err := t.exchange.GetPositionAmount(ctx, p.Symbol)
		if err != nil {
			t.logger.Debug("Position query failed", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		if !amt.IsZero() {
			continue
		}
		if !t.registry.RemoveIf(p.Symbol, p.ID) {
			continue
		}
		t.logger.Info("Position closed on exchange", zap.String("symbol", p.Symbol))
		if err := t.exchange.CancelAllOrders(ctx, p.Symbol); err != nil {
			t.logger.Warn("Failed to cancel leftover orders", zap.String("symbol", p.Symbol), zap.Error(err))
		}
	}
}
