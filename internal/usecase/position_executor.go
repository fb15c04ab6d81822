package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

type ExecutorConfig struct {
	Leverage      int
	Margin        float64 // quote currency per position
	StopLossPct   float64
	TakeProfitPct float64
	VolumeCeiling float64 // signals at or above this quote volume are skipped
	Workers       int
	QueueSize     int
}

const openTimeout = 30 * time.Second

// PositionExecutor opens real leveraged positions for qualifying signals:
// a market entry followed by reduce-only stop-loss and take-profit orders.
type PositionExecutor struct {
	exchange domain.Exchange
	registry *PositionRegistry
	cfg      ExecutorConfig
	logger   *zap.Logger
	timeNow  func() time.Time

	jobs chan domain.MovementEvent
	wg   sync.WaitGroup
}

func NewPositionExecutor(exchange domain.Exchange, registry *PositionRegistry, cfg ExecutorConfig, logger *zap.Logger) *PositionExecutor {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	return &PositionExecutor{
		exchange: exchange,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		timeNow:  time.Now,
		jobs:     make(chan domain.MovementEvent, cfg.QueueSize),
	}
}

// Start launches the worker pool. Workers exit when ctx is done.
func (e *PositionExecutor) Start(ctx context.Context) {
	for i := 0; i < e.cfg.Workers; i++ {
		e.wg.Add(1)
		go e.worker(ctx, i+1)
	}
}

// Wait blocks until all workers have exited.
func (e *PositionExecutor) Wait() { e.wg.Wait() }

// Submit queues a qualifying signal without blocking. It reports false when
// the signal was filtered or the queue is full.
func (e *PositionExecutor) Submit(ev domain.MovementEvent) bool {
	if !e.Qualifies(ev.Side, ev.QuoteVolume) {
		e.logger.Debug("Signal filtered",
			zap.String("symbol", ev.Symbol),
			zap.String("side", string(ev.Side)),
			zap.Float64("quote_volume", ev.QuoteVolume),
		)
		return false
	}
	select {
	case e.jobs <- ev:
		return true
	default:
		e.logger.Warn("Execution queue full, dropping signal", zap.String("symbol", ev.Symbol))
		return false
	}
}

func (e *PositionExecutor) worker(ctx context.Context, id int) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-e.jobs:
			e.handle(ctx, id, ev)
		}
	}
}

func (e *PositionExecutor) handle(ctx context.Context, worker int, ev domain.MovementEvent) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Executor panicked", zap.String("symbol", ev.Symbol), zap.Any("panic", r))
		}
	}()
	openCtx, cancel := context.WithTimeout(ctx, openTimeout)
	defer cancel()

	if _, err := e.Open(openCtx, ev.Symbol, ev.Side, ev.QuoteVolume); err != nil {
		e.logger.Error("Failed to open position",
			zap.Int("worker", worker),
			zap.String("symbol", ev.Symbol),
			zap.Error(err),
		)
	}
}

// Qualifies applies the execution filters: shorts only, below the volume
// ceiling.
func (e *PositionExecutor) Qualifies(side domain.Side, volume float64) bool {
	return side == domain.SideShort && volume < e.cfg.VolumeCeiling
}

// Open runs the entry sequence. A filtered or duplicate signal returns
// (nil, nil). Once the entry fills the position is registered, so a failure
// placing the protective orders still leaves it under the timeout enforcer.
func (e *PositionExecutor) Open(ctx context.Context, symbol string, side domain.Side, volume float64) (*domain.Position, error) {
	log := e.logger.With(zap.String("symbol", symbol), zap.String("side", string(side)))
	if !e.Qualifies(side, volume) {
		log.Debug("Signal filtered", zap.Float64("quote_volume", volume))
		return nil, nil
	}
	if !e.registry.Reserve(symbol) {
		log.Info("Position already open, skipping")
		return nil, nil
	}
	committed := false
	defer func() {
		if !committed {
			e.registry.Release(symbol)
		}
	}()

	if err := e.exchange.SetLeverage(ctx, symbol, e.cfg.Leverage); err != nil {
		log.Warn("Failed to set leverage", zap.Int("leverage", e.cfg.Leverage), zap.Error(err))
	}

	ref, err := e.exchange.GetCurrentPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("get price: %w", err)
	}
	if ref <= 0 {
		return nil, fmt.Errorf("invalid reference price %v", ref)
	}

	notional := e.cfg.Margin * float64(e.cfg.Leverage)
	amount, err := e.exchange.AmountToPrecision(ctx, symbol, notional/ref)
	if err != nil {
		return nil, fmt.Errorf("amount precision: %w", err)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("amount rounds to zero for notional %.2f at %v", notional, ref)
	}

	entry, err := e.exchange.MarketOrder(ctx, symbol, side.EntrySide(), amount, false)
	if err != nil {
		return nil, fmt.Errorf("market entry: %w", err)
	}
	fill := ref
	if entry.AvgPrice > 0 {
		fill = entry.AvgPrice
	}

	pos := domain.Position{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		Side:       side,
		Amount:     amount,
		EntryPrice: fill,
		Leverage:   e.cfg.Leverage,
		Margin:     e.cfg.Margin,
		EntryTime:  e.timeNow(),
	}
	e.registry.Commit(pos)
	committed = true
	log.Info("Position opened",
		zap.String("amount", amount.String()),
		zap.Float64("fill", fill),
		zap.Int64("order_id", entry.OrderID),
	)

	slRaw, tpRaw := protectiveLevels(side, fill, e.cfg.StopLossPct, e.cfg.TakeProfitPct)
	sl, err := e.exchange.PriceToPrecision(ctx, symbol, slRaw)
	if err != nil {
		return &pos, fmt.Errorf("stop-loss precision: %w", err)
	}
	tp, err := e.exchange.PriceToPrecision(ctx, symbol, tpRaw)
	if err != nil {
		return &pos, fmt.Errorf("take-profit precision: %w", err)
	}
	pos.StopLoss = sl
	pos.TakeProfit = tp
	e.registry.Commit(pos)

	if _, err := e.exchange.StopMarketOrder(ctx, symbol, side.ExitSide(), amount, sl, true); err != nil {
		return &pos, fmt.Errorf("stop-loss order: %w", err)
	}
	if _, err := e.exchange.TakeProfitOrder(ctx, symbol, side.ExitSide(), amount, tp, tp, true); err != nil {
		return &pos, fmt.Errorf("take-profit order: %w", err)
	}
	log.Info("Protective orders placed", zap.String("stop_loss", sl.String()), zap.String("take_profit", tp.String()))
	return &pos, nil
}

// protectiveLevels returns raw stop-loss and take-profit prices at the given
// percentage distance from fill.
func protectiveLevels(side domain.Side, fill, slPct, tpPct float64) (sl, tp float64) {
	f := decimal.NewFromFloat(fill)
	slOff := decimal.NewFromFloat(slPct).Div(decimal.NewFromInt(100))
	tpOff := decimal.NewFromFloat(tpPct).Div(decimal.NewFromInt(100))
	one := decimal.NewFromInt(1)
	if side == domain.SideShort {
		sl = f.Mul(one.Add(slOff)).InexactFloat64()
		tp = f.Mul(one.Sub(tpOff)).InexactFloat64()
		return sl, tp
	}
	sl = f.Mul(one.Sub(slOff)).InexactFloat64()
	tp = f.Mul(one.Add(tpOff)).InexactFloat64()
	return sl, tp
}
