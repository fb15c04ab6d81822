package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

// SessionRunner runs one trade session to completion.
type SessionRunner interface {
	Run(ctx context.Context, ev domain.MovementEvent, alertRef string) *domain.TradeOutcome
}

// SignalSubmitter accepts a movement for real execution without blocking.
type SignalSubmitter interface {
	Submit(ev domain.MovementEvent) bool
}

// SignalDispatcher fans each detected movement out to the alert channel,
// the optional executor and a new trade session. Sessions are bound to the
// dispatcher's context, not to the stream cycle that produced the signal.
type SignalDispatcher struct {
	baseCtx  context.Context
	notifier domain.Notifier
	sessions SessionRunner
	executor SignalSubmitter
	logger   *zap.Logger

	wg     sync.WaitGroup
	active atomic.Int64
	total  atomic.Int64
}

// NewSignalDispatcher creates a dispatcher. executor may be nil when real
// execution is disabled.
func NewSignalDispatcher(ctx context.Context, notifier domain.Notifier, sessions SessionRunner, executor SignalSubmitter, logger *zap.Logger) *SignalDispatcher {
	return &SignalDispatcher{
		baseCtx:  ctx,
		notifier: notifier,
		sessions: sessions,
		executor: executor,
		logger:   logger,
	}
}

func (d *SignalDispatcher) HandleMovement(ev domain.MovementEvent) {
	d.wg.Add(1)
	d.active.Add(1)
	d.total.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("Signal handler panicked", zap.String("symbol", ev.Symbol), zap.Any("panic", r))
			}
		}()
		d.dispatch(ev)
	}()
}

func (d *SignalDispatcher) dispatch(ev domain.MovementEvent) {
	if d.executor != nil {
		d.executor.Submit(ev)
	}

	ref, err := d.notifier.Notify(d.baseCtx, domain.Alert{
		Kind:        domain.AlertMovement,
		Symbol:      ev.Symbol,
		ChangePct:   ev.ChangePct,
		Price:       ev.Price,
		QuoteVolume: ev.QuoteVolume,
	})
	if err != nil {
		d.logger.Warn("Failed to send movement alert", zap.String("symbol", ev.Symbol), zap.Error(err))
		ref = ""
	}

	d.sessions.Run(d.baseCtx, ev, ref)
}

// ActiveSessions is the number of signals still being handled.
func (d *SignalDispatcher) ActiveSessions() int64 { return d.active.Load() }

// TotalSignals counts every movement dispatched since start.
func (d *SignalDispatcher) TotalSignals() int64 { return d.total.Load() }

// Wait blocks until every dispatched session has returned.
func (d *SignalDispatcher) Wait() { d.wg.Wait() }
