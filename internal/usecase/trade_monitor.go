package usecase

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
)

type MonitorConfig struct {
	Ladder      domain.TradeLadder
	Duration    time.Duration
	RecvTimeout time.Duration
}

const persistTimeout = 10 * time.Second

// TradeMonitor runs one simulated trade per detected movement on a dedicated
// single-symbol subscription and persists the outcome.
type TradeMonitor struct {
	feed     domain.MarketFeed
	notifier domain.Notifier
	repo     domain.OutcomeRepository
	cfg      MonitorConfig
	logger   *zap.Logger
	timeNow  func() time.Time
}

func NewTradeMonitor(feed domain.MarketFeed, notifier domain.Notifier, repo domain.OutcomeRepository, cfg MonitorConfig, logger *zap.Logger) *TradeMonitor {
	return &TradeMonitor{
		feed:     feed,
		notifier: notifier,
		repo:     repo,
		cfg:      cfg,
		logger:   logger,
		timeNow:  time.Now,
	}
}

// Run blocks until the session reaches a terminal state, the session deadline
// passes or ctx is cancelled. It returns the persisted outcome, or nil when
// the session was discarded.
func (m *TradeMonitor) Run(ctx context.Context, ev domain.MovementEvent, alertRef string) *domain.TradeOutcome {
	session := NewTradeSession(ev, m.cfg.Ladder, alertRef, m.timeNow())
	log := m.logger.With(
		zap.String("symbol", session.Symbol),
		zap.String("side", string(session.Side)),
		zap.String("session", session.ID),
	)
	log.Info("Starting trade session",
		zap.Float64("entry", session.EntryPrice),
		zap.Float64s("take_profits", session.TakeProfitPrices()),
		zap.Float64("stop_loss", session.StopLossPrices()[1]),
	)

	if !m.track(ctx, session, log) {
		log.Info("Session discarded, no price observed")
		return nil
	}

	outcome := session.Outcome()
	log.Info("Session finished",
		zap.String("state", session.State().String()),
		zap.Int("hit", outcome.Hit),
		zap.Float64("result", outcome.Result),
	)
	m.persist(ctx, outcome, log)
	return outcome
}

// track drives the session until it ends. It returns false when the session
// should not be persisted.
func (m *TradeMonitor) track(ctx context.Context, s *TradeSession, log *zap.Logger) bool {
	sessionCtx, cancel := context.WithDeadline(ctx, s.EntryTime.Add(m.cfg.Duration))
	defer cancel()

	stream, err := m.feed.SubscribeTickers(sessionCtx, []string{s.Symbol})
	if err != nil {
		log.Warn("Session subscription failed", zap.Error(err))
		return s.Cancel()
	}
	defer stream.Close()

	for !s.Terminal() {
		tick, err := stream.Recv(sessionCtx, m.cfg.RecvTimeout)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrRecvTimeout), errors.Is(err, domain.ErrMalformedMessage):
			continue
		case ctx.Err() != nil:
			log.Info("Session cancelled")
			return s.Cancel()
		case sessionCtx.Err() != nil:
			if s.Expire(m.timeNow()) {
				m.notify(ctx, s, domain.Alert{
					Kind:   domain.AlertSessionClosed,
					Price:  s.ClosePrice,
					Result: s.Result,
				}, log)
			}
			return true
		default:
			log.Warn("Session stream failed", zap.Error(err))
			return s.Cancel()
		}

		if tick.EventType != domain.TickerEventType || tick.Symbol != s.Symbol {
			continue
		}
		price, err := strconv.ParseFloat(tick.LastPrice, 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			log.Debug("Discarding malformed tick", zap.String("price", tick.LastPrice))
			continue
		}

		warned := s.SLWarning
		hit := s.Apply(price, m.timeNow())
		if !warned && s.SLWarning {
			log.Info("First stop-loss rung touched", zap.Float64("price", price))
		}
		if hit == nil {
			continue
		}
		switch hit.Kind {
		case domain.AlertStopLoss:
			log.Info("Stop-loss hit", zap.Float64("price", hit.Price), zap.Float64("result", hit.Result))
		case domain.AlertTakeProfit:
			log.Info("Take-profit level hit", zap.Int("level", hit.Level), zap.Float64("price", hit.Price), zap.Float64("result", hit.Result))
		}
		m.notify(ctx, s, domain.Alert{
			Kind:   hit.Kind,
			Level:  hit.Level,
			Price:  hit.Price,
			Result: hit.Result,
		}, log)
	}
	return true
}

func (m *TradeMonitor) notify(ctx context.Context, s *TradeSession, alert domain.Alert, log *zap.Logger) {
	alert.Symbol = s.Symbol
	alert.ReplyTo = s.AlertRef
	if _, err := m.notifier.Notify(ctx, alert); err != nil {
		log.Warn("Failed to send alert", zap.String("kind", string(alert.Kind)), zap.Error(err))
	}
}

func (m *TradeMonitor) persist(ctx context.Context, outcome *domain.TradeOutcome, log *zap.Logger) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.repo.SaveTradeOutcome(saveCtx, outcome); err != nil {
		log.Error("Failed to save trade outcome", zap.Error(err))
	}
}
