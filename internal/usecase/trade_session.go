package usecase

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/vitos/crypto_move_tracker/internal/domain"
)

type SessionState int

const (
	SessionOpen SessionState = iota
	SessionStopped
	SessionRealized
	SessionTimedOut
	SessionCancelled
)

func (s SessionState) String() string {
	switch s {
	case SessionOpen:
		return "open"
	case SessionStopped:
		return "stopped"
	case SessionRealized:
		return "realized"
	case SessionTimedOut:
		return "timed_out"
	case SessionCancelled:
		return "cancelled"
	}
	return "unknown"
}

// LevelHit is a ladder transition that needs an outward alert.
type LevelHit struct {
	Kind   domain.AlertKind
	Level  int
	Price  float64
	Result float64
}

// priceTolerance absorbs float error in ladder prices such as 100*(1-0.15).
const priceTolerance = 1e-9

// TradeSession tracks one simulated trade against the TP/SL ladder. It is
// driven by Apply and performs no I/O.
type TradeSession struct {
	ID         string
	Symbol     string
	Side       domain.Side
	Volume     float64
	ChangePct  float64
	EntryPrice float64
	EntryTime  time.Time
	AlertRef   string

	Hit        int // TP levels reached; -1 once stopped out
	SLWarning  bool
	ClosePrice float64
	CloseTime  time.Time
	Result     float64

	state      SessionState
	tp         []float64
	sl         [2]float64
	stopResult float64
	lastPrice  float64
	lastTickAt time.Time
}

func NewTradeSession(ev domain.MovementEvent, ladder domain.TradeLadder, alertRef string, entryTime time.Time) *TradeSession {
	tp, sl := ladder.Prices(ev.Side, ev.Price)
	return &TradeSession{
		ID:         uuid.NewString(),
		Symbol:     ev.Symbol,
		Side:       ev.Side,
		Volume:     ev.QuoteVolume,
		ChangePct:  ev.ChangePct,
		EntryPrice: ev.Price,
		EntryTime:  entryTime,
		AlertRef:   alertRef,
		tp:         tp,
		sl:         sl,
		stopResult: round2(-ladder.StopLosses[1] * 100),
		lastPrice:  ev.Price,
	}
}

func (s *TradeSession) State() SessionState { return s.state }

func (s *TradeSession) Terminal() bool { return s.state != SessionOpen }

// LastPrice is the most recent observed price, or the entry price before
// the first tick.
func (s *TradeSession) LastPrice() float64 { return s.lastPrice }

func (s *TradeSession) TakeProfitPrices() []float64 {
	out := make([]float64, len(s.tp))
	copy(out, s.tp)
	return out
}

func (s *TradeSession) StopLossPrices() [2]float64 { return s.sl }

// Apply feeds one price tick. Stop-loss rungs are only evaluated before the
// first take-profit; afterwards the session can only advance up the ladder.
// The second rung must be crossed strictly, the first and every TP only
// touched.
func (s *TradeSession) Apply(price float64, at time.Time) *LevelHit {
	if s.Terminal() {
		return nil
	}
	s.lastPrice = price
	s.lastTickAt = at

	if s.Hit == 0 {
		if s.beyondStop(price, s.sl[1]) {
			s.state = SessionStopped
			s.Hit = -1
			s.ClosePrice = s.sl[1]
			s.CloseTime = at
			s.Result = s.stopResult
			return &LevelHit{Kind: domain.AlertStopLoss, Price: s.sl[1], Result: s.Result}
		}
		if s.touchedStop(price, s.sl[0]) {
			s.SLWarning = true
			return nil
		}
	}

	if s.Hit < len(s.tp) && s.touchedTarget(price, s.tp[s.Hit]) {
		level := s.tp[s.Hit]
		s.Hit++
		s.ClosePrice = level
		s.CloseTime = at
		s.Result = s.resultAt(level)
		if s.Hit == len(s.tp) {
			s.state = SessionRealized
		}
		return &LevelHit{Kind: domain.AlertTakeProfit, Level: s.Hit, Price: level, Result: s.Result}
	}
	return nil
}

// Expire closes the session at its deadline. It reports whether a neutral
// close alert is due, which is the case only when no TP level was reached.
func (s *TradeSession) Expire(at time.Time) bool {
	if s.Terminal() {
		return false
	}
	s.state = SessionTimedOut
	if s.Hit > 0 {
		return false
	}
	s.ClosePrice = s.lastPrice
	s.CloseTime = at
	s.Result = s.resultAt(s.lastPrice)
	return true
}

// Cancel closes the session on shutdown or stream failure using the last
// known price. It reports false when nothing was ever observed, in which
// case the session should be discarded.
func (s *TradeSession) Cancel() bool {
	if s.Terminal() {
		return true
	}
	s.state = SessionCancelled
	if s.Hit > 0 {
		return true
	}
	if s.lastTickAt.IsZero() {
		return false
	}
	s.ClosePrice = s.lastPrice
	s.CloseTime = s.lastTickAt
	s.Result = s.resultAt(s.lastPrice)
	return true
}

// Outcome is the persisted record of a terminal session.
func (s *TradeSession) Outcome() *domain.TradeOutcome {
	return &domain.TradeOutcome{
		ID:         s.ID,
		Symbol:     s.Symbol,
		Side:       s.Side,
		Volume:     round2(s.Volume),
		ChangePct:  round2(s.ChangePct),
		Result:     s.Result,
		EntryPrice: s.EntryPrice,
		ClosePrice: s.ClosePrice,
		Hit:        s.Hit,
		Reason:     s.reason(),
		SLWarning:  s.SLWarning,
		AlertRef:   s.AlertRef,
		CreatedAt:  s.EntryTime,
		ClosedAt:   s.CloseTime,
	}
}

func (s *TradeSession) reason() domain.CloseReason {
	switch {
	case s.state == SessionStopped:
		return domain.CloseStopLoss
	case s.Hit > 0:
		return domain.CloseTakeProfit
	case s.state == SessionCancelled:
		return domain.CloseCancelled
	}
	return domain.CloseTimeout
}

// resultAt is the signed favourable move in percent: positive when a short
// fell or a long rose.
func (s *TradeSession) resultAt(price float64) float64 {
	if s.Side == domain.SideShort {
		return round2((s.EntryPrice/price - 1) * 100)
	}
	return round2((price/s.EntryPrice - 1) * 100)
}

func (s *TradeSession) touchedTarget(price, level float64) bool {
	if s.Side == domain.SideShort {
		return price <= level+math.Abs(level)*priceTolerance
	}
	return price >= level-math.Abs(level)*priceTolerance
}

func (s *TradeSession) touchedStop(price, level float64) bool {
	if s.Side == domain.SideShort {
		return price >= level-math.Abs(level)*priceTolerance
	}
	return price <= level+math.Abs(level)*priceTolerance
}

func (s *TradeSession) beyondStop(price, level float64) bool {
	if s.Side == domain.SideShort {
		return price > level+math.Abs(level)*priceTolerance
	}
	return price < level-math.Abs(level)*priceTolerance
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
