package domain

import "time"

// TradeLadder holds take-profit and stop-loss offsets as fractions of the
// entry price (0.05 = 5%). TakeProfits is ascending; StopLosses has two rungs.
type TradeLadder struct {
	TakeProfits []float64
	StopLosses  [2]float64
}

// Prices resolves the ladder into absolute price levels for an entry.
// Short: TP below entry, SL above. Long: the inverse.
func (l TradeLadder) Prices(side Side, entry float64) (tp []float64, sl [2]float64) {
	tp = make([]float64, len(l.TakeProfits))
	sign := 1.0
	if side == SideShort {
		sign = -1.0
	}
	for i, off := range l.TakeProfits {
		tp[i] = entry * (1 + sign*off)
	}
	for i, off := range l.StopLosses {
		sl[i] = entry * (1 - sign*off)
	}
	return tp, sl
}

type CloseReason string

const (
	CloseTakeProfit CloseReason = "take_profit"
	CloseStopLoss   CloseReason = "stop_loss"
	CloseTimeout    CloseReason = "timeout"
	CloseCancelled  CloseReason = "cancelled"
)

// TradeOutcome is the record persisted once per finished monitoring session.
type TradeOutcome struct {
	ID         string      `json:"id"`
	Symbol     string      `json:"symbol"`
	Side       Side        `json:"side"`
	Volume     float64     `json:"volume"`
	ChangePct  float64     `json:"percentage"`
	Result     float64     `json:"result"`
	EntryPrice float64     `json:"entry_price"`
	ClosePrice float64     `json:"close_price"`
	Hit        int         `json:"hit"`
	Reason     CloseReason `json:"reason"`
	SLWarning  bool        `json:"sl_warning"`
	AlertRef   string      `json:"msg_id"`
	CreatedAt  time.Time   `json:"created_at"`
	ClosedAt   time.Time   `json:"closed_at"`
}
