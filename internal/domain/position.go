package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// SideFromChange maps a movement to the side that fades it: a pump is shorted,
// a dump is bought.
func SideFromChange(changePct float64) Side {
	if changePct > 0 {
		return SideShort
	}
	return SideLong
}

type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// EntrySide is the order side that opens a position of this side.
func (s Side) EntrySide() OrderSide {
	if s == SideShort {
		return OrderSideSell
	}
	return OrderSideBuy
}

// ExitSide is the order side that reduces a position of this side.
func (s Side) ExitSide() OrderSide {
	if s == SideShort {
		return OrderSideBuy
	}
	return OrderSideSell
}

// Position represents a real leveraged position opened by the executor.
type Position struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Side       Side            `json:"side"`
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice float64         `json:"entry_price"`
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
	Leverage   int             `json:"leverage"`
	Margin     float64         `json:"margin"`
	EntryTime  time.Time       `json:"entry_time"`
}

// Age returns how long the position has been held at the given instant.
func (p Position) Age(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// OrderResult is what the exchange reports back for a placed order.
type OrderResult struct {
	OrderID  int64
	Symbol   string
	Status   string
	AvgPrice float64
}
