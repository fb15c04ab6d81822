package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrRecvTimeout means no frame arrived within the receive timeout. It is
	// absence of data, not a failure.
	ErrRecvTimeout = errors.New("receive timeout")
	// ErrMalformedMessage marks a frame that carries no ticker payload.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrStreamClosed is returned by Recv after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// Exchange defines the order-execution operations the executor and the
// timeout enforcer need. Every call may fail independently.
type Exchange interface {
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	MarketOrder(ctx context.Context, symbol string, side OrderSide, amount decimal.Decimal, reduceOnly bool) (*OrderResult, error)
	StopMarketOrder(ctx context.Context, symbol string, side OrderSide, amount, stopPrice decimal.Decimal, reduceOnly bool) (*OrderResult, error)
	TakeProfitOrder(ctx context.Context, symbol string, side OrderSide, amount, stopPrice, limitPrice decimal.Decimal, reduceOnly bool) (*OrderResult, error)
	CancelAllOrders(ctx context.Context, symbol string) error
	GetPositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error)
	AmountToPrecision(ctx context.Context, symbol string, amount float64) (decimal.Decimal, error)
	PriceToPrecision(ctx context.Context, symbol string, price float64) (decimal.Decimal, error)
	GetTradableSymbols(ctx context.Context, quoteAsset string) ([]string, error)
}

// TickerStream is one multiplexed real-time ticker subscription.
type TickerStream interface {
	// Recv waits at most timeout for the next frame. It returns
	// ErrRecvTimeout when nothing arrived, ErrMalformedMessage for frames
	// without a ticker payload and ctx.Err() when ctx is done.
	Recv(ctx context.Context, timeout time.Duration) (TickerEvent, error)
	Close() error
}

// MarketFeed opens ticker subscriptions.
type MarketFeed interface {
	SubscribeTickers(ctx context.Context, symbols []string) (TickerStream, error)
}

// Notifier sends outward alerts and returns a reference that follow-up
// alerts can reply to.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) (string, error)
}

// OutcomeRepository defines storage operations for finished sessions.
type OutcomeRepository interface {
	SaveTradeOutcome(ctx context.Context, outcome *TradeOutcome) error
	ListTradeOutcomes(ctx context.Context, limit int) ([]*TradeOutcome, error)
}
