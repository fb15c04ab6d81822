package domain

import "time"

// TickerEventType is the event tag Binance puts on 24h rolling ticker frames.
const TickerEventType = "24hrTicker"

// PriceSample is one recorded (timestamp, price) point of a sliding window.
type PriceSample struct {
	Time  time.Time
	Price float64
}

// TickerEvent is a raw ticker update as delivered by the feed. Numeric fields
// are kept as strings so the consumer decides what is malformed.
type TickerEvent struct {
	EventType   string
	Symbol      string
	LastPrice   string
	QuoteVolume string
}

// MovementEvent is raised when a symbol's price moved at least the threshold
// within its window.
type MovementEvent struct {
	Symbol      string    `json:"symbol"`
	ChangePct   float64   `json:"change_pct"`
	Price       float64   `json:"price"`
	OldestPrice float64   `json:"oldest_price"`
	QuoteVolume float64   `json:"quote_volume"`
	Side        Side      `json:"side"`
	DetectedAt  time.Time `json:"detected_at"`
}
