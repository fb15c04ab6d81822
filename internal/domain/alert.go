package domain

type AlertKind string

const (
	AlertMovement      AlertKind = "movement_detected"
	AlertTakeProfit    AlertKind = "tp_level_hit"
	AlertStopLoss      AlertKind = "sl_hit"
	AlertSessionClosed AlertKind = "session_closed_neutral"
)

// Alert is one outward notification. ReplyTo threads follow-ups under the
// movement alert that started the session.
type Alert struct {
	Kind        AlertKind
	Symbol      string
	ReplyTo     string
	ChangePct   float64
	Price       float64
	QuoteVolume float64
	Level       int
	Result      float64
}
