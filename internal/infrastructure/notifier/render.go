package notifier

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_move_tracker/internal/domain"
)

// Render formats an alert as chat text.
func Render(a domain.Alert) string {
	switch a.Kind {
	case domain.AlertMovement:
		marker, arrow := "🟢", "📈"
		if a.ChangePct < 0 {
			marker, arrow = "🔴", "📉"
		}
		return fmt.Sprintf("%s #%s %s %+.2f%%\n💵 $%s 💰 $%.2fM",
			marker, a.Symbol, arrow, a.ChangePct, formatNumber(a.Price), a.QuoteVolume/1e6)
	case domain.AlertTakeProfit:
		return fmt.Sprintf("✅ TP%d (%s%%) 💵 %s", a.Level, formatNumber(a.Result), formatNumber(a.Price))
	case domain.AlertStopLoss:
		return fmt.Sprintf("❌ SL (%s%%) 💵 %s", formatNumber(a.Result), formatNumber(a.Price))
	case domain.AlertSessionClosed:
		return fmt.Sprintf("➖ CLOSED (%s%%) 💵 %s", formatNumber(a.Result), formatNumber(a.Price))
	}
	return fmt.Sprintf("%s %s", a.Kind, a.Symbol)
}

// formatNumber prints v without float noise such as 94.99999999999999.
func formatNumber(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}
