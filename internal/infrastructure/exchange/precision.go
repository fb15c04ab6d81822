package exchange

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// symbolFilters are the order-size and price increments an exchange accepts
// for one symbol.
type symbolFilters struct {
	StepSize decimal.Decimal
	TickSize decimal.Decimal
}

func parseFilters(stepSize, tickSize string) (symbolFilters, error) {
	step, err := decimal.NewFromString(stepSize)
	if err != nil {
		return symbolFilters{}, fmt.Errorf("step size %q: %w", stepSize, err)
	}
	tick, err := decimal.NewFromString(tickSize)
	if err != nil {
		return symbolFilters{}, fmt.Errorf("tick size %q: %w", tickSize, err)
	}
	return symbolFilters{StepSize: step, TickSize: tick}, nil
}

// floorToStep truncates amount down to a multiple of step so an order never
// exceeds the intended size.
func floorToStep(amount float64, step decimal.Decimal) decimal.Decimal {
	v := decimal.NewFromFloat(amount)
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// roundToTick rounds price to the nearest multiple of tick.
func roundToTick(price float64, tick decimal.Decimal) decimal.Decimal {
	v := decimal.NewFromFloat(price)
	if !tick.IsPositive() {
		return v
	}
	return v.Div(tick).Round(0).Mul(tick)
}
