package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/crypto_move_tracker/internal/domain"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func openPosition(t *testing.T, reg *PositionRegistry, symbol string, entry time.Time) domain.Position {
	p := domain.Position{
		ID:        symbol + "-id",
		Symbol:    symbol,
		Side:      domain.SideShort,
		Amount:    decimal.NewFromInt(50),
		EntryTime: entry,
	}
	require.True(t, reg.Reserve(symbol))
	reg.Commit(p)
	return p
}

func newTestEnforcer(ex *MockExchange, reg *PositionRegistry, now time.Time) *TimeoutEnforcer {
	e := NewTimeoutEnforcer(ex, reg, 2*time.Hour, time.Minute, zap.NewNop())
	e.timeNow = func() time.Time { return now }
	return e
}

func TestTimeoutEnforcer_ClosesExpiredOnly(t *testing.T) {
	ex := NewMockExchange()
	reg := NewPositionRegistry()
	now := t0.Add(3 * time.Hour)
	openPosition(t, reg, "OLDUSDT", t0)
	openPosition(t, reg, "NEWUSDT", now.Add(-time.Hour))

	n := newTestEnforcer(ex, reg, now).Sweep(context.Background())
	assert.Equal(t, 1, n)

	orders := ex.marketOrders()
	require.Len(t, orders, 1)
	assert.Equal(t, "OLDUSDT", orders[0].Symbol)
	assert.Equal(t, domain.OrderSideBuy, orders[0].Side)
	assert.True(t, orders[0].ReduceOnly)
	assert.True(t, orders[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, []string{"OLDUSDT"}, ex.cancelled())

	_, ok := reg.Get("OLDUSDT")
	assert.False(t, ok)
	_, ok = reg.Get("NEWUSDT")
	assert.True(t, ok)
}

func TestTimeoutEnforcer_FailedCloseStillRemoved(t *testing.T) {
	ex := NewMockExchange()
	ex.MarketErr = errors.New("reduce only order is rejected")
	reg := NewPositionRegistry()
	openPosition(t, reg, "OLDUSDT", t0)

	e := newTestEnforcer(ex, reg, t0.Add(3*time.Hour))
	assert.Equal(t, 1, e.Sweep(context.Background()))
	assert.Equal(t, 0, reg.Len())

	assert.Equal(t, 0, e.Sweep(context.Background()), "not retried")
	assert.Len(t, ex.marketOrders(), 1)
}

func TestTimeoutEnforcer_CancelFailureStillCloses(t *testing.T) {
	ex := NewMockExchange()
	ex.CancelErr = errors.New("timeout")
	reg := NewPositionRegistry()
	openPosition(t, reg, "OLDUSDT", t0)

	newTestEnforcer(ex, reg, t0.Add(3*time.Hour)).Sweep(context.Background())
	assert.Len(t, ex.marketOrders(), 1)
}

func TestTimeoutEnforcer_ConcurrentSweepsCloseOnce(t *testing.T) {
	ex := NewMockExchange()
	reg := NewPositionRegistry()
	e := newTestEnforcer(ex, reg, t0.Add(3*time.Hour))

	const total = 25
	var wg sync.WaitGroup
	for i := 0; i < total; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			symbol := fmt.Sprintf("S%dUSDT", i)
			if reg.Reserve(symbol) {
				reg.Commit(domain.Position{
					ID:        symbol + "-id",
					Symbol:    symbol,
					Side:      domain.SideShort,
					Amount:    decimal.NewFromInt(10),
					EntryTime: t0,
				})
			}
		}(i)
	}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Sweep(context.Background())
		}()
	}
	wg.Wait()
	e.Sweep(context.Background())

	perSymbol := make(map[string]int)
	for _, o := range ex.marketOrders() {
		perSymbol[o.Symbol]++
	}
	assert.Len(t, perSymbol, total)
	for symbol, n := range perSymbol {
		assert.Equal(t, 1, n, symbol)
	}
	assert.Equal(t, 0, reg.Len())
}

func TestTimeoutEnforcer_FailedCloseLoggedForManualFlatten(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	ex := NewMockExchange()
	ex.MarketErr = errors.New("margin is insufficient")
	reg := NewPositionRegistry()
	openPosition(t, reg, "OLDUSDT", t0)

	e := NewTimeoutEnforcer(ex, reg, 2*time.Hour, time.Minute, zap.New(core))
	e.timeNow = func() time.Time { return t0.Add(3 * time.Hour) }
	e.Sweep(context.Background())

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "OLDUSDT", fields["symbol"])
	assert.Equal(t, "SHORT", fields["side"])
	assert.Equal(t, "50", fields["amount"])
}

func TestTimeoutEnforcer_ReconcileDropsFlatPositions(t *testing.T) {
	ex := NewMockExchange()
	reg := NewPositionRegistry()
	now := t0.Add(30 * time.Minute)
	openPosition(t, reg, "FLATUSDT", t0)
	openPosition(t, reg, "LIVEUSDT", t0)
	ex.PositionAmt["FLATUSDT"] = decimal.Zero

	newTestEnforcer(ex, reg, now).Sweep(context.Background())

	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Get("LIVEUSDT")
	assert.True(t, ok)
	assert.Equal(t, []string{"FLATUSDT"}, ex.cancelled())
	assert.Empty(t, ex.marketOrders())
}

func TestTimeoutEnforcer_RunStopsOnCancel(t *testing.T) {
	e := NewTimeoutEnforcer(NewMockExchange(), NewPositionRegistry(), time.Hour, 10*time.Millisecond, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enforcer did not stop")
	}
}
