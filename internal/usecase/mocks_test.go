package usecase

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/vitos/crypto_move_tracker/internal/domain"
)

// fakeStream replays buffered ticks and honours ctx, timeout and Close.
type fakeStream struct {
	ticks     chan domain.TickerEvent
	errs      chan error
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeStream(buffer int) *fakeStream {
	return &fakeStream{
		ticks:  make(chan domain.TickerEvent, buffer),
		errs:   make(chan error, 1),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Recv(ctx context.Context, timeout time.Duration) (domain.TickerEvent, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return domain.TickerEvent{}, ctx.Err()
	case <-s.closed:
		return domain.TickerEvent{}, domain.ErrStreamClosed
	case ev := <-s.ticks:
		return ev, nil
	case err := <-s.errs:
		return domain.TickerEvent{}, err
	case <-timer.C:
		return domain.TickerEvent{}, domain.ErrRecvTimeout
	}
}

func (s *fakeStream) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeFeed struct {
	mu         sync.Mutex
	script     []domain.TickerEvent
	failFor    map[string]error
	subscribed [][]string
	streams    []*fakeStream
}

func newFakeFeed(script ...domain.TickerEvent) *fakeFeed {
	return &fakeFeed{script: script, failFor: map[string]error{}}
}

func (f *fakeFeed) SubscribeTickers(ctx context.Context, symbols []string) (domain.TickerStream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed = append(f.subscribed, symbols)
	for _, s := range symbols {
		if err, ok := f.failFor[s]; ok {
			return nil, err
		}
	}
	stream := newFakeStream(len(f.script) + 16)
	for _, ev := range f.script {
		stream.ticks <- ev
	}
	f.streams = append(f.streams, stream)
	return stream, nil
}

func (f *fakeFeed) Streams() []*fakeStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeStream(nil), f.streams...)
}

func (f *fakeFeed) Subscriptions() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.subscribed...)
}

func tick(symbol string, price string) domain.TickerEvent {
	return domain.TickerEvent{
		EventType:   domain.TickerEventType,
		Symbol:      symbol,
		LastPrice:   price,
		QuoteVolume: "50000000",
	}
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
	err    error
	next   int
}

func (n *fakeNotifier) Notify(ctx context.Context, alert domain.Alert) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	if n.err != nil {
		return "", n.err
	}
	n.next++
	return strconv.Itoa(n.next), nil
}

func (n *fakeNotifier) Alerts() []domain.Alert {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Alert(nil), n.alerts...)
}

type fakeRepo struct {
	mu       sync.Mutex
	outcomes []*domain.TradeOutcome
	err      error
}

func (r *fakeRepo) SaveTradeOutcome(ctx context.Context, outcome *domain.TradeOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.outcomes = append(r.outcomes, outcome)
	return nil
}

func (r *fakeRepo) ListTradeOutcomes(ctx context.Context, limit int) ([]*domain.TradeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*domain.TradeOutcome(nil), r.outcomes...), nil
}

func (r *fakeRepo) Outcomes() []*domain.TradeOutcome {
	out, _ := r.ListTradeOutcomes(context.Background(), 0)
	return out
}

type orderCall struct {
	Symbol     string
	Side       domain.OrderSide
	Amount     decimal.Decimal
	StopPrice  decimal.Decimal
	LimitPrice decimal.Decimal
	ReduceOnly bool
}

// MockExchange records every order call. Precision is fixed at 3 decimals
// for amounts and 4 for prices.
type MockExchange struct {
	mu sync.Mutex

	Price       float64
	AvgPrice    float64
	PositionAmt map[string]decimal.Decimal
	Symbols     []string

	LeverageErr error
	PriceErr    error
	MarketErr   error
	StopErr     error
	TPErr       error
	CancelErr   error
	PositionErr error
	SymbolsErr  error

	Leverages    map[string]int
	MarketOrders []orderCall
	StopOrders   []orderCall
	TPOrders     []orderCall
	Cancelled    []string
	SymbolCalls  int
}

func NewMockExchange() *MockExchange {
	return &MockExchange{
		PositionAmt: map[string]decimal.Decimal{},
		Leverages:   map[string]int{},
	}
}

func (m *MockExchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Leverages[symbol] = leverage
	return m.LeverageErr
}

func (m *MockExchange) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Price, m.PriceErr
}

func (m *MockExchange) MarketOrder(ctx context.Context, symbol string, side domain.OrderSide, amount decimal.Decimal, reduceOnly bool) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MarketOrders = append(m.MarketOrders, orderCall{Symbol: symbol, Side: side, Amount: amount, ReduceOnly: reduceOnly})
	if m.MarketErr != nil {
		return nil, m.MarketErr
	}
	return &domain.OrderResult{OrderID: int64(len(m.MarketOrders)), Symbol: symbol, Status: "FILLED", AvgPrice: m.AvgPrice}, nil
}

func (m *MockExchange) StopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, amount, stopPrice decimal.Decimal, reduceOnly bool) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopOrders = append(m.StopOrders, orderCall{Symbol: symbol, Side: side, Amount: amount, StopPrice: stopPrice, ReduceOnly: reduceOnly})
	if m.StopErr != nil {
		return nil, m.StopErr
	}
	return &domain.OrderResult{Symbol: symbol, Status: "NEW"}, nil
}

func (m *MockExchange) TakeProfitOrder(ctx context.Context, symbol string, side domain.OrderSide, amount, stopPrice, limitPrice decimal.Decimal, reduceOnly bool) (*domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TPOrders = append(m.TPOrders, orderCall{Symbol: symbol, Side: side, Amount: amount, StopPrice: stopPrice, LimitPrice: limitPrice, ReduceOnly: reduceOnly})
	if m.TPErr != nil {
		return nil, m.TPErr
	}
	return &domain.OrderResult{Symbol: symbol, Status: "NEW"}, nil
}

func (m *MockExchange) CancelAllOrders(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cancelled = append(m.Cancelled, symbol)
	return m.CancelErr
}

func (m *MockExchange) GetPositionAmount(ctx context.Context, symbol string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PositionErr != nil {
		return decimal.Zero, m.PositionErr
	}
	amt, ok := m.PositionAmt[symbol]
	if !ok {
		return decimal.NewFromInt(1), nil
	}
	return amt, nil
}

func (m *MockExchange) AmountToPrecision(ctx context.Context, symbol string, amount float64) (decimal.Decimal, error) {
	return decimal.NewFromFloat(amount).RoundFloor(3), nil
}

func (m *MockExchange) PriceToPrecision(ctx context.Context, symbol string, price float64) (decimal.Decimal, error) {
	return decimal.NewFromFloat(price).Round(4), nil
}

func (m *MockExchange) GetTradableSymbols(ctx context.Context, quoteAsset string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SymbolCalls++
	return append([]string(nil), m.Symbols...), m.SymbolsErr
}

func (m *MockExchange) marketOrders() []orderCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]orderCall(nil), m.MarketOrders...)
}

func (m *MockExchange) cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Cancelled...)
}
