package usecase

import (
	"errors"
	"math"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
)

var (
	ErrUnknownSymbol = errors.New("symbol not tracked")
	ErrInvalidPrice  = errors.New("invalid price")
)

const initialWindowCap = 64

// priceWindow is a ring buffer of samples, oldest first. It grows on demand
// up to limit; once full the oldest sample is overwritten.
type priceWindow struct {
	buf   []domain.PriceSample
	head  int
	size  int
	limit int
}

func newPriceWindow(limit int) *priceWindow {
	return &priceWindow{limit: limit}
}

func (w *priceWindow) len() int { return w.size }

func (w *priceWindow) at(i int) domain.PriceSample {
	return w.buf[(w.head+i)%len(w.buf)]
}

func (w *priceWindow) oldest() domain.PriceSample { return w.at(0) }

func (w *priceWindow) newest() domain.PriceSample { return w.at(w.size - 1) }

func (w *priceWindow) push(s domain.PriceSample) {
	if w.size == len(w.buf) {
		if len(w.buf) < w.limit {
			w.grow()
		} else {
			w.buf[w.head] = s
			w.head = (w.head + 1) % len(w.buf)
			return
		}
	}
	w.buf[(w.head+w.size)%len(w.buf)] = s
	w.size++
}

func (w *priceWindow) grow() {
	capacity := len(w.buf) * 2
	if capacity < initialWindowCap {
		capacity = initialWindowCap
	}
	if capacity > w.limit {
		capacity = w.limit
	}
	next := make([]domain.PriceSample, capacity)
	for i := 0; i < w.size; i++ {
		next[i] = w.at(i)
	}
	w.buf = next
	w.head = 0
}

func (w *priceWindow) popOldest() {
	w.head = (w.head + 1) % len(w.buf)
	w.size--
}

func (w *priceWindow) reset() {
	w.head = 0
	w.size = 0
}

func (w *priceWindow) samples() []domain.PriceSample {
	out := make([]domain.PriceSample, w.size)
	for i := range out {
		out[i] = w.at(i)
	}
	return out
}

// SlidingWindowTracker keeps a bounded price history per symbol and reports
// when the newest price moved at least thresholdPct away from the oldest
// retained one. It is not safe for concurrent use; each stream group owns
// its own tracker.
type SlidingWindowTracker struct {
	window       time.Duration
	thresholdPct float64
	windows      map[string]*priceWindow
}

func NewSlidingWindowTracker(symbols []string, window time.Duration, thresholdPct float64, capacity int) *SlidingWindowTracker {
	t := &SlidingWindowTracker{
		window:       window,
		thresholdPct: thresholdPct,
		windows:      make(map[string]*priceWindow, len(symbols)),
	}
	for _, s := range symbols {
		t.windows[s] = newPriceWindow(capacity)
	}
	return t
}

// Tracks reports whether symbol belongs to this tracker.
func (t *SlidingWindowTracker) Tracks(symbol string) bool {
	_, ok := t.windows[symbol]
	return ok
}

// Record appends a sample and evicts everything older than the window
// relative to it. When the move against the oldest sample reaches the
// threshold it returns the event and empties the window.
func (t *SlidingWindowTracker) Record(symbol string, price, quoteVolume float64, at time.Time) (*domain.MovementEvent, error) {
	w, ok := t.windows[symbol]
	if !ok {
		return nil, ErrUnknownSymbol
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return nil, ErrInvalidPrice
	}

	if w.len() > 0 {
		last := w.newest()
		if last.Time.Equal(at) && nearlyEqual(last.Price, price) {
			return nil, nil
		}
	}

	w.push(domain.PriceSample{Time: at, Price: price})
	for w.len() > 0 && at.Sub(w.oldest().Time) > t.window {
		w.popOldest()
	}

	if w.len() < 2 {
		return nil, nil
	}

	oldest := w.oldest().Price
	changePct := (price - oldest) / oldest * 100
	if math.Abs(changePct) < t.thresholdPct {
		return nil, nil
	}

	w.reset()
	return &domain.MovementEvent{
		Symbol:      symbol,
		ChangePct:   changePct,
		Price:       price,
		OldestPrice: oldest,
		QuoteVolume: quoteVolume,
		Side:        domain.SideFromChange(changePct),
		DetectedAt:  at,
	}, nil
}

// Samples returns a copy of the retained history of symbol.
func (t *SlidingWindowTracker) Samples(symbol string) []domain.PriceSample {
	w, ok := t.windows[symbol]
	if !ok {
		return nil
	}
	return w.samples()
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12*math.Max(1, math.Abs(b))
}
