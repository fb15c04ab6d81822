package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/vitos/crypto_move_tracker/internal/domain"
)

// PositionRegistry is the shared set of open positions, keyed by symbol.
// Symbols being opened are reserved so two signals cannot open the same
// symbol concurrently.
type PositionRegistry struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	pending   map[string]struct{}
}

func NewPositionRegistry() *PositionRegistry {
	return &PositionRegistry{
		positions: make(map[string]domain.Position),
		pending:   make(map[string]struct{}),
	}
}

// Reserve claims symbol for an open in progress. It fails when the symbol
// is already open or reserved.
func (r *PositionRegistry) Reserve(symbol string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.positions[symbol]; ok {
		return false
	}
	if _, ok := r.pending[symbol]; ok {
		return false
	}
	r.pending[symbol] = struct{}{}
	return true
}

// Commit turns a reservation into an open position.
func (r *PositionRegistry) Commit(p domain.Position) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, p.Symbol)
	r.positions[p.Symbol] = p
}

// Release drops a reservation that did not result in a position.
func (r *PositionRegistry) Release(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, symbol)
}

func (r *PositionRegistry) Get(symbol string) (domain.Position, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[symbol]
	return p, ok
}

// RemoveIf deletes the position for symbol only if it is still the one with
// the given id.
func (r *PositionRegistry) RemoveIf(symbol, id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.positions[symbol]
	if !ok || p.ID != id {
		return false
	}
	delete(r.positions, symbol)
	return true
}

// TakeExpired removes and returns every position held longer than maxAge.
// Each position is handed out at most once.
func (r *PositionRegistry) TakeExpired(now time.Time, maxAge time.Duration) []domain.Position {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []domain.Position
	for symbol, p := range r.positions {
		if p.Age(now) > maxAge {
			expired = append(expired, p)
			delete(r.positions, symbol)
		}
	}
	sortByEntry(expired)
	return expired
}

// Snapshot returns the open positions ordered by entry time.
func (r *PositionRegistry) Snapshot() []domain.Position {
	r.mu.Lock()
	out := make([]domain.Position, 0, len(r.positions))
	for _, p := range r.positions {
		out = append(out, p)
	}
	r.mu.Unlock()
	sortByEntry(out)
	return out
}

func (r *PositionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.positions)
}

func sortByEntry(ps []domain.Position) {
	sort.Slice(ps, func(i, j int) bool {
		return ps[i].EntryTime.Before(ps[j].EntryTime)
	})
}
