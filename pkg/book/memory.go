package book

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
)

// MemoryBackend keeps the whole book in process: a sorted price slice plus a
// map of FIFO queues per side, and a most-recent-first trade slice. It is the
// recommended default backend. It does no locking of its own; the engine
// serializes access.
type MemoryBackend struct {
	prices [2][]decimal.Decimal // ascending
	queues [2]map[string][]Order
	trades []Trade // append-at-tail; read newest-first from the tail
}

func NewMemoryBackend() *MemoryBackend {
	m := &MemoryBackend{}
	m.queues[Bid] = make(map[string][]Order)
	m.queues[Ask] = make(map[string][]Order)
	return m
}

// key returns the canonical form of a price. Decimal String trims trailing
// zeros, so 10, 10.0 and 10.00 all land on the same level.
func key(price decimal.Decimal) string { return price.String() }

func (m *MemoryBackend) Prices(_ context.Context, side Side) ([]decimal.Decimal, error) {
	out := make([]decimal.Decimal, len(m.prices[side]))
	copy(out, m.prices[side])
	return out, nil
}

func (m *MemoryBackend) HasPrice(_ context.Context, side Side, price decimal.Decimal) (bool, error) {
	i := m.search(side, price)
	return i < len(m.prices[side]) && m.prices[side][i].Equal(price), nil
}

func (m *MemoryBackend) Head(_ context.Context, side Side, price decimal.Decimal) (Order, bool, error) {
	q := m.queues[side][key(price)]
	if len(q) == 0 {
		return Order{}, false, nil
	}
	return q[0], true, nil
}

func (m *MemoryBackend) Level(_ context.Context, side Side, price decimal.Decimal) ([]Order, error) {
	q := m.queues[side][key(price)]
	out := make([]Order, len(q))
	copy(out, q)
	return out, nil
}

func (m *MemoryBackend) Trades(_ context.Context, start, stop int) ([]Trade, error) {
	n := len(m.trades)
	lo, hi, ok := ClampRange(n, start, stop)
	if !ok {
		return nil, nil
	}
	out := make([]Trade, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, m.trades[n-1-i])
	}
	return out, nil
}

// Update applies mutations directly; in-process writes cannot fail, so the
// batch is trivially atomic.
func (m *MemoryBackend) Update(_ context.Context, fn func(Batch) error) error {
	return fn(memBatch{m})
}

func (m *MemoryBackend) Wipe(context.Context) error {
	m.prices[Bid] = nil
	m.prices[Ask] = nil
	m.queues[Bid] = make(map[string][]Order)
	m.queues[Ask] = make(map[string][]Order)
	m.trades = nil
	return nil
}

func (m *MemoryBackend) Close() error { return nil }

// search returns the insertion index of price in the side's ascending slice.
func (m *MemoryBackend) search(side Side, price decimal.Decimal) int {
	s := m.prices[side]
	return sort.Search(len(s), func(i int) bool { return s[i].Cmp(price) >= 0 })
}

type memBatch struct{ m *MemoryBackend }

func (b memBatch) AddPrice(side Side, price decimal.Decimal) {
	m := b.m
	i := m.search(side, price)
	if i < len(m.prices[side]) && m.prices[side][i].Equal(price) {
		return
	}
	m.prices[side] = append(m.prices[side], decimal.Decimal{})
	copy(m.prices[side][i+1:], m.prices[side][i:])
	m.prices[side][i] = price
}

func (b memBatch) RemovePrice(side Side, price decimal.Decimal) {
	m := b.m
	i := m.search(side, price)
	if i >= len(m.prices[side]) || !m.prices[side][i].Equal(price) {
		return
	}
	m.prices[side] = append(m.prices[side][:i], m.prices[side][i+1:]...)
	delete(m.queues[side], key(price))
}

func (b memBatch) PushOrder(side Side, price decimal.Decimal, o Order) {
	k := key(price)
	b.m.queues[side][k] = append(b.m.queues[side][k], o)
}

func (b memBatch) PopHead(side Side, price decimal.Decimal) {
	k := key(price)
	q := b.m.queues[side][k]
	if len(q) == 0 {
		return
	}
	q = q[1:]
	if len(q) == 0 {
		// The queue vanishes here; the price stays indexed until the
		// matcher confirms the level empty and removes it.
		delete(b.m.queues[side], k)
		return
	}
	b.m.queues[side][k] = q
}

func (b memBatch) SetHeadRemaining(side Side, price, remaining decimal.Decimal) {
	q := b.m.queues[side][key(price)]
	if len(q) == 0 {
		return
	}
	q[0].Remaining = remaining
}

func (b memBatch) PushTrade(t Trade) {
	b.m.trades = append(b.m.trades, t)
}

var _ Backend = (*MemoryBackend)(nil)
