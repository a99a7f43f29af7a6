package book

import (
	"context"

	"github.com/shopspring/decimal"
)

// Backend is the storage capability the engine runs against: an ordered price
// set per side, a FIFO order queue per price level, and a most-recent-first
// trade list. Any store that can satisfy these three shapes is interchangeable
// without touching the matching logic; the in-memory implementation below is
// the default.
//
// Mutations go through Update so a backend can commit them atomically: if
// Update returns an error, none of the batched writes may be visible.
type Backend interface {
	// Prices returns the side's resting prices in ascending order.
	Prices(ctx context.Context, side Side) ([]decimal.Decimal, error)

	// HasPrice reports whether the price is present in the side's index.
	HasPrice(ctx context.Context, side Side, price decimal.Decimal) (bool, error)

	// Head returns the earliest-queued order at the price. ok is false when
	// the queue is empty or absent.
	Head(ctx context.Context, side Side, price decimal.Decimal) (o Order, ok bool, err error)

	// Level returns every order at the price in queue order.
	Level(ctx context.Context, side Side, price decimal.Decimal) ([]Order, error)

	// Trades reads the ledger slice from the start-th most recent trade to
	// the stop-th, inclusive, with Redis LRANGE index semantics (0-based,
	// negative offsets count from the oldest end, out-of-range start yields
	// an empty result).
	Trades(ctx context.Context, start, stop int) ([]Trade, error)

	// Update runs fn against a batch and commits the collected mutations
	// atomically.
	Update(ctx context.Context, fn func(Batch) error) error

	// Wipe removes all book and ledger state.
	Wipe(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Batch collects mutations for one atomic commit. Implementations defer
// execution until Update commits; errors surface from Update.
type Batch interface {
	// AddPrice inserts the price into the side's ordered index. A no-op if
	// already present.
	AddPrice(side Side, price decimal.Decimal)

	// RemovePrice drops the price from the side's ordered index. A no-op if
	// absent; the level's queue must already be empty.
	RemovePrice(side Side, price decimal.Decimal)

	// PushOrder appends the order to the tail of the price level's queue.
	PushOrder(side Side, price decimal.Decimal, o Order)

	// PopHead discards the earliest-queued order at the price.
	PopHead(side Side, price decimal.Decimal)

	// SetHeadRemaining overwrites the head order's remaining amount after a
	// partial fill.
	SetHeadRemaining(side Side, price, remaining decimal.Decimal)

	// PushTrade prepends the trade to the ledger.
	PushTrade(t Trade)
}

// ClampRange normalizes an LRANGE-style (start, stop) pair against a list of
// n elements, for backends implementing Trades. ok is false when the window
// is empty.
func ClampRange(n, start, stop int) (lo, hi int, ok bool) {
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if stop < 0 {
		stop = n + stop
	}
	if stop > n-1 {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
