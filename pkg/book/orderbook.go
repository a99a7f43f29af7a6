package book

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bookd/pkg/util"
)

// Book is the single-instrument limit order book. All mutating calls (Place,
// Trade, Match, Clear) are serialized behind the write lock; Snapshot and
// Trades take the read lock and observe a consistent point-in-time view.
type Book struct {
	mu      sync.RWMutex
	backend Backend
	clock   util.Clock
	log     *zap.SugaredLogger
}

type Option func(*Book)

// WithClock overrides the trade-timestamp source.
func WithClock(c util.Clock) Option {
	return func(b *Book) { b.clock = c }
}

// WithLogger attaches a structured logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(b *Book) { b.log = log }
}

func New(backend Backend, opts ...Option) *Book {
	b := &Book{
		backend: backend,
		clock:   util.RealClock{},
		log:     zap.NewNop().Sugar(),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Place rests a limit order at the tail of its price level, creating the
// level (and indexing its price) if absent. No crossing check happens here: a
// bid above the best ask simply rests until Match runs.
func (b *Book) Place(ctx context.Context, side Side, owner string, price, amount decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%w: price %s must be positive", ErrInvalidOrder, price)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount %s must be positive", ErrInvalidOrder, amount)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err := b.backend.Update(ctx, func(bt Batch) error {
		bt.AddPrice(side, price)
		bt.PushOrder(side, price, Order{Owner: owner, Remaining: amount})
		return nil
	})
	if err != nil {
		return err
	}
	b.log.Debugw("order_placed", "side", side.String(), "owner", owner,
		"price", price.String(), "amount", amount.String())
	return nil
}

// Clear wipes both sides and the trade ledger, returning the engine to its
// initial empty state.
func (b *Book) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.backend.Wipe(ctx); err != nil {
		return err
	}
	b.log.Infow("book_cleared")
	return nil
}

// Snapshot aggregates each side into depth rows: bids best (highest) price
// first, asks best (lowest) price first, with cumulative totals summed from
// the best price outward.
func (b *Book) Snapshot(ctx context.Context) (Depth, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var d Depth
	var err error
	if d.Bids, err = b.depthRows(ctx, Bid); err != nil {
		return Depth{}, err
	}
	if d.Asks, err = b.depthRows(ctx, Ask); err != nil {
		return Depth{}, err
	}
	return d, nil
}

func (b *Book) depthRows(ctx context.Context, side Side) ([]DepthRow, error) {
	prices, err := b.backend.Prices(ctx, side)
	if err != nil {
		return nil, err
	}
	// Walk from the best price outward: descending for bids, ascending for
	// asks.
	rows := make([]DepthRow, 0, len(prices))
	total := decimal.Zero
	for i := range prices {
		price := prices[i]
		if side == Bid {
			price = prices[len(prices)-1-i]
		}
		level, err := b.backend.Level(ctx, side, price)
		if err != nil {
			return nil, err
		}
		amount := decimal.Zero
		for _, o := range level {
			amount = amount.Add(o.Remaining)
		}
		total = total.Add(amount)
		rows = append(rows, DepthRow{
			Price:  price,
			Count:  len(level),
			Amount: amount,
			Total:  total,
		})
	}
	return rows, nil
}
