package storage

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/shopspring/decimal"

	"bookd/pkg/book"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// runBackendScenario drives a full place/match/history/clear cycle through a
// backend; every backend must produce identical book semantics.
func runBackendScenario(t *testing.T, be book.Backend) {
	t.Helper()
	ctx := context.Background()
	b := book.New(be)

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("initial clear: %v", err)
	}

	mustPlace := func(side book.Side, owner, price, amount string) {
		t.Helper()
		if err := b.Place(ctx, side, owner, dec(price), dec(amount)); err != nil {
			t.Fatalf("place: %v", err)
		}
	}

	mustPlace(book.Bid, "a", "10.5", "5")
	mustPlace(book.Bid, "b", "10.5", "5")
	mustPlace(book.Bid, "c", "12", "3")
	mustPlace(book.Ask, "d", "9", "4")
	mustPlace(book.Ask, "e", "11", "2")

	depth, err := b.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(depth.Bids) != 2 || !depth.Bids[0].Price.Equal(dec("12")) {
		t.Fatalf("bids = %+v, want 12 then 10.5", depth.Bids)
	}
	if depth.Bids[1].Count != 2 || !depth.Bids[1].Total.Equal(dec("13")) {
		t.Errorf("bids[1] = %+v, want count 2 total 13", depth.Bids[1])
	}

	// Crossing range: bids 10.5 and 12 against ask 9, then 12 against 11.
	fills, err := b.Match(ctx)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if fills != 2 {
		t.Fatalf("fills = %d, want 2", fills)
	}

	trades, err := b.Trades(ctx, 0, -1)
	if err != nil {
		t.Fatalf("trades: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("ledger has %d trades, want 2", len(trades))
	}
	// Oldest first: a filled for 4 at 10.5x9, then c for 2 at 12x11.
	oldest := trades[len(trades)-1]
	if oldest.Bidder != "a" || !oldest.Amount.Equal(dec("4")) || !oldest.AskPrice.Equal(dec("9")) {
		t.Errorf("oldest trade = %+v, want a for 4 at ask 9", oldest)
	}
	newest := trades[0]
	if newest.Bidder != "c" || !newest.Amount.Equal(dec("2")) || !newest.AskPrice.Equal(dec("11")) {
		t.Errorf("newest trade = %+v, want c for 2 at ask 11", newest)
	}

	// Range windows behave like LRANGE.
	window, err := b.Trades(ctx, 1, 1)
	if err != nil || len(window) != 1 {
		t.Fatalf("Trades(1,1) = (%d, %v), want 1 trade", len(window), err)
	}
	empty, err := b.Trades(ctx, 10, 20)
	if err != nil || len(empty) != 0 {
		t.Fatalf("Trades(10,20) = (%d, %v), want empty", len(empty), err)
	}

	// Second match finds nothing new.
	fills, err = b.Match(ctx)
	if err != nil || fills != 0 {
		t.Fatalf("second match = (%d, %v), want (0, nil)", fills, err)
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	depth, _ = b.Snapshot(ctx)
	trades, _ = b.Trades(ctx, 0, -1)
	if len(depth.Bids) != 0 || len(depth.Asks) != 0 || len(trades) != 0 {
		t.Errorf("state survived clear: %+v / %+v", depth, trades)
	}
}

func TestPebbleBackendScenario(t *testing.T) {
	be, err := NewPebbleBackend(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer be.Close()
	runBackendScenario(t, be)
}

// TestRedisBackendScenario needs a live Redis; set REDIS_TEST_ADDR to run it.
// The scenario wipes the instance's book keys.
func TestRedisBackendScenario(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	be := NewRedisBackend(addr)
	defer be.Close()
	runBackendScenario(t, be)
}

func TestPebbleFIFOPersists(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	be, err := NewPebbleBackend(dir)
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	b := book.New(be)
	if err := b.Place(ctx, book.Bid, "first", dec("10"), dec("1")); err != nil {
		t.Fatal(err)
	}
	if err := b.Place(ctx, book.Bid, "second", dec("10"), dec("2")); err != nil {
		t.Fatal(err)
	}
	if err := be.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Reopen: queue order and amounts must survive the restart.
	be, err = NewPebbleBackend(dir)
	if err != nil {
		t.Fatalf("reopen pebble: %v", err)
	}
	defer be.Close()

	head, ok, err := be.Head(ctx, book.Bid, dec("10"))
	if err != nil || !ok {
		t.Fatalf("head after reopen = (%v, %v)", ok, err)
	}
	if head.Owner != "first" || !head.Remaining.Equal(dec("1")) {
		t.Errorf("head = %+v, want first with 1", head)
	}
	level, err := be.Level(ctx, book.Bid, dec("10"))
	if err != nil || len(level) != 2 {
		t.Fatalf("level after reopen = (%d, %v), want 2 orders", len(level), err)
	}
}

// Prices outside the key encoding's 24 integer / 12 fractional digit
// precision are rejected as invalid orders, never encoded approximately.
func TestPebblePriceKeyPrecision(t *testing.T) {
	be, err := NewPebbleBackend(t.TempDir())
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer be.Close()
	ctx := context.Background()
	b := book.New(be)

	rejected := []struct {
		name  string
		price string
	}{
		{"integer part too wide", "1e25"},
		{"at the integer limit", "1000000000000000000000000"},
		{"beyond fractional precision", "1.0000000000001"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			err := b.Place(ctx, book.Bid, "a", dec(tt.price), dec("1"))
			if !errors.Is(err, book.ErrInvalidOrder) {
				t.Errorf("Place(%s) = %v, want ErrInvalidOrder", tt.price, err)
			}
		})
	}
	if depth, _ := b.Snapshot(ctx); len(depth.Bids) != 0 {
		t.Errorf("rejected prices left levels behind: %+v", depth.Bids)
	}

	// The extremes of the encodable range still work, and prices differing
	// at the last representable fractional digit stay distinct levels.
	for _, p := range []string{"999999999999999999999999.999999999999", "1", "1.000000000001"} {
		if err := b.Place(ctx, book.Bid, "a", dec(p), dec("1")); err != nil {
			t.Fatalf("Place(%s): %v", p, err)
		}
	}
	depth, err := b.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(depth.Bids) != 3 {
		t.Fatalf("bid levels = %d, want 3", len(depth.Bids))
	}

	// An unencodable price has no level to drain either.
	_, _, _, err = b.Trade(ctx, dec("1e25"), dec("1"))
	if !errors.Is(err, book.ErrInvalidState) {
		t.Errorf("Trade at unencodable price err = %v, want ErrInvalidState", err)
	}
}

func TestSortablePriceOrdering(t *testing.T) {
	prices := []string{"0.0001", "1", "9.99", "10", "10.5", "100", "123456789.000000000001"}
	for i := 1; i < len(prices); i++ {
		lo := sortablePrice(dec(prices[i-1]))
		hi := sortablePrice(dec(prices[i]))
		if !(lo < hi) {
			t.Errorf("sortablePrice(%s) = %q not below sortablePrice(%s) = %q",
				prices[i-1], lo, prices[i], hi)
		}
	}
}
