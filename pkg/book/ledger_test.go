package book

import (
	"context"
	"testing"
)

// fillLedger runs n single-fill matches so trade i (0-based, oldest first)
// has amount i+1.
func fillLedger(t *testing.T, b *Book, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		if err := b.Place(ctx, Bid, "buyer", dec("10"), dec(itoa(i))); err != nil {
			t.Fatal(err)
		}
		if err := b.Place(ctx, Ask, "seller", dec("10"), dec(itoa(i))); err != nil {
			t.Fatal(err)
		}
		if fills, err := b.Match(ctx); err != nil || fills != 1 {
			t.Fatalf("match %d = (%d, %v), want 1 fill", i, fills, err)
		}
	}
}

func itoa(i int) string {
	return string(rune('0' + i))
}

func TestTradesRange(t *testing.T) {
	b, _ := newTestBook(t)
	ctx := context.Background()
	fillLedger(t, b, 5)

	tests := []struct {
		name        string
		start, stop int
		amounts     []string // newest first
	}{
		{"full history", 0, -1, []string{"5", "4", "3", "2", "1"}},
		{"latest only", 0, 0, []string{"5"}},
		{"middle window", 1, 3, []string{"4", "3", "2"}},
		{"stop clamped", 2, 100, []string{"3", "2", "1"}},
		{"start past history", 10, 20, nil},
		{"inverted window", 3, 1, nil},
		{"negative start from oldest", -2, -1, []string{"2", "1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades, err := b.Trades(ctx, tt.start, tt.stop)
			if err != nil {
				t.Fatalf("Trades(%d, %d): %v", tt.start, tt.stop, err)
			}
			if len(trades) != len(tt.amounts) {
				t.Fatalf("got %d trades, want %d", len(trades), len(tt.amounts))
			}
			for i, want := range tt.amounts {
				if !trades[i].Amount.Equal(dec(want)) {
					t.Errorf("trade[%d].Amount = %s, want %s", i, trades[i].Amount, want)
				}
			}
		})
	}
}

func TestTradesEmptyLedger(t *testing.T) {
	b, _ := newTestBook(t)
	trades, err := b.Trades(context.Background(), 0, -1)
	if err != nil {
		t.Fatalf("Trades on empty ledger: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("got %d trades, want 0", len(trades))
	}
}

func TestClampRange(t *testing.T) {
	tests := []struct {
		n, start, stop int
		lo, hi         int
		ok             bool
	}{
		{5, 0, -1, 0, 4, true},
		{5, 1, 3, 1, 3, true},
		{5, 0, 100, 0, 4, true},
		{5, 5, 10, 0, 0, false},
		{5, 3, 1, 0, 0, false},
		{5, -2, -1, 3, 4, true},
		{5, -10, 2, 0, 2, true},
		{0, 0, -1, 0, 0, false},
	}
	for _, tt := range tests {
		lo, hi, ok := ClampRange(tt.n, tt.start, tt.stop)
		if lo != tt.lo || hi != tt.hi || ok != tt.ok {
			t.Errorf("ClampRange(%d, %d, %d) = (%d, %d, %v), want (%d, %d, %v)",
				tt.n, tt.start, tt.stop, lo, hi, ok, tt.lo, tt.hi, tt.ok)
		}
	}
}
