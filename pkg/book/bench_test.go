package book

import (
	"context"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
)

// BenchmarkPlace measures order placement on a book with realistic depth.
func BenchmarkPlace(b *testing.B) {
	ctx := context.Background()
	bk := New(NewMemoryBackend())

	// Pre-fill 100 non-crossing price levels per side
	for i := 0; i < 100; i++ {
		bk.Place(ctx, Bid, "seed", decimal.NewFromInt(int64(1000-i)), decimal.NewFromInt(100))
		bk.Place(ctx, Ask, "seed", decimal.NewFromInt(int64(1100+i)), decimal.NewFromInt(100))
	}

	amount := decimal.NewFromInt(10)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Bid
		price := decimal.NewFromInt(int64(900 + i%100))
		if i%2 == 0 {
			side = Ask
			price = decimal.NewFromInt(int64(1200 + i%100))
		}
		bk.Place(ctx, side, "bench-"+strconv.Itoa(i), price, amount)
	}
}

// BenchmarkMatch measures one crossing-range scan over a deep book.
func BenchmarkMatch(b *testing.B) {
	ctx := context.Background()
	amount := decimal.NewFromInt(1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		bk := New(NewMemoryBackend())
		for j := 0; j < 50; j++ {
			bk.Place(ctx, Bid, "buyer", decimal.NewFromInt(int64(100+j)), amount)
			bk.Place(ctx, Ask, "seller", decimal.NewFromInt(int64(100+j)), amount)
		}
		b.StartTimer()

		if _, err := bk.Match(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
