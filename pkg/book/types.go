package book

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side of the book an order rests on.
type Side int

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	if s == Bid {
		return "bid"
	}
	return "ask"
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// ParseSide maps "bid"/"ask" to a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid":
		return Bid, nil
	case "ask":
		return Ask, nil
	default:
		return 0, fmt.Errorf("%w: unknown side %q", ErrInvalidCommand, s)
	}
}

// Order is a resting limit order at one price level. It is owned by the FIFO
// queue holding it: only a fill may shrink Remaining, and an order leaves the
// queue the moment Remaining hits zero.
type Order struct {
	Owner     string          `json:"owner"`
	Remaining decimal.Decimal `json:"remaining"`
}

// Trade records one fill. Immutable once appended to the ledger.
type Trade struct {
	Bidder    string          `json:"bidder"`
	BidPrice  decimal.Decimal `json:"bidprice"`
	Asker     string          `json:"asker"`
	AskPrice  decimal.Decimal `json:"askprice"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"` // unix seconds
}

// DepthRow aggregates one price level for a snapshot. Total accumulates from
// the best price outward.
type DepthRow struct {
	Price  decimal.Decimal `json:"price"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
	Total  decimal.Decimal `json:"total"`
}

// Depth is a point-in-time aggregated view of both sides. Bids are ordered
// highest price first, asks lowest price first.
type Depth struct {
	Bids []DepthRow `json:"bids"`
	Asks []DepthRow `json:"asks"`
}
