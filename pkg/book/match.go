package book

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Trade drains the crossing pair (bidPrice, askPrice) under FIFO order until
// one side's queue at that pair runs out. Each fill takes
// min(bidHead.Remaining, askHead.Remaining), is appended to the ledger before
// the heads shrink, and pops any head that reaches zero. A level whose queue
// empties is removed from its price index on the iteration that observes it;
// no partial fill ever executes against a missing counterpart.
//
// It returns the number of fills plus whether each side's level was
// exhausted (and therefore removed). Calling it for a price with no resting
// level is an ErrInvalidState.
func (b *Book) Trade(ctx context.Context, bidPrice, askPrice decimal.Decimal) (int, bool, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, side := range []Side{Bid, Ask} {
		price := bidPrice
		if side == Ask {
			price = askPrice
		}
		ok, err := b.backend.HasPrice(ctx, side, price)
		if err != nil {
			return 0, false, false, err
		}
		if !ok {
			return 0, false, false, fmt.Errorf("%w: no %s level at %s",
				ErrInvalidState, side, price)
		}
	}
	return b.trade(ctx, bidPrice, askPrice)
}

// trade is the drain loop. Callers hold the write lock and have verified (or,
// in Match's case, just read) both price levels.
func (b *Book) trade(ctx context.Context, bidPrice, askPrice decimal.Decimal) (fills int, bidDone, askDone bool, err error) {
	for {
		bidHead, bidOK, err := b.backend.Head(ctx, Bid, bidPrice)
		if err != nil {
			return fills, false, false, err
		}
		askHead, askOK, err := b.backend.Head(ctx, Ask, askPrice)
		if err != nil {
			return fills, false, false, err
		}
		bidDone, askDone = !bidOK, !askOK

		// Stop when either queue runs out; the emptied level's price
		// leaves its index here, never earlier.
		if bidDone || askDone {
			err = b.backend.Update(ctx, func(bt Batch) error {
				if bidDone {
					bt.RemovePrice(Bid, bidPrice)
				}
				if askDone {
					bt.RemovePrice(Ask, askPrice)
				}
				return nil
			})
			return fills, bidDone, askDone, err
		}

		amount := decimal.Min(bidHead.Remaining, askHead.Remaining)
		t := Trade{
			Bidder:    bidHead.Owner,
			BidPrice:  bidPrice,
			Asker:     askHead.Owner,
			AskPrice:  askPrice,
			Amount:    amount,
			Timestamp: b.clock.Now().Unix(),
		}

		// One fill commits as one batch: the ledger entry and both head
		// updates land together or not at all.
		err = b.backend.Update(ctx, func(bt Batch) error {
			bt.PushTrade(t)
			if bidHead.Remaining.Equal(amount) {
				bt.PopHead(Bid, bidPrice)
			} else {
				bt.SetHeadRemaining(Bid, bidPrice, bidHead.Remaining.Sub(amount))
			}
			if askHead.Remaining.Equal(amount) {
				bt.PopHead(Ask, askPrice)
			} else {
				bt.SetHeadRemaining(Ask, askPrice, askHead.Remaining.Sub(amount))
			}
			return nil
		})
		if err != nil {
			return fills, false, false, err
		}
		fills++

		b.log.Debugw("fill", "bidder", t.Bidder, "asker", t.Asker,
			"bid_price", bidPrice.String(), "ask_price", askPrice.String(),
			"amount", amount.String())
	}
}

// Match eliminates the overlap between bid and ask prices, returning the
// total number of fills executed. With no crossing it returns 0; two
// consecutive calls with no intervening Place always end in a 0.
//
// Crossing levels are consumed bid-ascending, ask-ascending: the scan starts
// at the lowest bid that still crosses the lowest ask and works upward. This
// lowest-bid-first tie-break is deliberate and load-bearing; callers relying
// on highest-bid-first priority will be surprised.
func (b *Book) Match(ctx context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bids, err := b.backend.Prices(ctx, Bid)
	if err != nil {
		return 0, err
	}
	if len(bids) == 0 {
		return 0, nil
	}
	asks, err := b.backend.Prices(ctx, Ask)
	if err != nil {
		return 0, err
	}
	if len(asks) == 0 {
		return 0, nil
	}

	// b_lb: index of the lowest bid price >= the lowest ask price.
	// a_ub: index of the highest ask price <= the highest bid price.
	bLB := len(bids) - 1
	for bLB >= 0 && bids[bLB].GreaterThanOrEqual(asks[0]) {
		bLB--
	}
	bLB++
	aUB := 0
	for aUB < len(asks) && asks[aUB].LessThanOrEqual(bids[len(bids)-1]) {
		aUB++
	}
	aUB--

	// No overlap between the two prices ranges.
	if bLB >= len(bids) || aUB < 0 {
		return 0, nil
	}

	// The ask cursor is bounded by aUB; the bid cursor runs to the end of
	// the list, since every bid at or above the ask being drained crosses
	// by construction.
	bi, ai := bLB, 0
	fills := 0
	for {
		n, bidDone, askDone, err := b.trade(ctx, bids[bi], asks[ai])
		fills += n
		if err != nil {
			return fills, err
		}
		// Advance the bid cursor before the ask-side skip loop runs: when
		// one fill drains both levels at once, skipping from the stale bid
		// index and then advancing again would hop over a bid that still
		// crosses the new ask.
		if bidDone {
			bi++
			if bi >= len(bids) {
				break
			}
		}
		if askDone {
			ai++
			if ai > aUB {
				break
			}
			// Skip bid levels that no longer cross the new ask.
			for bids[bi].LessThan(asks[ai]) {
				bi++
			}
		}
	}

	if fills > 0 {
		b.log.Infow("match_complete", "fills", fills)
	}
	return fills, nil
}
