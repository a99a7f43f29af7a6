package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"bookd/pkg/book"
)

// RedisBackend stores the book in Redis:
//
//	bid_prices / ask_prices           sorted set, score == member == price
//	bid_users@P, bid_amounts@P        parallel FIFO lists per level (ask too)
//	matched_bidders, matched_bidprices,
//	matched_askers, matched_askprices,
//	matched_amounts, matched_timestamps
//	                                  LPUSH'd ledger lists, newest at index 0
//
// Prices are keyed by their canonical decimal string, so equal values always
// address one level. Every engine mutation commits through a MULTI/EXEC
// pipeline: a connection failure aborts the whole batch and surfaces as
// ErrBackendUnavailable with nothing partially written.
type RedisBackend struct {
	client redis.Cmdable
	closer func() error
}

func NewRedisBackend(addr string) *RedisBackend {
	c := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisBackend{client: c, closer: c.Close}
}

// NewRedisBackendWithClient wraps an existing client (standalone or cluster).
func NewRedisBackendWithClient(client redis.Cmdable) *RedisBackend {
	return &RedisBackend{client: client, closer: func() error { return nil }}
}

func pricesKey(side book.Side) string { return side.String() + "_prices" }

func usersKey(side book.Side, price decimal.Decimal) string {
	return fmt.Sprintf("%s_users@%s", side, price)
}

func amountsKey(side book.Side, price decimal.Decimal) string {
	return fmt.Sprintf("%s_amounts@%s", side, price)
}

var ledgerKeys = []string{
	"matched_bidders", "matched_bidprices",
	"matched_askers", "matched_askprices",
	"matched_amounts", "matched_timestamps",
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", book.ErrBackendUnavailable, op, err)
}

func (r *RedisBackend) Prices(ctx context.Context, side book.Side) ([]decimal.Decimal, error) {
	members, err := r.client.ZRange(ctx, pricesKey(side), 0, -1).Result()
	if err != nil {
		return nil, unavailable("zrange "+pricesKey(side), err)
	}
	out := make([]decimal.Decimal, 0, len(members))
	for _, m := range members {
		d, err := decimal.NewFromString(m)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt price member %q", book.ErrInvalidState, m)
		}
		out = append(out, d)
	}
	return out, nil
}

func (r *RedisBackend) HasPrice(ctx context.Context, side book.Side, price decimal.Decimal) (bool, error) {
	err := r.client.ZScore(ctx, pricesKey(side), price.String()).Err()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, unavailable("zscore "+pricesKey(side), err)
	}
	return true, nil
}

func (r *RedisBackend) Head(ctx context.Context, side book.Side, price decimal.Decimal) (book.Order, bool, error) {
	var userCmd, amountCmd *redis.StringCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		userCmd = p.LIndex(ctx, usersKey(side, price), 0)
		amountCmd = p.LIndex(ctx, amountsKey(side, price), 0)
		return nil
	})
	if err == redis.Nil {
		return book.Order{}, false, nil
	}
	if err != nil {
		return book.Order{}, false, unavailable("lindex "+amountsKey(side, price), err)
	}
	remaining, err := decimal.NewFromString(amountCmd.Val())
	if err != nil {
		return book.Order{}, false, fmt.Errorf("%w: corrupt amount %q", book.ErrInvalidState, amountCmd.Val())
	}
	return book.Order{Owner: userCmd.Val(), Remaining: remaining}, true, nil
}

func (r *RedisBackend) Level(ctx context.Context, side book.Side, price decimal.Decimal) ([]book.Order, error) {
	var usersCmd, amountsCmd *redis.StringSliceCmd
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		usersCmd = p.LRange(ctx, usersKey(side, price), 0, -1)
		amountsCmd = p.LRange(ctx, amountsKey(side, price), 0, -1)
		return nil
	})
	if err != nil {
		return nil, unavailable("lrange "+amountsKey(side, price), err)
	}
	users, amounts := usersCmd.Val(), amountsCmd.Val()
	if len(users) != len(amounts) {
		return nil, fmt.Errorf("%w: level %s/%s has %d users but %d amounts",
			book.ErrInvalidState, side, price, len(users), len(amounts))
	}
	out := make([]book.Order, 0, len(users))
	for i := range users {
		remaining, err := decimal.NewFromString(amounts[i])
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt amount %q", book.ErrInvalidState, amounts[i])
		}
		out = append(out, book.Order{Owner: users[i], Remaining: remaining})
	}
	return out, nil
}

func (r *RedisBackend) Trades(ctx context.Context, start, stop int) ([]book.Trade, error) {
	cmds := make([]*redis.StringSliceCmd, len(ledgerKeys))
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range ledgerKeys {
			cmds[i] = p.LRange(ctx, k, int64(start), int64(stop))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("lrange matched_*", err)
	}
	bidders := cmds[0].Val()
	for _, c := range cmds[1:] {
		if len(c.Val()) != len(bidders) {
			return nil, fmt.Errorf("%w: ledger lists out of step", book.ErrInvalidState)
		}
	}
	out := make([]book.Trade, 0, len(bidders))
	for i := range bidders {
		t := book.Trade{Bidder: bidders[i], Asker: cmds[2].Val()[i]}
		var err error
		if t.BidPrice, err = decimal.NewFromString(cmds[1].Val()[i]); err != nil {
			return nil, fmt.Errorf("%w: corrupt bid price: %v", book.ErrInvalidState, err)
		}
		if t.AskPrice, err = decimal.NewFromString(cmds[3].Val()[i]); err != nil {
			return nil, fmt.Errorf("%w: corrupt ask price: %v", book.ErrInvalidState, err)
		}
		if t.Amount, err = decimal.NewFromString(cmds[4].Val()[i]); err != nil {
			return nil, fmt.Errorf("%w: corrupt amount: %v", book.ErrInvalidState, err)
		}
		if _, err = fmt.Sscanf(cmds[5].Val()[i], "%d", &t.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: corrupt timestamp: %v", book.ErrInvalidState, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Update queues the batch onto a MULTI/EXEC transaction pipeline and commits
// it in one round trip.
func (r *RedisBackend) Update(ctx context.Context, fn func(book.Batch) error) error {
	tx := r.client.TxPipeline()
	if err := fn(&redisBatch{ctx: ctx, p: tx}); err != nil {
		tx.Discard()
		return err
	}
	if _, err := tx.Exec(ctx); err != nil && err != redis.Nil {
		return unavailable("exec", err)
	}
	return nil
}

// Wipe mirrors the book's key layout: delete each level's lists, the price
// sets, then the ledger lists.
func (r *RedisBackend) Wipe(ctx context.Context) error {
	for _, side := range []book.Side{book.Bid, book.Ask} {
		prices, err := r.Prices(ctx, side)
		if err != nil {
			return err
		}
		_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			for _, price := range prices {
				p.Del(ctx, usersKey(side, price), amountsKey(side, price))
			}
			p.Del(ctx, pricesKey(side))
			return nil
		})
		if err != nil {
			return unavailable("del "+pricesKey(side), err)
		}
	}
	if err := r.client.Del(ctx, ledgerKeys...).Err(); err != nil {
		return unavailable("del matched_*", err)
	}
	return nil
}

func (r *RedisBackend) Close() error { return r.closer() }

type redisBatch struct {
	ctx context.Context
	p   redis.Pipeliner
}

func (b *redisBatch) AddPrice(side book.Side, price decimal.Decimal) {
	score, _ := price.Float64()
	b.p.ZAdd(b.ctx, pricesKey(side), redis.Z{Score: score, Member: price.String()})
}

func (b *redisBatch) RemovePrice(side book.Side, price decimal.Decimal) {
	b.p.ZRem(b.ctx, pricesKey(side), price.String())
}

func (b *redisBatch) PushOrder(side book.Side, price decimal.Decimal, o book.Order) {
	b.p.RPush(b.ctx, usersKey(side, price), o.Owner)
	b.p.RPush(b.ctx, amountsKey(side, price), o.Remaining.String())
}

func (b *redisBatch) PopHead(side book.Side, price decimal.Decimal) {
	b.p.LPop(b.ctx, usersKey(side, price))
	b.p.LPop(b.ctx, amountsKey(side, price))
}

func (b *redisBatch) SetHeadRemaining(side book.Side, price, remaining decimal.Decimal) {
	b.p.LSet(b.ctx, amountsKey(side, price), 0, remaining.String())
}

func (b *redisBatch) PushTrade(t book.Trade) {
	b.p.LPush(b.ctx, "matched_bidders", t.Bidder)
	b.p.LPush(b.ctx, "matched_bidprices", t.BidPrice.String())
	b.p.LPush(b.ctx, "matched_askers", t.Asker)
	b.p.LPush(b.ctx, "matched_askprices", t.AskPrice.String())
	b.p.LPush(b.ctx, "matched_amounts", t.Amount.String())
	b.p.LPush(b.ctx, "matched_timestamps", fmt.Sprintf("%d", t.Timestamp))
}

var _ book.Backend = (*RedisBackend)(nil)
