package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/cockroachdb/pebble"
	"github.com/shopspring/decimal"

	"bookd/pkg/book"
)

// PebbleBackend stores the book in an embedded pebble database.
//
// Key layout:
//
//	p/<side>/<sortable price>          price index; value = canonical price
//	m/<side>/<sortable price>          level meta; value = head,tail uint64
//	q/<side>/<sortable price>/<seq>    FIFO entry; value = JSON order
//	t/<reversed seq>                   ledger entry; value = JSON trade
//	t!count                            ledger length
//
// Prices are encoded as zero-padded fixed-point strings so lexicographic key
// order equals numeric order; that caps a price at 24 integer and 12
// fractional digits. A price outside that precision has no key: writes reject
// it with ErrInvalidOrder, reads treat it as absent. Ledger sequence numbers
// are stored bitwise-reversed so an ascending scan reads newest-first. Each
// engine mutation commits as one synced pebble batch.
type PebbleBackend struct {
	db *pebble.DB
}

func NewPebbleBackend(path string) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", book.ErrBackendUnavailable, path, err)
	}
	return &PebbleBackend{db: db}, nil
}

func (p *PebbleBackend) Close() error { return p.db.Close() }

const priceFracDigits = 12
const priceIntDigits = 24

// priceKeyLimit is the smallest positive price with no sortable key.
var priceKeyLimit = decimal.New(1, priceIntDigits)

// priceKeyable reports whether the price survives key encoding exactly:
// integer part below 10^24 and no significant digits past the 12th decimal
// place. Callers must check it before calling sortablePrice.
func priceKeyable(d decimal.Decimal) bool {
	return d.LessThan(priceKeyLimit) && d.Equal(d.Truncate(priceFracDigits))
}

// sortablePrice renders a keyable positive price so byte order equals
// numeric order.
func sortablePrice(d decimal.Decimal) string {
	s := d.StringFixed(priceFracDigits)
	dot := strings.IndexByte(s, '.')
	return strings.Repeat("0", priceIntDigits-dot) + s
}

func kPrice(side book.Side, d decimal.Decimal) []byte {
	return []byte("p/" + side.String() + "/" + sortablePrice(d))
}
func kMeta(side book.Side, d decimal.Decimal) []byte {
	return []byte("m/" + side.String() + "/" + sortablePrice(d))
}
func kEntry(side book.Side, d decimal.Decimal, seq uint64) []byte {
	k := []byte("q/" + side.String() + "/" + sortablePrice(d) + "/")
	return binary.BigEndian.AppendUint64(k, seq)
}
func kTrade(seq uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte("t/"), math.MaxUint64-seq)
}

var kTradeCount = []byte("t!count")

// reader is satisfied by both *pebble.DB and *pebble.Batch, so point reads
// work the same against committed state and inside an open batch.
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func getUint64Pair(r reader, key []byte) (a, b uint64, ok bool, err error) {
	val, closer, err := r.Get(key)
	if err == pebble.ErrNotFound {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("%w: get %s: %v", book.ErrBackendUnavailable, key, err)
	}
	defer closer.Close()
	if len(val) != 16 {
		return 0, 0, false, fmt.Errorf("%w: meta %s has %d bytes", book.ErrInvalidState, key, len(val))
	}
	return binary.BigEndian.Uint64(val[:8]), binary.BigEndian.Uint64(val[8:]), true, nil
}

func putUint64Pair(b *pebble.Batch, key []byte, a, c uint64) error {
	val := make([]byte, 16)
	binary.BigEndian.PutUint64(val[:8], a)
	binary.BigEndian.PutUint64(val[8:], c)
	return b.Set(key, val, nil)
}

func (p *PebbleBackend) Prices(_ context.Context, side book.Side) ([]decimal.Decimal, error) {
	lower := []byte("p/" + side.String() + "/")
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: append(append([]byte{}, lower...), 0xff),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iter: %v", book.ErrBackendUnavailable, err)
	}
	defer iter.Close()

	var out []decimal.Decimal
	for iter.First(); iter.Valid(); iter.Next() {
		d, err := decimal.NewFromString(string(iter.Value()))
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt price %q", book.ErrInvalidState, iter.Value())
		}
		out = append(out, d)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: iter: %v", book.ErrBackendUnavailable, err)
	}
	return out, nil
}

func (p *PebbleBackend) HasPrice(_ context.Context, side book.Side, price decimal.Decimal) (bool, error) {
	if !priceKeyable(price) {
		return false, nil
	}
	_, closer, err := p.db.Get(kPrice(side, price))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: get price: %v", book.ErrBackendUnavailable, err)
	}
	closer.Close()
	return true, nil
}

func (p *PebbleBackend) Head(_ context.Context, side book.Side, price decimal.Decimal) (book.Order, bool, error) {
	if !priceKeyable(price) {
		return book.Order{}, false, nil
	}
	head, tail, ok, err := getUint64Pair(p.db, kMeta(side, price))
	if err != nil || !ok || head == tail {
		return book.Order{}, false, err
	}
	val, closer, err := p.db.Get(kEntry(side, price, head))
	if err != nil {
		return book.Order{}, false, fmt.Errorf("%w: get head: %v", book.ErrBackendUnavailable, err)
	}
	defer closer.Close()
	var o book.Order
	if err := json.Unmarshal(val, &o); err != nil {
		return book.Order{}, false, fmt.Errorf("%w: corrupt order: %v", book.ErrInvalidState, err)
	}
	return o, true, nil
}

func (p *PebbleBackend) Level(_ context.Context, side book.Side, price decimal.Decimal) ([]book.Order, error) {
	if !priceKeyable(price) {
		return nil, nil
	}
	head, tail, ok, err := getUint64Pair(p.db, kMeta(side, price))
	if err != nil || !ok {
		return nil, err
	}
	out := make([]book.Order, 0, tail-head)
	for seq := head; seq < tail; seq++ {
		val, closer, err := p.db.Get(kEntry(side, price, seq))
		if err != nil {
			return nil, fmt.Errorf("%w: get entry %d: %v", book.ErrBackendUnavailable, seq, err)
		}
		var o book.Order
		uerr := json.Unmarshal(val, &o)
		closer.Close()
		if uerr != nil {
			return nil, fmt.Errorf("%w: corrupt order: %v", book.ErrInvalidState, uerr)
		}
		out = append(out, o)
	}
	return out, nil
}

func (p *PebbleBackend) Trades(_ context.Context, start, stop int) ([]book.Trade, error) {
	n, err := p.tradeCount(p.db)
	if err != nil {
		return nil, err
	}
	lo, hi, ok := book.ClampRange(int(n), start, stop)
	if !ok {
		return nil, nil
	}
	// The i-th most recent trade has sequence n-1-i; reversed keys make the
	// window a single ascending scan.
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: kTrade(n - 1 - uint64(lo)),
		UpperBound: []byte("t0"), // all t/ keys sort below
	})
	if err != nil {
		return nil, fmt.Errorf("%w: iter: %v", book.ErrBackendUnavailable, err)
	}
	defer iter.Close()

	out := make([]book.Trade, 0, hi-lo+1)
	for valid := iter.First(); valid && len(out) < hi-lo+1; valid = iter.Next() {
		var t book.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			return nil, fmt.Errorf("%w: corrupt trade: %v", book.ErrInvalidState, err)
		}
		out = append(out, t)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("%w: iter: %v", book.ErrBackendUnavailable, err)
	}
	return out, nil
}

func (p *PebbleBackend) tradeCount(r reader) (uint64, error) {
	val, closer, err := r.Get(kTradeCount)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get trade count: %v", book.ErrBackendUnavailable, err)
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(val), nil
}

func (p *PebbleBackend) Update(_ context.Context, fn func(book.Batch) error) error {
	b := p.db.NewIndexedBatch()
	pb := &pebbleBatch{backend: p, b: b}
	if err := fn(pb); err != nil {
		b.Close()
		return err
	}
	if pb.err != nil {
		b.Close()
		return pb.err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: commit: %v", book.ErrBackendUnavailable, err)
	}
	return nil
}

func (p *PebbleBackend) Wipe(_ context.Context) error {
	b := p.db.NewBatch()
	for _, prefix := range []string{"m/", "p/", "q/", "t!", "t/"} {
		upper := []byte(prefix)
		upper[len(upper)-1]++
		if err := b.DeleteRange([]byte(prefix), upper, nil); err != nil {
			b.Close()
			return fmt.Errorf("%w: delete range: %v", book.ErrBackendUnavailable, err)
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: commit wipe: %v", book.ErrBackendUnavailable, err)
	}
	return nil
}

// pebbleBatch stages one atomic mutation. Reads go through the indexed batch
// so earlier writes in the same batch are visible. The first error sticks and
// aborts the commit.
type pebbleBatch struct {
	backend *PebbleBackend
	b       *pebble.Batch
	err     error
}

func (pb *pebbleBatch) fail(err error) {
	if pb.err == nil {
		pb.err = err
	}
}

func (pb *pebbleBatch) AddPrice(side book.Side, price decimal.Decimal) {
	if pb.err != nil {
		return
	}
	if !priceKeyable(price) {
		pb.fail(fmt.Errorf("%w: price %s exceeds %d integer / %d fractional digit key precision",
			book.ErrInvalidOrder, price, priceIntDigits, priceFracDigits))
		return
	}
	if err := pb.b.Set(kPrice(side, price), []byte(price.String()), nil); err != nil {
		pb.fail(fmt.Errorf("%w: set price: %v", book.ErrBackendUnavailable, err))
	}
}

func (pb *pebbleBatch) RemovePrice(side book.Side, price decimal.Decimal) {
	if pb.err != nil || !priceKeyable(price) {
		return
	}
	if err := pb.b.Delete(kPrice(side, price), nil); err != nil {
		pb.fail(fmt.Errorf("%w: delete price: %v", book.ErrBackendUnavailable, err))
	}
}

func (pb *pebbleBatch) PushOrder(side book.Side, price decimal.Decimal, o book.Order) {
	if pb.err != nil {
		return
	}
	if !priceKeyable(price) {
		pb.fail(fmt.Errorf("%w: price %s exceeds %d integer / %d fractional digit key precision",
			book.ErrInvalidOrder, price, priceIntDigits, priceFracDigits))
		return
	}
	head, tail, ok, err := getUint64Pair(pb.b, kMeta(side, price))
	if err != nil {
		pb.fail(err)
		return
	}
	if !ok {
		head, tail = 0, 0
	}
	val, err := json.Marshal(o)
	if err != nil {
		pb.fail(fmt.Errorf("%w: marshal order: %v", book.ErrInvalidState, err))
		return
	}
	if err := pb.b.Set(kEntry(side, price, tail), val, nil); err != nil {
		pb.fail(fmt.Errorf("%w: set entry: %v", book.ErrBackendUnavailable, err))
		return
	}
	if err := putUint64Pair(pb.b, kMeta(side, price), head, tail+1); err != nil {
		pb.fail(fmt.Errorf("%w: set meta: %v", book.ErrBackendUnavailable, err))
	}
}

func (pb *pebbleBatch) PopHead(side book.Side, price decimal.Decimal) {
	if pb.err != nil || !priceKeyable(price) {
		return
	}
	head, tail, ok, err := getUint64Pair(pb.b, kMeta(side, price))
	if err != nil {
		pb.fail(err)
		return
	}
	if !ok || head == tail {
		return
	}
	if err := pb.b.Delete(kEntry(side, price, head), nil); err != nil {
		pb.fail(fmt.Errorf("%w: delete entry: %v", book.ErrBackendUnavailable, err))
		return
	}
	head++
	if head == tail {
		// Queue drained; the meta key goes with it. The price index entry
		// survives until the matcher removes it.
		if err := pb.b.Delete(kMeta(side, price), nil); err != nil {
			pb.fail(fmt.Errorf("%w: delete meta: %v", book.ErrBackendUnavailable, err))
		}
		return
	}
	if err := putUint64Pair(pb.b, kMeta(side, price), head, tail); err != nil {
		pb.fail(fmt.Errorf("%w: set meta: %v", book.ErrBackendUnavailable, err))
	}
}

func (pb *pebbleBatch) SetHeadRemaining(side book.Side, price, remaining decimal.Decimal) {
	if pb.err != nil || !priceKeyable(price) {
		return
	}
	head, tail, ok, err := getUint64Pair(pb.b, kMeta(side, price))
	if err != nil {
		pb.fail(err)
		return
	}
	if !ok || head == tail {
		return
	}
	key := kEntry(side, price, head)
	val, closer, err := pb.b.Get(key)
	if err != nil {
		pb.fail(fmt.Errorf("%w: get head: %v", book.ErrBackendUnavailable, err))
		return
	}
	var o book.Order
	uerr := json.Unmarshal(val, &o)
	closer.Close()
	if uerr != nil {
		pb.fail(fmt.Errorf("%w: corrupt order: %v", book.ErrInvalidState, uerr))
		return
	}
	o.Remaining = remaining
	out, err := json.Marshal(o)
	if err != nil {
		pb.fail(fmt.Errorf("%w: marshal order: %v", book.ErrInvalidState, err))
		return
	}
	if err := pb.b.Set(key, out, nil); err != nil {
		pb.fail(fmt.Errorf("%w: set head: %v", book.ErrBackendUnavailable, err))
	}
}

func (pb *pebbleBatch) PushTrade(t book.Trade) {
	if pb.err != nil {
		return
	}
	n, err := pb.backend.tradeCount(pb.b)
	if err != nil {
		pb.fail(err)
		return
	}
	val, err := json.Marshal(t)
	if err != nil {
		pb.fail(fmt.Errorf("%w: marshal trade: %v", book.ErrInvalidState, err))
		return
	}
	if err := pb.b.Set(kTrade(n), val, nil); err != nil {
		pb.fail(fmt.Errorf("%w: set trade: %v", book.ErrBackendUnavailable, err))
		return
	}
	count := binary.BigEndian.AppendUint64(nil, n+1)
	if err := pb.b.Set(kTradeCount, count, nil); err != nil {
		pb.fail(fmt.Errorf("%w: set trade count: %v", book.ErrBackendUnavailable, err))
	}
}

var _ book.Backend = (*PebbleBackend)(nil)
