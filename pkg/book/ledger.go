package book

import "context"

// Trades reads the trade ledger, most recent first: start and stop are
// 0-based inclusive indexes into the history, stop = -1 meaning "through the
// oldest trade". A start past the available history yields an empty result,
// never an error.
func (b *Book) Trades(ctx context.Context, start, stop int) ([]Trade, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.backend.Trades(ctx, start, stop)
}
