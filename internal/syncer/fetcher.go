package syncer

import (
	"context"

	"trading-coach/internal/bitget"
	"trading-coach/internal/domain"
)

// Fetcher is the read-only exchange boundary the synchronizer pages
// through. pageToken is opaque; an empty returned token means the window
// has no earlier fills.
type Fetcher interface {
	ListFills(ctx context.Context, symbol string, startMs, endMs int64, limit int, pageToken string) ([]*domain.Fill, string, error)
}

// BitgetFetcher adapts the Bitget REST client to the Fetcher boundary,
// translating canonical symbols back to the exchange's raw form.
type BitgetFetcher struct {
	client *bitget.Client
}

// NewBitgetFetcher wraps a Bitget client.
func NewBitgetFetcher(client *bitget.Client) *BitgetFetcher {
	return &BitgetFetcher{client: client}
}

// ListFills fetches one page of fills for a canonical symbol.
func (f *BitgetFetcher) ListFills(ctx context.Context, symbol string, startMs, endMs int64, limit int, pageToken string) ([]*domain.Fill, string, error) {
	return f.client.ListFills(ctx, bitget.FillsQuery{
		Symbol:     bitget.RawSymbol(symbol),
		StartMs:    startMs,
		EndMs:      endMs,
		Limit:      limit,
		IDLessThan: pageToken,
	})
}

var _ Fetcher = (*BitgetFetcher)(nil)
