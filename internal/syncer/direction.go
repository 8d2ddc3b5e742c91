package syncer

import (
	"context"
	"errors"
	"log"
	stdsync "sync"

	"trading-coach/internal/domain"
	"trading-coach/internal/storage"
)

// DirectionResolver stamps a position side (and its confidence) onto
// freshly fetched fills before they enter the ledger. Implementations
// mutate the slice in place; fills arrive in (executed_at, fill_id) order.
type DirectionResolver interface {
	Resolve(ctx context.Context, fills []*domain.Fill) error
}

// OrderSideLookup is the exchange call the authoritative resolver needs.
type OrderSideLookup interface {
	GetOrderPositionSide(ctx context.Context, rawSymbol, orderID string) (domain.PositionSide, error)
}

// RawSymbolFunc maps a canonical symbol to the exchange's raw form.
type RawSymbolFunc func(string) string

// OrderDetailResolver resolves direction from exchange order metadata,
// caching per order id so each order is looked up at most once ever.
type OrderDetailResolver struct {
	lookup    OrderSideLookup
	cache     storage.OrderSideStore
	rawSymbol RawSymbolFunc
	logger    *log.Logger
}

// NewOrderDetailResolver creates the authoritative resolver.
func NewOrderDetailResolver(lookup OrderSideLookup, cache storage.OrderSideStore, rawSymbol RawSymbolFunc, logger *log.Logger) *OrderDetailResolver {
	return &OrderDetailResolver{lookup: lookup, cache: cache, rawSymbol: rawSymbol, logger: logger}
}

// Resolve fills in position sides from order detail. A failed lookup leaves
// the fill unknown rather than failing the batch; the aggregator treats
// unknown-side fills through the net-position path.
func (r *OrderDetailResolver) Resolve(ctx context.Context, fills []*domain.Fill) error {
	for _, f := range fills {
		if !sideUnknown(f.PositionSide) || f.OrderID == "" {
			continue
		}

		side, err := r.cache.Get(ctx, f.OrderID)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) {
				return err
			}
			side, err = r.lookup.GetOrderPositionSide(ctx, r.rawSymbol(f.Symbol), f.OrderID)
			if err != nil {
				r.logger.Printf("WARN: order detail lookup failed for order %s: %v", f.OrderID, err)
				continue
			}
			if err := r.cache.Put(ctx, f.OrderID, side); err != nil {
				return err
			}
		}

		f.PositionSide = side
		f.SideInferred = false
	}
	return nil
}

var _ DirectionResolver = (*OrderDetailResolver)(nil)

// HeuristicResolver infers direction from the open/close flag and the
// running signed net position per symbol. Used when order metadata is
// unavailable; every fill it touches is marked inferred.
type HeuristicResolver struct {
	// mu guards net; Resolve is called from concurrent symbol workers.
	mu stdsync.Mutex
	// net carries the running signed position per symbol across Resolve
	// calls within one sync run (buy positive, sell negative).
	net map[string]float64
}

// NewHeuristicResolver creates the fallback resolver.
func NewHeuristicResolver() *HeuristicResolver {
	return &HeuristicResolver{net: make(map[string]float64)}
}

// Resolve stamps inferred position sides. The open/close flag is trusted
// first; without it the running position sign decides, and a flat book
// assumes the fill opens in its own direction.
func (r *HeuristicResolver) Resolve(_ context.Context, fills []*domain.Fill) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, f := range fills {
		if sideUnknown(f.PositionSide) {
			f.PositionSide = r.infer(f)
			f.SideInferred = true
			f.Source = domain.SourceFallback
		}

		if f.Side == domain.SideBuy {
			r.net[f.Symbol] += f.Quantity
		} else {
			r.net[f.Symbol] -= f.Quantity
		}
	}
	return nil
}

func (r *HeuristicResolver) infer(f *domain.Fill) domain.PositionSide {
	switch f.TradeSide {
	case domain.TradeOpen:
		if f.Side == domain.SideBuy {
			return domain.PositionLong
		}
		return domain.PositionShort
	case domain.TradeClose:
		if f.Side == domain.SideBuy {
			return domain.PositionShort
		}
		return domain.PositionLong
	}

	net := r.net[f.Symbol]
	switch {
	case net > 0:
		return domain.PositionLong
	case net < 0:
		return domain.PositionShort
	case f.Side == domain.SideBuy:
		return domain.PositionLong
	default:
		return domain.PositionShort
	}
}

var _ DirectionResolver = (*HeuristicResolver)(nil)

// sideUnknown treats both the explicit unknown value and a zero value as
// unresolved.
func sideUnknown(p domain.PositionSide) bool {
	return p == "" || p == domain.PositionUnknown
}
