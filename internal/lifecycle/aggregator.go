package lifecycle

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"

	"trading-coach/internal/domain"
	"trading-coach/internal/idhash"
	"trading-coach/internal/storage"
)

// Quantities closer to zero than this are treated as flat. Exchange
// quantities are decimal strings with finite precision, so accumulated
// float error stays far below this.
const qtyEpsilon = 1e-9

// Options configures an Aggregator.
type Options struct {
	Fills      storage.FillStore
	Lifecycles storage.LifecycleStore
	Logger     *log.Logger

	// Exchange is stamped on every lifecycle and mixed into lifecycle ids.
	Exchange string

	// Equity is the account snapshot applied to lifecycles first seen in
	// this fold. Nil leaves the leverage metrics unset. Lifecycles that
	// already carry a snapshot keep it, so re-folds never rewrite history.
	Equity *float64
}

// Aggregator replays a symbol's ledger into lifecycles. Folding is a pure
// function of the fill sequence, so re-running it after new fills arrive
// reproduces every prior lifecycle identically and extends or seals the
// open one.
type Aggregator struct {
	opts Options
}

// New creates an Aggregator. Fills and Lifecycles stores are required.
func New(opts Options) (*Aggregator, error) {
	if opts.Fills == nil || opts.Lifecycles == nil {
		return nil, fmt.Errorf("lifecycle: fill and lifecycle stores are required")
	}
	if opts.Exchange == "" {
		opts.Exchange = "bitget"
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Aggregator{opts: opts}, nil
}

// FoldSymbol reloads the symbol's full ledger, folds it, and upserts every
// resulting lifecycle. Returns the number of lifecycles produced.
func (a *Aggregator) FoldSymbol(ctx context.Context, symbol string) (int, error) {
	fills, err := a.opts.Fills.GetBySymbol(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("load fills for %s: %w", symbol, err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	lifecycles := a.Fold(symbol, fills)

	existing, err := a.opts.Lifecycles.GetBySymbol(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("load lifecycles for %s: %w", symbol, err)
	}
	prior := make(map[string]*domain.Lifecycle, len(existing))
	for _, lc := range existing {
		prior[lc.LifecycleID] = lc
	}

	for _, lc := range lifecycles {
		a.applyEquity(lc, prior[lc.LifecycleID])
		if err := a.opts.Lifecycles.Upsert(ctx, lc); err != nil {
			return 0, fmt.Errorf("upsert lifecycle %s: %w", lc.LifecycleID, err)
		}
	}
	return len(lifecycles), nil
}

// applyEquity carries a previously recorded entry snapshot forward, or
// stamps the current one on a lifecycle seen for the first time.
func (a *Aggregator) applyEquity(lc, prior *domain.Lifecycle) {
	switch {
	case prior != nil && prior.EquityAtEntry != nil:
		eq := *prior.EquityAtEntry
		lc.EquityAtEntry = &eq
	case prior == nil && a.opts.Equity != nil:
		eq := *a.opts.Equity
		lc.EquityAtEntry = &eq
	}
	if lc.EquityAtEntry != nil && *lc.EquityAtEntry > 0 {
		lev := lc.PeakNotional / *lc.EquityAtEntry
		lc.PeakLeverage = &lev
	}
}

// book tracks the running position for one (symbol, position side) while
// folding. Net quantity is signed: positive long, negative short.
type book struct {
	key  domain.PositionSide // long, short, or unknown for unresolved fills
	lc   *domain.Lifecycle
	net  float64
	sign float64 // +1 while the open leg is long, -1 while short

	entryCost float64
	entryQty  float64
	exitCost  float64
	exitQty   float64
}

// Fold replays fills in (executed_at, fill_id) order and returns every
// lifecycle the replay produces, ordered by (opened_at, lifecycle id).
// The input slice is not modified.
func (a *Aggregator) Fold(symbol string, fills []*domain.Fill) []*domain.Lifecycle {
	ordered := make([]*domain.Fill, len(fills))
	copy(ordered, fills)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ExecutedAt != ordered[j].ExecutedAt {
			return ordered[i].ExecutedAt < ordered[j].ExecutedAt
		}
		return ordered[i].FillID < ordered[j].FillID
	})

	books := map[domain.PositionSide]*book{}
	var done []*domain.Lifecycle

	for _, f := range ordered {
		key := f.PositionSide
		if key != domain.PositionLong && key != domain.PositionShort {
			key = domain.PositionUnknown
		}
		b := books[key]
		if b == nil {
			b = &book{key: key}
			books[key] = b
		}
		a.applyFill(symbol, books, b, f, f.Quantity, false, &done)
	}

	for _, key := range []domain.PositionSide{domain.PositionLong, domain.PositionShort, domain.PositionUnknown} {
		b := books[key]
		if b != nil && b.lc != nil {
			b.lc.NetQuantity = b.net
			finalize(b.lc)
			done = append(done, b.lc)
		}
	}

	sort.Slice(done, func(i, j int) bool {
		if done[i].OpenedAt != done[j].OpenedAt {
			return done[i].OpenedAt < done[j].OpenedAt
		}
		return done[i].LifecycleID < done[j].LifecycleID
	})
	return done
}

// applyFill folds one fill (or the remainder portion of a flip fill) into
// a book. qty is the unsigned portion attributed here; flip marks the
// opening leg created by a zero crossing.
func (a *Aggregator) applyFill(symbol string, books map[domain.PositionSide]*book, b *book, f *domain.Fill, qty float64, flip bool, done *[]*domain.Lifecycle) {
	delta := qty
	if f.Side == domain.SideSell {
		delta = -qty
	}

	if b.lc == nil {
		if reduceWhileFlat(b.key, f) {
			a.opts.Logger.Printf("WARN: anomalous fill %s on %s (%s): reduce with no open lifecycle, excluded",
				f.FillID, symbol, b.key)
			return
		}
		b.openLifecycle(a.opts.Exchange, symbol, f, qty, delta, flip)
		return
	}

	// Excursions sample the lifecycle's own price path: mark the position
	// held before this fill at this fill's price.
	ex := b.sign * (f.Price - b.lc.AvgEntryPrice) * math.Abs(b.net)
	if ex < b.lc.MaxAdverseExcursion {
		b.lc.MaxAdverseExcursion = ex
	}
	if ex > b.lc.MaxFavorableExcursion {
		b.lc.MaxFavorableExcursion = ex
	}

	newNet := b.net + delta
	crossing := (b.net > 0 && newNet < -qtyEpsilon) || (b.net < 0 && newNet > qtyEpsilon)

	if crossing {
		held := math.Abs(b.net)
		excess := qty - held
		b.closePortion(f, held)
		*done = append(*done, b.lc)
		opened := b.lc.PositionSide
		b.reset()

		if !flipAllowed(f) {
			a.opts.Logger.Printf("WARN: anomalous fill %s on %s (%s): reduce exceeds open quantity by %v, excess excluded",
				f.FillID, symbol, opened, excess)
			return
		}
		opp := b.key.Opposite()
		next := books[opp]
		if next == nil {
			next = &book{key: opp}
			books[opp] = next
		}
		if next.lc != nil {
			a.opts.Logger.Printf("WARN: flip fill %s on %s: opposite side already open, excess excluded", f.FillID, symbol)
			return
		}
		a.applyFill(symbol, books, next, f, excess, true, done)
		return
	}

	if math.Abs(newNet) > math.Abs(b.net)+qtyEpsilon {
		b.scalePortion(f, qty)
		return
	}

	if math.Abs(newNet) <= qtyEpsilon {
		b.closePortion(f, qty)
		*done = append(*done, b.lc)
		b.reset()
		return
	}
	b.reducePortion(f, qty)
}

// reduceWhileFlat reports whether a fill arriving on a flat book is a
// reduce-direction order, which has no lifecycle to act on.
func reduceWhileFlat(key domain.PositionSide, f *domain.Fill) bool {
	switch key {
	case domain.PositionLong:
		return f.Side == domain.SideSell
	case domain.PositionShort:
		return f.Side == domain.SideBuy
	default:
		return f.TradeSide == domain.TradeClose
	}
}

// flipAllowed reports whether a zero-crossing fill may open an opposite
// leg. Exchange hedge metadata makes real crossings impossible, so a
// crossing on an explicit-side fill is a data anomaly, not a flip.
func flipAllowed(f *domain.Fill) bool {
	if f.SideInferred {
		return true
	}
	return f.PositionSide != domain.PositionLong && f.PositionSide != domain.PositionShort
}

func (b *book) openLifecycle(exchange, symbol string, f *domain.Fill, qty, delta float64, flip bool) {
	side := b.key
	if side == domain.PositionUnknown {
		if delta > 0 {
			side = domain.PositionLong
		} else {
			side = domain.PositionShort
		}
	}
	id := idhash.ComputeLifecycleID(exchange, symbol, side.String(), f.FillID)
	if flip {
		id = idhash.ComputeFlipLifecycleID(exchange, symbol, side.String(), f.FillID)
	}

	b.net = delta
	b.sign = math.Copysign(1, delta)
	b.entryCost = f.Price * qty
	b.entryQty = qty
	b.exitCost = 0
	b.exitQty = 0

	b.lc = &domain.Lifecycle{
		LifecycleID:   id,
		Exchange:      exchange,
		Symbol:        symbol,
		PositionSide:  side,
		Status:        domain.LifecycleOpen,
		OpenedAt:      f.ExecutedAt,
		AvgEntryPrice: f.Price,
		PeakNotional:  math.Abs(delta) * f.Price,
	}
	b.appendConstituent(f, qty, domain.RoleOpen)
}

func (b *book) scalePortion(f *domain.Fill, qty float64) {
	b.net += signed(f, qty)
	b.entryCost += f.Price * qty
	b.entryQty += qty
	b.lc.AvgEntryPrice = b.entryCost / b.entryQty
	b.lc.AddsCount++
	if n := math.Abs(b.net) * f.Price; n > b.lc.PeakNotional {
		b.lc.PeakNotional = n
	}
	b.appendConstituent(f, qty, domain.RoleScale)
}

func (b *book) reducePortion(f *domain.Fill, qty float64) {
	b.net += signed(f, qty)
	b.realize(f, qty)
	b.lc.ReductionsCount++
	b.appendConstituent(f, qty, domain.RoleReduce)
}

func (b *book) closePortion(f *domain.Fill, qty float64) {
	b.net = 0
	b.realize(f, qty)
	b.lc.ReductionsCount++
	b.appendConstituent(f, qty, domain.RoleClose)

	closedAt := f.ExecutedAt
	b.lc.Status = domain.LifecycleClosed
	b.lc.ClosedAt = &closedAt
	b.lc.NetQuantity = 0
	finalize(b.lc)
}

// realize books price pnl for a reducing portion against the running
// volume-weighted entry.
func (b *book) realize(f *domain.Fill, qty float64) {
	b.exitCost += f.Price * qty
	b.exitQty += qty
	b.lc.AvgExitPrice = b.exitCost / b.exitQty
	b.lc.RealizedPnL += b.sign * (f.Price - b.lc.AvgEntryPrice) * qty
}

func (b *book) appendConstituent(f *domain.Fill, qty float64, role domain.FillRole) {
	fee := f.Fee
	if f.Quantity > 0 && qty < f.Quantity {
		fee = f.Fee * (qty / f.Quantity)
	}
	b.lc.TotalFees += fee
	if f.SideInferred {
		b.lc.InferredFills++
	}
	b.lc.Fills = append(b.lc.Fills, domain.ConstituentFill{
		FillID:     f.FillID,
		OrderID:    f.OrderID,
		ExecutedAt: f.ExecutedAt,
		Side:       f.Side,
		Price:      f.Price,
		Quantity:   qty,
		Role:       role,
		NetAfter:   b.net,
		Inferred:   f.SideInferred,
	})
}

func (b *book) reset() {
	b.lc = nil
	b.net = 0
	b.sign = 0
	b.entryCost = 0
	b.entryQty = 0
	b.exitCost = 0
	b.exitQty = 0
}

func signed(f *domain.Fill, qty float64) float64 {
	if f.Side == domain.SideSell {
		return -qty
	}
	return qty
}

func finalize(lc *domain.Lifecycle) {
	if lc.AddsCount > 0 {
		lc.EntryLabel = fmt.Sprintf("scaled in %dx", lc.AddsCount+1)
	} else {
		lc.EntryLabel = "single entry"
	}
	switch {
	case lc.ReductionsCount == 0:
		lc.ExitLabel = ""
	case lc.ReductionsCount > 1:
		lc.ExitLabel = fmt.Sprintf("scaled out %dx", lc.ReductionsCount)
	case lc.Status == domain.LifecycleClosed:
		lc.ExitLabel = "single exit"
	default:
		lc.ExitLabel = "partial exit"
	}
}
