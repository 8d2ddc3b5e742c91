package bitget

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"trading-coach/internal/domain"
)

// FillsQuery bounds one page request against the fills endpoint.
type FillsQuery struct {
	// Symbol is the raw exchange symbol ("BTCUSDT"); empty queries all symbols.
	Symbol  string
	StartMs int64
	EndMs   int64
	// Limit caps the page size; the endpoint maximum is 100.
	Limit int
	// IDLessThan pages backwards from a previous response's EndID.
	IDLessThan string
}

// fills endpoint wire types. Numerics arrive as strings.
type fillsData struct {
	FillList []fillRow `json:"fillList"`
	EndID    string    `json:"endId"`
}

type fillRow struct {
	TradeID    string      `json:"tradeId"`
	OrderID    string      `json:"orderId"`
	Symbol     string      `json:"symbol"`
	Side       string      `json:"side"`
	Price      string      `json:"price"`
	BaseVolume string      `json:"baseVolume"`
	Profit     string      `json:"profit"`
	TradeSide  string      `json:"tradeSide"`
	CTime      string      `json:"cTime"`
	FeeDetail  []feeDetail `json:"feeDetail"`
}

type feeDetail struct {
	TotalFee string `json:"totalFee"`
}

// ListFills fetches one page of contract fills in [StartMs, EndMs]. Returns
// the parsed fills sorted by (ExecutedAt, FillID) and the response endId for
// paging; an empty endId means there are no earlier fills in the range.
func (c *Client) ListFills(ctx context.Context, q FillsQuery) ([]*domain.Fill, string, error) {
	params := url.Values{}
	params.Set("productType", ProductTypeUSDTFutures)
	params.Set("startTime", strconv.FormatInt(q.StartMs, 10))
	params.Set("endTime", strconv.FormatInt(q.EndMs, 10))
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Symbol != "" {
		params.Set("symbol", q.Symbol)
	}
	if q.IDLessThan != "" {
		params.Set("idLessThan", q.IDLessThan)
	}

	var data fillsData
	if err := c.get(ctx, "/api/v2/mix/order/fills?"+params.Encode(), &data); err != nil {
		return nil, "", fmt.Errorf("list fills: %w", err)
	}

	fills := make([]*domain.Fill, 0, len(data.FillList))
	for _, row := range data.FillList {
		f, err := row.toFill()
		if err != nil {
			return nil, "", fmt.Errorf("parse fill %s: %w", row.TradeID, err)
		}
		fills = append(fills, f)
	}

	sort.Slice(fills, func(i, j int) bool {
		if fills[i].ExecutedAt != fills[j].ExecutedAt {
			return fills[i].ExecutedAt < fills[j].ExecutedAt
		}
		return fills[i].FillID < fills[j].FillID
	})

	return fills, data.EndID, nil
}

func (r fillRow) toFill() (*domain.Fill, error) {
	if r.TradeID == "" {
		return nil, fmt.Errorf("missing tradeId")
	}

	executedAt, err := strconv.ParseInt(r.CTime, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse cTime %q: %w", r.CTime, err)
	}

	price, err := strconv.ParseFloat(r.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", r.Price, err)
	}

	quantity, err := strconv.ParseFloat(r.BaseVolume, 64)
	if err != nil {
		return nil, fmt.Errorf("parse baseVolume %q: %w", r.BaseVolume, err)
	}

	side := domain.Side(strings.ToLower(r.Side))
	if !side.IsValid() {
		return nil, fmt.Errorf("unexpected side %q", r.Side)
	}

	f := &domain.Fill{
		FillID:     r.TradeID,
		OrderID:    r.OrderID,
		Symbol:     NormalizeSymbol(r.Symbol),
		Side:       side,
		Price:      price,
		Quantity:   quantity,
		Fee:        parseFeeTotal(r.FeeDetail),
		TradeSide:  normalizeTradeSide(r.TradeSide),
		// Position side comes from order detail or inference later.
		PositionSide: domain.PositionUnknown,
		ExecutedAt:   executedAt,
		Source:       domain.SourceRESTFills,
	}

	if r.Profit != "" {
		if pnl, err := strconv.ParseFloat(r.Profit, 64); err == nil {
			f.ReportedPnL = &pnl
		}
	}

	return f, nil
}

// parseFeeTotal extracts the absolute fee cost. The exchange reports
// totalFee as a negative string; a missing or malformed detail means zero.
func parseFeeTotal(details []feeDetail) float64 {
	if len(details) == 0 {
		return 0
	}
	fee, err := strconv.ParseFloat(details[0].TotalFee, 64)
	if err != nil {
		return 0
	}
	if fee < 0 {
		fee = -fee
	}
	return fee
}

// normalizeTradeSide folds the exchange's open/close variants ("open",
// "close", "reduce_close_long", ...) down to the flag the aggregator uses.
func normalizeTradeSide(v string) domain.TradeSide {
	s := strings.ToLower(v)
	switch {
	case strings.Contains(s, "open"):
		return domain.TradeOpen
	case strings.Contains(s, "close"):
		return domain.TradeClose
	default:
		return domain.TradeUnknown
	}
}
