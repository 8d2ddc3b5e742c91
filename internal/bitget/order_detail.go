package bitget

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"trading-coach/internal/domain"
)

type orderDetailData struct {
	OrderID  string `json:"orderId"`
	Symbol   string `json:"symbol"`
	PosSide  string `json:"posSide"`
	HoldSide string `json:"holdSide"`
}

// GetOrderPositionSide resolves the position side of an order via the order
// detail endpoint. rawSymbol is the exchange form ("BTCUSDT").
func (c *Client) GetOrderPositionSide(ctx context.Context, rawSymbol, orderID string) (domain.PositionSide, error) {
	params := url.Values{}
	params.Set("productType", ProductTypeUSDTFutures)
	params.Set("symbol", rawSymbol)
	params.Set("orderId", orderID)

	var data orderDetailData
	if err := c.get(ctx, "/api/v2/mix/order/detail?"+params.Encode(), &data); err != nil {
		return domain.PositionUnknown, fmt.Errorf("get order detail: %w", err)
	}

	side := data.PosSide
	if side == "" {
		side = data.HoldSide
	}
	return normalizePositionSide(side), nil
}

// normalizePositionSide folds the exchange's long/short variants down to a
// PositionSide. Anything unrecognized is unknown, not an error; one-way
// accounts legitimately omit the field.
func normalizePositionSide(v string) domain.PositionSide {
	s := strings.ToLower(v)
	switch {
	case strings.Contains(s, "long"):
		return domain.PositionLong
	case strings.Contains(s, "short"):
		return domain.PositionShort
	default:
		return domain.PositionUnknown
	}
}
