package bitget

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"trading-coach/internal/domain"
)

type accountRow struct {
	MarginCoin    string `json:"marginCoin"`
	AccountEquity string `json:"accountEquity"`
	Available     string `json:"available"`
}

// GetAccountSnapshot fetches the USDT futures account equity. Best-effort:
// callers treat a failure as "no snapshot", not a fatal condition.
func (c *Client) GetAccountSnapshot(ctx context.Context) (*domain.AccountSnapshot, error) {
	params := url.Values{}
	params.Set("productType", ProductTypeUSDTFutures)

	var rows []accountRow
	if err := c.get(ctx, "/api/v2/mix/account/accounts?"+params.Encode(), &rows); err != nil {
		return nil, fmt.Errorf("get accounts: %w", err)
	}

	for _, row := range rows {
		if row.MarginCoin != "USDT" {
			continue
		}
		equity, err := strconv.ParseFloat(row.AccountEquity, 64)
		if err != nil {
			return nil, fmt.Errorf("parse accountEquity %q: %w", row.AccountEquity, err)
		}
		available, err := strconv.ParseFloat(row.Available, 64)
		if err != nil {
			return nil, fmt.Errorf("parse available %q: %w", row.Available, err)
		}
		return &domain.AccountSnapshot{
			Equity:     equity,
			Available:  available,
			MarginCoin: row.MarginCoin,
			TakenAt:    c.now().UnixMilli(),
		}, nil
	}

	return nil, fmt.Errorf("no USDT margin account in response")
}
