package bybit

import (
	"context"
	"fmt"
	"time"
)

// Ticker is the subset of the tickers endpoint the guard uses
type Ticker struct {
	Symbol    string
	LastPrice float64
	Bid       float64
	Ask       float64
	Time      time.Time
}

// GetTicker gets the latest ticker for a symbol
func (c *Client) GetTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := map[string]interface{}{
		"category": c.category,
		"symbol":   symbol,
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetMarketTickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticker: %w", err)
	}

	ticker, err := parseTickerResponse(result)
	if err != nil {
		return nil, WrapAPIError("ticker", err)
	}
	return ticker, nil
}

// parseTickerResponse parses the ticker response to extract the latest price
func parseTickerResponse(response interface{}) (*Ticker, error) {
	var tickerResult struct {
		Category string `json:"category"`
		List     []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			Bid1Price string `json:"bid1Price"`
			Ask1Price string `json:"ask1Price"`
		} `json:"list"`
	}

	if err := decodeResult(response, &tickerResult); err != nil {
		return nil, err
	}

	if len(tickerResult.List) == 0 {
		return nil, fmt.Errorf("no ticker data found")
	}

	item := tickerResult.List[0]
	return &Ticker{
		Symbol:    item.Symbol,
		LastPrice: parseFloat64(item.LastPrice),
		Bid:       parseFloat64(item.Bid1Price),
		Ask:       parseFloat64(item.Ask1Price),
		Time:      time.Now(),
	}, nil
}
