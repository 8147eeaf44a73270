package types

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of an order or position
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a side string (case-insensitive)
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return SideBuy, nil
	case "SELL", "SHORT":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// Opposite returns the side that closes a position opened on s
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is BUY or SELL
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderType represents the execution style of an order
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// Market identifies the venue family a symbol trades on
type Market string

const (
	MarketNSE    Market = "NSE"
	MarketBSE    Market = "BSE"
	MarketNYSE   Market = "NYSE"
	MarketNASDAQ Market = "NASDAQ"
	MarketAMEX   Market = "AMEX"
	MarketCrypto Market = "CRYPTO"
)

// IsUS reports whether the market is a US equity venue
func (m Market) IsUS() bool {
	switch m {
	case MarketNYSE, MarketNASDAQ, MarketAMEX:
		return true
	}
	return false
}

// Ticker is a point-in-time quote
type Ticker struct {
	Symbol    string
	Price     float64
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// Balance is the free/locked amount of a single asset
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}
