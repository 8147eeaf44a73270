package bybit

import (
	"context"
	"fmt"
	"strings"
)

// AccountType represents different account types in Bybit
type AccountType string

const (
	AccountTypeUnified  AccountType = "UNIFIED"
	AccountTypeContract AccountType = "CONTRACT"
)

// Balance represents a coin balance in the account
type Balance struct {
	Coin             string  `json:"coin"`
	WalletBalance    float64 `json:"walletBalance"`
	AvailableToTrade float64 `json:"availableToTrade"`
	Locked           float64 `json:"locked"`
}

// WalletInfo represents the wallet balance summary
type WalletInfo struct {
	AccountType           string    `json:"accountType"`
	TotalEquity           float64   `json:"totalEquity"`
	TotalWalletBalance    float64   `json:"totalWalletBalance"`
	TotalAvailableBalance float64   `json:"totalAvailableBalance"`
	Coin                  []Balance `json:"coin"`
}

// GetWalletBalance retrieves account balance information
func (c *Client) GetWalletBalance(ctx context.Context, accountType AccountType, coins ...string) (*WalletInfo, error) {
	params := map[string]interface{}{
		"accountType": string(accountType),
	}
	if len(coins) > 0 {
		params["coin"] = strings.Join(coins, ",")
	}

	result, err := c.httpClient.NewUtaBybitServiceWithParams(params).GetAccountWallet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get account balance: %w", err)
	}

	info, err := parseWalletResponse(result)
	if err != nil {
		return nil, WrapAPIError("wallet balance", err)
	}
	return info, nil
}

// parseWalletResponse parses the account balance API response
func parseWalletResponse(response interface{}) (*WalletInfo, error) {
	var walletResult struct {
		List []struct {
			AccountType           string `json:"accountType"`
			TotalEquity           string `json:"totalEquity"`
			TotalWalletBalance    string `json:"totalWalletBalance"`
			TotalAvailableBalance string `json:"totalAvailableBalance"`
			Coin                  []struct {
				Coin             string `json:"coin"`
				WalletBalance    string `json:"walletBalance"`
				AvailableToTrade string `json:"availableToTrade"`
				TotalOrderIM     string `json:"totalOrderIM"`
				TotalPositionIM  string `json:"totalPositionIM"`
			} `json:"coin"`
		} `json:"list"`
	}

	if err := decodeResult(response, &walletResult); err != nil {
		return nil, err
	}

	if len(walletResult.List) == 0 {
		return nil, fmt.Errorf("no account data found")
	}

	account := walletResult.List[0]
	info := &WalletInfo{
		AccountType:           account.AccountType,
		TotalEquity:           parseFloat64(account.TotalEquity),
		TotalWalletBalance:    parseFloat64(account.TotalWalletBalance),
		TotalAvailableBalance: parseFloat64(account.TotalAvailableBalance),
		Coin:                  make([]Balance, len(account.Coin)),
	}

	for i, coin := range account.Coin {
		info.Coin[i] = Balance{
			Coin:             coin.Coin,
			WalletBalance:    parseFloat64(coin.WalletBalance),
			AvailableToTrade: parseFloat64(coin.AvailableToTrade),
			Locked:           parseFloat64(coin.TotalOrderIM) + parseFloat64(coin.TotalPositionIM),
		}
	}

	return info, nil
}
