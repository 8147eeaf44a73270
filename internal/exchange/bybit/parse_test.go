package bybit

import (
	"testing"

	bybit_api "github.com/bybit-exchange/bybit.go.api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickerResponse(t *testing.T) {
	resp := &bybit_api.ServerResponse{
		RetCode: 0,
		Result: map[string]interface{}{
			"category": "spot",
			"list": []map[string]string{
				{"symbol": "BTCUSDT", "lastPrice": "65000.5", "bid1Price": "65000", "ask1Price": "65001"},
			},
		},
	}

	ticker, err := parseTickerResponse(resp)
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", ticker.Symbol)
	assert.Equal(t, 65000.5, ticker.LastPrice)
	assert.Equal(t, 65001.0, ticker.Ask)
}

func TestParseErrors(t *testing.T) {
	_, err := parseTickerResponse("not a response")
	assert.Error(t, err)

	_, err = parseTickerResponse(&bybit_api.ServerResponse{RetCode: ErrCodeRateLimitExceeded, RetMsg: "too many visits"})
	assert.True(t, IsRateLimitError(err))
	assert.True(t, IsRetryableError(err))

	_, err = parseTickerResponse(&bybit_api.ServerResponse{Result: map[string]interface{}{"list": []interface{}{}}})
	assert.Error(t, err)
}

func TestParseWalletAndOrders(t *testing.T) {
	wallet, err := parseWalletResponse(&bybit_api.ServerResponse{Result: map[string]interface{}{
		"list": []map[string]interface{}{{
			"accountType":           "UNIFIED",
			"totalEquity":           "1500.25",
			"totalAvailableBalance": "1000",
			"coin": []map[string]string{
				{"coin": "USDT", "walletBalance": "1500", "availableToTrade": "1000", "totalOrderIM": "10", "totalPositionIM": "5"},
			},
		}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 1500.25, wallet.TotalEquity)
	require.Len(t, wallet.Coin, 1)
	assert.Equal(t, 15.0, wallet.Coin[0].Locked)

	orders, err := parseOrdersResponse(&bybit_api.ServerResponse{Result: map[string]interface{}{
		"list": []map[string]string{
			{"orderId": "1", "symbol": "ETHUSDT", "side": "Sell", "qty": "0.5", "price": "3000", "orderStatus": "New", "orderType": "Limit", "createdTime": "1700000000000"},
		},
	}})
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, OrderSideSell, orders[0].Side)
	assert.Equal(t, 0.5, orders[0].Qty)
	assert.Equal(t, int64(1700000000000), orders[0].CreatedTime.UnixMilli())

	order, err := parseOrderResponse(&bybit_api.ServerResponse{Result: map[string]string{"orderId": "42", "orderLinkId": "exit-1"}})
	require.NoError(t, err)
	assert.Equal(t, "42", order.OrderID)

	_, err = parseOrderResponse(&bybit_api.ServerResponse{Result: map[string]string{}})
	assert.Error(t, err)
}

func TestPlaceOrderParams(t *testing.T) {
	assert.Error(t, PlaceOrderParams{Symbol: "BTCUSDT", Side: OrderSideBuy, OrderType: OrderTypeLimit, Qty: "1"}.validate())

	p := PlaceOrderParams{Symbol: "BTCUSDT", Side: OrderSideBuy, OrderType: OrderTypeLimit, Qty: "1", Price: "100", OrderLinkID: "abc"}
	require.NoError(t, p.validate())
	params := p.apiParams("linear")
	assert.Equal(t, "linear", params["category"])
	assert.Equal(t, "GTC", params["timeInForce"])
	assert.Equal(t, "abc", params["orderLinkId"])
	assert.Equal(t, "0.015", FormatFloat(0.015))
}

func TestWrapAPIError(t *testing.T) {
	assert.NoError(t, WrapAPIError("ticker", nil))

	wrapped := WrapAPIError("place order", NewBybitError(ErrCodeInsufficientBalance, "insufficient"))
	assert.True(t, IsInsufficientBalanceError(wrapped))
	assert.Contains(t, wrapped.Error(), "place order")

	plain := WrapAPIError("ticker", assert.AnError)
	assert.ErrorIs(t, plain, assert.AnError)
	assert.False(t, IsRetryableError(plain))
}
