package bracket

import (
	"time"

	"github.com/ducminhle1904/tradeguard/pkg/types"
)

// Status is the lifecycle state of a bracket order
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusTriggered Status = "TRIGGERED"
	StatusFilled    Status = "FILLED"
	StatusCancelled Status = "CANCELLED"
)

// Trigger names why a bracket fired
type Trigger string

const (
	TriggerStopLoss   Trigger = "stop_loss"
	TriggerTakeProfit Trigger = "take_profit"
)

// Order is a protective stop-loss/take-profit pair attached to an open position
type Order struct {
	ID         string       `json:"id"`
	Symbol     string       `json:"symbol"`
	Market     types.Market `json:"market,omitempty"`
	EntryPrice float64      `json:"entry_price"`
	Quantity   float64      `json:"quantity"`
	Side       types.Side   `json:"side"`

	// Explicit prices win over percentages; a trailing stop writes StopLossPrice
	StopLossPrice   float64 `json:"stop_loss_price,omitempty"`
	StopLossPct     float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPrice float64 `json:"take_profit_price,omitempty"`
	TakeProfitPct   float64 `json:"take_profit_pct,omitempty"`

	TrailingStopPct       float64 `json:"trailing_stop_pct,omitempty"`
	TrailingActivationPct float64 `json:"trailing_activation_pct,omitempty"`
	HighestPrice          float64 `json:"highest_price,omitempty"` // BUY only
	LowestPrice           float64 `json:"lowest_price,omitempty"`  // SELL only

	Status        Status    `json:"status"`
	TriggerReason Trigger   `json:"trigger_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	TriggeredAt   time.Time `json:"triggered_at,omitempty"`
	ClosedAt      time.Time `json:"closed_at,omitempty"`

	// Exit details, filled once the bracket is closed
	ExitPrice   float64 `json:"exit_price,omitempty"`
	ExitOrderID string  `json:"exit_order_id,omitempty"`
	ExitError   string  `json:"exit_error,omitempty"`
	RealizedPnL float64 `json:"realized_pnl,omitempty"`
}

// StopLoss returns the effective stop price, 0 when none is configured
func (o *Order) StopLoss() float64 {
	if o.StopLossPrice > 0 {
		return o.StopLossPrice
	}
	if o.StopLossPct <= 0 || o.EntryPrice <= 0 {
		return 0
	}
	if o.Side == types.SideBuy {
		return o.EntryPrice * (1 - o.StopLossPct)
	}
	return o.EntryPrice * (1 + o.StopLossPct)
}

// TakeProfit returns the effective target price, 0 when none is configured
func (o *Order) TakeProfit() float64 {
	if o.TakeProfitPrice > 0 {
		return o.TakeProfitPrice
	}
	if o.TakeProfitPct <= 0 || o.EntryPrice <= 0 {
		return 0
	}
	if o.Side == types.SideBuy {
		return o.EntryPrice * (1 + o.TakeProfitPct)
	}
	return o.EntryPrice * (1 - o.TakeProfitPct)
}

// profitPct is the unrealized return at price, positive in the position's favour
func (o *Order) profitPct(price float64) float64 {
	if o.Side == types.SideBuy {
		return (price - o.EntryPrice) / o.EntryPrice
	}
	return (o.EntryPrice - price) / o.EntryPrice
}

// updateTrailingStop tracks the running extreme and ratchets the stop. It
// returns the new stop and true only when the stop moved.
func (o *Order) updateTrailingStop(price float64) (float64, bool) {
	if o.TrailingStopPct <= 0 {
		return 0, false
	}

	if o.Side == types.SideBuy {
		if o.HighestPrice == 0 || price > o.HighestPrice {
			o.HighestPrice = price
		}
	} else {
		if o.LowestPrice == 0 || price < o.LowestPrice {
			o.LowestPrice = price
		}
	}

	if o.TrailingActivationPct > 0 && o.profitPct(price) < o.TrailingActivationPct {
		return 0, false
	}

	current := o.StopLoss()
	if o.Side == types.SideBuy {
		candidate := o.HighestPrice * (1 - o.TrailingStopPct)
		if candidate > current {
			o.StopLossPrice = candidate
			return candidate, true
		}
		return 0, false
	}

	candidate := o.LowestPrice * (1 + o.TrailingStopPct)
	if current == 0 || candidate < current {
		o.StopLossPrice = candidate
		return candidate, true
	}
	return 0, false
}

// checkTriggered reports which leg, if any, fires at price
func (o *Order) checkTriggered(price float64) (Trigger, bool) {
	stop := o.StopLoss()
	target := o.TakeProfit()

	if o.Side == types.SideBuy {
		if stop > 0 && price <= stop {
			return TriggerStopLoss, true
		}
		if target > 0 && price >= target {
			return TriggerTakeProfit, true
		}
		return "", false
	}

	if stop > 0 && price >= stop {
		return TriggerStopLoss, true
	}
	if target > 0 && price <= target {
		return TriggerTakeProfit, true
	}
	return "", false
}

// PnL returns the side-aware realized P&L and percentage return of an exit at price
func (o *Order) PnL(price float64) (float64, float64) {
	diff := price - o.EntryPrice
	if o.Side == types.SideSell {
		diff = -diff
	}
	pct := 0.0
	if o.EntryPrice > 0 {
		pct = diff / o.EntryPrice * 100
	}
	return diff * o.Quantity, pct
}
