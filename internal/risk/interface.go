package risk

import "context"

// Gatekeeper defines the admission control surface used by the orchestrator
type Gatekeeper interface {
	// CanTrade evaluates a proposed trade without reserving capacity
	CanTrade(ctx context.Context, req TradeRequest) Decision

	// Admit evaluates and, when allowed, records the trade under one lock
	Admit(ctx context.Context, req TradeRequest) Decision

	// RecordTrade updates counters after an execution
	RecordTrade(req TradeRequest)

	// RecordPnL accumulates realized P&L for today
	RecordPnL(pnl float64)
}

var _ Gatekeeper = (*Gate)(nil)
