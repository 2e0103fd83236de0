package risk

import (
	"log/slog"

	"autotrader/internal/strategy"
)

// FloorContext describes the tick being checked against the sell floor.
type FloorContext struct {
	Price   float64
	Holding bool
}

// Verdict is the sell-floor decision for one tick. Halt means the process
// stops trading; ForceSell means the held position is liquidated first.
type Verdict struct {
	Halt      bool
	ForceSell bool
	Intent    strategy.Action
	Reason    string
}

// Gate guards against prices under a configured floor. A zero floor disables
// the guard.
type Gate struct {
	SellFloor float64
}

func (g Gate) Enabled() bool {
	return g.SellFloor > 0
}

func (g Gate) Evaluate(ctx FloorContext) Verdict {
	if !g.Enabled() || ctx.Price >= g.SellFloor {
		return Verdict{Intent: strategy.Hold, Reason: "above_floor"}
	}

	slog.Warn("price below sell floor", "price", ctx.Price, "floor", g.SellFloor, "holding", ctx.Holding)
	if !ctx.Holding {
		return Verdict{Halt: true, Intent: strategy.Hold, Reason: "sell_floor_no_position"}
	}
	return Verdict{Halt: true, ForceSell: true, Intent: strategy.Sell, Reason: "sell_floor_breached"}
}
