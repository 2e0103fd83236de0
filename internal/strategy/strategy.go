package strategy

import (
	"time"

	"autotrader/internal/condition"
	"autotrader/internal/md"
)

type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
)

// ActionFor is the trade a chain of the given side executes.
func ActionFor(side condition.Side) Action {
	if side == condition.Sell {
		return Sell
	}
	return Buy
}

type MarketSnapshot struct {
	Timestamp time.Time
	Price     float64
	Window    *md.Window
	Extremes  md.Extremes
}

type OutcomeKind int

const (
	NoAction OutcomeKind = iota
	Trade
	Advance
)

func (k OutcomeKind) String() string {
	switch k {
	case Trade:
		return "trade"
	case Advance:
		return "advance"
	default:
		return "no_action"
	}
}

// Outcome is the single result of evaluating one chain for one tick. For
// Trade and Advance it names the firing node and the comparison that fired.
type Outcome struct {
	Kind      OutcomeKind
	Action    Action
	Node      int
	NodeID    string
	Next      int
	NextID    string
	Direction condition.Direction
	Rule      condition.Rule
	Basis     condition.Basis
	Reference float64
	Threshold float64
}

func (o Outcome) Reason() string {
	if o.Kind == NoAction {
		return "no_signal"
	}
	return o.NodeID + ":" + o.Direction.String() + ":" + o.Rule.String() + ":" + o.Basis.String()
}
