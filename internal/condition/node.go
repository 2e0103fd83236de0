package condition

import "time"

// NoNext marks a node that terminates its chain.
const NoNext = -1

// Record is one rule definition as delivered by a rule source. Thresholds are
// pointers so that a record naming both members of a pair can be rejected.
type Record struct {
	ID          string
	PercentUp   *float64
	PriceUp     *float64
	FromUp      Basis
	PercentDown *float64
	PriceDown   *float64
	FromDown    Basis
	Interval    float64
	Next        string
}

type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Up {
		return "up"
	}
	return "down"
}

// Node is a validated rule. Next is an index into the owning Graph.
type Node struct {
	ID             string
	Up             Rule
	UpBasis        Basis
	Down           Rule
	DownBasis      Basis
	Interval       time.Duration
	Next           int
	HasPredecessor bool
}

func (n Node) HasNext() bool {
	return n.Next != NoNext
}

// PrimaryDirection is the direction whose rule triggers a trade on side.
func PrimaryDirection(side Side) Direction {
	if side == Sell {
		return Down
	}
	return Up
}

// SecondaryDirection is the direction whose rule advances the chain on side.
func SecondaryDirection(side Side) Direction {
	if side == Sell {
		return Up
	}
	return Down
}

func (n Node) Rule(dir Direction) (Rule, Basis) {
	if dir == Up {
		return n.Up, n.UpBasis
	}
	return n.Down, n.DownBasis
}

// UsesInterval reports whether any rule checked on side needs the interval
// window. A secondary rule only counts when the node links onward.
func (n Node) UsesInterval(side Side) bool {
	_, primary := n.Rule(PrimaryDirection(side))
	if primary == IntervalWindow {
		return true
	}
	if !n.HasNext() {
		return false
	}
	rule, secondary := n.Rule(SecondaryDirection(side))
	return rule.Present() && secondary == IntervalWindow
}
