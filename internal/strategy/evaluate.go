package strategy

import "autotrader/internal/condition"

// Evaluate checks the active nodes of chain against the snapshot in
// declaration order and returns the first outcome that fires. A node's primary
// rule is checked before its secondary rule, and a firing primary rule ends
// evaluation. Evaluate does not modify chain.
func Evaluate(chain *Chain, snap MarketSnapshot) Outcome {
	graph := chain.Graph()
	side := graph.Side()
	primaryDir := condition.PrimaryDirection(side)
	secondaryDir := condition.SecondaryDirection(side)

	for i := 0; i < graph.Len(); i++ {
		if !chain.IsActive(i) {
			continue
		}
		node := graph.Node(i)

		var window bounds
		if node.UsesInterval(side) && snap.Window != nil {
			window.high, window.low = snap.Window.ExtremesWithin(node.Interval, snap.Timestamp, snap.Price)
		} else {
			window.high, window.low = snap.Price, snap.Price
		}

		rule, basis := node.Rule(primaryDir)
		if out, fired := check(rule, basis, primaryDir, snap, window); fired {
			out.Kind = Trade
			out.Action = ActionFor(side)
			out.Node, out.NodeID = i, node.ID
			out.Next = condition.NoNext
			return out
		}

		if !node.HasNext() {
			continue
		}
		rule, basis = node.Rule(secondaryDir)
		if !rule.Present() {
			continue
		}
		if out, fired := check(rule, basis, secondaryDir, snap, window); fired {
			out.Kind = Advance
			out.Action = Hold
			out.Node, out.NodeID = i, node.ID
			out.Next, out.NextID = node.Next, graph.Node(node.Next).ID
			return out
		}
	}
	return Outcome{Kind: NoAction, Action: Hold, Node: condition.NoNext, Next: condition.NoNext}
}

type bounds struct {
	high float64
	low  float64
}

// reference picks the baseline a rule compares against: up moves are measured
// from a low, down moves from a high.
func reference(dir condition.Direction, basis condition.Basis, snap MarketSnapshot, window bounds) float64 {
	if dir == condition.Up {
		if basis == condition.IntervalWindow {
			return window.low
		}
		return snap.Extremes.Min()
	}
	if basis == condition.IntervalWindow {
		return window.high
	}
	return snap.Extremes.Max()
}

func check(rule condition.Rule, basis condition.Basis, dir condition.Direction, snap MarketSnapshot, window bounds) (Outcome, bool) {
	if !rule.Present() {
		return Outcome{}, false
	}
	ref := reference(dir, basis, snap, window)
	out := Outcome{
		Direction: dir,
		Rule:      rule,
		Basis:     basis,
		Reference: ref,
	}
	if dir == condition.Up {
		out.Threshold = rule.UpThreshold(ref)
		return out, rule.Up(snap.Price, ref)
	}
	out.Threshold = rule.DownThreshold(ref)
	return out, rule.Down(snap.Price, ref)
}
