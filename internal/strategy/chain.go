package strategy

import "autotrader/internal/condition"

// Chain pairs an immutable graph with the activation flags the engine owns.
// Only the tick loop mutates a Chain.
type Chain struct {
	graph  *condition.Graph
	active []bool
}

// NewChain returns a chain with entry points active.
func NewChain(graph *condition.Graph) *Chain {
	c := &Chain{
		graph:  graph,
		active: make([]bool, graph.Len()),
	}
	c.Reset()
	return c
}

func (c *Chain) Graph() *condition.Graph {
	return c.graph
}

func (c *Chain) Side() condition.Side {
	return c.graph.Side()
}

// Reset activates every node without a predecessor and makes the rest dormant.
func (c *Chain) Reset() {
	for i := range c.active {
		c.active[i] = !c.graph.Node(i).HasPredecessor
	}
}

// Advance makes from dormant and its successor eligible. It returns the
// successor index, or condition.NoNext if from terminates its chain.
func (c *Chain) Advance(from int) int {
	next := c.graph.Node(from).Next
	if next == condition.NoNext {
		return condition.NoNext
	}
	c.active[from] = false
	c.active[next] = true
	return next
}

func (c *Chain) IsActive(i int) bool {
	return c.active[i]
}

func (c *Chain) ActiveIDs() []string {
	ids := make([]string, 0, len(c.active))
	for i, on := range c.active {
		if on {
			ids = append(ids, c.graph.Node(i).ID)
		}
	}
	return ids
}
