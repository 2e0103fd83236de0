package condition

import (
	"math"
	"time"
)

// Graph is an immutable set of linked nodes for one side. Nodes are kept in
// declaration order and address each other by index.
type Graph struct {
	side  Side
	nodes []Node
	index map[string]int
}

// Build validates records and links them into a graph. Links are resolved
// after every node exists, so a record may name a successor declared later.
func Build(side Side, records []Record) (*Graph, error) {
	if side != Buy && side != Sell {
		return nil, &ConfigurationError{Side: side, Detail: "unknown side"}
	}
	if len(records) == 0 {
		return nil, configErr(side, "", "", "no %s conditions", side)
	}

	g := &Graph{
		side:  side,
		nodes: make([]Node, 0, len(records)),
		index: make(map[string]int, len(records)),
	}
	for _, rec := range records {
		if rec.ID == "" {
			return nil, configErr(side, "", "", "condition with empty id")
		}
		if _, dup := g.index[rec.ID]; dup {
			return nil, configErr(side, rec.ID, "", "duplicate condition id")
		}
		node, err := newNode(side, rec)
		if err != nil {
			return nil, err
		}
		g.index[rec.ID] = len(g.nodes)
		g.nodes = append(g.nodes, node)
	}

	if err := g.link(records); err != nil {
		return nil, err
	}
	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func newNode(side Side, rec Record) (Node, error) {
	node := Node{ID: rec.ID, Next: NoNext}

	up, err := pickRule(side, rec.ID, "UP", rec.PercentUp, rec.PriceUp)
	if err != nil {
		return Node{}, err
	}
	down, err := pickRule(side, rec.ID, "DOWN", rec.PercentDown, rec.PriceDown)
	if err != nil {
		return Node{}, err
	}
	node.Up, node.UpBasis = up, rec.FromUp
	node.Down, node.DownBasis = down, rec.FromDown

	if err := checkBasis(side, rec.ID, "FROM_UP", node.Up, node.UpBasis); err != nil {
		return Node{}, err
	}
	if err := checkBasis(side, rec.ID, "FROM_DOWN", node.Down, node.DownBasis); err != nil {
		return Node{}, err
	}

	primary, _ := node.Rule(PrimaryDirection(side))
	if !primary.Present() {
		if side == Buy {
			return Node{}, configErr(side, rec.ID, "PERCENT_UP", "no PRICE_UP or PERCENT_UP in condition")
		}
		return Node{}, configErr(side, rec.ID, "PERCENT_DOWN", "no PRICE_DOWN or PERCENT_DOWN in condition")
	}

	secondary, secondaryBasis := node.Rule(SecondaryDirection(side))
	pairSet := secondary.Present() || secondaryBasis != BasisUnset
	if pairSet && rec.Next == "" {
		return Node{}, configErr(side, rec.ID, "NEXT_LINK", "no NEXT_LINK provided even though next link conditions are provided")
	}
	if !pairSet && rec.Next != "" {
		return Node{}, configErr(side, rec.ID, "NEXT_LINK", "NEXT_LINK provided but no next link conditions are provided")
	}

	if rec.Interval < 0 || math.IsNaN(rec.Interval) || math.IsInf(rec.Interval, 0) {
		return Node{}, configErr(side, rec.ID, "INTERVAL", "invalid interval %v", rec.Interval)
	}
	// Past this the conversion to time.Duration wraps negative.
	if rec.Interval*float64(time.Second) >= float64(math.MaxInt64) {
		return Node{}, configErr(side, rec.ID, "INTERVAL", "interval %v seconds is too large", rec.Interval)
	}
	needsInterval := node.UpBasis == IntervalWindow || node.DownBasis == IntervalWindow
	if needsInterval && rec.Interval <= 0 {
		return Node{}, configErr(side, rec.ID, "INTERVAL", "interval required when a rule uses INTERVAL_PRICE")
	}
	if !needsInterval && rec.Interval > 0 {
		return Node{}, configErr(side, rec.ID, "INTERVAL", "interval assigned but the condition only uses TRADE_PRICE")
	}
	node.Interval = time.Duration(rec.Interval * float64(time.Second))
	return node, nil
}

func pickRule(side Side, id, suffix string, percent, price *float64) (Rule, error) {
	percentKey, priceKey := "PERCENT_"+suffix, "PRICE_"+suffix
	if percent != nil && price != nil {
		return Rule{}, configErr(side, id, percentKey, "both %s and %s present", percentKey, priceKey)
	}
	if percent != nil {
		p := *percent
		if !(p > 0) || math.IsInf(p, 0) {
			return Rule{}, configErr(side, id, percentKey, "must be a positive number, got %v", p)
		}
		if suffix == "DOWN" && p >= 100 {
			return Rule{}, configErr(side, id, percentKey, "must be below 100, got %v", p)
		}
		return PercentRule(p), nil
	}
	if price != nil {
		a := *price
		if !(a > 0) || math.IsInf(a, 0) {
			return Rule{}, configErr(side, id, priceKey, "must be a positive number, got %v", a)
		}
		return AbsoluteRule(a), nil
	}
	return Rule{}, nil
}

func checkBasis(side Side, id, key string, rule Rule, basis Basis) error {
	if rule.Present() && basis == BasisUnset {
		return configErr(side, id, key, "required when a threshold is set")
	}
	if !rule.Present() && basis != BasisUnset {
		return configErr(side, id, key, "set without a matching threshold")
	}
	return nil
}

func (g *Graph) link(records []Record) error {
	for i, rec := range records {
		if rec.Next == "" {
			continue
		}
		if rec.Next == rec.ID {
			return configErr(g.side, rec.ID, "NEXT_LINK", "NEXT_LINK cannot be itself")
		}
		next, ok := g.index[rec.Next]
		if !ok {
			return configErr(g.side, rec.ID, "NEXT_LINK", "no condition with the id %q", rec.Next)
		}
		g.nodes[i].Next = next
	}
	for _, node := range g.nodes {
		if node.HasNext() {
			g.nodes[node.Next].HasPredecessor = true
		}
	}
	return nil
}

// detectCycles walks next links from every node. Any walk that returns to its
// origin, or runs longer than the node count, is a cycle.
func (g *Graph) detectCycles() error {
	for origin := range g.nodes {
		cur := g.nodes[origin].Next
		for steps := 0; cur != NoNext; steps++ {
			if cur == origin || steps > len(g.nodes) {
				return configErr(g.side, g.nodes[origin].ID, "NEXT_LINK", "looping trade conditions")
			}
			cur = g.nodes[cur].Next
		}
	}
	return nil
}

func (g *Graph) Side() Side {
	return g.side
}

func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) Node(i int) Node {
	return g.nodes[i]
}

// Nodes returns a copy of the nodes in declaration order.
func (g *Graph) Nodes() []Node {
	out := make([]Node, len(g.nodes))
	copy(out, g.nodes)
	return out
}

func (g *Graph) Index(id string) (int, bool) {
	i, ok := g.index[id]
	return i, ok
}

// EntryPoints lists the nodes no other node links to, in declaration order.
func (g *Graph) EntryPoints() []int {
	entries := make([]int, 0, len(g.nodes))
	for i, node := range g.nodes {
		if !node.HasPredecessor {
			entries = append(entries, i)
		}
	}
	return entries
}

func (g *Graph) MaxInterval() time.Duration {
	var longest time.Duration
	for _, node := range g.nodes {
		if node.Interval > longest {
			longest = node.Interval
		}
	}
	return longest
}

// MaxInterval returns the longest interval across graphs; nil graphs are skipped.
func MaxInterval(graphs ...*Graph) time.Duration {
	var longest time.Duration
	for _, g := range graphs {
		if g == nil {
			continue
		}
		if d := g.MaxInterval(); d > longest {
			longest = d
		}
	}
	return longest
}
