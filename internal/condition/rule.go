package condition

import (
	"fmt"
	"strings"
)

type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Basis selects the reference price a rule is measured from.
type Basis int

const (
	BasisUnset Basis = iota
	IntervalWindow
	SinceLastTrade
)

func (b Basis) String() string {
	switch b {
	case IntervalWindow:
		return "INTERVAL_PRICE"
	case SinceLastTrade:
		return "TRADE_PRICE"
	default:
		return "UNSET"
	}
}

// ParseBasis accepts the rule-file spellings INTERVAL_PRICE and TRADE_PRICE.
func ParseBasis(value string) (Basis, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "INTERVAL_PRICE", "INTERVAL":
		return IntervalWindow, nil
	case "TRADE_PRICE", "TRADE":
		return SinceLastTrade, nil
	case "":
		return BasisUnset, nil
	default:
		return BasisUnset, fmt.Errorf("invalid basis %q", value)
	}
}

type RuleKind int

const (
	RuleNone RuleKind = iota
	Percent
	Absolute
)

// Rule is either a percentage move or an absolute price move. The zero value
// is the absent rule.
type Rule struct {
	Kind  RuleKind
	Value float64
}

func PercentRule(p float64) Rule  { return Rule{Kind: Percent, Value: p} }
func AbsoluteRule(a float64) Rule { return Rule{Kind: Absolute, Value: a} }

func (r Rule) Present() bool {
	return r.Kind != RuleNone
}

// UpThreshold is the price at or above which an up-rule fires.
func (r Rule) UpThreshold(reference float64) float64 {
	switch r.Kind {
	case Percent:
		return reference * (1 + r.Value/100)
	case Absolute:
		return reference + r.Value
	}
	return reference
}

// DownThreshold is the price at or below which a down-rule fires.
func (r Rule) DownThreshold(reference float64) float64 {
	switch r.Kind {
	case Percent:
		return reference * (1 - r.Value/100)
	case Absolute:
		return reference - r.Value
	}
	return reference
}

// Up reports whether price has risen far enough above reference.
func (r Rule) Up(price, reference float64) bool {
	switch r.Kind {
	case Percent:
		return price >= reference*(1+r.Value/100)
	case Absolute:
		return price >= reference+r.Value
	}
	return false
}

// Down reports whether price has fallen far enough below reference.
func (r Rule) Down(price, reference float64) bool {
	switch r.Kind {
	case Percent:
		return price <= reference*(1-r.Value/100)
	case Absolute:
		return reference-price >= r.Value
	}
	return false
}

func (r Rule) String() string {
	switch r.Kind {
	case Percent:
		return fmt.Sprintf("percent(%g)", r.Value)
	case Absolute:
		return fmt.Sprintf("absolute(%g)", r.Value)
	default:
		return "none"
	}
}
