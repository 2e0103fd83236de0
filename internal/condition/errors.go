package condition

import "fmt"

// ConfigurationError reports a rule set that cannot be evaluated. Rule names
// the offending setting using the rule-file key (PERCENT_UP, NEXT_LINK, ...).
type ConfigurationError struct {
	Side   Side
	NodeID string
	Rule   string
	Detail string
}

func (e *ConfigurationError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s conditions: %s", e.Side, e.Detail)
	}
	if e.Rule == "" {
		return fmt.Sprintf("%s condition %q: %s", e.Side, e.NodeID, e.Detail)
	}
	return fmt.Sprintf("%s condition %q: %s: %s", e.Side, e.NodeID, e.Rule, e.Detail)
}

func configErr(side Side, id, rule, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Side:   side,
		NodeID: id,
		Rule:   rule,
		Detail: fmt.Sprintf(format, args...),
	}
}
