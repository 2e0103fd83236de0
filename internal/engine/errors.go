package engine

import (
	"errors"
	"fmt"

	"autotrader/internal/condition"
	"autotrader/internal/strategy"
)

var (
	// ErrSellFloorBreached is terminal: the loop stops after the guard fires.
	ErrSellFloorBreached = errors.New("sell floor breached")
	ErrNotStarted        = errors.New("engine not started")
)

// SampleError reports a price source failure for one tick. The tick left all
// evaluation state untouched.
type SampleError struct {
	Mode Mode
	Err  error
}

func (e *SampleError) Error() string {
	return fmt.Sprintf("sample price in %s: %v", e.Mode, e.Err)
}

func (e *SampleError) Unwrap() error {
	return e.Err
}

// ExecutionError reports a failed buy or sell. No mode flip or reset happened.
type ExecutionError struct {
	Mode      Mode
	Action    strategy.Action
	Chain     condition.Side
	Node      string
	Price     float64
	Reference float64
	Threshold float64
	Reason    string
	Err       error
}

func (e *ExecutionError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("%s at %g in %s failed (%s): %v", e.Action, e.Price, e.Mode, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s at %g in %s failed (%s chain node %q reference %g threshold %g): %v",
		e.Action, e.Price, e.Mode, e.Chain, e.Node, e.Reference, e.Threshold, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
