package plan

import (
	"fmt"
	"sync/atomic"

	"github.com/born-ml/xform/internal/errs"
)

// State is the lifecycle stage of a plan.
type State int32

// Plan states. A plan moves forward only; Released is terminal.
const (
	Uninitialized State = iota
	Configured
	Ready
	Released
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Configured:
		return "configured"
	case Ready:
		return "ready"
	case Released:
		return "released"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Lifecycle tracks a plan's state.
type Lifecycle struct {
	state atomic.Int32
}

// State returns the current state.
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Advance moves from one state to the next. Reports false if the plan was
// not in from.
func (l *Lifecycle) Advance(from, to State) bool {
	return l.state.CompareAndSwap(int32(from), int32(to))
}

// Release marks the plan released and reports whether it was live before.
func (l *Lifecycle) Release() bool {
	return State(l.state.Swap(int32(Released))) != Released
}

// CheckReady returns an error unless the plan is Ready.
func (l *Lifecycle) CheckReady(op string) error {
	if s := l.State(); s != Ready {
		return errs.New(errs.KindInvalidParameter, op, "plan is %s, not ready", s)
	}
	return nil
}
