package optimizer

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration    = errors.New("configuration error")
	ErrPlanConstruction = errors.New("plan construction error")
	ErrRecompilation    = errors.New("recompilation error")
	ErrSearchExhaustion = errors.New("no feasible plan")
	ErrCorrectness      = errors.New("plan correctness violation")
)

// Error is a failure to optimize one parfor loop.  errors.Is matches
// both its Kind and the underlying error.
type Error struct {
	Kind   error
	LoopID int64
	Phase  string
	Err    error
}

func newError(kind error, id int64, phase string, err error) *Error {
	return &Error{Kind: kind, LoopID: id, Phase: phase, Err: err}
}

func (e *Error) Error() string {
	return fmt.Sprintf("parfor(%d): %s: %s", e.LoopID, e.Phase, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
