package flowgraph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowgraph/flowgraph/pgraph"
)

// ErrUnknownNode is returned by any accessor or mutator given a key that
// isn't a node in the graph.
var ErrUnknownNode = errors.New("flowgraph: unknown node")

// ErrorValue is the value recorded on a node that ended in the Error state.
// It carries the original error, a best-effort stack trace captured at the
// point the scheduler caught it, the key of the node that failed, and a
// unique ID so that two failures of the same function with the same message
// at different times can still be told apart in logs.
type ErrorValue struct {
	Err    error
	Trace  string
	Source pgraph.Key
	ID     uuid.UUID
}

// Error implements the error interface.
func (e *ErrorValue) Error() string {
	if e == nil || e.Err == nil {
		return "<nil error value>"
	}
	return fmt.Sprintf("%v: %v", e.Source, e.Err)
}

// Unwrap exposes the underlying error to errors.Is/errors.As.
func (e *ErrorValue) Unwrap() error { return e.Err }

// newErrorValue builds an ErrorValue from an error caught during execution,
// best-effort capturing a stack trace if err was produced via
// github.com/pkg/errors (which bind.Invoke's panic-recovery path does).
func newErrorValue(source pgraph.Key, err error) *ErrorValue {
	return &ErrorValue{
		Err:    err,
		Trace:  fmt.Sprintf("%+v", err),
		Source: source,
		ID:     uuid.New(),
	}
}
