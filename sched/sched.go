// Package sched is the scheduler component: it selects which nodes need to
// run for a given compute request, orders them topologically, and drives
// each one through the binding resolver and the underlying function,
// recording the resulting state and value back onto the graph. It follows
// the familiar "resolve inputs, invoke, fold errors, never stop on the first
// one" driver shape, single-threaded and operating over pgraph.Graph.
package sched

import (
	"fmt"

	"github.com/flowgraph/flowgraph/bind"
	"github.com/flowgraph/flowgraph/nodestate"
	"github.com/flowgraph/flowgraph/pgraph"
)

// ErrUnresolvedPlaceholder is returned by Plan when a node in the requested
// calc-set is still a PLACEHOLDER — it was referenced by a binding but was
// never declared with AddNode or given a value with Insert.
var ErrUnresolvedPlaceholder = fmt.Errorf("sched: placeholder node has no declaration")

// ErrorValue is the value stored on a node that ended in the Error state: it
// carries the error the bound function returned or panicked with.
type ErrorValue struct {
	Err error
}

// Error implements the error interface so an ErrorValue can be passed around
// and compared like any other Go error.
func (e *ErrorValue) Error() string {
	if e == nil || e.Err == nil {
		return "<nil error value>"
	}
	return e.Err.Error()
}

// Unwrap exposes the underlying error to errors.Is/errors.As.
func (e *ErrorValue) Unwrap() error { return e.Err }

// Logf is a printf-style logging hook. A nil Logf is a silent no-op.
type Logf func(format string, v ...interface{})

// Plan computes the ordered calc-set for a compute request. If targets is
// empty, every node in the graph is considered. Otherwise the calc-set is
// the union of each target and its transitive ancestors, so that only the
// sub-graph actually feeding the targets is considered. A bound node that is
// already Uptodate is dropped from the result: propagate already keeps a
// node's state consistent with its predecessors' whenever an edit or value
// change happens upstream of it, so an Uptodate bound node has nothing left
// to run and re-invoking it would just recompute the same value. The result
// is a topological order over what remains, tie-broken by declaration order.
func Plan(g *pgraph.Graph, targets []pgraph.Key) ([]pgraph.Key, error) {
	var subset map[pgraph.Key]bool
	if len(targets) > 0 {
		subset = make(map[pgraph.Key]bool)
		for _, t := range targets {
			if !g.HasVertex(t) {
				return nil, fmt.Errorf("sched: unknown target %v", t)
			}
			subset[t] = true
			for a := range g.Ancestors(t) {
				subset[a] = true
			}
		}
	}

	for _, key := range g.Vertices() {
		if subset != nil && !subset[key] {
			continue
		}
		n, _ := g.GetNode(key)
		if n.State == nodestate.Placeholder && n.Binding == nil {
			return nil, fmt.Errorf("%w: %v", ErrUnresolvedPlaceholder, key)
		}
	}

	order, ok := g.TopologicalSortSubset(subset)
	if !ok {
		return nil, fmt.Errorf("sched: graph contains a cycle")
	}

	calc := order[:0]
	for _, key := range order {
		n, _ := g.GetNode(key)
		if n.Binding != nil && n.State == nodestate.Uptodate {
			continue // already reflects its current inputs, nothing to run
		}
		calc = append(calc, key)
	}
	return calc, nil
}

// Report summarizes the outcome of an Execute call.
type Report struct {
	Executed []pgraph.Key
	Skipped  []pgraph.Key
	Errored  []pgraph.Key
}

// Execute runs every node in order that is ready to run (Computable),
// skipping any node whose predecessors aren't all Uptodate (Stale), and
// records the resulting state/value on the graph as it goes. Because order
// is a topological order, a node's predecessors have already been updated
// by the time it's visited, so a failed predecessor naturally leaves its
// successors Stale without any special-cased "stop propagation" step.
func Execute(g *pgraph.Graph, order []pgraph.Key, logf Logf) Report {
	var rep Report
	log := logf
	if log == nil {
		log = func(string, ...interface{}) {}
	}

	for _, key := range order {
		n, ok := g.GetNode(key)
		if !ok || n.Binding == nil {
			continue // pure input or placeholder: state only changes via explicit actions
		}

		preds := predecessorStates(g, key)
		next := nodestate.Recompute(true, n.State, preds)
		g.SetState(key, next)

		if next != nodestate.Computable {
			rep.Skipped = append(rep.Skipped, key)
			continue
		}

		lookup := func(source any) (any, bool) {
			sn, ok := g.GetNode(source)
			if !ok {
				return nil, false
			}
			return sn.Value, true
		}

		call, err := bind.Resolve(n.Binding, lookup)
		if err == nil {
			var result any
			result, err = bind.Invoke(n.Binding.Spec, call)
			if err == nil {
				g.SetValue(key, result)
				g.SetState(key, nodestate.Uptodate)
				rep.Executed = append(rep.Executed, key)
				continue
			}
		}

		log("sched: node %v failed: %v", key, err)
		g.SetValue(key, &ErrorValue{Err: err})
		g.SetState(key, nodestate.Error)
		rep.Errored = append(rep.Errored, key)
	}
	return rep
}

func predecessorStates(g *pgraph.Graph, key pgraph.Key) []nodestate.State {
	preds := g.Predecessors(key)
	states := make([]nodestate.State, len(preds))
	for i, p := range preds {
		pn, _ := g.GetNode(p)
		states[i] = pn.State
	}
	return states
}
