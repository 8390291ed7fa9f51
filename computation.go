// Package flowgraph is the public façade of the computation graph engine: a
// Computation owns a graph of input and computed nodes and knows how to
// bring any subset of them up to date. It ties together pgraph (the graph
// store), bind (the binding resolver), nodestate (the state machine), sched
// (the scheduler), and mapnode (the per-element map operator) into the
// single entry point callers use.
package flowgraph

import (
	"fmt"
	"log"

	"github.com/hashicorp/go-multierror"

	"github.com/flowgraph/flowgraph/bind"
	"github.com/flowgraph/flowgraph/nodestate"
	"github.com/flowgraph/flowgraph/pgraph"
	"github.com/flowgraph/flowgraph/sched"
)

// Computation is a single graph of nodes and their current values. It owns
// its *pgraph.Graph exclusively — it is not safe for concurrent use from
// multiple goroutines without external synchronization.
type Computation struct {
	Name string

	// Logf is called for scheduler diagnostics (a node erroring). It
	// defaults to a closure over the standard library logger. A nil Logf is
	// a silent no-op. A plan rejected by Compute/ComputeAll is returned to
	// the caller, not logged.
	Logf func(format string, v ...interface{})

	// Debug is carried over by Copy. Nothing in this package reads it, so
	// setting it adds no log output.
	Debug bool

	graph *pgraph.Graph
}

// NewComputation builds an empty Computation.
func NewComputation(name string) *Computation {
	return &Computation{
		Name:  name,
		Logf:  func(format string, v ...interface{}) { log.Printf(format, v...) },
		graph: pgraph.NewGraph(name),
	}
}

// KeywordSource names one keyword or variadic-keyword parameter and the node
// key that feeds it.
type KeywordSource struct {
	Name   string
	Source pgraph.Key
}

// NodeOptions configures AddNode. A zero-value NodeOptions declares a plain
// input node with no value yet (State Uninitialized).
type NodeOptions struct {
	// Func is the underlying callable. Leave nil to declare a pure input
	// node instead of a computation.
	Func any

	// Args are positional-parameter sources, in call order.
	Args []pgraph.Key
	// ArgsTail are variadic positional-parameter sources, in call order.
	ArgsTail []pgraph.Key
	// Kwds are keyword-parameter sources.
	Kwds []KeywordSource
	// KwdsTail are variadic-keyword-parameter sources.
	KwdsTail []KeywordSource

	// Value, when HasValue is true, is the initial value of an input
	// node (Func == nil). Ignored for a computation.
	Value    any
	HasValue bool

	// Serialize controls the node's SerializeFlag (see Snapshot). A nil
	// Serialize defaults to true.
	Serialize *bool
}

func (o NodeOptions) serializeFlag() bool {
	if o.Serialize == nil {
		return true
	}
	return *o.Serialize
}

// AddNode declares or redeclares a node. Redeclaring an existing node
// replaces its binding (if any) and discards its previously held value —
// there is no policy flag to preserve the old value across a structural
// change.
//
// If opts.Func is non-nil and none of Args/ArgsTail/Kwds/KwdsTail is given,
// AddNode tries bind.Introspect to discover the parameter sources. A
// function whose shape Introspect can't resolve (anything beyond zero
// arguments or a single non-variadic struct argument) requires an explicit
// Args or Kwds; omitting both is bind.ErrAmbiguousBinding.
func (c *Computation) AddNode(key pgraph.Key, opts NodeOptions) error {
	var descriptor *bind.Descriptor
	if opts.Func != nil {
		spec, err := bind.Wrap(opts.Func)
		if err != nil {
			return fmt.Errorf("flowgraph: add node %v: %w", key, err)
		}
		params, err := c.buildParams(spec, opts)
		if err != nil {
			return fmt.Errorf("flowgraph: add node %v: %w", key, err)
		}
		descriptor = &bind.Descriptor{Spec: spec, Params: params, ArgsTail: opts.ArgsTail}
		if len(opts.KwdsTail) > 0 {
			descriptor.KwdsTail = make(map[string]any, len(opts.KwdsTail))
			for _, kw := range opts.KwdsTail {
				descriptor.KwdsTail[kw.Name] = kw.Source
			}
		}
	}

	if err := c.graph.RewireBinding(key, descriptor); err != nil {
		return fmt.Errorf("flowgraph: add node %v: %w", key, err)
	}

	n, _ := c.graph.GetNode(key)
	n.SerializeFlag = opts.serializeFlag()

	if descriptor == nil {
		if opts.HasValue {
			c.graph.SetValue(key, opts.Value)
			c.graph.SetState(key, nodestate.Uptodate)
		} else {
			c.graph.SetValue(key, nil)
			c.graph.SetState(key, nodestate.Uninitialized)
		}
	} else {
		c.graph.SetValue(key, nil)
		c.graph.SetState(key, nodestate.Recompute(true, n.State, predecessorStates(c.graph, key)))
	}

	c.propagate(key)
	return nil
}

func (c *Computation) buildParams(spec bind.FunctionSpecifier, opts NodeOptions) ([]bind.Param, error) {
	var params []bind.Param
	for _, src := range opts.Args {
		params = append(params, bind.Param{Role: bind.Positional, Source: src})
	}
	for _, src := range opts.ArgsTail {
		params = append(params, bind.Param{Role: bind.VariadicTail, Source: src})
	}
	for _, kw := range opts.Kwds {
		params = append(params, bind.Param{Role: bind.Keyword, Name: kw.Name, Source: kw.Source})
	}
	for _, kw := range opts.KwdsTail {
		params = append(params, bind.Param{Role: bind.VariadicKeyword, Name: kw.Name, Source: kw.Source})
	}
	if len(params) == 0 {
		discovered, err := bind.Introspect(spec)
		if err != nil {
			return nil, err
		}
		params = discovered
	}
	return params, nil
}

// Insert sets the value of a pure input node, creating it first if it
// doesn't exist, and marks it Uptodate. Inserting into a node that has a
// binding is an error — use SetStale/AddNode to change a computation node,
// or InsertFrom to force an override.
func (c *Computation) Insert(key pgraph.Key, value any) error {
	c.graph.AddVertex(key)
	n, _ := c.graph.GetNode(key)
	if n.Binding != nil {
		return fmt.Errorf("flowgraph: cannot insert into %v, it has a binding", key)
	}
	n.SerializeFlag = true
	c.graph.SetValue(key, value)
	c.graph.SetState(key, nodestate.Uptodate)
	c.propagate(key)
	return nil
}

// Assignment pairs a node key with a value for InsertMany.
type Assignment struct {
	Key   pgraph.Key
	Value any
}

// InsertMany inserts several values in order, aggregating any failures
// (e.g. a key that has a binding) with go-multierror instead of stopping at
// the first bad entry.
func (c *Computation) InsertMany(assignments []Assignment) error {
	var result *multierror.Error
	for _, a := range assignments {
		if err := c.Insert(a.Key, a.Value); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// InsertFrom copies the current state and value of each key directly from
// src into c, bypassing the "no binding" restriction Insert enforces — it's
// a restore, not an edit, so a key with a binding is simply overridden for
// this one value rather than rejected. Each copied key is then propagated
// downstream in c so dependents are marked Stale/Computable as appropriate,
// without being recomputed.
func (c *Computation) InsertFrom(src *Computation, keys []pgraph.Key) error {
	var result *multierror.Error
	for _, key := range keys {
		sn, ok := src.graph.GetNode(key)
		if !ok {
			result = multierror.Append(result, fmt.Errorf("flowgraph: insert from: %w: %v", ErrUnknownNode, key))
			continue
		}
		c.graph.AddVertex(key)
		c.graph.SetValue(key, cloneValue(sn.Value))
		c.graph.SetState(key, sn.State)
		c.propagate(key)
	}
	return result.ErrorOrNil()
}

// DeleteNode removes a node. If other nodes still read it as a predecessor,
// it is downgraded to a PLACEHOLDER (its binding and value are cleared, but
// the vertex and its successors' edges survive) rather than removed
// outright, so those successors don't lose an edge out from under them.
// Otherwise it's removed completely.
func (c *Computation) DeleteNode(key pgraph.Key) error {
	if !c.graph.HasVertex(key) {
		return ErrUnknownNode
	}
	c.graph.RewireBinding(key, nil)
	c.graph.SetValue(key, nil)
	if c.graph.HasSuccessors(key) {
		c.graph.SetState(key, nodestate.Placeholder)
		c.propagate(key)
	} else {
		c.graph.RemoveVertex(key)
	}
	return nil
}

// SetStale forces a computation node (one with a binding) back to Stale,
// and propagates that downstream. It's a no-op trigger for "recompute this
// and everything after it next time", useful when a node's inputs changed
// in a way the graph can't see (an external side effect the function reads).
func (c *Computation) SetStale(key pgraph.Key) error {
	n, ok := c.graph.GetNode(key)
	if !ok {
		return ErrUnknownNode
	}
	if n.Binding == nil {
		return fmt.Errorf("flowgraph: cannot set stale on input node %v", key)
	}
	c.graph.SetState(key, nodestate.Stale)
	c.propagate(key)
	return nil
}

// Compute brings a single node (and everything it transitively depends on)
// up to date.
func (c *Computation) Compute(key pgraph.Key) error {
	if !c.graph.HasVertex(key) {
		return ErrUnknownNode
	}
	order, err := sched.Plan(c.graph, []pgraph.Key{key})
	if err != nil {
		return err
	}
	c.execute(order)
	return nil
}

// ComputeAll brings every node in the graph up to date, continuing past any
// node that ends in Error and computing every independent sibling in the
// calc set rather than aborting the whole run on the first failure.
func (c *Computation) ComputeAll() error {
	order, err := sched.Plan(c.graph, nil)
	if err != nil {
		return err
	}
	c.execute(order)
	return nil
}

func (c *Computation) execute(order []pgraph.Key) {
	rep := sched.Execute(c.graph, order, sched.Logf(c.Logf))
	for _, key := range rep.Errored {
		n, _ := c.graph.GetNode(key)
		if se, ok := n.Value.(*sched.ErrorValue); ok {
			c.graph.SetValue(key, newErrorValue(key, se.Err))
		}
	}
}

// State returns key's current lifecycle state.
func (c *Computation) State(key pgraph.Key) (nodestate.State, error) {
	n, ok := c.graph.GetNode(key)
	if !ok {
		return 0, ErrUnknownNode
	}
	return n.State, nil
}

// Value returns key's current value (an *ErrorValue if its last computation
// failed).
func (c *Computation) Value(key pgraph.Key) (any, error) {
	n, ok := c.graph.GetNode(key)
	if !ok {
		return nil, ErrUnknownNode
	}
	return n.Value, nil
}

// Get is a convenience accessor that returns state and value together.
func (c *Computation) Get(key pgraph.Key) (nodestate.State, any, error) {
	n, ok := c.graph.GetNode(key)
	if !ok {
		return 0, nil, ErrUnknownNode
	}
	return n.State, n.Value, nil
}

// Copy returns an independent Computation: a structurally separate graph
// with every stored value deep-copied where Go can do so generically (see
// cloneValue).
func (c *Computation) Copy() *Computation {
	g := c.graph.Copy()
	for _, key := range g.Vertices() {
		n, _ := g.GetNode(key)
		g.SetValue(key, cloneValue(n.Value))
	}
	return &Computation{Name: c.Name, Logf: c.Logf, Debug: c.Debug, graph: g}
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
