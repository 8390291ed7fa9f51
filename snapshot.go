package flowgraph

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/hashicorp/go-multierror"

	"github.com/flowgraph/flowgraph/bind"
	"github.com/flowgraph/flowgraph/nodestate"
	"github.com/flowgraph/flowgraph/pgraph"
)

// Row is one line of Table's tabular snapshot of the graph.
type Row struct {
	Key   pgraph.Key
	State nodestate.State
	Value any
}

// Table returns one Row per node, in declaration order, as a plain slice
// rather than a dataframe — nothing else in this module needs one.
func (c *Computation) Table() []Row {
	keys := c.graph.Vertices()
	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		n, _ := c.graph.GetNode(key)
		rows = append(rows, Row{Key: key, State: n.State, Value: n.Value})
	}
	return rows
}

// Dump renders the graph's current table as a structural debug string.
func (c *Computation) Dump() string {
	return spew.Sdump(c.Table())
}

// NodeSnapshot is the read-only projection Snapshot/Restore exchange with an
// external serializer. It deliberately carries no wire format of its own —
// encoding NodeSnapshot values to and from a container is out of scope here.
type NodeSnapshot struct {
	Key           pgraph.Key
	State         nodestate.State
	Value         any
	SerializeFlag bool
	Binding       *bind.Descriptor
}

// Snapshot projects the graph into a slice of NodeSnapshot, in declaration
// order. A node with SerializeFlag == false reports a nil Value, since its
// value was marked not worth carrying across a save/restore boundary.
func (c *Computation) Snapshot() []NodeSnapshot {
	keys := c.graph.Vertices()
	out := make([]NodeSnapshot, 0, len(keys))
	for _, key := range keys {
		n, _ := c.graph.GetNode(key)
		value := n.Value
		if !n.SerializeFlag {
			value = nil
		}
		out = append(out, NodeSnapshot{
			Key:           key,
			State:         n.State,
			Value:         value,
			SerializeFlag: n.SerializeFlag,
			Binding:       n.Binding,
		})
	}
	return out
}

// Restore rebuilds a Computation from exactly the projection Snapshot
// produced: states are restored verbatim, not recomputed, and a
// SerializeFlag == false node comes back Uninitialized with no value.
// Failures (e.g. a binding whose rewire would introduce a cycle, which
// shouldn't happen for a snapshot taken from a valid graph but is still
// checked) are aggregated across every entry rather than stopping at the
// first one.
func Restore(name string, snapshots []NodeSnapshot) (*Computation, error) {
	c := NewComputation(name)
	var result *multierror.Error
	for _, s := range snapshots {
		if err := c.graph.RewireBinding(s.Key, s.Binding); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		n, _ := c.graph.GetNode(s.Key)
		n.SerializeFlag = s.SerializeFlag

		state, value := s.State, s.Value
		if !s.SerializeFlag {
			state, value = nodestate.Uninitialized, nil
		}
		c.graph.SetValue(s.Key, value)
		c.graph.SetState(s.Key, state)
	}
	return c, result.ErrorOrNil()
}
