package flowgraph

import (
	"github.com/flowgraph/flowgraph/nodestate"
	"github.com/flowgraph/flowgraph/pgraph"
)

// propagate recomputes the Computable/Stale state of every transitive
// successor of key, in topological order, after key's own state or value
// changed. It never invokes a bound function — that's sched's job during
// Compute/ComputeAll — it only keeps the state machine consistent. The walk
// is synchronous and return-value-driven rather than event-driven, since
// node functions never suspend and a single Computation is never touched
// concurrently.
func (c *Computation) propagate(key pgraph.Key) {
	descendants := c.graph.Descendants(key)
	if len(descendants) == 0 {
		return
	}
	subset := make(map[pgraph.Key]bool, len(descendants)+1)
	for k := range descendants {
		subset[k] = true
	}
	subset[key] = true

	order, ok := c.graph.TopologicalSortSubset(subset)
	if !ok {
		return
	}
	for _, k := range order {
		if k == key {
			continue
		}
		n, ok := c.graph.GetNode(k)
		if !ok || n.Binding == nil {
			continue
		}
		c.graph.SetState(k, nodestate.Recompute(true, n.State, predecessorStates(c.graph, k)))
	}
}
