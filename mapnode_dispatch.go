package flowgraph

import (
	"fmt"

	"github.com/flowgraph/flowgraph/bind"
	"github.com/flowgraph/flowgraph/mapnode"
	"github.com/flowgraph/flowgraph/nodestate"
	"github.com/flowgraph/flowgraph/pgraph"
)

// AddMapNode declares resultKey as a map node: reading the sequence at
// inputKey, it clones template once per element, inserts the element at
// subInput in the clone, runs ComputeAll on the clone, and reads subOutput
// back out. If every element's sub-computation succeeds, resultKey's value
// is a []any of the outputs in order. If any element fails, resultKey ends
// in the Error state with a *mapnode.MapException recording, per index,
// either the successful output or the failed sub-Computation itself (so a
// caller can inspect exactly which element broke and why).
func (c *Computation) AddMapNode(resultKey, inputKey pgraph.Key, template *Computation, subInput, subOutput pgraph.Key) error {
	if !template.graph.HasVertex(subInput) || !template.graph.HasVertex(subOutput) {
		return fmt.Errorf("flowgraph: add map node %v: %w", resultKey, mapnode.ErrMapShapeError)
	}

	var fn bind.Func = func(call *bind.Call) (any, error) {
		return runMap(template, subInput, subOutput, call.Positional[0])
	}
	spec, err := bind.Wrap(fn)
	if err != nil {
		return fmt.Errorf("flowgraph: add map node %v: %w", resultKey, err)
	}
	descriptor := &bind.Descriptor{
		Spec:   spec,
		Params: []bind.Param{{Role: bind.Positional, Source: inputKey}},
	}

	if err := c.graph.RewireBinding(resultKey, descriptor); err != nil {
		return fmt.Errorf("flowgraph: add map node %v: %w", resultKey, err)
	}
	n, _ := c.graph.GetNode(resultKey)
	c.graph.SetValue(resultKey, nil)
	c.graph.SetState(resultKey, nodestate.Recompute(true, n.State, predecessorStates(c.graph, resultKey)))
	c.propagate(resultKey)
	return nil
}

func runMap(template *Computation, subInput, subOutput pgraph.Key, raw any) (any, error) {
	elems, err := mapnode.ToSlice(raw)
	if err != nil {
		return nil, err
	}

	results := make([]any, len(elems))
	failed := 0
	for i, elem := range elems {
		sub := template.Copy()
		if err := sub.Insert(subInput, elem); err != nil {
			results[i] = err
			failed++
			continue
		}
		_ = sub.ComputeAll() // errors land on nodes, inspected via State/Value below

		st, _ := sub.State(subOutput)
		if st == nodestate.Error {
			results[i] = sub
			failed++
			continue
		}
		v, _ := sub.Value(subOutput)
		results[i] = v
	}

	if failed > 0 {
		return nil, &mapnode.MapException{Results: results, Failed: failed}
	}
	return results, nil
}
