package flowgraph

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/flowgraph/flowgraph/bind"
	"github.com/flowgraph/flowgraph/nodestate"
	"github.com/flowgraph/flowgraph/pgraph"
)

// AddNamedTupleExpansion declares one child node per named field, keyed
// "<key>.<field>", each reading the named field out of key's value. key's
// value is expected to be a struct (or anything mapstructure.Decode can
// decode into a map[string]any) — each expansion decodes it generically
// rather than hand-rolling per-field reflection, so it works for any
// exported-field struct without per-type glue.
func (c *Computation) AddNamedTupleExpansion(key pgraph.Key, fields ...string) error {
	for _, field := range fields {
		field := field
		childKey := fmt.Sprintf("%v.%s", key, field)

		var fn bind.Func = func(call *bind.Call) (any, error) {
			return fieldValue(call.Positional[0], field)
		}
		spec, err := bind.Wrap(fn)
		if err != nil {
			return fmt.Errorf("flowgraph: named tuple expansion %v: %w", key, err)
		}
		descriptor := &bind.Descriptor{
			Spec:   spec,
			Params: []bind.Param{{Role: bind.Positional, Source: key}},
		}
		if err := c.graph.RewireBinding(childKey, descriptor); err != nil {
			return fmt.Errorf("flowgraph: named tuple expansion %v: %w", key, err)
		}
		n, _ := c.graph.GetNode(childKey)
		c.graph.SetValue(childKey, nil)
		c.graph.SetState(childKey, nodestate.Recompute(true, n.State, predecessorStates(c.graph, childKey)))
	}
	c.propagate(key)
	return nil
}

func fieldValue(v any, field string) (any, error) {
	decoded := map[string]any{}
	if err := mapstructure.Decode(v, &decoded); err != nil {
		return nil, fmt.Errorf("flowgraph: decoding %T for field %q: %w", v, field, err)
	}
	fv, ok := decoded[field]
	if !ok {
		return nil, fmt.Errorf("flowgraph: %T has no field %q", v, field)
	}
	return fv, nil
}
