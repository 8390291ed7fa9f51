package flowgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/flowgraph/flowgraph/bind"
	"github.com/flowgraph/flowgraph/mapnode"
	"github.com/flowgraph/flowgraph/nodestate"
)

// Scenario 1: diamond graph, a single root fans out into two computations
// that both feed a final sum.
func TestScenarioDiamond(t *testing.T) {
	c := NewComputation("diamond")
	mustAddNode(t, c, "a", NodeOptions{})
	mustAddNode(t, c, "b", NodeOptions{Func: func(a int) int { return a * 2 }, Args: []any{"a"}})
	mustAddNode(t, c, "c", NodeOptions{Func: func(a int) int { return a * 3 }, Args: []any{"a"}})
	mustAddNode(t, c, "d", NodeOptions{Func: func(b, c int) int { return b + c }, Args: []any{"b", "c"}})

	if err := c.Insert("a", 5); err != nil {
		t.Fatal(err)
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}

	st, v, err := c.Get("d")
	if err != nil {
		t.Fatal(err)
	}
	if st != nodestate.Uptodate || v != 25 {
		t.Errorf("got state=%v value=%v, want Uptodate/25", st, v)
	}
}

// Scenario 2: a node that errors leaves its own dependents Stale, but
// unrelated siblings still compute.
func TestScenarioErrorIsolation(t *testing.T) {
	c := NewComputation("errors")
	mustAddNode(t, c, "a", NodeOptions{})
	mustAddNode(t, c, "b", NodeOptions{
		Func: func(a int) (int, error) { return 0, fmt.Errorf("infinite sadness") },
		Args: []any{"a"},
	})
	mustAddNode(t, c, "c", NodeOptions{Func: func(b int) int { return b + 1 }, Args: []any{"b"}})
	mustAddNode(t, c, "sibling", NodeOptions{Func: func() int { return 7 }})

	if err := c.Insert("a", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}

	bState, _ := c.State("b")
	if bState != nodestate.Error {
		t.Errorf("b state = %v, want Error", bState)
	}
	bValue, _ := c.Value("b")
	ev, ok := bValue.(*ErrorValue)
	if !ok {
		t.Fatalf("b value = %#v, want *ErrorValue", bValue)
	}
	if ev.Error() == "" || ev.Source != "b" {
		t.Errorf("got %+v", ev)
	}

	cState, _ := c.State("c")
	if cState != nodestate.Stale {
		t.Errorf("c state = %v, want Stale", cState)
	}

	sState, sValue, _ := c.Get("sibling")
	if sState != nodestate.Uptodate || sValue != 7 {
		t.Errorf("sibling got state=%v value=%v, want Uptodate/7", sState, sValue)
	}
}

// Scenario 3: placeholder lifecycle — referencing an undeclared node
// creates a PLACEHOLDER, which later declaration/insertion resolves.
func TestScenarioPlaceholderLifecycle(t *testing.T) {
	c := NewComputation("placeholder")
	mustAddNode(t, c, "b", NodeOptions{Func: func(a int) int { return a + 1 }, Args: []any{"a"}})

	st, err := c.State("a")
	if err != nil {
		t.Fatal(err)
	}
	if st != nodestate.Placeholder {
		t.Errorf("a state = %v, want Placeholder", st)
	}
	bSt, _ := c.State("b")
	if bSt != nodestate.Uninitialized {
		t.Errorf("b state = %v, want Uninitialized (a has no value yet)", bSt)
	}

	mustAddNode(t, c, "a", NodeOptions{})
	if err := c.Insert("a", 1); err != nil {
		t.Fatal(err)
	}
	bSt, _ = c.State("b")
	if bSt != nodestate.Computable {
		t.Errorf("b state = %v, want Computable", bSt)
	}

	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}
	bSt, bVal, _ := c.Get("b")
	if bSt != nodestate.Uptodate || bVal != 2 {
		t.Errorf("got state=%v value=%v, want Uptodate/2", bSt, bVal)
	}
}

// Scenario 4: map operator, success and failure.
func TestScenarioMapGraphSuccess(t *testing.T) {
	template := NewComputation("template")
	mustAddNode(t, template, "a", NodeOptions{})
	mustAddNode(t, template, "b", NodeOptions{Func: func(a int) int { return 2 * a }, Args: []any{"a"}})

	c := NewComputation("outer")
	mustAddNode(t, c, "inputs", NodeOptions{})
	if err := c.AddMapNode("results", "inputs", template, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := c.Insert("inputs", []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}

	st, v, _ := c.Get("results")
	if st != nodestate.Uptodate {
		t.Fatalf("got state=%v, want Uptodate", st)
	}
	got, ok := v.([]any)
	if !ok || len(got) != 3 || got[0] != 2 || got[1] != 4 || got[2] != 6 {
		t.Errorf("got %+v", v)
	}
}

func TestScenarioMapGraphFailure(t *testing.T) {
	template := NewComputation("template")
	mustAddNode(t, template, "a", NodeOptions{})
	mustAddNode(t, template, "b", NodeOptions{
		Func: func(a int) (int, error) {
			if a-2 == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return 1 / (a - 2), nil
		},
		Args: []any{"a"},
	})

	c := NewComputation("outer")
	mustAddNode(t, c, "inputs", NodeOptions{})
	if err := c.AddMapNode("results", "inputs", template, "a", "b"); err != nil {
		t.Fatal(err)
	}
	if err := c.Insert("inputs", []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}

	st, v, _ := c.Get("results")
	if st != nodestate.Error {
		t.Fatalf("got state=%v, want Error", st)
	}
	ev, ok := v.(*ErrorValue)
	if !ok {
		t.Fatalf("got %#v, want *ErrorValue", v)
	}
	var mapErr *mapnode.MapException
	if !errors.As(ev.Err, &mapErr) {
		t.Fatalf("got %#v, want wrapped *mapnode.MapException", ev.Err)
	}
	if len(mapErr.Results) != 3 || mapErr.Failed != 1 {
		t.Fatalf("got %+v (Failed=%d)", mapErr.Results, mapErr.Failed)
	}
	if mapErr.Results[0] != -1 {
		t.Errorf("results[0] = %v, want -1", mapErr.Results[0])
	}
	if mapErr.Results[2] != 1 {
		t.Errorf("results[2] = %v, want 1", mapErr.Results[2])
	}
	failed, ok := mapErr.Results[1].(*Computation)
	if !ok {
		t.Fatalf("results[1] = %#v, want *Computation", mapErr.Results[1])
	}
	failedState, _ := failed.State("b")
	if failedState != nodestate.Error {
		t.Errorf("failed sub-computation b state = %v, want Error", failedState)
	}
}

// Scenario 5: structural replacement — redeclaring a node's binding rewires
// its edges and discards its old value.
func TestScenarioStructuralReplacement(t *testing.T) {
	c := NewComputation("structural")
	mustAddNode(t, c, "a", NodeOptions{})
	mustAddNode(t, c, "b", NodeOptions{
		Func: func(a int) (int, error) { return 0, fmt.Errorf("boom") },
		Args: []any{"a"},
	})
	mustAddNode(t, c, "c", NodeOptions{Func: func(b int) int { return b + 1 }, Args: []any{"b"}})

	if err := c.Insert("a", 1); err != nil {
		t.Fatal(err)
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}
	bSt, _ := c.State("b")
	if bSt != nodestate.Error {
		t.Fatalf("b state = %v, want Error", bSt)
	}

	mustAddNode(t, c, "b", NodeOptions{Func: func(a int) int { return a + 1 }, Args: []any{"a"}})
	bSt, _ = c.State("b")
	if bSt != nodestate.Computable {
		t.Errorf("b state after redeclare = %v, want Computable", bSt)
	}
	cSt, _ := c.State("c")
	if cSt != nodestate.Stale {
		t.Errorf("c state after redeclare = %v, want Stale", cSt)
	}

	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}
	aSt, aVal, _ := c.Get("a")
	bSt, bVal, _ := c.Get("b")
	cSt, cVal, _ := c.Get("c")
	if aSt != nodestate.Uptodate || aVal != 1 {
		t.Errorf("got a=%v/%v", aSt, aVal)
	}
	if bSt != nodestate.Uptodate || bVal != 2 {
		t.Errorf("got b=%v/%v", bSt, bVal)
	}
	if cSt != nodestate.Uptodate || cVal != 3 {
		t.Errorf("got c=%v/%v", cSt, cVal)
	}
}

// Scenario 6: a single binding combining all four parameter roles at once.
func TestScenarioAllFourRoles(t *testing.T) {
	c := NewComputation("variadic")
	mustAddNode(t, c, "p", NodeOptions{})
	mustAddNode(t, c, "v1", NodeOptions{})
	mustAddNode(t, c, "v2", NodeOptions{})
	mustAddNode(t, c, "x", NodeOptions{})
	mustAddNode(t, c, "z", NodeOptions{})

	mustAddNode(t, c, "combined", NodeOptions{
		Func:     combinedFn,
		Args:     []any{"p"},
		ArgsTail: []any{"v1", "v2"},
		Kwds:     []KeywordSource{{Name: "x", Source: "x"}},
		KwdsTail: []KeywordSource{{Name: "z", Source: "z"}},
	})

	for _, kv := range []Assignment{
		{Key: "p", Value: 1},
		{Key: "v1", Value: 2},
		{Key: "v2", Value: 3},
		{Key: "x", Value: 4},
		{Key: "z", Value: 5},
	} {
		if err := c.Insert(kv.Key, kv.Value); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}

	st, v, _ := c.Get("combined")
	if st != nodestate.Uptodate || v != 15 {
		t.Errorf("got state=%v value=%v, want Uptodate/15", st, v)
	}
}

// combinedFn is invoked through the *bind.Call convention so it can see all
// four buckets at once, rather than through reflection over a plain Go func.
var combinedFn bind.Func = func(call *bind.Call) (any, error) {
	sum := 0
	if len(call.Positional) > 0 {
		sum += call.Positional[0].(int)
	}
	for _, v := range call.Args {
		sum += v.(int)
	}
	for _, v := range call.Keyword {
		sum += v.(int)
	}
	for _, v := range call.Kwds {
		sum += v.(int)
	}
	return sum, nil
}

// Copy must be structurally independent: mutating a copy's slice-valued node
// must not be visible through the original, and the two tables must agree
// on every other field.
func TestCopyIndependence(t *testing.T) {
	c := NewComputation("copy-source")
	mustAddNode(t, c, "xs", NodeOptions{})
	if err := c.Insert("xs", []int{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	dup := c.Copy()
	if diff := cmp.Diff(c.Table(), dup.Table()); diff != "" {
		t.Fatalf("Copy() diverged from source before any mutation (-want +got):\n%s", diff)
	}

	xs, _ := dup.Value("xs")
	xs.([]int)[0] = 99

	origXs, _ := c.Value("xs")
	if origXs.([]int)[0] != 1 {
		t.Errorf("mutating the copy's slice changed the original: %v", origXs)
	}
}

// Scenario: a node holding a struct value gets one child node per named
// field via AddNamedTupleExpansion, each tracking that field independently.
func TestScenarioNamedTupleExpansion(t *testing.T) {
	type Coordinate struct {
		X int
		Y int
	}

	c := NewComputation("named-tuple")
	mustAddNode(t, c, "a", NodeOptions{})
	if err := c.AddNamedTupleExpansion("a", "X", "Y"); err != nil {
		t.Fatal(err)
	}
	if err := c.Insert("a", Coordinate{X: 1, Y: 2}); err != nil {
		t.Fatal(err)
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}

	if _, v, err := c.Get("a.X"); err != nil || v != 1 {
		t.Errorf("a.X = %v, %v, want 1, nil", v, err)
	}
	if _, v, err := c.Get("a.Y"); err != nil || v != 2 {
		t.Errorf("a.Y = %v, %v, want 2, nil", v, err)
	}

	// Replacing "a" with a new Coordinate and recomputing tracks the field
	// nodes along with it, the same way any other dependent would.
	if err := c.Insert("a", Coordinate{X: 10, Y: 20}); err != nil {
		t.Fatal(err)
	}
	if err := c.ComputeAll(); err != nil {
		t.Fatal(err)
	}
	if _, v, err := c.Get("a.X"); err != nil || v != 10 {
		t.Errorf("a.X after reinsert = %v, %v, want 10, nil", v, err)
	}
	if _, v, err := c.Get("a.Y"); err != nil || v != 20 {
		t.Errorf("a.Y after reinsert = %v, %v, want 20, nil", v, err)
	}
}

func mustAddNode(t *testing.T, c *Computation, key any, opts NodeOptions) {
	t.Helper()
	if err := c.AddNode(key, opts); err != nil {
		t.Fatalf("AddNode(%v): %v", key, err)
	}
}
