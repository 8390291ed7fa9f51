// Mgmt
// Copyright (C) 2013-2016+ James Shubin and the project contributors
// Written by James Shubin <james@shubin.ca> and the project contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package pgraph is the graph store component of the computation graph
// engine: a typed DAG of nodes and declaration-ordered edges, grounded on the
// teacher's pgraph.Graph/Vertex/Edge adjacency-map design and its Kahn's-
// algorithm TopologicalSort, generalized from a resource-specific vertex to
// an arbitrary comparable node key.
package pgraph

import (
	"fmt"
	"sort"

	"github.com/flowgraph/flowgraph/bind"
	"github.com/flowgraph/flowgraph/nodestate"
)

// Key identifies a node. It must be a comparable value — a string, any
// built-in integer kind, or a Tuple. Using any other (non-comparable, e.g. a
// slice or a map) key will panic the first time it's used, the same way a Go
// map panics on an incomparable key; this module does not re-check
// comparability beyond what the language already enforces.
type Key = any

// Edge labels the parameter role a predecessor fills on its successor. Name
// is only meaningful for the Keyword and VariadicKeyword roles.
type Edge struct {
	Role bind.Role
	Name string
}

// Node is a single vertex's payload: its lifecycle state, its current value,
// and — if it is a computation rather than a pure input — its binding.
type Node struct {
	Key           Key
	State         State
	Value         any
	Binding       *bind.Descriptor
	SerializeFlag bool
}

// State is re-exported so callers of pgraph don't need a second import for
// the common case of reading a node's state.
type State = nodestate.State

// ErrCycleRejected is returned by RewireBinding when the requested edges
// would introduce a cycle. The graph is left byte-identical to how it was
// before the call.
var ErrCycleRejected = fmt.Errorf("pgraph: edit would introduce a cycle")

// Graph is the DAG store. It is not safe for concurrent use.
type Graph struct {
	Name string

	nodes map[Key]*Node
	order []Key       // declaration order of vertices
	index map[Key]int // position in order, for topological tie-breaking
	seq   int

	succ      map[Key]map[Key]*Edge // From -> To -> Edge (predecessor -> successor)
	succOrder map[Key][]Key         // declaration order of successors of a key
	pred      map[Key]map[Key]*Edge // To -> From -> Edge (successor -> predecessor)
	predOrder map[Key][]Key         // declaration order of predecessors of a key
}

// NewGraph builds an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		Name:      name,
		nodes:     make(map[Key]*Node),
		index:     make(map[Key]int),
		succ:      make(map[Key]map[Key]*Edge),
		succOrder: make(map[Key][]Key),
		pred:      make(map[Key]map[Key]*Edge),
		predOrder: make(map[Key][]Key),
	}
}

// AddVertex creates a bare placeholder node for key if it doesn't already
// exist, and reports whether it was newly created.
func (g *Graph) AddVertex(key Key) bool {
	if _, exists := g.nodes[key]; exists {
		return false
	}
	g.nodes[key] = &Node{Key: key, State: nodestate.Placeholder, SerializeFlag: true}
	g.index[key] = g.seq
	g.seq++
	g.order = append(g.order, key)
	g.succ[key] = make(map[Key]*Edge)
	g.succOrder[key] = nil
	g.pred[key] = make(map[Key]*Edge)
	g.predOrder[key] = nil
	return true
}

// HasVertex reports whether key is a node in the graph.
func (g *Graph) HasVertex(key Key) bool {
	_, ok := g.nodes[key]
	return ok
}

// GetNode returns the node for key, or nil, false if it doesn't exist.
func (g *Graph) GetNode(key Key) (*Node, bool) {
	n, ok := g.nodes[key]
	return n, ok
}

// NumVertices returns the number of nodes in the graph.
func (g *Graph) NumVertices() int { return len(g.nodes) }

// NumEdges returns the number of edges in the graph.
func (g *Graph) NumEdges() int {
	count := 0
	for _, m := range g.succ {
		count += len(m)
	}
	return count
}

// Vertices returns every node key in declaration order.
func (g *Graph) Vertices() []Key {
	out := make([]Key, len(g.order))
	copy(out, g.order)
	return out
}

// Successors returns the keys that read key as a predecessor, in declaration
// order.
func (g *Graph) Successors(key Key) []Key {
	out := make([]Key, len(g.succOrder[key]))
	copy(out, g.succOrder[key])
	return out
}

// Predecessors returns the keys that key reads from, in declaration order.
func (g *Graph) Predecessors(key Key) []Key {
	out := make([]Key, len(g.predOrder[key]))
	copy(out, g.predOrder[key])
	return out
}

// EdgeBetween returns the edge label from a predecessor to a successor.
func (g *Graph) EdgeBetween(from, to Key) (*Edge, bool) {
	e, ok := g.succ[from][to]
	return e, ok
}

// reachable reports whether to is reachable from `from` by following
// successor edges — i.e. whether `from` is an ancestor of `to`, or `from`
// and `to` are the same node (a self-loop is a zero-length cycle).
func (g *Graph) reachable(from, to Key) bool {
	if from == to {
		return true
	}
	if _, ok := g.nodes[from]; !ok {
		return false
	}
	seen := map[Key]bool{from: true}
	stack := []Key{from}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range g.succOrder[v] {
			if n == to {
				return true
			}
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return false
}

// RewireBinding atomically replaces key's binding and incoming edges. Any
// source key referenced by d that doesn't yet exist is created as a
// placeholder. The rewire is all-or-nothing: if any new edge would
// introduce a cycle, the graph is left completely unchanged and
// ErrCycleRejected is returned.
func (g *Graph) RewireBinding(key Key, d *bind.Descriptor) error {
	if d != nil {
		for _, p := range d.Params {
			if g.reachable(key, p.Source) {
				return ErrCycleRejected
			}
		}
	}

	g.AddVertex(key)
	g.clearPredecessors(key)

	n := g.nodes[key]
	n.Binding = d
	if d == nil {
		return nil
	}
	for _, p := range d.Params {
		g.AddVertex(p.Source)
		g.addEdge(p.Source, key, &Edge{Role: p.Role, Name: p.Name})
	}
	return nil
}

func (g *Graph) addEdge(from, to Key, e *Edge) {
	if _, ok := g.succ[from][to]; !ok {
		g.succOrder[from] = append(g.succOrder[from], to)
	}
	g.succ[from][to] = e
	if _, ok := g.pred[to][from]; !ok {
		g.predOrder[to] = append(g.predOrder[to], from)
	}
	g.pred[to][from] = e
}

// clearPredecessors removes every edge feeding into key (its own binding's
// dependencies), leaving edges where key is the predecessor untouched.
func (g *Graph) clearPredecessors(key Key) {
	for from := range g.pred[key] {
		delete(g.succ[from], key)
		g.succOrder[from] = removeKey(g.succOrder[from], key)
	}
	g.pred[key] = make(map[Key]*Edge)
	g.predOrder[key] = nil
}

func removeKey(s []Key, key Key) []Key {
	out := s[:0]
	for _, k := range s {
		if k != key {
			out = append(out, k)
		}
	}
	return out
}

// HasSuccessors reports whether any node still reads key as a predecessor.
func (g *Graph) HasSuccessors(key Key) bool {
	return len(g.succOrder[key]) > 0
}

// RemoveVertex fully deletes key and every edge touching it.
func (g *Graph) RemoveVertex(key Key) {
	g.clearPredecessors(key)
	for to := range g.succ[key] {
		delete(g.pred[to], key)
		g.predOrder[to] = removeKey(g.predOrder[to], key)
	}
	delete(g.succ, key)
	delete(g.succOrder, key)
	delete(g.pred, key)
	delete(g.predOrder, key)
	delete(g.nodes, key)
	delete(g.index, key)
	g.order = removeKey(g.order, key)
}

// SetState sets key's state.
func (g *Graph) SetState(key Key, s State) {
	if n, ok := g.nodes[key]; ok {
		n.State = s
	}
}

// SetValue sets key's value.
func (g *Graph) SetValue(key Key, v any) {
	if n, ok := g.nodes[key]; ok {
		n.Value = v
	}
}

// TopologicalSort returns every vertex in topological order, tie-broken by
// declaration order, using Kahn's algorithm: the ready set is kept sorted by
// declaration index and the lowest-index ready vertex is picked each round,
// rather than treated as a LIFO stack, so two runs over the same graph
// always produce the same order.
func (g *Graph) TopologicalSort() ([]Key, bool) {
	return g.topologicalSortSubset(nil)
}

// TopologicalSortSubset restricts the sort to the given subset of keys
// (nil means the whole graph), considering only edges between members of
// the subset.
func (g *Graph) TopologicalSortSubset(subset map[Key]bool) ([]Key, bool) {
	return g.topologicalSortSubset(subset)
}

func (g *Graph) topologicalSortSubset(subset map[Key]bool) ([]Key, bool) {
	in := func(k Key) bool { return subset == nil || subset[k] }

	remaining := make(map[Key]int)
	var ready []Key
	for _, k := range g.order {
		if !in(k) {
			continue
		}
		count := 0
		for _, p := range g.predOrder[k] {
			if in(p) {
				count++
			}
		}
		if count == 0 {
			ready = append(ready, k)
		} else {
			remaining[k] = count
		}
	}

	var out []Key
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return g.index[ready[i]] < g.index[ready[j]] })
		v := ready[0]
		ready = ready[1:]
		out = append(out, v)
		for _, n := range g.succOrder[v] {
			if !in(n) {
				continue
			}
			if remaining[n] > 0 {
				remaining[n]--
				if remaining[n] == 0 {
					ready = append(ready, n)
				}
			}
		}
	}

	for _, left := range remaining {
		if left > 0 {
			return nil, false // cycle, shouldn't happen in a validated DAG
		}
	}
	return out, true
}

// Ancestors returns the transitive set of predecessors of key (not including
// key itself), in no particular order.
func (g *Graph) Ancestors(key Key) map[Key]bool {
	seen := make(map[Key]bool)
	stack := []Key{key}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, p := range g.predOrder[v] {
			if !seen[p] {
				seen[p] = true
				stack = append(stack, p)
			}
		}
	}
	return seen
}

// Descendants returns the transitive set of successors of key (not including
// key itself), in no particular order.
func (g *Graph) Descendants(key Key) map[Key]bool {
	seen := make(map[Key]bool)
	stack := []Key{key}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, n := range g.succOrder[v] {
			if !seen[n] {
				seen[n] = true
				stack = append(stack, n)
			}
		}
	}
	return seen
}

// Copy returns a structurally independent deep copy of the graph. Node
// values are copied by reference (a shallow copy) — it is the caller's
// responsibility (see flowgraph.Computation.Copy) to deep-clone values for
// the scalar kinds it supports, since pgraph treats values as opaque.
func (g *Graph) Copy() *Graph {
	out := NewGraph(g.Name)
	for _, key := range g.order {
		n := g.nodes[key]
		out.AddVertex(key)
		nn := out.nodes[key]
		nn.State = n.State
		nn.Value = n.Value
		nn.SerializeFlag = n.SerializeFlag
		nn.Binding = n.Binding // descriptor is immutable once built; shared is fine
	}
	for _, from := range g.order {
		for _, to := range g.succOrder[from] {
			e := g.succ[from][to]
			ne := &Edge{Role: e.Role, Name: e.Name}
			out.succ[from][to] = ne
			out.pred[to][from] = ne
		}
		out.succOrder[from] = append([]Key(nil), g.succOrder[from]...)
		out.predOrder[from] = append([]Key(nil), g.predOrder[from]...)
	}
	return out
}

// String renders a short summary of the graph's size.
func (g *Graph) String() string {
	return fmt.Sprintf("Graph(%s): Vertices(%d), Edges(%d)", g.Name, g.NumVertices(), g.NumEdges())
}
