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

package pgraph

import "fmt"

// Graphviz renders the graph in graphviz DOT format, labeling each node with
// its key and current lifecycle state. It's a diagnostic aid for Dump-style
// debugging of a Computation, not a supported wire format.
// https://en.wikipedia.org/wiki/DOT_%28graph_description_language%29
func (g *Graph) Graphviz() string {
	out := fmt.Sprintf("digraph %s {\n", quoteDotID(g.Name))
	out += fmt.Sprintf("\tlabel=%q;\n", g.Name)
	out += "\tnode [shape=box];\n"
	var edges string
	for _, key := range g.order {
		n := g.nodes[key]
		out += fmt.Sprintf("\t%s [label=%q];\n", quoteDotID(fmt.Sprint(key)), fmt.Sprintf("%v [%s]", key, n.State))
		for _, to := range g.succOrder[key] {
			e := g.succ[key][to]
			label := e.Role.String()
			if e.Name != "" {
				label += ":" + e.Name
			}
			edges += fmt.Sprintf("\t%s -> %s [label=%q];\n", quoteDotID(fmt.Sprint(key)), quoteDotID(fmt.Sprint(to)), label)
		}
	}
	out += edges
	out += "}\n"
	return out
}

func quoteDotID(s string) string {
	return fmt.Sprintf("%q", s)
}
