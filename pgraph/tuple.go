package pgraph

import (
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// Tuple is a node key built from a fixed sequence of scalar parts, for
// callers who want to key nodes on composite identities like ("fib", 3). Go
// has no built-in comparable "tuple of any comparable" type, so Tuple
// encodes its parts into a single comparable string using spew's stable,
// type-qualified dump format — two Tuples are == iff every part has the same
// Go type and value.
type Tuple string

var tupleConfig = &spew.ConfigState{
	Indent:                  "",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
	DisableMethods:          true,
}

// NewTuple builds a Tuple key from its component parts, in order.
func NewTuple(parts ...any) Tuple {
	var b strings.Builder
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('\x1f') // unit separator, won't collide with spew's output
		}
		b.WriteString(tupleConfig.Sprintf("%#v", p))
	}
	return Tuple(b.String())
}
