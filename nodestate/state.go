// Package nodestate defines the node state enum and the pure recompute rule
// that the engine uses to keep every node's state consistent with its
// predecessors' states after an edit or a value change.
package nodestate

// State is the lifecycle stage of a single graph node.
type State int

const (
	// Placeholder marks a node that was referenced by another node's
	// binding but was never explicitly declared.
	Placeholder State = iota
	// Uninitialized marks a declared input node that has no value yet.
	Uninitialized
	// Computable marks a node with a binding whose predecessors are all
	// Uptodate (vacuously true for a zero-predecessor binding).
	Computable
	// Stale marks a node with a binding that has at least one predecessor
	// which is not Uptodate.
	Stale
	// Uptodate marks a node whose value reflects its current inputs.
	Uptodate
	// Error marks a node whose bound function raised on its last attempt.
	Error
)

// String renders the state the way a hand-written stringer would, since this
// module does not run `go generate`.
func (s State) String() string {
	switch s {
	case Placeholder:
		return "PLACEHOLDER"
	case Uninitialized:
		return "UNINITIALIZED"
	case Computable:
		return "COMPUTABLE"
	case Stale:
		return "STALE"
	case Uptodate:
		return "UPTODATE"
	case Error:
		return "ERROR"
	default:
		return "State(" + itoa(int(s)) + ")"
	}
}

// itoa avoids pulling in strconv for the one fallback case above.
func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Recompute derives the propagation-driven state (Computable/Stale) for a
// node from its predecessors' current states. Nodes without a binding (pure
// inputs and placeholders) are untouched by propagation, since their state
// only changes via explicit Insert/SetStale/Delete/declare actions —
// Recompute returns their current state unchanged in that case. A node with
// a binding is Computable when every predecessor is Uptodate (vacuously true
// for zero predecessors, so a zero-argument function is always computable)
// and Stale otherwise. Error and Uptodate are never produced here: they are
// only ever set by the scheduler after actually invoking (or failing to
// invoke) the bound function.
func Recompute(hasBinding bool, current State, predecessors []State) State {
	if !hasBinding {
		return current
	}
	for _, p := range predecessors {
		if p != Uptodate {
			return Stale
		}
	}
	return Computable
}
