// Package app defines the pluggable application slot every replica
// executes committed operations against.
package app

// App executes a committed operation and returns its result. Execute
// must be deterministic and side-effect-free with respect to anything
// other replicas can observe, since every non-Byzantine replica executes
// the same log in the same order.
type App interface {
	Execute(op []byte) []byte
}

// Echo is the minimal App used by tests and end-to-end scenarios: it
// returns the operation unchanged.
type Echo struct{}

func (Echo) Execute(op []byte) []byte {
	out := make([]byte, len(op))
	copy(out, op)
	return out
}
