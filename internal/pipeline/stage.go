// Package pipeline implements the stage/effect algebra every node role is
// built from: a stage maps one input event to one output effect; stages
// compose by Then (1:1) and EachThen (1:N over composite effects);
// Multiplex fans two event sources into a shared stage chain; Spawn runs
// a stage on its own CPU-pinned goroutine, draining an event channel into
// an effect channel.
package pipeline

// Stage consumes one event and produces one effect. Implementations may
// hold their own mutable state; a Stage with mutable state is not safe
// for concurrent Update calls from more than one goroutine. Stateless
// stages (such as replica.VerifyStage) may be shared by several workers.
type Stage[E, F any] interface {
	Update(E) F
}

// StageFunc adapts a plain function to a Stage, for small stateless stages
// (the header-classify stage, the serialize stage) that need no fields.
type StageFunc[E, F any] func(E) F

func (f StageFunc[E, F]) Update(e E) F { return f(e) }

type thenStage[E, M, F any] struct {
	a Stage[E, M]
	b Stage[M, F]
}

// Then composes a's effect into b's event: the effect of A becomes the
// event of B.
func Then[E, M, F any](a Stage[E, M], b Stage[M, F]) Stage[E, F] {
	return &thenStage[E, M, F]{a: a, b: b}
}

func (t *thenStage[E, M, F]) Update(e E) F {
	return t.b.Update(t.a.Update(e))
}

// Multiplex fans two event sources sharing an event and effect type into
// one downstream consumer, used to join the ordered-path and
// asymmetric-verify-path stages into a replica's node-logic stage.
type MultiplexInput[E any] struct {
	FromA bool
	Event E
}

func Multiplex[E, F any](a, b Stage[E, F]) Stage[MultiplexInput[E], F] {
	return StageFunc[MultiplexInput[E], F](func(in MultiplexInput[E]) F {
		if in.FromA {
			return a.Update(in.Event)
		}
		return b.Update(in.Event)
	})
}
