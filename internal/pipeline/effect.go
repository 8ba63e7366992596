package pipeline

import "neobft/internal/wire"

// EffectKind is the atomic effect tagged union: {Nop, Send(addr, msg),
// Broadcast(msg), Notify(result)}, plus Compose for the composite case (a
// bag of atomics processed one-by-one by the next stage).
type EffectKind uint8

const (
	Nop EffectKind = iota
	Send
	Broadcast
	Notify
	Compose
)

// Effect is the value every node stage's Update produces. It is a value
// type moved by copy between stages; Compose effects own a slice of their
// children. Payload already holds whatever bytes belong on the wire: a
// framed ordered packet for the sequencer, a marshaled Message for the
// replica and client, so the transmit stage never needs to know which
// node role produced the effect.
type Effect struct {
	Kind     EffectKind
	Addr     wire.NodeAddr
	Payload  []byte
	Children []Effect
}

func NopEffect() Effect { return Effect{Kind: Nop} }

func SendEffect(addr wire.NodeAddr, payload []byte) Effect {
	return Effect{Kind: Send, Addr: addr, Payload: payload}
}

func SendMessage(addr wire.NodeAddr, msg wire.Message) Effect {
	return Effect{Kind: Send, Addr: addr, Payload: msg.Marshal()}
}

func BroadcastEffect(payload []byte) Effect {
	return Effect{Kind: Broadcast, Payload: payload}
}

// NotifyEffect carries a client's completed result up to its caller,
// rather than onto the wire.
func NotifyEffect(result []byte) Effect {
	return Effect{Kind: Notify, Payload: result}
}

// IsNop reports whether e carries no work, the identity element of Compose.
func (e Effect) IsNop() bool { return e.Kind == Nop }

// ComposeEffects associatively combines effects, flattening nested
// Compose nodes and dropping Nops.
func ComposeEffects(effects ...Effect) Effect {
	var flat []Effect
	for _, e := range effects {
		switch e.Kind {
		case Nop:
			continue
		case Compose:
			flat = append(flat, e.Children...)
		default:
			flat = append(flat, e)
		}
	}
	switch len(flat) {
	case 0:
		return NopEffect()
	case 1:
		return flat[0]
	default:
		return Effect{Kind: Compose, Children: flat}
	}
}

// Decompose returns the atomic effects a (possibly composite) effect is
// made of, for EachThen-style per-atomic dispatch.
func (e Effect) Decompose() []Effect {
	if e.Kind == Nop {
		return nil
	}
	if e.Kind == Compose {
		return e.Children
	}
	return []Effect{e}
}

// EachThen feeds each atomic element of a's composite effect into b,
// accumulating b's own effects back into a single composite: if A's
// effect is a composite container, B is invoked per atomic element and
// partial effects accumulate.
func EachThen[E any, F any](a Stage[E, Effect], b Stage[Effect, F], compose func(...F) F) Stage[E, F] {
	return StageFunc[E, F](func(e E) F {
		atomics := a.Update(e).Decompose()
		results := make([]F, 0, len(atomics))
		for _, atomic := range atomics {
			results = append(results, b.Update(atomic))
		}
		return compose(results...)
	})
}
