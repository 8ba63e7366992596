package replica

import (
	"log"

	"neobft/internal/crypto/siphash"
	"neobft/internal/discipline"
	"neobft/internal/pipeline"
	"neobft/internal/transport"
	"neobft/internal/wire"
)

// Decision is the outcome of receive-path classification.
type Decision uint8

const (
	DecisionDrop Decision = iota
	DecisionTick
	DecisionUnicast
	DecisionOrdered
	DecisionNeedsVerify
)

// ClassifyOutput is what the core-0 classify stage hands downstream:
// either a decision to drop/tick, a ready-to-commit ordered arrival, or a
// P-256 packet that still needs asymmetric verification off this thread.
type ClassifyOutput struct {
	Decision  Decision
	Unicast   wire.Message
	Multicast wire.Multicast
	Request   wire.Request
	Digest    [32]byte
}

// ClassifyStage runs on the replica's receive thread (core 0): it
// performs the cheap SipHash check inline and defers expensive P-256
// verification to a separate worker. It holds only the configuration
// needed to classify, never the mutable commit-loop state, which stays
// on core 1.
type ClassifyStage struct {
	ReplicaID  uint8
	Discipline discipline.Kind
}

func (c *ClassifyStage) Update(ev transport.Event) ClassifyOutput {
	if ev.Tick {
		return ClassifyOutput{Decision: DecisionTick}
	}
	packet := ev.Data
	if len(packet) < 4 {
		log.Println("replica: malformed packet (too short)")
		return ClassifyOutput{Decision: DecisionDrop}
	}
	if wire.IsUnicast(packet) {
		if len(packet) < 4 {
			log.Println("replica: malformed unicast packet")
			return ClassifyOutput{Decision: DecisionDrop}
		}
		msg := wire.UnmarshalMessage(packet[4:])
		return ClassifyOutput{Decision: DecisionUnicast, Unicast: msg}
	}

	if len(packet) < wire.HeaderSize {
		log.Println("replica: malformed packet (short header)")
		return ClassifyOutput{Decision: DecisionDrop}
	}
	seq, sig, body := wire.SplitHeader(packet)
	req := wire.UnmarshalRequest(body)
	digest := wire.Digest(seq, body)
	m := wire.Multicast{Seq: seq, Signature: sig}

	switch c.Discipline {
	case discipline.SipHash:
		first := firstCoveredReplica(sig)
		if uint32(c.ReplicaID) < first || uint32(c.ReplicaID) >= first+4 {
			// not covered by this packet; a covering packet will arrive
			// separately, so accept it into the ordered path as-is.
			return ClassifyOutput{Decision: DecisionOrdered, Multicast: m, Request: req, Digest: digest}
		}
		offset := uint32(c.ReplicaID) - first
		var want [4]byte
		copy(want[:], sig[4+offset*4:4+offset*4+4])
		got := siphash.MAC(uint32(c.ReplicaID), digest[:])
		if got != want {
			log.Println("replica: malformed (siphash MAC mismatch)")
			return ClassifyOutput{Decision: DecisionDrop}
		}
		return ClassifyOutput{Decision: DecisionOrdered, Multicast: m, Request: req, Digest: digest}
	default: // P256, P256Linked
		return ClassifyOutput{Decision: DecisionNeedsVerify, Multicast: m, Request: req, Digest: digest}
	}
}

var _ pipeline.Stage[transport.Event, ClassifyOutput] = (*ClassifyStage)(nil)
