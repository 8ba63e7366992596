package sequencer

import (
	"encoding/binary"

	"neobft/internal/crypto/siphash"
	"neobft/internal/pipeline"
	"neobft/internal/wire"
)

// SipHashStage authenticates an ordered packet under the SipHash
// discipline: for a replica group of size R, it emits ⌈R/4⌉ packets,
// the k-th carrying SipHash-2-4 MACs for replicas 4k..min(4k+4,R), keyed
// by (all-ones, replicaID), over the 32-byte digest.
type SipHashStage struct {
	ReplicaCount uint32
	Group        wire.NodeAddr
}

func (s *SipHashStage) Update(in SignInput) pipeline.Effect {
	var effects []pipeline.Effect
	for base := uint32(0); base < s.ReplicaCount; base += 4 {
		end := base + 4
		if end > s.ReplicaCount {
			end = s.ReplicaCount
		}
		var sig [64]byte
		binary.BigEndian.PutUint32(sig[0:4], base)
		for id := base; id < end; id++ {
			mac := siphash.MAC(id, in.Digest[:])
			offset := 4 + (id-base)*4
			copy(sig[offset:offset+4], mac[:])
		}
		packet := wire.EncodeOrderedPacket(in.Seq, sig, in.Body)
		effects = append(effects, pipeline.SendEffect(s.Group, packet))
	}
	return pipeline.ComposeEffects(effects...)
}

var _ pipeline.Stage[SignInput, pipeline.Effect] = (*SipHashStage)(nil)
