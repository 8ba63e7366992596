package sequencer

import (
	"crypto/ecdsa"

	"neobft/internal/crypto/p256"
	"neobft/internal/pipeline"
	"neobft/internal/wire"
)

// P256Stage authenticates an ordered packet under the P-256 discipline:
// one packet, signed with a fixed ECDSA key.
type P256Stage struct {
	PrivateKey *ecdsa.PrivateKey
	Group      wire.NodeAddr
}

func (s *P256Stage) Update(in SignInput) pipeline.Effect {
	sig := p256.Sign(s.PrivateKey, in.Digest[:])
	packet := wire.EncodeOrderedPacket(in.Seq, sig, in.Body)
	return pipeline.SendEffect(s.Group, packet)
}

var _ pipeline.Stage[SignInput, pipeline.Effect] = (*P256Stage)(nil)

// P256LinkedStage is the linking extension: every LinkEvery-th packet
// carries a link hash instead of a fresh signature, amortizing signing
// cost across a run. The choice of which packets are link packets is a
// pure function of seq, known to both the sequencer and every replica,
// so a replica tells a link packet from a signed one without an extra
// wire tag.
type P256LinkedStage struct {
	PrivateKey   *ecdsa.PrivateKey
	Group        wire.NodeAddr
	LinkEvery    uint32
	prevLinkHash [32]byte
}

// IsLinkPacket reports whether seq carries a link hash rather than a
// fresh signature, under the fixed periodicity convention LinkEvery
// establishes. seq 1 is always signed so a chain has a starting point.
func IsLinkPacket(seq uint32, linkEvery uint32) bool {
	return linkEvery > 1 && seq > 1 && seq%linkEvery == 0
}

func (s *P256LinkedStage) Update(in SignInput) pipeline.Effect {
	var sig [64]byte
	if IsLinkPacket(in.Seq, s.LinkEvery) {
		// emit the chain value accumulated through the previous packet;
		// replicas verify it against the next_link they computed there.
		copy(sig[0:32], s.prevLinkHash[:])
	} else {
		sig = p256.Sign(s.PrivateKey, in.Digest[:])
	}
	s.prevLinkHash = p256.LinkHash(in.Digest, s.prevLinkHash)
	packet := wire.EncodeOrderedPacket(in.Seq, sig, in.Body)
	return pipeline.SendEffect(s.Group, packet)
}

var _ pipeline.Stage[SignInput, pipeline.Effect] = (*P256LinkedStage)(nil)
