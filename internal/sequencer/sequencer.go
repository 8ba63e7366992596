// Package sequencer implements the single-writer ordering oracle: it
// assigns monotonic sequence numbers to incoming requests and hands them
// to one of the two authentication-discipline stages for signing/MACing
// and multicast fan-out.
package sequencer

import (
	"crypto/ecdsa"

	"neobft/internal/pipeline"
	"neobft/internal/wire"
)

// SignInput is the event the signing stages consume: an assigned
// sequence number, its multicast digest, and the serialized request body
// that will be re-framed for egress.
type SignInput struct {
	Seq    uint32
	Digest [32]byte
	Body   []byte
}

// Sequencer is the core 0 stage: on each received datagram it assigns
// the next sequence number and computes the multicast digest. It is not
// safe for concurrent Update calls; by construction it runs on exactly
// one goroutine.
type Sequencer struct {
	seq uint32
}

// Update implements pipeline.Stage[[]byte, SignInput]. The input is the
// serialized request body alone, with no header bytes: callers decode the
// client's Message envelope and pass the re-marshaled Request.
func (s *Sequencer) Update(body []byte) SignInput {
	s.seq++
	digest := wire.Digest(s.seq, body)
	return SignInput{Seq: s.seq, Digest: digest, Body: body}
}

var _ pipeline.Stage[[]byte, SignInput] = (*Sequencer)(nil)

// GroupAddr is the multicast address replicas listen on; signing stages
// address their Send effects there.
type GroupAddr = wire.NodeAddr

// Key carries whichever key material an authentication discipline needs.
type Key struct {
	PrivateKey *ecdsa.PrivateKey // P-256 disciplines
}
