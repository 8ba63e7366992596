package replica

import (
	"crypto/ecdsa"
	"log"

	"neobft/internal/crypto/p256"
	"neobft/internal/discipline"
	"neobft/internal/pipeline"
)

// VerifyStage is the CPU-heavy asymmetric-verify worker: it checks a
// P-256 signature off the logic thread and forwards the result. It is
// stateless and safe to run on any number of parallel worker goroutines.
type VerifyStage struct {
	SequencerKey *ecdsa.PublicKey
	Discipline   discipline.Kind
	LinkEvery    uint32
}

// Update passes through anything that isn't pending verification, and
// otherwise checks the ECDSA signature, demoting the result to Drop on
// failure. Link packets carry a chain hash rather than a signature and
// are intentionally not checked here: their verification needs the
// replica's local chain state and happens in handleP256 on the logic
// thread.
func (v *VerifyStage) Update(in ClassifyOutput) ClassifyOutput {
	if in.Decision != DecisionNeedsVerify {
		return in
	}
	if v.Discipline == discipline.P256Linked && replicaSequencerIsLinkPacket(in.Multicast, v.LinkEvery) {
		return ClassifyOutput{Decision: DecisionOrdered, Multicast: in.Multicast, Request: in.Request, Digest: in.Digest}
	}
	if !p256.Verify(v.SequencerKey, in.Digest[:], in.Multicast.Signature) {
		log.Println("replica: malformed (invalid P-256 signature)")
		return ClassifyOutput{Decision: DecisionDrop}
	}
	return ClassifyOutput{Decision: DecisionOrdered, Multicast: in.Multicast, Request: in.Request, Digest: in.Digest}
}

var _ pipeline.Stage[ClassifyOutput, ClassifyOutput] = (*VerifyStage)(nil)
