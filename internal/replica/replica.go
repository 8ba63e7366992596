package replica

import (
	"crypto/ecdsa"
	"fmt"
	"log"

	"neobft/internal/app"
	"neobft/internal/crypto/p256"
	"neobft/internal/discipline"
	"neobft/internal/pipeline"
	"neobft/internal/wire"
)

// Replica holds every piece of mutable state the commit loop touches.
// All of it is owned by the single goroutine that calls Update: no
// locking, single-writer by construction.
type Replica struct {
	id           uint8
	f            int
	discipline   discipline.Kind
	linkEvery    uint32
	sequencerKey *ecdsa.PublicKey // verifies P-256 signatures/link hashes

	log                 Log
	multicastSignatures map[uint32]*MulticastSignature
	reorder             *ReorderBuffer
	replies             *ReplyCache
	app                 app.App
	specNum             uint32 // last committed seq
}

// New constructs a Replica for replica id among a group of replicaCount,
// tolerating f Byzantine replicas. It panics if replicaCount != 3f+1.
func New(id uint8, f int, replicaCount uint32, disc discipline.Kind, sequencerKey *ecdsa.PublicKey, application app.App) *Replica {
	if want := uint32(3*f + 1); replicaCount != want {
		panic(fmt.Sprintf("replica: invariant violation: replica count must be 3f+1, got %d for f=%d (want %d)", replicaCount, f, want))
	}
	return &Replica{
		id:                  id,
		f:                   f,
		discipline:          disc,
		linkEvery:           0,
		sequencerKey:        sequencerKey,
		multicastSignatures: make(map[uint32]*MulticastSignature),
		reorder:             newReorderBuffer(),
		replies:             newReplyCache(),
		app:                 application,
	}
}

// SetLinkEvery configures the P-256-with-linking periodicity; it must
// match the sequencer's configuration exactly.
func (r *Replica) SetLinkEvery(every uint32) { r.linkEvery = every }

// nextEntry is log.len()+1, the next seq the replica expects to append.
func (r *Replica) nextEntry() uint32 { return r.log.Len() + 1 }

// multicastComplete reports whether seq has collected sufficient
// authentication to commit.
func (r *Replica) multicastComplete(seq uint32) bool {
	return r.multicastSignatures[seq].Complete(r.f)
}

// orderedEntry is next_entry if next_entry == 1 or
// multicast_complete(next_entry-1), else next_entry-1: the tail entry may
// still be in-flight, so don't gate on it twice.
func (r *Replica) orderedEntry() uint32 {
	next := r.nextEntry()
	if next == 1 || r.multicastComplete(next-1) {
		return next
	}
	return next - 1
}

// HandleOrderedRequest runs the commit loop: the reorder gate, then
// draining head-of-line arrivals until no progress. It is the only entry
// point that mutates replica state; it must run on exactly one goroutine.
func (r *Replica) HandleOrderedRequest(m wire.Multicast, req wire.Request) pipeline.Effect {
	var effects []pipeline.Effect
	r.dispatchOrPark(m, req, &effects)
	for {
		entries, ok := r.reorder.Take(r.orderedEntry())
		if !ok {
			break
		}
		progressed := false
		for _, p := range entries {
			r.handleRequest(p.Multicast, p.Request, &effects)
			progressed = true
		}
		if !progressed {
			break
		}
	}
	return pipeline.ComposeEffects(effects...)
}

func (r *Replica) dispatchOrPark(m wire.Multicast, req wire.Request, effects *[]pipeline.Effect) {
	if m.Seq != r.orderedEntry() {
		r.reorder.Park(m, req)
		return
	}
	r.handleRequest(m, req, effects)
}

// handleRequest does discipline-specific append/accumulate, then
// speculative commit of every now-complete entry up to m.seq.
func (r *Replica) handleRequest(m wire.Multicast, req wire.Request, effects *[]pipeline.Effect) {
	switch r.discipline {
	case discipline.SipHash:
		r.handleSipHash(m, req)
	case discipline.P256:
		r.handleP256(m, req, false)
	case discipline.P256Linked:
		r.handleP256(m, req, true)
	default:
		panic("replica: unknown discipline")
	}

	if r.multicastComplete(m.Seq) {
		r.commitThrough(m.Seq, effects)
	}
}

func (r *Replica) handleSipHash(m wire.Multicast, req wire.Request) {
	if r.log.Has(m.Seq) {
		if !requestsEqual(r.log.At(m.Seq).Request, req) {
			log.Printf("replica %d: multicast request mismatch at seq %d, dropping", r.id, m.Seq)
			return
		}
	} else if r.nextEntry() == m.Seq {
		r.log.Append(LogEntry{Request: req})
	}

	sig := r.multicastSignatures[m.Seq]
	if sig == nil {
		sig = newSipHashSignature()
		r.multicastSignatures[m.Seq] = sig
	}
	// The inline SipHash MAC check for this replica's own id happens in
	// the classify stage, on the receive thread; by the time an
	// OrderedRequest reaches here it is already known-good for r.id, so
	// handleSipHash only needs to accumulate whichever MACs the packet
	// carries into the signatures table.
	first := firstCoveredReplica(m.Signature)
	for offset := uint32(0); offset < 4; offset++ {
		id := first + offset
		macStart := 4 + offset*4
		var mac [4]byte
		copy(mac[:], m.Signature[macStart:macStart+4])
		if mac == ([4]byte{}) {
			continue
		}
		sig.MACs[uint8(id)] = mac
	}
}

func (r *Replica) handleP256(m wire.Multicast, req wire.Request, linked bool) {
	prevLink := [32]byte{}
	if r.log.Len() > 0 {
		prevLink = r.log.At(r.log.Len()).NextLink
	}
	digest := wire.Digest(m.Seq, req.Marshal())

	if linked && replicaSequencerIsLinkPacket(m, r.linkEvery) {
		var gotLink [32]byte
		copy(gotLink[:], m.Signature[0:32])
		if gotLink != prevLink {
			log.Printf("replica %d: link hash mismatch at seq %d, dropping", r.id, m.Seq)
			return
		}
	}

	if r.log.Has(m.Seq) {
		return
	}
	if r.nextEntry() != m.Seq {
		return
	}
	next := p256.LinkHash(digest, prevLink)
	r.log.Append(LogEntry{Request: req, NextLink: next})
	r.multicastSignatures[m.Seq] = &MulticastSignature{Kind: SigP256, Sig: m.Signature}
}

// replicaSequencerIsLinkPacket mirrors sequencer.IsLinkPacket so the
// replica package does not depend on the sequencer package.
func replicaSequencerIsLinkPacket(m wire.Multicast, linkEvery uint32) bool {
	return linkEvery > 1 && m.Seq > 1 && m.Seq%linkEvery == 0
}

// commitThrough executes the application for every entry from specNum+1
// through seq, updates the reply cache, and emits a Reply to each
// client.
func (r *Replica) commitThrough(seq uint32, effects *[]pipeline.Effect) {
	for n := r.specNum + 1; n <= seq; n++ {
		entry := r.log.At(n)
		clientID := entry.Request.ClientID

		if cached, ok := r.replies.Lookup(clientID); ok {
			switch {
			case cached.RequestNum > entry.Request.RequestNum:
				continue // stale, drop
			case cached.RequestNum == entry.Request.RequestNum:
				*effects = append(*effects, pipeline.SendMessage(entry.Request.ClientAddr, wire.MakeReply(cached)))
				continue
			}
		}

		result := r.app.Execute(entry.Request.Op)
		reply := wire.Reply{RequestNum: entry.Request.RequestNum, Result: result, ReplicaID: r.id, Seq: n}
		r.replies.Store(clientID, reply)
		*effects = append(*effects, pipeline.SendMessage(entry.Request.ClientAddr, wire.MakeReply(reply)))
	}
	r.specNum = seq
}

func requestsEqual(a, b wire.Request) bool {
	if a.ClientID != b.ClientID || a.RequestNum != b.RequestNum || len(a.Op) != len(b.Op) {
		return false
	}
	for i := range a.Op {
		if a.Op[i] != b.Op[i] {
			return false
		}
	}
	return true
}

// firstCoveredReplica reads the first-replica index i out of a SipHash
// signature region's first 4 bytes.
func firstCoveredReplica(sig [64]byte) uint32 {
	return uint32(sig[0])<<24 | uint32(sig[1])<<16 | uint32(sig[2])<<8 | uint32(sig[3])
}
