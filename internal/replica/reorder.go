package replica

import (
	"neobft/internal/wire"
	"neobft/utils"
)

// pending is one arrival parked because it isn't yet head-of-line.
type pending struct {
	Multicast wire.Multicast
	Request   wire.Request
}

// ReorderBuffer stages ordered packets that arrive before their
// predecessor is ready to commit. Entries live only until their seq
// becomes head-of-line.
//
// fingerprints deduplicates retransmissions of an already-parked arrival:
// a slow or lossy link can redeliver the same (seq, request) pair many
// times before its predecessor commits, and without a cheap way to
// recognize a repeat, each redelivery would grow bySeq[seq] forever. The
// fingerprint is a short blake2b digest (utils.Generichash), not the
// wire-mandated SHA-256 multicast digest; it never leaves this buffer and
// carries no authentication meaning, only dedup.
type ReorderBuffer struct {
	bySeq        map[uint32][]pending
	fingerprints map[uint32]map[[8]byte]bool
}

func newReorderBuffer() *ReorderBuffer {
	return &ReorderBuffer{
		bySeq:        make(map[uint32][]pending),
		fingerprints: make(map[uint32]map[[8]byte]bool),
	}
}

// Park stages an arrival for later draining. A byte-identical repeat of
// an arrival already parked at the same seq is absorbed rather than
// appended again; a distinct payload at the same seq is still parked
// (it may be an equivocation attempt, and that decision belongs to
// handleRequest once it reaches head-of-line, not to this buffer).
func (b *ReorderBuffer) Park(m wire.Multicast, r wire.Request) {
	fp := fingerprint(m.Seq, r)
	seen := b.fingerprints[m.Seq]
	if seen == nil {
		seen = make(map[[8]byte]bool)
		b.fingerprints[m.Seq] = seen
	}
	if seen[fp] {
		return
	}
	seen[fp] = true
	b.bySeq[m.Seq] = append(b.bySeq[m.Seq], pending{Multicast: m, Request: r})
}

// Take removes and returns the parked arrivals for seq, if any.
func (b *ReorderBuffer) Take(seq uint32) ([]pending, bool) {
	entries, ok := b.bySeq[seq]
	if !ok {
		return nil, false
	}
	delete(b.bySeq, seq)
	delete(b.fingerprints, seq)
	return entries, true
}

func fingerprint(seq uint32, r wire.Request) [8]byte {
	var seqBytes [4]byte
	seqBytes[0] = byte(seq >> 24)
	seqBytes[1] = byte(seq >> 16)
	seqBytes[2] = byte(seq >> 8)
	seqBytes[3] = byte(seq)
	sum := utils.Generichash(8, utils.Concat(seqBytes[:], r.Marshal()))
	var out [8]byte
	copy(out[:], sum)
	return out
}
