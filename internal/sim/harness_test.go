package sim_test

import (
	"bytes"
	"crypto/ecdsa"
	"testing"

	"neobft/internal/app"
	"neobft/internal/crypto/p256"
	"neobft/internal/crypto/siphash"
	"neobft/internal/discipline"
	"neobft/internal/pipeline"
	"neobft/internal/sequencer"
	"neobft/internal/sim"
	"neobft/internal/wire"
)

// countingApp records how many times Execute ran, for P3 (at-most-once).
type countingApp struct {
	executions *int
}

func (a countingApp) Execute(op []byte) []byte {
	*a.executions++
	out := make([]byte, len(op))
	copy(out, op)
	return out
}

// firstSend returns the payload of the first Send effect decomposed from e.
func firstSend(t *testing.T, e pipeline.Effect) []byte {
	t.Helper()
	for _, atom := range e.Decompose() {
		if atom.Kind == pipeline.Send {
			return atom.Payload
		}
	}
	t.Fatal("expected at least one Send effect, found none")
	return nil
}

// repliesIn decomposes e and returns every Reply message it carries, in
// the order the commit loop produced them.
func repliesIn(e pipeline.Effect) []wire.Reply {
	var out []wire.Reply
	for _, atom := range e.Decompose() {
		if atom.Kind != pipeline.Send {
			continue
		}
		msg := wire.UnmarshalMessage(atom.Payload)
		if msg.Tag == wire.TagReply {
			out = append(out, msg.Reply)
		}
	}
	return out
}

// sipHashPacket hand-crafts a single ordered SipHash packet at seq,
// independent of any Sequencer instance, so tests can force two packets to
// carry the same seq (equivocation) or arrive out of generation order.
func sipHashPacket(seq uint32, req wire.Request, replicaCount uint32) []byte {
	body := req.Marshal()
	digest := wire.Digest(seq, body)
	var sig [64]byte
	end := replicaCount
	if end > 4 {
		end = 4
	}
	for id := uint32(0); id < end; id++ {
		mac := siphash.MAC(id, digest[:])
		copy(sig[4+id*4:4+id*4+4], mac[:])
	}
	return wire.EncodeOrderedPacket(seq, sig, body)
}

// Scenario 1: single op echo, 1 replica, P-256, f=0.
func TestScenarioSingleOpEchoP256(t *testing.T) {
	key, err := p256.NewKey()
	if err != nil {
		t.Fatalf("NewKey: %v", err)
	}
	group := wire.TestClient(9000)
	seqAddr := wire.TestClient(9001)
	replicaAddr := wire.TestReplica(0)
	clientAddr := wire.TestClient(1)

	h := sim.New()
	h.Register(seqAddr, sim.NewSequencerNode(discipline.P256, 1, sequencer.Key{PrivateKey: key}, group, 0))
	h.Register(replicaAddr, sim.NewReplicaNode(0, 0, 1, discipline.P256, &key.PublicKey, 0, app.Echo{}))
	h.RegisterGroup(group, replicaAddr)
	h.Register(clientAddr, sim.NewClientNode(1, clientAddr, seqAddr, 0))

	h.Submit(clientAddr, []byte("hello"))
	h.Run()

	results := h.Results[clientAddr]
	if len(results) != 1 {
		t.Fatalf("expected exactly one delivered result, got %d: %v", len(results), results)
	}
	if !bytes.Equal(results[0], []byte("hello")) {
		t.Fatalf("delivered result mismatch: got %q", results[0])
	}
}

// Scenario 2: three-replica SipHash, f=1, R=4. A single packet covers the
// whole group; all three simulated replicas commit and reply, and the
// client delivers on the third (2f+1) reply.
func TestScenarioThreeReplicaSipHash(t *testing.T) {
	group := wire.TestClient(9010)
	seqAddr := wire.TestClient(9011)
	clientAddr := wire.TestClient(2)

	h := sim.New()
	h.Register(seqAddr, sim.NewSequencerNode(discipline.SipHash, 4, sequencer.Key{}, group, 0))

	var replicaAddrs []wire.NodeAddr
	for id := uint8(0); id < 3; id++ {
		addr := wire.TestReplica(uint32(id) + 1)
		h.Register(addr, sim.NewReplicaNode(id, 1, 4, discipline.SipHash, nil, 0, app.Echo{}))
		replicaAddrs = append(replicaAddrs, addr)
	}
	h.RegisterGroup(group, replicaAddrs...)
	h.Register(clientAddr, sim.NewClientNode(2, clientAddr, seqAddr, 1))

	h.Submit(clientAddr, []byte("x"))
	h.Run()

	results := h.Results[clientAddr]
	if len(results) != 1 {
		t.Fatalf("expected delivery on the 2f+1'th reply, got %d results", len(results))
	}
	if !bytes.Equal(results[0], []byte("x")) {
		t.Fatalf("delivered result mismatch: got %q", results[0])
	}
}

// Boundary: f=0, a single SipHash MAC suffices to commit.
func TestBoundaryFZeroSipHash(t *testing.T) {
	replicaAddr := wire.TestReplica(20)
	seqNode := sim.NewSequencerNode(discipline.SipHash, 1, sequencer.Key{}, wire.TestClient(9020), 0)
	replicaNode := sim.NewReplicaNode(0, 0, 1, discipline.SipHash, nil, 0, app.Echo{})
	_ = replicaAddr

	req := wire.Request{ClientID: 1, ClientAddr: wire.TestClient(1), RequestNum: 1, Op: []byte("z")}
	packet := firstSend(t, seqNode.Deliver(wire.MakeRequest(req).Marshal()))
	reps := repliesIn(replicaNode.Deliver(packet))
	if len(reps) != 1 || !bytes.Equal(reps[0].Result, []byte("z")) {
		t.Fatalf("expected a single-MAC commit under f=0, got %v", reps)
	}
}

// Boundary: f=0, a single P-256 signature suffices to commit.
func TestBoundaryFZeroP256(t *testing.T) {
	key, _ := p256.NewKey()
	seqNode := sim.NewSequencerNode(discipline.P256, 1, sequencer.Key{PrivateKey: key}, wire.TestClient(9021), 0)
	replicaNode := sim.NewReplicaNode(0, 0, 1, discipline.P256, &key.PublicKey, 0, app.Echo{})

	req := wire.Request{ClientID: 1, ClientAddr: wire.TestClient(1), RequestNum: 1, Op: []byte("z")}
	packet := firstSend(t, seqNode.Deliver(wire.MakeRequest(req).Marshal()))
	reps := repliesIn(replicaNode.Deliver(packet))
	if len(reps) != 1 || !bytes.Equal(reps[0].Result, []byte("z")) {
		t.Fatalf("expected a single-signature commit under f=0, got %v", reps)
	}
}

// P1/boundary: seq arrivals {3, 1, 2} must commit in order 1, 2, 3.
func TestReorderCommitsInSequenceOrder(t *testing.T) {
	seqNode := sim.NewSequencerNode(discipline.SipHash, 4, sequencer.Key{}, wire.TestClient(9030), 0)
	replicaNode := sim.NewReplicaNode(0, 1, 4, discipline.SipHash, nil, 0, app.Echo{})

	var packets [3][]byte
	for i := 0; i < 3; i++ {
		req := wire.Request{ClientID: 1, ClientAddr: wire.TestClient(1), RequestNum: uint32(i + 1), Op: []byte{byte('a' + i)}}
		packets[i] = firstSend(t, seqNode.Deliver(wire.MakeRequest(req).Marshal()))
	}

	var committed []uint32
	for _, i := range []int{2, 0, 1} { // delivery order: seq 3, 1, 2
		for _, r := range repliesIn(replicaNode.Deliver(packets[i])) {
			committed = append(committed, r.Seq)
		}
	}
	if len(committed) != 3 || committed[0] != 1 || committed[1] != 2 || committed[2] != 3 {
		t.Fatalf("expected commits in order [1 2 3], got %v", committed)
	}
}

// P3: at-most-once. A resend after a lost reply must not re-execute the
// application; the replica resends the cached reply, carrying the
// original commit's seq rather than the new one the sequencer assigned.
func TestDuplicateRequestResendsCachedReply(t *testing.T) {
	execCount := 0
	application := countingApp{executions: &execCount}

	seqNode := sim.NewSequencerNode(discipline.SipHash, 1, sequencer.Key{}, wire.TestClient(9040), 0)
	replicaNode := sim.NewReplicaNode(0, 0, 1, discipline.SipHash, nil, 0, application)

	req := wire.Request{ClientID: 7, ClientAddr: wire.TestClient(7), RequestNum: 5, Op: []byte("y")}

	firstPacket := firstSend(t, seqNode.Deliver(wire.MakeRequest(req).Marshal())) // seq=1
	firstReplies := repliesIn(replicaNode.Deliver(firstPacket))
	if execCount != 1 || len(firstReplies) != 1 || firstReplies[0].Seq != 1 {
		t.Fatalf("expected one execution and a seq=1 reply, got execCount=%d replies=%v", execCount, firstReplies)
	}

	secondPacket := firstSend(t, seqNode.Deliver(wire.MakeRequest(req).Marshal())) // seq=2, same request_num
	secondReplies := repliesIn(replicaNode.Deliver(secondPacket))
	if execCount != 1 {
		t.Fatalf("a resend of the same request_num must not re-execute, got %d executions", execCount)
	}
	if len(secondReplies) != 1 || secondReplies[0].Seq != 1 {
		t.Fatalf("expected the cached reply (seq=1) to be resent, got %v", secondReplies)
	}
}

// Equivocation: two ordered packets at the same seq with different
// requests. The replica accepts the first, drops the second, and commits
// only the first.
func TestEquivocatingPairDropsSecond(t *testing.T) {
	replicaNode := sim.NewReplicaNode(0, 0, 1, discipline.SipHash, nil, 0, app.Echo{})

	seed := wire.Request{ClientID: 1, ClientAddr: wire.TestClient(1), RequestNum: 1, Op: []byte("seed")}
	repliesIn(replicaNode.Deliver(sipHashPacket(1, seed, 1))) // commit seq 1 so seq 2 is next

	reqA := wire.Request{ClientID: 2, ClientAddr: wire.TestClient(2), RequestNum: 1, Op: []byte("a")}
	reqB := wire.Request{ClientID: 2, ClientAddr: wire.TestClient(2), RequestNum: 1, Op: []byte("b")}

	firstReplies := repliesIn(replicaNode.Deliver(sipHashPacket(2, reqA, 1)))
	if len(firstReplies) != 1 || firstReplies[0].Seq != 2 || !bytes.Equal(firstReplies[0].Result, []byte("a")) {
		t.Fatalf("expected the first arrival at seq 2 to commit with op \"a\", got %v", firstReplies)
	}

	secondEffect := replicaNode.Deliver(sipHashPacket(2, reqB, 1))
	if !secondEffect.IsNop() {
		t.Fatalf("an equivocating second packet at an already-committed seq must be dropped, got %v", secondEffect)
	}
}

// Scenario 6: P-256 linked chain. Every third packet is a link packet. A
// tampered link packet is rejected; the real one, once it arrives, keeps
// the chain verifiable for subsequent packets.
func TestLinkedChainRejectsTamperedLinkPacket(t *testing.T) {
	key, _ := p256.NewKey()
	const linkEvery = 3
	group := wire.TestClient(9050)

	seqNode := sim.NewSequencerNode(discipline.P256Linked, 1, sequencer.Key{PrivateKey: key}, group, linkEvery)
	replicaNode := sim.NewReplicaNode(0, 0, 1, discipline.P256Linked, &key.PublicKey, linkEvery, app.Echo{})

	var packets [4][]byte
	for i := 0; i < 4; i++ {
		req := wire.Request{ClientID: 1, ClientAddr: wire.TestClient(1), RequestNum: uint32(i + 1), Op: []byte{byte('1' + i)}}
		packets[i] = firstSend(t, seqNode.Deliver(wire.MakeRequest(req).Marshal()))
	}

	repliesIn(replicaNode.Deliver(packets[0])) // seq 1
	repliesIn(replicaNode.Deliver(packets[1])) // seq 2

	tamperedSeq3 := append([]byte(nil), packets[2]...)
	tamperedSeq3[4] ^= 0xFF // corrupt the link hash carried in the signature region
	if effect := replicaNode.Deliver(tamperedSeq3); !effect.IsNop() {
		t.Fatalf("a tampered link packet must be rejected without committing, got %v", effect)
	}

	realSeq3 := repliesIn(replicaNode.Deliver(packets[2]))
	if len(realSeq3) != 1 || realSeq3[0].Seq != 3 {
		t.Fatalf("the real link packet must commit seq 3 once delivered, got %v", realSeq3)
	}

	seq4 := repliesIn(replicaNode.Deliver(packets[3]))
	if len(seq4) != 1 || seq4[0].Seq != 4 {
		t.Fatalf("the chain must remain verifiable after the rejected tamper, got %v", seq4)
	}
}

// sanity: NewReplicaNode must still enforce 3f+1 the way Replica.New does.
func TestReplicaNodeEnforcesGroupSizeInvariant(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic for a replicaCount that isn't 3f+1")
		}
	}()
	sim.NewReplicaNode(0, 1, 3, discipline.SipHash, (*ecdsa.PublicKey)(nil), 0, app.Echo{})
}
