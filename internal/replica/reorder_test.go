package replica

import (
	"testing"

	"neobft/internal/wire"
)

func TestReorderParkAndTake(t *testing.T) {
	b := newReorderBuffer()
	req := wire.Request{ClientID: 1, RequestNum: 1, Op: []byte("a")}
	b.Park(wire.Multicast{Seq: 2}, req)

	if _, ok := b.Take(1); ok {
		t.Fatal("seq 1 was never parked")
	}
	entries, ok := b.Take(2)
	if !ok || len(entries) != 1 {
		t.Fatalf("expected one parked entry at seq 2, got %v, %v", entries, ok)
	}
	if _, ok := b.Take(2); ok {
		t.Fatal("Take must remove entries once returned")
	}
}

func TestReorderDuplicateParkIsDeduped(t *testing.T) {
	b := newReorderBuffer()
	req := wire.Request{ClientID: 1, RequestNum: 1, Op: []byte("a")}
	m := wire.Multicast{Seq: 5}

	b.Park(m, req)
	b.Park(m, req) // a retransmission of the same arrival
	entries, ok := b.Take(5)
	if !ok || len(entries) != 1 {
		t.Fatalf("retransmitted arrival must be deduped, got %d entries", len(entries))
	}
}

func TestReorderDistinctPayloadsAtSameSeqBothPark(t *testing.T) {
	b := newReorderBuffer()
	m := wire.Multicast{Seq: 5}
	reqA := wire.Request{ClientID: 1, RequestNum: 1, Op: []byte("a")}
	reqB := wire.Request{ClientID: 1, RequestNum: 1, Op: []byte("b")}

	b.Park(m, reqA)
	b.Park(m, reqB)
	entries, ok := b.Take(5)
	if !ok || len(entries) != 2 {
		t.Fatalf("distinct payloads parked at the same seq must both be kept, got %d entries", len(entries))
	}
}
