// Package sim is an in-memory protocol harness: it wires a Sequencer,
// a group of Replicas, and one or more Clients together over plain Go
// values instead of UDP sockets, draining effects until the queue runs
// dry. Resend logic is driven by an explicit Tick the harness can
// inject on demand rather than a modeled clock.
package sim

import (
	"crypto/ecdsa"
	"fmt"

	"neobft/internal/app"
	"neobft/internal/client"
	"neobft/internal/discipline"
	"neobft/internal/pipeline"
	"neobft/internal/replica"
	"neobft/internal/sequencer"
	"neobft/internal/transport"
	"neobft/internal/wire"
)

// Node is anything the harness can hand a raw wire payload to.
type Node interface {
	Deliver(payload []byte) pipeline.Effect
}

type queued struct {
	addr    wire.NodeAddr
	payload []byte
}

// Harness owns every node's address-keyed routing table, the pending
// message queue, and the per-client Notify results.
type Harness struct {
	nodes   map[wire.NodeAddr]Node
	groups  map[wire.NodeAddr][]wire.NodeAddr
	queue   []queued
	Results map[wire.NodeAddr][][]byte
}

func New() *Harness {
	return &Harness{
		nodes:   make(map[wire.NodeAddr]Node),
		groups:  make(map[wire.NodeAddr][]wire.NodeAddr),
		Results: make(map[wire.NodeAddr][][]byte),
	}
}

func (h *Harness) Register(addr wire.NodeAddr, n Node) {
	h.nodes[addr] = n
}

// RegisterGroup models a UDP multicast group: a Send effect addressed to
// group fans out to every member, the way the kernel fans a multicast
// datagram out to every joined socket.
func (h *Harness) RegisterGroup(group wire.NodeAddr, members ...wire.NodeAddr) {
	h.groups[group] = append(h.groups[group], members...)
}

// Submit injects a client operation directly.
func (h *Harness) Submit(clientAddr wire.NodeAddr, op []byte) {
	cn, ok := h.nodes[clientAddr].(*ClientNode)
	if !ok {
		panic(fmt.Sprintf("sim: %s is not a registered client", clientAddr))
	}
	h.pushEffect(clientAddr, cn.core.Update(client.OpEvent(op)))
}

// Tick delivers a logical tick to a single node (a client, to drive
// resend, or a replica/sequencer if it ever grows tick-driven behavior).
func (h *Harness) Tick(addr wire.NodeAddr) {
	n, ok := h.nodes[addr]
	if !ok {
		panic(fmt.Sprintf("sim: %s is not registered", addr))
	}
	if cn, ok := n.(*ClientNode); ok {
		h.pushEffect(addr, cn.core.Update(client.TickEvent()))
		return
	}
	h.pushEffect(addr, n.Deliver(tickPayload))
}

// tickPayload is turned into a Tick event rather than a datagram by
// ReplicaNode.Deliver before it reaches the ClassifyStage; it can never
// collide with a real packet since every real packet is at least 4 bytes
// and framed per header.go.
var tickPayload = []byte{}

// Run drains the message queue, delivering each queued payload to its
// destination node and re-queuing whatever effects that produces, until
// nothing is left in flight.
func (h *Harness) Run() {
	for len(h.queue) > 0 {
		next := h.queue[0]
		h.queue = h.queue[1:]
		n, ok := h.nodes[next.addr]
		if !ok {
			continue // addressed to an unregistered peer; drop silently
		}
		h.pushEffect(next.addr, n.Deliver(next.payload))
	}
}

// pushEffect recursively flattens a (possibly composite) effect into the
// queue or the Results table.
func (h *Harness) pushEffect(from wire.NodeAddr, e pipeline.Effect) {
	switch e.Kind {
	case pipeline.Nop:
		return
	case pipeline.Compose:
		for _, child := range e.Children {
			h.pushEffect(from, child)
		}
	case pipeline.Notify:
		h.Results[from] = append(h.Results[from], e.Payload)
	case pipeline.Broadcast:
		for addr := range h.nodes {
			h.queue = append(h.queue, queued{addr: addr, payload: e.Payload})
		}
	case pipeline.Send:
		if members, ok := h.groups[e.Addr]; ok {
			for _, addr := range members {
				h.queue = append(h.queue, queued{addr: addr, payload: e.Payload})
			}
			return
		}
		h.queue = append(h.queue, queued{addr: e.Addr, payload: e.Payload})
	}
}

// SequencerNode composes the sequencer's ordering stage with whichever
// authentication-discipline stage signs and fans out the result.
type SequencerNode struct {
	core *sequencer.Sequencer
	sign pipeline.Stage[sequencer.SignInput, pipeline.Effect]
}

func (n *SequencerNode) Deliver(payload []byte) pipeline.Effect {
	msg := wire.UnmarshalMessage(payload)
	if msg.Tag != wire.TagRequest {
		return pipeline.NopEffect()
	}
	in := n.core.Update(msg.Request.Marshal())
	return n.sign.Update(in)
}

// NewSequencerNode builds a SequencerNode for disc, signing with key
// where the discipline requires one and fanning signed packets out to
// group. linkEvery is ignored outside discipline.P256Linked.
func NewSequencerNode(disc discipline.Kind, replicaCount uint32, key sequencer.Key, group wire.NodeAddr, linkEvery uint32) *SequencerNode {
	var sign pipeline.Stage[sequencer.SignInput, pipeline.Effect]
	switch disc {
	case discipline.SipHash:
		sign = &sequencer.SipHashStage{ReplicaCount: replicaCount, Group: group}
	case discipline.P256:
		sign = &sequencer.P256Stage{PrivateKey: key.PrivateKey, Group: group}
	case discipline.P256Linked:
		sign = &sequencer.P256LinkedStage{PrivateKey: key.PrivateKey, Group: group, LinkEvery: linkEvery}
	default:
		panic("sim: unknown discipline")
	}
	return &SequencerNode{core: &sequencer.Sequencer{}, sign: sign}
}

// ReplicaNode composes the receive-path classifier, an optional
// asymmetric-verify stage, and the commit-loop core.
type ReplicaNode struct {
	classify *replica.ClassifyStage
	verify   *replica.VerifyStage // nil under discipline.SipHash
	core     *replica.Replica
}

func (n *ReplicaNode) Deliver(payload []byte) pipeline.Effect {
	if len(payload) == 0 {
		out := n.classify.Update(transport.Event{Tick: true})
		return n.dispatch(out)
	}
	out := n.classify.Update(transport.Event{Data: payload})
	if n.verify != nil {
		out = n.verify.Update(out)
	}
	return n.dispatch(out)
}

func (n *ReplicaNode) dispatch(out replica.ClassifyOutput) pipeline.Effect {
	if out.Decision != replica.DecisionOrdered {
		return pipeline.NopEffect()
	}
	return n.core.HandleOrderedRequest(out.Multicast, out.Request)
}

// NewReplicaNode builds a ReplicaNode for replica id among replicaCount
// peers tolerating f faults, under disc, verifying against sequencerKey.
func NewReplicaNode(id uint8, f int, replicaCount uint32, disc discipline.Kind, sequencerKey *ecdsa.PublicKey, linkEvery uint32, application app.App) *ReplicaNode {
	r := replica.New(id, f, replicaCount, disc, sequencerKey, application)
	if linkEvery > 0 {
		r.SetLinkEvery(linkEvery)
	}
	n := &ReplicaNode{
		classify: &replica.ClassifyStage{ReplicaID: id, Discipline: disc},
		core:     r,
	}
	if disc != discipline.SipHash {
		n.verify = &replica.VerifyStage{SequencerKey: sequencerKey, Discipline: disc, LinkEvery: linkEvery}
	}
	return n
}

// ClientNode wraps a client.Client so the harness can route it
// Reply messages by address while still letting Submit/Tick reach into
// its Update directly for op/tick events.
type ClientNode struct {
	core *client.Client
}

func (n *ClientNode) Deliver(payload []byte) pipeline.Effect {
	msg := wire.UnmarshalMessage(payload)
	return n.core.Update(client.MessageEvent(msg))
}

func NewClientNode(id uint32, addr, multicastAddr wire.NodeAddr, f int) *ClientNode {
	return &ClientNode{core: client.New(id, addr, multicastAddr, f)}
}
