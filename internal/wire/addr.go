// Package wire implements the deterministic binary encoding used on the
// wire: node addresses, requests, replies, ordered packets, and the
// fixed-layout 68-byte multicast header.
package wire

import (
	"fmt"
	"net"
)

// NodeAddr is either a UDP socket endpoint or an in-process test id.
// Equality and hashing are structural, so it is safe to use as a map key.
type NodeAddr struct {
	kind   addrKind
	testID uint32
	ip     string
	port   uint16
}

type addrKind uint8

const (
	addrTestClient addrKind = iota
	addrTestReplica
	addrSocket
)

func TestClient(id uint32) NodeAddr  { return NodeAddr{kind: addrTestClient, testID: id} }
func TestReplica(id uint32) NodeAddr { return NodeAddr{kind: addrTestReplica, testID: id} }

func Socket(addr *net.UDPAddr) NodeAddr {
	return NodeAddr{kind: addrSocket, ip: addr.IP.String(), port: uint16(addr.Port)}
}

func (a NodeAddr) UDPAddr() *net.UDPAddr {
	if a.kind != addrSocket {
		panic("NodeAddr.UDPAddr: not a socket address")
	}
	return &net.UDPAddr{IP: net.ParseIP(a.ip), Port: int(a.port)}
}

func (a NodeAddr) String() string {
	switch a.kind {
	case addrTestClient:
		return fmt.Sprintf("test-client:%d", a.testID)
	case addrTestReplica:
		return fmt.Sprintf("test-replica:%d", a.testID)
	default:
		return fmt.Sprintf("%s:%d", a.ip, a.port)
	}
}

func encodeAddr(w *writer, a NodeAddr) {
	w.u8(uint8(a.kind))
	switch a.kind {
	case addrTestClient, addrTestReplica:
		w.u32(a.testID)
	case addrSocket:
		w.bytes([]byte(a.ip))
		w.u16(a.port)
	default:
		panic("encodeAddr: unknown NodeAddr kind")
	}
}

func decodeAddr(r *reader) NodeAddr {
	kind := addrKind(r.u8())
	switch kind {
	case addrTestClient, addrTestReplica:
		return NodeAddr{kind: kind, testID: r.u32()}
	case addrSocket:
		ip := string(r.bytes())
		port := r.u16()
		return NodeAddr{kind: addrSocket, ip: ip, port: port}
	default:
		panic("decodeAddr: unknown NodeAddr discriminant")
	}
}
