// Package transport wires the pipeline substrate to a UDP socket: binding
// and multicast-group joining, a blocking receive loop that emits a Tick
// event on idle timeout, and SIGINT-driven graceful shutdown.
package transport

import (
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"neobft/internal/pipeline"
)

// TickInterval is the logical tick period: a read deadline of this length
// turns a socket timeout into a Tick event, the Go analogue of
// udp.rs's 10ms recv_deadline.
const TickInterval = 10 * time.Millisecond

// Event is emitted by Receiver.Run: either a received datagram or a tick.
type Event struct {
	Tick bool
	Data []byte
	From *net.UDPAddr
}

// Listen binds a UDP socket for unicast receive, e.g. the sequencer's
// client-facing port.
func Listen(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}

// ListenMulticast joins an IPv4 multicast group on the unspecified
// interface, the form replicas use to receive ordered packets (and the
// relay uses to receive what it forwards).
func ListenMulticast(group string) (*net.UDPConn, error) {
	groupAddr, err := net.ResolveUDPAddr("udp", group)
	if err != nil {
		return nil, err
	}
	return net.ListenMulticastUDP("udp", nil, groupAddr)
}

// Receiver implements pipeline.Generate[Event] over a *net.UDPConn: it
// loops on ReadFromUDP with a short deadline, emitting Event{Tick: true}
// on timeout and Event{Data: ...} on a received datagram, until stop is
// closed or the socket errors out.
type Receiver struct {
	Conn       *net.UDPConn
	BufferSize int
}

func (r *Receiver) Run(downstream chan<- Event, stop <-chan struct{}) {
	bufSize := r.BufferSize
	if bufSize == 0 {
		bufSize = 64 * 1024
	}
	buf := make([]byte, bufSize)
	for {
		select {
		case <-stop:
			return
		default:
		}
		_ = r.Conn.SetReadDeadline(time.Now().Add(TickInterval))
		n, from, err := r.Conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				downstream <- Event{Tick: true}
				continue
			}
			// a closed socket during shutdown ends the loop cleanly;
			// any other transport fault is a violated assumption.
			select {
			case <-stop:
				return
			default:
				panic("transport: unexpected UDP read error: " + err.Error())
			}
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		downstream <- Event{Data: packet, From: from}
	}
}

// Send writes a payload to addr on the shared socket. The kernel UDP
// socket supports concurrent send/recv, so Send may be called from many
// transmit-worker goroutines while Receiver.Run reads concurrently.
func Send(conn *net.UDPConn, addr *net.UDPAddr, payload []byte) error {
	_, err := conn.WriteToUDP(payload, addr)
	return err
}

// PerformEffect walks a (possibly composite) pipeline.Effect and sends
// every atomic Send effect's payload over conn, the serialize-and-send
// stage every node's cmd wires onto its sign/logic workers. Broadcast
// effects are not expected from any current node: multicast fan-out
// happens at the UDP/IGMP layer by addressing the group, not at the
// pipeline layer, so one reaching here is logged rather than silently
// dropped.
func PerformEffect(conn *net.UDPConn, e pipeline.Effect) {
	switch e.Kind {
	case pipeline.Nop:
		return
	case pipeline.Compose:
		for _, child := range e.Children {
			PerformEffect(conn, child)
		}
	case pipeline.Send:
		if err := Send(conn, e.Addr.UDPAddr(), e.Payload); err != nil {
			log.Printf("transport: send to %s: %v", e.Addr, err)
		}
	case pipeline.Broadcast:
		log.Println("transport: unexpected Broadcast effect reached PerformEffect")
	case pipeline.Notify:
		log.Println("transport: unexpected Notify effect reached PerformEffect")
	}
}

// ShutdownSignal returns a channel that closes once on SIGINT/SIGTERM,
// for the single signal-masked thread each command runs.
func ShutdownSignal() <-chan struct{} {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		<-c
		close(done)
	}()
	return done
}
