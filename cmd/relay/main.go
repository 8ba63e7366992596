// Command relay is a stateless multicast-forwarding passthrough: it
// joins one multicast group and rebroadcasts every datagram it receives,
// verbatim, to another multicast address. It carries no protocol
// semantics of its own, useful for rehearsing reorder and loss
// scenarios against a real network path instead of the in-memory
// harness.
package main

import (
	"flag"
	"log"
	"net"

	"neobft/internal/pipeline"
	"neobft/internal/transport"
)

func main() {
	fromAddr := flag.String("from", "239.255.1.1:5000", "multicast group to receive on")
	toAddr := flag.String("to", "239.255.2.1:5000", "multicast address to forward to")
	flag.Parse()

	conn, err := transport.ListenMulticast(*fromAddr)
	if err != nil {
		log.Fatalf("relay: join %s: %v", *fromAddr, err)
	}
	dstUDP, err := net.ResolveUDPAddr("udp", *toAddr)
	if err != nil {
		log.Fatalf("relay: resolve --to %s: %v", *toAddr, err)
	}

	log.Printf("relay: forwarding %s -> %s", *fromAddr, *toAddr)

	recvCh, stop := pipeline.RunGenerator[transport.Event](&transport.Receiver{Conn: conn}, 0, 256)

	shutdown := transport.ShutdownSignal()
	go func() {
		<-shutdown
		log.Println("relay: exiting...")
		stop()
	}()

	for ev := range recvCh {
		if ev.Tick {
			continue
		}
		if err := transport.Send(conn, dstUDP, ev.Data); err != nil {
			log.Printf("relay: forward: %v", err)
		}
	}
}
