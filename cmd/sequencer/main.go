// Command sequencer runs the single-writer ordering oracle: it assigns
// monotonic sequence numbers to client requests arriving on its ingress
// port and fans authenticated ordered packets out to the replica
// multicast group. Core 0 receives and assigns sequence numbers; cores
// 1..N-2 sign and send.
package main

import (
	"crypto/ecdsa"
	"flag"
	"log"
	"net"
	"os"

	"neobft/internal/crypto/p256"
	"neobft/internal/discipline"
	"neobft/internal/pipeline"
	"neobft/internal/sequencer"
	"neobft/internal/transport"
	"neobft/internal/wire"
)

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:5001", "ingress address clients send requests to")
	multicastAddr := flag.String("multicast", "239.255.1.1:5000", "replica multicast group address")
	replicaCount := flag.Uint("replica-count", 4, "number of replicas in the group (must be 3f+1)")
	f := flag.Int("f", 1, "number of Byzantine replicas tolerated")
	crypto := flag.String("crypto", "siphash", "authentication discipline: siphash|p256|p256-linked")
	keyPath := flag.String("key", "", "PEM-encoded ECDSA P-256 private key (required for p256/p256-linked)")
	linkEvery := flag.Uint("link-every", 0, "link-packet periodicity under p256-linked (0 disables linking)")
	flag.Parse()

	disc, ok := discipline.Parse(*crypto)
	if !ok {
		log.Fatalf("sequencer: unknown --crypto %q", *crypto)
	}
	fVal := *f
	if want := uint(3*fVal + 1); uint(*replicaCount) != want {
		log.Fatalf("sequencer: --replica-count %d does not satisfy 3f+1 for f=%d (want %d)", *replicaCount, fVal, want)
	}

	conn, err := transport.Listen(*listenAddr)
	if err != nil {
		log.Fatalf("sequencer: listen %s: %v", *listenAddr, err)
	}

	groupUDP, err := net.ResolveUDPAddr("udp", *multicastAddr)
	if err != nil {
		log.Fatalf("sequencer: resolve --multicast %s: %v", *multicastAddr, err)
	}
	group := wire.Socket(groupUDP)

	var key *ecdsa.PrivateKey
	if disc != discipline.SipHash {
		if *keyPath == "" {
			log.Fatalln("sequencer: --key is required for p256/p256-linked")
		}
		pemBytes, err := os.ReadFile(*keyPath)
		if err != nil {
			log.Fatalf("sequencer: read --key: %v", err)
		}
		key, err = p256.LoadPrivateKey(pemBytes)
		if err != nil {
			log.Fatalf("sequencer: load --key: %v", err)
		}
	}

	var sign pipeline.Stage[sequencer.SignInput, pipeline.Effect]
	switch disc {
	case discipline.SipHash:
		sign = &sequencer.SipHashStage{ReplicaCount: uint32(*replicaCount), Group: group}
	case discipline.P256:
		sign = &sequencer.P256Stage{PrivateKey: key, Group: group}
	case discipline.P256Linked:
		sign = &sequencer.P256LinkedStage{PrivateKey: key, Group: group, LinkEvery: uint32(*linkEvery)}
	}

	core := &sequencer.Sequencer{}

	log.Printf("sequencer: listening on %s, ordering for %d replicas (f=%d, %s), multicasting to %s",
		*listenAddr, *replicaCount, *f, disc, *multicastAddr)

	// P256LinkedStage carries mutable chain state (prevLinkHash) that must
	// advance in packet order, so it cannot be fanned out across parallel
	// signing workers the way the stateless SipHash/P256 stages can.
	workers := pipeline.AvailableCores() - 1
	if disc == discipline.P256Linked {
		workers = 1
	}
	if workers < 1 {
		workers = 1
	}
	signCh := make(chan sequencer.SignInput, 256)
	done := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func(core int) {
			pipeline.PinCurrentGoroutine(core)
			for in := range signCh {
				transport.PerformEffect(conn, sign.Update(in))
			}
			done <- struct{}{}
		}(i + 1)
	}

	recvCh, stop := pipeline.RunGenerator[transport.Event](&transport.Receiver{Conn: conn}, 0, 256)

	shutdown := transport.ShutdownSignal()
	go func() {
		<-shutdown
		log.Println("sequencer: exiting...")
		stop()
	}()

	for ev := range recvCh {
		if ev.Tick {
			continue // the sequencer has no tick-driven behavior
		}
		if len(ev.Data) < 1 {
			log.Println("sequencer: malformed (empty datagram)")
			continue
		}
		msg := wire.UnmarshalMessage(ev.Data)
		if msg.Tag != wire.TagRequest {
			log.Println("sequencer: malformed (expected Request discriminant)")
			continue
		}
		body := msg.Request.Marshal()
		in := core.Update(body)
		signCh <- in
	}

	close(signCh)
	for i := 0; i < workers; i++ {
		<-done
	}
}
