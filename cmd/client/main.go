// Command client submits one operation to a NeoBFT sequencer, waits for
// a 2f+1 quorum of matching replies, prints the result, and exits.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"os"
	"time"

	"neobft/internal/client"
	"neobft/internal/pipeline"
	"neobft/internal/transport"
	"neobft/internal/wire"
)

func main() {
	listenAddr := flag.String("listen", "0.0.0.0:0", "local address to bind (0 picks an ephemeral port)")
	sequencerAddr := flag.String("sequencer", "127.0.0.1:5001", "sequencer ingress address")
	f := flag.Int("f", 1, "number of Byzantine replicas tolerated")
	id := flag.Uint("id", 0, "client id (0 picks a random id)")
	op := flag.String("op", "", "operation payload to submit")
	verifyPayloads := flag.Bool("verify-payloads", false, "require the quorum's replies to carry identical results")
	flag.Parse()

	clientID := uint32(*id)
	if clientID == 0 {
		clientID = rand.Uint32()
	}

	conn, err := transport.Listen(*listenAddr)
	if err != nil {
		log.Fatalf("client: listen %s: %v", *listenAddr, err)
	}
	localAddr := wire.Socket(conn.LocalAddr().(*net.UDPAddr))

	seqUDP, err := net.ResolveUDPAddr("udp", *sequencerAddr)
	if err != nil {
		log.Fatalf("client: resolve --sequencer %s: %v", *sequencerAddr, err)
	}
	sequencer := wire.Socket(seqUDP)

	core := client.New(clientID, localAddr, sequencer, *f)
	core.VerifyPayloads = *verifyPayloads

	log.Printf("client %d: sending to %s from %s", clientID, *sequencerAddr, conn.LocalAddr())
	transport.PerformEffect(conn, core.Update(client.OpEvent([]byte(*op))))

	recvCh, stop := pipeline.RunGenerator[transport.Event](&transport.Receiver{Conn: conn}, -1, 64)
	defer stop()

	shutdown := transport.ShutdownSignal()
	deadline := time.After(30 * time.Second)

	for {
		select {
		case <-shutdown:
			log.Println("client: interrupted, exiting...")
			os.Exit(1)

		case <-deadline:
			log.Fatalln("client: timed out waiting for quorum")

		case ev, ok := <-recvCh:
			if !ok {
				log.Fatalln("client: receive loop ended unexpectedly")
			}
			if ev.Tick {
				effect := core.Update(client.TickEvent())
				transport.PerformEffect(conn, effect)
				continue
			}
			msg := wire.UnmarshalMessage(ev.Data)
			effect := core.Update(client.MessageEvent(msg))
			if effect.Kind == pipeline.Notify {
				fmt.Println(string(effect.Payload))
				return
			}
			transport.PerformEffect(conn, effect)
		}
	}
}
