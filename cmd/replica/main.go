// Command replica runs the ordered-commit state machine: it joins the
// sequencer's multicast group, classifies and authenticates incoming
// ordered packets, commits them in sequence order on a single logic
// goroutine, executes the application, and replies to clients. Core 0
// classifies, core 1 runs the logic thread, and cores 2..N-2 run
// asymmetric verification in parallel.
package main

import (
	"crypto/ecdsa"
	"flag"
	"log"
	"net"
	"os"
	"sync"

	"neobft/internal/app"
	"neobft/internal/crypto/p256"
	"neobft/internal/discipline"
	"neobft/internal/pipeline"
	"neobft/internal/replica"
	"neobft/internal/transport"
)

func main() {
	id := flag.Uint("id", 0, "this replica's id, 0-indexed")
	multicastAddr := flag.String("multicast", "239.255.1.1:5000", "multicast group to join for ordered packets")
	replicaCount := flag.Uint("replica-count", 4, "number of replicas in the group (must be 3f+1)")
	f := flag.Int("f", 1, "number of Byzantine replicas tolerated")
	crypto := flag.String("crypto", "siphash", "authentication discipline: siphash|p256|p256-linked")
	seqKeyPath := flag.String("sequencer-key", "", "PEM-encoded ECDSA P-256 public key (required for p256/p256-linked)")
	linkEvery := flag.Uint("link-every", 0, "link-packet periodicity under p256-linked; must match the sequencer")
	flag.Parse()

	disc, ok := discipline.Parse(*crypto)
	if !ok {
		log.Fatalf("replica: unknown --crypto %q", *crypto)
	}
	fVal := *f
	if want := uint(3*fVal + 1); uint(*replicaCount) != want {
		log.Fatalf("replica: --replica-count %d does not satisfy 3f+1 for f=%d (want %d)", *replicaCount, fVal, want)
	}
	if *id >= *replicaCount {
		log.Fatalf("replica: --id %d out of range for --replica-count %d", *id, *replicaCount)
	}

	var seqKey *ecdsa.PublicKey
	if disc != discipline.SipHash {
		if *seqKeyPath == "" {
			log.Fatalln("replica: --sequencer-key is required for p256/p256-linked")
		}
		pemBytes, err := os.ReadFile(*seqKeyPath)
		if err != nil {
			log.Fatalf("replica: read --sequencer-key: %v", err)
		}
		seqKey, err = p256.LoadPublicKey(pemBytes)
		if err != nil {
			log.Fatalf("replica: load --sequencer-key: %v", err)
		}
	}

	conn, err := transport.ListenMulticast(*multicastAddr)
	if err != nil {
		log.Fatalf("replica: join multicast %s: %v", *multicastAddr, err)
	}

	core := replica.New(uint8(*id), fVal, uint32(*replicaCount), disc, seqKey, app.Echo{})
	if disc == discipline.P256Linked {
		core.SetLinkEvery(uint32(*linkEvery))
	}
	classify := &replica.ClassifyStage{ReplicaID: uint8(*id), Discipline: disc}
	var verify *replica.VerifyStage
	if disc != discipline.SipHash {
		verify = &replica.VerifyStage{SequencerKey: seqKey, Discipline: disc, LinkEvery: uint32(*linkEvery)}
	}

	log.Printf("replica %d: joined %s, group size %d (f=%d, %s)", *id, *multicastAddr, *replicaCount, fVal, disc)

	// logicCh is the single channel every input path funnels into; the
	// goroutine draining it is the one and only writer of core's state:
	// log, reorder buffer, signatures table and reply cache never see a
	// second goroutine.
	logicCh := make(chan replica.ClassifyOutput, 256)
	logicDone := make(chan struct{})
	go func() {
		pipeline.PinCurrentGoroutine(1)
		for out := range logicCh {
			performReplicaOutput(conn, core, out)
		}
		close(logicDone)
	}()

	var verifyCh chan replica.ClassifyOutput
	var verifyDone sync.WaitGroup
	if verify != nil {
		verifyCh = make(chan replica.ClassifyOutput, 256)
		workers := pipeline.AvailableCores() - 2
		if workers < 1 {
			workers = 1
		}
		verifyDone.Add(workers)
		for i := 0; i < workers; i++ {
			go func(core int) {
				pipeline.PinCurrentGoroutine(core)
				for out := range verifyCh {
					logicCh <- verify.Update(out)
				}
				verifyDone.Done()
			}(2 + i)
		}
	}

	recvCh, stop := pipeline.RunGenerator[transport.Event](&transport.Receiver{Conn: conn}, 0, 256)

	shutdown := transport.ShutdownSignal()
	go func() {
		<-shutdown
		log.Println("replica: exiting...")
		stop()
	}()

	for ev := range recvCh {
		out := classify.Update(ev)
		if out.Decision == replica.DecisionNeedsVerify {
			verifyCh <- out
			continue
		}
		logicCh <- out
	}

	if verifyCh != nil {
		close(verifyCh)
		verifyDone.Wait() // drain every in-flight verify before logicCh closes
	}
	close(logicCh)
	<-logicDone
}

// performReplicaOutput is the single-writer dispatch step for whatever
// classification the receive/verify path produced.
func performReplicaOutput(conn *net.UDPConn, core *replica.Replica, out replica.ClassifyOutput) {
	switch out.Decision {
	case replica.DecisionTick:
		// periodic tick: currently a no-op at the replica.
	case replica.DecisionUnicast:
		log.Printf("replica: received unicast admin message (tag %d)", out.Unicast.Tag)
	case replica.DecisionOrdered:
		effect := core.HandleOrderedRequest(out.Multicast, out.Request)
		transport.PerformEffect(conn, effect)
	case replica.DecisionDrop:
		// already logged at the point of decision (classify/verify stage).
	}
}
