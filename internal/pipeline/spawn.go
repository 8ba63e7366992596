package pipeline

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Spawn starts stage on its own goroutine, optionally locked to an OS
// thread and pinned to a CPU core via unix.SchedSetaffinity. The
// goroutine drains events from the returned channel into effects on the
// effects channel, one Update call per event, until events is closed.
//
// core < 0 disables both the thread lock and pinning (used for stages
// where affinity doesn't matter, e.g. in tests).
func Spawn[E, F any](stage Stage[E, F], core int, buffer int) (events chan<- E, effects <-chan F) {
	eventCh := make(chan E, buffer)
	effectCh := make(chan F, buffer)
	go func() {
		if core >= 0 {
			runtime.LockOSThread()
			pinToCPU(core)
		}
		for event := range eventCh {
			effectCh <- stage.Update(event)
		}
		close(effectCh)
	}()
	return eventCh, effectCh
}

// PinCurrentGoroutine locks the calling goroutine to its OS thread and
// pins that thread to core, for cmd/ mains that hand-roll a worker loop
// instead of going through Spawn/RunGenerator. core < 0 disables pinning.
func PinCurrentGoroutine(core int) {
	if core < 0 {
		return
	}
	runtime.LockOSThread()
	_ = pinToCPU(core)
}

// pinToCPU pins the calling OS thread to a single CPU core. Callers
// discard the error; core pinning is a throughput optimization, not a
// correctness requirement.
func pinToCPU(core int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

// AvailableCores returns the number of logical CPUs, reserving the last
// one for kernel IRQ handling.
func AvailableCores() int {
	n := runtime.NumCPU()
	if n > 1 {
		return n - 1
	}
	return n
}
