package pipeline

import "runtime"

// Generate models a stage that owns its own event loop (a blocking UDP
// receive, a tick timer) rather than waiting on an upstream channel.
// The socket-receive loop and the effect-performing loop each own a
// dedicated goroutine.
type Generate[F any] interface {
	// Run drives downstream until the generator's source is exhausted
	// (socket closed, channel disconnected) or stop is closed.
	Run(downstream chan<- F, stop <-chan struct{})
}

// RunGenerator starts a Generate source on its own goroutine, pinned to
// core unless core < 0, and returns the effect channel it feeds, plus a
// stop function.
func RunGenerator[F any](gen Generate[F], core int, buffer int) (effects <-chan F, stop func()) {
	effectCh := make(chan F, buffer)
	stopCh := make(chan struct{})
	go func() {
		if core >= 0 {
			runtime.LockOSThread()
			_ = pinToCPU(core)
		}
		gen.Run(effectCh, stopCh)
		close(effectCh)
	}()
	return effectCh, func() { close(stopCh) }
}
