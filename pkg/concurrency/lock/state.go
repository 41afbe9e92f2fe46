package lock

import "sync/atomic"

// clientState is a compact tri-state client lifecycle: open (never used by
// anything but the pool), active (one or more in-flight acquire/release
// calls), and stopped (no further acquire calls are honored). Stop must
// wait for active calls in flight to drain before the client is safe to
// recycle, but must not block new acquire calls from starting indefinitely
// once it has been requested — new calls fail fast with
// LockClientStoppedError instead.
type clientState struct {
	// bits packs a stopped flag into bit 62 and the active-call count into
	// the bits below it, so a single atomic value captures both without a
	// separate mutex: Stop flips the flag and then the active count alone
	// decides when draining is complete.
	bits atomic.Int64
}

const stoppedBit = int64(1) << 62

func (s *clientState) reset() {
	s.bits.Store(0)
}

// enter registers one in-flight call, failing if the client is stopped.
func (s *clientState) enter() bool {
	for {
		cur := s.bits.Load()
		if cur&stoppedBit != 0 {
			return false
		}
		if s.bits.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// exit unregisters one in-flight call.
func (s *clientState) exit() {
	s.bits.Add(-1)
}

// stop marks the client stopped, refusing any further enter calls. Safe to
// call more than once.
func (s *clientState) stop() {
	for {
		cur := s.bits.Load()
		if cur&stoppedBit != 0 {
			return
		}
		if s.bits.CompareAndSwap(cur, cur|stoppedBit) {
			return
		}
	}
}

func (s *clientState) isStopped() bool {
	return s.bits.Load()&stoppedBit != 0
}

func (s *clientState) activeCount() int64 {
	return s.bits.Load() &^ stoppedBit
}

func (s *clientState) hasActive() bool {
	return s.activeCount() > 0
}
