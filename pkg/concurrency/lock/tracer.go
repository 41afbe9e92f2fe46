package lock

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"lockmgr/pkg/logging"
)

// WaitEvent marks the span between a Client blocking on a contended
// resource and either acquiring it, timing out, or aborting for deadlock.
// Close must be called exactly once regardless of outcome.
type WaitEvent interface {
	Close()
}

// LockTracer observes wait events as they start, without participating in
// the acquire/release protocol itself. A Manager with no Tracer configured
// uses noopTracer, which allocates nothing.
type LockTracer interface {
	WaitForLock(clientID int, exclusive bool, typeID int, resourceID int64) WaitEvent
}

type noopTracer struct{}

func (noopTracer) WaitForLock(int, bool, int, int64) WaitEvent { return noopWaitEvent{} }

type noopWaitEvent struct{}

func (noopWaitEvent) Close() {}

// WaitSpan is a LockTracer implementation that tags every wait event with a
// fresh diagnostic id, suited to feeding a structured logger or tracing
// backend keyed on that id rather than the raw client id.
type WaitSpan struct {
	OnStart func(id uuid.UUID, clientID int, exclusive bool, typeID int, resourceID int64)
	OnEnd   func(id uuid.UUID)
}

// WaitForLock implements LockTracer.
func (w WaitSpan) WaitForLock(clientID int, exclusive bool, typeID int, resourceID int64) WaitEvent {
	id := uuid.New()
	if w.OnStart != nil {
		w.OnStart(id, clientID, exclusive, typeID, resourceID)
	}
	return waitSpanEvent{id: id, onEnd: w.OnEnd}
}

type waitSpanEvent struct {
	id    uuid.UUID
	onEnd func(uuid.UUID)
}

func (e waitSpanEvent) Close() {
	if e.onEnd != nil {
		e.onEnd(e.id)
	}
}

// NewLoggingTracer returns a LockTracer that logs a wait event's start and
// duration through pkg/logging, tagged with the diagnostic id WaitSpan
// mints for each blocking attempt.
func NewLoggingTracer() LockTracer {
	var mu sync.Mutex
	start := map[uuid.UUID]time.Time{}
	return WaitSpan{
		OnStart: func(id uuid.UUID, clientID int, exclusive bool, typeID int, resourceID int64) {
			mu.Lock()
			start[id] = time.Now()
			mu.Unlock()
			logging.WithWait(clientID, exclusive, typeID, resourceID).Debug("blocked on lock", "wait_id", id)
		},
		OnEnd: func(id uuid.UUID) {
			mu.Lock()
			began, ok := start[id]
			delete(start, id)
			mu.Unlock()
			if ok {
				logging.GetLogger().Debug("unblocked", "wait_id", id, "elapsed", time.Since(began))
			}
		},
	}
}
