package engine

import (
	"sync"

	"github.com/roach88/fieldnet/internal/field"
)

// Op is a marshalled write operation.
type Op string

const (
	// OpSet replaces the value of Path with Text.
	OpSet Op = "set"
	// OpPush appends the element Text to the sequence at Path.
	OpPush Op = "push"
	// OpRoute routes Path to Target.
	OpRoute Op = "route"
	// OpUnroute removes the route from Path to Target.
	OpUnroute Op = "unroute"
	// OpTouch notifies the routes of Path without changing its value.
	OpTouch Op = "touch"
)

// Write is a mutation posted to a scene from any goroutine and applied by
// the goroutine that owns the scene.
type Write struct {
	Op     Op
	Path   string        // "Node.field"
	Target string        // Destination path for OpRoute and OpUnroute
	Text   string        // Value text for OpSet and OpPush
	Caller field.OwnerID // Writing entity; field.Internal is trusted
}

// inbox is a thread-safe FIFO queue of writes.
//
// The inbox is unbounded so that Post never blocks a producer. The signal
// channel (buffered, size 1) coalesces wake-ups for the Run loop and is
// closed by Close, which wakes the loop for good.
type inbox struct {
	mu     sync.Mutex
	writes []Write
	closed bool
	signal chan struct{}
}

func newInbox() *inbox {
	return &inbox{
		writes: make([]Write, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Post adds a write to the back of the inbox.
// Returns false if the inbox is closed.
func (q *inbox) Post(w Write) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.writes = append(q.writes, w)

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryTake removes and returns the front write without blocking.
func (q *inbox) TryTake() (Write, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.writes) == 0 {
		return Write{}, false
	}

	w := q.writes[0]
	q.writes[0] = Write{}
	if len(q.writes) == 1 {
		q.writes = q.writes[:0]
	} else {
		q.writes = q.writes[1:]
	}
	return w, true
}

// Wait returns a channel that signals when writes may be available.
func (q *inbox) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the number of pending writes.
func (q *inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.writes)
}

// Close stops accepting writes and wakes any waiter. Pending writes stay
// drainable.
func (q *inbox) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
