package engine

import (
	"context"
	"sync"

	"github.com/roach88/fieldnet/internal/ir"
)

// Recorder receives the passes and events of a scene. *store.Store
// implements it; MemoryRecorder keeps them in memory.
type Recorder interface {
	WritePass(ctx context.Context, p ir.Pass) error
	WriteEvent(ctx context.Context, e ir.Event) error
}

// MemoryRecorder records passes and events in memory.
//
// Thread-safety: MemoryRecorder is safe for concurrent use.
type MemoryRecorder struct {
	mu     sync.Mutex
	passes []ir.Pass
	events []ir.Event
}

// NewMemoryRecorder creates an empty recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{}
}

// WritePass implements Recorder.
func (r *MemoryRecorder) WritePass(_ context.Context, p ir.Pass) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, p)
	return nil
}

// WriteEvent implements Recorder.
func (r *MemoryRecorder) WriteEvent(_ context.Context, e ir.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Passes returns a copy of the recorded passes.
func (r *MemoryRecorder) Passes() []ir.Pass {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Pass, len(r.passes))
	copy(out, r.passes)
	return out
}

// Events returns a copy of the recorded events in seq order.
func (r *MemoryRecorder) Events() []ir.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ir.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of events of kind on fieldPath. An empty
// fieldPath counts every field.
func (r *MemoryRecorder) Count(kind, fieldPath string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind && (fieldPath == "" || e.Field == fieldPath) {
			n++
		}
	}
	return n
}

// Reset discards everything recorded.
func (r *MemoryRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = nil
	r.events = nil
}

// LatestSeq returns the highest recorded seq, or 0. Implements SeqSource.
func (r *MemoryRecorder) LatestSeq(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest int64
	for _, e := range r.events {
		latest = max(latest, e.Seq)
	}
	return latest, nil
}
