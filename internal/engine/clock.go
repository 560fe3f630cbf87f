package engine

import (
	"context"
	"fmt"
	"sync/atomic"
)

// Sequencer stamps recorded events. Implemented by Clock and by the
// resettable test clock.
type Sequencer interface {
	Next() int64
	Current() int64
}

// SeqSource reports the highest seq already recorded. *store.Store and
// MemoryRecorder implement it.
type SeqSource interface {
	LatestSeq(ctx context.Context) (int64, error)
}

// Clock orders the events of a scene. Seqs only grow, and a pass started at
// the same position stamps the same seqs on replay.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock whose first seq is 1.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose first seq is start+1.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// ResumeClock creates a clock that continues after everything src has
// recorded, so passes appended to a stored trace never reuse a seq.
func ResumeClock(ctx context.Context, src SeqSource) (*Clock, error) {
	latest, err := src.LatestSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("resuming clock: %w", err)
	}
	return NewClockAt(latest), nil
}

func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

func (c *Clock) Current() int64 {
	return c.seq.Load()
}
