package engine

import (
	"context"
	"fmt"

	"github.com/roach88/fieldnet/internal/ir"
)

// Replay rebuilds spec and re-applies, inside one pass, the writes recorded
// in events. Only EventWrite events are replayed; field events are what the
// writes cause and are produced again. Writes that failed when recorded
// fail again and are skipped.
//
// Replaying the recorded writes of a pass against the same scene spec ends
// in the same snapshot, because field evaluation is a function of the
// writes and their order.
func Replay(ctx context.Context, spec ir.SceneSpec, events []ir.Event, opts ...Option) (*Scene, error) {
	s, err := Build(spec, opts...)
	if err != nil {
		return nil, err
	}
	if err := s.ReplayWrites(ctx, events); err != nil {
		return nil, err
	}
	return s, nil
}

// ReplayWrites re-applies the writes recorded in events to s, inside one
// new pass. It fails if a pass is already open.
func (s *Scene) ReplayWrites(ctx context.Context, events []ir.Event) error {
	if _, err := s.BeginPass(ctx); err != nil {
		return err
	}
	defer s.EndPass()

	for _, ev := range events {
		if ev.Kind != ir.EventWrite {
			continue
		}
		w, err := s.writeFromEvent(ev)
		if err != nil {
			return fmt.Errorf("event seq %d: %w", ev.Seq, err)
		}
		if err := s.Apply(w); err != nil {
			s.logWriteError(w, err)
		}
	}
	return nil
}

func (s *Scene) writeFromEvent(ev ir.Event) (Write, error) {
	caller, err := s.Caller(ev.Caller)
	if err != nil {
		return Write{}, err
	}
	w := Write{Op: Op(ev.Op), Path: ev.Field, Caller: caller}
	switch w.Op {
	case OpSet, OpPush:
		w.Text = ev.Value
	case OpRoute, OpUnroute:
		w.Target = ev.Value
	case OpTouch:
	default:
		return Write{}, &RuntimeError{
			Code:    ErrCodeUnsupportedOp,
			Message: fmt.Sprintf("unknown write operation %q", ev.Op),
			Field:   ev.Field,
		}
	}
	return w, nil
}
