package engine

import (
	"context"
	"log/slog"
)

// Post submits a write from any goroutine. The write is applied, in FIFO
// order, by the next Drain on the owning goroutine.
func (s *Scene) Post(w Write) error {
	if !s.inbox.Post(w) {
		return &RuntimeError{
			Code:    ErrCodeInboxClosed,
			Message: "scene stopped",
			Field:   w.Path,
		}
	}
	return nil
}

// Pending returns the number of posted writes not yet applied.
func (s *Scene) Pending() int {
	return s.inbox.Len()
}

// Drain applies posted writes in FIFO order and returns how many it
// applied. If no pass is open, Drain opens one for the batch and closes it
// afterwards. A failed write is logged and does not stop the batch. With
// WithMaxWritesPerPass, writes beyond the quota stay posted for the next
// Drain.
func (s *Scene) Drain(ctx context.Context) (int, error) {
	if s.inbox.Len() == 0 {
		return 0, nil
	}
	if s.pass == nil {
		if _, err := s.BeginPass(ctx); err != nil {
			return 0, err
		}
		defer s.EndPass()
	}

	applied := 0
	for !s.quota.Exhausted() {
		w, ok := s.inbox.TryTake()
		if !ok {
			break
		}
		s.quota.Take()
		if err := s.Apply(w); err != nil {
			// Log and continue: retrying would reorder writes.
			s.logWriteError(w, err)
		}
		applied++
	}
	return applied, nil
}

// Run drains posted writes until ctx is cancelled or Stop is called. Each
// batch is one pass. Run must be the only goroutine touching the scene
// besides Post, Pending and Stop.
func (s *Scene) Run(ctx context.Context) error {
	s.logger.Info("scene loop starting", "scene", s.spec.Name)

	for {
		if err := ctx.Err(); err != nil {
			s.logger.Info("scene loop stopping: context cancelled")
			s.inbox.Close()
			return err
		}

		if s.inbox.Len() > 0 {
			n, err := s.Drain(ctx)
			if err != nil {
				return err
			}
			if n == 0 && s.quota.Exhausted() {
				// Only a pass opened outside Run can be full here; Run
				// cannot end it.
				s.inbox.Close()
				p, _ := s.Pass()
				return &RuntimeError{
					Code:      ErrCodeQuotaExhausted,
					Message:   "open pass has used its write quota",
					PassToken: p.Token,
				}
			}
			continue
		}

		select {
		case <-ctx.Done():
			s.logger.Info("scene loop stopping: context cancelled")
			s.inbox.Close()
			return ctx.Err()

		case _, open := <-s.inbox.Wait():
			// A buffered wake-up can outlive the writes it announced; only
			// a closed signal channel with nothing pending ends the loop.
			if !open && s.inbox.Len() == 0 {
				s.logger.Info("scene loop stopping: inbox closed")
				return nil
			}
		}
	}
}

// Stop closes the inbox. Run applies what is already posted, then returns.
func (s *Scene) Stop() {
	s.inbox.Close()
}

func (s *Scene) logWriteError(w Write, err error) {
	attrs := []any{
		"op", string(w.Op),
		"path", w.Path,
		"caller", s.callerName(w.Caller),
		"code", ErrorCode(err),
		"error", err,
	}
	if w.Target != "" {
		attrs = append(attrs, "target", w.Target)
	}
	if p, ok := s.Pass(); ok {
		attrs = append(attrs, "pass", p.Token)
	}
	s.logger.Log(context.Background(), slog.LevelWarn, "write failed", attrs...)
}
