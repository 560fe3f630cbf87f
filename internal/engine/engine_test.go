package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/ir"
)

// =============================================================================
// Post / Drain
// =============================================================================

func TestDrain_AppliesPostedWritesInOrder(t *testing.T) {
	rec := NewMemoryRecorder()
	s := build(t, adderSpec(), WithRecorder(rec), WithPassGenerator(NewFixedGenerator("pass-1")))
	user := s.User()

	require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: "5", Caller: user}))
	require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: "6", Caller: user}))
	require.NoError(t, s.Post(Write{Op: OpSet, Path: "B.b", Text: "1", Caller: user}))
	assert.Equal(t, 3, s.Pending())

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, s.Pending())
	assert.Equal(t, "7", mustGet(t, s, "Copy.v"))

	var values []string
	for _, e := range rec.Events() {
		if e.Kind == ir.EventWrite {
			values = append(values, e.Field+"="+e.Value)
		}
	}
	assert.Equal(t, []string{"A.a=5", "A.a=6", "B.b=1"}, values)
	require.Len(t, rec.Passes(), 1)

	_, ok := s.Pass()
	assert.False(t, ok, "drain closes the pass it opened")
}

func TestDrain_EmptyInboxOpensNoPass(t *testing.T) {
	rec := NewMemoryRecorder()
	s := build(t, adderSpec(), WithRecorder(rec))

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, rec.Passes())
}

func TestDrain_FailedWriteDoesNotStopBatch(t *testing.T) {
	rec := NewMemoryRecorder()
	s := build(t, adderSpec(), WithRecorder(rec), WithPassGenerator(NewFixedGenerator("pass-1")))
	user := s.User()

	require.NoError(t, s.Post(Write{Op: OpSet, Path: "Sum.out", Text: "1", Caller: user}))
	require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: "10", Caller: user}))

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "12", mustGet(t, s, "Sum.out"))
	assert.Equal(t, 1, rec.Count(ir.EventError, "Sum.out"))
}

func TestDrain_QuotaSplitsPasses(t *testing.T) {
	rec := NewMemoryRecorder()
	s := build(t, adderSpec(),
		WithRecorder(rec),
		WithPassGenerator(NewFixedGenerator("pass-1", "pass-2")),
		WithMaxWritesPerPass(2),
	)
	for _, v := range []string{"1", "2", "3"} {
		require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: v, Caller: s.User()}))
	}

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, s.Pending())

	n, err = s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	passes := rec.Passes()
	require.Len(t, passes, 2)
	assert.Equal(t, "pass-1", passes[0].Token)
	assert.Equal(t, "pass-2", passes[1].Token)
	assert.Equal(t, "5", mustGet(t, s, "Sum.out"))
}

func TestDrain_InsideOpenPass(t *testing.T) {
	rec := NewMemoryRecorder()
	s := build(t, adderSpec(), WithRecorder(rec), WithPassGenerator(NewFixedGenerator("pass-1")))

	_, err := s.BeginPass(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Post(Write{Op: OpTouch, Path: "A.a", Caller: s.User()}))

	n, err := s.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	p, ok := s.Pass()
	require.True(t, ok, "drain leaves a caller's pass open")
	assert.Equal(t, "pass-1", p.Token)
	s.EndPass()
	assert.Len(t, rec.Passes(), 1)
}

func TestDrain_QuotaCountsAppliedWritesOnly(t *testing.T) {
	s := build(t, adderSpec(), WithPassGenerator(NewFixedGenerator("pass-1")), WithMaxWritesPerPass(2))
	ctx := context.Background()

	_, err := s.BeginPass(ctx)
	require.NoError(t, err)
	defer s.EndPass()

	require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: "4", Caller: s.User()}))
	n, err := s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Draining an empty inbox in between does not use up a slot.
	n, err = s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Post(Write{Op: OpSet, Path: "B.b", Text: "5", Caller: s.User()}))
	n, err = s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: "6", Caller: s.User()}))
	n, err = s.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, s.Pending())
	assert.Equal(t, "9", mustGet(t, s, "Sum.out"))
}

func TestRun_FullOpenPassReturnsError(t *testing.T) {
	s := build(t, adderSpec(), WithPassGenerator(NewFixedGenerator("pass-1")), WithMaxWritesPerPass(1))
	ctx := context.Background()

	_, err := s.BeginPass(ctx)
	require.NoError(t, err)
	defer s.EndPass()
	for _, v := range []string{"1", "2"} {
		require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: v, Caller: s.User()}))
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case err := <-done:
		assert.Equal(t, string(ErrCodeQuotaExhausted), ErrorCode(err))
		assert.Contains(t, err.Error(), "pass-1")
	case <-time.After(5 * time.Second):
		t.Fatal("Run kept looping on a full pass")
	}
	assert.Equal(t, 1, s.Pending())
}

func TestApply_UnknownOp(t *testing.T) {
	s := build(t, adderSpec())

	err := s.Apply(Write{Op: "erase", Path: "A.a"})
	assert.Equal(t, "UNSUPPORTED_OP", ErrorCode(err))
}

// =============================================================================
// Run loop
// =============================================================================

func TestRun_StopDrainsThenReturns(t *testing.T) {
	s := build(t, adderSpec(), WithPassGenerator(NewFixedGenerator("pass-1")))
	user := s.User()

	require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: "20", Caller: user}))
	require.NoError(t, s.Post(Write{Op: OpSet, Path: "B.b", Text: "22", Caller: user}))
	s.Stop()

	err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", mustGet(t, s, "Copy.v"))

	err = s.Post(Write{Op: OpSet, Path: "A.a", Text: "1", Caller: user})
	assert.True(t, IsInboxClosed(err))
}

func TestRun_ConcurrentPosts(t *testing.T) {
	s := build(t, adderSpec())
	user := s.User()

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	const writers = 10
	posted := make(chan struct{}, writers)
	for i := 0; i < writers; i++ {
		go func() {
			_ = s.Post(Write{Op: OpTouch, Path: "A.a", Caller: user})
			posted <- struct{}{}
		}()
	}
	for i := 0; i < writers; i++ {
		<-posted
	}
	require.NoError(t, s.Post(Write{Op: OpSet, Path: "A.a", Text: "8", Caller: user}))
	s.Stop()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, "10", mustGet(t, s, "Sum.out"))
	assert.Equal(t, 0, s.Pending())
}

func TestRun_ContextCancel(t *testing.T) {
	s := build(t, adderSpec())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	err := s.Post(Write{Op: OpTouch, Path: "A.a"})
	assert.True(t, IsInboxClosed(err))
}
