package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/engine"
	"github.com/roach88/fieldnet/internal/field"
	"github.com/roach88/fieldnet/internal/ir"
)

var _ engine.Recorder = (*Store)(nil)

// =============================================================================
// Passes
// =============================================================================

func TestWritePass_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	p := createTestPass("pass-1", 7)
	require.NoError(t, s.WritePass(ctx, p))

	got, err := s.ReadPass(ctx, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	var engineVersion string
	require.NoError(t, s.db.QueryRow("SELECT engine_version FROM passes").Scan(&engineVersion))
	assert.Equal(t, ir.EngineVersion, engineVersion)
}

func TestWritePass_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WritePass(ctx, createTestPass("pass-1", 0)))
	require.NoError(t, s.WritePass(ctx, createTestPass("pass-1", 10)))

	got, err := s.ReadPass(ctx, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.StartedSeq, "first write wins")
}

func TestReadPass_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.ReadPass(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListPasses_Ordered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	passes, err := s.ListPasses(ctx)
	require.NoError(t, err)
	assert.NotNil(t, passes)
	assert.Empty(t, passes)

	require.NoError(t, s.WritePass(ctx, createTestPass("c", 5)))
	require.NoError(t, s.WritePass(ctx, createTestPass("b", 0)))
	require.NoError(t, s.WritePass(ctx, createTestPass("a", 5)))

	passes, err = s.ListPasses(ctx)
	require.NoError(t, err)
	var tokens []string
	for _, p := range passes {
		tokens = append(tokens, p.Token)
	}
	assert.Equal(t, []string{"b", "a", "c"}, tokens)
}

// =============================================================================
// Events
// =============================================================================

func TestWriteEvent_ReadInSeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WritePass(ctx, createTestPass("pass-1", 0)))

	write := ir.Event{
		PassToken: "pass-1", Seq: 1, Kind: ir.EventWrite,
		Op: "set", Field: "A.a", Value: "10", Caller: engine.UserName,
	}
	notify := createTestEvent("pass-1", 3, ir.EventNotify, "Sum.out")
	notify.Source = "A.a"
	set := createTestEvent("pass-1", 2, ir.EventSet, "A.a")
	set.Value = "10"

	for _, e := range []ir.Event{write, notify, set} {
		require.NoError(t, s.WriteEvent(ctx, e))
	}
	require.NoError(t, s.WriteEvent(ctx, write), "duplicate (pass, seq) is ignored")

	events, err := s.ReadEvents(ctx, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, []ir.Event{write, set, notify}, events)

	events, err = s.ReadEvents(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, events)
	assert.Empty(t, events)
}

func TestWriteEvent_RequiresPass(t *testing.T) {
	s := createTestStore(t)

	err := s.WriteEvent(context.Background(), createTestEvent("missing", 1, ir.EventSet, "A.a"))
	assert.Error(t, err)
}

func TestCountEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WritePass(ctx, createTestPass("pass-1", 0)))

	events := []ir.Event{
		createTestEvent("pass-1", 1, ir.EventRecompute, "Sum.out"),
		createTestEvent("pass-1", 2, ir.EventRecompute, "Copy.v"),
		createTestEvent("pass-1", 3, ir.EventRecompute, "Sum.out"),
		createTestEvent("pass-1", 4, ir.EventNotify, "Sum.out"),
	}
	for _, e := range events {
		require.NoError(t, s.WriteEvent(ctx, e))
	}

	n, err := s.CountEvents(ctx, "pass-1", ir.EventRecompute, "Sum.out")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountEvents(ctx, "pass-1", ir.EventRecompute, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	seq, err := s.LatestSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), seq)
}

func TestLatestSeq_Empty(t *testing.T) {
	s := createTestStore(t)

	seq, err := s.LatestSeq(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)
}

// =============================================================================
// Snapshots
// =============================================================================

func TestSnapshot_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WritePass(ctx, createTestPass("pass-1", 0)))

	snap := ir.Snapshot{
		Scene: "Adder",
		Hash:  "snap-hash",
		Entries: []ir.SnapshotEntry{
			{Field: "Sum.out", Value: "3"},
			{Field: "A.a", Value: "1"},
			{Field: "Str.s", Value: `say "hi" <now>`},
		},
	}
	require.NoError(t, s.WriteSnapshot(ctx, "pass-1", snap))

	got, err := s.ReadSnapshot(ctx, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, snap, got, "entry order survives storage")

	var raw string
	require.NoError(t, s.db.QueryRow("SELECT entries FROM snapshots").Scan(&raw))
	assert.Contains(t, raw, `{"field":"Sum.out","value":"3"}`)
	assert.Contains(t, raw, `<now>`, "no HTML escaping")

	_, err = s.ReadSnapshot(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// =============================================================================
// Recording a scene
// =============================================================================

func TestLatestSnapshot(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, _, err := s.LatestSnapshot(ctx, "Adder")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.WritePass(ctx, createTestPass("p1", 0)))
	require.NoError(t, s.WritePass(ctx, createTestPass("p2", 4)))
	require.NoError(t, s.WritePass(ctx, createTestPass("p3", 9)))
	other := createTestPass("q1", 20)
	other.Scene = "List"
	require.NoError(t, s.WritePass(ctx, other))

	first := ir.Snapshot{Scene: "Adder", Hash: "h1", Entries: []ir.SnapshotEntry{{Field: "Sum.out", Value: "3"}}}
	second := ir.Snapshot{Scene: "Adder", Hash: "h2", Entries: []ir.SnapshotEntry{{Field: "Sum.out", Value: "7"}}}
	require.NoError(t, s.WriteSnapshot(ctx, "p1", first))
	require.NoError(t, s.WriteSnapshot(ctx, "p2", second))
	require.NoError(t, s.WriteSnapshot(ctx, "q1", ir.Snapshot{Scene: "List", Hash: "h3", Entries: []ir.SnapshotEntry{}}))

	// p3 is later but has no snapshot; q1 belongs to another scene.
	token, snap, err := s.LatestSnapshot(ctx, "Adder")
	require.NoError(t, err)
	assert.Equal(t, "p2", token)
	assert.Equal(t, second, snap)
}

func TestCheckReplayable(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WritePass(ctx, createTestPass("p1", 0)))
	require.NoError(t, s.CheckReplayable(ctx, "p1"))

	_, err := s.db.Exec(`UPDATE passes SET ir_version = '0' WHERE token = 'p1'`)
	require.NoError(t, err)
	err = s.CheckReplayable(ctx, "p1")
	var versionErr *ir.VersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, "0", versionErr.Version)

	assert.ErrorIs(t, s.CheckReplayable(ctx, "missing"), ErrNotFound)
}

func TestStore_RecordsScenePass(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	spec := ir.SceneSpec{
		Name: "Pair",
		Nodes: []ir.NodeSpec{
			{Name: "A", Fields: []ir.FieldSpec{{Name: "x", Type: "SFInt32", Access: "inputOutput"}}},
			{Name: "B", Fields: []ir.FieldSpec{{Name: "x", Type: "SFInt32", Access: "inputOutput"}}},
		},
		Routes: []ir.RouteSpec{{
			From: ir.FieldRef{Node: "A", Field: "x"},
			To:   ir.FieldRef{Node: "B", Field: "x"},
		}},
	}
	scene, err := engine.Build(spec,
		engine.WithRecorder(s),
		engine.WithPassGenerator(engine.NewFixedGenerator("pass-1")),
	)
	require.NoError(t, err)

	_, err = scene.BeginPass(ctx)
	require.NoError(t, err)
	require.NoError(t, scene.Set("A.x", "5", scene.User()))
	v, err := scene.Get("B.x", field.Internal)
	require.NoError(t, err)
	assert.Equal(t, "5", v)
	scene.EndPass()

	p, err := s.ReadPass(ctx, "pass-1")
	require.NoError(t, err)
	assert.Equal(t, scene.Hash(), p.SceneHash)

	events, err := s.ReadEvents(ctx, "pass-1")
	require.NoError(t, err)
	var kinds []string
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []string{ir.EventWrite, ir.EventSet, ir.EventNotify, ir.EventRecompute}, kinds)

	replayed, err := engine.Replay(ctx, spec, events)
	require.NoError(t, err)
	v, err = replayed.Get("B.x", field.Internal)
	require.NoError(t, err)
	assert.Equal(t, "5", v)
}
