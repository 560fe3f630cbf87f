package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/ir"
)

// recordPasses records two eval passes over the Adder scene and returns the
// scenes dir and the database path.
func recordPasses(t *testing.T) (string, string) {
	t.Helper()
	dir := adderDir(t)
	db := filepath.Join(t.TempDir(), "trace.db")

	_, err := execute(t, "eval", dir, "--db", db, "--pass", "p1", "--set", "A.a=10", "--get", "Sum.out")
	require.NoError(t, err)
	_, err = execute(t, "eval", dir, "--db", db, "--pass", "p2", "--set", "A.a=20")
	require.NoError(t, err)
	return dir, db
}

// =============================================================================
// trace
// =============================================================================

func TestTrace_Text(t *testing.T) {
	_, db := recordPasses(t)

	out, err := execute(t, "trace", "--db", db, "--pass", "p1")
	require.NoError(t, err)

	assert.Contains(t, out, "Trace for Pass: p1")
	assert.Contains(t, out, "Scene: Adder")
	assert.Contains(t, out, "[1] write set A.a = 10 by @user")
	assert.Contains(t, out, "[3] notify Sum.out <- A.a")
	assert.Contains(t, out, "[5] recompute Sum.out <- A.a = 12")
	assert.Contains(t, out, "Total Events: 5")
	assert.Contains(t, out, "Recomputes:   1")
}

func TestTrace_ClockContinuesAcrossPasses(t *testing.T) {
	_, db := recordPasses(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--pass", "p2")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data.Events)
	assert.Equal(t, int64(6), resp.Data.Events[0].Seq)
	assert.Equal(t, int64(5), resp.Data.Pass.StartedSeq)
}

func TestTrace_Filters(t *testing.T) {
	_, db := recordPasses(t)

	out, err := execute(t, "--format", "json", "trace", "--db", db, "--pass", "p1", "--kind", "notify")
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data.Events, 2)
	assert.Equal(t, "Sum.out", resp.Data.Events[0].Field)
	assert.Equal(t, "Copy.v", resp.Data.Events[1].Field)
	assert.Equal(t, 5, resp.Data.Stats.TotalEvents, "stats cover the whole pass")

	out, err = execute(t, "trace", "--db", db, "--pass", "p1", "--field", "Copy.v")
	require.NoError(t, err)
	assert.Contains(t, out, "[4] notify Copy.v <- Sum.out")
	assert.NotContains(t, out, "[1] write")
}

func TestTrace_ListsPasses(t *testing.T) {
	_, db := recordPasses(t)

	out, err := execute(t, "trace", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "2 pass(es):")
	assert.Contains(t, out, "p1  Adder  @0")
	assert.Contains(t, out, "p2  Adder  @5")
}

func TestTrace_Errors(t *testing.T) {
	_, db := recordPasses(t)

	_, err := execute(t, "trace", "--db", db, "--pass", "missing")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "pass not found: missing")

	_, err = execute(t, "trace", "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "database not found")
}

func TestFormatTraceEvent(t *testing.T) {
	tests := []struct {
		event ir.Event
		want  string
	}{
		{ir.Event{Seq: 1, Kind: "write", Op: "set", Field: "A.a", Value: "10", Caller: "@user"}, "[1] write set A.a = 10 by @user"},
		{ir.Event{Seq: 2, Kind: "write", Op: "route", Field: "Sum.out", Value: "X.x", Caller: "@user"}, "[2] write route Sum.out -> X.x by @user"},
		{ir.Event{Seq: 3, Kind: "error", Op: "set", Field: "Sum.out", Value: "ACCESS_VIOLATION: denied", Caller: "@user"}, "[3] error set Sum.out: ACCESS_VIOLATION: denied by @user"},
		{ir.Event{Seq: 4, Kind: "notify", Field: "Copy.v", Source: "Sum.out"}, "[4] notify Copy.v <- Sum.out"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTraceEvent(tt.event))
	}
}

// =============================================================================
// snapshot
// =============================================================================

func TestSnapshot_LatestForScene(t *testing.T) {
	_, db := recordPasses(t)

	out, err := execute(t, "snapshot", "--db", db, "--scene", "Adder")
	require.NoError(t, err)
	assert.Contains(t, out, "Snapshot of Adder after pass p2")
	assert.Contains(t, out, "Sum.out = 22")
	assert.Contains(t, out, "Hash: ")
}

func TestSnapshot_ByPass(t *testing.T) {
	_, db := recordPasses(t)

	out, err := execute(t, "--format", "json", "snapshot", "--db", db, "--pass", "p1")
	require.NoError(t, err)

	var resp struct {
		Data SnapshotResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "p1", resp.Data.PassToken)
	assert.Contains(t, resp.Data.Snapshot.Entries, snapshotEntry("A.a", "10"))
	assert.Contains(t, resp.Data.Snapshot.Entries, snapshotEntry("Sum.out", "12"))
	assert.Contains(t, resp.Data.Snapshot.Entries, snapshotEntry("Copy.v", "12"))

	hash, err := ir.SnapshotHash("Adder", resp.Data.Snapshot.Entries)
	require.NoError(t, err)
	assert.Equal(t, hash, resp.Data.Snapshot.Hash)
}

func TestSnapshot_NotFound(t *testing.T) {
	_, db := recordPasses(t)

	_, err := execute(t, "snapshot", "--db", db, "--scene", "List")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "no snapshot recorded for scene List")

	_, err = execute(t, "snapshot", "--db", db, "--pass", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no snapshot for pass nope")
}
