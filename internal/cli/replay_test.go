package cli

import (
	"database/sql"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplay_Deterministic(t *testing.T) {
	dir, db := recordPasses(t)

	out, err := execute(t, "replay", dir, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 2 pass(es)")
	assert.Contains(t, out, "✓ Pass: p1 (Adder)")
	assert.Contains(t, out, "✓ Pass: p2 (Adder)")
	assert.Contains(t, out, "Writes: 1")
	assert.Contains(t, out, "✓ All passes verified deterministic")
}

func TestReplay_RunPass(t *testing.T) {
	dir := adderDir(t)
	db := filepath.Join(t.TempDir(), "run.db")
	script := writeFiles(t, map[string]string{"writes.txt": "set A.a 10\nset Sum.out 3\nset B.b 5\n"})

	_, err := execute(t, "run", dir, "--script", filepath.Join(script, "writes.txt"), "--db", db)
	require.NoError(t, err)

	out, err := execute(t, "--format", "json", "replay", dir, "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string       `json:"status"`
		Data   ReplayResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data.Passes, 1)

	p := resp.Data.Passes[0]
	assert.True(t, p.Deterministic, p.Reason)
	assert.Equal(t, 3, p.Writes, "failed writes are replayed too")
	assert.Equal(t, p.RecordedHash, p.Hash)
}

func TestReplay_SinglePass(t *testing.T) {
	dir, db := recordPasses(t)

	out, err := execute(t, "replay", dir, "--db", db, "--pass", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, "Replay Summary: 1 pass(es)")
	assert.NotContains(t, out, "p1")

	_, err = execute(t, "replay", dir, "--db", db, "--pass", "p3")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "pass not found: p3")
}

func TestReplay_ChangedScene(t *testing.T) {
	_, db := recordPasses(t)
	changed := writeFiles(t, map[string]string{
		"adder.cue": strings.Replace(adderCUE, "value: 2", "value: 3", 1),
	})

	out, err := execute(t, "replay", changed, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Pass: p1 (Adder)")
	assert.Contains(t, out, "Warning: scene Adder changed since the pass was recorded")
	assert.Contains(t, out, "✗ Determinism verification failed")
}

func TestReplay_MissingScene(t *testing.T) {
	_, db := recordPasses(t)
	other := writeFiles(t, map[string]string{"list.cue": listCUE})

	out, err := execute(t, "--format", "json", "replay", other, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string         `json:"status"`
		Error  *ResponseError `json:"error"`
		Data   ReplayResult   `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_DETERMINISM", resp.Error.Code)
	assert.False(t, resp.Data.AllDeterministic)
	assert.Equal(t, "scene Adder not found", resp.Data.Passes[0].Reason)
}

func TestReplay_OtherIRVersion(t *testing.T) {
	dir, db := recordPasses(t)

	raw, err := sql.Open("sqlite3", db)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE passes SET ir_version = '0' WHERE token = 'p1'`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	out, err := execute(t, "--format", "json", "replay", dir, "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string         `json:"status"`
		Pass   string         `json:"pass"`
		Error  *ResponseError `json:"error"`
		Data   ReplayResult   `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "p1", resp.Pass)
	require.Len(t, resp.Data.Passes, 2)
	assert.Contains(t, resp.Data.Passes[0].Reason, "recorded with IR v0")
	assert.True(t, resp.Data.Passes[1].Deterministic)
}

func TestReplay_EmptyDatabase(t *testing.T) {
	dir := adderDir(t)
	db := filepath.Join(t.TempDir(), "empty.db")
	openStore(t, db)

	out, err := execute(t, "replay", dir, "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "No passes found in database.")
}

func TestReplay_MissingDatabase(t *testing.T) {
	_, err := execute(t, "replay", adderDir(t), "--db", filepath.Join(t.TempDir(), "none.db"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
