package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/store"
)

const adderCUE = `scene: Adder: {
	node: {
		A: field: a: {type: "SFInt32", value: 1}
		B: field: b: {type: "SFInt32", value: 2}
		Sum: field: out: {type: "SFInt32", access: "outputOnly", compute: "sum"}
		Copy: field: v: {type: "SFInt32"}
	}
	route: [
		{from: "A.a", to: "Sum.out"},
		{from: "B.b", to: "Sum.out"},
		{from: "Sum.out", to: "Copy.v"},
	]
}
`

const listCUE = `scene: List: {
	node: {
		L: field: items: {type: "MFInt32", value: [1, 2]}
		Total: field: n: {type: "SFInt32", access: "outputOnly", compute: "sum"}
	}
	route: [{from: "L.items", to: "Total.n"}]
}
`

// writeFiles writes name -> content pairs below a fresh temp dir and
// returns the dir.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

// adderDir returns a scenes dir holding only the Adder scene.
func adderDir(t *testing.T) string {
	t.Helper()
	return writeFiles(t, map[string]string{"adder.cue": adderCUE})
}

// execute runs the root command with args and returns what it wrote to
// stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// openStore opens a trace database written by a command under test.
func openStore(t *testing.T, path string) *store.Store {
	t.Helper()
	st, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func snapshotEntry(field, value string) ir.SnapshotEntry {
	return ir.SnapshotEntry{Field: field, Value: value}
}
