package testutil

import (
	"testing"

	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/compiler"
	"github.com/roach88/fieldnet/internal/ir"
)

// CompileScene compiles CUE source declaring exactly one scene and fails
// the test on any compile or validation error.
//
//	spec := testutil.CompileScene(t, `scene: Adder: { node: {...} }`)
func CompileScene(t testing.TB, src string) *ir.SceneSpec {
	t.Helper()

	v := cuecontext.New().CompileString(src)
	require.NoError(t, v.Err(), "CUE source must compile")

	specs, err := compiler.CompileScenes(v)
	require.NoError(t, err)
	require.Len(t, specs, 1, "source must declare exactly one scene")
	require.Empty(t, compiler.Validate(specs[0]), "scene must validate")
	return specs[0]
}
