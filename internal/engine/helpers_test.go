package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/field"
	"github.com/roach88/fieldnet/internal/ir"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fieldSpec(name, typ, access string) ir.FieldSpec {
	return ir.FieldSpec{Name: name, Type: typ, Access: access}
}

func withValue(fs ir.FieldSpec, v string) ir.FieldSpec {
	fs.Value = v
	fs.HasValue = true
	return fs
}

func withCompute(fs ir.FieldSpec, compute string) ir.FieldSpec {
	fs.Compute = compute
	return fs
}

func routeSpec(from, to string) ir.RouteSpec {
	f, err := ir.ParseFieldRef(from)
	if err != nil {
		panic(err)
	}
	t, err := ir.ParseFieldRef(to)
	if err != nil {
		panic(err)
	}
	return ir.RouteSpec{From: f, To: t}
}

// adderSpec is A.a + B.b computed into Sum.out and copied into Copy.v.
func adderSpec() ir.SceneSpec {
	return ir.SceneSpec{
		Name: "Adder",
		Nodes: []ir.NodeSpec{
			{Name: "A", Fields: []ir.FieldSpec{withValue(fieldSpec("a", "SFInt32", "inputOutput"), "1")}},
			{Name: "B", Fields: []ir.FieldSpec{withValue(fieldSpec("b", "SFInt32", "inputOutput"), "2")}},
			{Name: "Sum", Fields: []ir.FieldSpec{withCompute(fieldSpec("out", "SFInt32", "outputOnly"), "sum")}},
			{Name: "Copy", Fields: []ir.FieldSpec{fieldSpec("v", "SFInt32", "inputOutput")}},
		},
		Routes: []ir.RouteSpec{
			routeSpec("A.a", "Sum.out"),
			routeSpec("B.b", "Sum.out"),
			routeSpec("Sum.out", "Copy.v"),
		},
	}
}

func build(t *testing.T, spec ir.SceneSpec, opts ...Option) *Scene {
	t.Helper()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := Build(spec, opts...)
	require.NoError(t, err)
	return s
}

func mustGet(t *testing.T, s *Scene, path string) string {
	t.Helper()
	v, err := s.Get(path, field.Internal)
	require.NoError(t, err)
	return v
}

func kinds(events []ir.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}
