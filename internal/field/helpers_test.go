package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// fakeRegistry is an in-memory OwnerRegistry.
type fakeRegistry struct {
	names       map[OwnerID]string
	initialized map[OwnerID]bool
	denied      map[OwnerID]bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		names:       map[OwnerID]string{},
		initialized: map[OwnerID]bool{},
		denied:      map[OwnerID]bool{},
	}
}

func (r *fakeRegistry) OwnerName(id OwnerID) string { return r.names[id] }
func (r *fakeRegistry) IsInitialized(id OwnerID) bool { return r.initialized[id] }
func (r *fakeRegistry) MayWrite(_, caller OwnerID) bool {
	return !r.denied[caller]
}

type observed struct {
	kind   EventKind
	field  string
	source string
}

// eventLog records observer callbacks.
type eventLog struct {
	events []observed
}

func (l *eventLog) FieldEvent(kind EventKind, f Field, src Field) {
	e := observed{kind: kind, field: f.Name()}
	if src != nil {
		e.source = src.Name()
	}
	l.events = append(l.events, e)
}

func (l *eventLog) count(kind EventKind, name string) int {
	n := 0
	for _, e := range l.events {
		if e.kind == kind && e.field == name {
			n++
		}
	}
	return n
}

// assertMirror checks B in A.out <=> A in B.in for every pair.
func assertMirror(t *testing.T, fields ...Field) {
	t.Helper()
	for _, a := range fields {
		for _, b := range fields {
			assert.Equal(t, a.RoutesTo(b), b.HasRouteFrom(a),
				"mirror broken between %s and %s", a.Name(), b.Name())
		}
	}
}
