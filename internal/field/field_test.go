package field

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldnet/internal/value"
)

func newInt(name string, opts ...Option) *SField[int32] {
	return NewSField(value.Int32, append([]Option{Named(name)}, opts...)...)
}

// =============================================================================
// Routing
// =============================================================================

func TestRoute_MirrorInvariant(t *testing.T) {
	a, b, c := newInt("a"), newInt("b"), newInt("c")

	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, a.Route(c, Internal))
	require.NoError(t, b.Route(c, Internal))
	assertMirror(t, a, b, c)

	a.Unroute(c)
	assertMirror(t, a, b, c)
	assert.False(t, a.RoutesTo(c))
	assert.Equal(t, []Field{b}, c.RoutesIn())

	b.Detach()
	assertMirror(t, a, b, c)
	assert.Empty(t, b.RoutesIn())
	assert.Empty(t, b.RoutesOut())
	assert.Empty(t, a.RoutesOut())
}

func TestRoute_Idempotent(t *testing.T) {
	a, b := newInt("a"), newInt("b")

	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, a.Route(b, Internal))

	assert.Len(t, a.RoutesOut(), 1)
	assert.Len(t, b.RoutesIn(), 1)
}

func TestRoute_InvalidatesDestination(t *testing.T) {
	a, b := newInt("a"), newInt("b")
	require.NoError(t, a.SetValue(4, Internal))

	require.NoError(t, a.Route(b, Internal))

	assert.False(t, b.IsUpToDate())
	assert.Equal(t, Field(a), b.LatestEvent())
	v, err := b.Value(Internal)
	require.NoError(t, err)
	assert.Equal(t, int32(4), v)
	assert.True(t, b.IsUpToDate())
	assert.Nil(t, b.LatestEvent())
}

func TestRouteNoEvent_KeepsDestinationValid(t *testing.T) {
	a, b := newInt("a"), newInt("b")
	require.NoError(t, a.SetValue(4, Internal))

	require.NoError(t, a.RouteNoEvent(b, Internal))

	assert.True(t, b.IsUpToDate())
	v, err := b.Value(Internal)
	require.NoError(t, err)
	assert.Equal(t, int32(0), v)
}

func TestRoute_RejectedTypeIsAtomic(t *testing.T) {
	f := NewSField(value.Float, Named("f"))
	i := newInt("i")

	err := f.Route(i, Internal)

	require.Error(t, err)
	assert.True(t, IsInvalidRouteType(err))
	var fe *Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "SFFloat", fe.Actual)
	assert.Equal(t, "AnyNumber<SFInt32>", fe.Expected)
	assert.Equal(t, "i", fe.Field)
	assertMirror(t, f, i)
	assert.True(t, i.IsUpToDate())
}

func TestReplaceRoute(t *testing.T) {
	a, b, c := newInt("a"), newInt("b"), newInt("c")
	d := newInt("d")
	require.NoError(t, a.Route(d, Internal))
	require.NoError(t, b.Route(d, Internal))

	old, err := c.ReplaceRoute(d, 0, Internal)

	require.NoError(t, err)
	assert.Equal(t, Field(a), old)
	assert.Equal(t, []Field{c, b}, d.RoutesIn())
	assert.False(t, a.RoutesTo(d))
	assertMirror(t, a, b, c, d)
}

func TestReplaceRoute_PastEndAppends(t *testing.T) {
	a, d := newInt("a"), newInt("d")

	old, err := a.ReplaceRoute(d, 3, Internal)

	require.NoError(t, err)
	assert.Nil(t, old)
	assert.Equal(t, []Field{a}, d.RoutesIn())
}

func TestReplaceRoute_ChecksSlotType(t *testing.T) {
	contract := MustContract([]Slot{Fixed("SFInt32"), Fixed("SFFloat")}, Void)
	a, b := newInt("a"), NewSField(value.Float, Named("b"))
	d := newInt("d", WithContract(contract))
	require.NoError(t, a.Route(d, Internal))
	require.NoError(t, b.Route(d, Internal))

	x := NewSField(value.Float, Named("x"))
	_, err := x.ReplaceRoute(d, 0, Internal)
	assert.True(t, IsInvalidRouteType(err))
	assert.Equal(t, []Field{a, b}, d.RoutesIn())

	old, err := x.ReplaceRoute(d, 1, Internal)
	require.NoError(t, err)
	assert.Equal(t, Field(b), old)
	assertMirror(t, a, b, d, x)
}

func TestUnrouteAll(t *testing.T) {
	a, b, c := newInt("a"), newInt("b"), newInt("c")
	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, a.Route(c, Internal))

	a.UnrouteAll()

	assert.Empty(t, a.RoutesOut())
	assertMirror(t, a, b, c)
}

func TestUnroute_AbsentIsNoop(t *testing.T) {
	a, b := newInt("a"), newInt("b")
	a.Unroute(b)
	assertMirror(t, a, b)
}

// =============================================================================
// Lazy evaluation
// =============================================================================

func TestLazy_ChainReadsCurrentInputs(t *testing.T) {
	a, b, c := newInt("a"), newInt("b"), newInt("c")
	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, b.Route(c, Internal))

	for _, v := range []int32{1, -7, 42} {
		require.NoError(t, a.SetValue(v, Internal))
		assert.False(t, c.IsUpToDate())
		got, err := c.Value(Internal)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

func sumOf(calls *int) func(f *SField[int32]) (int32, error) {
	return func(f *SField[int32]) (int32, error) {
		*calls++
		var total int32
		for _, in := range f.RoutesIn() {
			v, err := ValueOf[int32](in, Internal)
			if err != nil {
				return 0, err
			}
			total += v
		}
		return total, nil
	}
}

func TestLazy_Memoization(t *testing.T) {
	calls := 0
	a, b := newInt("a"), newInt("b")
	sum := newInt("sum", WithUpdate(sumOf(&calls)))
	require.NoError(t, a.Route(sum, Internal))
	require.NoError(t, b.Route(sum, Internal))

	require.NoError(t, a.SetValue(2, Internal))
	require.NoError(t, b.SetValue(3, Internal))

	require.NoError(t, sum.UpToDate())
	require.NoError(t, sum.UpToDate())
	v, err := sum.Value(Internal)
	require.NoError(t, err)

	assert.Equal(t, int32(5), v)
	assert.Equal(t, 1, calls)
}

func TestLazy_MissingRequiredRoute(t *testing.T) {
	calls := 0
	contract := MustContract([]Slot{Fixed("SFInt32"), Fixed("SFInt32")}, Void)
	a, b := newInt("a"), newInt("b")
	sum := newInt("sum", WithContract(contract), WithUpdate(sumOf(&calls)))
	require.NoError(t, a.Route(sum, Internal))

	_, err := sum.Value(Internal)

	require.Error(t, err)
	assert.True(t, IsMissingRequiredRoute(err))
	assert.Equal(t, 0, calls)

	require.NoError(t, b.Route(sum, Internal))
	require.NoError(t, b.SetValue(9, Internal))
	v, err := sum.Value(Internal)
	require.NoError(t, err)
	assert.Equal(t, int32(9), v)
}

func TestLazy_TooManyRoutes(t *testing.T) {
	contract := MustContract([]Slot{Fixed("SFInt32")}, Void)
	a, b := newInt("a"), newInt("b")
	d := newInt("d", WithContract(contract))
	require.NoError(t, a.Route(d, Internal))

	err := b.Route(d, Internal)

	require.Error(t, err)
	assert.True(t, IsInvalidRouteType(err))
	assert.Contains(t, err.Error(), "too many routes")
	assertMirror(t, a, b, d)
}

func TestLazy_LatestSourceWins(t *testing.T) {
	a, b, d := newInt("a"), newInt("b"), newInt("d")
	require.NoError(t, a.Route(d, Internal))
	require.NoError(t, b.Route(d, Internal))

	require.NoError(t, a.SetValue(1, Internal))
	require.NoError(t, b.SetValue(2, Internal))
	v, err := d.Value(Internal)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)

	require.NoError(t, a.SetValue(7, Internal))
	v, err = d.Value(Internal)
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)
}

func TestDirectWriteDiscardsPendingEvent(t *testing.T) {
	a, b := newInt("a"), newInt("b")
	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, a.SetValue(1, Internal))

	require.NoError(t, b.SetValue(5, Internal))

	assert.True(t, b.IsUpToDate())
	assert.Nil(t, b.LatestEvent())
	v, err := b.Value(Internal)
	require.NoError(t, err)
	assert.Equal(t, int32(5), v)
}

// =============================================================================
// Events
// =============================================================================

func TestNotify_StopsAtInvalidField(t *testing.T) {
	log := &eventLog{}
	a := newInt("a", WithObserver(log))
	b := newInt("b", WithObserver(log))
	c := newInt("c", WithObserver(log))
	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, b.Route(c, Internal))
	require.NoError(t, c.UpToDate())
	require.NoError(t, b.UpToDate())
	log.events = nil

	require.NoError(t, a.SetValue(1, Internal))
	require.NoError(t, a.SetValue(2, Internal))

	assert.Equal(t, 2, log.count(EventNotify, "b"))
	assert.Equal(t, 1, log.count(EventNotify, "c"), "b was already invalid on the second write")
	assert.Equal(t, 2, log.count(EventSet, "a"))
}

func TestTouch_NotifiesWithoutChange(t *testing.T) {
	a, b := newInt("a"), newInt("b")
	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, b.UpToDate())

	a.Touch()

	assert.False(t, b.IsUpToDate())
	assert.True(t, a.IsUpToDate())
}

func TestHasCausedEvent(t *testing.T) {
	a, b, d := newInt("a"), newInt("b"), newInt("d")
	require.NoError(t, a.Route(d, Internal))
	require.NoError(t, b.Route(d, Internal))
	require.NoError(t, d.UpToDate())

	require.NoError(t, b.SetValue(1, Internal))

	assert.True(t, d.HasCausedEvent(b))
	assert.False(t, d.HasCausedEvent(a))

	require.NoError(t, d.UpToDate())
	assert.False(t, d.HasCausedEvent(b))
}

func TestHasCausedEvent_ForgetsUnroutedSource(t *testing.T) {
	a, b, c, d := newInt("a"), newInt("b"), newInt("c"), newInt("d")
	require.NoError(t, a.Route(d, Internal))
	require.NoError(t, b.Route(d, Internal))
	require.NoError(t, d.UpToDate())

	require.NoError(t, a.SetValue(1, Internal))
	require.NoError(t, b.SetValue(2, Internal))
	require.True(t, d.HasCausedEvent(b))

	b.Unroute(d)
	assert.False(t, d.HasCausedEvent(b))
	assert.True(t, d.HasCausedEvent(a))
	assert.Nil(t, d.LatestEvent())

	old, err := c.ReplaceRoute(d, 0, Internal)
	require.NoError(t, err)
	assert.Same(t, a, old)
	assert.False(t, d.HasCausedEvent(a))
	assert.True(t, d.HasCausedEvent(c))
}

func TestCycle_Terminates(t *testing.T) {
	a, b := newInt("a"), newInt("b")
	require.NoError(t, a.Route(b, Internal))
	require.NoError(t, b.Route(a, Internal))

	require.NoError(t, a.SetValue(3, Internal))

	vb, err := b.Value(Internal)
	require.NoError(t, err)
	va, err := a.Value(Internal)
	require.NoError(t, err)
	assert.Equal(t, int32(3), vb)
	assert.Equal(t, int32(3), va)
}

func TestAutoUpdate_RecomputesOnNotify(t *testing.T) {
	var seen []int32
	a := newInt("a")
	b := newInt("b", AutoUpdate(), OnNewValue(func(v int32) { seen = append(seen, v) }))
	require.NoError(t, a.Route(b, Internal))

	require.NoError(t, a.SetValue(5, Internal))
	require.NoError(t, a.SetValue(6, Internal))

	assert.True(t, b.IsUpToDate())
	assert.Equal(t, []int32{0, 5, 6}, seen)
}

func TestObserver_RecordsRecompute(t *testing.T) {
	log := &eventLog{}
	a := newInt("a")
	b := newInt("b", WithObserver(log))
	require.NoError(t, a.Route(b, Internal))

	_, err := b.Value(Internal)
	require.NoError(t, err)
	_, err = b.Value(Internal)
	require.NoError(t, err)

	assert.Equal(t, 1, log.count(EventRoute, "b"))
	assert.Equal(t, 1, log.count(EventRecompute, "b"))
}

func TestFullName(t *testing.T) {
	reg := newFakeRegistry()
	reg.names[3] = "Transform"

	assert.Equal(t, "Transform.translation", newInt("translation", OwnedBy(3, reg)).FullName())
	assert.Equal(t, "loose", newInt("loose").FullName())
	assert.Equal(t, "Unknown SFInt32", NewSField(value.Int32).FullName())
}

func TestKindStrings(t *testing.T) {
	assert.Equal(t, "scalar", KindScalar.String())
	assert.Equal(t, "sequence", KindSequence.String())
	assert.Equal(t, "owned-ref", KindOwnedRef.String())
	assert.Equal(t, "notify", EventNotify.String())
}
