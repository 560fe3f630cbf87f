package field

import (
	"log/slog"
	"slices"
)

// Kind is the closed set of field variants.
type Kind int

const (
	KindScalar Kind = iota
	KindSequence
	KindOwnedRef
	KindOwnedRefSequence
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindOwnedRef:
		return "owned-ref"
	case KindOwnedRefSequence:
		return "owned-ref-sequence"
	}
	return "unknown"
}

// Field is the capability every field variant exposes to the graph.
// Concrete variants embed Base, which implements everything except Type
// and Kind.
type Field interface {
	Name() string
	FullName() string
	Type() Type
	Kind() Kind
	Owner() OwnerID
	AccessType() AccessType
	Contract() *Contract

	Route(dst Field, caller OwnerID) error
	RouteNoEvent(dst Field, caller OwnerID) error
	ReplaceRoute(dst Field, i int, caller OwnerID) (Field, error)
	Unroute(dst Field)
	UnrouteAll()
	Detach()
	Touch()

	UpToDate() error
	IsUpToDate() bool
	CheckRead(caller OwnerID) error
	CheckWrite(caller OwnerID) error
	SetAccessCheck(on bool)

	RoutesIn() []Field
	RoutesOut() []Field
	RoutesTo(dst Field) bool
	HasRouteFrom(src Field) bool
	LatestEvent() Field
	HasCausedEvent(src Field) bool

	ValueAsString(caller OwnerID) (string, error)
	SetValueFromString(s string, caller OwnerID) error

	base() *Base
}

// node is the internal view of a concrete field.
type node interface {
	Field
	update() error
}

// EventKind classifies observer callbacks.
type EventKind int

const (
	EventSet EventKind = iota
	EventNotify
	EventRecompute
	EventRoute
	EventUnroute
)

func (k EventKind) String() string {
	switch k {
	case EventSet:
		return "set"
	case EventNotify:
		return "notify"
	case EventRecompute:
		return "recompute"
	case EventRoute:
		return "route"
	case EventUnroute:
		return "unroute"
	}
	return "unknown"
}

// Observer receives field events. Observers are owned by whoever builds the
// graph (usually a scene) and are called synchronously.
type Observer interface {
	FieldEvent(kind EventKind, f Field, source Field)
}

// Base holds the state shared by every field variant: identity, owner,
// access type, the route lists, the validity flag and the latest event.
type Base struct {
	self     node
	name     string
	typ      Type
	owner    OwnerID
	registry OwnerRegistry
	access   AccessType
	contract *Contract
	observer Observer
	logger   *slog.Logger

	accessCheck bool
	autoUpdate  bool
	valid       bool
	updating    bool
	propagating bool

	in     []Field
	out    []Field
	event  Field
	caused []Field

	hooks hooks
}

// hooks carries typed callbacks from options to the variant constructors.
type hooks struct {
	update   any
	onNew    any
	onChange any
	ref      any
}

// Option configures a field at construction.
type Option func(*Base)

// Named sets the field name.
func Named(name string) Option {
	return func(b *Base) { b.name = name }
}

// OwnedBy sets the owning entity and the registry that resolves it.
func OwnedBy(owner OwnerID, registry OwnerRegistry) Option {
	return func(b *Base) {
		b.owner = owner
		b.registry = registry
	}
}

// WithAccess sets the access type. The default is InputOutput.
func WithAccess(a AccessType) Option {
	return func(b *Base) { b.access = a }
}

// WithContract replaces the default pass-through contract.
func WithContract(c *Contract) Option {
	return func(b *Base) { b.contract = c }
}

// WithObserver attaches an observer.
func WithObserver(o Observer) Option {
	return func(b *Base) { b.observer = o }
}

// WithLogger sets the logger used for AutoUpdate failures.
func WithLogger(l *slog.Logger) Option {
	return func(b *Base) { b.logger = l }
}

// AutoUpdate makes the field recompute as soon as it is notified instead of
// on the next read.
func AutoUpdate() Option {
	return func(b *Base) { b.autoUpdate = true }
}

func (b *Base) init(self node, typ Type, opts []Option) {
	b.self = self
	b.typ = typ
	b.valid = true
	b.accessCheck = true
	for _, opt := range opts {
		opt(b)
	}
	if b.contract == nil {
		b.contract = PassThrough(typ)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
}

func (b *Base) base() *Base { return b }

// Name returns the field name.
func (b *Base) Name() string { return b.name }

// FullName returns "<owner>.<name>" when the owner is known, the bare name
// otherwise, and "Unknown <type>" for unnamed fields.
func (b *Base) FullName() string {
	name := b.name
	if name == "" {
		name = "Unknown " + string(b.typ)
	}
	if b.registry != nil && b.owner != Internal {
		if owner := b.registry.OwnerName(b.owner); owner != "" {
			return owner + "." + name
		}
	}
	return name
}

// Owner returns the owning entity id.
func (b *Base) Owner() OwnerID { return b.owner }

// AccessType returns the access type.
func (b *Base) AccessType() AccessType { return b.access }

// Contract returns the connection contract.
func (b *Base) Contract() *Contract { return b.contract }

// SetAccessCheck turns access checking on or off for this field.
func (b *Base) SetAccessCheck(on bool) { b.accessCheck = on }

// RoutesIn returns a copy of the incoming routes in declaration order.
func (b *Base) RoutesIn() []Field { return slices.Clone(b.in) }

// RoutesOut returns a copy of the outgoing routes in insertion order.
func (b *Base) RoutesOut() []Field { return slices.Clone(b.out) }

// RoutesTo reports whether this field routes to dst.
func (b *Base) RoutesTo(dst Field) bool { return slices.Contains(b.out, dst) }

// HasRouteFrom reports whether src routes to this field.
func (b *Base) HasRouteFrom(src Field) bool { return slices.Contains(b.in, src) }

// LatestEvent returns the source of the most recent event since the last
// recompute, or nil.
func (b *Base) LatestEvent() Field { return b.event }

// HasCausedEvent reports whether src notified this field since its last
// recompute.
func (b *Base) HasCausedEvent(src Field) bool { return slices.Contains(b.caused, src) }

// IsUpToDate reports whether the cached value is valid.
func (b *Base) IsUpToDate() bool { return b.valid }

// =============================================================================
// Routing
// =============================================================================

// Route connects this field to dst and invalidates dst. Routing an already
// connected pair is a no-op.
func (b *Base) Route(dst Field, caller OwnerID) error {
	return b.route(dst, caller, true)
}

// RouteNoEvent connects this field to dst without invalidating dst.
func (b *Base) RouteNoEvent(dst Field, caller OwnerID) error {
	return b.route(dst, caller, false)
}

func (b *Base) route(dst Field, caller OwnerID, event bool) error {
	if err := b.checkRouteOut(dst, caller); err != nil {
		return err
	}
	if b.RoutesTo(dst) {
		return nil
	}
	d := dst.base()
	if err := d.checkRouteIn(b.self, caller); err != nil {
		return err
	}
	if err := d.validateRoute(b.typ, len(d.in)); err != nil {
		return err
	}
	b.out = append(b.out, dst)
	d.in = append(d.in, b.self)
	d.emit(EventRoute, b.self)
	if event {
		d.notify(b.self)
	}
	return nil
}

// ReplaceRoute replaces the i-th incoming route of dst with this field and
// returns the field it replaced. If i is past the end, the route is
// appended and nil is returned.
func (b *Base) ReplaceRoute(dst Field, i int, caller OwnerID) (Field, error) {
	if err := b.checkRouteOut(dst, caller); err != nil {
		return nil, err
	}
	d := dst.base()
	if i < 0 {
		return nil, indexError(d.FullName(), i, len(d.in))
	}
	if i >= len(d.in) {
		return nil, b.Route(dst, caller)
	}
	old := d.in[i]
	if old == Field(b.self) {
		return nil, nil
	}
	if err := d.checkRouteIn(b.self, caller); err != nil {
		return nil, err
	}
	if b.RoutesTo(dst) {
		// Already routed through another slot, so replacing collapses to
		// removing the old route.
		old.Unroute(dst)
		d.notify(b.self)
		return old, nil
	}
	if err := d.validateRoute(b.typ, i); err != nil {
		return nil, err
	}
	ob := old.base()
	ob.out = slices.DeleteFunc(ob.out, func(f Field) bool { return f == dst })
	d.in[i] = b.self
	b.out = append(b.out, dst)
	d.forget(old)
	d.emit(EventUnroute, old)
	d.emit(EventRoute, b.self)
	d.notify(b.self)
	return old, nil
}

func (b *Base) validateRoute(t Type, i int) error {
	if err := b.contract.ValidateRoute(t, i); err != nil {
		e := err.(*Error)
		e.Field = b.FullName()
		return e
	}
	return nil
}

// Unroute removes the route from this field to dst. Removing an absent
// route is a no-op.
func (b *Base) Unroute(dst Field) {
	if !b.RoutesTo(dst) {
		return
	}
	d := dst.base()
	b.out = slices.DeleteFunc(b.out, func(f Field) bool { return f == dst })
	d.in = slices.DeleteFunc(d.in, func(f Field) bool { return f == Field(b.self) })
	d.forget(b.self)
	d.emit(EventUnroute, b.self)
}

// forget drops src from the pending event state after its route is gone.
func (b *Base) forget(src Field) {
	if b.event == src {
		b.event = nil
	}
	b.caused = slices.DeleteFunc(b.caused, func(f Field) bool { return f == src })
}

// UnrouteAll removes every outgoing route.
func (b *Base) UnrouteAll() {
	for len(b.out) > 0 {
		b.Unroute(b.out[len(b.out)-1])
	}
}

// Detach severs every route in both directions. Owners must detach their
// fields before they are torn down.
func (b *Base) Detach() {
	b.UnrouteAll()
	for len(b.in) > 0 {
		b.in[len(b.in)-1].Unroute(b.self)
	}
}

// =============================================================================
// Events
// =============================================================================

// Touch notifies the outgoing routes without changing the value.
func (b *Base) Touch() {
	b.propagate()
}

// notify records src as the latest event source and, if the field was
// valid, invalidates it and passes the event on. Propagation stops at
// fields that are already invalid, and at fields that are themselves
// propagating (an event that went round a cycle).
func (b *Base) notify(src Field) {
	if b.propagating {
		return
	}
	b.event = src
	if src != nil && !slices.Contains(b.caused, src) {
		b.caused = append(b.caused, src)
	}
	b.emit(EventNotify, src)
	if !b.valid {
		return
	}
	b.valid = false
	b.propagate()
	if b.autoUpdate {
		if err := b.UpToDate(); err != nil {
			b.logger.Warn("auto update failed", "field", b.FullName(), "error", err)
		}
	}
}

// propagate notifies every outgoing route in insertion order.
func (b *Base) propagate() {
	b.propagating = true
	for i := 0; i < len(b.out); i++ {
		b.out[i].base().notify(b.self)
	}
	b.propagating = false
}

// written finishes a direct write: the pending event is discarded, the
// field is valid, and the outgoing routes are notified.
func (b *Base) written() {
	b.event = nil
	b.caused = b.caused[:0]
	b.valid = true
	b.emit(EventSet, nil)
	b.propagate()
}

// UpToDate recomputes the value if it is stale. A field already inside its
// own recompute returns immediately, which terminates route cycles.
func (b *Base) UpToDate() error {
	if b.valid || b.updating {
		return nil
	}
	if err := b.contract.ValidateShape(len(b.in)); err != nil {
		e := err.(*Error)
		e.Field = b.FullName()
		return e
	}
	b.updating = true
	err := b.self.update()
	b.updating = false
	if err != nil {
		return err
	}
	src := b.event
	b.valid = true
	b.event = nil
	b.caused = b.caused[:0]
	b.emit(EventRecompute, src)
	return nil
}

// eventSource returns the field a pass-through recompute copies from: the
// latest event source, or the single incoming route.
func (b *Base) eventSource() Field {
	if b.event != nil && b.HasRouteFrom(b.event) {
		return b.event
	}
	if len(b.in) == 1 {
		return b.in[0]
	}
	return nil
}

func (b *Base) emit(kind EventKind, src Field) {
	if b.observer != nil {
		b.observer.FieldEvent(kind, b.self, src)
	}
}

func (b *Base) sourceError(src Field) error {
	return &Error{
		Code:     ErrCodeInvalidRouteType,
		Message:  "cannot copy a value from " + src.FullName(),
		Field:    b.FullName(),
		Expected: string(b.typ),
		Actual:   string(src.Type()),
	}
}

// Close detaches f and releases any reference it holds.
func Close(f Field) {
	f.Detach()
	if r, ok := f.(interface{ release() }); ok {
		r.release()
	}
}
