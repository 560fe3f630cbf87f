package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/fieldnet/internal/field"
	"github.com/roach88/fieldnet/internal/ir"
)

// UserName is the registry name of the scene's external caller. It cannot
// collide with a node name.
const UserName = "@user"

// ErrPassActive is returned by BeginPass while another pass is open.
var ErrPassActive = errors.New("engine: a pass is already active")

// Scene is a built field graph: the nodes of a SceneSpec, their fields, and
// the routes between them.
//
// Thread-safety model:
//   - Post(), Stop(), Pending(): safe from any goroutine
//   - everything else: only from the goroutine that owns the scene, which is
//     the one calling Run() if the scene runs a loop
type Scene struct {
	spec     ir.SceneSpec
	hash     string
	registry *Registry
	factory  *Factory
	extra    map[string]Constructor
	nodes    []*Node
	byName   map[string]*Node
	user     field.OwnerID

	inbox      *inbox
	quota      *WriteQuota
	clock      Sequencer
	passGen    PassTokenGenerator
	recorder   Recorder
	logger     *slog.Logger
	cycleCheck bool

	pass    *ir.Pass
	passCtx context.Context
}

// Option configures a scene at Build.
type Option func(*Scene)

// WithCycleCheck makes Route refuse routes that would close a route cycle
// with CYCLE_DETECTED, including the routes the scene spec declares.
func WithCycleCheck() Option {
	return func(s *Scene) { s.cycleCheck = true }
}

// WithRecorder records every pass and its events.
func WithRecorder(r Recorder) Option {
	return func(s *Scene) { s.recorder = r }
}

// WithPassGenerator sets the pass token generator. Default: UUIDv7Generator.
func WithPassGenerator(g PassTokenGenerator) Option {
	return func(s *Scene) { s.passGen = g }
}

// WithLogger sets the logger for the scene and its fields.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scene) { s.logger = l }
}

// WithClock sets the sequencer that stamps recorded events.
func WithClock(c Sequencer) Option {
	return func(s *Scene) { s.clock = c }
}

// WithMaxWritesPerPass bounds how many posted writes one Drain applies.
// Default: unlimited.
func WithMaxWritesPerPass(n int) Option {
	return func(s *Scene) { s.quota = NewWriteQuota(n) }
}

// WithConstructor adds or replaces the constructor for a field type.
func WithConstructor(typ string, c Constructor) Option {
	return func(s *Scene) { s.extra[typ] = c }
}

// Build creates the scene described by spec.
//
// Build order:
//  1. Create every node and its fields, in declaration order
//  2. Apply declared initial values as the owning node
//  3. Mark every node initialized (INITIALIZE_ONLY fields close)
//  4. Create the declared routes, each on behalf of its destination's node
//
// Nothing is recorded during Build; the first pass starts afterwards.
func Build(spec ir.SceneSpec, opts ...Option) (*Scene, error) {
	s := &Scene{
		spec:     spec,
		registry: NewRegistry(),
		extra:    make(map[string]Constructor),
		byName:   make(map[string]*Node),
		inbox:    newInbox(),
		quota:    NewWriteQuota(0),
		clock:    NewClock(),
		passGen:  UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.factory = NewFactory(s.registry)
	for typ, c := range s.extra {
		s.factory.Register(typ, c)
	}

	hash, err := ir.SceneHash(spec)
	if err != nil {
		return nil, err
	}
	s.hash = hash

	s.user = s.registry.Register(UserName)

	for _, ns := range spec.Nodes {
		if _, dup := s.byName[ns.Name]; dup {
			return nil, fmt.Errorf("duplicate node %q", ns.Name)
		}
		id := s.registry.Register(ns.Name)
		node, _ := s.registry.Node(id)
		for _, fs := range ns.Fields {
			if _, dup := node.byName[fs.Name]; dup {
				return nil, fmt.Errorf("duplicate field %s.%s", ns.Name, fs.Name)
			}
			f, err := s.newField(id, fs)
			if err != nil {
				return nil, fmt.Errorf("field %s.%s: %w", ns.Name, fs.Name, err)
			}
			node.add(f)
		}
		s.nodes = append(s.nodes, node)
		s.byName[ns.Name] = node
	}

	for i, ns := range spec.Nodes {
		node := s.nodes[i]
		for _, fs := range ns.Fields {
			if !fs.HasValue {
				continue
			}
			f, _ := node.Field(fs.Name)
			if err := s.setText(f, fs.Value, node.id); err != nil {
				return nil, fmt.Errorf("initial value of %s.%s: %w", ns.Name, fs.Name, err)
			}
		}
	}

	for _, node := range s.nodes {
		s.registry.MarkInitialized(node.id)
	}

	for _, r := range spec.Routes {
		to, ok := s.byName[r.To.Node]
		if !ok {
			return nil, NewUnknownFieldError(r.To.String())
		}
		if err := s.route(r.From.String(), r.To.String(), to.id, !r.NoEvent); err != nil {
			return nil, fmt.Errorf("route %s -> %s: %w", r.From, r.To, err)
		}
	}

	return s, nil
}

func (s *Scene) newField(owner field.OwnerID, fs ir.FieldSpec) (field.Field, error) {
	access := field.InputOutput
	if fs.Access != "" {
		a, err := field.ParseAccessType(fs.Access)
		if err != nil {
			return nil, err
		}
		access = a
	}
	opts := []field.Option{
		field.Named(fs.Name),
		field.OwnedBy(owner, s.registry),
		field.WithAccess(access),
		field.WithObserver(s),
		field.WithLogger(s.logger),
	}
	if fs.AutoUpdate {
		opts = append(opts, field.AutoUpdate())
	}
	return s.factory.New(fs.Type, fs.Compute, opts...)
}

// Name returns the scene name.
func (s *Scene) Name() string { return s.spec.Name }

// Hash returns the SceneHash of the spec the scene was built from.
func (s *Scene) Hash() string { return s.hash }

// Spec returns the spec the scene was built from.
func (s *Scene) Spec() ir.SceneSpec { return s.spec }

// Registry returns the owner registry.
func (s *Scene) Registry() *Registry { return s.registry }

// User returns the owner id of the scene's external caller.
func (s *Scene) User() field.OwnerID { return s.user }

// Nodes returns the live nodes in declaration order.
func (s *Scene) Nodes() []*Node {
	out := make([]*Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Node returns the node named name.
func (s *Scene) Node(name string) (*Node, bool) {
	n, ok := s.byName[name]
	return n, ok
}

// Field resolves a "Node.field" path.
func (s *Scene) Field(path string) (field.Field, error) {
	ref, err := ir.ParseFieldRef(path)
	if err != nil {
		return nil, NewUnknownFieldError(path)
	}
	n, ok := s.byName[ref.Node]
	if !ok {
		return nil, NewUnknownFieldError(path)
	}
	f, ok := n.Field(ref.Field)
	if !ok {
		return nil, NewUnknownFieldError(path)
	}
	return f, nil
}

// Caller resolves an entity name to an owner id: a node name, UserName, or
// "" for field.Internal.
func (s *Scene) Caller(name string) (field.OwnerID, error) {
	switch name {
	case "":
		return field.Internal, nil
	case UserName:
		return s.user, nil
	}
	if n, ok := s.byName[name]; ok {
		return n.id, nil
	}
	return field.Internal, &RuntimeError{
		Code:    ErrCodeUnknownNode,
		Message: fmt.Sprintf("no entity named %q", name),
	}
}

func (s *Scene) callerName(id field.OwnerID) string {
	if id == field.Internal {
		return ""
	}
	return s.registry.OwnerName(id)
}

// =============================================================================
// Writes and reads
// =============================================================================

// Set replaces the value at path with the value parsed from text. SFNode
// fields take a node name or NULL; MFNode fields take node names.
func (s *Scene) Set(path, text string, caller field.OwnerID) error {
	return s.Apply(Write{Op: OpSet, Path: path, Text: text, Caller: caller})
}

// Push appends one element to the sequence at path.
func (s *Scene) Push(path, text string, caller field.OwnerID) error {
	return s.Apply(Write{Op: OpPush, Path: path, Text: text, Caller: caller})
}

// Route routes from to to.
func (s *Scene) Route(from, to string, caller field.OwnerID) error {
	return s.Apply(Write{Op: OpRoute, Path: from, Target: to, Caller: caller})
}

// Unroute removes the route from from to to, if there is one.
func (s *Scene) Unroute(from, to string, caller field.OwnerID) error {
	return s.Apply(Write{Op: OpUnroute, Path: from, Target: to, Caller: caller})
}

// Touch notifies the routes of path without changing its value.
func (s *Scene) Touch(path string, caller field.OwnerID) error {
	return s.Apply(Write{Op: OpTouch, Path: path, Caller: caller})
}

// Get returns the up-to-date value at path as text.
func (s *Scene) Get(path string, caller field.OwnerID) (string, error) {
	f, err := s.Field(path)
	if err != nil {
		return "", err
	}
	return f.ValueAsString(caller)
}

// Apply performs one write. Inside a pass the write, and its failure if it
// fails, are recorded before and after the field events it causes.
func (s *Scene) Apply(w Write) error {
	ev := ir.Event{
		Op:     string(w.Op),
		Field:  w.Path,
		Value:  w.Text,
		Caller: s.callerName(w.Caller),
	}
	if w.Op == OpRoute || w.Op == OpUnroute {
		ev.Value = w.Target
	}

	ev.Kind = ir.EventWrite
	s.record(ev)

	err := s.apply(w)
	if err != nil {
		ev.Kind = ir.EventError
		ev.Value = err.Error()
		s.record(ev)
	}
	return err
}

func (s *Scene) apply(w Write) error {
	switch w.Op {
	case OpSet:
		f, err := s.Field(w.Path)
		if err != nil {
			return err
		}
		return s.setText(f, w.Text, w.Caller)
	case OpPush:
		f, err := s.Field(w.Path)
		if err != nil {
			return err
		}
		return s.pushText(f, w.Text, w.Caller)
	case OpRoute:
		return s.route(w.Path, w.Target, w.Caller, true)
	case OpUnroute:
		src, err := s.Field(w.Path)
		if err != nil {
			return err
		}
		dst, err := s.Field(w.Target)
		if err != nil {
			return err
		}
		src.Unroute(dst)
		return nil
	case OpTouch:
		f, err := s.Field(w.Path)
		if err != nil {
			return err
		}
		if err := f.CheckWrite(w.Caller); err != nil {
			return err
		}
		f.Touch()
		return nil
	}
	return &RuntimeError{
		Code:    ErrCodeUnsupportedOp,
		Message: fmt.Sprintf("unknown write operation %q", w.Op),
		Field:   w.Path,
	}
}

func (s *Scene) route(from, to string, caller field.OwnerID, event bool) error {
	src, err := s.Field(from)
	if err != nil {
		return err
	}
	dst, err := s.Field(to)
	if err != nil {
		return err
	}
	if s.cycleCheck && !src.RoutesTo(dst) && wouldCycle(src, dst) {
		return NewCycleError(from, to)
	}
	if event {
		return src.Route(dst, caller)
	}
	return src.RouteNoEvent(dst, caller)
}

func (s *Scene) setText(f field.Field, text string, caller field.OwnerID) error {
	switch rf := f.(type) {
	case *field.RefField[*Node]:
		t := strings.TrimSpace(text)
		if t == "" || t == "NULL" {
			return rf.SetValue(nil, caller)
		}
		n, err := s.nodeRef(t)
		if err != nil {
			return err
		}
		return rf.SetValue(n, caller)
	case *field.RefMField[*Node]:
		names := strings.Fields(strings.Trim(strings.TrimSpace(text), "[]"))
		nodes := make([]*Node, 0, len(names))
		for _, name := range names {
			n, err := s.nodeRef(name)
			if err != nil {
				return err
			}
			nodes = append(nodes, n)
		}
		return rf.SetValues(nodes, caller)
	}
	return f.SetValueFromString(text, caller)
}

type elementAdder interface {
	AddElementFromString(s string, caller field.OwnerID) error
}

func (s *Scene) pushText(f field.Field, text string, caller field.OwnerID) error {
	switch mf := f.(type) {
	case *field.RefMField[*Node]:
		n, err := s.nodeRef(strings.TrimSpace(text))
		if err != nil {
			return err
		}
		return mf.PushBack(n, caller)
	case elementAdder:
		return mf.AddElementFromString(text, caller)
	}
	return &RuntimeError{
		Code:    ErrCodeUnsupportedOp,
		Message: fmt.Sprintf("cannot push onto a %s field", f.Type()),
		Field:   f.FullName(),
	}
}

func (s *Scene) nodeRef(name string) (*Node, error) {
	n, ok := s.byName[name]
	if !ok {
		return nil, &RuntimeError{
			Code:    ErrCodeUnknownNode,
			Message: fmt.Sprintf("no node named %q", name),
		}
	}
	return n, nil
}

// Teardown removes a node: its fields are closed (routes severed,
// references released) and its name no longer resolves.
func (s *Scene) Teardown(name string) error {
	n, ok := s.byName[name]
	if !ok {
		return &RuntimeError{
			Code:    ErrCodeUnknownNode,
			Message: fmt.Sprintf("no node named %q", name),
		}
	}
	s.registry.Teardown(n.id)
	delete(s.byName, name)
	for i, m := range s.nodes {
		if m == n {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			break
		}
	}
	return nil
}

// Snapshot reads every field of every node, in declaration order, with
// trusted access. A field that cannot be brought up to date is reported as
// "!" followed by its error code.
func (s *Scene) Snapshot() (ir.Snapshot, error) {
	var entries []ir.SnapshotEntry
	for _, n := range s.nodes {
		for _, f := range n.fields {
			v, err := f.ValueAsString(field.Internal)
			if err != nil {
				v = "!" + ErrorCode(err)
			}
			entries = append(entries, ir.SnapshotEntry{Field: n.name + "." + f.Name(), Value: v})
		}
	}
	hash, err := ir.SnapshotHash(s.spec.Name, entries)
	if err != nil {
		return ir.Snapshot{}, err
	}
	return ir.Snapshot{Scene: s.spec.Name, Hash: hash, Entries: entries}, nil
}

// =============================================================================
// Passes and recording
// =============================================================================

// BeginPass opens a pass. Writes and field events until EndPass are stamped
// with its token and a seq, and sent to the recorder.
func (s *Scene) BeginPass(ctx context.Context) (ir.Pass, error) {
	if s.pass != nil {
		return ir.Pass{}, ErrPassActive
	}
	p := ir.Pass{
		Token:      s.passGen.Generate(),
		Scene:      s.spec.Name,
		SceneHash:  s.hash,
		StartedSeq: s.clock.Current(),
	}
	if s.recorder != nil {
		if err := s.recorder.WritePass(ctx, p); err != nil {
			return ir.Pass{}, fmt.Errorf("recording pass %s: %w", p.Token, err)
		}
	}
	s.pass = &p
	s.passCtx = ctx
	s.quota.Reset()

	s.logger.Info("pass started", "pass", p.Token, "scene", p.Scene)
	return p, nil
}

// EndPass closes the current pass, if any.
func (s *Scene) EndPass() {
	if s.pass == nil {
		return
	}
	s.logger.Info("pass finished",
		"pass", s.pass.Token,
		"events", s.clock.Current()-s.pass.StartedSeq,
	)
	s.pass = nil
	s.passCtx = nil
}

// Pass returns the open pass.
func (s *Scene) Pass() (ir.Pass, bool) {
	if s.pass == nil {
		return ir.Pass{}, false
	}
	return *s.pass, true
}

// FieldEvent implements field.Observer.
func (s *Scene) FieldEvent(kind field.EventKind, f field.Field, source field.Field) {
	if s.pass == nil {
		return
	}
	ev := ir.Event{Kind: kind.String(), Field: f.FullName()}
	if source != nil {
		ev.Source = source.FullName()
	}
	if kind == field.EventSet || kind == field.EventRecompute {
		ev.Value, _ = f.ValueAsString(field.Internal)
	}
	s.record(ev)
}

func (s *Scene) record(ev ir.Event) {
	if s.pass == nil {
		return
	}
	ev.Seq = s.clock.Next()
	ev.PassToken = s.pass.Token
	if s.recorder == nil {
		return
	}
	if err := s.recorder.WriteEvent(s.passCtx, ev); err != nil {
		s.logger.Warn("recording event failed",
			"pass", ev.PassToken,
			"seq", ev.Seq,
			"kind", ev.Kind,
			"field", ev.Field,
			"error", err,
		)
	}
}
