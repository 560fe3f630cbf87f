package field

import (
	"fmt"
	"reflect"
	"slices"
)

// RefCounter is the external reference-counting runtime. Owned reference
// fields acquire every value they store and release it when it is replaced.
type RefCounter[R any] interface {
	Acquire(r R)
	Release(r R)
}

// RefHooks are the ownership-transfer extension points of a reference field.
// Validate runs before anything changes; a non-nil error rejects the value
// and leaves the field untouched.
type RefHooks[R any] struct {
	Validate func(r R) error
	OnAdd    func(r R)
	OnRemove func(r R)
}

// WithRefHooks attaches ownership hooks to a RefField or RefMField.
func WithRefHooks[R any](h RefHooks[R]) Option {
	return func(b *Base) { b.hooks.ref = h }
}

// Implements returns a validator accepting only values whose dynamic type
// implements or is S. Nil values are always accepted.
func Implements[S any, R comparable]() func(R) error {
	want := reflect.TypeFor[S]()
	return func(r R) error {
		var zero R
		if r == zero {
			return nil
		}
		if _, ok := any(r).(S); ok {
			return nil
		}
		return &Error{
			Code:     ErrCodeInvalidValueType,
			Message:  fmt.Sprintf("value of type %T is not a %s", r, want),
			Expected: want.String(),
			Actual:   fmt.Sprintf("%T", r),
		}
	}
}

// refCore is the add/remove bookkeeping shared by RefField and RefMField.
type refCore[R comparable] struct {
	counter RefCounter[R]
	ref     RefHooks[R]
}

func (c *refCore[R]) setup(b *Base) {
	if h := b.hooks.ref; h != nil {
		c.ref = mustHook[RefHooks[R]](h, "WithRefHooks", b.typ)
	}
}

func (c *refCore[R]) validate(b *Base, r R) error {
	var zero R
	if r == zero || c.ref.Validate == nil {
		return nil
	}
	if err := c.ref.Validate(r); err != nil {
		var fe *Error
		if e, ok := err.(*Error); ok {
			fe = e
		} else {
			fe = &Error{Code: ErrCodeInvalidValueType, Message: err.Error(), Err: err}
		}
		fe.Field = b.FullName()
		return fe
	}
	return nil
}

func (c *refCore[R]) remove(r R) {
	var zero R
	if r == zero {
		return
	}
	if c.ref.OnRemove != nil {
		c.ref.OnRemove(r)
	}
	if c.counter != nil {
		c.counter.Release(r)
	}
}

func (c *refCore[R]) add(r R) {
	var zero R
	if r == zero {
		return
	}
	if c.counter != nil {
		c.counter.Acquire(r)
	}
	if c.ref.OnAdd != nil {
		c.ref.OnAdd(r)
	}
}

// =============================================================================
// RefField
// =============================================================================

// RefField holds one reference-counted value. Replacing a held value calls
// OnRemove(old) and releases it before acquiring the new value and calling
// OnAdd(new), whether the value arrived by direct write or by recompute.
type RefField[R comparable] struct {
	Base
	refCore[R]
	value R
}

// NewRefField creates an owned reference field of type t ("SFNode").
// counter may be nil when the runtime does not count references.
func NewRefField[R comparable](t Type, counter RefCounter[R], opts ...Option) *RefField[R] {
	f := &RefField[R]{}
	f.counter = counter
	f.init(f, t, opts)
	f.setup(&f.Base)
	return f
}

// Type returns the declared type name.
func (f *RefField[R]) Type() Type { return f.typ }

// Kind returns KindOwnedRef.
func (f *RefField[R]) Kind() Kind { return KindOwnedRef }

// Value returns the up-to-date reference.
func (f *RefField[R]) Value(caller OwnerID) (R, error) {
	var zero R
	if err := f.CheckRead(caller); err != nil {
		return zero, err
	}
	if err := f.UpToDate(); err != nil {
		return zero, err
	}
	return f.value, nil
}

// SetValue validates r, swaps it in, and notifies the outgoing routes.
func (f *RefField[R]) SetValue(r R, caller OwnerID) error {
	if err := f.CheckWrite(caller); err != nil {
		return err
	}
	if err := f.swap(r); err != nil {
		return err
	}
	f.written()
	return nil
}

func (f *RefField[R]) swap(r R) error {
	if r == f.value {
		return nil
	}
	if err := f.validate(&f.Base, r); err != nil {
		return err
	}
	old := f.value
	f.remove(old)
	f.value = r
	f.add(r)
	return nil
}

func (f *RefField[R]) update() error {
	src := f.eventSource()
	if src == nil {
		return nil
	}
	s, ok := src.(ValueSource[R])
	if !ok {
		return f.sourceError(src)
	}
	r, err := s.Value(f.owner)
	if err != nil {
		return err
	}
	return f.swap(r)
}

func (f *RefField[R]) release() {
	var zero R
	f.remove(f.value)
	f.value = zero
}

// ValueAsString formats the reference with %v, or "NULL" when empty.
func (f *RefField[R]) ValueAsString(caller OwnerID) (string, error) {
	r, err := f.Value(caller)
	if err != nil {
		return "", err
	}
	var zero R
	if r == zero {
		return "NULL", nil
	}
	return fmt.Sprintf("%v", r), nil
}

// SetValueFromString accepts only "NULL", which clears the field. References
// have no text form.
func (f *RefField[R]) SetValueFromString(s string, caller OwnerID) error {
	if s != "NULL" {
		return parseError(f.FullName(), fmt.Errorf("%s values cannot be parsed from text", f.typ))
	}
	var zero R
	return f.SetValue(zero, caller)
}

// =============================================================================
// RefMField
// =============================================================================

// RefMField holds an ordered sequence of reference-counted values, with the
// ownership hooks applied per element.
type RefMField[R comparable] struct {
	Base
	refCore[R]
	values []R
}

// NewRefMField creates an owned reference sequence field of type t ("MFNode").
func NewRefMField[R comparable](t Type, counter RefCounter[R], opts ...Option) *RefMField[R] {
	f := &RefMField[R]{values: []R{}}
	f.counter = counter
	f.init(f, t, opts)
	f.setup(&f.Base)
	return f
}

// Type returns the declared type name.
func (f *RefMField[R]) Type() Type { return f.typ }

// Kind returns KindOwnedRefSequence.
func (f *RefMField[R]) Kind() Kind { return KindOwnedRefSequence }

// Values returns a copy of the up-to-date sequence.
func (f *RefMField[R]) Values(caller OwnerID) ([]R, error) {
	if err := f.CheckRead(caller); err != nil {
		return nil, err
	}
	if err := f.UpToDate(); err != nil {
		return nil, err
	}
	return slices.Clone(f.values), nil
}

// Size returns the number of held references.
func (f *RefMField[R]) Size(caller OwnerID) (int, error) {
	vs, err := f.Values(caller)
	return len(vs), err
}

// Get returns element i.
func (f *RefMField[R]) Get(i int, caller OwnerID) (R, error) {
	var zero R
	vs, err := f.Values(caller)
	if err != nil {
		return zero, err
	}
	if i < 0 || i >= len(vs) {
		return zero, indexError(f.FullName(), i, len(vs))
	}
	return vs[i], nil
}

// SetValues replaces the whole sequence. Every new element is validated
// before any hook runs.
func (f *RefMField[R]) SetValues(rs []R, caller OwnerID) error {
	return f.mutate(caller, func([]R) ([]R, error) { return slices.Clone(rs), nil })
}

// PushBack appends r.
func (f *RefMField[R]) PushBack(r R, caller OwnerID) error {
	return f.mutate(caller, func(cur []R) ([]R, error) { return append(cur, r), nil })
}

// Erase removes element i.
func (f *RefMField[R]) Erase(i int, caller OwnerID) error {
	return f.mutate(caller, func(cur []R) ([]R, error) {
		if i < 0 || i >= len(cur) {
			return nil, indexError(f.FullName(), i, len(cur))
		}
		return slices.Delete(cur, i, i+1), nil
	})
}

// Clear removes every element.
func (f *RefMField[R]) Clear(caller OwnerID) error {
	return f.mutate(caller, func([]R) ([]R, error) { return []R{}, nil })
}

func (f *RefMField[R]) mutate(caller OwnerID, fn func([]R) ([]R, error)) error {
	if err := f.CheckWrite(caller); err != nil {
		return err
	}
	if err := f.UpToDate(); err != nil {
		return err
	}
	next, err := fn(slices.Clone(f.values))
	if err != nil {
		return err
	}
	if err := f.replace(next); err != nil {
		return err
	}
	f.written()
	return nil
}

// replace validates every element of next, then removes the elements that
// are leaving and adds the ones that are arriving. Elements present before
// and after keep their reference and see no hooks.
func (f *RefMField[R]) replace(next []R) error {
	for _, r := range next {
		if err := f.validate(&f.Base, r); err != nil {
			return err
		}
	}
	if next == nil {
		next = []R{}
	}
	kept := make(map[R]int, len(next))
	for _, r := range next {
		kept[r]++
	}
	var leaving []R
	for _, r := range f.values {
		if kept[r] > 0 {
			kept[r]--
			continue
		}
		leaving = append(leaving, r)
	}
	arriving := make(map[R]int, len(f.values))
	for _, r := range f.values {
		arriving[r]--
	}
	for _, r := range leaving {
		arriving[r]++
		f.remove(r)
	}
	f.values = next
	for _, r := range next {
		if arriving[r] < 0 {
			arriving[r]++
			continue
		}
		f.add(r)
	}
	return nil
}

func (f *RefMField[R]) update() error {
	src := f.eventSource()
	if src == nil {
		return nil
	}
	s, ok := src.(SequenceSource[R])
	if !ok {
		return f.sourceError(src)
	}
	rs, err := s.Values(f.owner)
	if err != nil {
		return err
	}
	return f.replace(rs)
}

func (f *RefMField[R]) release() {
	for _, r := range f.values {
		f.remove(r)
	}
	f.values = []R{}
}

// ValueAsString formats each reference with %v.
func (f *RefMField[R]) ValueAsString(caller OwnerID) (string, error) {
	vs, err := f.Values(caller)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(vs))
	for i, r := range vs {
		parts[i] = fmt.Sprintf("%v", r)
	}
	return fmt.Sprint(parts), nil
}

// SetValueFromString accepts only the empty sequence "[]", which clears the
// field.
func (f *RefMField[R]) SetValueFromString(s string, caller OwnerID) error {
	if s != "[]" && s != "" {
		return parseError(f.FullName(), fmt.Errorf("%s values cannot be parsed from text", f.typ))
	}
	return f.Clear(caller)
}
