package field

import (
	"fmt"

	"github.com/roach88/fieldnet/internal/value"
)

// ValueSource is implemented by fields that expose a single value of type T.
type ValueSource[T any] interface {
	Field
	Value(caller OwnerID) (T, error)
}

// ValueOf reads a single value of type T from f. It is the accessor custom
// recompute functions use on their incoming routes.
func ValueOf[T any](f Field, caller OwnerID) (T, error) {
	src, ok := f.(ValueSource[T])
	if !ok {
		var zero T
		return zero, &Error{
			Code:     ErrCodeInvalidRouteType,
			Message:  fmt.Sprintf("%s does not hold a %T value", f.FullName(), zero),
			Field:    f.FullName(),
			Expected: fmt.Sprintf("%T", zero),
			Actual:   string(f.Type()),
		}
	}
	return src.Value(caller)
}

// SField holds exactly one value of type T.
type SField[T any] struct {
	Base
	codec value.Codec[T]
	value T

	compute  func(*SField[T]) (T, error)
	onNew    func(T)
	onChange func(old, v T)
}

// WithUpdate replaces the pass-through recompute of an SField with fn.
func WithUpdate[T any](fn func(*SField[T]) (T, error)) Option {
	return func(b *Base) { b.hooks.update = fn }
}

// OnNewValue calls fn after every value the field stores, direct or derived.
func OnNewValue[T any](fn func(v T)) Option {
	return func(b *Base) { b.hooks.onNew = fn }
}

// OnValueChange calls fn after a stored value differs from the previous one.
func OnValueChange[T any](fn func(old, v T)) Option {
	return func(b *Base) { b.hooks.onChange = fn }
}

// NewSField creates a single-value field of the codec's type.
func NewSField[T any](codec value.Codec[T], opts ...Option) *SField[T] {
	f := &SField[T]{codec: codec}
	f.init(f, Type("SF"+codec.TypeName()), opts)
	if h := f.hooks.update; h != nil {
		f.compute = mustHook[func(*SField[T]) (T, error)](h, "WithUpdate", f.typ)
	}
	if h := f.hooks.onNew; h != nil {
		f.onNew = mustHook[func(T)](h, "OnNewValue", f.typ)
	}
	if h := f.hooks.onChange; h != nil {
		f.onChange = mustHook[func(T, T)](h, "OnValueChange", f.typ)
	}
	return f
}

func mustHook[H any](h any, option string, t Type) H {
	fn, ok := h.(H)
	if !ok {
		panic(fmt.Sprintf("field: %s hook %T does not fit a %s field", option, h, t))
	}
	return fn
}

// Type returns "SF" + the codec type name.
func (f *SField[T]) Type() Type { return f.typ }

// Kind returns KindScalar.
func (f *SField[T]) Kind() Kind { return KindScalar }

// Codec returns the value codec.
func (f *SField[T]) Codec() value.Codec[T] { return f.codec }

// Value returns the up-to-date value.
func (f *SField[T]) Value(caller OwnerID) (T, error) {
	var zero T
	if err := f.CheckRead(caller); err != nil {
		return zero, err
	}
	if err := f.UpToDate(); err != nil {
		return zero, err
	}
	return f.value, nil
}

// SetValue stores v, discards any pending event, and notifies the outgoing
// routes.
func (f *SField[T]) SetValue(v T, caller OwnerID) error {
	if err := f.CheckWrite(caller); err != nil {
		return err
	}
	f.store(v)
	f.written()
	return nil
}

func (f *SField[T]) store(v T) {
	old := f.value
	f.value = v
	if f.onNew != nil {
		f.onNew(v)
	}
	if f.onChange != nil && !f.codec.Equal(old, v) {
		f.onChange(old, v)
	}
}

func (f *SField[T]) update() error {
	if f.compute != nil {
		v, err := f.compute(f)
		if err != nil {
			return err
		}
		f.store(v)
		return nil
	}
	src := f.eventSource()
	if src == nil {
		return nil
	}
	s, ok := src.(ValueSource[T])
	if !ok {
		return f.sourceError(src)
	}
	v, err := s.Value(f.owner)
	if err != nil {
		return err
	}
	f.store(v)
	return nil
}

// ValueAsString formats the up-to-date value with the codec grammar.
func (f *SField[T]) ValueAsString(caller OwnerID) (string, error) {
	v, err := f.Value(caller)
	if err != nil {
		return "", err
	}
	return f.codec.Format(v), nil
}

// SetValueFromString parses a single token and stores it.
func (f *SField[T]) SetValueFromString(s string, caller OwnerID) error {
	if err := f.CheckWrite(caller); err != nil {
		return err
	}
	v, err := f.codec.Parse(s)
	if err != nil {
		return parseError(f.FullName(), err)
	}
	return f.SetValue(v, caller)
}

// ValueTypeSize returns the raw size of one value, or 0 for types without a
// fixed raw layout.
func (f *SField[T]) ValueTypeSize() int { return f.codec.Size() }

// SetValueFromRaw stores the single value encoded in buf. count must be 1
// and elemSize must match the value type size.
func (f *SField[T]) SetValueFromRaw(buf []byte, count, elemSize int, caller OwnerID) error {
	size := f.codec.Size()
	switch {
	case size == 0:
		return rawSizeError(f.FullName(), "%s has no raw representation", f.typ)
	case elemSize != size:
		return rawSizeError(f.FullName(), "element size %d, expecting %d", elemSize, size)
	case count != 1:
		return rawSizeError(f.FullName(), "count %d, expecting 1", count)
	case len(buf) < size:
		return rawSizeError(f.FullName(), "buffer of %d bytes, expecting %d", len(buf), size)
	}
	return f.SetValue(f.codec.Decode(buf), caller)
}

// ValueAsRaw writes the up-to-date value into buf and returns the number of
// bytes written.
func (f *SField[T]) ValueAsRaw(buf []byte, caller OwnerID) (int, error) {
	size := f.codec.Size()
	if size == 0 {
		return 0, rawSizeError(f.FullName(), "%s has no raw representation", f.typ)
	}
	if len(buf) < size {
		return 0, rawSizeError(f.FullName(), "buffer of %d bytes, expecting %d", len(buf), size)
	}
	v, err := f.Value(caller)
	if err != nil {
		return 0, err
	}
	f.codec.Encode(buf, v)
	return size, nil
}
