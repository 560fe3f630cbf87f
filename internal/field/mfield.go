package field

import (
	"errors"
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/fieldnet/internal/value"
)

// SequenceSource is implemented by fields that expose a sequence of T.
type SequenceSource[T any] interface {
	Field
	Values(caller OwnerID) ([]T, error)
}

// ValuesOf reads a sequence of T from f.
func ValuesOf[T any](f Field, caller OwnerID) ([]T, error) {
	src, ok := f.(SequenceSource[T])
	if !ok {
		var zero T
		return nil, &Error{
			Code:     ErrCodeInvalidRouteType,
			Message:  fmt.Sprintf("%s does not hold a sequence of %T", f.FullName(), zero),
			Field:    f.FullName(),
			Expected: fmt.Sprintf("[]%T", zero),
			Actual:   string(f.Type()),
		}
	}
	return src.Values(caller)
}

// MField holds an ordered sequence of T. Every mutation brings the field up
// to date first and sends exactly one event to the outgoing routes, however
// many elements it touched.
type MField[T any] struct {
	Base
	codec  value.Codec[T]
	values []T

	compute  func(*MField[T]) ([]T, error)
	onNew    func([]T)
	onChange func(old, vs []T)
}

// WithSequenceUpdate replaces the pass-through recompute of an MField.
func WithSequenceUpdate[T any](fn func(*MField[T]) ([]T, error)) Option {
	return func(b *Base) { b.hooks.update = fn }
}

// NewMField creates a sequence field of the codec's type. OnNewValue and
// OnValueChange hooks take the whole sequence.
func NewMField[T any](codec value.Codec[T], opts ...Option) *MField[T] {
	f := &MField[T]{codec: codec, values: []T{}}
	f.init(f, Type("MF"+codec.TypeName()), opts)
	if h := f.hooks.update; h != nil {
		f.compute = mustHook[func(*MField[T]) ([]T, error)](h, "WithSequenceUpdate", f.typ)
	}
	if h := f.hooks.onNew; h != nil {
		f.onNew = mustHook[func([]T)](h, "OnNewValue", f.typ)
	}
	if h := f.hooks.onChange; h != nil {
		f.onChange = mustHook[func([]T, []T)](h, "OnValueChange", f.typ)
	}
	return f
}

// Type returns "MF" + the codec type name.
func (f *MField[T]) Type() Type { return f.typ }

// Kind returns KindSequence.
func (f *MField[T]) Kind() Kind { return KindSequence }

// Codec returns the element codec.
func (f *MField[T]) Codec() value.Codec[T] { return f.codec }

// =============================================================================
// Reads
// =============================================================================

func (f *MField[T]) read(caller OwnerID) error {
	if err := f.CheckRead(caller); err != nil {
		return err
	}
	return f.UpToDate()
}

// Values returns a copy of the up-to-date sequence.
func (f *MField[T]) Values(caller OwnerID) ([]T, error) {
	if err := f.read(caller); err != nil {
		return nil, err
	}
	return slices.Clone(f.values), nil
}

// Size returns the number of elements.
func (f *MField[T]) Size(caller OwnerID) (int, error) {
	if err := f.read(caller); err != nil {
		return 0, err
	}
	return len(f.values), nil
}

// Empty reports whether the sequence has no elements.
func (f *MField[T]) Empty(caller OwnerID) (bool, error) {
	n, err := f.Size(caller)
	return n == 0, err
}

// Get returns element i.
func (f *MField[T]) Get(i int, caller OwnerID) (T, error) {
	var zero T
	if err := f.read(caller); err != nil {
		return zero, err
	}
	if i < 0 || i >= len(f.values) {
		return zero, indexError(f.FullName(), i, len(f.values))
	}
	return f.values[i], nil
}

// Front returns the first element.
func (f *MField[T]) Front(caller OwnerID) (T, error) {
	return f.Get(0, caller)
}

// Back returns the last element.
func (f *MField[T]) Back(caller OwnerID) (T, error) {
	var zero T
	if err := f.read(caller); err != nil {
		return zero, err
	}
	if len(f.values) == 0 {
		return zero, indexError(f.FullName(), 0, 0)
	}
	return f.values[len(f.values)-1], nil
}

// All returns an iterator over a snapshot of the up-to-date sequence.
func (f *MField[T]) All(caller OwnerID) (iter.Seq2[int, T], error) {
	vs, err := f.Values(caller)
	if err != nil {
		return nil, err
	}
	return slices.All(vs), nil
}

// =============================================================================
// Mutations
// =============================================================================

// mutate runs fn against the up-to-date sequence. fn returns the new
// sequence or an error; on error nothing changes and nobody is notified.
func (f *MField[T]) mutate(caller OwnerID, fn func(vs []T) ([]T, error)) error {
	if err := f.CheckWrite(caller); err != nil {
		return err
	}
	if err := f.UpToDate(); err != nil {
		return err
	}
	old := f.values
	next, err := fn(slices.Clone(old))
	if err != nil {
		return err
	}
	f.store(old, next)
	f.written()
	return nil
}

func (f *MField[T]) store(old, next []T) {
	if next == nil {
		next = []T{}
	}
	f.values = next
	if f.onNew != nil {
		f.onNew(slices.Clone(next))
	}
	if f.onChange != nil && !value.EqualSequence(f.codec, old, next) {
		f.onChange(old, slices.Clone(next))
	}
}

// SetValues replaces the whole sequence.
func (f *MField[T]) SetValues(vs []T, caller OwnerID) error {
	return f.mutate(caller, func([]T) ([]T, error) {
		return slices.Clone(vs), nil
	})
}

// Set replaces element i.
func (f *MField[T]) Set(i int, v T, caller OwnerID) error {
	return f.mutate(caller, func(vs []T) ([]T, error) {
		if i < 0 || i >= len(vs) {
			return nil, indexError(f.FullName(), i, len(vs))
		}
		vs[i] = v
		return vs, nil
	})
}

// PushBack appends v.
func (f *MField[T]) PushBack(v T, caller OwnerID) error {
	return f.mutate(caller, func(vs []T) ([]T, error) {
		return append(vs, v), nil
	})
}

// PopBack removes the last element.
func (f *MField[T]) PopBack(caller OwnerID) error {
	return f.mutate(caller, func(vs []T) ([]T, error) {
		if len(vs) == 0 {
			return nil, indexError(f.FullName(), 0, 0)
		}
		return vs[:len(vs)-1], nil
	})
}

// Clear removes every element.
func (f *MField[T]) Clear(caller OwnerID) error {
	return f.mutate(caller, func([]T) ([]T, error) {
		return []T{}, nil
	})
}

// Insert inserts vs before position i. i may equal the size.
func (f *MField[T]) Insert(i int, caller OwnerID, vs ...T) error {
	return f.mutate(caller, func(cur []T) ([]T, error) {
		if i < 0 || i > len(cur) {
			return nil, indexError(f.FullName(), i, len(cur))
		}
		return slices.Insert(cur, i, vs...), nil
	})
}

// Erase removes element i.
func (f *MField[T]) Erase(i int, caller OwnerID) error {
	return f.EraseRange(i, i+1, caller)
}

// EraseRange removes elements [from, to).
func (f *MField[T]) EraseRange(from, to int, caller OwnerID) error {
	return f.mutate(caller, func(vs []T) ([]T, error) {
		if from < 0 || from >= len(vs) {
			return nil, indexError(f.FullName(), from, len(vs))
		}
		if to < from || to > len(vs) {
			return nil, indexError(f.FullName(), to, len(vs))
		}
		return slices.Delete(vs, from, to), nil
	})
}

// EraseValue removes the first element equal to v. It reports whether an
// element was removed; nothing is notified when none was.
func (f *MField[T]) EraseValue(v T, caller OwnerID) (bool, error) {
	found := false
	err := f.mutate(caller, func(vs []T) ([]T, error) {
		i := slices.IndexFunc(vs, func(e T) bool { return f.codec.Equal(e, v) })
		if i < 0 {
			return nil, errNoElement
		}
		found = true
		return slices.Delete(vs, i, i+1), nil
	})
	if errors.Is(err, errNoElement) {
		return false, nil
	}
	return found, err
}

// errNoElement aborts an EraseValue mutation that found nothing to erase.
var errNoElement = errors.New("no such element")

// Resize truncates the sequence or extends it with fill.
func (f *MField[T]) Resize(n int, fill T, caller OwnerID) error {
	return f.mutate(caller, func(vs []T) ([]T, error) {
		if n < 0 {
			return nil, indexError(f.FullName(), n, len(vs))
		}
		if n <= len(vs) {
			return vs[:n], nil
		}
		for len(vs) < n {
			vs = append(vs, fill)
		}
		return vs, nil
	})
}

// Swap exchanges the sequence with vs and returns the previous sequence.
func (f *MField[T]) Swap(vs []T, caller OwnerID) ([]T, error) {
	var prev []T
	err := f.mutate(caller, func(cur []T) ([]T, error) {
		prev = cur
		return slices.Clone(vs), nil
	})
	return prev, err
}

func (f *MField[T]) update() error {
	if f.compute != nil {
		vs, err := f.compute(f)
		if err != nil {
			return err
		}
		f.store(f.values, slices.Clone(vs))
		return nil
	}
	src := f.eventSource()
	if src == nil {
		return nil
	}
	s, ok := src.(SequenceSource[T])
	if !ok {
		return f.sourceError(src)
	}
	vs, err := s.Values(f.owner)
	if err != nil {
		return err
	}
	f.store(f.values, vs)
	return nil
}

// =============================================================================
// Text and raw bridges
// =============================================================================

// ValueAsString formats the sequence separated by single spaces.
func (f *MField[T]) ValueAsString(caller OwnerID) (string, error) {
	return f.ValueAsStringSep(" ", caller)
}

// ValueAsStringSep formats the sequence separated by sep.
func (f *MField[T]) ValueAsStringSep(sep string, caller OwnerID) (string, error) {
	if err := f.read(caller); err != nil {
		return "", err
	}
	return value.FormatSequence(f.codec, f.values, sep), nil
}

// SetValueFromString parses a separator-delimited sequence and stores it.
func (f *MField[T]) SetValueFromString(s string, caller OwnerID) error {
	if err := f.CheckWrite(caller); err != nil {
		return err
	}
	vs, err := value.ParseSequence(f.codec, s)
	if err != nil {
		return parseError(f.FullName(), err)
	}
	return f.SetValues(vs, caller)
}

// ElementAsString formats element i.
func (f *MField[T]) ElementAsString(i int, caller OwnerID) (string, error) {
	v, err := f.Get(i, caller)
	if err != nil {
		return "", err
	}
	return f.codec.Format(v), nil
}

// AddElementFromString parses a single element and appends it.
func (f *MField[T]) AddElementFromString(s string, caller OwnerID) error {
	if err := f.CheckWrite(caller); err != nil {
		return err
	}
	v, err := f.codec.Parse(s)
	if err != nil {
		return parseError(f.FullName(), err)
	}
	return f.PushBack(v, caller)
}

// ValueTypeSize returns the raw size of one element.
func (f *MField[T]) ValueTypeSize() int { return f.codec.Size() }

// SetValueFromRaw replaces the sequence with count elements of elemSize
// bytes each, read from buf.
func (f *MField[T]) SetValueFromRaw(buf []byte, count, elemSize int, caller OwnerID) error {
	size := f.codec.Size()
	switch {
	case size == 0:
		return rawSizeError(f.FullName(), "%s has no raw representation", f.typ)
	case elemSize != size:
		return rawSizeError(f.FullName(), "element size %d, expecting %d", elemSize, size)
	case count < 0 || count > len(buf)/size:
		return rawSizeError(f.FullName(), "buffer of %d bytes holds fewer than %d elements", len(buf), count)
	}
	vs := make([]T, count)
	for i := range vs {
		vs[i] = f.codec.Decode(buf[i*size:])
	}
	return f.SetValues(vs, caller)
}

// ValueAsRaw writes the up-to-date sequence into buf and returns the number
// of bytes written.
func (f *MField[T]) ValueAsRaw(buf []byte, caller OwnerID) (int, error) {
	size := f.codec.Size()
	if size == 0 {
		return 0, rawSizeError(f.FullName(), "%s has no raw representation", f.typ)
	}
	if err := f.read(caller); err != nil {
		return 0, err
	}
	n := size * len(f.values)
	if len(buf) < n {
		return 0, rawSizeError(f.FullName(), "buffer of %d bytes, expecting %d", len(buf), n)
	}
	for i, v := range f.values {
		f.codec.Encode(buf[i*size:], v)
	}
	return n, nil
}
