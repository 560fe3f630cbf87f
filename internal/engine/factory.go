package engine

import (
	"fmt"
	"slices"
	"sort"

	"github.com/roach88/fieldnet/internal/field"
	"github.com/roach88/fieldnet/internal/value"
)

// Constructor creates a field of one type. compute names a built-in
// recompute function, or is empty for a pass-through field.
type Constructor func(compute string, opts ...field.Option) (field.Field, error)

// Factory maps field type names to constructors.
type Factory struct {
	ctors map[string]Constructor
}

// NewFactory creates a factory for every built-in type. Node reference
// fields count their references with counter.
func NewFactory(counter field.RefCounter[*Node]) *Factory {
	f := &Factory{ctors: make(map[string]Constructor)}

	f.Register("SFBool", scalar(value.Bool, boolComputes()))
	f.Register("SFInt32", scalar(value.Int32, int32Computes()))
	f.Register("SFFloat", scalar(value.Float, numericComputes[float32]("SFFloat", "MFFloat")))
	f.Register("SFDouble", scalar(value.Double, numericComputes[float64]("SFDouble", "MFDouble")))
	f.Register("SFTime", scalar(value.Time, numericComputes[float64]("SFTime", "MFTime")))
	f.Register("SFString", scalar(value.String, stringComputes()))

	f.Register("MFBool", sequence[bool](value.Bool, nil))
	f.Register("MFInt32", sequence[int32](value.Int32, nil))
	f.Register("MFFloat", sequence[float32](value.Float, nil))
	f.Register("MFDouble", sequence[float64](value.Double, nil))
	f.Register("MFTime", sequence[float64](value.Time, nil))
	f.Register("MFString", sequence(value.String, stringSequenceComputes()))

	f.Register("SFNode", func(compute string, opts ...field.Option) (field.Field, error) {
		if compute != "" {
			return nil, invalidCompute(compute, "SFNode")
		}
		return field.NewRefField[*Node]("SFNode", counter, opts...), nil
	})
	f.Register("MFNode", func(compute string, opts ...field.Option) (field.Field, error) {
		if compute != "" {
			return nil, invalidCompute(compute, "MFNode")
		}
		return field.NewRefMField[*Node]("MFNode", counter, opts...), nil
	})

	return f
}

// Register adds or replaces the constructor for typ.
func (f *Factory) Register(typ string, c Constructor) {
	f.ctors[typ] = c
}

// New creates a field of type typ.
func (f *Factory) New(typ, compute string, opts ...field.Option) (field.Field, error) {
	c, ok := f.ctors[typ]
	if !ok {
		return nil, &RuntimeError{
			Code:    ErrCodeUnknownType,
			Message: fmt.Sprintf("no constructor for field type %q", typ),
		}
	}
	return c(compute, opts...)
}

// Types returns the registered type names, sorted.
func (f *Factory) Types() []string {
	types := make([]string, 0, len(f.ctors))
	for t := range f.ctors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func scalar[T any](codec value.Codec[T], computes map[string]scalarCompute[T]) Constructor {
	return func(compute string, opts ...field.Option) (field.Field, error) {
		if compute != "" {
			c, ok := computes[compute]
			if !ok {
				return nil, invalidCompute(compute, "SF"+codec.TypeName())
			}
			opts = append(slices.Clone(opts), field.WithUpdate(c.fn), field.WithContract(c.contract))
		}
		return field.NewSField(codec, opts...), nil
	}
}

func sequence[T any](codec value.Codec[T], computes map[string]sequenceCompute[T]) Constructor {
	return func(compute string, opts ...field.Option) (field.Field, error) {
		if compute != "" {
			c, ok := computes[compute]
			if !ok {
				return nil, invalidCompute(compute, "MF"+codec.TypeName())
			}
			opts = append(slices.Clone(opts), field.WithSequenceUpdate(c.fn), field.WithContract(c.contract))
		}
		return field.NewMField(codec, opts...), nil
	}
}

func invalidCompute(compute, typ string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeInvalidCompute,
		Message: fmt.Sprintf("compute %q does not apply to %s fields", compute, typ),
		Details: map[string]string{"compute": compute, "type": typ},
	}
}
