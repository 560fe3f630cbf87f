package engine

import (
	"cmp"
	"strings"

	"github.com/roach88/fieldnet/internal/field"
)

// Built-in recompute functions. A compute replaces the pass-through update
// of a field and carries the route contract its inputs must satisfy. Every
// compute reads its inputs with the identity of the computing field's owner.

type number interface {
	~int32 | ~float32 | ~float64
}

type scalarCompute[T any] struct {
	contract *field.Contract
	fn       func(*field.SField[T]) (T, error)
}

type sequenceCompute[T any] struct {
	contract *field.Contract
	fn       func(*field.MField[T]) ([]T, error)
}

// inputs collects the values routed into f: a scalar input contributes its
// value, a sequence input contributes every element.
func inputs[T any](f field.Field) ([]T, error) {
	var out []T
	for _, in := range f.RoutesIn() {
		if seq, ok := in.(field.SequenceSource[T]); ok {
			vs, err := seq.Values(f.Owner())
			if err != nil {
				return nil, err
			}
			out = append(out, vs...)
			continue
		}
		v, err := field.ValueOf[T](in, f.Owner())
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func fold[T any](start T, op func(acc, v T) T) func(*field.SField[T]) (T, error) {
	return func(f *field.SField[T]) (T, error) {
		vs, err := inputs[T](f)
		if err != nil {
			return start, err
		}
		acc := start
		for _, v := range vs {
			acc = op(acc, v)
		}
		return acc, nil
	}
}

// extreme returns the smallest (sign < 0) or largest (sign > 0) input, or
// the zero value when nothing is routed in.
func extreme[T number](sign int) func(*field.SField[T]) (T, error) {
	return func(f *field.SField[T]) (T, error) {
		var zero T
		vs, err := inputs[T](f)
		if err != nil || len(vs) == 0 {
			return zero, err
		}
		best := vs[0]
		for _, v := range vs[1:] {
			if cmp.Compare(v, best)*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
}

func numericComputes[T number](sf, mf field.Type) map[string]scalarCompute[T] {
	c := field.MustContract(field.Void, []field.Slot{field.Repeat(sf, mf)})
	return map[string]scalarCompute[T]{
		"sum":     {c, fold(T(0), func(acc, v T) T { return acc + v })},
		"product": {c, fold(T(1), func(acc, v T) T { return acc * v })},
		"min":     {c, extreme[T](-1)},
		"max":     {c, extreme[T](1)},
	}
}

var mfTypes = []field.Type{
	"MFBool", "MFInt32", "MFFloat", "MFDouble", "MFTime", "MFString", "MFNode",
}

// sizer is the common view of every sequence field.
type sizer interface {
	Size(caller field.OwnerID) (int, error)
}

func int32Computes() map[string]scalarCompute[int32] {
	m := numericComputes[int32]("SFInt32", "MFInt32")
	m["length"] = scalarCompute[int32]{
		contract: field.MustContract([]field.Slot{field.Choice(mfTypes...)}, nil),
		fn: func(f *field.SField[int32]) (int32, error) {
			in := f.RoutesIn()[0]
			s, ok := in.(sizer)
			if !ok {
				return 0, &field.Error{
					Code:    field.ErrCodeInvalidRouteType,
					Message: in.FullName() + " is not a sequence",
					Field:   f.FullName(),
				}
			}
			n, err := s.Size(f.Owner())
			return int32(n), err
		},
	}
	return m
}

func boolComputes() map[string]scalarCompute[bool] {
	c := field.MustContract(field.Void, []field.Slot{field.Repeat("SFBool", "MFBool")})
	return map[string]scalarCompute[bool]{
		"and": {c, fold(true, func(acc, v bool) bool { return acc && v })},
		"or":  {c, fold(false, func(acc, v bool) bool { return acc || v })},
		"not": {
			contract: field.MustContract([]field.Slot{field.Fixed("SFBool")}, nil),
			fn: func(f *field.SField[bool]) (bool, error) {
				v, err := field.ValueOf[bool](f.RoutesIn()[0], f.Owner())
				return !v, err
			},
		},
	}
}

func stringComputes() map[string]scalarCompute[string] {
	c := field.MustContract(field.Void, []field.Slot{field.Repeat("SFString", "MFString")})
	return map[string]scalarCompute[string]{
		"concat": {c, func(f *field.SField[string]) (string, error) {
			vs, err := inputs[string](f)
			return strings.Join(vs, ""), err
		}},
	}
}

func stringSequenceComputes() map[string]sequenceCompute[string] {
	c := field.MustContract(field.Void, []field.Slot{field.Repeat("SFString", "MFString")})
	return map[string]sequenceCompute[string]{
		"concat": {c, func(f *field.MField[string]) ([]string, error) {
			vs, err := inputs[string](f)
			if vs == nil {
				vs = []string{}
			}
			return vs, err
		}},
	}
}
