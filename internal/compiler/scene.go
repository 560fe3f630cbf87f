package compiler

import (
	"fmt"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/value"
)

// CompileScene parses a CUE value into a SceneSpec.
// Uses CUE SDK's Go API directly (not CLI subprocess).
//
// The CUE value should be the scene struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`scene: Adder: { node: {...}, route: [...] }`)
//	spec, err := CompileScene(v.LookupPath(cue.ParsePath("scene.Adder")))
//
// Nodes, fields and routes keep their declaration order.
func CompileScene(v cue.Value) (*ir.SceneSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.SceneSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = strings.Trim(labels[len(labels)-1].String(), `"`)
	}

	var err error
	spec.Nodes, err = parseNodes(v)
	if err != nil {
		return nil, err
	}
	if len(spec.Nodes) == 0 {
		return nil, &CompileError{
			Field:   "node",
			Message: "at least one node is required",
			Pos:     v.Pos(),
		}
	}

	spec.Routes, err = parseRoutes(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// CompileScenes compiles every scene declared under the top-level "scene"
// struct of v, in declaration order. A value without scenes yields none.
func CompileScenes(v cue.Value) ([]*ir.SceneSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	scenes := v.LookupPath(cue.ParsePath("scene"))
	if !scenes.Exists() {
		return nil, nil
	}
	iter, err := scenes.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var specs []*ir.SceneSpec
	for iter.Next() {
		spec, err := CompileScene(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("scene %s: %w", iter.Selector(), err)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// parseNodes extracts node declarations from the scene.
func parseNodes(v cue.Value) ([]ir.NodeSpec, error) {
	var nodes []ir.NodeSpec

	nodeVal := v.LookupPath(cue.ParsePath("node"))
	if !nodeVal.Exists() {
		return nodes, nil
	}

	iter, err := nodeVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for iter.Next() {
		node := ir.NodeSpec{Name: iter.Label()}

		fieldVal := iter.Value().LookupPath(cue.ParsePath("field"))
		if fieldVal.Exists() {
			fieldIter, err := fieldVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for fieldIter.Next() {
				f, err := parseField(node.Name, fieldIter.Label(), fieldIter.Value())
				if err != nil {
					return nil, err
				}
				node.Fields = append(node.Fields, f)
			}
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// parseField parses one field declaration:
//
//	value: { type: "SFInt32", access: "inputOutput", value: 2 }
func parseField(node, name string, v cue.Value) (ir.FieldSpec, error) {
	path := fmt.Sprintf("node.%s.field.%s", node, name)
	f := ir.FieldSpec{Name: name, Access: "inputOutput"}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return f, &CompileError{
			Field:   path + ".type",
			Message: "field type is required",
			Pos:     v.Pos(),
		}
	}
	typ, err := typeVal.String()
	if err != nil {
		return f, formatCUEError(err)
	}
	f.Type = typ

	if accessVal := v.LookupPath(cue.ParsePath("access")); accessVal.Exists() {
		access, err := accessVal.String()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Access = access
	}

	if valueVal := v.LookupPath(cue.ParsePath("value")); valueVal.Exists() {
		text, err := valueText(path+".value", valueVal)
		if err != nil {
			return f, err
		}
		f.Value = text
		f.HasValue = true
	}

	if computeVal := v.LookupPath(cue.ParsePath("compute")); computeVal.Exists() {
		compute, err := computeVal.String()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.Compute = compute
	}

	if autoVal := v.LookupPath(cue.ParsePath("auto_update")); autoVal.Exists() {
		auto, err := autoVal.Bool()
		if err != nil {
			return f, formatCUEError(err)
		}
		f.AutoUpdate = auto
	}

	return f, nil
}

// valueText renders an initial value in the field text grammar. Strings are
// taken verbatim; numbers, booleans and lists of them are converted.
func valueText(path string, v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return "", formatCUEError(err)
		}
		return s, nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return "", formatCUEError(err)
		}
		var parts []string
		for iter.Next() {
			elem := iter.Value()
			if elem.IncompleteKind() == cue.StringKind {
				s, err := elem.String()
				if err != nil {
					return "", formatCUEError(err)
				}
				parts = append(parts, value.Quote(s))
				continue
			}
			s, err := scalarText(path, elem)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return strings.Join(parts, " "), nil
	default:
		return scalarText(path, v)
	}
}

// scalarText renders a non-string scalar.
func scalarText(path string, v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return "", formatCUEError(err)
		}
		return value.Bool.Format(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return strconv.FormatInt(i, 10), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return "", formatCUEError(err)
		}
		return value.Double.Format(f), nil
	default:
		return "", &CompileError{
			Field:   path,
			Message: fmt.Sprintf("unsupported value kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// parseRoutes extracts route declarations:
//
//	route: [{ from: "A.value", to: "Sum.out" }, { from: "B.value", to: "Sum.out", no_event: true }]
func parseRoutes(v cue.Value) ([]ir.RouteSpec, error) {
	var routes []ir.RouteSpec

	routeVal := v.LookupPath(cue.ParsePath("route"))
	if !routeVal.Exists() {
		return routes, nil
	}

	iter, err := routeVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	for i := 0; iter.Next(); i++ {
		rv := iter.Value()
		path := fmt.Sprintf("route[%d]", i)

		from, err := parseRouteEnd(path+".from", rv)
		if err != nil {
			return nil, err
		}
		to, err := parseRouteEnd(path+".to", rv)
		if err != nil {
			return nil, err
		}

		route := ir.RouteSpec{From: from, To: to}
		if noEventVal := rv.LookupPath(cue.ParsePath("no_event")); noEventVal.Exists() {
			route.NoEvent, err = noEventVal.Bool()
			if err != nil {
				return nil, formatCUEError(err)
			}
		}
		routes = append(routes, route)
	}

	return routes, nil
}

// parseRouteEnd reads the "from" or "to" member of a route.
func parseRouteEnd(path string, rv cue.Value) (ir.FieldRef, error) {
	key := path[strings.LastIndexByte(path, '.')+1:]
	endVal := rv.LookupPath(cue.ParsePath(key))
	if !endVal.Exists() {
		return ir.FieldRef{}, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("route %s is required", key),
			Pos:     rv.Pos(),
		}
	}
	s, err := endVal.String()
	if err != nil {
		return ir.FieldRef{}, formatCUEError(err)
	}
	ref, err := ir.ParseFieldRef(s)
	if err != nil {
		return ir.FieldRef{}, &CompileError{
			Field:   path,
			Message: err.Error(),
			Pos:     endVal.Pos(),
		}
	}
	return ref, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
