package compiler

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/fieldnet/internal/ir"
	"github.com/roach88/fieldnet/internal/value"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Declaration errors (E101-E109)
	ErrSceneNameEmpty    = "E101" // scene name is required
	ErrSceneNoNodes      = "E102" // at least one node required
	ErrInvalidName       = "E103" // node or field name has an invalid format
	ErrInvalidFieldType  = "E104" // unknown field type
	ErrDuplicateName     = "E105" // duplicate node or field name
	ErrInvalidAccessType = "E106" // unknown access type
	ErrInvalidValue      = "E107" // initial value does not parse for the field type
	ErrUnknownCompute    = "E108" // compute is not a built-in

	// Route errors (E110-E119)
	ErrUnknownFieldRef   = "E110" // route endpoint does not name a declared field
	ErrRouteAccess       = "E111" // route leaves an inputOnly field of another node
	ErrRouteTypeMismatch = "E112" // pass-through destination has a different type
	ErrDuplicateRoute    = "E113" // same route declared twice
	ErrSelfRoute         = "E114" // field routed to itself
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled scene against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.SceneSpec:
		return validateScene(spec)
	case ir.SceneSpec:
		return validateScene(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// namePattern matches node and field identifiers.
var namePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func validateScene(spec *ir.SceneSpec) []ValidationError {
	var errs []ValidationError

	// E101: scene name is required
	if strings.TrimSpace(spec.Name) == "" {
		errs = append(errs, ValidationError{
			Field:   "name",
			Message: "scene name is required and must be non-empty",
			Code:    ErrSceneNameEmpty,
		})
	}

	// E102: at least one node required
	if len(spec.Nodes) == 0 {
		errs = append(errs, ValidationError{
			Field:   "nodes",
			Message: "at least one node is required",
			Code:    ErrSceneNoNodes,
		})
	}

	nodeNames := make(map[string]bool)
	for i, node := range spec.Nodes {
		path := fmt.Sprintf("nodes[%d]", i)

		if !namePattern.MatchString(node.Name) {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: fmt.Sprintf("invalid node name %q", node.Name),
				Code:    ErrInvalidName,
			})
		}
		if nodeNames[node.Name] {
			errs = append(errs, ValidationError{
				Field:   path + ".name",
				Message: fmt.Sprintf("duplicate node name: %q", node.Name),
				Code:    ErrDuplicateName,
			})
		}
		nodeNames[node.Name] = true

		fieldNames := make(map[string]bool)
		for j, f := range node.Fields {
			fpath := fmt.Sprintf("%s.fields[%d]", path, j)
			if fieldNames[f.Name] {
				errs = append(errs, ValidationError{
					Field:   fpath + ".name",
					Message: fmt.Sprintf("duplicate field name %q in node %q", f.Name, node.Name),
					Code:    ErrDuplicateName,
				})
			}
			fieldNames[f.Name] = true
			errs = append(errs, validateField(f, fpath)...)
		}
	}

	errs = append(errs, validateRoutes(spec)...)
	return errs
}

// validateField checks one field declaration.
func validateField(f ir.FieldSpec, path string) []ValidationError {
	var errs []ValidationError

	if !namePattern.MatchString(f.Name) {
		errs = append(errs, ValidationError{
			Field:   path + ".name",
			Message: fmt.Sprintf("invalid field name %q", f.Name),
			Code:    ErrInvalidName,
		})
	}

	// E104: check for valid type
	validType := ir.ValidFieldTypes[f.Type]
	if !validType {
		errs = append(errs, ValidationError{
			Field:   path + ".type",
			Message: fmt.Sprintf("invalid type %q for field %q", f.Type, f.Name),
			Code:    ErrInvalidFieldType,
		})
	}

	if !ir.ValidAccessTypes[f.Access] {
		errs = append(errs, ValidationError{
			Field:   path + ".access",
			Message: fmt.Sprintf("invalid access type %q, must be inputOutput, initializeOnly, inputOnly or outputOnly", f.Access),
			Code:    ErrInvalidAccessType,
		})
	}

	if f.HasValue && validType {
		if err := checkValue(f.Type, f.Value); err != nil {
			errs = append(errs, ValidationError{
				Field:   path + ".value",
				Message: fmt.Sprintf("invalid %s value %q: %v", f.Type, f.Value, err),
				Code:    ErrInvalidValue,
			})
		}
	}

	if f.Compute != "" && !ir.BuiltinComputes[f.Compute] {
		errs = append(errs, ValidationError{
			Field:   path + ".compute",
			Message: fmt.Sprintf("unknown compute %q", f.Compute),
			Code:    ErrUnknownCompute,
		})
	}

	return errs
}

// checkValue parses text with the codec for typ.
func checkValue(typ, text string) error {
	switch typ {
	case "SFBool":
		_, err := value.Bool.Parse(text)
		return err
	case "SFInt32":
		_, err := value.Int32.Parse(text)
		return err
	case "SFFloat":
		_, err := value.Float.Parse(text)
		return err
	case "SFDouble", "SFTime":
		_, err := value.Double.Parse(text)
		return err
	case "SFString":
		return nil
	case "MFBool":
		_, err := value.ParseSequence(value.Bool, text)
		return err
	case "MFInt32":
		_, err := value.ParseSequence(value.Int32, text)
		return err
	case "MFFloat":
		_, err := value.ParseSequence(value.Float, text)
		return err
	case "MFDouble", "MFTime":
		_, err := value.ParseSequence(value.Double, text)
		return err
	case "MFString":
		_, err := value.ParseSequence(value.String, text)
		return err
	case "SFNode":
		if text != "NULL" {
			return fmt.Errorf("only NULL may be declared")
		}
		return nil
	case "MFNode":
		if t := strings.TrimSpace(text); t != "" && t != "[]" {
			return fmt.Errorf("only an empty sequence may be declared")
		}
		return nil
	}
	return nil
}

// validateRoutes checks route endpoints against declared fields.
func validateRoutes(spec *ir.SceneSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[[2]string]bool)

	for i, r := range spec.Routes {
		path := fmt.Sprintf("routes[%d]", i)

		from, fromOK := spec.Field(r.From)
		if !fromOK {
			errs = append(errs, ValidationError{
				Field:   path + ".from",
				Message: fmt.Sprintf("unknown field %q", r.From),
				Code:    ErrUnknownFieldRef,
			})
		}
		to, toOK := spec.Field(r.To)
		if !toOK {
			errs = append(errs, ValidationError{
				Field:   path + ".to",
				Message: fmt.Sprintf("unknown field %q", r.To),
				Code:    ErrUnknownFieldRef,
			})
		}
		if !fromOK || !toOK {
			continue
		}

		if r.From == r.To {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("field %q is routed to itself", r.From),
				Code:    ErrSelfRoute,
			})
			continue
		}

		key := [2]string{r.From.String(), r.To.String()}
		if seen[key] {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("duplicate route %s -> %s", r.From, r.To),
				Code:    ErrDuplicateRoute,
			})
		}
		seen[key] = true

		// Scene routes are made on behalf of the destination's node.
		if from.Access == "inputOnly" && r.From.Node != r.To.Node {
			errs = append(errs, ValidationError{
				Field:   path + ".from",
				Message: fmt.Sprintf("cannot route from inputOnly field %q of another node", r.From),
				Code:    ErrRouteAccess,
			})
		}

		if to.Compute == "" && from.Type != to.Type {
			errs = append(errs, ValidationError{
				Field:   path,
				Message: fmt.Sprintf("route type mismatch: %s is %s, %s is %s", r.From, from.Type, r.To, to.Type),
				Code:    ErrRouteTypeMismatch,
			})
		}
	}

	return errs
}
