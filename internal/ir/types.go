package ir

import (
	"fmt"
	"strings"
)

// SceneSpec represents a compiled scene: a set of nodes declaring fields,
// and the routes between those fields.
type SceneSpec struct {
	Name   string      `json:"name"`
	Nodes  []NodeSpec  `json:"nodes"`
	Routes []RouteSpec `json:"routes"`
}

// NodeSpec represents an owning entity and the fields it declares.
type NodeSpec struct {
	Name   string      `json:"name"`
	Fields []FieldSpec `json:"fields"`
}

// FieldSpec represents one field declaration.
type FieldSpec struct {
	Name       string `json:"name"`
	Type       string `json:"type"`                  // "SFInt32", "MFString", "SFNode", ...
	Access     string `json:"access"`                // "inputOutput", "initializeOnly", ...
	Value      string `json:"value,omitempty"`       // Initial value in text form
	HasValue   bool   `json:"has_value,omitempty"`   // Value was declared (it may be "")
	Compute    string `json:"compute,omitempty"`     // Built-in recompute ("sum", "concat", ...)
	AutoUpdate bool   `json:"auto_update,omitempty"` // Recompute eagerly on notify
}

// RouteSpec represents a route between two fields.
type RouteSpec struct {
	From    FieldRef `json:"from"`
	To      FieldRef `json:"to"`
	NoEvent bool     `json:"no_event,omitempty"` // Connect without notifying
}

// FieldRef names a field of a node.
// Format: "Node.field".
type FieldRef struct {
	Node  string `json:"node"`
	Field string `json:"field"`
}

// String returns "Node.field".
func (r FieldRef) String() string {
	return r.Node + "." + r.Field
}

// ParseFieldRef parses "Node.field". The node name may not contain dots; the
// field name may.
func ParseFieldRef(s string) (FieldRef, error) {
	node, field, ok := strings.Cut(s, ".")
	if !ok || node == "" || field == "" {
		return FieldRef{}, fmt.Errorf("invalid field reference %q: expected Node.field", s)
	}
	return FieldRef{Node: node, Field: field}, nil
}

// ValidAccessTypes defines the accepted access spellings in scene files.
var ValidAccessTypes = map[string]bool{
	"inputOutput":    true,
	"initializeOnly": true,
	"inputOnly":      true,
	"outputOnly":     true,
}

// ValidFieldTypes defines the field type names a scene may declare.
var ValidFieldTypes = map[string]bool{
	"SFBool":   true,
	"SFInt32":  true,
	"SFFloat":  true,
	"SFDouble": true,
	"SFTime":   true,
	"SFString": true,
	"MFBool":   true,
	"MFInt32":  true,
	"MFFloat":  true,
	"MFDouble": true,
	"MFTime":   true,
	"MFString": true,
	"SFNode":   true,
	"MFNode":   true,
}

// BuiltinComputes names the recompute functions a field may declare.
var BuiltinComputes = map[string]bool{
	"sum":     true,
	"product": true,
	"min":     true,
	"max":     true,
	"and":     true,
	"or":      true,
	"not":     true,
	"concat":  true,
	"length":  true,
}

// Node returns the node named name.
func (s *SceneSpec) Node(name string) (*NodeSpec, bool) {
	for i := range s.Nodes {
		if s.Nodes[i].Name == name {
			return &s.Nodes[i], true
		}
	}
	return nil, false
}

// Field returns the field declaration referenced by ref.
func (s *SceneSpec) Field(ref FieldRef) (*FieldSpec, bool) {
	n, ok := s.Node(ref.Node)
	if !ok {
		return nil, false
	}
	for i := range n.Fields {
		if n.Fields[i].Name == ref.Field {
			return &n.Fields[i], true
		}
	}
	return nil, false
}

// IR converts the spec to an IRObject for canonical hashing.
func (s SceneSpec) IR() IRObject {
	nodes := make(IRArray, len(s.Nodes))
	for i, n := range s.Nodes {
		fields := make(IRArray, len(n.Fields))
		for j, f := range n.Fields {
			obj := IRObject{
				"name":   IRString(f.Name),
				"type":   IRString(f.Type),
				"access": IRString(f.Access),
			}
			if f.HasValue {
				obj["value"] = IRString(f.Value)
			}
			if f.Compute != "" {
				obj["compute"] = IRString(f.Compute)
			}
			if f.AutoUpdate {
				obj["auto_update"] = IRBool(true)
			}
			fields[j] = obj
		}
		nodes[i] = IRObject{"name": IRString(n.Name), "fields": fields}
	}
	routes := make(IRArray, len(s.Routes))
	for i, r := range s.Routes {
		obj := IRObject{
			"from": IRString(r.From.String()),
			"to":   IRString(r.To.String()),
		}
		if r.NoEvent {
			obj["no_event"] = IRBool(true)
		}
		routes[i] = obj
	}
	return IRObject{
		"name":   IRString(s.Name),
		"nodes":  nodes,
		"routes": routes,
	}
}
