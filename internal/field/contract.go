package field

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Type is a concrete field type name ("SFInt32", "MFString", "SFNode").
type Type string

// SlotKind selects how a contract slot matches route types.
type SlotKind int

const (
	// SlotFixed accepts exactly one type.
	SlotFixed SlotKind = iota
	// SlotChoice accepts any one of a set of types.
	SlotChoice
	// SlotRepeat accepts any number of routes, each of any type in the set.
	SlotRepeat
)

// Slot is one entry of a ConnectionContract.
type Slot struct {
	Kind  SlotKind
	Types []Type
}

// Fixed returns a slot matching exactly t.
func Fixed(t Type) Slot {
	return Slot{Kind: SlotFixed, Types: []Type{t}}
}

// Choice returns a slot matching any one of ts.
func Choice(ts ...Type) Slot {
	return Slot{Kind: SlotChoice, Types: ts}
}

// Repeat returns a slot matching any number of routes of any of ts.
func Repeat(ts ...Type) Slot {
	return Slot{Kind: SlotRepeat, Types: ts}
}

// Void declares that no routes of a category are expected.
var Void []Slot

// Accepts reports whether t satisfies the slot.
func (s Slot) Accepts(t Type) bool {
	return slices.Contains(s.Types, t)
}

// String describes the slot ("SFInt32", "Any<SFFloat|SFDouble>",
// "AnyNumber<SFInt32>").
func (s Slot) String() string {
	names := make([]string, len(s.Types))
	for i, t := range s.Types {
		names[i] = string(t)
	}
	joined := strings.Join(names, "|")
	switch s.Kind {
	case SlotChoice:
		return "Any<" + joined + ">"
	case SlotRepeat:
		return "AnyNumber<" + joined + ">"
	default:
		return joined
	}
}

// Contract is the declared route shape of a field type: an ordered list of
// required slots followed by an ordered list of optional slots. A Repeat
// slot may only close the optional list.
//
// Contracts are immutable once built and are shared by every field of the
// type that declares them.
type Contract struct {
	required []Slot
	optional []Slot
	repeat   *Slot
}

// NewContract builds a contract, rejecting malformed slot lists with an
// INVALID_CONTRACT error.
func NewContract(required, optional []Slot) (*Contract, error) {
	for i, s := range required {
		if err := checkSlot(s, "required", i); err != nil {
			return nil, err
		}
		if s.Kind == SlotRepeat {
			return nil, &Error{
				Code:    ErrCodeInvalidContract,
				Message: fmt.Sprintf("required slot %d: %s is not allowed as a required route", i, s),
				Index:   i,
			}
		}
	}
	c := &Contract{required: slices.Clone(required)}
	for i, s := range optional {
		if err := checkSlot(s, "optional", i); err != nil {
			return nil, err
		}
		if s.Kind == SlotRepeat {
			if i != len(optional)-1 {
				return nil, &Error{
					Code:    ErrCodeInvalidContract,
					Message: fmt.Sprintf("optional slot %d: %s must be the last optional slot", i, s),
					Index:   i,
				}
			}
			rep := s
			c.repeat = &rep
			continue
		}
		c.optional = append(c.optional, s)
	}
	return c, nil
}

// MustContract is like NewContract but panics on error. Intended for
// package-level contract declarations.
func MustContract(required, optional []Slot) *Contract {
	c, err := NewContract(required, optional)
	if err != nil {
		panic(err)
	}
	return c
}

func checkSlot(s Slot, list string, i int) error {
	if len(s.Types) == 0 {
		return &Error{
			Code:    ErrCodeInvalidContract,
			Message: fmt.Sprintf("%s slot %d has no types", list, i),
			Index:   i,
		}
	}
	if s.Kind == SlotFixed && len(s.Types) != 1 {
		return &Error{
			Code:    ErrCodeInvalidContract,
			Message: fmt.Sprintf("%s slot %d: fixed slots take exactly one type", list, i),
			Index:   i,
		}
	}
	return nil
}

// Required returns the number of required slots.
func (c *Contract) Required() int {
	if c == nil {
		return 0
	}
	return len(c.required)
}

// MaxRoutes returns the maximum number of incoming routes, or -1 if the
// contract ends with a Repeat slot.
func (c *Contract) MaxRoutes() int {
	if c == nil {
		return -1
	}
	if c.repeat != nil {
		return -1
	}
	return len(c.required) + len(c.optional)
}

// slotAt returns the slot governing route index i.
func (c *Contract) slotAt(i int) (Slot, bool) {
	if i < len(c.required) {
		return c.required[i], true
	}
	j := i - len(c.required)
	if j < len(c.optional) {
		return c.optional[j], true
	}
	if c.repeat != nil {
		return *c.repeat, true
	}
	return Slot{}, false
}

// ValidateRoute checks that a route of type t may occupy slot index i.
// A nil contract accepts everything.
func (c *Contract) ValidateRoute(t Type, i int) error {
	if c == nil {
		return nil
	}
	slot, ok := c.slotAt(i)
	if !ok {
		limit := c.MaxRoutes()
		return &Error{
			Code:     ErrCodeInvalidRouteType,
			Message:  fmt.Sprintf("too many routes: expecting a maximum of %d routes", limit),
			Index:    i,
			Size:     limit,
			Expected: c.String(),
			Actual:   string(t),
		}
	}
	if !slot.Accepts(t) {
		return &Error{
			Code:     ErrCodeInvalidRouteType,
			Message:  fmt.Sprintf("route %d has type %s, expecting %s", i, t, slot),
			Index:    i,
			Expected: slot.String(),
			Actual:   string(t),
		}
	}
	return nil
}

// ValidateShape checks that count incoming routes occupy every required slot.
func (c *Contract) ValidateShape(count int) error {
	if c == nil || count >= len(c.required) {
		return nil
	}
	return &Error{
		Code: ErrCodeMissingRequiredRoute,
		Message: fmt.Sprintf("%d of %d required routes present, missing %s",
			count, len(c.required), c.required[count]),
		Index:    count,
		Size:     len(c.required),
		Expected: c.String(),
	}
}

// String describes the whole contract for diagnostics.
func (c *Contract) String() string {
	if c == nil {
		return "required: [] optional: AnyNumber<*>"
	}
	describe := func(slots []Slot, tail *Slot) string {
		parts := make([]string, 0, len(slots)+1)
		for _, s := range slots {
			parts = append(parts, s.String())
		}
		if tail != nil {
			parts = append(parts, tail.String())
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return "required: " + describe(c.required, nil) + " optional: " + describe(c.optional, c.repeat)
}

var passThrough sync.Map // Type -> *Contract

// PassThrough returns the shared default contract for a field of type t:
// no required routes, any number of optional routes of type t.
func PassThrough(t Type) *Contract {
	if c, ok := passThrough.Load(t); ok {
		return c.(*Contract)
	}
	c, _ := passThrough.LoadOrStore(t, MustContract(Void, []Slot{Repeat(t)}))
	return c.(*Contract)
}
