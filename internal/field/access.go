package field

import "fmt"

// AccessType is the read/write permission class of a field.
type AccessType int

const (
	// InputOutput fields may be read and written by anyone.
	InputOutput AccessType = iota
	// InitializeOnly fields may be written until the owner is initialized.
	InitializeOnly
	// InputOnly fields may be written by anyone but read only by the owner
	// (or by anyone once the field routes somewhere).
	InputOnly
	// OutputOnly fields may be written only by the owner.
	OutputOnly
)

var accessNames = map[AccessType]string{
	InputOutput:    "inputOutput",
	InitializeOnly: "initializeOnly",
	InputOnly:      "inputOnly",
	OutputOnly:     "outputOnly",
}

// String returns the X3D spelling of the access type.
func (a AccessType) String() string {
	if s, ok := accessNames[a]; ok {
		return s
	}
	return fmt.Sprintf("AccessType(%d)", int(a))
}

// ParseAccessType accepts the X3D spelling ("inputOutput") and the
// upper-case constant spelling ("INPUT_OUTPUT").
func ParseAccessType(s string) (AccessType, error) {
	switch s {
	case "inputOutput", "INPUT_OUTPUT", "exposedField":
		return InputOutput, nil
	case "initializeOnly", "INITIALIZE_ONLY", "field":
		return InitializeOnly, nil
	case "inputOnly", "INPUT_ONLY", "eventIn":
		return InputOnly, nil
	case "outputOnly", "OUTPUT_ONLY", "eventOut":
		return OutputOnly, nil
	}
	return 0, fmt.Errorf("unknown access type %q", s)
}

// OwnerID identifies the owning entity of a field, and the caller of an
// operation. Internal (zero) means "no specific caller": trusted internal
// access when used as a caller, and "unowned" when used as an owner.
type OwnerID int

// Internal is the trusted, no-specific-caller identity.
const Internal OwnerID = 0

// OwnerRegistry is the external registry of owning entities. Fields hold
// only an OwnerID and resolve everything else through it.
type OwnerRegistry interface {
	// OwnerName returns the display name of an owner ("" if unknown).
	OwnerName(id OwnerID) string

	// IsInitialized reports whether the owner finished initialization.
	// INITIALIZE_ONLY fields reject external writes afterwards.
	IsInitialized(id OwnerID) bool

	// MayWrite has the final say on writes by a caller other than the owner.
	MayWrite(owner, caller OwnerID) bool
}

// external reports whether caller must be checked against the access type.
func (b *Base) external(caller OwnerID) bool {
	return b.accessCheck && b.owner != Internal && caller != Internal && caller != b.owner
}

// CheckRead returns an AccessViolation if caller may not read the field.
func (b *Base) CheckRead(caller OwnerID) error {
	if !b.external(caller) {
		return nil
	}
	// An INPUT_ONLY field that routes somewhere is readable; downstream
	// pass-through fields read it with their own owner's identity.
	if b.access == InputOnly && len(b.out) == 0 {
		return accessError(b.FullName(),
			"reading the INPUT_ONLY field from outside its owner")
	}
	return nil
}

// CheckWrite returns an AccessViolation if caller may not write the field.
func (b *Base) CheckWrite(caller OwnerID) error {
	if !b.external(caller) {
		return nil
	}
	switch b.access {
	case InitializeOnly:
		if b.registry != nil && b.registry.IsInitialized(b.owner) {
			return accessError(b.FullName(),
				"setting the INITIALIZE_ONLY field after initialization")
		}
	case OutputOnly:
		return accessError(b.FullName(),
			"setting the OUTPUT_ONLY field from outside its owner")
	}
	if b.registry != nil && !b.registry.MayWrite(b.owner, caller) {
		return accessError(b.FullName(),
			"owner registry denies writes by caller %d", caller)
	}
	return nil
}

// checkRouteOut guards routes leaving this field.
func (b *Base) checkRouteOut(dst Field, caller OwnerID) error {
	if b.external(caller) && b.access == InputOnly {
		return accessError(b.FullName(),
			"routing from the INPUT_ONLY field to %s", dst.FullName())
	}
	return nil
}

// checkRouteIn guards routes arriving at this field.
func (b *Base) checkRouteIn(src Field, caller OwnerID) error {
	if !b.external(caller) {
		return nil
	}
	switch b.access {
	case InitializeOnly, OutputOnly:
		return accessError(b.FullName(),
			"routing from %s to the %s field", src.FullName(), b.access)
	}
	return nil
}
