package value

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Codec describes one value type: its text grammar, equality, and raw layout.
type Codec[T any] interface {
	// TypeName is the bare type name ("Int32", "String", ...). Field kinds
	// prefix it ("SFInt32", "MFInt32").
	TypeName() string

	// Parse reads a single value from its canonical text form.
	Parse(s string) (T, error)

	// Format writes a single value in its canonical text form.
	Format(v T) string

	// Equal reports whether two values are semantically equal.
	Equal(a, b T) bool

	// Size is the raw element size in bytes. Zero means the type has no
	// fixed-size raw representation.
	Size() int

	// Encode writes v into dst, which is at least Size() bytes long.
	Encode(dst []byte, v T)

	// Decode reads a value from src, which is at least Size() bytes long.
	Decode(src []byte) T

	// Quoted reports whether sequence elements are written as quoted tokens.
	Quoted() bool
}

// ParseError reports text that does not match a codec's grammar.
type ParseError struct {
	Type  string
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot parse %q as %s: %v", e.Input, e.Type, e.Err)
	}
	return fmt.Sprintf("cannot parse %q as %s", e.Input, e.Type)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Bool is the codec for SFBool/MFBool.
var Bool Codec[bool] = boolCodec{}

// Int32 is the codec for SFInt32/MFInt32.
var Int32 Codec[int32] = int32Codec{}

// Float is the codec for SFFloat/MFFloat.
var Float Codec[float32] = float32Codec{}

// Double is the codec for SFDouble/MFDouble.
var Double Codec[float64] = float64Codec{name: "Double"}

// Time is the codec for SFTime/MFTime (seconds as float64).
var Time Codec[float64] = float64Codec{name: "Time"}

// String is the codec for SFString/MFString.
var String Codec[string] = stringCodec{}

type boolCodec struct{}

func (boolCodec) TypeName() string { return "Bool" }
func (boolCodec) Quoted() bool { return false }
func (boolCodec) Size() int { return 1 }

func (boolCodec) Parse(s string) (bool, error) {
	switch strings.TrimSpace(s) {
	case "TRUE", "true":
		return true, nil
	case "FALSE", "false":
		return false, nil
	}
	return false, &ParseError{Type: "Bool", Input: s}
}

func (boolCodec) Format(v bool) string {
	if v {
		return "TRUE"
	}
	return "FALSE"
}

func (boolCodec) Equal(a, b bool) bool { return a == b }

func (boolCodec) Encode(dst []byte, v bool) {
	if v {
		dst[0] = 1
		return
	}
	dst[0] = 0
}

func (boolCodec) Decode(src []byte) bool { return src[0] != 0 }

type int32Codec struct{}

func (int32Codec) TypeName() string { return "Int32" }
func (int32Codec) Quoted() bool { return false }
func (int32Codec) Size() int { return 4 }

func (int32Codec) Parse(s string) (int32, error) {
	t := strings.TrimSpace(s)
	sign := ""
	body := t
	if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
		sign, body = body[:1], body[1:]
	}
	base := 10
	if strings.HasPrefix(body, "0x") || strings.HasPrefix(body, "0X") {
		base = 16
		body = body[2:]
	}
	if strings.HasPrefix(body, "-") || strings.HasPrefix(body, "+") {
		return 0, &ParseError{Type: "Int32", Input: s, Err: strconv.ErrSyntax}
	}
	n, err := strconv.ParseInt(sign+body, base, 32)
	if err != nil {
		return 0, &ParseError{Type: "Int32", Input: s, Err: err}
	}
	return int32(n), nil
}

func (int32Codec) Format(v int32) string { return strconv.FormatInt(int64(v), 10) }
func (int32Codec) Equal(a, b int32) bool { return a == b }

func (int32Codec) Encode(dst []byte, v int32) {
	binary.LittleEndian.PutUint32(dst, uint32(v))
}

func (int32Codec) Decode(src []byte) int32 {
	return int32(binary.LittleEndian.Uint32(src))
}

type float32Codec struct{}

func (float32Codec) TypeName() string { return "Float" }
func (float32Codec) Quoted() bool { return false }
func (float32Codec) Size() int { return 4 }

func (float32Codec) Parse(s string) (float32, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, &ParseError{Type: "Float", Input: s, Err: err}
	}
	return float32(f), nil
}

func (float32Codec) Format(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// Equal treats NaN as equal to NaN so that a NaN value survives a
// round trip through the text bridge.
func (float32Codec) Equal(a, b float32) bool {
	return a == b || (math.IsNaN(float64(a)) && math.IsNaN(float64(b)))
}

func (float32Codec) Encode(dst []byte, v float32) {
	binary.LittleEndian.PutUint32(dst, math.Float32bits(v))
}

func (float32Codec) Decode(src []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(src))
}

type float64Codec struct {
	name string
}

func (c float64Codec) TypeName() string { return c.name }
func (float64Codec) Quoted() bool { return false }
func (float64Codec) Size() int { return 8 }

func (c float64Codec) Parse(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, &ParseError{Type: c.name, Input: s, Err: err}
	}
	return f, nil
}

func (float64Codec) Format(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func (float64Codec) Equal(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

func (float64Codec) Encode(dst []byte, v float64) {
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}

func (float64Codec) Decode(src []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}

type stringCodec struct{}

func (stringCodec) TypeName() string { return "String" }
func (stringCodec) Quoted() bool { return true }
func (stringCodec) Size() int { return 0 }
func (stringCodec) Parse(s string) (string, error) { return s, nil }
func (stringCodec) Format(v string) string { return v }
func (stringCodec) Equal(a, b string) bool { return a == b }
func (stringCodec) Encode([]byte, string) {}
func (stringCodec) Decode([]byte) string { return "" }
