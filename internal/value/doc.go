// Package value implements the value containers held by fields.
//
// A Codec knows everything the field core needs about one value type:
// its canonical text grammar (Parse/Format), its equality, and its fixed
// raw size for the type-erased byte bridge. The field package is generic
// over T and never inspects values itself; all (de)serialization goes
// through a Codec.
//
// Text grammar:
//   - Bool: TRUE or FALSE (lower case accepted on input)
//   - Int32: decimal, or hexadecimal with a 0x prefix
//   - Float, Double, Time: any Go float literal; formatted with the
//     shortest representation that parses back to the same value
//   - String: the raw text for a single value; double-quoted tokens with
//     \" and \\ escapes inside a sequence
//
// Sequences are tokens separated by whitespace and/or commas.
//
// This package imports nothing internal.
package value
