package value

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnterminatedQuote is returned when a quoted token has no closing quote.
var ErrUnterminatedQuote = errors.New("unterminated quoted token")

// Tokenize splits a sequence into element tokens.
//
// Tokens are separated by any run of whitespace and commas. A token that
// starts with a double quote runs to the matching unescaped quote; inside
// it \" and \\ are unescaped. Quoted tokens may be empty.
func Tokenize(s string) ([]string, error) {
	var tokens []string
	i := 0
	for i < len(s) {
		c := s[i]
		if isSeparator(c) {
			i++
			continue
		}
		if c == '"' {
			tok, next, err := readQuoted(s, i+1)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i = next
			continue
		}
		start := i
		for i < len(s) && !isSeparator(s[i]) {
			i++
		}
		tokens = append(tokens, s[start:i])
	}
	return tokens, nil
}

func isSeparator(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', ',':
		return true
	}
	return false
}

// readQuoted reads from just after an opening quote and returns the
// unescaped body and the index just past the closing quote.
func readQuoted(s string, i int) (string, int, error) {
	var b strings.Builder
	for i < len(s) {
		c := s[i]
		switch c {
		case '\\':
			if i+1 < len(s) && (s[i+1] == '"' || s[i+1] == '\\') {
				b.WriteByte(s[i+1])
				i += 2
				continue
			}
			b.WriteByte(c)
		case '"':
			return b.String(), i + 1, nil
		default:
			b.WriteByte(c)
		}
		i++
	}
	return "", 0, ErrUnterminatedQuote
}

// Quote wraps s in double quotes, escaping embedded quotes and backslashes.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if s[i] == '"' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// ParseSequence parses a separator-delimited sequence of values.
// An empty or all-separator input yields an empty, non-nil slice.
func ParseSequence[T any](c Codec[T], s string) ([]T, error) {
	tokens, err := Tokenize(s)
	if err != nil {
		return nil, &ParseError{Type: "MF" + c.TypeName(), Input: s, Err: err}
	}
	out := make([]T, 0, len(tokens))
	for i, tok := range tokens {
		v, err := c.Parse(tok)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FormatSequence writes values joined by sep. Quoted codecs quote every
// element so that the output parses back to the same sequence.
func FormatSequence[T any](c Codec[T], vs []T, sep string) string {
	if len(vs) == 0 {
		return ""
	}
	var b strings.Builder
	for i, v := range vs {
		if i > 0 {
			b.WriteString(sep)
		}
		if c.Quoted() {
			b.WriteString(Quote(c.Format(v)))
		} else {
			b.WriteString(c.Format(v))
		}
	}
	return b.String()
}

// EqualSequence reports whether two sequences hold equal elements in order.
func EqualSequence[T any](c Codec[T], a, b []T) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !c.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
