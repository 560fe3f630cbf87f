package value

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"separators only", " ,\t\n", nil},
		{"spaces", "1 2 3", []string{"1", "2", "3"}},
		{"commas", "1,2,3", []string{"1", "2", "3"}},
		{"mixed", " 1 ,2,, 3 ", []string{"1", "2", "3"}},
		{"quoted", `"a b" "c"`, []string{"a b", "c"}},
		{"empty quoted", `"" "x"`, []string{"", "x"}},
		{"escapes", `"say \"hi\"" "a\\b"`, []string{`say "hi"`, `a\b`}},
		{"lone backslash kept", `"a\nb"`, []string{`a\nb`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize_UnterminatedQuote(t *testing.T) {
	_, err := Tokenize(`"abc`)
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestParseSequence(t *testing.T) {
	got, err := ParseSequence(Int32, "1, 2 3")
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, got)

	got, err = ParseSequence(Int32, "")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	_, err = ParseSequence(Int32, "1 x 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element 1")
}

func TestFormatSequence(t *testing.T) {
	assert.Equal(t, "1 2 3", FormatSequence(Int32, []int32{1, 2, 3}, " "))
	assert.Equal(t, "1, 2", FormatSequence(Int32, []int32{1, 2}, ", "))
	assert.Equal(t, "", FormatSequence(Int32, nil, " "))
	assert.Equal(t, `"a b" "c\"d"`, FormatSequence(String, []string{"a b", `c"d`}, " "))
	assert.Equal(t, "TRUE FALSE", FormatSequence(Bool, []bool{true, false}, " "))
}

func TestSequenceRoundTrip_Strings(t *testing.T) {
	in := []string{"", "one", "two words", `q"uote`, `back\`}
	got, err := ParseSequence(String, FormatSequence(String, in, " "))
	require.NoError(t, err)
	assert.Equal(t, in, got)
}

func TestEqualSequence(t *testing.T) {
	assert.True(t, EqualSequence(Int32, []int32{1, 2}, []int32{1, 2}))
	assert.False(t, EqualSequence(Int32, []int32{1, 2}, []int32{2, 1}))
	assert.False(t, EqualSequence(Int32, []int32{1}, []int32{1, 2}))
	assert.True(t, EqualSequence(Int32, nil, []int32{}))
}
