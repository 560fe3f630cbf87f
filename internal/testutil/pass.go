package testutil

import "github.com/roach88/fieldnet/internal/engine"

var _ engine.PassTokenGenerator = (*FixedPassGenerator)(nil)

// DefaultPassToken is used when a scenario does not name its pass token.
const DefaultPassToken = "test-pass-default"

// FixedPassGenerator returns the same pass token for every pass, so a
// scenario's trace is byte-identical from run to run whatever number of
// passes it opens. engine.FixedGenerator, by contrast, hands out a list of
// tokens once each.
//
// Thread-safety: FixedPassGenerator is immutable and safe for concurrent use.
type FixedPassGenerator struct {
	token string
}

// NewFixedPassGenerator creates a generator for token, or for
// DefaultPassToken if token is empty.
func NewFixedPassGenerator(token string) *FixedPassGenerator {
	if token == "" {
		token = DefaultPassToken
	}
	return &FixedPassGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedPassGenerator) Generate() string {
	return g.token
}
