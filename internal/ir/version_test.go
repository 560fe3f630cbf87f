package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPassVersion(t *testing.T) {
	require.NoError(t, CheckPassVersion("p1", IRVersion))

	err := CheckPassVersion("p1", "0")
	var versionErr *VersionError
	require.ErrorAs(t, err, &versionErr)
	assert.Equal(t, "p1", versionErr.Pass)
	assert.Equal(t, "pass p1 was recorded with IR v0, this build reads v1", err.Error())
}
