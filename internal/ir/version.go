package ir

import "fmt"

const (
	// IRVersion is stamped on every recorded pass. It changes whenever the
	// meaning of a stored event, snapshot or scene hash changes.
	IRVersion = "1"

	// EngineVersion is informational only.
	EngineVersion = "0.1.0"
)

// VersionError reports a trace recorded under another IR version. Such a
// trace cannot be replayed or compared with snapshots taken now.
type VersionError struct {
	Pass    string
	Version string
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("pass %s was recorded with IR v%s, this build reads v%s", e.Pass, e.Version, IRVersion)
}

// CheckPassVersion returns a *VersionError unless version is IRVersion.
func CheckPassVersion(pass, version string) error {
	if version != IRVersion {
		return &VersionError{Pass: pass, Version: version}
	}
	return nil
}
