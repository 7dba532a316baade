package engine

import "fmt"

// ChangeClass ranks the significance of an amend operation.
type ChangeClass int

const (
	ChangePatch ChangeClass = iota
	ChangeMinor
	ChangeMajor
)

// significantFields escalate an amend from a patch to a minor bump.
var significantFields = map[string]bool{
	"affected_regions": true,
	"key_variables":    true,
	"stakeholders":     true,
	"timeline":         true,
}

// ChangeClassFor picks the version bump class for an amend. Major is never
// chosen automatically; it is reserved for explicit major operations.
func ChangeClassFor(changedFields []string) ChangeClass {
	for _, f := range changedFields {
		if significantFields[f] {
			return ChangeMinor
		}
	}
	return ChangePatch
}

// BumpVersion parses a MAJOR.MINOR.PATCH string, applies the bump and returns
// the recombined string plus the three components. A malformed current version
// degrades to 1.0.0 rather than failing the caller.
func BumpVersion(current string, class ChangeClass) (string, int, int, int) {
	major, minor, patch := parseVersion(current)
	switch class {
	case ChangeMajor:
		major++
		minor = 0
		patch = 0
	case ChangeMinor:
		minor++
		patch = 0
	default:
		patch++
	}
	return fmt.Sprintf("%d.%d.%d", major, minor, patch), major, minor, patch
}

func parseVersion(v string) (int, int, int) {
	var major, minor, patch int
	if n, err := fmt.Sscanf(v, "%d.%d.%d", &major, &minor, &patch); err != nil || n != 3 {
		return 1, 0, 0
	}
	if major < 0 || minor < 0 || patch < 0 {
		return 1, 0, 0
	}
	return major, minor, patch
}

// FormatVersion stringifies the three components; the four version fields on a
// scenario must always agree with it.
func FormatVersion(major, minor, patch int) string {
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}
