package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// componentCount is the number of numeric components in a canonical agent or extension version
const componentCount = 4

// ErrMalformed is returned when a version string cannot be normalized to four numeric components
var ErrMalformed = errors.New("malformed version")

// Ordering is the outcome of comparing two version strings
type Ordering int

const (
	// Incomparable means at least one side could not be parsed; callers must flag it for manual review
	Incomparable Ordering = iota
	// Less means the left version is older than the right one
	Less
	// Equal means both versions normalize to the same tuple
	Equal
	// Greater means the left version is newer than the right one
	Greater
)

// String returns a readable name for the ordering
func (o Ordering) String() string {
	switch o {
	case Less:
		return "Less"
	case Equal:
		return "Equal"
	case Greater:
		return "Greater"
	default:
		return "Incomparable"
	}
}

// Version is a canonical (major, minor, build, revision) tuple with the string it was parsed from.
// Two-component Windows versions and four-component Linux package versions share this form,
// missing trailing components are padded with 0.
type Version struct {
	Major    int
	Minor    int
	Build    int
	Revision int
	Original string
}

// Parse normalizes a dotted version string such as "1.45" or "1.45.02714.1234"
func Parse(s string) (Version, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrMalformed)
	}

	parts := strings.Split(trimmed, ".")
	if len(parts) > componentCount {
		return Version{}, fmt.Errorf("%w: %q has more than %d components", ErrMalformed, s, componentCount)
	}

	var components [componentCount]int
	for i, part := range parts {
		if !isDigits(part) {
			return Version{}, fmt.Errorf("%w: %q has non-numeric component %q", ErrMalformed, s, part)
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q has non-numeric component %q", ErrMalformed, s, part)
		}
		components[i] = n
	}

	return Version{
		Major:    components[0],
		Minor:    components[1],
		Build:    components[2],
		Revision: components[3],
		Original: s,
	}, nil
}

// Compare orders two parsed versions lexicographically over their tuples.
// It returns -1, 0 or 1.
func (v Version) Compare(other Version) int {
	a := v.tuple()
	b := other.tuple()
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

// LessThan reports whether v is strictly older than other
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// String renders the canonical four-component form
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Build, v.Revision)
}

// isDigits reports whether s is a non-empty run of ASCII digits
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (v Version) tuple() [componentCount]int {
	return [componentCount]int{v.Major, v.Minor, v.Build, v.Revision}
}

// Compare parses both strings and orders them. A malformed side yields Incomparable.
func Compare(a, b string) Ordering {
	va, err := Parse(a)
	if err != nil {
		return Incomparable
	}
	vb, err := Parse(b)
	if err != nil {
		return Incomparable
	}

	switch va.Compare(vb) {
	case -1:
		return Less
	case 1:
		return Greater
	default:
		return Equal
	}
}

// Max returns the greatest well-formed version among the candidates.
// Malformed candidates are skipped; ok is false when none parse.
func Max(candidates ...string) (string, bool) {
	var best Version
	found := false
	for _, c := range candidates {
		v, err := Parse(c)
		if err != nil {
			continue
		}
		if !found || best.LessThan(v) {
			best = v
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best.Original, true
}
