// Package semver implements the simple major.minor.patch comparison the
// update procedure gates bundle execution on (§4.11 step 4).
package semver

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a parsed major.minor.patch triple. Pre-release and build
// metadata suffixes are not supported; the update bundles this project
// gates on only ever carry plain major.minor.patch strings.
type Version struct {
	Major, Minor, Patch int
}

// Parse parses "X.Y.Z" into a Version.
func Parse(s string) (Version, error) {
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("semver: %q is not major.minor.patch", s)
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("semver: %q is not major.minor.patch: %w", s, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Compare returns -1, 0, or 1 as a is less than, equal to, or greater
// than b.
func Compare(a, b Version) int {
	switch {
	case a.Major != b.Major:
		return sign(a.Major - b.Major)
	case a.Minor != b.Minor:
		return sign(a.Minor - b.Minor)
	default:
		return sign(a.Patch - b.Patch)
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Greater reports whether a > b.
func Greater(a, b Version) bool { return Compare(a, b) > 0 }

// LessOrEqual reports whether a <= b.
func LessOrEqual(a, b Version) bool { return Compare(a, b) <= 0 }

// Equal reports whether a == b.
func Equal(a, b Version) bool { return Compare(a, b) == 0 }

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
