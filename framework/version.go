package framework

import (
	"fmt"
	"strconv"
	"strings"
)

// Version is a dotted sequence of non-negative integers, such as "1.0.2". Versions are
// compared numerically segment by segment, so "1.10" is above "1.2". When one version is
// a prefix of the other they compare equal: "2" and "2.0.1" are the same version for the
// purpose of range checks.
//
// The zero value is an undefined version; see IsDefined.
type Version struct {
	segments []int
}

// ParseVersion parses a dot-separated version string.
func ParseVersion(s string) (Version, error) {
	if strings.TrimSpace(s) == "" {
		return Version{}, fmt.Errorf("invalid version %q: empty", s)
	}
	parts := strings.Split(strings.TrimSpace(s), ".")
	segments := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version %q: segment %q is not a number", s, p)
		}
		if n < 0 {
			return Version{}, fmt.Errorf("invalid version %q: segment %q is negative", s, p)
		}
		segments = append(segments, n)
	}
	return Version{segments: segments}, nil
}

// MustParseVersion is like ParseVersion but panics on error. It is meant for constants.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) IsDefined() bool {
	return len(v.segments) != 0
}

// Compare returns -1, 0, or 1.
func (v Version) Compare(other Version) int {
	n := len(v.segments)
	if len(other.segments) < n {
		n = len(other.segments)
	}
	for i := 0; i < n; i++ {
		switch {
		case v.segments[i] < other.segments[i]:
			return -1
		case v.segments[i] > other.segments[i]:
			return 1
		}
	}
	return 0
}

func (v Version) IsBelow(other Version) bool { return v.Compare(other) < 0 }

func (v Version) IsAbove(other Version) bool { return v.Compare(other) > 0 }

func (v Version) Equals(other Version) bool { return v.Compare(other) == 0 }

func (v Version) String() string {
	parts := make([]string, len(v.segments))
	for i, s := range v.segments {
		parts[i] = strconv.Itoa(s)
	}
	return strings.Join(parts, ".")
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}
