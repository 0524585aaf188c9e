package framework

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	for _, s := range []string{"1", "1.0", "2.0.1", " 3.4 "} {
		t.Run(s, func(t *testing.T) {
			v, err := ParseVersion(s)
			require.NoError(t, err)
			assert.True(t, v.IsDefined())
		})
	}
	for _, s := range []string{"", "1.a", "1.-2", "1..2", "v1"} {
		t.Run("invalid "+s, func(t *testing.T) {
			_, err := ParseVersion(s)
			assert.Error(t, err)
		})
	}
}

func TestVersionComparisonIsNumeric(t *testing.T) {
	assert.True(t, MustParseVersion("1.2").IsBelow(MustParseVersion("1.10")))
	assert.True(t, MustParseVersion("1.10").IsAbove(MustParseVersion("1.9")))
	assert.True(t, MustParseVersion("2").IsAbove(MustParseVersion("1.99.99")))
}

func TestPrefixEqualVersionsAreEqual(t *testing.T) {
	assert.True(t, MustParseVersion("2").Equals(MustParseVersion("2.0.1")))
	assert.Equal(t, 0, MustParseVersion("1.0.0").Compare(MustParseVersion("1")))
}

func TestVersionOrderingIsConsistent(t *testing.T) {
	versions := []Version{
		MustParseVersion("0.9"),
		MustParseVersion("1"),
		MustParseVersion("1.0.5"),
		MustParseVersion("1.2"),
		MustParseVersion("1.10"),
		MustParseVersion("2.0"),
	}
	for _, a := range versions {
		for _, b := range versions {
			assert.Equal(t, -a.Compare(b), b.Compare(a), "%s vs %s", a, b)
			for _, c := range versions {
				if a.IsBelow(b) && b.IsBelow(c) {
					assert.True(t, a.IsBelow(c), "%s < %s < %s", a, b, c)
				}
			}
		}
	}
}

func TestVersionString(t *testing.T) {
	assert.Equal(t, "1.10.0", MustParseVersion("1.10.0").String())
	assert.False(t, Version{}.IsDefined())
}
