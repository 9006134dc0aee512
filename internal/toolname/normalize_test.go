package toolname

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

var validName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)

func TestNormaliseValidNamesPassThroughUnchanged(t *testing.T) {
	cases := []string{
		"get_weather",
		"lookup-record",
		"fetch.user.profile",
		"_leading_underscore",
		"a",
	}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, name, Normalise(name))
		})
	}
}

func TestNormaliseEmptyStringBecomesUnderscore(t *testing.T) {
	assert.Equal(t, "_", Normalise(""))
}

func TestNormaliseReplacesInvalidCharsAndAppendsHashSuffix(t *testing.T) {
	cases := map[string]string{
		"weird name!": "weird_name_c3ead39e",
		"123abc":      "_123abc_dd130a84",
	}
	for in, want := range cases {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, Normalise(in))
		})
	}
}

func TestNormaliseOutputAlwaysMatchesGeminiGrammar(t *testing.T) {
	cases := []string{
		"", "!!!", "123", "-leading-dash", ".leading.dot", "has space",
		"trailing_underscore_", "____", "héllo wörld", strings.Repeat("x!", 50),
	}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			out := Normalise(name)
			assert.True(t, validName.MatchString(out), "Normalise(%q) = %q does not match the Gemini function-name grammar", name, out)
			assert.LessOrEqual(t, len(out), maxLen)
		})
	}
}

func TestNormaliseIsIdempotent(t *testing.T) {
	cases := []string{"get_weather", "weird name!", "123abc", "-leading-dash", strings.Repeat("z", 100)}
	for _, name := range cases {
		t.Run(name, func(t *testing.T) {
			once := Normalise(name)
			twice := Normalise(once)
			assert.Equal(t, once, twice)
		})
	}
}

// TestNormaliseDistinctCollidingNamesGetDistinctSuffixes verifies the
// uniqueness-suffix invariant: two different original names that collapse
// to the same sanitised base (because their only invalid characters differ)
// must still end up with different normalised names.
func TestNormaliseDistinctCollidingNamesGetDistinctSuffixes(t *testing.T) {
	a := Normalise("a!b")
	b := Normalise("a@b")
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "a_b"))
	assert.True(t, strings.HasPrefix(b, "a_b"))
}

func TestNormaliseTruncatesLongNamesToMaxLen(t *testing.T) {
	long := strings.Repeat("tool_", 20) // well over 64 chars, all valid
	out := Normalise(long)
	assert.LessOrEqual(t, len(out), maxLen)
	assert.True(t, validName.MatchString(out))
}

func TestNormaliseTruncationLeavesRoomForSuffix(t *testing.T) {
	long := strings.Repeat("x", 100) + "!" // forces the changed/suffix path
	out := Normalise(long)
	assert.LessOrEqual(t, len(out), maxLen)
	assert.True(t, validName.MatchString(out))
	assert.Len(t, out[len(out)-9:], 9) // "_" + 8 hex chars fit within maxLen
}
