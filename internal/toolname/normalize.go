// Package toolname implements the function-call name normalisation
// algorithm Gemini's wire format requires: `^[A-Za-z_][A-Za-z0-9_.\-]*$`,
// at most 64 characters (spec §4.1).
package toolname

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var invalidChar = regexp.MustCompile(`[^A-Za-z0-9_.\-]`)
var runsOfUnderscore = regexp.MustCompile(`_+`)

const maxLen = 64

// Normalise rewrites name to satisfy Gemini's function-name grammar. If
// sanitising changed the name, an 8-hex-char suffix derived from
// SHA-256(original) is appended so that two different originals which
// collapse to the same sanitised prefix still end up distinct. A name that
// is already valid is only cut to 64 characters, with no suffix.
func Normalise(name string) string {
	if name == "" {
		name = "_"
	}

	original := name
	changed := false

	// Replace every invalid character with '_'.
	sanitised := invalidChar.ReplaceAllStringFunc(name, func(string) string {
		changed = true
		return "_"
	})

	// Collapse runs of '_'.
	collapsed := runsOfUnderscore.ReplaceAllString(sanitised, "_")
	if collapsed != sanitised {
		changed = true
	}
	sanitised = collapsed

	// Leading character must be an ASCII letter or '_'. A leading '.' or
	// '-' is replaced in place rather than prefixed (special case); any
	// other invalid leader is prefixed with '_'.
	if len(sanitised) > 0 {
		lead := sanitised[0]
		switch {
		case isLetter(lead) || lead == '_':
			// fine
		case lead == '.' || lead == '-':
			sanitised = "_" + sanitised[1:]
			changed = true
		default:
			sanitised = "_" + sanitised
			changed = true
		}
	} else {
		sanitised = "_"
		changed = true
	}

	// Trim trailing '_'.
	trimmed := strings.TrimRight(sanitised, "_")
	if trimmed == "" {
		trimmed = "_"
	}
	if trimmed != sanitised {
		changed = true
	}
	sanitised = trimmed

	// Trim leading '_' unless the original started with '_'.
	if !strings.HasPrefix(original, "_") {
		withoutLeading := strings.TrimLeft(sanitised, "_")
		if withoutLeading == "" {
			withoutLeading = "_"
		}
		if withoutLeading != sanitised {
			changed = true
		}
		sanitised = withoutLeading
		// re-check leading char validity after stripping underscores
		if len(sanitised) > 0 && !isLetter(sanitised[0]) && sanitised[0] != '_' {
			sanitised = "_" + sanitised
			changed = true
		}
	}

	if !changed && sanitised == original {
		if len(sanitised) > maxLen {
			sanitised = sanitised[:maxLen]
		}
		return sanitised
	}

	suffix := "_" + shortHash(original)
	sanitised = truncateForSuffix(sanitised, suffix) + suffix
	if len(sanitised) > maxLen {
		sanitised = sanitised[:maxLen]
	}
	return sanitised
}

func truncateForSuffix(base, suffix string) string {
	maxBase := maxLen - len(suffix)
	if maxBase < 1 {
		maxBase = 1
	}
	if len(base) > maxBase {
		base = base[:maxBase]
	}
	return strings.TrimRight(base, "_")
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

func isLetter(b byte) bool {
	return (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}
