// Package objdef owns the canonical treatment of object definitions and
// names: normalization, hashing, and the case-insensitive key used by the
// extractor, detector and comparator. Anything that compares two definitions
// or looks up an object by full name goes through here.
package objdef

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalises a definition for hashing and diffing: CRLF becomes
// LF, every line is right-trimmed, blank-only lines are dropped, and the
// remaining lines are joined with LF. Normalize is idempotent.
func Normalize(definition string) string {
	if definition == "" {
		return ""
	}
	definition = strings.ReplaceAll(definition, "\r\n", "\n")
	lines := strings.Split(definition, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// Hash returns the hex SHA-256 of the UTF-8 bytes of the normalized
// definition. Hash equality is the canonical equality of two definitions;
// objects without a definition all hash to the empty-definition hash.
func Hash(definition string) string {
	sum := sha256.Sum256([]byte(Normalize(definition)))
	return hex.EncodeToString(sum[:])
}

// Key returns the ASCII-lowercased form of a full name. All fullName lookups,
// map merges and change detection key on this form.
func Key(fullName string) string {
	b := []byte(fullName)
	changed := false
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
			changed = true
		}
	}
	if !changed {
		return fullName
	}
	return string(b)
}

// KeysEqual reports ASCII-case-insensitive equality of two full names.
func KeysEqual(a, b string) bool {
	return Key(a) == Key(b)
}
