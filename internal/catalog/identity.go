package catalog

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// NormalizeName lowercases a name, strips punctuation and trademark noise,
// and collapses runs of whitespace, so the same physical product hashes to
// the same identity key across sources.
func NormalizeName(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// IdentityKey derives the deterministic deduplication key for a physical
// product. When a set-number-like field is present the key is a function of
// the normalized name and set number; otherwise it falls back to a hash of
// the normalized name and theme.
func IdentityKey(name, setNumber, theme string) string {
	var material string
	if n := NormalizeName(setNumber); n != "" {
		material = "set|" + NormalizeName(name) + "|" + n
	} else {
		material = "name|" + NormalizeName(name) + "|" + NormalizeName(theme)
	}
	sum := sha256.Sum256([]byte(material))
	return hex.EncodeToString(sum[:16])
}
