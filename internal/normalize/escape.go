package normalize

import (
	"fmt"
	"strings"
	"unicode"
)

// MarkerPrefix starts every escape marker.
const MarkerPrefix = "<0x"

// escapeTable holds the marker for each ASCII code point, or "" when the
// code point is printable and passes through unchanged.
var escapeTable = buildEscapeTable()

func buildEscapeTable() [128]string {
	var t [128]string
	for i := 0; i < 128; i++ {
		if !unicode.IsPrint(rune(i)) {
			t[i] = fmt.Sprintf("<0x%02X>", i)
		}
	}
	return t
}

// IsNonPrintable reports whether r is an ASCII code point without a visible
// glyph (0x00-0x1F and 0x7F). Runes outside ASCII are never non-printable.
func IsNonPrintable(r rune) bool {
	return r >= 0 && r < 128 && escapeTable[r] != ""
}

// EscapeRune returns the marker for r, or r itself as a string.
func EscapeRune(r rune) string {
	if IsNonPrintable(r) {
		return escapeTable[r]
	}
	return string(r)
}

// EscapeString replaces every non-printable ASCII character in s with its
// marker. Markers consist of printable characters only, so escaping an
// already escaped string is a no-op.
func EscapeString(s string) string {
	escaped, _ := escapeCount(s)
	return escaped
}

// escapeCount is EscapeString that also reports how many characters were
// replaced. It returns s unchanged (no allocation) when nothing needs
// escaping. It works on bytes: in UTF-8 every byte below 0x80 is a whole
// character, so multi-byte sequences are copied through untouched.
func escapeCount(s string) (string, int) {
	first := -1
	for i := 0; i < len(s); i++ {
		if s[i] < 0x80 && escapeTable[s[i]] != "" {
			first = i
			break
		}
	}
	if first < 0 {
		return s, 0
	}

	var b strings.Builder
	b.Grow(len(s) + 8)
	b.WriteString(s[:first])

	n := 0
	for i := first; i < len(s); i++ {
		c := s[i]
		if c < 0x80 && escapeTable[c] != "" {
			b.WriteString(escapeTable[c])
			n++
			continue
		}
		b.WriteByte(c)
	}
	return b.String(), n
}
