package views

import (
	"strings"
	"unicode/utf8"
)

// sanitizeForTerminal drops codepoints tcell cannot lay out: skin tone
// modifiers, zero width joiners, variation selectors, and C0 controls other
// than tab. Joined emoji fall apart into their base glyphs.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if !isProblematicRune(r) {
			b.WriteRune(r)
		}
		i += size
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	case r < 0x20 && r != '\t':
		return true
	default:
		return false
	}
}
