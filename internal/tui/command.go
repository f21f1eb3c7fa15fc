package tui

import (
	"errors"
	"strings"
)

// ErrComposeSyntax is returned for composer input not of the form "to: text".
var ErrComposeSyntax = errors.New(`expected "<phone>: <text>"`)

// Compose is a parsed composer line.
type Compose struct {
	To   string
	Text string
}

// ParseCompose splits "15551234: hello there" into recipient and text. A
// leading '+' and spaces in the number are dropped.
func ParseCompose(input string) (Compose, error) {
	to, text, ok := strings.Cut(input, ":")
	if !ok {
		return Compose{}, ErrComposeSyntax
	}
	to = strings.ReplaceAll(strings.TrimPrefix(strings.TrimSpace(to), "+"), " ", "")
	text = strings.TrimSpace(text)
	if to == "" || text == "" {
		return Compose{}, ErrComposeSyntax
	}
	return Compose{To: to, Text: text}, nil
}
