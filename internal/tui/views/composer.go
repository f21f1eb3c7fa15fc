package views

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Composer is the "to: text" input line.
type Composer struct {
	*tview.InputField
	onSend func(line string)
}

// NewComposer creates a composer.
func NewComposer() *Composer {
	input := tview.NewInputField().
		SetLabel(" send > ").
		SetPlaceholder("15551234: hello").
		SetFieldWidth(0)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && c.onSend != nil {
			if line := c.GetText(); line != "" {
				c.onSend(line)
				c.SetText("")
			}
		}
	})

	return c
}

// SetOnSend sets the callback for a submitted line.
func (c *Composer) SetOnSend(fn func(line string)) {
	c.onSend = fn
}
