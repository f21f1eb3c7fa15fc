package views

import (
	"fmt"

	"github.com/matheus3301/wabiz/internal/tui/model"
	"github.com/rivo/tview"
)

// Feed is the scrolling live bus-event pane.
type Feed struct {
	*tview.TextView
}

// NewFeed creates the feed pane.
func NewFeed() *Feed {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true).
		SetMaxLines(model.FeedCapacity)
	tv.SetBorder(true).SetTitle(" Live ")
	return &Feed{TextView: tv}
}

// Append adds one formatted line.
func (f *Feed) Append(line string) {
	_, _ = fmt.Fprintln(f, tview.Escape(sanitizeForTerminal(line)))
	f.ScrollToEnd()
}
