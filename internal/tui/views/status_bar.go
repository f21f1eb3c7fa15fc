package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wabiz/internal/api"
	"github.com/rivo/tview"
)

// StatusBar shows instance counters, key hints and the flash message.
type StatusBar struct {
	*tview.TextView
	instance string
	status   *api.Status
	hints    []string
	flash    string
	flashErr bool
}

// NewStatusBar creates a status bar for instance.
func NewStatusBar(instance string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	sb := &StatusBar{TextView: tv, instance: instance}
	sb.render()
	return sb
}

// SetStatus updates the counters. A nil status shows the daemon as unreachable.
func (sb *StatusBar) SetStatus(st *api.Status) {
	sb.status = st
	sb.render()
}

// SetHints replaces the key hints.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message.
func (sb *StatusBar) SetFlash(msg string, isErr bool) {
	sb.flash = msg
	sb.flashErr = isErr
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, StatusLine(sb.instance, sb.status, time.Now()))
	if len(sb.hints) > 0 {
		_, _ = fmt.Fprintf(sb, " | [::d]%s[-:-:-]", strings.Join(sb.hints, " "))
	}
	if sb.flash != "" {
		color := "yellow"
		if sb.flashErr {
			color = "red"
		}
		_, _ = fmt.Fprintf(sb, " | [%s]%s[-]", color, tview.Escape(sb.flash))
	}
}

// StatusLine formats the left part of the status bar.
func StatusLine(instance string, st *api.Status, now time.Time) string {
	if st == nil {
		return fmt.Sprintf(" [::b]%s[-:-:-] | [red]daemon unreachable[-] | %s", instance, now.Format("15:04"))
	}
	return fmt.Sprintf(" [::b]%s[-:-:-] | users %d sockets %d | events %d/%d | msgs %d | %s",
		instance, st.RegisteredUsers, st.OpenSockets, st.EventLogLen, st.EventLogCap, st.MessageCount, now.Format("15:04"))
}
