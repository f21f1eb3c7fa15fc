package views

import (
	"fmt"

	"github.com/matheus3301/wabiz/internal/eventlog"
	"github.com/matheus3301/wabiz/internal/webhook"
	"github.com/rivo/tview"
)

// EventTable lists the buffered webhook events, newest first.
type EventTable struct {
	*tview.Table
}

// NewEventTable creates the event log pane.
func NewEventTable() *EventTable {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Webhook events ")
	return &EventTable{Table: table}
}

// Update redraws the table from entries (oldest first).
func (et *EventTable) Update(entries []eventlog.Entry) {
	et.Clear()
	et.SetTitle(fmt.Sprintf(" Webhook events (%d) ", len(entries)))

	for col, h := range []string{" #", " Time", " Kind", " From/To", " Detail"} {
		et.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	}

	for i := range entries {
		e := entries[len(entries)-1-i]
		row := i + 1
		et.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf(" %d", e.Seq)))
		et.SetCell(row, 1, tview.NewTableCell(" "+e.ReceivedAt.Local().Format("15:04:05")))
		et.SetCell(row, 2, tview.NewTableCell(" "+string(e.Event.Kind)))
		et.SetCell(row, 3, tview.NewTableCell(" "+e.Event.ConversationID).SetMaxWidth(20))
		et.SetCell(row, 4, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(EventDetail(e.Event)))).SetMaxWidth(50).SetExpansion(1))
	}
}

// EventDetail summarizes an event for one table cell.
func EventDetail(evt webhook.Event) string {
	switch {
	case evt.Message != nil && evt.Message.Text != "":
		return evt.Message.Text
	case evt.Message != nil:
		return "<" + evt.Message.Type + ">"
	case evt.Status != nil && evt.Status.Error != "":
		return evt.Status.Status + ": " + evt.Status.Error
	case evt.Status != nil:
		return evt.Status.Status
	}
	return ""
}
