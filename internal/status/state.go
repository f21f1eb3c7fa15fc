package status

import (
	"fmt"
	"slices"
)

// Status is the delivery state of a persisted message.
type Status string

const (
	Pending   Status = "pending"
	Sent      Status = "sent"
	Delivered Status = "delivered"
	Read      Status = "read"
	Failed    Status = "failed"
)

// forward lists the transitions a well-behaved provider produces.
// Failed is terminal.
var forward = map[Status][]Status{
	Pending:   {Sent, Delivered, Read, Failed},
	Sent:      {Delivered, Read, Failed},
	Delivered: {Read, Failed},
	Read:      {},
	Failed:    {},
}

// Parse converts a provider status string. Unknown values are returned with ok=false.
func Parse(s string) (Status, bool) {
	st := Status(s)
	_, ok := forward[st]
	return st, ok
}

// IsTerminal reports whether no forward transition leaves st.
func (st Status) IsTerminal() bool {
	return len(forward[st]) == 0
}

// Check reports whether moving from -> to is a forward transition.
// Repeating the current status is not an error.
// Callers apply the update regardless; Check only feeds diagnostics.
func Check(from, to Status) error {
	if from == to {
		return nil
	}
	if _, ok := forward[to]; !ok {
		return fmt.Errorf("unknown status %q", to)
	}
	allowed, ok := forward[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !slices.Contains(allowed, to) {
		return fmt.Errorf("status regression from %s to %s", from, to)
	}
	return nil
}
