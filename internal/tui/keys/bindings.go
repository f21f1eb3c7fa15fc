// Package keys maps console key presses to actions.
package keys

import "github.com/gdamore/tcell/v2"

// Action is one key binding.
type Action struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func()
}

// Matches reports whether ev triggers the action.
func (a *Action) Matches(ev *tcell.EventKey) bool {
	if a.Key != tcell.KeyRune {
		return ev.Key() == a.Key
	}
	return ev.Key() == tcell.KeyRune && ev.Rune() == a.Rune
}

// Registry holds bindings in registration order. Pane bindings win over
// global ones.
type Registry struct {
	global []*Action
	panes  map[string][]*Action
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{panes: make(map[string][]*Action)}
}

// AddGlobal registers a binding active in every pane.
func (r *Registry) AddGlobal(a *Action) {
	r.global = append(r.global, a)
}

// AddPane registers a binding active only while pane has focus.
func (r *Registry) AddPane(pane string, a *Action) {
	r.panes[pane] = append(r.panes[pane], a)
}

// Hints returns the descriptions shown in the status bar for pane.
func (r *Registry) Hints(pane string) []string {
	var hints []string
	for _, a := range r.panes[pane] {
		if a.Description != "" {
			hints = append(hints, a.Description)
		}
	}
	for _, a := range r.global {
		if a.Description != "" {
			hints = append(hints, a.Description)
		}
	}
	return hints
}

// HandleEvent runs the first matching action and reports whether one ran.
func (r *Registry) HandleEvent(pane string, ev *tcell.EventKey) bool {
	for _, a := range r.panes[pane] {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	for _, a := range r.global {
		if a.Matches(ev) {
			a.Handler()
			return true
		}
	}
	return false
}
