package keys

import (
	"reflect"
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestHandleEventPanePrecedence(t *testing.T) {
	r := NewRegistry()
	var got string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:refresh", Handler: func() { got = "global" }})
	r.AddPane("events", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:reload", Handler: func() { got = "pane" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'r', tcell.ModNone)
	if !r.HandleEvent("events", ev) || got != "pane" {
		t.Errorf("events pane: handled by %q, want pane", got)
	}
	if !r.HandleEvent("feed", ev) || got != "global" {
		t.Errorf("feed pane: handled by %q, want global", got)
	}
	if r.HandleEvent("feed", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key reported as handled")
	}
}

func TestSpecialKeys(t *testing.T) {
	r := NewRegistry()
	called := false
	r.AddGlobal(&Action{Key: tcell.KeyTab, Handler: func() { called = true }})

	if !r.HandleEvent("feed", tcell.NewEventKey(tcell.KeyTab, 0, tcell.ModNone)) || !called {
		t.Error("Tab not dispatched")
	}
	if r.HandleEvent("feed", tcell.NewEventKey(tcell.KeyRune, 't', tcell.ModNone)) {
		t.Error("rune matched a special-key binding")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Description: "q:quit", Handler: func() {}})
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'i', Description: "i:compose", Handler: func() {}})
	r.AddGlobal(&Action{Key: tcell.KeyTab, Handler: func() {}})
	r.AddPane("events", &Action{Key: tcell.KeyRune, Rune: 'r', Description: "r:reload", Handler: func() {}})

	want := []string{"r:reload", "q:quit", "i:compose"}
	if got := r.Hints("events"); !reflect.DeepEqual(got, want) {
		t.Errorf("Hints() = %v, want %v", got, want)
	}
}
