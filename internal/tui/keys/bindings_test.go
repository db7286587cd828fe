package keys

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestViewBindingShadowsGlobal(t *testing.T) {
	r := NewRegistry()
	var hit string
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'd', Label: "d", Description: "Downloads", Visible: true, Handler: func() { hit = "global" }})
	r.AddView("media", &Action{Key: tcell.KeyRune, Rune: 'd', Label: "d", Description: "Download", Visible: true, Handler: func() { hit = "view" }})

	ev := tcell.NewEventKey(tcell.KeyRune, 'd', tcell.ModNone)
	if !r.HandleEvent("media", ev) || hit != "view" {
		t.Errorf("media page hit = %q, want view", hit)
	}
	if !r.HandleEvent("chats", ev) || hit != "global" {
		t.Errorf("chats page hit = %q, want global", hit)
	}
	if r.HandleEvent("chats", tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)) {
		t.Error("unbound key reported as handled")
	}
}

func TestHintsOrder(t *testing.T) {
	r := NewRegistry()
	r.AddGlobal(&Action{Key: tcell.KeyRune, Rune: 'q', Label: "q", Description: "Quit", Visible: true, Handler: func() {}})
	r.AddView("downloads", &Action{Key: tcell.KeyRune, Rune: 'p', Label: "p", Description: "Pause", Visible: true, Handler: func() {}})
	r.AddView("downloads", &Action{Key: tcell.KeyRune, Rune: 'z', Label: "z", Description: "Hidden", Handler: func() {}})

	hints := r.Hints("downloads")
	if len(hints) != 2 {
		t.Fatalf("hints = %+v, want 2", hints)
	}
	if hints[0].Description != "Pause" || hints[1].Description != "Quit" {
		t.Errorf("hints order = %+v", hints)
	}
}
