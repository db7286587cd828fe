package ui

import (
	"reflect"
	"testing"

	"github.com/rivo/tview"
)

func newTestPages() *Pages {
	p := NewPages()
	for _, name := range []string{"sessions", "chats", "media", "downloads"} {
		p.AddPage(name, tview.NewBox(), true, false)
	}
	return p
}

func TestPagesPushUnwinds(t *testing.T) {
	p := newTestPages()
	var last []string
	p.SetOnChange(func(stack []string) { last = stack })

	p.Reset("sessions")
	p.Push("chats")
	p.Push("media")
	p.Push("chats")

	if want := []string{"sessions", "chats"}; !reflect.DeepEqual(p.Stack(), want) {
		t.Errorf("stack = %v, want %v", p.Stack(), want)
	}
	if !reflect.DeepEqual(last, p.Stack()) {
		t.Errorf("onChange saw %v", last)
	}
}

func TestPagesPopKeepsRoot(t *testing.T) {
	p := newTestPages()
	p.Reset("chats")
	p.Push("downloads")

	if got := p.Pop(); got != "downloads" {
		t.Errorf("Pop() = %q, want downloads", got)
	}
	if got := p.Pop(); got != "" {
		t.Errorf("Pop() at root = %q, want empty", got)
	}
	if p.Current() != "chats" {
		t.Errorf("Current() = %q, want chats", p.Current())
	}
}
