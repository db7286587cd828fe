package ui

import (
	"testing"

	"github.com/gdamore/tcell/v2"
)

func TestPromptAcceptance(t *testing.T) {
	tests := []struct {
		name string
		mode PromptMode
		text string
		last rune
		want bool
	}{
		{"phone digit", PromptPhone, "5511", '1', true},
		{"phone letter", PromptPhone, "551a", 'a', false},
		{"phone plus", PromptPhone, "+", '+', false},
		{"code pairing", PromptCode, "ABCD-EFG", 'G', true},
		{"code too long", PromptCode, "ABCDEFGHI", 'I', false},
		{"code symbol", PromptCode, "12#", '#', false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := promptSpecs[tt.mode].accept(tt.text, tt.last); got != tt.want {
				t.Errorf("accept(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestPromptSubmit(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	var got []string
	p.SetOnSubmit(func(_ PromptMode, text string) { got = append(got, text) })

	p.Activate(PromptCommand)
	p.done(tcell.KeyEnter)
	p.Activate(PromptFilter)
	p.done(tcell.KeyEnter)
	p.Activate(PromptCommand)
	p.SetText("scan")
	p.done(tcell.KeyEnter)

	if len(got) != 2 || got[0] != "" || got[1] != "scan" {
		t.Errorf("submissions = %q", got)
	}
	if p.GetText() != "" {
		t.Error("prompt not cleared after submit")
	}
}
