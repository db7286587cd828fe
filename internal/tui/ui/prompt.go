package ui

import (
	"unicode"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// PromptMode indicates what the prompt's text is for.
type PromptMode int

const (
	PromptCommand PromptMode = iota
	PromptFilter
	// PromptPhone, PromptCode and PromptPassword collect login input.
	PromptPhone
	PromptCode
	PromptPassword
)

type promptSpec struct {
	label  string
	title  string
	mask   rune
	accept func(text string, last rune) bool
	// allowEmpty submits an empty line; an empty filter clears it.
	allowEmpty bool
}

var promptSpecs = map[PromptMode]promptSpec{
	PromptCommand:  {label: ":", title: " Command "},
	PromptFilter:   {label: "/", title: " Filter ", allowEmpty: true},
	PromptPhone:    {label: "+", title: " Phone number (digits, with country code) ", accept: digitsOnly},
	PromptCode:     {label: "> ", title: " Login code ", accept: loginCode},
	PromptPassword: {label: "> ", title: " Two-step password ", mask: '*'},
}

func digitsOnly(_ string, last rune) bool {
	return unicode.IsDigit(last)
}

// loginCode admits the 8 character pairing codes and numeric SMS codes.
func loginCode(text string, last rune) bool {
	return len([]rune(text)) <= 8 && (unicode.IsDigit(last) || unicode.IsLetter(last) || last == '-')
}

// Prompt is a single-line input bar shared by commands, filters and login.
type Prompt struct {
	*tview.InputField
	mode     PromptMode
	onSubmit func(mode PromptMode, text string)
	onCancel func()
}

// NewPrompt creates a new prompt input bar.
func NewPrompt(theme *Theme) *Prompt {
	input := tview.NewInputField()
	input.SetBorder(true)
	input.SetBorderColor(theme.PromptBorderColor)
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.MenuKeyColor)

	p := &Prompt{InputField: input}
	input.SetDoneFunc(p.done)
	return p
}

func (p *Prompt) done(key tcell.Key) {
	switch key {
	case tcell.KeyEnter:
		text := p.GetText()
		p.SetText("")
		if p.onSubmit != nil && (text != "" || promptSpecs[p.mode].allowEmpty) {
			p.onSubmit(p.mode, text)
		}
	case tcell.KeyEscape:
		p.SetText("")
		if p.onCancel != nil {
			p.onCancel()
		}
	}
}

// SetOnSubmit sets the callback when the prompt is submitted.
func (p *Prompt) SetOnSubmit(fn func(mode PromptMode, text string)) {
	p.onSubmit = fn
}

// SetOnCancel sets the callback when the prompt is cancelled.
func (p *Prompt) SetOnCancel(fn func()) {
	p.onCancel = fn
}

// Activate prepares the prompt for the given mode.
func (p *Prompt) Activate(mode PromptMode) {
	spec := promptSpecs[mode]
	p.mode = mode
	p.SetText("")
	p.SetLabel(spec.label)
	p.SetTitle(spec.title)
	p.SetMaskCharacter(spec.mask)
	p.SetAcceptanceFunc(spec.accept)
}

// Mode returns the current prompt mode.
func (p *Prompt) Mode() PromptMode {
	return p.mode
}
