package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
)

// FlashLevel represents the severity of a flash message.
type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is a flash notification. Repeats counts identical messages
// raised while it was still showing.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeats int
	Expires time.Time
}

// String is the text shown on the bar.
func (m FlashMessage) String() string {
	if m.Repeats > 1 {
		return fmt.Sprintf("%s (x%d)", m.Text, m.Repeats)
	}
	return m.Text
}

// FlashModel holds the current notification. Watch delivers every change.
// Bulk download commands report one failure per file, so a message equal
// to the visible one is folded into it instead of replacing it.
type FlashModel struct {
	mu      sync.RWMutex
	current FlashMessage
	now     func() time.Time
	watchCh chan FlashMessage
}

// NewFlashModel creates a new flash model.
func NewFlashModel() *FlashModel {
	return &FlashModel{
		now:     time.Now,
		watchCh: make(chan FlashMessage, 8),
	}
}

// Info sets an info-level flash message.
func (f *FlashModel) Info(msg string) {
	f.set(msg, FlashInfo)
}

// Warn sets a warn-level flash message.
func (f *FlashModel) Warn(msg string) {
	f.set(msg, FlashWarn)
}

// Err sets an error-level flash message prefixed with what failed.
func (f *FlashModel) Err(what string, err error) {
	f.set(what+": "+err.Error(), FlashErr)
}

func (f *FlashModel) set(msg string, level FlashLevel) {
	now := f.now()
	f.mu.Lock()
	if f.current.Text == msg && f.current.Level == level && now.Before(f.current.Expires) {
		f.current.Repeats++
	} else {
		f.current = FlashMessage{Text: msg, Level: level, Repeats: 1}
	}
	f.current.Expires = now.Add(flashTTL[level])
	fm := f.current
	f.mu.Unlock()
	select {
	case f.watchCh <- fm:
	default:
	}
}

// Get returns the current flash message, or nil if expired.
func (f *FlashModel) Get() *FlashMessage {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current.Text == "" || f.now().After(f.current.Expires) {
		return nil
	}
	m := f.current
	return &m
}

// Watch returns a channel that receives flash messages.
func (f *FlashModel) Watch() <-chan FlashMessage {
	return f.watchCh
}

// FlashBar is the UI component that displays flash notifications.
type FlashBar struct {
	*tview.TextView
	theme *Theme
}

// NewFlashBar creates a new flash notification bar.
func NewFlashBar(theme *Theme) *FlashBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)

	return &FlashBar{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders a flash message on the bar. nil clears it.
func (fb *FlashBar) Update(msg *FlashMessage) {
	fb.Clear()
	if msg == nil {
		return
	}

	color := fb.theme.FlashInfoColor
	switch msg.Level {
	case FlashWarn:
		color = fb.theme.FlashWarnColor
	case FlashErr:
		color = fb.theme.FlashErrColor
	}
	_, _ = fmt.Fprintf(fb, " [%s]%s[-]", ColorName(color), tview.Escape(msg.String()))
}
