package ui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"
)

// SessionData holds session information for display.
type SessionData struct {
	Session      string
	Account      string
	Phone        string
	Auth         string
	Connectivity string
	DownloadDir  string
	Downloads    int
	Uptime       time.Duration
}

// SessionInfo displays session metadata in the header.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

// NewSessionInfo creates a new session info panel.
func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &SessionInfo{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the session info. nil means no active session.
func (si *SessionInfo) Update(data *SessionData) {
	si.Clear()
	fg := ColorName(si.theme.FgColor)
	cc := ColorName(si.theme.CounterColor)
	row := func(label, value string) {
		if value == "" {
			value = "-"
		}
		_, _ = fmt.Fprintf(si, "[%s::b]%-8s[-:-:-] [%s]%s[-]\n", fg, label+":", cc, tview.Escape(value))
	}

	if data == nil {
		row("Session", "none")
		_, _ = fmt.Fprintf(si, "[%s]press s to pick one[-]", fg)
		return
	}
	row("Session", data.Session)
	row("Account", data.Account)
	row("Phone", data.Phone)
	row("Auth", data.Auth)
	row("Link", data.Connectivity)
	row("Saving", data.DownloadDir)
	_, _ = fmt.Fprintf(si, "[%s::b]%-8s[-:-:-] [%s]%d active, up %s[-]", fg, "Queue:", cc, data.Downloads, FormatUptime(data.Uptime))
}

// FormatUptime renders d as hours and minutes.
func FormatUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
