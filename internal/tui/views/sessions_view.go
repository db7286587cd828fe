package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	domain "github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/tui/ui"
)

// SessionsView lists the known accounts, most recently used first.
type SessionsView struct {
	*tview.Table
	theme    *ui.Theme
	sessions []domain.Session
}

// NewSessionsView creates the session table.
func NewSessionsView(theme *ui.Theme) *SessionsView {
	return &SessionsView{Table: newTable(theme, " Sessions "), theme: theme}
}

// Name implements ui.Component.
func (v *SessionsView) Name() string { return "Sessions" }

// Hints implements ui.Component.
func (v *SessionsView) Hints() []ui.MenuHint {
	return []ui.MenuHint{{Key: "Enter", Description: "Switch"}}
}

// Update re-renders the table, keeping the cursor on the same session.
func (v *SessionsView) Update(sessions []domain.Session) {
	keep := v.SelectedSession()
	v.sessions = sessions
	v.Clear()
	header(v.Table, v.theme, "NAME", "ID", "PHONE", "LAST ACTIVE", "STATE")

	now := time.Now()
	for i, s := range sessions {
		row := i + 1
		color := v.theme.FgColor
		name := s.DisplayName()
		if s.Active {
			color = v.theme.ActiveColor
			name = "* " + name
		}
		last := ""
		if !s.LastActive.IsZero() {
			last = formatDate(s.LastActive.Unix(), now)
		}
		state := string(s.State)
		if !s.Active {
			state = "dormant"
		}
		v.SetCell(row, 0, cell(name, color).SetExpansion(1))
		v.SetCell(row, 1, cell(s.ID, color))
		v.SetCell(row, 2, cell(s.Phone, color))
		v.SetCell(row, 3, cell(last, color).SetAlign(tview.AlignRight))
		v.SetCell(row, 4, cell(state, color))
		if s.ID == keep {
			v.Select(row, 0)
		}
	}
	v.SetTitle(fmt.Sprintf(" Sessions (%d) ", len(sessions)))
}

// SelectedSession returns the ID under the cursor.
func (v *SessionsView) SelectedSession() string {
	row, _ := v.GetSelection()
	if idx := row - 1; idx >= 0 && idx < len(v.sessions) {
		return v.sessions[idx].ID
	}
	return ""
}
