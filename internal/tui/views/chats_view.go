package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	domain "github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/tui/ui"
)

// ChatsView is the conversation table. Enter scans the chat for media.
type ChatsView struct {
	*tview.Table
	theme   *ui.Theme
	chats   []domain.Chat
	visible []domain.Chat
	filter  string
}

// NewChatsView creates the chat table.
func NewChatsView(theme *ui.Theme) *ChatsView {
	return &ChatsView{Table: newTable(theme, " Chats "), theme: theme}
}

// Name implements ui.Component.
func (v *ChatsView) Name() string { return "Chats" }

// Hints implements ui.Component.
func (v *ChatsView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Scan media"},
		{Key: "/", Description: "Filter"},
	}
}

// Update refreshes the table with new data.
func (v *ChatsView) Update(chats []domain.Chat) {
	v.chats = chats
	v.render()
}

// SetFilter sets the active filter text and re-renders.
func (v *ChatsView) SetFilter(filter string) {
	v.filter = filter
	v.Select(1, 0)
	v.render()
}

func (v *ChatsView) render() {
	v.Clear()
	header(v.Table, v.theme, "NAME", "LAST MESSAGE", "DATE", "TYPE")

	v.visible = v.visible[:0]
	for _, c := range v.chats {
		if v.filter != "" && !containsFold(c.Title, v.filter) && !containsFold(c.LastMessage, v.filter) {
			continue
		}
		v.visible = append(v.visible, c)
	}

	now := time.Now()
	for i, c := range v.visible {
		row := i + 1
		name := c.Title
		if c.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", c.UnreadCount, name)
		}
		v.SetCell(row, 0, cell(name, v.theme.FgColor).SetExpansion(1))
		v.SetCell(row, 1, cell(c.LastMessage, v.theme.FgColor).SetMaxWidth(48))
		v.SetCell(row, 2, cell(formatDate(c.Date, now), v.theme.FgColor).SetAlign(tview.AlignRight))
		v.SetCell(row, 3, cell(string(c.Type), v.theme.FgColor))
	}

	if v.filter != "" {
		v.SetTitle(fmt.Sprintf(" Chats (%d/%d) filter: %s ", len(v.visible), len(v.chats), tview.Escape(v.filter)))
	} else {
		v.SetTitle(fmt.Sprintf(" Chats (%d) ", len(v.chats)))
	}
}

// SelectedChat returns the chat under the cursor.
func (v *ChatsView) SelectedChat() (domain.Chat, bool) {
	row, _ := v.GetSelection()
	if idx := row - 1; idx >= 0 && idx < len(v.visible) {
		return v.visible[idx], true
	}
	return domain.Chat{}, false
}
