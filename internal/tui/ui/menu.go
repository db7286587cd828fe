package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

const menuRows = 6

// Menu displays keyboard shortcut hints in columns of menuRows entries.
type Menu struct {
	*tview.Table
	theme *Theme
}

// NewMenu creates a new menu hint table.
func NewMenu(theme *Theme) *Menu {
	t := tview.NewTable().SetBorders(false)
	t.SetBackgroundColor(theme.BgColor)
	t.SetBorderPadding(0, 0, 2, 0)

	return &Menu{
		Table: t,
		theme: theme,
	}
}

// Update renders hints column by column.
func (m *Menu) Update(hints []MenuHint) {
	m.Clear()
	kc := ColorName(m.theme.MenuKeyColor)
	fg := ColorName(m.theme.FgColor)
	for i, h := range hints {
		text := fmt.Sprintf("[%s::b]<%s>[-:-:-] [%s]%s[-]  ", kc, h.Key, fg, h.Description)
		m.SetCell(i%menuRows, i/menuRows, tview.NewTableCell(text).SetSelectable(false))
	}
}
