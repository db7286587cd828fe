package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/wpdl/internal/tui/ui"
)

// formatDate renders a unix-seconds timestamp: clock time today, date otherwise.
func formatDate(sec int64, now time.Time) string {
	if sec == 0 {
		return ""
	}
	t := time.Unix(sec, 0).In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format(time.DateOnly)
}

// humanBytes renders n with a binary unit.
func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// header writes a bold, unselectable header row.
func header(t *tview.Table, theme *ui.Theme, cols ...string) {
	for col, text := range cols {
		exp := 0
		if col == 0 {
			exp = 1
		}
		t.SetCell(0, col, tview.NewTableCell(" "+text).
			SetSelectable(false).
			SetTextColor(theme.TableHeaderFg).
			SetBackgroundColor(theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(exp))
	}
}

// newTable returns a bordered, row-selectable table styled with theme.
func newTable(theme *ui.Theme, title string) *tview.Table {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(title)
	table.SetTitleColor(theme.TitleColor)
	return table
}

func cell(text string, color tcell.Color) *tview.TableCell {
	return tview.NewTableCell(" " + tview.Escape(sanitizeForTerminal(text))).SetTextColor(color)
}
