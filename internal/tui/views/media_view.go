package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	domain "github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/tui/model"
	"github.com/matheus3301/wpdl/internal/tui/ui"
)

// MediaView lists the files found by the current scan. Rows can be marked
// for a batch download.
type MediaView struct {
	*tview.Table
	theme   *ui.Theme
	chat    string
	files   []domain.FileDescriptor
	visible []domain.FileDescriptor
	marked  map[int64]bool
	filter  string
}

// NewMediaView creates the media table.
func NewMediaView(theme *ui.Theme) *MediaView {
	return &MediaView{
		Table:  newTable(theme, " Media "),
		theme:  theme,
		marked: make(map[int64]bool),
	}
}

// Name implements ui.Component.
func (v *MediaView) Name() string { return "Media" }

// Hints implements ui.Component.
func (v *MediaView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Download"},
		{Key: "/", Description: "Filter"},
	}
}

// SetChat names the chat being scanned and drops marks of the previous one.
func (v *MediaView) SetChat(title string) {
	v.chat = title
	v.filter = ""
	clear(v.marked)
	v.Select(1, 0)
}

// SetFilter sets the active filter text and re-renders.
func (v *MediaView) SetFilter(filter string) {
	v.filter = filter
	v.Select(1, 0)
	v.render(nil)
}

// Update re-renders from a scan snapshot.
func (v *MediaView) Update(scan model.Scan) {
	v.files = scan.Files
	v.render(&scan)
}

func (v *MediaView) render(scan *model.Scan) {
	v.Clear()
	header(v.Table, v.theme, "NAME", "TYPE", "SIZE", "DATE", "STATE")

	v.visible = v.visible[:0]
	for _, f := range v.files {
		if v.filter != "" && !containsFold(f.Name, v.filter) && !containsFold(f.Caption, v.filter) {
			continue
		}
		v.visible = append(v.visible, f)
	}

	now := time.Now()
	for i, f := range v.visible {
		row := i + 1
		color := v.stateColor(f.State)
		name := f.Name
		if v.marked[f.FileID] {
			color = v.theme.SelectedColor
			name = "+ " + name
		}
		v.SetCell(row, 0, cell(name, color).SetExpansion(1))
		v.SetCell(row, 1, cell(string(f.Type), color))
		v.SetCell(row, 2, cell(humanBytes(f.Size), color).SetAlign(tview.AlignRight))
		v.SetCell(row, 3, cell(formatDate(f.Date, now), color).SetAlign(tview.AlignRight))
		v.SetCell(row, 4, cell(stateLabel(f.State), color))
	}

	if scan != nil {
		status := "done"
		switch {
		case scan.Active:
			status = fmt.Sprintf("scanning %d msgs", scan.Scanned)
		case scan.Err != "":
			status = "failed: " + scan.Err
		}
		v.SetTitle(fmt.Sprintf(" %s: %d files, %s ", tview.Escape(v.chat), len(v.files), tview.Escape(status)))
	}
}

func (v *MediaView) stateColor(s domain.LocalState) tcell.Color {
	switch s {
	case domain.Downloaded:
		return v.theme.DoneColor
	case domain.Downloading:
		return v.theme.ActiveColor
	}
	return v.theme.FgColor
}

func stateLabel(s domain.LocalState) string {
	switch s {
	case domain.Downloaded:
		return "saved"
	case domain.Downloading:
		return "downloading"
	}
	return ""
}

// ToggleMark flips the mark on the row under the cursor and moves down.
func (v *MediaView) ToggleMark() {
	f, ok := v.current()
	if !ok {
		return
	}
	if v.marked[f.FileID] {
		delete(v.marked, f.FileID)
	} else {
		v.marked[f.FileID] = true
	}
	row, _ := v.GetSelection()
	v.render(nil)
	if row < len(v.visible) {
		v.Select(row+1, 0)
	}
}

// Selection returns the marked files, or the file under the cursor when
// nothing is marked. Marks are cleared.
func (v *MediaView) Selection() []domain.FileDescriptor {
	var out []domain.FileDescriptor
	for _, f := range v.files {
		if v.marked[f.FileID] {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		if f, ok := v.current(); ok {
			out = append(out, f)
		}
	}
	clear(v.marked)
	return out
}

func (v *MediaView) current() (domain.FileDescriptor, bool) {
	row, _ := v.GetSelection()
	if idx := row - 1; idx >= 0 && idx < len(v.visible) {
		return v.visible[idx], true
	}
	return domain.FileDescriptor{}, false
}
