package views

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	domain "github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/tui/ui"
)

// DownloadsView is the download queue of the active session.
type DownloadsView struct {
	*tview.Table
	theme *ui.Theme
	tasks []domain.DownloadTask
}

// NewDownloadsView creates the download table.
func NewDownloadsView(theme *ui.Theme) *DownloadsView {
	return &DownloadsView{Table: newTable(theme, " Downloads "), theme: theme}
}

// Name implements ui.Component.
func (v *DownloadsView) Name() string { return "Downloads" }

// Hints implements ui.Component.
func (v *DownloadsView) Hints() []ui.MenuHint { return nil }

// Update refreshes the table with new data.
func (v *DownloadsView) Update(tasks []domain.DownloadTask) {
	v.tasks = tasks
	v.Clear()
	header(v.Table, v.theme, "NAME", "SIZE", "PROGRESS", "SPEED", "STATUS")

	active := 0
	for i, t := range tasks {
		row := i + 1
		if !t.State.Terminal() {
			active++
		}
		color := v.statusColor(t.State)
		status := string(t.State)
		if t.Error != "" {
			status += ": " + t.Error
		}
		speed := ""
		if t.State == domain.DownloadActive && t.Speed > 0 {
			speed = humanBytes(int64(t.Speed)) + "/s"
		}
		v.SetCell(row, 0, cell(t.Name, color).SetExpansion(1))
		v.SetCell(row, 1, cell(humanBytes(t.Size), color).SetAlign(tview.AlignRight))
		v.SetCell(row, 2, cell(progressBar(t.Downloaded, t.Size), color))
		v.SetCell(row, 3, cell(speed, color).SetAlign(tview.AlignRight))
		v.SetCell(row, 4, cell(status, color))
	}
	v.SetTitle(fmt.Sprintf(" Downloads (%d active / %d) ", active, len(tasks)))
}

func (v *DownloadsView) statusColor(s domain.DownloadState) tcell.Color {
	switch s {
	case domain.DownloadCompleted:
		return v.theme.DoneColor
	case domain.DownloadActive, domain.DownloadPending:
		return v.theme.ActiveColor
	case domain.DownloadPaused:
		return v.theme.PausedColor
	case domain.DownloadError, domain.DownloadCancelled:
		return v.theme.FailedColor
	}
	return v.theme.FgColor
}

const barWidth = 20

// progressBar renders done/total as a fixed-width bar with a percentage.
func progressBar(done, total int64) string {
	pct := 0
	if total > 0 {
		pct = int(done * 100 / total)
	}
	pct = min(max(pct, 0), 100)
	filled := pct * barWidth / 100
	bar := make([]rune, barWidth)
	for i := range bar {
		bar[i] = '░'
		if i < filled {
			bar[i] = '█'
		}
	}
	return fmt.Sprintf("%s %3d%%", string(bar), pct)
}

// SelectedTask returns the file ID under the cursor.
func (v *DownloadsView) SelectedTask() (domain.DownloadTask, bool) {
	row, _ := v.GetSelection()
	if idx := row - 1; idx >= 0 && idx < len(v.tasks) {
		return v.tasks[idx], true
	}
	return domain.DownloadTask{}, false
}
