package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/wpdl/internal/tui/ui"
)

// HelpView displays the key and command reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv}
	hv.render(ui.ColorName(theme.MenuKeyColor))
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint { return nil }

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Navigation", [][2]string{
		{"s", "Sessions"},
		{"c", "Chats"},
		{"m", "Media of the last scan"},
		{"d", "Downloads"},
		{"Esc", "Back"},
		{"/", "Filter the current table"},
		{":", "Command mode"},
		{"q", "Quit"},
	}},
	{"Sessions", [][2]string{
		{"Enter", "Switch to the session under the cursor"},
		{"n", "New session"},
		{"D", "Remove the session under the cursor"},
	}},
	{"Login", [][2]string{
		{"r", "Show a new QR code"},
		{"n", "Log in with a phone number"},
		{"o / p", "Enter a login code or the two-step password"},
	}},
	{"Media", [][2]string{
		{"Enter", "Download the file under the cursor, or all marked files"},
		{"Space", "Mark or unmark a file"},
	}},
	{"Downloads", [][2]string{
		{"p / r / x", "Pause, resume or cancel the selected download"},
		{"P / R / X", "Pause, resume or cancel all"},
		{"C", "Clear finished downloads"},
	}},
	{"Commands", [][2]string{
		{":new", "Create a session and log in"},
		{":session <id>", "Switch to a session, creating it if needed"},
		{":rm <id>", "Remove a session and its data"},
		{":scan [k=v...]", "Rescan the current chat: from= to= type= q= cap="},
		{":dir <path>", "Set the download directory"},
		{":proxy off | <type> <host> <port> [user] [pass]", "Configure the proxy"},
		{":logout", "Log out the current session"},
		{":q", "Quit"},
	}},
}

func (hv *HelpView) render(kc string) {
	var b strings.Builder
	for _, sec := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", sec.title)
		for _, r := range sec.rows {
			fmt.Fprintf(&b, "  [%s]%-22s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	_, _ = fmt.Fprint(hv, b.String())
}
