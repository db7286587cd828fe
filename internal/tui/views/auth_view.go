package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"

	domain "github.com/matheus3301/wpdl/internal/model"
	"github.com/matheus3301/wpdl/internal/tui/ui"
)

// AuthView walks the user through login: a QR code to scan, or a pairing
// code to type on the phone after submitting a number.
type AuthView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewAuthView creates a new auth view.
func NewAuthView(theme *ui.Theme) *AuthView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Authentication Required ")
	tv.SetTitleColor(theme.TitleColor)

	return &AuthView{
		TextView: tv,
		theme:    theme,
	}
}

// Name implements ui.Component.
func (av *AuthView) Name() string { return "Auth" }

// Hints implements ui.Component.
func (av *AuthView) Hints() []ui.MenuHint { return nil }

// ShowState renders the screen for an auth state and its payload.
func (av *AuthView) ShowState(state domain.AuthState, payload string) {
	switch state {
	case domain.AuthQRPending:
		if payload == "" {
			av.ShowMessage("Waiting for a QR code...")
			return
		}
		av.ShowQR(payload)
	case domain.AuthAwaitingCode:
		if payload == "" {
			av.ShowMessage("Requesting a pairing code...")
			return
		}
		av.ShowMessage(fmt.Sprintf("On your phone open Linked devices > Link with phone number\nand enter:\n\n[::b]%s[-:-:-]", tview.Escape(payload)))
	case domain.AuthAwaiting2FA:
		av.ShowMessage("Two-step verification is on. Press p to enter the password.")
	case domain.AuthReady:
		av.ShowMessage("Logged in. Loading chats...")
	default:
		av.ShowMessage("Not logged in.\n\nPress r for a QR code or n to log in with a phone number.")
	}
}

// ShowQR renders a QR code string as a scannable block.
func (av *AuthView) ShowQR(content string) {
	av.Clear()

	ascii := renderQR(content)
	_, _ = fmt.Fprintf(av, "\n  Scan this QR code with WhatsApp:\n\n%s\n  [::d]Waiting for authentication...", ascii)
}

// ShowMessage displays a status message.
func (av *AuthView) ShowMessage(msg string) {
	av.Clear()
	_, _ = fmt.Fprintf(av, "\n\n%s", msg)
}

// renderQR converts a string to a compact ASCII QR code using Unicode
// half-block characters.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}
	qr.DisableBorder = false

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder

	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := 0; x < cols; x++ {
			top := bitmap[y][x]
			bot := false
			if y+1 < rows {
				bot = bitmap[y+1][x]
			}
			switch {
			case top && bot:
				sb.WriteRune('\u2588') // █
			case top && !bot:
				sb.WriteRune('\u2580') // ▀
			case !top && bot:
				sb.WriteRune('\u2584') // ▄
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}

	return sb.String()
}
