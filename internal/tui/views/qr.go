package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"
)

// ClickToChatLink returns the wa.me link for a display phone number, keeping
// digits only.
func ClickToChatLink(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return "https://wa.me/" + b.String()
}

// QRView shows the business number's click-to-chat QR code.
type QRView struct {
	*tview.TextView
}

// NewQRView creates an empty QR view.
func NewQRView() *QRView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true).SetTitle(" Click to chat (Esc to close) ")
	return &QRView{TextView: tv}
}

// Show renders the QR for phone, or a hint when no display phone is configured.
func (v *QRView) Show(phone string) {
	v.Clear()
	link := ClickToChatLink(phone)
	if link == "" {
		_, _ = fmt.Fprint(v, "\n\nNo graph.display_phone configured for this instance.")
		return
	}
	_, _ = fmt.Fprintf(v, "\n%s\n  %s", RenderQR(link), tview.Escape(link))
}

// RenderQR draws content as a compact QR code using half-block characters,
// two modules per text row.
func RenderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Low)
	if err != nil {
		return "  (QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	rows := len(bitmap)
	cols := 0
	if rows > 0 {
		cols = len(bitmap[0])
	}

	var sb strings.Builder
	for y := 0; y < rows; y += 2 {
		sb.WriteString("  ")
		for x := range cols {
			top := bitmap[y][x]
			bot := y+1 < rows && bitmap[y+1][x]
			switch {
			case top && bot:
				sb.WriteRune('█')
			case top:
				sb.WriteRune('▀')
			case bot:
				sb.WriteRune('▄')
			default:
				sb.WriteRune(' ')
			}
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}
