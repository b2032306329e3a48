package ui

import (
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRView renders link as a terminal QR code using half-block characters.
func QRView(link string) (string, error) {
	qr, err := qrcode.New(link, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("failed to encode %q: %w", link, err)
	}
	return qr.ToSmallString(false), nil
}

// RoomInfoView is the box printed when a private lobby is opened.
func RoomInfoView(lobby, link string) string {
	content := fmt.Sprintf("%s %s\n\n%s Lobby:  %s\n%s Link:   %s",
		IconSuccess, SuccessStyle.Render("Lobby Created!"),
		IconRoom, BoldStyle.Foreground(Primary).Render(lobby),
		IconLink, MutedStyle.Render(link),
	)
	return BoxStyle.Render(content)
}
