package qr

import (
	"errors"

	qrcode "github.com/skip2/go-qrcode"
)

// Size is the PNG edge length in pixels.
const Size = 256

// Encode renders content as a PNG QR code with medium error recovery.
func Encode(content string) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr: empty content")
	}
	return qrcode.Encode(content, qrcode.Medium, Size)
}
