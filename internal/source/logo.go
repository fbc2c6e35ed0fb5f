package source

import (
	"bytes"
	"fmt"
	"image"

	"github.com/skip2/go-qrcode"
)

// LoadLogo returns the corner badge: the image at path if set, otherwise a
// QR code of qrText, otherwise nil.
func LoadLogo(path, qrText string, size int) (image.Image, error) {
	if path != "" {
		return DecodeFile(path)
	}
	if qrText == "" {
		return nil, nil
	}
	png, err := qrcode.Encode(qrText, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("qr encode error: %w", err)
	}
	img, _, err := image.Decode(bytes.NewReader(png))
	if err != nil {
		return nil, err
	}
	return img, nil
}
