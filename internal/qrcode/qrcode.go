// Package qrcode renders ticket QR tokens as PNG images.
package qrcode

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 300

type Encoder struct {
	size int
}

func NewEncoder(size int) *Encoder {
	if size <= 0 {
		size = DefaultSize
	}
	return &Encoder{size: size}
}

// PNG encodes token with high error correction, so a scuffed printout still
// scans.
func (e *Encoder) PNG(token string) ([]byte, error) {
	const op = "qrcode.Encoder.PNG"

	qr, err := qrcode.New(token, qrcode.High)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	png, err := qr.PNG(e.size)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return png, nil
}

// DataURI returns the PNG as a data:image/png;base64 URI.
func (e *Encoder) DataURI(token string) (string, error) {
	png, err := e.PNG(token)
	if err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
