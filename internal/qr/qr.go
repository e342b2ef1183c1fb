package qr

import (
	"errors"

	"github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Generator renders QR PNGs for download links.
type Generator struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewGenerator() *Generator {
	return &Generator{Size: DefaultSize, Level: qrcode.Medium}
}

func (g *Generator) PNG(content string) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qr: empty content")
	}
	size := g.Size
	if size <= 0 {
		size = DefaultSize
	}
	return qrcode.Encode(content, g.Level, size)
}
