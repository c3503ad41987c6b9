package encoder

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/qr"
)

// RenderQRPNG draws payload as a square QR code with medium error correction.
func RenderQRPNG(payload string, size int) ([]byte, error) {
	code, err := qr.Encode(payload, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("qr encode: %w", err)
	}
	return scalePNG(code, size, size)
}

// RenderBarcodePNG draws symbol as a Code 128 barcode.
func RenderBarcodePNG(symbol string, width, height int) ([]byte, error) {
	code, err := code128.Encode(symbol)
	if err != nil {
		return nil, fmt.Errorf("code128 encode: %w", err)
	}
	return scalePNG(code, width, height)
}

func scalePNG(code barcode.Barcode, width, height int) ([]byte, error) {
	scaled, err := barcode.Scale(code, width, height)
	if err != nil {
		return nil, fmt.Errorf("scale barcode: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("png encode: %w", err)
	}
	return buf.Bytes(), nil
}
