package ui

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
)

var iconBytes = renderIcon(22)

// renderIcon draws a filled play triangle on a transparent square.
func renderIcon(size int) []byte {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	fg := color.NRGBA{R: 0xe8, G: 0x4a, B: 0x2f, A: 0xff}
	pad := size / 5
	span := size - 2*pad
	for y := pad; y < size-pad; y++ {
		// Half-width of the triangle at this row.
		dy := y - pad
		if dy > span/2 {
			dy = span - dy
		}
		for x := pad; x <= pad+2*dy && x < size-pad; x++ {
			img.SetNRGBA(x, y, fg)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil
	}
	return buf.Bytes()
}
