package export

import "image"

// Enhancement is a fixed per-pixel color adjustment applied in the order
// contrast, brightness, saturation, sepia, clamping after each step.
type Enhancement struct {
	Contrast   float64
	Brightness float64
	Saturation float64
	Sepia      float64
}

// DefaultEnhancement mirrors the player's preview filter
// contrast(1.1) brightness(1.1) saturate(1.1) sepia(0.1).
var DefaultEnhancement = Enhancement{
	Contrast:   1.1,
	Brightness: 1.1,
	Saturation: 1.1,
	Sepia:      0.1,
}

type enhancer struct {
	lut    [256]float64
	matrix [3][3]float64
}

func newEnhancer(e Enhancement) *enhancer {
	en := &enhancer{}
	for i := range en.lut {
		v := float64(i) / 255
		v = clamp01((v-0.5)*e.Contrast + 0.5)
		en.lut[i] = clamp01(v * e.Brightness)
	}
	en.matrix = multiply(sepiaMatrix(e.Sepia), saturateMatrix(e.Saturation))
	return en
}

// Apply adjusts img in place. Alpha is left untouched.
func (e Enhancement) Apply(img *image.RGBA) {
	if img == nil {
		return
	}
	newEnhancer(e).apply(img)
}

func (en *enhancer) apply(img *image.RGBA) {
	b := img.Bounds()
	m := en.matrix
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]
		for i := 0; i+3 < len(row); i += 4 {
			r := en.lut[row[i]]
			g := en.lut[row[i+1]]
			bl := en.lut[row[i+2]]

			row[i] = toByte(m[0][0]*r + m[0][1]*g + m[0][2]*bl)
			row[i+1] = toByte(m[1][0]*r + m[1][1]*g + m[1][2]*bl)
			row[i+2] = toByte(m[2][0]*r + m[2][1]*g + m[2][2]*bl)
		}
	}
}

// The saturate and sepia matrices are the Filter Effects definitions.
func saturateMatrix(s float64) [3][3]float64 {
	return [3][3]float64{
		{0.213 + 0.787*s, 0.715 - 0.715*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 + 0.285*s, 0.072 - 0.072*s},
		{0.213 - 0.213*s, 0.715 - 0.715*s, 0.072 + 0.928*s},
	}
}

func sepiaMatrix(amount float64) [3][3]float64 {
	a := 1 - clamp01(amount)
	return [3][3]float64{
		{0.393 + 0.607*a, 0.769 - 0.769*a, 0.189 - 0.189*a},
		{0.349 - 0.349*a, 0.686 + 0.314*a, 0.168 - 0.168*a},
		{0.272 - 0.272*a, 0.534 - 0.534*a, 0.131 + 0.869*a},
	}
}

// multiply returns a*b. Saturate and sepia are folded into one matrix, so no
// clamp is applied between them.
func multiply(a, b [3][3]float64) [3][3]float64 {
	var out [3][3]float64
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			for k := 0; k < 3; k++ {
				out[i][j] += a[i][k] * b[k][j]
			}
		}
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func toByte(v float64) uint8 {
	return uint8(clamp01(v)*255 + 0.5)
}
