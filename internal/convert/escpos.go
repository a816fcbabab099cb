package convert

import "image"

// ESC/POS control bytes used by the encoder. Named individually rather than
// grouped into a single byte-soup constant so each emission site reads as
// what it does.
const (
	esc = 0x1b
	gs  = 0x1d

	dotsPerStrip = 24 // column-mode m=33 strips are 24 dots (3 bytes) tall
)

// encodeESCPOS renders a 1-bit image (paletted {black, white}, index 0 =
// ink) as ESC/POS column-mode (m=33, 24-dot double density) raster
// commands. The output always begins with ESC @ and ends with the partial
// cut sequence, regardless of image size, including a zero-height image.
func encodeESCPOS(img *image.Paletted) []byte {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	out := make([]byte, 0, height*width*3/8+64)
	out = append(out, esc, '@')   // initialize
	out = append(out, esc, '3', 0) // line spacing 0
	out = append(out, esc, 'a', 1) // center

	nL := byte(width & 0xff)
	nH := byte((width >> 8) & 0xff)

	for y0 := 0; y0 < height; y0 += dotsPerStrip {
		out = append(out, esc, '*', 33, nL, nH)
		rows := dotsPerStrip
		if y0+rows > height {
			rows = height - y0
		}
		for x := 0; x < width; x++ {
			var col [3]byte
			for r := 0; r < dotsPerStrip; r++ {
				y := y0 + r
				if y >= height || y >= y0+rows {
					continue // short final strip: remaining bits stay 0 (white)
				}
				if isInk(img, bounds.Min.X+x, bounds.Min.Y+y) {
					col[r/8] |= 1 << (7 - uint(r%8))
				}
			}
			out = append(out, col[0], col[1], col[2])
		}
		out = append(out, '\n')
	}

	out = append(out, esc, '2')    // restore default line spacing
	out = append(out, esc, 'a', 0) // left align
	out = append(out, esc, 'd', 3) // feed 3 lines
	out = append(out, gs, 'V', 'B', 0) // partial cut (GS V 66 0)
	return out
}

// isInk reports whether the paletted pixel at (x, y) is index 0 (black).
// Coordinates outside the image are white.
func isInk(img *image.Paletted, x, y int) bool {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
		return false
	}
	return img.ColorIndexAt(x, y) == 0
}

// stripCount returns ceil(h/24), the number of column-mode strip commands
// encodeESCPOS will emit for a height of h rows — used by tests to verify
// the testable property in spec §8 without duplicating the encoder.
func stripCount(h int) int {
	if h <= 0 {
		return 0
	}
	return (h + dotsPerStrip - 1) / dotsPerStrip
}
