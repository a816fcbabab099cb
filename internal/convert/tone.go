package convert

import (
	"image"
	"image/color"
)

const (
	// defaultThreshold is the luminance cut used by the flat-threshold
	// reducer; pixels darker than this become ink.
	defaultThreshold = 128
)

// toGray converts an arbitrary color to 8-bit luminance using the standard
// ITU-R BT.601 weights, matching the reference converter's grayscale
// conversion exactly.
func toGray(c color.Color) uint8 {
	if gray, ok := c.(color.Gray); ok {
		return gray.Y
	}
	r, g, b, _ := c.RGBA()
	gray := (299*r + 587*g + 114*b) / 1000
	return uint8(gray >> 8)
}

// isDark reports whether the pixel at (x, y) is darker than threshold.
// Pixels outside the image bounds are treated as white (not ink).
func isDark(img image.Image, x, y int, threshold uint8) bool {
	if threshold == 0 {
		threshold = defaultThreshold
	}
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
		return false
	}
	return toGray(img.At(x, y)) < threshold
}

// toGrayscale converts an image to an 8-bit grayscale image.Image, the
// "convert to 8-bit luminance" step of the image-prep pipeline.
func toGrayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetGray(x, y, color.Gray{Y: toGray(img.At(x, y))})
		}
	}
	return dst
}
