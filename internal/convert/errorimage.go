package convert

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	grayWhite = color.Gray{Y: 255}
	grayBlack = color.Gray{Y: 0}
)

const errorImageHeight = 200

// errorImage renders a fixed-height white bitmap with a short message
// drawn in a built-in bitmap font, the fallback used when PWG-Raster bytes
// cannot be interpreted (spec §4.4 step 5). It uses golang.org/x/image's
// basicfont rather than an external font file, since the converter has no
// other need for font rendering.
func errorImage(width int, message string) image.Image {
	if width <= 0 {
		width = defaultMaxPixels
	}
	img := image.NewGray(image.Rect(0, 0, width, errorImageHeight))
	for y := 0; y < errorImageHeight; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, grayWhite)
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(grayBlack),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(8), Y: fixed.I(24)},
	}
	d.DrawString(message)
	return img
}
