package convert

import (
	"image"

	"github.com/disintegration/imaging"
)

// resizeToWidth scales img down to width targetWidth, preserving aspect
// ratio, using a Lanczos filter. Images already narrower than or equal to
// targetWidth are returned unchanged: the converter never upscales.
func resizeToWidth(img image.Image, targetWidth int) image.Image {
	if img.Bounds().Dx() <= targetWidth {
		return img
	}
	return imaging.Resize(img, targetWidth, 0, imaging.Lanczos)
}
