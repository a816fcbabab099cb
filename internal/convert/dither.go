package convert

import (
	"image"
	"image/color"
	"sort"

	"github.com/makeworld-the-better-one/dither/v2"
	"golang.org/x/image/draw"
)

// DitherFunc renders a grayscale image down to 1-bit (black/white palette).
type DitherFunc func(img image.Image) image.Image

var ditherFunctions = map[string]DitherFunc{
	"floyd-steinberg": FloydSteinberg,
	"atkinson":        Atkinson,
	"stucki":          Stucki,
	"bayer":           Bayer,
	"threshold":       ThresholdFn(defaultThreshold),
}

// DitherFunction returns a registered dither function by name. An empty
// name returns the printer's default, Floyd-Steinberg.
func DitherFunction(name string) (DitherFunc, bool) {
	if name == "" {
		return FloydSteinberg, true
	}
	fn, ok := ditherFunctions[name]
	return fn, ok
}

// AllDitherFunctions returns a sorted list of all available dither function
// names, for CLI help text.
func AllDitherFunctions() []string {
	keys := make([]string, 0, len(ditherFunctions))
	for k := range ditherFunctions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func diffusionDither(matrix dither.ErrorDiffusionMatrix) DitherFunc {
	return func(img image.Image) image.Image {
		dithered := image.NewPaletted(img.Bounds(), []color.Color{color.Black, color.White})
		d := dither.NewDitherer([]color.Color{color.Black, color.White})
		d.Matrix = matrix
		d.Draw(dithered, dithered.Bounds(), img, image.Point{})
		return dithered
	}
}

func patternDither(mapper dither.PixelMapper) DitherFunc {
	return func(img image.Image) image.Image {
		dithered := image.NewPaletted(img.Bounds(), []color.Color{color.Black, color.White})
		d := dither.NewDitherer([]color.Color{color.Black, color.White})
		d.Mapper = mapper
		d.Draw(dithered, dithered.Bounds(), img, image.Point{})
		return dithered
	}
}

var (
	// Atkinson is an alternate error-diffusion dither, offered alongside the
	// default for callers that want a lighter printout.
	Atkinson = diffusionDither(dither.Atkinson)
	// Stucki is an alternate error-diffusion dither.
	Stucki = diffusionDither(dither.Stucki)
	// Bayer is an ordered (pattern) dither, useful for test patterns.
	Bayer = patternDither(dither.Bayer(8, 8, 1.0))
)

// FloydSteinberg is the printer's default 1-bit threshold: standard
// Floyd-Steinberg error diffusion, applied after contrast/sharpness/
// brightness enhancement in the image-prep pipeline.
func FloydSteinberg(img image.Image) image.Image {
	dithered := image.NewPaletted(img.Bounds(), []color.Color{color.Black, color.White})
	draw.FloydSteinberg.Draw(dithered, dithered.Bounds(), img, image.Point{})
	return dithered
}

// ThresholdFn builds a flat-threshold (no error diffusion) 1-bit reducer,
// registered as the "threshold" dither function.
func ThresholdFn(threshold uint8) DitherFunc {
	return func(img image.Image) image.Image {
		if threshold == 0 {
			threshold = defaultThreshold
		}
		trg := image.NewPaletted(img.Bounds(), []color.Color{color.Black, color.White})
		bounds := img.Bounds()
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			for x := bounds.Min.X; x < bounds.Max.X; x++ {
				if isDark(img, x, y, threshold) {
					trg.SetColorIndex(x, y, 0) // black
				} else {
					trg.SetColorIndex(x, y, 1) // white
				}
			}
		}
		return trg
	}
}

// enhance applies the fixed thermal-receipt enhancement chain: contrast,
// sharpness, brightness, in that order. Factors match the reference
// converter's PIL ImageEnhance calls exactly (Contrast 1.8, Sharpness 2.0,
// Brightness 1.1); they are user-visible on the printed receipt, so they
// are not configurable.
func enhance(img image.Image) image.Image {
	img = adjustContrast(img, contrastFactor)
	img = adjustSharpness(img, sharpnessFactor)
	img = adjustBrightness(img, brightnessFactor)
	return img
}

const (
	contrastFactor   = 1.8
	sharpnessFactor  = 2.0
	brightnessFactor = 1.1
)

// blend1 is PIL ImageEnhance's core formula: degenerate + factor*(v -
// degenerate), clamped to a valid 8-bit channel value.
func blend1(v, degenerate, factor float64) uint8 {
	out := degenerate + factor*(v-degenerate)
	switch {
	case out < 0:
		return 0
	case out > 255:
		return 255
	default:
		return uint8(out + 0.5)
	}
}

// meanLuminance averages toGray over every pixel, the same "convert to L,
// take the histogram mean" degenerate-image PIL's ImageEnhance.Contrast
// blends against.
func meanLuminance(img image.Image) float64 {
	b := img.Bounds()
	var sum float64
	n := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sum += float64(toGray(img.At(x, y)))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// adjustContrast reproduces PIL's ImageEnhance.Contrast(img).enhance(factor):
// every channel is blended toward the image's mean gray level.
func adjustContrast(img image.Image, factor float64) image.Image {
	gray := meanLuminance(img)
	return blendToward(img, factor, func(int, int) (float64, float64, float64) {
		return gray, gray, gray
	})
}

// adjustBrightness reproduces PIL's ImageEnhance.Brightness(img).enhance:
// the degenerate image is solid black, so the blend reduces to v*factor.
func adjustBrightness(img image.Image, factor float64) image.Image {
	return blendToward(img, factor, func(int, int) (float64, float64, float64) {
		return 0, 0, 0
	})
}

// smoothKernel is PIL's ImageFilter.SMOOTH 3x3 kernel (scale 13), the
// degenerate image ImageEnhance.Sharpness blends against.
var smoothKernel = [3][3]float64{
	{1, 1, 1},
	{1, 5, 1},
	{1, 1, 1},
}

// adjustSharpness reproduces PIL's ImageEnhance.Sharpness(img).enhance:
// blend the image against a copy passed through ImageFilter.SMOOTH.
func adjustSharpness(img image.Image, factor float64) image.Image {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			sr, sg, sb := convolve3x3(img, x, y, smoothKernel, 13)
			r, g, bl, a := img.At(x, y).RGBA()
			out.SetNRGBA(x, y, color.NRGBA{
				R: blend1(float64(r>>8), sr, factor),
				G: blend1(float64(g>>8), sg, factor),
				B: blend1(float64(bl>>8), sb, factor),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}

// convolve3x3 applies kernel/scale around (x, y), clamping out-of-bounds
// samples to the nearest edge pixel.
func convolve3x3(img image.Image, x, y int, kernel [3][3]float64, scale float64) (r, g, b float64) {
	bounds := img.Bounds()
	clamp := func(v, lo, hi int) int {
		if v < lo {
			return lo
		}
		if v >= hi {
			return hi - 1
		}
		return v
	}
	for ky := -1; ky <= 1; ky++ {
		for kx := -1; kx <= 1; kx++ {
			sx := clamp(x+kx, bounds.Min.X, bounds.Max.X)
			sy := clamp(y+ky, bounds.Min.Y, bounds.Max.Y)
			cr, cg, cb, _ := img.At(sx, sy).RGBA()
			w := kernel[ky+1][kx+1]
			r += w * float64(cr>>8)
			g += w * float64(cg>>8)
			b += w * float64(cb>>8)
		}
	}
	return r / scale, g / scale, b / scale
}

// blendToward blends every pixel of img toward a per-pixel degenerate color
// by factor, via blend1 per channel.
func blendToward(img image.Image, factor float64, degenerate func(x, y int) (r, g, b float64)) image.Image {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dr, dg, db := degenerate(x, y)
			r, g, bl, a := img.At(x, y).RGBA()
			out.SetNRGBA(x, y, color.NRGBA{
				R: blend1(float64(r>>8), dr, factor),
				G: blend1(float64(g>>8), dg, factor),
				B: blend1(float64(bl>>8), db, factor),
				A: uint8(a >> 8),
			})
		}
	}
	return out
}
