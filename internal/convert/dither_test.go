package convert

import (
	"image"
	"image/color"
	"testing"
)

func makeGray(w, h int, y uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for yy := 0; yy < h; yy++ {
		for xx := 0; xx < w; xx++ {
			img.SetGray(xx, yy, color.Gray{Y: y})
		}
	}
	return img
}

func TestFloydSteinberg_AllWhiteProducesNoInk(t *testing.T) {
	src := makeGray(16, 16, 255)
	out := FloydSteinberg(src)
	pal, ok := out.(*image.Paletted)
	if !ok {
		t.Fatalf("FloydSteinberg did not return a paletted image: %T", out)
	}
	for _, idx := range pal.Pix {
		if idx != 1 { // index 1 == color.White in the {Black, White} palette
			t.Fatalf("expected all-white output, found ink pixel (index %d)", idx)
		}
	}
}

func TestFloydSteinberg_AllBlackProducesAllInk(t *testing.T) {
	src := makeGray(16, 16, 0)
	out := FloydSteinberg(src)
	pal, ok := out.(*image.Paletted)
	if !ok {
		t.Fatalf("FloydSteinberg did not return a paletted image: %T", out)
	}
	for _, idx := range pal.Pix {
		if idx != 0 { // index 0 == color.Black
			t.Fatalf("expected all-ink output, found white pixel (index %d)", idx)
		}
	}
}

func TestThresholdFn_SplitsAtThreshold(t *testing.T) {
	fn := ThresholdFn(128)
	src := image.NewGray(image.Rect(0, 0, 2, 1))
	src.SetGray(0, 0, color.Gray{Y: 10})  // dark -> ink
	src.SetGray(1, 0, color.Gray{Y: 250}) // light -> white
	out := fn(src).(*image.Paletted)
	if out.ColorIndexAt(0, 0) != 0 {
		t.Errorf("dark pixel expected index 0 (black), got %d", out.ColorIndexAt(0, 0))
	}
	if out.ColorIndexAt(1, 0) != 1 {
		t.Errorf("light pixel expected index 1 (white), got %d", out.ColorIndexAt(1, 0))
	}
}

func TestAllDitherFunctions_IsSortedAndNonEmpty(t *testing.T) {
	names := AllDitherFunctions()
	if len(names) == 0 {
		t.Fatal("expected at least one registered dither function")
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("AllDitherFunctions() not sorted: %v", names)
		}
	}
}

func TestDitherFunction_EmptyNameReturnsDefault(t *testing.T) {
	fn, ok := DitherFunction("")
	if !ok || fn == nil {
		t.Fatal("expected default dither function for empty name")
	}
}

func TestDitherFunction_UnknownNameNotFound(t *testing.T) {
	if _, ok := DitherFunction("does-not-exist"); ok {
		t.Fatal("expected ok=false for unregistered dither function name")
	}
}
