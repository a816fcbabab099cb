package convert

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func TestSniff(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Format
	}{
		{"pdf", []byte("%PDF-1.4 rest"), FormatPDF},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG},
		{"png", append([]byte{0x89, 'P', 'N', 'G'}, make([]byte, 20)...), FormatPNG},
		{"gif87", []byte("GIF87a....."), FormatGIF},
		{"gif89", []byte("GIF89a....."), FormatGIF},
		{"bmp", []byte("BM....."), FormatBMP},
		{"escpos", append([]byte{0x1b, '@'}, bytes.Repeat([]byte{'x'}, 10)...), FormatESCPOS},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sniff(tt.data)
			if err != nil {
				t.Fatalf("sniff() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("sniff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSniff_UnrecognisedReturnsError(t *testing.T) {
	_, err := sniff([]byte("not a known format at all, just text"))
	if err == nil {
		t.Fatal("expected an error for unrecognised bytes")
	}
	var target *ErrUnsupportedFormat
	if !asUnsupported(err, &target) {
		t.Errorf("expected *ErrUnsupportedFormat, got %T", err)
	}
}

func asUnsupported(err error, target **ErrUnsupportedFormat) bool {
	if e, ok := err.(*ErrUnsupportedFormat); ok {
		*target = e
		return true
	}
	return false
}

func TestIsSupported(t *testing.T) {
	for _, f := range []string{"application/pdf", "image/jpeg", "image/png", "image/pwg-raster", "application/octet-stream"} {
		if !IsSupported(f) {
			t.Errorf("expected %q to be supported", f)
		}
	}
	if IsSupported("application/postscript") {
		t.Error("expected application/postscript to be unsupported")
	}
}

func TestConverter_ESCPOSPassthrough(t *testing.T) {
	c := NewConverter(Options{})
	raw := append([]byte{0x1b, '@'}, bytes.Repeat([]byte{0x00}, 20)...)
	out, err := c.Convert(context.Background(), raw, "application/octet-stream")
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !bytes.Equal(out, raw) {
		t.Error("expected ESC/POS input to pass through unchanged")
	}
}

func TestConverter_PNGProducesFramedESCPOS(t *testing.T) {
	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			img.Set(x, y, color.White)
		}
	}
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture png: %v", err)
	}

	c := NewConverter(Options{PrinterMaxPixels: 64})
	out, err := c.Convert(context.Background(), buf.Bytes(), "image/png")
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !bytes.HasPrefix(out, []byte{esc, '@'}) {
		t.Error("expected ESC @ prefix")
	}
	if !bytes.HasSuffix(out, []byte{gs, 'V', 'B', 0}) {
		t.Error("expected GS V B 0 suffix")
	}
}

func TestConverter_PWGFallbackOnShortBuffer(t *testing.T) {
	c := NewConverter(Options{PrinterMaxPixels: 64})
	img := c.pwgToImage([]byte("too short"))
	if img.Bounds().Dy() != errorImageHeight {
		t.Errorf("expected fallback error image of height %d, got %d", errorImageHeight, img.Bounds().Dy())
	}
}
