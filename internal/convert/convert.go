// Package convert turns a print job's document bytes into an ESC/POS byte
// stream ready for the device backend: format detection, PDF rasterisation
// via an external Ghostscript-compatible CLI, image preparation (resize,
// enhance, dither), and ESC/POS column-mode encoding.
package convert

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Format identifies a sniffed or declared document format.
type Format string

const (
	FormatPDF        Format = "application/pdf"
	FormatJPEG       Format = "image/jpeg"
	FormatPNG        Format = "image/png"
	FormatGIF        Format = "image/gif"
	FormatBMP        Format = "image/bmp"
	FormatPWGRaster  Format = "image/pwg-raster"
	FormatESCPOS     Format = "application/escpos"
	FormatOctet      Format = "application/octet-stream"
	FormatUnknown    Format = ""
)

// SupportedFormats is the set of document-format values Print-Job and
// Validate-Job accept, per spec §6.3. application/octet-stream is accepted
// too, then sniffed.
var SupportedFormats = []Format{FormatPDF, FormatPWGRaster, FormatJPEG, FormatPNG}

// IsSupported reports whether format is one SupportedFormats names, or the
// sniffable octet-stream passthrough.
func IsSupported(format string) bool {
	f := Format(format)
	if f == FormatOctet {
		return true
	}
	for _, s := range SupportedFormats {
		if s == f {
			return true
		}
	}
	return false
}

// ErrUnsupportedFormat is returned when document bytes cannot be sniffed
// into any known format.
type ErrUnsupportedFormat struct {
	Format string
}

func (e *ErrUnsupportedFormat) Error() string {
	return fmt.Sprintf("document format not supported: %q", e.Format)
}

// ErrConversion wraps any failure encountered while converting document
// bytes into an ESC/POS byte stream (rasteriser failure, malformed PDF,
// and so on). The pipeline maps this to job state aborted(8).
type ErrConversion struct {
	Reason string
	Err    error
}

func (e *ErrConversion) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("conversion failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("conversion failed: %s", e.Reason)
}

func (e *ErrConversion) Unwrap() error { return e.Err }

// Options configures a Converter instance; all fields have spec-mandated
// defaults applied by NewConverter when zero.
type Options struct {
	// PrinterMaxPixels is the printer head width in pixels (PRINTER_MAX_PIXELS).
	PrinterMaxPixels int
	// PrinterDPI is the DPI passed to the PDF rasteriser (PRINTER_DPI).
	PrinterDPI int
	// GhostscriptBinary overrides the external rasteriser binary name/path.
	GhostscriptBinary string
	// RasterTimeout bounds the rasteriser subprocess; zero means no timeout,
	// matching spec §5's "inherits no timeout by default".
	RasterTimeout time.Duration
	// Dither overrides the default Floyd-Steinberg reducer (nil = default).
	Dither DitherFunc
}

const (
	defaultMaxPixels = 576
	defaultDPI       = 203
)

// Converter implements document-bytes -> ESC/POS byte stream (component C2).
type Converter struct {
	opts Options
}

// NewConverter builds a Converter, applying spec defaults to zero fields.
func NewConverter(opts Options) *Converter {
	if opts.PrinterMaxPixels <= 0 {
		opts.PrinterMaxPixels = defaultMaxPixels
	}
	if opts.PrinterDPI <= 0 {
		opts.PrinterDPI = defaultDPI
	}
	if opts.GhostscriptBinary == "" {
		opts.GhostscriptBinary = locateGhostscript()
	}
	if opts.Dither == nil {
		opts.Dither = FloydSteinberg
	}
	return &Converter{opts: opts}
}

func locateGhostscript() string {
	for _, name := range []string{"gs", "ghostscript", "gswin64c", "gswin32c"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return "gs"
}

// Convert turns document bytes of the given declared format into an
// ESC/POS byte stream, per spec §4.4's five-step pipeline.
func (c *Converter) Convert(ctx context.Context, data []byte, declaredFormat string) ([]byte, error) {
	format := Format(declaredFormat)
	if format == FormatOctet || format == FormatUnknown {
		sniffed, err := sniff(data)
		if err != nil {
			return nil, err
		}
		format = sniffed
	}

	if format == FormatESCPOS || looksLikeESCPOS(data) {
		return data, nil
	}

	switch format {
	case FormatPDF:
		img, err := c.pdfToImage(ctx, data)
		if err != nil {
			return nil, &ErrConversion{Reason: "pdf rasterisation", Err: err}
		}
		return c.imageToESCPOS(img), nil
	case FormatJPEG, FormatPNG, FormatGIF, FormatBMP:
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, &ErrConversion{Reason: "image decode", Err: err}
		}
		return c.imageToESCPOS(img), nil
	case FormatPWGRaster:
		img := c.pwgToImage(data)
		return c.imageToESCPOS(img), nil
	default:
		return nil, &ErrUnsupportedFormat{Format: declaredFormat}
	}
}

// imageToESCPOS runs the image-prep pipeline (resize, enhance, dither) then
// encodes the result as ESC/POS column-mode commands.
func (c *Converter) imageToESCPOS(img image.Image) []byte {
	gray := toGrayscale(img)
	resized := resizeToWidth(gray, c.opts.PrinterMaxPixels)
	enhanced := enhance(resized)
	dithered := c.opts.Dither(enhanced)
	paletted, ok := dithered.(*image.Paletted)
	if !ok {
		paletted = toPaletted(dithered)
	}
	return encodeESCPOS(paletted)
}

func toPaletted(img image.Image) *image.Paletted {
	if p, ok := img.(*image.Paletted); ok {
		return p
	}
	return FloydSteinberg(img).(*image.Paletted)
}

// sniff resolves an application/octet-stream payload to a concrete format
// by magic bytes, matching spec §4.4 step 1 exactly.
func sniff(data []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(data, []byte("%PDF")):
		return FormatPDF, nil
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return FormatJPEG, nil
	case bytes.HasPrefix(data, []byte{0x89, 'P', 'N', 'G'}):
		return FormatPNG, nil
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF, nil
	case bytes.HasPrefix(data, []byte("BM")):
		return FormatBMP, nil
	case looksLikeESCPOS(data):
		return FormatESCPOS, nil
	default:
		return FormatUnknown, &ErrUnsupportedFormat{Format: "application/octet-stream (unrecognised)"}
	}
}

// looksLikeESCPOS reports whether the first 100 bytes contain an ESC or GS
// control byte, per spec §4.4 step 1's passthrough heuristic. Inputs shorter
// than 10 bytes never match.
func looksLikeESCPOS(data []byte) bool {
	n := len(data)
	if n < 10 {
		return false
	}
	if n > 100 {
		n = 100
	}
	for _, b := range data[:n] {
		if b == esc || b == gs {
			return true
		}
	}
	return false
}

// pdfToImage rasterises the first page of a PDF via an external
// Ghostscript-compatible CLI, with a direct-extraction shortcut for PDFs
// that wrap a single embedded JPEG or PNG (spec §4.4 step 3).
func (c *Converter) pdfToImage(ctx context.Context, data []byte) (image.Image, error) {
	if img, ok := extractEmbeddedImage(data); ok {
		return img, nil
	}

	dir, err := os.MkdirTemp("", "printsrv-raster-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	pdfPath := filepath.Join(dir, "in.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}
	outPath := filepath.Join(dir, "out.png")

	if c.opts.RasterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.RasterTimeout)
		defer cancel()
	}

	args := []string{
		"-dNOPAUSE", "-dBATCH", "-dSAFER",
		"-sDEVICE=png16m",
		fmt.Sprintf("-r%d", c.opts.PrinterDPI),
		"-dTextAlphaBits=4", "-dGraphicsAlphaBits=4",
		"-dFirstPage=1", "-dLastPage=1",
		fmt.Sprintf("-sOutputFile=%s", outPath),
		pdfPath,
	}
	cmd := exec.CommandContext(ctx, c.opts.GhostscriptBinary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ghostscript: %w: %s", err, stderr.String())
	}

	out, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("read rasterised page: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("decode rasterised page: %w", err)
	}
	return img, nil
}

// extractEmbeddedImage looks for a single embedded JPEG or PNG envelope
// inside PDF bytes and, if found, decodes it directly, skipping the
// rasteriser subprocess entirely (spec §4.4 step 3 optimisation).
func extractEmbeddedImage(data []byte) (image.Image, bool) {
	if start := bytes.Index(data, []byte{0xFF, 0xD8, 0xFF}); start >= 0 {
		if end := bytes.Index(data[start:], []byte{0xFF, 0xD9}); end >= 0 {
			envelope := data[start : start+end+2]
			if img, err := jpeg.Decode(bytes.NewReader(envelope)); err == nil {
				return img, true
			}
		}
	}
	if start := bytes.Index(data, []byte{0x89, 'P', 'N', 'G'}); start >= 0 {
		if end := bytes.Index(data[start:], []byte("IEND")); end >= 0 {
			envelope := data[start : start+end+8] // IEND + 4-byte CRC
			if img, err := png.Decode(bytes.NewReader(envelope)); err == nil {
				return img, true
			}
		}
	}
	return nil, false
}

const pwgHeaderSize = 1796

// pwgToImage is a best-effort PWG-Raster decoder: skip the fixed header,
// treat the remainder as a packed 1-bit bitmap of the printer's width. Any
// inconsistency (short buffer, non-divisible length) falls back to a
// generated error image rather than failing the job, per spec §4.4 step 5.
func (c *Converter) pwgToImage(data []byte) image.Image {
	width := c.opts.PrinterMaxPixels
	rowBytes := width / 8
	if rowBytes == 0 || len(data) <= pwgHeaderSize {
		return errorImage(width, "PWG-Raster not supported")
	}
	bitmap := data[pwgHeaderSize:]
	if len(bitmap)%rowBytes != 0 {
		return errorImage(width, "PWG-Raster not supported")
	}
	height := len(bitmap) / rowBytes
	if height == 0 {
		return errorImage(width, "PWG-Raster not supported")
	}

	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		row := bitmap[y*rowBytes : (y+1)*rowBytes]
		for x := 0; x < width; x++ {
			bit := row[x/8] & (1 << (7 - uint(x%8)))
			if bit != 0 {
				img.SetGray(x, y, grayWhite)
			} else {
				img.SetGray(x, y, grayBlack)
			}
		}
	}
	return img
}
