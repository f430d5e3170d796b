// Package processing renders a chosen crop into an encoded output image.
package processing

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/smartcrop-cli/internal/utils"
	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// Unsharp mask applied after resizing: radius 2, sigma 0.5, amount 1, threshold 0.008
const (
	unsharpSigma     = 0.5
	unsharpAmount    = 1.0
	unsharpThreshold = 0.008
)

// defaultWebPQuality matches libwebp's own default
const defaultWebPQuality = 75

// Processor handles image processing operations
type Processor struct{}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{}
}

// Render crops src to crop, resizes it to the requested size, sharpens it and
// encodes it to w. The output carries no metadata and is always sRGB.
func (p *Processor) Render(src *source.ImageSource, crop types.Crop, opts types.RenderOptions, w io.Writer) error {
	img, err := src.Decode()
	if err != nil {
		return err
	}

	out, err := p.Transform(img, crop, opts.Width, opts.Height)
	if err != nil {
		return err
	}
	return Encode(w, out, opts.OutputFormat, opts.Quality, opts.Lossless)
}

// Transform runs the pixel part of the render chain: crop, resize and sharpen
func (p *Processor) Transform(img image.Image, crop types.Crop, width, height int) (*image.NRGBA, error) {
	bounds := img.Bounds()
	rect := crop.Rect().Add(bounds.Min)
	if rect.Empty() || !rect.In(bounds) {
		return nil, fmt.Errorf("crop rectangle %v does not fit image %v", crop.Rect(), bounds.Sub(bounds.Min))
	}

	out := imaging.Crop(img, rect)
	if width > 0 && height > 0 {
		out = imaging.Resize(out, width, height, imaging.Lanczos)
	}
	return UnsharpMask(out, unsharpSigma, unsharpAmount, unsharpThreshold), nil
}

// UnsharpMask adds amount times the difference between img and its gaussian
// blur wherever that difference exceeds threshold (a fraction of full scale).
func UnsharpMask(img image.Image, sigma, amount, threshold float64) *image.NRGBA {
	src := imaging.Clone(img)
	if sigma <= 0 || amount == 0 {
		return src
	}
	blurred := imaging.Blur(src, sigma)
	out := image.NewNRGBA(src.Bounds())
	limit := threshold * 255

	for i := 0; i < len(src.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			orig := float64(src.Pix[i+c])
			diff := orig - float64(blurred.Pix[i+c])
			if diff > limit || -diff > limit {
				orig += amount * diff
			}
			out.Pix[i+c] = clampByte(orig)
		}
		out.Pix[i+3] = src.Pix[i+3]
	}
	return out
}

// Encode writes img in the given format. quality <= 0 keeps the encoder default.
func Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch f := normalizeFormat(format); f {
	case "webp":
		if quality <= 0 {
			quality = defaultWebPQuality
		}
		return webp.Encode(w, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	default:
		imgFormat, err := imaging.FormatFromExtension(f)
		if err != nil {
			return fmt.Errorf("unsupported output format: %s", format)
		}
		var encOpts []imaging.EncodeOption
		if quality > 0 {
			encOpts = append(encOpts, imaging.JPEGQuality(quality))
		}
		return imaging.Encode(w, img, imgFormat, encOpts...)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return Encode(f, img, format, quality, lossless)
}

// ResolveFormat picks the output format from the file extension of output,
// falling back to fallback for streams and unknown extensions.
func ResolveFormat(output, fallback string) string {
	if output != "" && output != source.StreamName {
		ext := normalizeFormat(utils.GetFileExtension(output))
		if SupportedFormat(ext) {
			return ext
		}
	}
	return normalizeFormat(fallback)
}

// SupportedFormat reports whether Encode can write format
func SupportedFormat(format string) bool {
	f := normalizeFormat(format)
	if f == "webp" {
		return true
	}
	_, err := imaging.FormatFromExtension(f)
	return err == nil
}

func normalizeFormat(format string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	return uint8(clamp(v, 0, 255) + 0.5)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
