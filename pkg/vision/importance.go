// Package vision builds the importance map the crop search scores against.
//
// The map is an *image.NRGBA of the same size as the analysed image where
// each channel holds one feature:
//
//	R  skin likelihood
//	G  detail (edge strength)
//	B  saturation
//	A  boost (caller supplied regions of interest)
//
// Keeping the features in an image makes the map cheap to downsample and
// trivial to dump for debugging.
package vision

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// Channel offsets inside a pixel of the importance map
const (
	SkinChannel       = 0
	DetailChannel     = 1
	SaturationChannel = 2
	BoostChannel      = 3
)

// ImportanceMap holds the per-pixel features of an image
type ImportanceMap struct {
	*image.NRGBA
}

// NewImportanceMap analyses img with the given options. Boost regions are
// expected in img's pixel space.
func NewImportanceMap(img image.Image, opts types.CropOptions) *ImportanceMap {
	src := imaging.Clone(img)
	out := &ImportanceMap{image.NewNRGBA(image.Rect(0, 0, src.Bounds().Dx(), src.Bounds().Dy()))}

	out.detectEdges(src)
	out.detectSkin(src, opts)
	out.detectSaturation(src, opts)
	out.applyBoosts(opts.Boost)
	return out
}

// cie returns the luminance used by every detector
func cie(r, g, b float64) float64 {
	return 0.5126*b + 0.7152*g + 0.0722*r
}

func sample(pix []uint8, p int) float64 {
	return cie(float64(pix[p]), float64(pix[p+1]), float64(pix[p+2]))
}

func (m *ImportanceMap) detectEdges(src *image.NRGBA) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*src.Stride + x*4
			var lightness float64
			if x == 0 || x >= w-1 || y == 0 || y >= h-1 {
				lightness = sample(src.Pix, p)
			} else {
				lightness = sample(src.Pix, p)*4 -
					sample(src.Pix, p-src.Stride) -
					sample(src.Pix, p-4) -
					sample(src.Pix, p+4) -
					sample(src.Pix, p+src.Stride)
			}
			m.Pix[y*m.Stride+x*4+DetailChannel] = clampByte(lightness)
		}
	}
}

func skinColor(opts types.CropOptions, r, g, b float64) float64 {
	mag := math.Sqrt(r*r + g*g + b*b)
	if mag == 0 {
		return 0
	}
	rd := r/mag - opts.SkinColor[0]
	gd := g/mag - opts.SkinColor[1]
	bd := b/mag - opts.SkinColor[2]
	d := math.Sqrt(rd*rd + gd*gd + bd*bd)
	return 1 - d
}

func (m *ImportanceMap) detectSkin(src *image.NRGBA, opts types.CropOptions) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*src.Stride + x*4
			r, g, b := float64(src.Pix[p]), float64(src.Pix[p+1]), float64(src.Pix[p+2])
			lightness := cie(r, g, b) / 255
			skin := skinColor(opts, r, g, b)
			isSkinColor := skin > opts.SkinThreshold
			isSkinBrightness := lightness >= opts.SkinBrightnessMin && lightness <= opts.SkinBrightnessMax

			o := y*m.Stride + x*4 + SkinChannel
			if isSkinColor && isSkinBrightness && opts.SkinThreshold < 1 {
				m.Pix[o] = clampByte((skin - opts.SkinThreshold) * (255 / (1 - opts.SkinThreshold)))
			} else {
				m.Pix[o] = 0
			}
		}
	}
}

func saturation(r, g, b float64) float64 {
	maximum := math.Max(r/255, math.Max(g/255, b/255))
	minimum := math.Min(r/255, math.Min(g/255, b/255))
	if maximum == minimum {
		return 0
	}
	l := (maximum + minimum) / 2
	d := maximum - minimum
	if l > 0.5 {
		return d / (2 - maximum - minimum)
	}
	return d / (maximum + minimum)
}

func (m *ImportanceMap) detectSaturation(src *image.NRGBA, opts types.CropOptions) {
	w, h := src.Bounds().Dx(), src.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := y*src.Stride + x*4
			r, g, b := float64(src.Pix[p]), float64(src.Pix[p+1]), float64(src.Pix[p+2])
			lightness := cie(r, g, b) / 255
			sat := saturation(r, g, b)
			acceptableSaturation := sat > opts.SaturationThreshold
			acceptableLightness := lightness >= opts.SaturationBrightnessMin && lightness <= opts.SaturationBrightnessMax

			o := y*m.Stride + x*4 + SaturationChannel
			if acceptableSaturation && acceptableLightness && opts.SaturationThreshold < 1 {
				m.Pix[o] = clampByte((sat - opts.SaturationThreshold) * (255 / (1 - opts.SaturationThreshold)))
			} else {
				m.Pix[o] = 0
			}
		}
	}
}

func (m *ImportanceMap) applyBoosts(boosts []types.BoundingBox) {
	for _, b := range boosts {
		m.applyBoost(b)
	}
}

// applyBoost accumulates weight*255 into the boost channel, saturating at 255.
// Regions are clipped to the map.
func (m *ImportanceMap) applyBoost(b types.BoundingBox) {
	bounds := m.Bounds()
	x0 := maxInt(int(b.X), bounds.Min.X)
	y0 := maxInt(int(b.Y), bounds.Min.Y)
	x1 := minInt(int(b.X+b.Width), bounds.Max.X)
	y1 := minInt(int(b.Y+b.Height), bounds.Max.Y)
	weight := b.Weight * 255

	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			i := y*m.Stride + x*4 + BoostChannel
			m.Pix[i] = clampByte(float64(m.Pix[i]) + weight)
		}
	}
}

// DownSample averages factor×factor blocks. Skin and detail keep part of the
// block maximum so small strong features survive.
func (m *ImportanceMap) DownSample(factor int) *ImportanceMap {
	if factor <= 1 {
		return m
	}
	iw := m.Bounds().Dx()
	width := iw / factor
	height := m.Bounds().Dy() / factor
	out := &ImportanceMap{image.NewNRGBA(image.Rect(0, 0, width, height))}
	ifactor2 := 1.0 / float64(factor*factor)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var r, g, b, a, mr, mg float64
			for v := 0; v < factor; v++ {
				for u := 0; u < factor; u++ {
					j := (y*factor+v)*m.Stride + (x*factor+u)*4
					r += float64(m.Pix[j])
					g += float64(m.Pix[j+1])
					b += float64(m.Pix[j+2])
					a += float64(m.Pix[j+3])
					mr = math.Max(mr, float64(m.Pix[j]))
					mg = math.Max(mg, float64(m.Pix[j+1]))
				}
			}
			i := y*out.Stride + x*4
			out.Pix[i] = clampByte(r*ifactor2*0.5 + mr*0.5)
			out.Pix[i+1] = clampByte(g*ifactor2*0.7 + mg*0.3)
			out.Pix[i+2] = clampByte(b * ifactor2)
			out.Pix[i+3] = clampByte(a * ifactor2)
		}
	}
	return out
}

// Feature returns the channel value at (x, y) scaled to [0,1]
func (m *ImportanceMap) Feature(x, y, channel int) float64 {
	return float64(m.Pix[y*m.Stride+x*4+channel]) / 255
}

func clampByte(v float64) uint8 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(math.Round(v))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
