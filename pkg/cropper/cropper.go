package cropper

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/smartcrop-cli/pkg/types"
	"github.com/menta2k/smartcrop-cli/pkg/vision"
)

// prescaleTarget is the short side the image is reduced to before analysis
const prescaleTarget = 256.0

// ErrNoCandidates is returned when no crop of the requested size fits the image
var ErrNoCandidates = errors.New("no crop candidate fits the image")

// SmartCropper finds the crop that keeps the most important content
type SmartCropper struct{}

// New creates a new SmartCropper
func New() *SmartCropper {
	return &SmartCropper{}
}

// candidate is a crop in the (possibly prescaled) analysis space
type candidate struct {
	x, y, width, height float64
	score               types.Score
}

// Validate checks that the options can drive a crop search
func Validate(opts types.CropOptions) error {
	if opts.Width < 0 || opts.Height < 0 {
		return fmt.Errorf("crop size must not be negative: %dx%d", opts.Width, opts.Height)
	}
	if opts.Step <= 0 {
		return fmt.Errorf("step must be positive, got %d", opts.Step)
	}
	if opts.ScoreDownSample <= 0 {
		return fmt.Errorf("scoreDownSample must be positive, got %d", opts.ScoreDownSample)
	}
	if opts.MinScale <= 0 || opts.MaxScale <= 0 {
		return fmt.Errorf("minScale and maxScale must be positive")
	}
	for i, b := range opts.Boost {
		if b.Weight < 0 {
			return fmt.Errorf("boost %d has negative weight %f", i, b.Weight)
		}
	}
	return nil
}

// Crop runs the full analysis and returns the best crop together with every scored candidate.
func (c *SmartCropper) Crop(img image.Image, opts types.CropOptions) (*types.CropResult, error) {
	if err := Validate(opts); err != nil {
		return nil, err
	}

	src := imaging.Clone(img)
	imgWidth, imgHeight := src.Bounds().Dx(), src.Bounds().Dy()
	if imgWidth == 0 || imgHeight == 0 {
		return nil, fmt.Errorf("invalid image dimensions")
	}

	width, height := float64(opts.Width), float64(opts.Height)
	if opts.Aspect > 0 {
		width, height = opts.Aspect, 1
	}

	analysed := src
	prescale := 1.0
	if width > 0 && height > 0 {
		scale := math.Min(float64(imgWidth)/width, float64(imgHeight)/height)
		opts.CropWidth = math.Floor(width * scale)
		opts.CropHeight = math.Floor(height * scale)
		opts.MinScale = math.Min(opts.MaxScale, math.Max(1/scale, opts.MinScale))

		if opts.Prescale {
			prescale = math.Min(math.Max(prescaleTarget/float64(imgWidth), prescaleTarget/float64(imgHeight)), 1)
			if prescale < 1 {
				analysed = imaging.Resize(src,
					int(float64(imgWidth)*prescale),
					int(float64(imgHeight)*prescale),
					imaging.Linear)
				opts.CropWidth = math.Floor(opts.CropWidth * prescale)
				opts.CropHeight = math.Floor(opts.CropHeight * prescale)
				opts.Boost = scaleBoosts(opts.Boost, prescale)
			} else {
				prescale = 1
			}
		}
	}

	crops, top, err := c.analyse(analysed, opts)
	if err != nil {
		return nil, err
	}

	result := &types.CropResult{
		TopCrop: unscale(top, prescale, imgWidth, imgHeight),
		Crops:   make([]types.Crop, 0, len(crops)),
		Engine:  "builtin",
	}
	for _, cand := range crops {
		result.Crops = append(result.Crops, unscale(cand, prescale, imgWidth, imgHeight))
	}
	return result, nil
}

func (c *SmartCropper) analyse(img *image.NRGBA, opts types.CropOptions) ([]candidate, candidate, error) {
	importance := vision.NewImportanceMap(img, opts)
	scoreMap := importance.DownSample(opts.ScoreDownSample)

	crops := generateCrops(opts, img.Bounds().Dx(), img.Bounds().Dy())
	if len(crops) == 0 {
		return nil, candidate{}, ErrNoCandidates
	}

	topScore := math.Inf(-1)
	top := 0
	for i := range crops {
		crops[i].score = score(scoreMap, crops[i], opts)
		if crops[i].score.Total > topScore {
			topScore = crops[i].score.Total
			top = i
		}
	}
	return crops, crops[top], nil
}

func generateCrops(opts types.CropOptions, width, height int) []candidate {
	var results []candidate
	minDimension := float64(minInt(width, height))

	cropWidth := opts.CropWidth
	if cropWidth <= 0 {
		cropWidth = minDimension
	}
	cropHeight := opts.CropHeight
	if cropHeight <= 0 {
		cropHeight = minDimension
	}

	for scale := opts.MaxScale; scale >= opts.MinScale; scale -= opts.ScaleStep {
		w, h := cropWidth*scale, cropHeight*scale
		for y := 0; float64(y)+h <= float64(height); y += opts.Step {
			for x := 0; float64(x)+w <= float64(width); x += opts.Step {
				results = append(results, candidate{
					x:      float64(x),
					y:      float64(y),
					width:  w,
					height: h,
				})
			}
		}
		if opts.ScaleStep <= 0 {
			break
		}
	}
	return results
}

// score weighs every feature of the downsampled map by its importance for the crop
func score(output *vision.ImportanceMap, crop candidate, opts types.CropOptions) types.Score {
	var result types.Score
	downSample := opts.ScoreDownSample
	outputWidth, outputHeight := output.Bounds().Dx(), output.Bounds().Dy()

	for oy := 0; oy < outputHeight; oy++ {
		for ox := 0; ox < outputWidth; ox++ {
			x, y := float64(ox*downSample), float64(oy*downSample)
			i := importance(opts, crop, x, y)
			detail := output.Feature(ox, oy, vision.DetailChannel)

			result.Skin += output.Feature(ox, oy, vision.SkinChannel) * (detail + opts.SkinBias) * i
			result.Detail += detail * i
			result.Saturation += output.Feature(ox, oy, vision.SaturationChannel) * (detail + opts.SaturationBias) * i
			result.Boost += output.Feature(ox, oy, vision.BoostChannel) * i
		}
	}

	result.Total = (result.Detail*opts.DetailWeight +
		result.Skin*opts.SkinWeight +
		result.Saturation*opts.SaturationWeight +
		result.Boost*opts.BoostWeight) / (crop.width * crop.height)
	return result
}

// importance favours the centre and the thirds lines of a crop and
// penalises everything outside it
func importance(opts types.CropOptions, crop candidate, x, y float64) float64 {
	if crop.x > x || x >= crop.x+crop.width || crop.y > y || y >= crop.y+crop.height {
		return opts.OutsideImportance
	}
	x = (x - crop.x) / crop.width
	y = (y - crop.y) / crop.height
	px := math.Abs(0.5-x) * 2
	py := math.Abs(0.5-y) * 2

	// distance from edge
	dx := math.Max(px-1+opts.EdgeRadius, 0)
	dy := math.Max(py-1+opts.EdgeRadius, 0)
	d := (dx*dx + dy*dy) * opts.EdgeWeight

	s := 1.41 - math.Sqrt(px*px+py*py)
	if opts.RuleOfThirds {
		s += math.Max(0, s+d+0.5) * 1.2 * (thirds(px) + thirds(py))
	}
	return s + d
}

// thirds peaks at one third of the way to the crop edge
func thirds(x float64) float64 {
	x = (math.Mod(x-1.0/3.0+1.0, 2.0)*0.5 - 0.5) * 16
	return math.Max(1.0-x*x, 0)
}

func scaleBoosts(boosts []types.BoundingBox, factor float64) []types.BoundingBox {
	if boosts == nil {
		return nil
	}
	scaled := make([]types.BoundingBox, len(boosts))
	for i, b := range boosts {
		scaled[i] = types.BoundingBox{
			X:      math.Floor(b.X * factor),
			Y:      math.Floor(b.Y * factor),
			Width:  math.Floor(b.Width * factor),
			Height: math.Floor(b.Height * factor),
			Weight: b.Weight,
		}
	}
	return scaled
}

// unscale maps a candidate back to source pixels and keeps it inside the image
func unscale(c candidate, prescale float64, imgWidth, imgHeight int) types.Crop {
	crop := types.Crop{
		X:      int(c.x / prescale),
		Y:      int(c.y / prescale),
		Width:  int(c.width / prescale),
		Height: int(c.height / prescale),
	}
	crop.Width = minInt(crop.Width, imgWidth)
	crop.Height = minInt(crop.Height, imgHeight)
	if crop.X+crop.Width > imgWidth {
		crop.X = imgWidth - crop.Width
	}
	if crop.Y+crop.Height > imgHeight {
		crop.Y = imgHeight - crop.Height
	}
	s := c.score
	crop.Score = &s
	return crop
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
