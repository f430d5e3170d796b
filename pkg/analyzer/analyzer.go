// Package analyzer decodes an image source and runs a crop engine over it.
package analyzer

import (
	"context"
	"fmt"
	"image"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// ImageAnalyzer finds the best crop of an image source
type ImageAnalyzer struct {
	config Config
	engine Engine
	log    logrus.FieldLogger
}

// Config holds configuration for the image analyzer
type Config struct {
	MinImageSize int
}

// New creates an ImageAnalyzer that uses the builtin engine
func New(log logrus.FieldLogger) *ImageAnalyzer {
	return NewWithEngine(NewBuiltinEngine(), log)
}

// NewWithEngine creates an ImageAnalyzer that delegates scoring to engine
func NewWithEngine(engine Engine, log logrus.FieldLogger) *ImageAnalyzer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ImageAnalyzer{
		config: Config{MinImageSize: 1},
		engine: engine,
		log:    log,
	}
}

// Engine returns the name of the configured engine
func (a *ImageAnalyzer) Engine() string {
	return a.engine.Name()
}

// Analyze decodes src and returns the top crop and the scored candidates
func (a *ImageAnalyzer) Analyze(ctx context.Context, src *source.ImageSource, opts types.CropOptions) (*types.CropResult, error) {
	img, err := src.Decode()
	if err != nil {
		return nil, err
	}
	if err := a.ValidateImage(img); err != nil {
		return nil, err
	}
	return a.AnalyzeImage(ctx, img, opts)
}

// AnalyzeImage runs the engine on an already decoded image
func (a *ImageAnalyzer) AnalyzeImage(ctx context.Context, img image.Image, opts types.CropOptions) (*types.CropResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info := GetImageInfo(img)
	a.log.WithFields(logrus.Fields{
		"engine": a.engine.Name(),
		"width":  info.Width,
		"height": info.Height,
		"boosts": len(opts.Boost),
	}).Debug("analyzing image")

	result, err := a.engine.Crop(ctx, img, opts)
	if err != nil {
		return nil, fmt.Errorf("%s engine: %w", a.engine.Name(), err)
	}

	a.log.WithFields(logrus.Fields{
		"topCrop":    result.TopCrop.Rect().String(),
		"candidates": len(result.Crops),
	}).Debug("analysis complete")
	return result, nil
}

// GetImageInfo returns basic information about an image
func GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			bounds.Dx(), bounds.Dy(), a.config.MinImageSize)
	}
	return nil
}
