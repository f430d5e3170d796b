// Package smartcrop finds the most interesting crop of an image and renders it.
//
// The crop search scores candidate windows by edge detail, skin tones and
// saturation, optionally biased towards regions found by a face or subject
// detector. It is the library behind the smartcrop command.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		"github.com/menta2k/smartcrop-cli"
//	)
//
//	func main() {
//		c := smartcrop.New()
//
//		// Report the best 300x200 crop and write the thumbnail
//		result, err := c.CropFile(context.Background(), "photo.jpg", "thumb.jpg", 300, 200)
//		if err != nil {
//			log.Fatal(err)
//		}
//		fmt.Printf("top crop: %+v\n", result.TopCrop)
//	}
//
// The package consists of these components:
//
// 1. Source (pkg/source): resolves a path, URL or stdin into a re-readable image source
// 2. Detection (pkg/detection): optional face or subject regions, never fatal
// 3. Analyzer (pkg/analyzer): runs a crop engine over the decoded image
// 4. Processing (pkg/processing): crops, resizes, sharpens and encodes the result
package smartcrop

import (
	"bytes"
	"context"
	"image"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/smartcrop-cli/internal/config"
	"github.com/menta2k/smartcrop-cli/internal/pipeline"
	"github.com/menta2k/smartcrop-cli/pkg/analyzer"
	"github.com/menta2k/smartcrop-cli/pkg/detection"
	"github.com/menta2k/smartcrop-cli/pkg/processing"
	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// Version of the smartcrop library
const Version = "1.0.0"

// SmartCrop provides a high-level interface for crop analysis and rendering
type SmartCrop struct {
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
	detector  detection.RegionDetector
	log       logrus.FieldLogger
}

// New creates a SmartCrop with the builtin engine and no detector
func New() *SmartCrop {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return &SmartCrop{
		analyzer:  analyzer.New(log),
		processor: processing.NewProcessor(),
		log:       log,
	}
}

// NewWithConfig creates a SmartCrop using the named engine. The detector is
// consulted by FindCrop when det.Enabled is set and degrades to no regions
// when it cannot be built.
func NewWithConfig(engine string, det detection.Config, log logrus.FieldLogger) (*SmartCrop, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	e, err := analyzer.NewEngine(engine, log)
	if err != nil {
		return nil, err
	}
	sc := &SmartCrop{
		analyzer:  analyzer.NewWithEngine(e, log),
		processor: processing.NewProcessor(),
		log:       log,
	}
	if det.Enabled {
		sc.detector = detection.Select(det, log)
	}
	return sc, nil
}

// FindCrop returns the best crop of src. Detected regions replace opts.Boost.
func (sc *SmartCrop) FindCrop(ctx context.Context, src *source.ImageSource, opts types.CropOptions) (*types.CropResult, error) {
	if boxes := detection.Safe(ctx, sc.detector, src, sc.log); len(boxes) > 0 {
		opts.Boost = boxes
	}
	return sc.analyzer.Analyze(ctx, src, opts)
}

// FindCropImage returns the best crop of an already decoded image
func (sc *SmartCrop) FindCropImage(ctx context.Context, img image.Image, width, height int) (*types.CropResult, error) {
	opts := types.DefaultCropOptions()
	opts.Width, opts.Height = width, height
	return sc.analyzer.AnalyzeImage(ctx, img, opts)
}

// Render writes the crop of src resized to width x height in the given format
func (sc *SmartCrop) Render(src *source.ImageSource, crop types.Crop, width, height int, format string, w io.Writer) error {
	return sc.processor.Render(src, crop, types.RenderOptions{Width: width, Height: height, OutputFormat: format}, w)
}

// CropFile analyzes inputPath and writes a width x height thumbnail to
// outputPath. An empty outputPath only analyzes. The output format follows
// the outputPath extension.
func (sc *SmartCrop) CropFile(ctx context.Context, inputPath, outputPath string, width, height int) (*types.CropResult, error) {
	opts, err := config.Merge(map[string]any{"width": width, "height": height, "faceDetection": sc.detector != nil})
	if err != nil {
		return nil, err
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	p := &pipeline.Pipeline{
		Detector: sc.detector,
		Analyzer: sc.analyzer,
		Renderer: sc.processor,
		Stdout:   io.Discard,
		Log:      sc.log,
	}
	return p.Run(ctx, pipeline.Request{Input: inputPath, Output: outputPath, Options: opts})
}

// CropBytes analyzes an encoded image and returns the rendered width x height crop
func (sc *SmartCrop) CropBytes(ctx context.Context, data []byte, width, height int, format string) (*types.CropResult, []byte, error) {
	src := source.FromBytes(data)
	opts := types.DefaultCropOptions()
	opts.Width, opts.Height = width, height

	result, err := sc.FindCrop(ctx, src, opts)
	if err != nil {
		return nil, nil, err
	}
	var buf bytes.Buffer
	if err := sc.Render(src, result.TopCrop, width, height, format, &buf); err != nil {
		return nil, nil, err
	}
	return result, buf.Bytes(), nil
}

// GetImageInfo returns basic information about an image
func (sc *SmartCrop) GetImageInfo(img image.Image) analyzer.ImageInfo {
	return analyzer.GetImageInfo(img)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
