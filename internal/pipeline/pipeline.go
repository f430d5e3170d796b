// Package pipeline runs one crop: resolve the input, detect regions, merge
// them into the options, analyze, then report and/or render.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/smartcrop-cli/internal/config"
	"github.com/menta2k/smartcrop-cli/internal/logging"
	"github.com/menta2k/smartcrop-cli/internal/utils"
	"github.com/menta2k/smartcrop-cli/pkg/detection"
	"github.com/menta2k/smartcrop-cli/pkg/processing"
	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// Analyzer finds the best crop of a source
type Analyzer interface {
	Analyze(ctx context.Context, src *source.ImageSource, opts types.CropOptions) (*types.CropResult, error)
}

// Renderer turns a crop of a source into encoded image bytes
type Renderer interface {
	Render(src *source.ImageSource, crop types.Crop, opts types.RenderOptions, w io.Writer) error
}

// DebugRenderer is implemented by renderers that can draw the analysis over the source
type DebugRenderer interface {
	RenderDebug(src *source.ImageSource, topCrop types.Crop, boosts []types.BoundingBox, path string) error
}

// Request describes one run
type Request struct {
	// Input is a path, a URL or "-" for stdin
	Input string
	// Output is empty for a report only, "-" for stdout or a file path
	Output  string
	Options config.Options
	Stdin   io.Reader
}

// Pipeline wires the stages together. A nil Detector disables detection.
type Pipeline struct {
	Detector detection.RegionDetector
	Analyzer Analyzer
	Renderer Renderer
	Stdout   io.Writer
	Log      logrus.FieldLogger
}

// Run executes the request. The returned result is nil only when analysis did not happen.
func (p *Pipeline) Run(ctx context.Context, req Request) (*types.CropResult, error) {
	log := p.logger()

	src, err := source.Resolve(ctx, req.Input, req.Stdin)
	if err != nil {
		return nil, NewInputError("failed to resolve input", err)
	}
	log.WithField("source", src.String()).Info("input resolved")

	var boxes []types.BoundingBox
	if req.Options.FaceDetection {
		boxes = detection.Safe(ctx, p.Detector, src, log)
	}

	opts := req.Options.Crop(boxes)
	if keys := req.Options.ExtraKeys(); len(keys) > 0 {
		log.WithField("options", keys).Warn("forwarding options the crop engine does not know")
	}
	logging.Dump(log, "crop options", opts)

	result, err := p.Analyzer.Analyze(ctx, src, opts)
	if err != nil {
		return nil, NewAnalysisError("crop analysis failed", err)
	}
	log.WithField("topCrop", result.TopCrop.Rect().String()).Info("analysis complete")

	if req.Options.DebugOutput != "" {
		p.writeDebug(src, result, opts.Boost, req.Options.DebugOutput)
	}

	return result, p.dispatch(src, result, req)
}

// dispatch prints the report and renders the crop according to the plan
func (p *Pipeline) dispatch(src *source.ImageSource, result *types.CropResult, req Request) error {
	plan := Plan(req.Output, req.Options.Width, req.Options.Height)
	log := p.logger().WithField("state", plan.State)

	if plan.Report {
		if err := p.report(result); err != nil {
			return err
		}
	}
	if plan.State == StateIncomplete {
		log.Warn("width and height are both required to render, skipping output")
	}
	if !plan.Render {
		return nil
	}

	format := processing.ResolveFormat(req.Output, req.Options.OutputFormat)
	var buf bytes.Buffer
	if err := p.Renderer.Render(src, result.TopCrop, req.Options.Render(format), &buf); err != nil {
		return NewRenderError("failed to render crop", err)
	}

	if plan.State == StateStream {
		if _, err := p.Stdout.Write(buf.Bytes()); err != nil {
			return NewWriteError("failed to write image to stdout", err)
		}
		return nil
	}

	if !utils.ParentDirExists(req.Output) {
		return NewWriteError("output directory does not exist", errors.New(filepath.Dir(req.Output)))
	}
	if err := os.WriteFile(req.Output, buf.Bytes(), 0o644); err != nil {
		return NewWriteError("failed to write "+req.Output, err)
	}
	log.WithFields(logrus.Fields{
		"output": req.Output,
		"format": format,
		"size":   utils.FormatFileSize(int64(buf.Len())),
	}).Info("wrote crop")
	return nil
}

// report writes the analysis result as indented JSON
func (p *Pipeline) report(result *types.CropResult) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return NewWriteError("failed to encode report", err)
	}
	data = append(data, '\n')
	if _, err := p.Stdout.Write(data); err != nil {
		return NewWriteError("failed to write report", err)
	}
	return nil
}

// writeDebug saves the overlay image. Failure only costs the overlay.
func (p *Pipeline) writeDebug(src *source.ImageSource, result *types.CropResult, boosts []types.BoundingBox, path string) {
	log := p.logger().WithField("debugOutput", path)
	d, ok := p.Renderer.(DebugRenderer)
	if !ok {
		log.Warn("renderer cannot draw debug overlays")
		return
	}
	if err := d.RenderDebug(src, result.TopCrop, boosts, path); err != nil {
		log.WithError(err).Warn("failed to write debug overlay")
		return
	}
	log.Info("wrote debug overlay")
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logging.Logger
	}
	return p.Log
}
