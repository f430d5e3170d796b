package analyzer

import (
	"context"
	"fmt"
	"image"
	"log"

	"github.com/muesli/smartcrop"
	"github.com/muesli/smartcrop/nfnt"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/smartcrop-cli/pkg/cropper"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// Engine scores crops of a decoded image
type Engine interface {
	Name() string
	Crop(ctx context.Context, img image.Image, opts types.CropOptions) (*types.CropResult, error)
}

// Engine names accepted by NewEngine
const (
	EngineBuiltin = "builtin"
	EngineMuesli  = "muesli"
)

// NewEngine returns the engine registered under name
func NewEngine(name string, log logrus.FieldLogger) (Engine, error) {
	switch name {
	case "", EngineBuiltin:
		return NewBuiltinEngine(), nil
	case EngineMuesli:
		return NewMuesliEngine(log), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (expected %s or %s)", name, EngineBuiltin, EngineMuesli)
	}
}

// BuiltinEngine runs the in-tree cropper, which honours every crop option
type BuiltinEngine struct {
	cropper *cropper.SmartCropper
}

// NewBuiltinEngine creates the default engine
func NewBuiltinEngine() *BuiltinEngine {
	return &BuiltinEngine{cropper: cropper.New()}
}

func (e *BuiltinEngine) Name() string { return EngineBuiltin }

func (e *BuiltinEngine) Crop(_ context.Context, img image.Image, opts types.CropOptions) (*types.CropResult, error) {
	return e.cropper.Crop(img, opts)
}

// MuesliEngine delegates to github.com/muesli/smartcrop.
// Only width, height and debug are honoured; it has no notion of boost regions.
type MuesliEngine struct {
	log logrus.FieldLogger
}

// NewMuesliEngine creates an engine backed by muesli/smartcrop
func NewMuesliEngine(log logrus.FieldLogger) *MuesliEngine {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &MuesliEngine{log: log}
}

func (e *MuesliEngine) Name() string { return EngineMuesli }

func (e *MuesliEngine) Crop(_ context.Context, img image.Image, opts types.CropOptions) (*types.CropResult, error) {
	if len(opts.Boost) > 0 {
		e.log.WithField("boosts", len(opts.Boost)).Warn("muesli engine ignores boost regions")
	}

	bounds := img.Bounds()
	width, height := opts.Width, opts.Height
	if opts.Aspect > 0 {
		width, height = int(opts.Aspect*1000), 1000
	}
	if width <= 0 || height <= 0 {
		side := minInt(bounds.Dx(), bounds.Dy())
		width, height = side, side
	}

	base := logrus.StandardLogger()
	if l, ok := e.log.(*logrus.Logger); ok {
		base = l
	}
	w := base.WriterLevel(logrus.DebugLevel)
	defer w.Close()

	analyzer := smartcrop.NewAnalyzerWithLogger(nfnt.NewDefaultResizer(), smartcrop.Logger{
		DebugMode: opts.Debug,
		Log:       log.New(w, "smartcrop: ", 0),
	})

	rect, err := analyzer.FindBestCrop(img, width, height)
	if err != nil {
		return nil, err
	}

	top := types.CropFromRect(rect.Sub(bounds.Min))
	return &types.CropResult{
		TopCrop: top,
		Crops:   []types.Crop{top},
		Engine:  EngineMuesli,
	}, nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
