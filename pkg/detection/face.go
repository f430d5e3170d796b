package detection

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// DefaultMinQuality is the detection score below which a face is discarded
const DefaultMinQuality = 5.0

// FaceDetector finds faces with a pigo cascade classifier
type FaceDetector struct {
	classifier *pigo.Pigo
	policy     WeightPolicy

	MinSize     int
	ShiftFactor float64
	ScaleFactor float64
	IoU         float64
	Angle       float64
	MinQuality  float64
}

// ErrNoCascade is returned when face detection is requested without a cascade file
var ErrNoCascade = errors.New("face detection needs a pigo cascade file, set --cascade or SMARTCROP_CASCADE")

// LoadFaceDetector reads a pigo cascade file (such as facefinder) from disk
func LoadFaceDetector(path string, policy WeightPolicy, minQuality float64) (*FaceDetector, error) {
	if path == "" {
		return nil, ErrNoCascade
	}
	cascade, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading the cascade file: %w", err)
	}
	return NewFaceDetector(cascade, policy, minQuality)
}

// NewFaceDetector unpacks a pigo cascade
func NewFaceDetector(cascade []byte, policy WeightPolicy, minQuality float64) (fd *FaceDetector, err error) {
	// pigo indexes into the cascade without bounds checks
	defer func() {
		if r := recover(); r != nil {
			fd, err = nil, fmt.Errorf("error unpacking the cascade file: %v", r)
		}
	}()

	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("error unpacking the cascade file: %w", err)
	}
	if minQuality <= 0 {
		minQuality = DefaultMinQuality
	}
	return &FaceDetector{
		classifier:  classifier,
		policy:      policy,
		MinSize:     20,
		ShiftFactor: 0.1,
		ScaleFactor: 1.1,
		IoU:         0.2,
		MinQuality:  minQuality,
	}, nil
}

func (f *FaceDetector) Name() string { return KindFace }

func (f *FaceDetector) Detect(ctx context.Context, src *source.ImageSource) ([]types.BoundingBox, error) {
	img, err := src.Decode()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.DetectImage(img), nil
}

// DetectImage runs the cascade over img
func (f *FaceDetector) DetectImage(img image.Image) []types.BoundingBox {
	cols, rows := img.Bounds().Dx(), img.Bounds().Dy()
	pixels := pigo.RgbToGrayscale(img)

	cParams := pigo.CascadeParams{
		MinSize:     f.MinSize,
		MaxSize:     maxInt(cols, rows),
		ShiftFactor: f.ShiftFactor,
		ScaleFactor: f.ScaleFactor,

		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	// Each detection is a (row, col, scale, score) quadruplet
	faces := f.classifier.RunCascade(cParams, f.Angle)
	faces = f.classifier.ClusterDetections(faces, f.IoU)

	return faceBoxes(faces, f.MinQuality, f.policy, image.Rect(0, 0, cols, rows))
}

// faceBoxes turns square detections into clipped boxes. Confidence weights are
// relative to the strongest face since pigo scores are unbounded.
func faceBoxes(faces []pigo.Detection, minQuality float64, policy WeightPolicy, bounds image.Rectangle) []types.BoundingBox {
	var best float64
	for _, face := range faces {
		best = math.Max(best, float64(face.Q))
	}

	var boxes []types.BoundingBox
	for _, face := range faces {
		if float64(face.Q) < minQuality {
			continue
		}
		r := image.Rect(
			face.Col-face.Scale/2,
			face.Row-face.Scale/2,
			face.Col+face.Scale/2,
			face.Row+face.Scale/2,
		).Intersect(bounds)
		if r.Empty() {
			continue
		}

		weight := 1.0
		if policy == WeightConfidence && best > 0 {
			weight = policy.Weight(float64(face.Q) / best)
		}
		boxes = append(boxes, types.BoundingBox{
			X:      float64(r.Min.X),
			Y:      float64(r.Min.Y),
			Width:  float64(r.Dx()),
			Height: float64(r.Dy()),
			Weight: weight,
		})
	}
	return boxes
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
