// Package detection finds regions of interest that bias the crop search.
//
// Detection is an enhancement: Select falls back to Disabled when a detector
// cannot be built and Safe turns every detection failure into "no regions".
package detection

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// RegionDetector returns weighted regions of interest in source pixels.
// An empty result is valid and means nothing was found.
type RegionDetector interface {
	Name() string
	Detect(ctx context.Context, src *source.ImageSource) ([]types.BoundingBox, error)
}

// Detector kinds accepted by New
const (
	KindFace     = "face"
	KindOllama   = "ollama"
	KindLlamaCpp = "llamacpp"
)

// WeightPolicy decides the weight of a detected region
type WeightPolicy string

const (
	// WeightUniform gives every region a weight of 1
	WeightUniform WeightPolicy = "uniform"
	// WeightConfidence uses the detector's confidence, scaled to [0,1]
	WeightConfidence WeightPolicy = "confidence"
)

// ParseWeightPolicy validates a policy name. The empty string selects WeightUniform.
func ParseWeightPolicy(s string) (WeightPolicy, error) {
	switch p := WeightPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", WeightUniform:
		return WeightUniform, nil
	case WeightConfidence:
		return WeightConfidence, nil
	default:
		return "", fmt.Errorf("unknown boost weighting %q (expected %s or %s)", s, WeightUniform, WeightConfidence)
	}
}

// Weight maps a confidence in [0,1] to a region weight
func (p WeightPolicy) Weight(confidence float64) float64 {
	if p != WeightConfidence {
		return 1
	}
	return clamp(confidence, 0, 1)
}

// Disabled never finds anything
type Disabled struct{}

func (Disabled) Name() string { return "disabled" }

func (Disabled) Detect(context.Context, *source.ImageSource) ([]types.BoundingBox, error) {
	return nil, nil
}

// Safe runs d and recovers from any error or panic by returning no regions.
func Safe(ctx context.Context, d RegionDetector, src *source.ImageSource, log logrus.FieldLogger) (boxes []types.BoundingBox) {
	if d == nil {
		return nil
	}
	log = log.WithField("detector", d.Name())

	defer func() {
		if r := recover(); r != nil {
			log.WithField("panic", r).Warn("region detection crashed, continuing without boost regions")
			boxes = nil
		}
	}()

	boxes, err := d.Detect(ctx, src)
	if err != nil {
		log.WithError(err).Warn("region detection failed, continuing without boost regions")
		return nil
	}

	valid := boxes[:0]
	for _, b := range boxes {
		if b.Width <= 0 || b.Height <= 0 || b.Weight < 0 {
			log.WithField("box", b).Debug("dropping degenerate region")
			continue
		}
		valid = append(valid, b)
	}
	log.WithField("regions", len(valid)).Debug("region detection finished")
	return valid
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
