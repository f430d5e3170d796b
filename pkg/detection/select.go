package detection

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/menta2k/smartcrop-cli/pkg/llamacpp"
	"github.com/menta2k/smartcrop-cli/pkg/ollama"
)

// Config selects and parameterizes a detector
type Config struct {
	Enabled    bool
	Kind       string
	Cascade    string
	Model      string
	URL        string
	Policy     WeightPolicy
	MinQuality float64
}

// New builds the detector described by cfg. A disabled config yields Disabled.
func New(cfg Config) (RegionDetector, error) {
	if !cfg.Enabled {
		return Disabled{}, nil
	}

	switch cfg.Kind {
	case "", KindFace:
		return LoadFaceDetector(cfg.Cascade, cfg.Policy, cfg.MinQuality)
	case KindOllama:
		c, err := ollama.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create Ollama client: %w", err)
		}
		return NewSubjectDetector(KindOllama, c, cfg.Model, cfg.Policy), nil
	case KindLlamaCpp:
		c, err := llamacpp.NewClient(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to create llama.cpp client: %w", err)
		}
		return NewSubjectDetector(KindLlamaCpp, c, cfg.Model, cfg.Policy), nil
	default:
		return nil, fmt.Errorf("unknown detector %q (use %s, %s or %s)", cfg.Kind, KindFace, KindOllama, KindLlamaCpp)
	}
}

// Select is New that degrades to Disabled instead of failing
func Select(cfg Config, log logrus.FieldLogger) RegionDetector {
	d, err := New(cfg)
	if err != nil {
		log.WithError(err).WithField("detector", cfg.Kind).Warn("skipping region detection")
		return Disabled{}
	}
	return d
}
