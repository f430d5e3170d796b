// Package config merges defaults, the options file and command line flags
// into one immutable set of options.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/menta2k/smartcrop-cli/pkg/analyzer"
	"github.com/menta2k/smartcrop-cli/pkg/cropper"
	"github.com/menta2k/smartcrop-cli/pkg/detection"
	"github.com/menta2k/smartcrop-cli/pkg/processing"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// Options is the merged configuration of one run. The embedded crop options
// are forwarded to the analyzer, everything else controls the pipeline.
type Options struct {
	types.CropOptions

	FaceDetection  bool    `json:"faceDetection"`
	Detector       string  `json:"detector"`
	Cascade        string  `json:"cascade"`
	Model          string  `json:"model"`
	DetectorURL    string  `json:"detectorUrl"`
	BoostWeighting string  `json:"boostWeighting"`
	MinQuality     float64 `json:"minQuality"`
	OutputFormat   string  `json:"outputFormat"`
	Quality        int     `json:"quality"`
	Lossless       bool    `json:"lossless"`
	Engine         string  `json:"engine"`
	DebugOutput    string  `json:"debugOutput"`
}

// ReservedKeys control the pipeline and are never forwarded to the analyzer
var ReservedKeys = map[string]struct{}{
	"config":         {},
	"faceDetection":  {},
	"detector":       {},
	"cascade":        {},
	"model":          {},
	"detectorUrl":    {},
	"boostWeighting": {},
	"minQuality":     {},
	"outputFormat":   {},
	"quality":        {},
	"lossless":       {},
	"engine":         {},
	"debugOutput":    {},
}

// Default returns the built-in defaults
func Default() Options {
	return Options{
		CropOptions:    types.DefaultCropOptions(),
		Detector:       detection.KindFace,
		Model:          detection.DefaultModel,
		BoostWeighting: string(detection.WeightUniform),
		MinQuality:     detection.DefaultMinQuality,
		OutputFormat:   "jpg",
		Quality:        90,
		Engine:         analyzer.EngineBuiltin,
	}
}

// Merge applies layers over the defaults, later layers winning. Keys that are
// neither known options nor reserved are kept in CropOptions.Extra.
func Merge(layers ...map[string]any) (Options, error) {
	opts := Default()
	known, err := knownKeys()
	if err != nil {
		return Options{}, err
	}

	extra := map[string]any{}
	for _, layer := range layers {
		if len(layer) == 0 {
			continue
		}
		data, err := json.Marshal(layer)
		if err != nil {
			return Options{}, fmt.Errorf("failed to encode options: %w", err)
		}
		if err := json.Unmarshal(data, &opts); err != nil {
			return Options{}, fmt.Errorf("invalid option value: %w", err)
		}
		for k, v := range layer {
			if _, ok := known[strings.ToLower(k)]; ok {
				continue
			}
			if _, ok := ReservedKeys[k]; ok {
				continue
			}
			extra[k] = v
		}
	}
	if len(extra) > 0 {
		opts.Extra = extra
	}
	return opts, nil
}

// knownKeys lists the lower-cased JSON names of every Options field
func knownKeys() (map[string]struct{}, error) {
	data, err := json.Marshal(Default())
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(m))
	for k := range m {
		keys[strings.ToLower(k)] = struct{}{}
	}
	return keys, nil
}

// LoadFile reads an options file. YAML is used for .yaml and .yml, JSON otherwise.
func LoadFile(filename string) (map[string]any, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	layer := map[string]any{}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &layer)
	default:
		err = json.Unmarshal(data, &layer)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}
	return layer, nil
}

// Validate checks if the configuration is valid
func (o Options) Validate() error {
	if o.Quality < 0 || o.Quality > 100 {
		return fmt.Errorf("quality must be between 0 and 100, got %d", o.Quality)
	}
	if !processing.SupportedFormat(o.OutputFormat) {
		return fmt.Errorf("unsupported outputFormat %q", o.OutputFormat)
	}
	if _, err := detection.ParseWeightPolicy(o.BoostWeighting); err != nil {
		return err
	}
	switch o.Detector {
	case detection.KindFace, detection.KindOllama, detection.KindLlamaCpp:
	default:
		return fmt.Errorf("unknown detector %q", o.Detector)
	}
	switch o.Engine {
	case analyzer.EngineBuiltin, analyzer.EngineMuesli:
	default:
		return fmt.Errorf("unknown engine %q", o.Engine)
	}
	return cropper.Validate(o.CropOptions)
}

// Crop returns the options forwarded to the analyzer. Detected regions, when
// there are any, replace a configured boost list.
func (o Options) Crop(detected []types.BoundingBox) types.CropOptions {
	crop := o.CropOptions
	if len(detected) > 0 {
		crop.Boost = append([]types.BoundingBox(nil), detected...)
	} else if crop.Boost != nil {
		crop.Boost = append([]types.BoundingBox{}, crop.Boost...)
	}
	return crop
}

// Render returns the options for the render stage
func (o Options) Render(format string) types.RenderOptions {
	return types.RenderOptions{
		Width:        o.Width,
		Height:       o.Height,
		OutputFormat: format,
		Quality:      o.Quality,
		Lossless:     o.Lossless,
	}
}

// Detection returns the detector configuration
func (o Options) Detection() detection.Config {
	policy, _ := detection.ParseWeightPolicy(o.BoostWeighting)
	return detection.Config{
		Enabled:    o.FaceDetection,
		Kind:       o.Detector,
		Cascade:    o.Cascade,
		Model:      o.Model,
		URL:        o.DetectorURL,
		Policy:     policy,
		MinQuality: o.MinQuality,
	}
}

// ExtraKeys returns the sorted names of forwarded options the engines do not know
func (o Options) ExtraKeys() []string {
	keys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetConfigPath returns the default options file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./smartcrop.json"
	}
	return filepath.Join(home, ".config", "smartcrop", "config.json")
}
