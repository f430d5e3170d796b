package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/menta2k/smartcrop-cli/internal/config"
	"github.com/menta2k/smartcrop-cli/internal/logging"
)

// optionFlags are named after the option keys they set
var optionFlags = []cli.Flag{
	&cli.IntFlag{Name: "width", Usage: "width of the crop and of the rendered output", EnvVars: env("width")},
	&cli.IntFlag{Name: "height", Usage: "height of the crop and of the rendered output", EnvVars: env("height")},
	&cli.Float64Flag{Name: "aspect", Usage: "aspect ratio of the crop when no dimensions are given", EnvVars: env("aspect")},
	&cli.BoolFlag{Name: "faceDetection", Usage: "bias the crop towards detected faces or subjects (the face detector requires --cascade)", EnvVars: env("faceDetection")},
	&cli.StringFlag{Name: "detector", Usage: "region detector: face, ollama or llamacpp", Value: "face", EnvVars: env("detector")},
	&cli.StringFlag{Name: "cascade", Usage: "pigo face cascade file, required by the face detector (e.g. caire's data/facefinder)", EnvVars: env("cascade")},
	&cli.StringFlag{Name: "model", Usage: "vision model used by the ollama and llamacpp detectors", EnvVars: env("model")},
	&cli.StringFlag{Name: "detectorUrl", Usage: "vision server URL", EnvVars: env("detectorUrl")},
	&cli.StringFlag{Name: "boostWeighting", Usage: "weight of detected regions: uniform or confidence", Value: "uniform", EnvVars: env("boostWeighting")},
	&cli.Float64Flag{Name: "minQuality", Usage: "minimum face detection quality", Value: 5, EnvVars: env("minQuality")},
	&cli.StringFlag{Name: "engine", Usage: "crop engine: builtin or muesli", Value: "builtin", EnvVars: env("engine")},
	&cli.StringFlag{Name: "outputFormat", Usage: "output format when OUTPUT has no known extension", Value: "jpg", EnvVars: env("outputFormat")},
	&cli.IntFlag{Name: "quality", Usage: "output quality (0 keeps the encoder default)", Value: 90, EnvVars: env("quality")},
	&cli.BoolFlag{Name: "lossless", Usage: "lossless webp output", EnvVars: env("lossless")},
	&cli.StringFlag{Name: "debugOutput", Usage: "write an overlay of the analysis to this file", EnvVars: env("debugOutput")},
	&cli.Float64Flag{Name: "minScale", Usage: "smallest crop scale to try", Value: 1},
	&cli.Float64Flag{Name: "maxScale", Usage: "largest crop scale to try", Value: 1},
	&cli.Float64Flag{Name: "scaleStep", Usage: "scale decrement between candidate sizes", Value: 0.1},
	&cli.IntFlag{Name: "step", Usage: "candidate position step in pixels", Value: 8},
	&cli.BoolFlag{Name: "ruleOfThirds", Usage: "favour crops that put detail on the thirds", Value: true},
	&cli.BoolFlag{Name: "prescale", Usage: "analyze a downscaled copy of the image", Value: true},
	&cli.BoolFlag{Name: "debug", Usage: "let the crop engine log its internals"},
}

var cliFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "JSON or YAML options file (default " + config.GetConfigPath() + " when present)",
		EnvVars: env("config"),
	},
	&cli.StringSliceFlag{
		Name:  "set",
		Usage: "set any option as key=value, repeatable",
	},
}

func allFlags() []cli.Flag {
	flags := make([]cli.Flag, 0, len(optionFlags)+len(cliFlags)+len(logging.Flags))
	flags = append(flags, optionFlags...)
	flags = append(flags, cliFlags...)
	return append(flags, logging.Flags...)
}

// env maps faceDetection to SMARTCROP_FACEDETECTION
func env(name string) []string {
	return []string{"SMARTCROP_" + strings.ToUpper(name)}
}

// parseSet turns key=value pairs into an options layer. Known options are
// read as the type of their default, anything else is guessed as int, float,
// bool or JSON before falling back to a plain string.
func parseSet(pairs []string) (map[string]any, error) {
	defaults, err := optionDefaults()
	if err != nil {
		return nil, err
	}

	layer := map[string]any{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q, expected key=value", pair)
		}
		layer[key] = typedValue(defaults[strings.ToLower(key)], value)
	}
	return layer, nil
}

// optionDefaults maps lower-cased option keys to their JSON default values
func optionDefaults() (map[string]any, error) {
	data, err := json.Marshal(config.Default())
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	defaults := make(map[string]any, len(m))
	for k, v := range m {
		defaults[strings.ToLower(k)] = v
	}
	return defaults, nil
}

func typedValue(def any, s string) any {
	switch def.(type) {
	case string:
		return s
	case bool:
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return s
	default:
		return guessValue(s)
	}
}

func guessValue(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err == nil {
			return v
		}
	}
	return s
}
