package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/menta2k/smartcrop-cli/internal/config"
	"github.com/menta2k/smartcrop-cli/internal/logging"
	"github.com/menta2k/smartcrop-cli/internal/pipeline"
	"github.com/menta2k/smartcrop-cli/internal/utils"
	"github.com/menta2k/smartcrop-cli/pkg/analyzer"
	"github.com/menta2k/smartcrop-cli/pkg/detection"
	"github.com/menta2k/smartcrop-cli/pkg/processing"
	"github.com/menta2k/smartcrop-cli/pkg/source"
)

func main() {
	// a missing .env is the normal case
	_ = godotenv.Load()

	app := &cli.App{
		Name:      "smartcrop",
		HelpName:  "smartcrop",
		Usage:     "Find the best crop of an image and optionally render it",
		ArgsUsage: "[OPTION] FILE [OUTPUT]",
		Flags:     allFlags(),
		Before: func(*cli.Context) error {
			logging.Setup()
			return nil
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}

func run(cc *cli.Context) error {
	log := logging.Logger
	args := cc.Args()
	if args.Len() < 1 || args.Len() > 2 {
		_ = cli.ShowAppHelp(cc)
		return errors.New("expected FILE and an optional OUTPUT")
	}
	input, output := args.Get(0), args.Get(1)

	if input == source.StreamName && term.IsTerminal(int(os.Stdin.Fd())) {
		return pipeline.NewInputError("`-` should be used with a pipe for stdin", nil)
	}
	if output == source.StreamName && term.IsTerminal(int(os.Stdout.Fd())) {
		return pipeline.NewWriteError("`-` should be used with a pipe for stdout", nil)
	}

	opts, err := loadOptions(cc)
	if err != nil {
		return err
	}

	engine, err := analyzer.NewEngine(opts.Engine, log)
	if err != nil {
		return err
	}

	var detector detection.RegionDetector
	if opts.FaceDetection {
		detector = detection.Select(opts.Detection(), log)
	}

	p := &pipeline.Pipeline{
		Detector: detector,
		Analyzer: analyzer.NewWithEngine(engine, log),
		Renderer: processing.NewProcessor(),
		Stdout:   os.Stdout,
		Log:      log,
	}
	_, err = p.Run(cc.Context, pipeline.Request{
		Input:   input,
		Output:  output,
		Options: opts,
		Stdin:   os.Stdin,
	})
	return err
}

// loadOptions layers the options file, --set pairs and explicit flags over the defaults
func loadOptions(cc *cli.Context) (config.Options, error) {
	var layers []map[string]any

	path := cc.String("config")
	if path == "" {
		if utils.FileExists(config.GetConfigPath()) {
			path = config.GetConfigPath()
		}
	}
	if path != "" {
		layer, err := config.LoadFile(path)
		if err != nil {
			return config.Options{}, err
		}
		logging.Logger.WithField("config", path).Info("loaded options file")
		layers = append(layers, layer)
	}

	set, err := parseSet(cc.StringSlice("set"))
	if err != nil {
		return config.Options{}, err
	}
	layers = append(layers, set, flagLayer(cc))

	opts, err := config.Merge(layers...)
	if err != nil {
		return config.Options{}, err
	}
	if err := opts.Validate(); err != nil {
		return config.Options{}, fmt.Errorf("invalid options: %w", err)
	}
	return opts, nil
}

// flagLayer holds only the option flags given on the command line or through the environment
func flagLayer(cc *cli.Context) map[string]any {
	layer := map[string]any{}
	for _, f := range optionFlags {
		name := f.Names()[0]
		if cc.IsSet(name) {
			layer[name] = cc.Value(name)
		}
	}
	return layer
}
