// Package logging configures the process logger. Logs always go to stderr
// because stdout carries the report or the rendered image.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/kortschak/utter"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

var Flags = []cli.Flag{
	&cli.BoolFlag{
		Name:        "verbose",
		Aliases:     []string{"v"},
		Usage:       "Set logging level more verbose to include info level logs",
		Destination: &Opts.Verbose,
	},
	&cli.BoolFlag{
		Name:        "veryverbose",
		Aliases:     []string{"vv"},
		Usage:       "Set logging level more verbose to include debug level logs",
		Destination: &Opts.VeryVerbose,
	},
	&cli.BoolFlag{
		Name:        "log-json",
		Usage:       "Emit logs as JSON",
		EnvVars:     []string{"LOG_JSON"},
		Destination: &Opts.JSON,
	},
}

var Opts struct {
	Verbose     bool
	VeryVerbose bool
	JSON        bool
}

// Logger is the process logger, ready to use before Setup runs
var Logger = New(os.Stderr)

// New creates a logger that writes warnings and above to w
func New(w io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.WarnLevel)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l
}

// Setup applies the command line flags and LOG_LEVEL to Logger.
// The flags win over the environment.
func Setup() *logrus.Logger {
	Logger.SetLevel(Level(os.Getenv("LOG_LEVEL")))
	if Opts.Verbose {
		Logger.SetLevel(logrus.InfoLevel)
	}
	if Opts.VeryVerbose {
		Logger.SetLevel(logrus.DebugLevel)
	}
	if Opts.JSON {
		Logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		})
	}
	return Logger
}

// Level parses a LOG_LEVEL value, defaulting to warn
func Level(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

// Dump logs a deep representation of v at debug level
func Dump(log logrus.FieldLogger, msg string, v any) {
	if l, ok := log.(*logrus.Logger); ok && !l.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	log.Debug(msg + "\n" + utter.Sdump(v))
}
