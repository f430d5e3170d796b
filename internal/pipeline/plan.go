package pipeline

import "github.com/menta2k/smartcrop-cli/pkg/source"

// State is the output mode chosen for a run
type State string

const (
	// StateReport prints the report and renders nothing
	StateReport State = "report"
	// StateStream writes the rendered crop to stdout and prints no report
	StateStream State = "stream"
	// StateFile prints the report and writes the rendered crop to a file
	StateFile State = "file"
	// StateIncomplete has an output but not both dimensions: nothing is rendered
	StateIncomplete State = "incomplete"
)

// OutputPlan is what the dispatcher does for a given request
type OutputPlan struct {
	State  State
	Report bool
	Render bool
}

// Plan decides the output mode. The report never shares stdout with image bytes.
func Plan(output string, width, height int) OutputPlan {
	switch {
	case output == "":
		return OutputPlan{State: StateReport, Report: true}
	case width <= 0 || height <= 0:
		return OutputPlan{State: StateIncomplete, Report: output != source.StreamName}
	case output == source.StreamName:
		return OutputPlan{State: StateStream, Render: true}
	default:
		return OutputPlan{State: StateFile, Report: true, Render: true}
	}
}
