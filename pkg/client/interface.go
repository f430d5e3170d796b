// Package client defines the vision model client used for subject detection
// and the response parsing shared by its backends.
package client

import (
	"context"

	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// VisionClient asks a vision model to locate the primary subject of an image.
// imgB64 is a base64 encoded JPEG.
type VisionClient interface {
	AnalyzeImage(ctx context.Context, model, prompt, imgB64 string) (*types.AnalysisResult, error)
}
