package detection

import (
	"context"
	"fmt"
	"strings"

	"github.com/menta2k/smartcrop-cli/pkg/client"
	"github.com/menta2k/smartcrop-cli/pkg/processing"
	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// DefaultModel is the vision model asked to locate the subject
const DefaultModel = "openbmb/minicpm-v4.5"

// DefaultPrompt is the default prompt for subject detection
const DefaultPrompt = `You are an image subject locator.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (≤ 20 words)",
  "tags": ["tag1", "tag2", "tag3", "tag4", "tag5"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x and y are the top left corner.
- The box should tightly include the visually dominant subject (prefer people/vehicles/animals; else the most salient object).
- confidence is how sure you are that the box contains the subject.
- Description must be brief and factual. Do not guess real identities.
- Tags: lowercase, concise, no punctuation or duplicates.
- If no subject is found, return:
  {"primary":{"label":"none","confidence":0.0,"box":{"x":0,"y":0,"w":0,"h":0},"cx":0.5,"cy":0.5},"description":"no subject","tags":[]}
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// SubjectDetector asks a vision model for the primary subject of an image
type SubjectDetector struct {
	client    client.VisionClient
	processor *processing.Processor
	kind      string
	policy    WeightPolicy

	Model   string
	Prompt  string
	MaxSide int
	Quality int
}

// NewSubjectDetector creates a detector backed by a vision client
func NewSubjectDetector(kind string, c client.VisionClient, model string, policy WeightPolicy) *SubjectDetector {
	if model == "" {
		model = DefaultModel
	}
	return &SubjectDetector{
		client:    c,
		processor: processing.NewProcessor(),
		kind:      kind,
		policy:    policy,
		Model:     model,
		Prompt:    DefaultPrompt,
		MaxSide:   1536,
		Quality:   85,
	}
}

func (d *SubjectDetector) Name() string { return d.kind }

func (d *SubjectDetector) Detect(ctx context.Context, src *source.ImageSource) ([]types.BoundingBox, error) {
	img, err := src.Decode()
	if err != nil {
		return nil, err
	}

	imgB64, err := d.processor.PrepareImageForModel(img, "jpg", d.MaxSide, d.Quality)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare image for model: %w", err)
	}

	result, err := d.DetectSubject(ctx, imgB64)
	if err != nil {
		return nil, err
	}
	if !hasSubject(result) {
		return nil, nil
	}

	w, h := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	box := result.Primary.Box
	return []types.BoundingBox{{
		X:      box.X * w,
		Y:      box.Y * h,
		Width:  box.W * w,
		Height: box.H * h,
		Weight: d.policy.Weight(result.Primary.Confidence),
	}}, nil
}

// DetectSubject analyzes an encoded image and returns the cleaned up model answer
func (d *SubjectDetector) DetectSubject(ctx context.Context, imageB64 string) (*types.AnalysisResult, error) {
	result, err := d.client.AnalyzeImage(ctx, d.Model, d.Prompt, imageB64)
	if err != nil {
		return nil, err
	}

	result.Primary.Box = normalizeBox(result.Primary.Box)
	result.Primary.Confidence = clamp(result.Primary.Confidence, 0, 1)
	result.Tags = normalizeTags(result.Tags)
	return result, nil
}

// hasSubject reports whether the model located anything usable
func hasSubject(result *types.AnalysisResult) bool {
	if strings.EqualFold(strings.TrimSpace(result.Primary.Label), "none") {
		return false
	}
	return result.Primary.Box.W > 0 && result.Primary.Box.H > 0
}

// normalizeBox keeps the box inside the unit square
func normalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.X+b.W, 0, 1) - x,
		H: clamp(b.Y+b.H, 0, 1) - y,
	}
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
