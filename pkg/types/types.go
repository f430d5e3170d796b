package types

import "image"

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// AnalysisResult contains the complete analysis result from the vision model
type AnalysisResult struct {
	Primary     Primary  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// BoundingBox is a weighted region of interest in source image pixels.
type BoundingBox struct {
	X      float64 `json:"x" yaml:"x"`
	Y      float64 `json:"y" yaml:"y"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// Score is the per-feature breakdown of a scored crop candidate
type Score struct {
	Detail     float64 `json:"detail"`
	Saturation float64 `json:"saturation"`
	Skin       float64 `json:"skin"`
	Boost      float64 `json:"boost"`
	Total      float64 `json:"total"`
}

// Crop is a rectangle in source image pixels, optionally carrying its score
type Crop struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Score  *Score `json:"score,omitempty"`
}

// Rect converts the crop to an image.Rectangle
func (c Crop) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

// CropFromRect builds an unscored crop from a rectangle
func CropFromRect(r image.Rectangle) Crop {
	return Crop{X: r.Min.X, Y: r.Min.Y, Width: r.Dx(), Height: r.Dy()}
}

// CropResult is the outcome of one crop analysis.
// TopCrop is the best candidate, Crops holds every candidate that was scored.
type CropResult struct {
	TopCrop Crop   `json:"topCrop"`
	Crops   []Crop `json:"crops,omitempty"`
	Engine  string `json:"engine,omitempty"`
}

// CropOptions drives the crop analysis. A nil Boost means no salience bias.
type CropOptions struct {
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Aspect float64 `json:"aspect"`

	CropWidth  float64 `json:"cropWidth"`
	CropHeight float64 `json:"cropHeight"`

	DetailWeight float64 `json:"detailWeight"`

	SkinColor         [3]float64 `json:"skinColor"`
	SkinBias          float64    `json:"skinBias"`
	SkinBrightnessMin float64    `json:"skinBrightnessMin"`
	SkinBrightnessMax float64    `json:"skinBrightnessMax"`
	SkinThreshold     float64    `json:"skinThreshold"`
	SkinWeight        float64    `json:"skinWeight"`

	SaturationBrightnessMin float64 `json:"saturationBrightnessMin"`
	SaturationBrightnessMax float64 `json:"saturationBrightnessMax"`
	SaturationThreshold     float64 `json:"saturationThreshold"`
	SaturationBias          float64 `json:"saturationBias"`
	SaturationWeight        float64 `json:"saturationWeight"`

	ScoreDownSample   int     `json:"scoreDownSample"`
	Step              int     `json:"step"`
	ScaleStep         float64 `json:"scaleStep"`
	MinScale          float64 `json:"minScale"`
	MaxScale          float64 `json:"maxScale"`
	EdgeRadius        float64 `json:"edgeRadius"`
	EdgeWeight        float64 `json:"edgeWeight"`
	OutsideImportance float64 `json:"outsideImportance"`
	BoostWeight       float64 `json:"boostWeight"`
	RuleOfThirds      bool    `json:"ruleOfThirds"`
	Prescale          bool    `json:"prescale"`
	Debug             bool    `json:"debug"`

	Boost []BoundingBox `json:"boost"`

	// Extra carries forwarded options no engine knows about.
	Extra map[string]any `json:"-"`
}

// DefaultCropOptions returns the stock smartcrop tuning
func DefaultCropOptions() CropOptions {
	return CropOptions{
		DetailWeight:            0.2,
		SkinColor:               [3]float64{0.78, 0.57, 0.44},
		SkinBias:                0.01,
		SkinBrightnessMin:       0.2,
		SkinBrightnessMax:       1.0,
		SkinThreshold:           0.8,
		SkinWeight:              1.8,
		SaturationBrightnessMin: 0.05,
		SaturationBrightnessMax: 0.9,
		SaturationThreshold:     0.4,
		SaturationBias:          0.2,
		SaturationWeight:        0.1,
		ScoreDownSample:         8,
		Step:                    8,
		ScaleStep:               0.1,
		MinScale:                1.0,
		MaxScale:                1.0,
		EdgeRadius:              0.4,
		EdgeWeight:              -20.0,
		OutsideImportance:       -0.5,
		BoostWeight:             100.0,
		RuleOfThirds:            true,
		Prescale:                true,
	}
}

// RenderOptions controls how a crop is turned into output bytes.
// Quality 0 leaves the encoder default in place.
type RenderOptions struct {
	Width        int
	Height       int
	OutputFormat string
	Quality      int
	Lossless     bool
}
