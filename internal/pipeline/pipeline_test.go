package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/smartcrop-cli/internal/config"
	"github.com/menta2k/smartcrop-cli/pkg/analyzer"
	"github.com/menta2k/smartcrop-cli/pkg/processing"
	"github.com/menta2k/smartcrop-cli/pkg/source"
	"github.com/menta2k/smartcrop-cli/pkg/types"
)

type fakeDetector struct {
	boxes []types.BoundingBox
	err   error
	calls int
}

func (f *fakeDetector) Name() string { return "fake" }

func (f *fakeDetector) Detect(context.Context, *source.ImageSource) ([]types.BoundingBox, error) {
	f.calls++
	return f.boxes, f.err
}

type fakeAnalyzer struct {
	result *types.CropResult
	err    error
	got    types.CropOptions
	calls  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ *source.ImageSource, opts types.CropOptions) (*types.CropResult, error) {
	f.calls++
	f.got = opts
	return f.result, f.err
}

type fakeRenderer struct {
	err    error
	calls  int
	opts   types.RenderOptions
	crop   types.Crop
	debugs []string
}

func (f *fakeRenderer) Render(_ *source.ImageSource, crop types.Crop, opts types.RenderOptions, w io.Writer) error {
	f.calls++
	f.crop = crop
	f.opts = opts
	if f.err != nil {
		_, _ = w.Write([]byte("partial"))
		return f.err
	}
	_, err := w.Write([]byte("IMAGE-BYTES"))
	return err
}

func (f *fakeRenderer) RenderDebug(_ *source.ImageSource, _ types.Crop, _ []types.BoundingBox, path string) error {
	f.debugs = append(f.debugs, path)
	return nil
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stdin closed") }

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

var topCrop = types.Crop{X: 10, Y: 20, Width: 100, Height: 50}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setup(t *testing.T) (*Pipeline, *fakeDetector, *fakeAnalyzer, *fakeRenderer, *bytes.Buffer) {
	t.Helper()
	d := &fakeDetector{}
	a := &fakeAnalyzer{result: &types.CropResult{TopCrop: topCrop, Crops: []types.Crop{topCrop}}}
	r := &fakeRenderer{}
	out := &bytes.Buffer{}
	return &Pipeline{Detector: d, Analyzer: a, Renderer: r, Stdout: out, Log: quietLogger()}, d, a, r, out
}

func options(t *testing.T, layers ...map[string]any) config.Options {
	t.Helper()
	opts, err := config.Merge(layers...)
	require.NoError(t, err)
	return opts
}

func stdinRequest(t *testing.T, output string, layers ...map[string]any) Request {
	t.Helper()
	return Request{Input: source.StreamName, Output: output, Options: options(t, layers...), Stdin: bytes.NewReader([]byte("img"))}
}

func decodeReport(t *testing.T, data []byte) types.CropResult {
	t.Helper()
	var result types.CropResult
	require.NoError(t, json.Unmarshal(data, &result))
	return result
}

func TestPlan(t *testing.T) {
	tests := []struct {
		output        string
		width, height int
		want          OutputPlan
	}{
		{"", 0, 0, OutputPlan{State: StateReport, Report: true}},
		{"", 100, 100, OutputPlan{State: StateReport, Report: true}},
		{"-", 100, 100, OutputPlan{State: StateStream, Render: true}},
		{"out.jpg", 100, 100, OutputPlan{State: StateFile, Report: true, Render: true}},
		{"out.jpg", 100, 0, OutputPlan{State: StateIncomplete, Report: true}},
		{"-", 0, 100, OutputPlan{State: StateIncomplete}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Plan(tt.output, tt.width, tt.height), "Plan(%q, %d, %d)", tt.output, tt.width, tt.height)
	}
}

func TestRun_ReportOnly(t *testing.T) {
	p, _, a, r, out := setup(t)

	result, err := p.Run(context.Background(), stdinRequest(t, "", map[string]any{"width": 100, "height": 50}))
	require.NoError(t, err)

	assert.Equal(t, topCrop, result.TopCrop)
	assert.Equal(t, 1, a.calls)
	assert.Equal(t, 0, r.calls)
	assert.Equal(t, topCrop, decodeReport(t, out.Bytes()).TopCrop)
	assert.Contains(t, out.String(), "\n  \"topCrop\": {\n    \"x\": 10,")
}

func TestRun_StreamWritesOnlyImageBytes(t *testing.T) {
	p, _, _, r, out := setup(t)

	_, err := p.Run(context.Background(), stdinRequest(t, "-", map[string]any{"width": 100, "height": 50, "outputFormat": "png"}))
	require.NoError(t, err)

	assert.Equal(t, "IMAGE-BYTES", out.String())
	assert.Equal(t, topCrop, r.crop)
	assert.Equal(t, types.RenderOptions{Width: 100, Height: 50, OutputFormat: "png", Quality: 90}, r.opts)
}

func TestRun_FileWritesImageAndReport(t *testing.T) {
	p, _, _, r, out := setup(t)
	path := filepath.Join(t.TempDir(), "thumb.webp")

	_, err := p.Run(context.Background(), stdinRequest(t, path, map[string]any{"width": 100, "height": 50}))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "IMAGE-BYTES", string(data))
	assert.Equal(t, topCrop, decodeReport(t, out.Bytes()).TopCrop)
	// the extension wins over outputFormat
	assert.Equal(t, "webp", r.opts.OutputFormat)
}

func TestRun_IncompleteDimensionsIsNotAnError(t *testing.T) {
	p, _, _, r, out := setup(t)
	path := filepath.Join(t.TempDir(), "thumb.jpg")

	_, err := p.Run(context.Background(), stdinRequest(t, path, map[string]any{"width": 100}))
	require.NoError(t, err)

	assert.Equal(t, 0, r.calls)
	assert.NoFileExists(t, path)
	assert.Equal(t, topCrop, decodeReport(t, out.Bytes()).TopCrop)

	p, _, _, r, out = setup(t)
	_, err = p.Run(context.Background(), stdinRequest(t, "-", map[string]any{"height": 100}))
	require.NoError(t, err)
	assert.Equal(t, 0, r.calls)
	assert.Empty(t, out.String())
}

func TestRun_DetectionBoxesOverrideBoost(t *testing.T) {
	p, d, a, _, _ := setup(t)
	d.boxes = []types.BoundingBox{{X: 1, Y: 2, Width: 3, Height: 4, Weight: 1}}

	_, err := p.Run(context.Background(), stdinRequest(t, "", map[string]any{
		"faceDetection": true,
		"boost":         []map[string]any{{"x": 9, "y": 9, "width": 9, "height": 9, "weight": 0.5}},
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, d.calls)
	assert.Equal(t, d.boxes, a.got.Boost)
}

func TestRun_ConfiguredBoostWithoutDetections(t *testing.T) {
	p, d, a, _, _ := setup(t)

	_, err := p.Run(context.Background(), stdinRequest(t, "", map[string]any{
		"faceDetection": true,
		"boost":         []map[string]any{{"x": 9, "y": 9, "width": 9, "height": 9, "weight": 0.5}},
	}))
	require.NoError(t, err)

	assert.Equal(t, 1, d.calls)
	assert.Equal(t, []types.BoundingBox{{X: 9, Y: 9, Width: 9, Height: 9, Weight: 0.5}}, a.got.Boost)
}

func TestRun_DetectionSkippedUnlessRequested(t *testing.T) {
	p, d, a, _, _ := setup(t)
	d.boxes = []types.BoundingBox{{X: 1, Y: 2, Width: 3, Height: 4, Weight: 1}}

	_, err := p.Run(context.Background(), stdinRequest(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 0, d.calls)
	assert.Nil(t, a.got.Boost)
}

func TestRun_DetectionFailureIsRecovered(t *testing.T) {
	p, d, a, _, out := setup(t)
	d.err = errors.New("cascade missing")

	result, err := p.Run(context.Background(), stdinRequest(t, "", map[string]any{"faceDetection": true}))
	require.NoError(t, err)

	assert.NotNil(t, result)
	assert.Nil(t, a.got.Boost)
	assert.NotEmpty(t, out.String())
}

func TestRun_ReservedKeysAreNotForwarded(t *testing.T) {
	p, _, a, _, _ := setup(t)

	_, err := p.Run(context.Background(), stdinRequest(t, "",
		map[string]any{"config": "x.json", "quality": 50, "faceDetection": false, "minScale": 0.7, "customKnob": 3}))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"customKnob": 3}, a.got.Extra)
	assert.Equal(t, 0.7, a.got.MinScale)
}

func TestRun_InputError(t *testing.T) {
	p, _, a, _, out := setup(t)
	req := stdinRequest(t, "")
	req.Stdin = failingReader{}

	_, err := p.Run(context.Background(), req)
	assert.True(t, IsType(err, ErrorTypeInput))
	assert.ErrorContains(t, err, "stdin closed")
	assert.Equal(t, 0, a.calls)
	assert.Empty(t, out.String())
}

func TestRun_MissingFileIsInputError(t *testing.T) {
	p, _, a, _, out := setup(t)
	req := Request{Input: filepath.Join(t.TempDir(), "nope.jpg"), Options: options(t)}

	_, err := p.Run(context.Background(), req)
	assert.True(t, IsType(err, ErrorTypeInput), "got %v", err)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 0, a.calls)
	assert.Empty(t, out.String())
}

func TestRun_AnalysisError(t *testing.T) {
	p, _, a, r, out := setup(t)
	a.result, a.err = nil, errors.New("image too small")

	result, err := p.Run(context.Background(), stdinRequest(t, "-", map[string]any{"width": 10, "height": 10}))
	assert.Nil(t, result)
	assert.True(t, IsType(err, ErrorTypeAnalysis))
	assert.Equal(t, 0, r.calls)
	assert.Empty(t, out.String())
}

func TestRun_RenderErrorProducesNoOutput(t *testing.T) {
	p, _, _, r, out := setup(t)
	r.err = errors.New("encode failed")

	_, err := p.Run(context.Background(), stdinRequest(t, "-", map[string]any{"width": 10, "height": 10}))
	assert.True(t, IsType(err, ErrorTypeRender))
	assert.Empty(t, out.String())

	p, _, _, r, _ = setup(t)
	r.err = errors.New("encode failed")
	path := filepath.Join(t.TempDir(), "thumb.jpg")
	_, err = p.Run(context.Background(), stdinRequest(t, path, map[string]any{"width": 10, "height": 10}))
	assert.True(t, IsType(err, ErrorTypeRender))
	assert.NoFileExists(t, path)
}

func TestRun_WriteErrors(t *testing.T) {
	p, _, _, _, _ := setup(t)
	path := filepath.Join(t.TempDir(), "missing", "thumb.jpg")

	_, err := p.Run(context.Background(), stdinRequest(t, path, map[string]any{"width": 10, "height": 10}))
	assert.True(t, IsType(err, ErrorTypeWrite))

	p, _, _, _, _ = setup(t)
	p.Stdout = failingWriter{}
	_, err = p.Run(context.Background(), stdinRequest(t, "-", map[string]any{"width": 10, "height": 10}))
	assert.True(t, IsType(err, ErrorTypeWrite))
	assert.ErrorContains(t, err, "broken pipe")
}

func TestRun_DebugOutput(t *testing.T) {
	p, _, _, r, _ := setup(t)

	_, err := p.Run(context.Background(), stdinRequest(t, "", map[string]any{"debugOutput": "debug.png"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"debug.png"}, r.debugs)
}

func testImage(t *testing.T, path string) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 240, 160))
	for y := 0; y < 160; y++ {
		for x := 0; x < 240; x++ {
			c := color.NRGBA{40, 60, 80, 255}
			if x > 150 && x < 200 && y > 40 && y < 100 {
				c = color.NRGBA{230, 90, 40, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestRun_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	testImage(t, in)

	run := func(output string) (types.CropResult, []byte) {
		var out bytes.Buffer
		p := &Pipeline{
			Detector: nil,
			Analyzer: analyzer.New(quietLogger()),
			Renderer: processing.NewProcessor(),
			Stdout:   &out,
			Log:      quietLogger(),
		}
		req := Request{Input: in, Output: output, Options: options(t, map[string]any{"width": 40, "height": 40})}
		_, err := p.Run(context.Background(), req)
		require.NoError(t, err)
		return decodeReport(t, out.Bytes()), out.Bytes()
	}

	first, _ := run("")
	second, _ := run("")
	assert.Equal(t, first.TopCrop, second.TopCrop)
	assert.True(t, first.TopCrop.Rect().In(image.Rect(0, 0, 240, 160)))

	thumb := filepath.Join(dir, "thumb.png")
	report, _ := run(thumb)
	assert.Equal(t, first.TopCrop, report.TopCrop)

	f, err := os.Open(thumb)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 40), img.Bounds())
}

// rotatedJPEG writes a width x height JPEG tagged with EXIF orientation 6,
// so it displays as height x width.
func rotatedJPEG(t *testing.T, path string, width, height int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 255 / width), uint8(y * 255 / height), 90, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	exif := []byte("Exif\x00\x00")
	exif = append(exif, "MM\x00\x2a\x00\x00\x00\x08"...)
	exif = append(exif, 0x00, 0x01)             // one entry
	exif = append(exif, 0x01, 0x12, 0x00, 0x03) // Orientation, SHORT
	exif = append(exif, 0x00, 0x00, 0x00, 0x01) // count
	exif = append(exif, 0x00, 0x06, 0x00, 0x00) // rotate 90 CW
	exif = append(exif, 0x00, 0x00, 0x00, 0x00) // no next IFD
	segment := []byte{0xFF, 0xE1, byte((len(exif) + 2) >> 8), byte(len(exif) + 2)}

	data := buf.Bytes()
	tagged := append([]byte{}, data[:2]...)
	tagged = append(tagged, segment...)
	tagged = append(tagged, exif...)
	tagged = append(tagged, data[2:]...)
	require.NoError(t, os.WriteFile(path, tagged, 0o644))
}

func TestRun_TopCropRoundTripsThroughRenderer(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "rotated.jpg")
	rotatedJPEG(t, in, 60, 40)
	thumb := filepath.Join(dir, "thumb.png")

	var out bytes.Buffer
	renderer := processing.NewProcessor()
	p := &Pipeline{Analyzer: analyzer.New(quietLogger()), Renderer: renderer, Stdout: &out, Log: quietLogger()}
	opts := options(t, map[string]any{"width": 20, "height": 30})

	_, err := p.Run(context.Background(), Request{Input: in, Output: thumb, Options: opts})
	require.NoError(t, err)
	report := decodeReport(t, out.Bytes())

	// the crop is in display orientation: 40x60 holds a 2:3 crop of full height
	assert.True(t, report.TopCrop.Rect().In(image.Rect(0, 0, 40, 60)), "crop %v", report.TopCrop.Rect())
	assert.Equal(t, 60, report.TopCrop.Height)

	written, err := os.ReadFile(thumb)
	require.NoError(t, err)

	var direct bytes.Buffer
	require.NoError(t, renderer.Render(source.FromPath(in), report.TopCrop, opts.Render("png"), &direct))
	assert.Equal(t, written, direct.Bytes())
}
