package smartcrop

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/smartcrop-cli/pkg/analyzer"
	"github.com/menta2k/smartcrop-cli/pkg/detection"
	"github.com/menta2k/smartcrop-cli/pkg/source"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// bright subject in the right third
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{230, 80, 40, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestNew(t *testing.T) {
	sc := New()
	if sc == nil {
		t.Fatal("New() returned nil")
	}
	if sc.analyzer == nil || sc.processor == nil {
		t.Error("components are nil")
	}
	if sc.detector != nil {
		t.Error("New() should not configure a detector")
	}
}

func TestNewWithConfig(t *testing.T) {
	sc, err := NewWithConfig(analyzer.EngineMuesli, detection.Config{}, nil)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	if sc.analyzer.Engine() != analyzer.EngineMuesli {
		t.Errorf("expected muesli engine, got %s", sc.analyzer.Engine())
	}

	if _, err := NewWithConfig("bogus", detection.Config{}, nil); err == nil {
		t.Error("expected an error for an unknown engine")
	}

	// a detector that cannot be built degrades to disabled
	sc, err = NewWithConfig(analyzer.EngineBuiltin, detection.Config{Enabled: true, Kind: detection.KindFace, Cascade: "missing"}, nil)
	if err != nil {
		t.Fatalf("NewWithConfig failed: %v", err)
	}
	if _, ok := sc.detector.(detection.Disabled); !ok {
		t.Errorf("expected disabled detector, got %T", sc.detector)
	}
}

func TestFindCropImage(t *testing.T) {
	sc := New()
	img := createTestImage(300, 150)

	result, err := sc.FindCropImage(context.Background(), img, 100, 100)
	if err != nil {
		t.Fatalf("FindCropImage failed: %v", err)
	}
	if result.TopCrop.Width != 150 || result.TopCrop.Height != 150 {
		t.Errorf("expected 150x150 crop, got %dx%d", result.TopCrop.Width, result.TopCrop.Height)
	}
	if result.TopCrop.X < 75 {
		t.Errorf("expected crop pulled towards the subject, got x=%d", result.TopCrop.X)
	}
}

func TestCropBytes(t *testing.T) {
	sc := New()
	data := encodePNG(t, createTestImage(300, 150))

	result, out, err := sc.CropBytes(context.Background(), data, 60, 40, "jpg")
	if err != nil {
		t.Fatalf("CropBytes failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}

	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not a jpeg: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 60 || b.Dy() != 40 {
		t.Errorf("expected 60x40 output, got %dx%d", b.Dx(), b.Dy())
	}

	if _, _, err := sc.CropBytes(context.Background(), []byte("garbage"), 60, 40, "jpg"); err == nil {
		t.Error("expected an error for undecodable input")
	}
}

func TestCropFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.png")
	if err := os.WriteFile(in, encodePNG(t, createTestImage(200, 200)), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "thumb.png")

	sc := New()
	result, err := sc.CropFile(context.Background(), in, out, 50, 25)
	if err != nil {
		t.Fatalf("CropFile failed: %v", err)
	}
	if !result.TopCrop.Rect().In(image.Rect(0, 0, 200, 200)) {
		t.Errorf("crop %v outside the image", result.TopCrop.Rect())
	}

	img, err := source.FromPath(out).Decode()
	if err != nil {
		t.Fatalf("failed to decode output: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 50 || b.Dy() != 25 {
		t.Errorf("expected 50x25 output, got %dx%d", b.Dx(), b.Dy())
	}

	if _, err := sc.CropFile(context.Background(), filepath.Join(dir, "missing.png"), "", 50, 25); err == nil {
		t.Error("expected an error for a missing input")
	}
}

func TestGetVersion(t *testing.T) {
	if GetVersion() != Version {
		t.Errorf("expected %s, got %s", Version, GetVersion())
	}
}
