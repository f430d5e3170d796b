package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/menta2k/smartcrop-cli/pkg/types"
)

// createTestImage creates a flat gray image with a white square in the middle
func createTestImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x >= width/4 && x < 3*width/4 && y >= height/4 && y < 3*height/4 {
				img.Set(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.NRGBA{64, 64, 64, 255})
			}
		}
	}
	return img
}

func fill(width, height int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestImportanceMapSize(t *testing.T) {
	m := NewImportanceMap(createTestImage(40, 30), types.DefaultCropOptions())
	if m.Bounds().Dx() != 40 || m.Bounds().Dy() != 30 {
		t.Errorf("Expected 40x30 map, got %dx%d", m.Bounds().Dx(), m.Bounds().Dy())
	}
}

func TestDetectEdges(t *testing.T) {
	m := NewImportanceMap(createTestImage(40, 40), types.DefaultCropOptions())

	// Flat interior areas have no detail
	if v := m.Feature(20, 20, DetailChannel); v != 0 {
		t.Errorf("Expected no detail inside the flat square, got %f", v)
	}
	if v := m.Feature(3, 3, DetailChannel); v != 0 {
		t.Errorf("Expected no detail in the flat background, got %f", v)
	}

	// The inner border of the bright square is an edge
	if v := m.Feature(10, 20, DetailChannel); v <= 0 {
		t.Errorf("Expected detail on the square border, got %f", v)
	}
}

func TestDetectSkin(t *testing.T) {
	opts := types.DefaultCropOptions()

	skin := NewImportanceMap(fill(10, 10, color.NRGBA{224, 164, 126, 255}), opts)
	if v := skin.Feature(5, 5, SkinChannel); v <= 0 {
		t.Errorf("Expected skin tone to be detected, got %f", v)
	}

	blue := NewImportanceMap(fill(10, 10, color.NRGBA{20, 40, 220, 255}), opts)
	if v := blue.Feature(5, 5, SkinChannel); v != 0 {
		t.Errorf("Expected no skin on a blue image, got %f", v)
	}
}

func TestDetectSaturation(t *testing.T) {
	opts := types.DefaultCropOptions()

	red := NewImportanceMap(fill(10, 10, color.NRGBA{200, 20, 20, 255}), opts)
	if v := red.Feature(5, 5, SaturationChannel); v <= 0 {
		t.Errorf("Expected saturated red to be detected, got %f", v)
	}

	gray := NewImportanceMap(fill(10, 10, color.NRGBA{128, 128, 128, 255}), opts)
	if v := gray.Feature(5, 5, SaturationChannel); v != 0 {
		t.Errorf("Expected no saturation on gray, got %f", v)
	}
}

func TestApplyBoost(t *testing.T) {
	opts := types.DefaultCropOptions()
	opts.Boost = []types.BoundingBox{
		{X: 2, Y: 2, Width: 4, Height: 4, Weight: 1},
		{X: 4, Y: 4, Width: 100, Height: 100, Weight: 0.5},
	}
	m := NewImportanceMap(fill(10, 10, color.NRGBA{128, 128, 128, 255}), opts)

	if v := m.Feature(0, 0, BoostChannel); v != 0 {
		t.Errorf("Expected no boost outside the boxes, got %f", v)
	}
	if v := m.Feature(3, 3, BoostChannel); v != 1 {
		t.Errorf("Expected full boost in the first box, got %f", v)
	}
	// Overlapping boosts saturate
	if v := m.Feature(5, 5, BoostChannel); v != 1 {
		t.Errorf("Expected saturated boost in the overlap, got %f", v)
	}
	// Second box is clipped to the image and carries half weight
	if v := m.Feature(9, 9, BoostChannel); v < 0.49 || v > 0.51 {
		t.Errorf("Expected half boost in the clipped box, got %f", v)
	}
}

func TestDownSample(t *testing.T) {
	opts := types.DefaultCropOptions()
	opts.Boost = []types.BoundingBox{{X: 0, Y: 0, Width: 8, Height: 8, Weight: 1}}
	m := NewImportanceMap(fill(32, 16, color.NRGBA{128, 128, 128, 255}), opts)

	small := m.DownSample(8)
	if small.Bounds().Dx() != 4 || small.Bounds().Dy() != 2 {
		t.Fatalf("Expected 4x2 downsampled map, got %dx%d", small.Bounds().Dx(), small.Bounds().Dy())
	}
	if v := small.Feature(0, 0, BoostChannel); v != 1 {
		t.Errorf("Expected full boost in the first block, got %f", v)
	}
	if v := small.Feature(1, 0, BoostChannel); v != 0 {
		t.Errorf("Expected no boost in the second block, got %f", v)
	}

	if m.DownSample(1) != m {
		t.Error("DownSample(1) should return the map unchanged")
	}
}

func BenchmarkNewImportanceMap(b *testing.B) {
	img := createTestImage(256, 256)
	opts := types.DefaultCropOptions()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		NewImportanceMap(img, opts)
	}
}
