package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestResolve_StreamIsMaterialized(t *testing.T) {
	data := encodePNG(t, 20, 10)

	src, err := Resolve(context.Background(), StreamName, bytes.NewReader(data))
	require.NoError(t, err)

	assert.True(t, src.IsStream())
	assert.Empty(t, src.Path)
	assert.Equal(t, data, src.Data)

	img, err := src.Decode()
	require.NoError(t, err)
	assert.Equal(t, 20, img.Bounds().Dx())
	assert.Equal(t, 10, img.Bounds().Dy())
}

func TestResolve_PathIsPassedThrough(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 4, 4), 0o644))

	src, err := Resolve(context.Background(), path, nil)
	require.NoError(t, err)

	assert.False(t, src.IsStream())
	assert.Equal(t, path, src.Path)
	assert.Nil(t, src.Data)
}

func TestResolve_UnreadablePath(t *testing.T) {
	_, err := Resolve(context.Background(), "does/not/exist.jpg", nil)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Resolve(context.Background(), t.TempDir(), nil)
	assert.ErrorContains(t, err, "is a directory")
}

func TestResolve_StreamReadError(t *testing.T) {
	_, err := Resolve(context.Background(), StreamName, failingReader{})
	assert.ErrorContains(t, err, "broken pipe")
}

func TestResolve_EmptyDescriptor(t *testing.T) {
	_, err := Resolve(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestImageSource_OpenRestartsEachTime(t *testing.T) {
	src := FromBytes([]byte("abc"))
	for i := 0; i < 2; i++ {
		r, err := src.Open()
		require.NoError(t, err)
		b, err := io.ReadAll(r)
		require.NoError(t, err)
		assert.Equal(t, "abc", string(b))
		require.NoError(t, r.Close())
	}
}

func TestImageSource_DecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.png")
	require.NoError(t, os.WriteFile(path, encodePNG(t, 30, 40), 0o644))

	img, err := FromPath(path).Decode()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 30, 40), img.Bounds())
}

func TestImageSource_DecodeGarbage(t *testing.T) {
	_, err := FromBytes([]byte("definitely not an image")).Decode()
	assert.Error(t, err)
}

func TestResolve_Download(t *testing.T) {
	data := encodePNG(t, 8, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(data)
		case "/text":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("hello"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	src, err := Resolve(context.Background(), srv.URL+"/ok.png", nil)
	require.NoError(t, err)
	assert.True(t, src.IsStream())
	assert.Equal(t, data, src.Data)

	_, err = Resolve(context.Background(), srv.URL+"/text", nil)
	assert.ErrorContains(t, err, "does not point to an image")

	_, err = Resolve(context.Background(), srv.URL+"/missing", nil)
	assert.ErrorContains(t, err, "404")
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://example.com/a.jpg"))
	assert.True(t, IsURL("http://example.com/a.jpg"))
	assert.False(t, IsURL("photo.jpg"))
	assert.False(t, IsURL("-"))
}
