// Package source resolves the pipeline input into something every later
// stage can read: a file path that is passed through untouched, or an
// in-memory buffer drained from a stream or downloaded from a URL.
package source

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// StreamName is the descriptor that selects standard input.
const StreamName = "-"

// ImageSource is either a file path or a fully read byte buffer, never both.
type ImageSource struct {
	Path string
	Data []byte
}

// FromBytes wraps an in-memory image
func FromBytes(data []byte) *ImageSource {
	return &ImageSource{Data: data}
}

// FromPath references an image on disk
func FromPath(path string) *ImageSource {
	return &ImageSource{Path: path}
}

// IsStream reports whether the source is held in memory
func (s *ImageSource) IsStream() bool {
	return s.Data != nil
}

// String describes the source for log output
func (s *ImageSource) String() string {
	if s.IsStream() {
		return fmt.Sprintf("<buffer %d bytes>", len(s.Data))
	}
	return s.Path
}

// Open returns a fresh reader over the image bytes. Each call starts at the beginning.
func (s *ImageSource) Open() (io.ReadCloser, error) {
	if s.IsStream() {
		return io.NopCloser(bytes.NewReader(s.Data)), nil
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return f, nil
}

// Decode decodes the source with EXIF orientation applied.
// WebP input that the registered decoders reject is retried with libwebp.
func (s *ImageSource) Decode() (image.Image, error) {
	data := s.Data
	if !s.IsStream() {
		var err error
		data, err = os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read image file: %w", err)
		}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}
	if img, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return img, nil
	}
	return nil, fmt.Errorf("failed to decode image %s: %w", s, err)
}

// Resolve turns a command line descriptor into an ImageSource.
// "-" drains stdin completely before returning, URLs are downloaded,
// anything else is treated as a path that must be readable now but is left
// for later stages to decode.
func Resolve(ctx context.Context, descriptor string, stdin io.Reader) (*ImageSource, error) {
	switch {
	case descriptor == StreamName:
		return ReadAll(stdin)
	case IsURL(descriptor):
		return Download(ctx, descriptor)
	case descriptor == "":
		return nil, fmt.Errorf("no input given")
	default:
		return checkPath(descriptor)
	}
}

func checkPath(path string) (*ImageSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil && info.IsDir() {
		return nil, fmt.Errorf("input %s is a directory", path)
	}
	return FromPath(path), nil
}

// ReadAll materializes a stream into memory
func ReadAll(r io.Reader) (*ImageSource, error) {
	if r == nil {
		return nil, fmt.Errorf("no input stream")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input stream: %w", err)
	}
	if data == nil {
		data = []byte{}
	}
	return FromBytes(data), nil
}

// IsURL reports whether the descriptor is an http or https URL
func IsURL(descriptor string) bool {
	return strings.HasPrefix(descriptor, "http://") || strings.HasPrefix(descriptor, "https://")
}

// Download fetches an image into memory
func Download(ctx context.Context, imageURL string) (*ImageSource, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "smartcrop-cli/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return FromBytes(data), nil
}
