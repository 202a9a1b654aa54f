package extract

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
)

const (
	coverMaxWidth  = 400
	coverMaxHeight = 600
)

// ResizeCover decodes an image and scales it to fit within 400x600,
// preserving aspect ratio, re-encoded as PNG.
func ResizeCover(data []byte) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover image: %w", err)
	}

	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("cover image has zero dimensions")
	}

	scale := 1.0
	if sw := float64(coverMaxWidth) / float64(w); sw < scale {
		scale = sw
	}
	if sh := float64(coverMaxHeight) / float64(h); sh < scale {
		scale = sh
	}

	dw, dh := int(float64(w)*scale), int(float64(h)*scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode cover PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveCover writes a book's cover under coversPath as <book_id>.png and
// returns the relative filename.
func SaveCover(coversPath string, bookID int64, data []byte) (string, error) {
	if err := os.MkdirAll(coversPath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create covers directory: %w", err)
	}
	name := fmt.Sprintf("%d.png", bookID)
	if err := os.WriteFile(filepath.Join(coversPath, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}
	return name, nil
}
