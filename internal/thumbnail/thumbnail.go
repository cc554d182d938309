// Package thumbnail derives fixed-dimension JPEG previews from uploaded
// images.
package thumbnail

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

// Generator resizes images to a square cover-fit JPEG.
type Generator struct {
	size    int // edge length in pixels
	quality int // JPEG quality 1-100
}

func NewGenerator(size, quality int) *Generator {
	if size <= 0 {
		size = 300
	}
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &Generator{size: size, quality: quality}
}

// Supported reports whether contentType is one we attempt to thumbnail.
func Supported(contentType string) bool {
	return strings.HasPrefix(contentType, "image/")
}

// Generate decodes src, crops to cover the target square and re-encodes
// as JPEG. Returns an error for undecodable input; the caller decides
// whether that failure matters.
func (g *Generator) Generate(src []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	thumb := imaging.Fill(img, g.size, g.size, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	err = imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(g.quality))
	if err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	return buf.Bytes(), nil
}

// Key derives the storage key for a thumbnail from its original's key.
func Key(storageKey string) string {
	return storageKey + "-thumb.jpg"
}
