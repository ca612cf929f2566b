// Package imageio decodes still images of the formats annotated corpora
// commonly use.
package imageio

import (
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/starford/annotree/internal/apperr"
)

// Load opens and decodes the image at path. Failures wrap apperr.ErrDecode.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("imageio: open %s: %w: %w", path, apperr.ErrDecode, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("imageio: decode %s: %w: %w", path, apperr.ErrDecode, err)
	}
	return img, nil
}
