// Package testutil provides shared test fixtures: corpora, project
// directories and a fake video decoder.
package testutil

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/annotree/internal/framecache"
	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/storage"
)

// SomeAnnotations returns two rectangles and two points.
func SomeAnnotations() []*models.Annotation {
	return []*models.Annotation{
		models.NewAnnotation("type", "rect", "x", "10", "y", "20", "w", "40", "h", "60"),
		models.NewAnnotation("type", "rect", "x", "80", "y", "20", "w", "40", "h", "60"),
		models.NewAnnotation("type", "point", "x", "30", "y", "30"),
		models.NewAnnotation("type", "point", "x", "100", "y", "100"),
	}
}

// DefaultCorpus returns five images and five videos of five frames each,
// every image and frame carrying SomeAnnotations.
func DefaultCorpus() *models.Corpus {
	c := &models.Corpus{}
	for i := 0; i < 5; i++ {
		c.Files = append(c.Files, &models.File{
			Filename:    fmt.Sprintf("file%d.png", i),
			Type:        models.MediaImage,
			Annotations: SomeAnnotations(),
		})
	}
	for i := 0; i < 5; i++ {
		f := &models.File{Filename: fmt.Sprintf("file%d.avi", i), Type: models.MediaVideo}
		for j := 0; j < 5; j++ {
			f.Frames = append(f.Frames, &models.Frame{
				Num:         j,
				Timestamp:   123456.789,
				Annotations: SomeAnnotations(),
			})
		}
		c.Files = append(c.Files, f)
	}
	return c
}

// ScenarioCorpus returns one image with two annotations and one video
// with five frames of two annotations each.
func ScenarioCorpus() *models.Corpus {
	img := &models.File{
		Filename: "still.png",
		Type:     models.MediaImage,
		Annotations: []*models.Annotation{
			models.NewAnnotation("type", "rect", "x", "10", "y", "20", "w", "40", "h", "60"),
			models.NewAnnotation("type", "point", "x", "30", "y", "30"),
		},
	}
	vid := &models.File{Filename: "clips/clip.avi", Type: models.MediaVideo}
	for j := 0; j < 5; j++ {
		vid.Frames = append(vid.Frames, &models.Frame{
			Num:       j * 10,
			Timestamp: float64(j) * 0.4,
			Annotations: []*models.Annotation{
				models.NewAnnotation("type", "point", "x", fmt.Sprint(j), "y", "1"),
				models.NewAnnotation("type", "point", "x", fmt.Sprint(j), "y", "2"),
			},
		})
	}
	return &models.Corpus{Files: []*models.File{img, vid}}
}

// ProjectDir creates a temporary base directory holding name with content
// and returns the directory and a storage provider rooted at it.
func ProjectDir(t *testing.T, name, content string) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// ScenarioYAML is ScenarioCorpus's image plus a two-frame video, as a
// project document.
const ScenarioYAML = `- filename: still.png
  type: image
  annotations:
    - type: rect
      x: "10"
      y: "20"
    - type: point
      x: "30"
      y: "30"
- filename: clip.avi
  type: video
  frames:
    - num: "0"
      timestamp: "0.0"
      annotations:
        - type: point
          x: "1"
          y: "2"
    - num: "5"
      timestamp: "0.2"
      annotations: []
`

// Videos is a fake framecache.Opener. Each decoded frame is a 1x1 gray
// image whose value is the frame number.
type Videos struct {
	Opened []string
	Closed int
	Fail   map[string]bool
	Frames int
}

// Open implements framecache.Opener.
func (v *Videos) Open(path string) (framecache.Decoder, error) {
	if v.Fail[path] {
		return nil, errors.New("testutil: cannot open " + path)
	}
	v.Opened = append(v.Opened, path)
	n := v.Frames
	if n == 0 {
		n = 256
	}
	return &videoDecoder{owner: v, frames: n}, nil
}

type videoDecoder struct {
	owner  *Videos
	frames int
	frame  int
}

func (d *videoDecoder) Seek(frame int) error {
	if frame < 0 || frame >= d.frames {
		return fmt.Errorf("testutil: frame %d out of range", frame)
	}
	d.frame = frame
	return nil
}

func (d *videoDecoder) Image() (image.Image, error) {
	img := image.NewGray(image.Rect(0, 0, 1, 1))
	img.SetGray(0, 0, color.Gray{Y: uint8(d.frame)})
	return img, nil
}

func (d *videoDecoder) Close() error {
	d.owner.Closed++
	return nil
}

// GrayValue returns the value of img's top-left pixel.
func GrayValue(img image.Image) int {
	r, _, _, _ := img.At(img.Bounds().Min.X, img.Bounds().Min.Y).RGBA()
	return int(r >> 8)
}
