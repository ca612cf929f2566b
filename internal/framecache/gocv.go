//go:build gocv

package framecache

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// OpenVideo opens path with OpenCV's video capture.
func OpenVideo(path string) (Decoder, error) {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("capture not opened")
	}
	return &gocvDecoder{vc: vc, mat: gocv.NewMat()}, nil
}

type gocvDecoder struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (d *gocvDecoder) Seek(frame int) error {
	if frame < 0 {
		return fmt.Errorf("negative frame %d", frame)
	}
	d.vc.Set(gocv.VideoCapturePosFrames, float64(frame))
	if !d.vc.Read(&d.mat) || d.mat.Empty() {
		return fmt.Errorf("no frame %d", frame)
	}
	return nil
}

func (d *gocvDecoder) Image() (image.Image, error) {
	if d.mat.Empty() {
		return nil, fmt.Errorf("nothing decoded")
	}
	return d.mat.ToImage()
}

func (d *gocvDecoder) Close() error {
	if err := d.mat.Close(); err != nil {
		return err
	}
	return d.vc.Close()
}
