//go:build !gocv

package framecache

import "errors"

// ErrNoVideoSupport is returned by OpenVideo in builds without OpenCV.
var ErrNoVideoSupport = errors.New("video decoding not built in; rebuild with -tags gocv")

// OpenVideo always fails; video decoding needs the gocv build tag.
func OpenVideo(_ string) (Decoder, error) {
	return nil, ErrNoVideoSupport
}
