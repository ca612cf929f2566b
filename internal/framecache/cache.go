// Package framecache keeps a single opened video decoder, keyed by the
// video's absolute path.
//
// Callers that interleave frames of different videos make the cache reopen
// on every switch.
package framecache

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/starford/annotree/internal/apperr"
)

// Decoder is an opened, seekable video source.
type Decoder interface {
	// Seek positions the decoder on frame and decodes it.
	Seek(frame int) error
	// Image returns the frame decoded by the last successful Seek.
	Image() (image.Image, error)
	// Close releases the decoder's resources.
	Close() error
}

// Opener opens a decoder for the video at path.
type Opener func(path string) (Decoder, error)

// Cache is a one-slot decoder cache. It is not safe for concurrent use.
type Cache struct {
	open   Opener
	logger *slog.Logger

	path string
	dec  Decoder
}

// New creates an empty cache. A nil open uses OpenVideo; a nil logger
// uses slog.Default.
func New(open Opener, logger *slog.Logger) *Cache {
	if open == nil {
		open = OpenVideo
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{open: open, logger: logger}
}

// Path returns the key of the cached decoder, or "" when the slot is empty.
func (c *Cache) Path() string { return c.path }

// Frame returns the decoded image of frame number frame of the video at
// path, replacing the cached decoder first when it belongs to another
// path. Failures wrap apperr.ErrDecode.
func (c *Cache) Frame(path string, frame int) (image.Image, error) {
	if c.dec == nil || c.path != path {
		if err := c.replace(path); err != nil {
			return nil, err
		}
	}
	if err := c.dec.Seek(frame); err != nil {
		return nil, fmt.Errorf("framecache: seek %s frame %d: %w: %w", path, frame, apperr.ErrDecode, err)
	}
	img, err := c.dec.Image()
	if err != nil {
		return nil, fmt.Errorf("framecache: decode %s frame %d: %w: %w", path, frame, apperr.ErrDecode, err)
	}
	if img == nil {
		return nil, fmt.Errorf("framecache: decode %s frame %d: %w: empty image", path, frame, apperr.ErrDecode)
	}
	return img, nil
}

// Close releases the cached decoder, if any.
func (c *Cache) Close() error {
	if c.dec == nil {
		return nil
	}
	err := c.dec.Close()
	c.dec = nil
	c.path = ""
	return err
}

// replace evicts the slot and opens path. The slot stays empty when the
// open fails.
func (c *Cache) replace(path string) error {
	if c.dec != nil {
		c.logger.Debug("framecache: evict", slog.String("path", c.path), slog.String("next", path))
		if err := c.Close(); err != nil {
			c.logger.Warn("framecache: close failed", slog.String("error", err.Error()))
		}
	}
	dec, err := c.open(path)
	if err != nil {
		return fmt.Errorf("framecache: open %s: %w: %w", path, apperr.ErrDecode, err)
	}
	c.dec = dec
	c.path = path
	c.logger.Debug("framecache: opened", slog.String("path", path))
	return nil
}
