// Package models defines the loaded corpus types shared between the
// project loader and the annotation tree.
package models

import (
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// MediaType tags a corpus file as an image or a video.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Valid reports whether t is one of the known media types.
func (t MediaType) Valid() bool {
	return t == MediaImage || t == MediaVideo
}

// Corpus is the ordered list of media files of one project.
type Corpus struct {
	Files []*File
}

// UnmarshalYAML decodes the top-level sequence of file records.
func (c *Corpus) UnmarshalYAML(value *yaml.Node) error {
	return value.Decode(&c.Files)
}

// MarshalYAML encodes the corpus as a plain sequence.
func (c *Corpus) MarshalYAML() (any, error) {
	return c.Files, nil
}

// File is one image or video record.
//
// Images carry Annotations directly, videos carry Frames.
type File struct {
	Filename    string        `yaml:"filename" json:"filename"`
	Type        MediaType     `yaml:"type" json:"type"`
	Annotations []*Annotation `yaml:"annotations,omitempty" json:"annotations,omitempty"`
	Frames      []*Frame      `yaml:"frames,omitempty" json:"frames,omitempty"`
}

// Frame is one annotated frame of a video file.
type Frame struct {
	Num         int           `yaml:"num" json:"num"`
	Timestamp   float64       `yaml:"timestamp" json:"timestamp"`
	Annotations []*Annotation `yaml:"annotations,omitempty" json:"annotations,omitempty"`
}

type frameRecord struct {
	Num         yaml.Node     `yaml:"num"`
	Timestamp   yaml.Node     `yaml:"timestamp"`
	Annotations []*Annotation `yaml:"annotations"`
}

// UnmarshalYAML accepts num and timestamp as either numbers or strings.
// Missing or unparseable values become -1.
func (f *Frame) UnmarshalYAML(value *yaml.Node) error {
	var rec frameRecord
	if err := value.Decode(&rec); err != nil {
		return err
	}
	f.Num = parseFrameNum(&rec.Num)
	f.Timestamp = parseTimestamp(&rec.Timestamp)
	f.Annotations = rec.Annotations
	return nil
}

func parseFrameNum(n *yaml.Node) int {
	if n.Kind != yaml.ScalarNode {
		return -1
	}
	s := strings.TrimSpace(n.Value)
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	if n.Tag == "!!float" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			return int(v)
		}
	}
	return -1
}

func parseTimestamp(n *yaml.Node) float64 {
	if n.Kind != yaml.ScalarNode {
		return -1
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(n.Value), 64)
	if err != nil {
		return -1
	}
	return v
}
