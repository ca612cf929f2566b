// Package parser decodes a project's annotation corpus from YAML or JSON.
package parser

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/starford/annotree/internal/apperr"
	"github.com/starford/annotree/internal/models"
)

// Parse decodes a corpus document. JSON input is accepted because the
// YAML decoder reads it unchanged.
//
// Every file record must carry a known type tag; the first record that
// does not fails the whole parse with apperr.ErrUnknownMediaType.
func Parse(data []byte) (*models.Corpus, error) {
	corpus := &models.Corpus{}
	if len(bytes.TrimSpace(data)) == 0 {
		return corpus, nil
	}
	if err := yaml.Unmarshal(data, corpus); err != nil {
		return nil, fmt.Errorf("parser: decode corpus: %w", err)
	}
	for i, f := range corpus.Files {
		if f == nil {
			return nil, fmt.Errorf("parser: file %d: empty record", i)
		}
		if !f.Type.Valid() {
			return nil, fmt.Errorf("parser: file %d (%s): type %q: %w", i, f.Filename, f.Type, apperr.ErrUnknownMediaType)
		}
		if err := checkAnnotations(f.Annotations); err != nil {
			return nil, fmt.Errorf("parser: file %d (%s): %w", i, f.Filename, err)
		}
		for j, fr := range f.Frames {
			if fr == nil {
				return nil, fmt.Errorf("parser: file %d (%s): frame %d: empty record", i, f.Filename, j)
			}
			if err := checkAnnotations(fr.Annotations); err != nil {
				return nil, fmt.Errorf("parser: file %d (%s): frame %d: %w", i, f.Filename, j, err)
			}
		}
	}
	return corpus, nil
}

// Encode renders a corpus as YAML, preserving annotation key order.
func Encode(corpus *models.Corpus) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(corpus); err != nil {
		return nil, fmt.Errorf("parser: encode corpus: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("parser: encode corpus: %w", err)
	}
	return buf.Bytes(), nil
}

func checkAnnotations(anns []*models.Annotation) error {
	for i, a := range anns {
		if a == nil {
			return fmt.Errorf("annotation %d: empty record", i)
		}
	}
	return nil
}
