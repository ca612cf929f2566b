package api

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/session"
)

// Node is one row of the tree (aliased from the session layer).
type Node = session.Node

// Status is the project summary (aliased from the session layer).
type Status = session.Status

// HeaderResponse lists the column titles.
type HeaderResponse struct {
	Columns []string `json:"columns" validate:"required"`
}

// ChildrenResponse wraps the rows under a parent path.
type ChildrenResponse struct {
	Path     string `json:"path" example:"1/0"`
	Children []Node `json:"children" validate:"required"`
}

// PathResponse carries the path of a row. An empty path means the row
// exists but the current view hides it.
type PathResponse struct {
	Path string `json:"path" example:"1/3"`
}

// AnnotationRequest is the request body for adding or updating an
// annotation. For POST, Path names the image file or frame; for PUT, the
// annotation itself.
type AnnotationRequest struct {
	Path   string             `json:"path" example:"1/0" validate:"required"`
	Fields *models.Annotation `json:"fields" validate:"required"`
}

// Validate checks that the fields carry a type key.
func (r AnnotationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Fields, validation.Required, validation.By(hasType)),
	)
}

func hasType(value any) error {
	a, _ := value.(*models.Annotation)
	if a == nil {
		return nil
	}
	if a.Type() == "" {
		return errors.New("must contain a type key")
	}
	return nil
}

// AnnotationValueRequest is the request body for setting a single key of
// an annotation.
type AnnotationValueRequest struct {
	Path  string `json:"path" example:"0/1" validate:"required"`
	Key   string `json:"key" example:"label" validate:"required"`
	Value any    `json:"value" swaggertype:"string" example:"car"`
}

// Validate checks the path and key.
func (r AnnotationValueRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Key, validation.Required),
		validation.Field(&r.Value, validation.NotNil),
	)
}

// InsertFileRequest is the request body for appending a media file.
type InsertFileRequest struct {
	Filename string           `json:"filename" example:"clips/b.avi" validate:"required"`
	Type     models.MediaType `json:"type" example:"video" validate:"required"`
}

// Validate checks the file name and media type.
func (r InsertFileRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required),
		validation.Field(&r.Type, validation.Required, validation.In(models.MediaImage, models.MediaVideo)),
	)
}

// BaseDirRequest is the request body for changing the base directory.
type BaseDirRequest struct {
	Dir string `json:"dir" example:"/data/media" validate:"required"`
}

// Validate checks that a directory is given.
func (r BaseDirRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Dir, validation.Required),
	)
}
