package api

import (
	"encoding/json"
	"errors"
	"image/png"
	"log/slog"
	"net/http"

	"github.com/starford/annotree/internal/apperr"
	"github.com/starford/annotree/internal/session"
)

// Handler holds API route handlers.
type Handler struct {
	sess *session.Session
}

// NewHandler creates a new Handler.
func NewHandler(sess *session.Session) *Handler {
	return &Handler{sess: sess}
}

// rowPath reads the row path ("0/3/1") from the query. The empty path is
// the root.
func rowPath(r *http.Request) string {
	return r.URL.Query().Get("path")
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported as internal.
func writeError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrInvalidCoordinate), errors.Is(err, apperr.ErrUnknownMediaType),
		errors.Is(err, apperr.ErrOutsideBaseDir):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotMedia), errors.Is(err, apperr.ErrNotAnnotation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrClosed):
		writeJSON(w, http.StatusServiceUnavailable, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrDecode):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, errorBody(err.Error()))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

// validatable is implemented by request bodies.
type validatable interface {
	Validate() error
}

// decode reads and validates a JSON body into v, writing a 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v validatable) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if err := v.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return false
	}
	return true
}

// Header handles GET /api/header.
//
//	@Summary		Column titles
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	HeaderResponse
//	@Security		BearerAuth
//	@Router			/header [get]
func (h *Handler) Header(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HeaderResponse{Columns: h.sess.Header(r.Context())})
}

// GetNode handles GET /api/nodes.
//
//	@Summary		Describe the row at a path
//	@Tags			tree
//	@Produce		json
//	@Param			path	query		string	true	"Row path"
//	@Success		200		{object}	Node
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	path := rowPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	n, err := h.sess.Node(r.Context(), path)
	if err != nil {
		writeError(w, "get node", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// Children handles GET /api/children.
//
//	@Summary		List the rows under a path
//	@Tags			tree
//	@Produce		json
//	@Param			path	query		string	false	"Parent row path, empty for the top level"
//	@Success		200		{object}	ChildrenResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/children [get]
func (h *Handler) Children(w http.ResponseWriter, r *http.Request) {
	path := rowPath(r)
	nodes, err := h.sess.Children(r.Context(), path)
	if err != nil {
		writeError(w, "list children", err)
		return
	}
	writeJSON(w, http.StatusOK, ChildrenResponse{Path: path, Children: nodes})
}

// Data handles GET /api/data.
//
//	@Summary		Backing record of a row
//	@Tags			tree
//	@Produce		json
//	@Param			path	query	string	false	"Row path, empty for the whole corpus"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/data [get]
func (h *Handler) Data(w http.ResponseWriter, r *http.Request) {
	raw, err := h.sess.Data(r.Context(), rowPath(r))
	if err != nil {
		writeError(w, "get data", err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

// Image handles GET /api/image.
//
//	@Summary		Decoded raster of an image file or frame, as PNG
//	@Tags			media
//	@Produce		png
//	@Param			path	query	string	true	"Row path"
//	@Success		200
//	@Failure		422	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/image [get]
func (h *Handler) Image(w http.ResponseWriter, r *http.Request) {
	img, err := h.sess.Image(r.Context(), rowPath(r))
	if err != nil {
		writeError(w, "get image", err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if err := png.Encode(w, img); err != nil {
		slog.Error("png encode failed", slog.String("error", err.Error()))
	}
}

func (h *Handler) navigate(w http.ResponseWriter, r *http.Request, op string, move func(*session.Session, string) (string, error)) {
	path := rowPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	target, err := move(h.sess, path)
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: target})
}

// Media handles GET /api/media.
//
//	@Summary		Nearest image file or frame at or above a path
//	@Tags			media
//	@Produce		json
//	@Param			path	query		string	true	"Row path"
//	@Success		200		{object}	PathResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/media [get]
func (h *Handler) Media(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, "media", func(s *session.Session, p string) (string, error) {
		return s.Media(r.Context(), p)
	})
}

// Next handles GET /api/next.
//
//	@Summary		Next image file or frame
//	@Tags			media
//	@Produce		json
//	@Param			path	query		string	true	"Row path"
//	@Success		200		{object}	PathResponse
//	@Security		BearerAuth
//	@Router			/next [get]
func (h *Handler) Next(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, "next media", func(s *session.Session, p string) (string, error) {
		return s.Next(r.Context(), p)
	})
}

// Previous handles GET /api/previous.
//
//	@Summary		Previous image file or frame
//	@Tags			media
//	@Produce		json
//	@Param			path	query		string	true	"Row path"
//	@Success		200		{object}	PathResponse
//	@Security		BearerAuth
//	@Router			/previous [get]
func (h *Handler) Previous(w http.ResponseWriter, r *http.Request) {
	h.navigate(w, r, "previous media", func(s *session.Session, p string) (string, error) {
		return s.Previous(r.Context(), p)
	})
}

// AddAnnotation handles POST /api/annotations.
//
//	@Summary		Append an annotation under an image file or frame
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnnotationRequest	true	"Target media path and fields"
//	@Success		201		{object}	PathResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations [post]
func (h *Handler) AddAnnotation(w http.ResponseWriter, r *http.Request) {
	var req AnnotationRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := h.sess.AddAnnotation(r.Context(), req.Path, req.Fields)
	if err != nil {
		writeError(w, "add annotation", err)
		return
	}
	writeJSON(w, http.StatusCreated, PathResponse{Path: path})
}

// UpdateAnnotation handles PUT /api/annotations.
//
//	@Summary		Replace the fields of an annotation
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnnotationRequest	true	"Annotation path and new fields"
//	@Success		200		{object}	PathResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations [put]
func (h *Handler) UpdateAnnotation(w http.ResponseWriter, r *http.Request) {
	var req AnnotationRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.sess.UpdateAnnotation(r.Context(), req.Path, req.Fields); err != nil {
		writeError(w, "update annotation", err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: req.Path})
}

// SetAnnotationValue handles PATCH /api/annotations.
//
//	@Summary		Set one key of an annotation
//	@Tags			annotations
//	@Accept			json
//	@Produce		json
//	@Param			body	body		AnnotationValueRequest	true	"Annotation path, key and value"
//	@Success		200		{object}	PathResponse
//	@Failure		400		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations [patch]
func (h *Handler) SetAnnotationValue(w http.ResponseWriter, r *http.Request) {
	var req AnnotationValueRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.sess.SetAnnotationValue(r.Context(), req.Path, req.Key, req.Value); err != nil {
		writeError(w, "set annotation value", err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: req.Path})
}

// RemoveAnnotation handles DELETE /api/annotations.
//
//	@Summary		Delete an annotation
//	@Tags			annotations
//	@Param			path	query	string	true	"Annotation path"
//	@Success		204		"Annotation deleted"
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations [delete]
func (h *Handler) RemoveAnnotation(w http.ResponseWriter, r *http.Request) {
	path := rowPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.sess.RemoveAnnotation(r.Context(), path); err != nil {
		writeError(w, "remove annotation", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InsertFile handles POST /api/files.
//
//	@Summary		Append a media file record
//	@Tags			files
//	@Accept			json
//	@Produce		json
//	@Param			body	body		InsertFileRequest	true	"File to append"
//	@Success		201		{object}	PathResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files [post]
func (h *Handler) InsertFile(w http.ResponseWriter, r *http.Request) {
	var req InsertFileRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := h.sess.InsertFile(r.Context(), req.Filename, req.Type)
	if err != nil {
		writeError(w, "insert file", err)
		return
	}
	writeJSON(w, http.StatusCreated, PathResponse{Path: path})
}

// Status handles GET /api/status.
//
//	@Summary		Project summary
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	Status
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sess.Status(r.Context()))
}

// SetBaseDir handles PUT /api/basedir.
//
//	@Summary		Change the directory media file names resolve against
//	@Tags			project
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BaseDirRequest	true	"New base directory"
//	@Success		200		{object}	Status
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/basedir [put]
func (h *Handler) SetBaseDir(w http.ResponseWriter, r *http.Request) {
	var req BaseDirRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.sess.SetBaseDir(r.Context(), req.Dir); err != nil {
		writeError(w, "set base dir", err)
		return
	}
	writeJSON(w, http.StatusOK, h.sess.Status(r.Context()))
}

// Corpus handles GET /api/corpus.
//
//	@Summary		Export the current corpus as a project document
//	@Tags			project
//	@Produce		plain
//	@Success		200
//	@Security		BearerAuth
//	@Router			/corpus [get]
func (h *Handler) Corpus(w http.ResponseWriter, r *http.Request) {
	out, err := h.sess.Export(r.Context())
	if err != nil {
		writeError(w, "export corpus", err)
		return
	}
	writeRaw(w, http.StatusOK, "application/yaml; charset=utf-8", out)
}

// Sync handles POST /api/sync.
//
//	@Summary		Compare the project file on disk with the loaded one
//	@Tags			project
//	@Produce		json
//	@Success		200	{object}	session.SyncResult
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.sess.Sync(r.Context())
	if err != nil {
		writeError(w, "sync", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
