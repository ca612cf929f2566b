package model

import (
	"fmt"

	"github.com/starford/annotree/internal/apperr"
	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/tree"
)

// AddAnnotation appends fields as the last annotation of the image file or
// frame at target and returns its index. The model takes ownership of
// fields. A target of any other kind is a caller bug and panics.
func (m *Model) AddAnnotation(target Index, fields *models.Annotation) Index {
	m.guard("AddAnnotation")
	n := m.node(target)
	if n == nil || !n.Kind().IsMedia() {
		panic(fmt.Sprintf("model: AddAnnotation: %v is not an image file or frame", target))
	}
	if fields == nil {
		fields = models.NewAnnotation()
	}
	parent := m.Sibling(target, target.row, 0)
	row := n.NumChildren()

	m.emit(func(o Observer) { o.RowsAboutToBeInserted(parent, row, row) })
	child := m.tree.AppendAnnotation(n, fields)
	m.emit(func(o Observer) { o.RowsInserted(parent, row, row) })

	m.SetDirty(true)
	m.emit(func(o Observer) { o.DataChanged(target, target) })
	return Index{row: row, column: 0, id: child.ID(), space: m.space}
}

// RemoveAnnotation deletes the annotation at idx from its image file or
// frame. Anything else is a caller bug and panics.
func (m *Model) RemoveAnnotation(idx Index) {
	m.guard("RemoveAnnotation")
	n := m.node(idx)
	if n == nil || n.Kind() != tree.KindAnnotation {
		panic(fmt.Sprintf("model: RemoveAnnotation: %v is not an annotation", idx))
	}
	media := m.tree.Parent(n)
	if !media.Kind().IsMedia() {
		panic(fmt.Sprintf("model: RemoveAnnotation: %v sits under a %s node", idx, media.Kind()))
	}
	parent := m.Parent(idx)
	row := idx.row

	m.emit(func(o Observer) { o.RowsAboutToBeRemoved(parent, row, row) })
	m.tree.RemoveAnnotation(media, row)
	m.emit(func(o Observer) { o.RowsRemoved(parent, row, row) })

	m.SetDirty(true)
}

// SetAnnotationFields reconciles the annotation at idx with fields: new
// keys gain a key/value row, keys absent from fields lose theirs, the rest
// are overwritten. It reports false when idx is not an annotation.
func (m *Model) SetAnnotationFields(idx Index, fields *models.Annotation) bool {
	m.guard("SetAnnotationFields")
	n := m.node(idx)
	if n == nil || n.Kind() != tree.KindAnnotation || fields == nil {
		return false
	}
	ann := n.Annotation()
	parent := m.Sibling(idx, idx.row, 0)

	for _, k := range fields.Keys() {
		if ann.Has(k) {
			continue
		}
		v, _ := fields.Get(k)
		row := n.NumChildren()
		m.emit(func(o Observer) { o.RowsAboutToBeInserted(parent, row, row) })
		m.tree.InsertKey(n, k, v)
		m.emit(func(o Observer) { o.RowsInserted(parent, row, row) })
	}
	for _, k := range ann.Keys() {
		if fields.Has(k) {
			continue
		}
		row := m.tree.KeyRow(n, k)
		m.emit(func(o Observer) { o.RowsAboutToBeRemoved(parent, row, row) })
		m.tree.RemoveKey(n, k)
		m.emit(func(o Observer) { o.RowsRemoved(parent, row, row) })
	}
	for _, k := range fields.Keys() {
		v, _ := fields.Get(k)
		ann.Set(k, v)
	}

	first := m.Sibling(idx, idx.row, 0)
	last := m.Sibling(idx, idx.row, tree.NumColumns-1)
	m.emit(func(o Observer) { o.DataChanged(first, last) })
	m.SetDirty(true)
	return true
}

// SetAnnotationValue sets one key of the annotation at idx. A new key is
// appended as a key/value row. It returns false for a non-annotation index
// or an empty key.
func (m *Model) SetAnnotationValue(idx Index, key string, value any) bool {
	m.guard("SetAnnotationValue")
	n := m.node(idx)
	if n == nil || n.Kind() != tree.KindAnnotation || key == "" {
		return false
	}
	fields := n.Annotation().Clone()
	fields.Set(key, value)
	return m.SetAnnotationFields(idx, fields)
}

// InsertFile appends a file record at the end of the top level and returns
// its index. An unknown media type is rejected before any notification.
func (m *Model) InsertFile(f *models.File) (Index, error) {
	m.guard("InsertFile")
	if f == nil {
		return Index{}, fmt.Errorf("model: insert file: nil record")
	}
	if !f.Type.Valid() {
		return Index{}, fmt.Errorf("model: insert %s: type %q: %w", f.Filename, f.Type, apperr.ErrUnknownMediaType)
	}
	row := m.tree.Root().NumChildren()

	m.emit(func(o Observer) { o.RowsAboutToBeInserted(Index{}, row, row) })
	n, err := m.tree.AddFile(f)
	if err != nil {
		panic(fmt.Sprintf("model: insert validated file: %v", err))
	}
	m.emit(func(o Observer) { o.RowsInserted(Index{}, row, row) })

	m.SetDirty(true)
	idx := Index{row: row, column: 0, id: n.ID(), space: m.space}
	m.emit(func(o Observer) { o.DataChanged(idx, idx) })
	return idx, nil
}
