package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/annotree/internal/apperr"
	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/tree"
)

// Addressable is the coordinate protocol shared by Model and Proxy.
type Addressable interface {
	Index(row, column int, parent Index) Index
	Parent(idx Index) Index
	RowCount(parent Index) int
	ColumnCount() int
	HeaderLabel(column int) string
	Data(idx Index, role tree.Role) (any, error)
	Kind(idx Index) tree.Kind
	Sibling(idx Index, row, column int) Index

	MediaIndex(idx Index) Index
	NextMedia(idx Index) Index
	PreviousMedia(idx Index) Index

	AddAnnotation(target Index, fields *models.Annotation) Index
	RemoveAnnotation(idx Index)
	SetAnnotationFields(idx Index, fields *models.Annotation) bool
	SetAnnotationValue(idx Index, key string, value any) bool
	InsertFile(f *models.File) (Index, error)

	BaseDir() string
	Dirty() bool
	Subscribe(o Observer) func()
}

func mediaIndex(a Addressable, idx Index) Index {
	for cur := idx; cur.IsValid(); cur = a.Parent(cur) {
		if a.Kind(cur).IsMedia() {
			return cur
		}
	}
	return Index{}
}

// stepMedia moves delta rows from a media index, staying put at either
// end of the sibling list.
func stepMedia(a Addressable, idx Index, delta int) Index {
	if !idx.IsValid() {
		return Index{}
	}
	if a.MediaIndex(idx) != idx {
		panic(fmt.Sprintf("model: navigation from non-media index %v", idx))
	}
	parent := a.Parent(idx)
	row := idx.Row() + delta
	if row < 0 || row >= a.RowCount(parent) {
		return idx
	}
	return a.Index(row, 0, parent)
}

// PathOf returns the row of idx and of each of its ancestors, outermost
// first. The root has an empty path.
func PathOf(a Addressable, idx Index) []int {
	var rows []int
	for cur := idx; cur.IsValid(); cur = a.Parent(cur) {
		rows = append(rows, cur.Row())
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

// Resolve walks path from the root and returns the index of the last row
// at column. Any missing row yields the invalid index.
func Resolve(a Addressable, path []int, column int) Index {
	var cur Index
	for i, row := range path {
		col := 0
		if i == len(path)-1 {
			col = column
		}
		cur = a.Index(row, col, cur)
		if !cur.IsValid() {
			return Index{}
		}
	}
	return cur
}

// FormatPath renders rows as "0/3/1".
func FormatPath(rows []int) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = strconv.Itoa(r)
	}
	return strings.Join(parts, "/")
}

// ParsePath is the inverse of FormatPath. The empty string is the root.
func ParsePath(s string) ([]int, error) {
	s = strings.Trim(s, "/")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "/")
	rows := make([]int, len(parts))
	for i, p := range parts {
		r, err := strconv.Atoi(p)
		if err != nil || r < 0 {
			return nil, fmt.Errorf("model: path %q: bad row %q: %w", s, p, apperr.ErrInvalidCoordinate)
		}
		rows[i] = r
	}
	return rows, nil
}
