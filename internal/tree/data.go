package tree

import (
	"fmt"
	"path/filepath"

	"github.com/starford/annotree/internal/apperr"
)

// Role selects which facet of a node Data returns.
type Role int

const (
	// RoleDisplay is the human-readable label of a column.
	RoleDisplay Role = iota
	// RoleType is an annotation's kind.
	RoleType
	// RoleData is the live backing record. Callers must copy before
	// retaining it.
	RoleData
	// RoleImage is a decoded raster, for image and frame nodes only.
	RoleImage
)

func (r Role) String() string {
	switch r {
	case RoleDisplay:
		return "display"
	case RoleType:
		return "type"
	case RoleData:
		return "data"
	case RoleImage:
		return "image"
	default:
		return "unknown"
	}
}

// ParseRole maps a role name back to its Role.
func ParseRole(s string) (Role, bool) {
	for r := RoleDisplay; r <= RoleImage; r++ {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

// Columns.
const (
	ColumnLabel = 0
	ColumnValue = 1
	NumColumns  = 2
)

// Data answers role for column of n. Unrecognized role and column
// combinations yield nil. The error is only ever set for RoleImage.
func (t *Tree) Data(n *Node, column int, role Role) (any, error) {
	switch n.kind {
	case KindRoot:
		return nil, nil
	case KindImageFile, KindVideoFile:
		return t.fileData(n, column, role)
	case KindFrame:
		return t.frameData(n, column, role)
	case KindAnnotation:
		return annotationData(n, column, role), nil
	case KindKeyValue:
		return keyValueData(n, column, role), nil
	default:
		panic(fmt.Sprintf("tree: unhandled kind %d", n.kind))
	}
}

func (t *Tree) fileData(n *Node, column int, role Role) (any, error) {
	switch role {
	case RoleDisplay:
		if column == ColumnLabel {
			return filepath.Base(n.file.Filename), nil
		}
	case RoleData:
		return n.file, nil
	case RoleImage:
		if n.kind != KindImageFile {
			return nil, nil
		}
		img, err := t.ctx.LoadImage(t.FullPath(n))
		if err != nil {
			return nil, err
		}
		return img, nil
	}
	return nil, nil
}

func (t *Tree) frameData(n *Node, column int, role Role) (any, error) {
	switch role {
	case RoleDisplay:
		if column == ColumnLabel {
			return fmt.Sprintf("%d / %.3f", n.frame.Num, n.frame.Timestamp), nil
		}
	case RoleData:
		return n.frame, nil
	case RoleImage:
		video := t.Parent(n)
		if video == nil {
			return nil, fmt.Errorf("tree: frame %d has no video", n.id)
		}
		img, err := t.FrameImage(video, n.frame.Num)
		if err != nil {
			return nil, err
		}
		return img, nil
	}
	return nil, nil
}

func annotationData(n *Node, column int, role Role) any {
	switch role {
	case RoleDisplay:
		if column == ColumnLabel {
			return n.annotation.Type()
		}
	case RoleType:
		return n.annotation.Type()
	case RoleData:
		return n.annotation
	}
	return nil
}

func keyValueData(n *Node, column int, role Role) any {
	switch role {
	case RoleDisplay:
		switch column {
		case ColumnLabel:
			return n.key
		case ColumnValue:
			return FormatValue(Value(n))
		}
	case RoleData:
		return Value(n)
	}
	return nil
}

// Value looks up a key/value node's value in its annotation. A missing
// key means the child list and the backing data have diverged, which is
// a structural invariant violation.
func Value(n *Node) any {
	v, ok := n.annotation.Get(n.key)
	if !ok {
		panic(fmt.Errorf("tree: node %d key %q: %w", n.id, n.key, apperr.ErrMissingKey))
	}
	return v
}

// FormatValue renders an attribute value for display.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
