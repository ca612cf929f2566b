// Package tree implements the node hierarchy of an annotation corpus:
// a root, its image and video files, video frames, annotations and the
// key/value attributes of each annotation.
//
// Nodes hold no coordinates. Children are owned slices; parents are
// NodeID handles resolved through the owning Tree.
package tree

import (
	"slices"

	"github.com/starford/annotree/internal/models"
)

// NodeID identifies a node within its Tree. Zero is never assigned.
type NodeID uint64

// Kind is the closed set of node variants.
type Kind int

const (
	KindRoot Kind = iota
	KindImageFile
	KindVideoFile
	KindFrame
	KindAnnotation
	KindKeyValue
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindImageFile:
		return "image"
	case KindVideoFile:
		return "video"
	case KindFrame:
		return "frame"
	case KindAnnotation:
		return "annotation"
	case KindKeyValue:
		return "keyvalue"
	default:
		return "unknown"
	}
}

// IsMedia reports whether nodes of this kind carry a decodable image and
// take part in next/previous navigation.
func (k Kind) IsMedia() bool {
	return k == KindImageFile || k == KindFrame
}

// IsFile reports whether k is one of the two file kinds.
func (k Kind) IsFile() bool {
	return k == KindImageFile || k == KindVideoFile
}

// Node is one element of the tree. Which payload field is set depends on
// the node's kind.
type Node struct {
	id       NodeID
	kind     Kind
	parent   NodeID
	children []*Node

	file       *models.File       // image, video
	frame      *models.Frame      // frame
	annotation *models.Annotation // annotation, keyvalue (owning annotation)
	key        string             // keyvalue
}

// ID returns the node's handle.
func (n *Node) ID() NodeID { return n.id }

// Kind returns the node's variant.
func (n *Node) Kind() Kind { return n.kind }

// Children returns a copy of the ordered child list.
func (n *Node) Children() []*Node { return slices.Clone(n.children) }

// NumChildren returns the number of children.
func (n *Node) NumChildren() int { return len(n.children) }

// Child returns the child at row, or nil when row is out of range.
func (n *Node) Child(row int) *Node {
	if row < 0 || row >= len(n.children) {
		return nil
	}
	return n.children[row]
}

// RowOfChild returns the position of c among n's children, or -1.
func (n *Node) RowOfChild(c *Node) int {
	return slices.Index(n.children, c)
}

// File returns the backing record of an image or video node.
func (n *Node) File() *models.File { return n.file }

// Filename returns the file's relative filename.
func (n *Node) Filename() string {
	if n.file == nil {
		return ""
	}
	return n.file.Filename
}

// Frame returns the backing record of a frame node.
func (n *Node) Frame() *models.Frame { return n.frame }

// FrameNum returns the frame number, or -1 for non-frame nodes.
func (n *Node) FrameNum() int {
	if n.frame == nil {
		return -1
	}
	return n.frame.Num
}

// Timestamp returns the frame timestamp, or -1 for non-frame nodes.
func (n *Node) Timestamp() float64 {
	if n.frame == nil {
		return -1
	}
	return n.frame.Timestamp
}

// Annotation returns the annotation of an annotation node, or the owning
// annotation of a key/value node.
func (n *Node) Annotation() *models.Annotation { return n.annotation }

// Key returns the attribute key of a key/value node.
func (n *Node) Key() string { return n.key }

// annotationList returns a pointer to the backing annotation list of a
// media node.
func (n *Node) annotationList() *[]*models.Annotation {
	switch n.kind {
	case KindImageFile:
		return &n.file.Annotations
	case KindFrame:
		return &n.frame.Annotations
	default:
		return nil
	}
}
