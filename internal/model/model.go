// Package model exposes the annotation tree through (row, column, parent)
// coordinates with bidirectional addressing, a mutation API bracketed by
// change notifications, and a sorted/filtered proxy view.
package model

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/starford/annotree/internal/framecache"
	"github.com/starford/annotree/internal/imageio"
	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/tree"
)

// addrSpace tags the indexes produced by one addressing layer, so an index
// handed to another layer resolves as invalid.
type addrSpace struct{ name string }

// Index is a coordinate in one addressing layer. The zero value is the
// invalid index, which also stands for the root when used as a parent.
type Index struct {
	row    int
	column int
	id     tree.NodeID
	space  *addrSpace
}

// IsValid reports whether the index names a node.
func (i Index) IsValid() bool { return i.id != 0 }

// Row returns the index's row, or -1 when invalid.
func (i Index) Row() int {
	if !i.IsValid() {
		return -1
	}
	return i.row
}

// Column returns the index's column, or -1 when invalid.
func (i Index) Column() int {
	if !i.IsValid() {
		return -1
	}
	return i.column
}

// ID returns the handle of the addressed node, 0 when invalid.
func (i Index) ID() tree.NodeID { return i.id }

func (i Index) String() string {
	if !i.IsValid() {
		return "Index(invalid)"
	}
	return fmt.Sprintf("Index(%d,%d,#%d,%s)", i.row, i.column, i.id, i.space.name)
}

// Model is the source addressing layer. It owns the tree, the dirty flag
// and the frame cache. It is not safe for concurrent use.
type Model struct {
	notifier

	tree      *tree.Tree
	space     *addrSpace
	baseDir   string
	cache     *framecache.Cache
	loadImage func(path string) (image.Image, error)
	logger    *slog.Logger
	dirty     bool
}

// Option configures a Model.
type Option func(*Model)

// WithBaseDir sets the directory file names are resolved against.
func WithBaseDir(dir string) Option {
	return func(m *Model) { m.baseDir = dir }
}

// WithFrameCache sets the cache used to decode video frames.
func WithFrameCache(c *framecache.Cache) Option {
	return func(m *Model) { m.cache = c }
}

// WithImageLoader replaces the still-image decoder.
func WithImageLoader(fn func(path string) (image.Image, error)) Option {
	return func(m *Model) { m.loadImage = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// New builds a model over corpus. The corpus is edited in place by
// mutations.
func New(corpus *models.Corpus, opts ...Option) (*Model, error) {
	m := &Model{space: &addrSpace{name: "source"}}
	for _, o := range opts {
		o(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.cache == nil {
		m.cache = framecache.New(nil, m.logger)
	}
	if m.loadImage == nil {
		m.loadImage = imageio.Load
	}
	t, err := tree.New(corpus, m)
	if err != nil {
		return nil, fmt.Errorf("model: %w", err)
	}
	m.tree = t
	return m, nil
}

// Corpus returns the backing corpus.
func (m *Model) Corpus() *models.Corpus { return m.tree.Corpus() }

// Close releases the frame cache.
func (m *Model) Close() error { return m.cache.Close() }

// BaseDir implements tree.Context.
func (m *Model) BaseDir() string { return m.baseDir }

// SetBaseDir changes the directory file names are resolved against. Paths
// are derived on demand, so the change applies to every later lookup.
func (m *Model) SetBaseDir(dir string) {
	if dir == m.baseDir {
		return
	}
	m.logger.Debug("model: base directory changed",
		slog.String("from", m.baseDir), slog.String("to", dir))
	m.baseDir = dir
}

// LoadImage implements tree.Context.
func (m *Model) LoadImage(path string) (image.Image, error) {
	return m.loadImage(path)
}

// VideoFrame implements tree.Context.
func (m *Model) VideoFrame(path string, frame int) (image.Image, error) {
	return m.cache.Frame(path, frame)
}

// Dirty reports whether the model holds unsaved mutations.
func (m *Model) Dirty() bool { return m.dirty }

// SetDirty sets the dirty flag, notifying observers on a transition.
// Clearing it is the caller's business after a save.
func (m *Model) SetDirty(dirty bool) {
	if m.dirty == dirty {
		return
	}
	m.dirty = dirty
	m.emit(func(o Observer) { o.DirtyChanged(dirty) })
}

// Node resolves idx to its node, or nil.
func (m *Model) Node(idx Index) *tree.Node { return m.node(idx) }

// node resolves idx, rejecting indexes from another layer, indexes naming
// removed nodes and indexes whose row no longer matches the node.
func (m *Model) node(idx Index) *tree.Node {
	if !idx.IsValid() || idx.space != m.space {
		return nil
	}
	n, ok := m.tree.Lookup(idx.id)
	if !ok {
		return nil
	}
	p := m.tree.Parent(n)
	if p == nil || p.Child(idx.row) != n {
		return nil
	}
	return n
}

// parentNode resolves a parent coordinate; invalid means root.
func (m *Model) parentNode(parent Index) *tree.Node {
	if !parent.IsValid() {
		return m.tree.Root()
	}
	return m.node(parent)
}

// indexOf builds the current index of the node with handle id.
func (m *Model) indexOf(id tree.NodeID, column int) Index {
	n, ok := m.tree.Lookup(id)
	if !ok {
		return Index{}
	}
	p := m.tree.Parent(n)
	if p == nil {
		return Index{}
	}
	return Index{row: p.RowOfChild(n), column: column, id: id, space: m.space}
}

// Index returns the coordinate of the row-th child of parent at column,
// or the invalid index when there is no such child.
func (m *Model) Index(row, column int, parent Index) Index {
	if column < 0 || column >= tree.NumColumns {
		return Index{}
	}
	p := m.parentNode(parent)
	if p == nil {
		return Index{}
	}
	c := p.Child(row)
	if c == nil {
		return Index{}
	}
	return Index{row: row, column: column, id: c.ID(), space: m.space}
}

// Parent returns the coordinate of idx's parent at column 0. Top-level
// files and invalid indexes answer invalid.
func (m *Model) Parent(idx Index) Index {
	n := m.node(idx)
	if n == nil {
		return Index{}
	}
	p := m.tree.Parent(n)
	gp := m.tree.Parent(p)
	if gp == nil {
		return Index{}
	}
	return Index{row: gp.RowOfChild(p), column: 0, id: p.ID(), space: m.space}
}

// RowCount returns the number of children of parent.
func (m *Model) RowCount(parent Index) int {
	p := m.parentNode(parent)
	if p == nil {
		return 0
	}
	return p.NumChildren()
}

// ColumnCount is fixed: label and value.
func (m *Model) ColumnCount() int { return tree.NumColumns }

// HeaderLabel returns the title of column.
func (m *Model) HeaderLabel(column int) string { return headerLabel(column) }

func headerLabel(column int) string {
	switch column {
	case tree.ColumnLabel:
		return "File/Type/Key"
	case tree.ColumnValue:
		return "Value"
	default:
		return ""
	}
}

// Data answers role for the node and column of idx. Invalid indexes yield
// nil. Errors come only from image decoding.
func (m *Model) Data(idx Index, role tree.Role) (any, error) {
	n := m.node(idx)
	if n == nil {
		return nil, nil
	}
	return m.tree.Data(n, idx.column, role)
}

// Kind returns the kind of the addressed node; invalid indexes address the
// root.
func (m *Model) Kind(idx Index) tree.Kind {
	n := m.node(idx)
	if n == nil {
		return tree.KindRoot
	}
	return n.Kind()
}

// FullPath returns the absolute path of the file addressed by idx, or ""
// when idx is not a file.
func (m *Model) FullPath(idx Index) string {
	n := m.node(idx)
	if n == nil || !n.Kind().IsFile() {
		return ""
	}
	return m.tree.FullPath(n)
}

// MediaIndex walks up from idx to the nearest image file or frame.
func (m *Model) MediaIndex(idx Index) Index { return mediaIndex(m, idx) }

// Sibling returns the coordinate at row and column under idx's parent.
func (m *Model) Sibling(idx Index, row, column int) Index {
	return m.Index(row, column, m.Parent(idx))
}

// NextMedia returns the following media sibling of idx, clamped at the end.
func (m *Model) NextMedia(idx Index) Index { return stepMedia(m, idx, 1) }

// PreviousMedia returns the preceding media sibling of idx, clamped at the
// start.
func (m *Model) PreviousMedia(idx Index) Index { return stepMedia(m, idx, -1) }

var _ Addressable = (*Model)(nil)
var _ tree.Context = (*Model)(nil)
