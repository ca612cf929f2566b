package tree

import (
	"fmt"
	"image"
	"path/filepath"
	"slices"

	"github.com/starford/annotree/internal/apperr"
	"github.com/starford/annotree/internal/models"
)

// Context is what the tree needs from its owner to answer path and image
// queries.
type Context interface {
	// BaseDir is joined with each file's relative filename.
	BaseDir() string
	// LoadImage decodes a still image file.
	LoadImage(path string) (image.Image, error)
	// VideoFrame decodes one frame of a video file.
	VideoFrame(path string, frame int) (image.Image, error)
}

// Tree owns the nodes built from one corpus.
//
// Nodes are registered by ID so parent handles and external coordinates
// can be resolved; removed nodes are unregistered and never reused.
type Tree struct {
	ctx    Context
	corpus *models.Corpus
	nodes  map[NodeID]*Node
	lastID NodeID
	root   *Node
}

// New builds the whole tree from corpus, depth first. The corpus is kept
// and edited in place by later structural changes.
func New(corpus *models.Corpus, ctx Context) (*Tree, error) {
	if corpus == nil {
		corpus = &models.Corpus{}
	}
	t := &Tree{
		ctx:    ctx,
		corpus: corpus,
		nodes:  make(map[NodeID]*Node),
	}
	t.root = t.newNode(KindRoot, 0)
	for i, f := range corpus.Files {
		n, err := t.buildFile(f)
		if err != nil {
			return nil, fmt.Errorf("tree: file %d: %w", i, err)
		}
		t.root.children = append(t.root.children, n)
	}
	return t, nil
}

// Corpus returns the backing corpus.
func (t *Tree) Corpus() *models.Corpus { return t.corpus }

// Root returns the root node.
func (t *Tree) Root() *Node { return t.root }

// Len returns the number of live nodes, root included.
func (t *Tree) Len() int { return len(t.nodes) }

// Lookup resolves a handle to a live node.
func (t *Tree) Lookup(id NodeID) (*Node, bool) {
	n, ok := t.nodes[id]
	return n, ok
}

// Parent returns n's parent, or nil for the root.
func (t *Tree) Parent(n *Node) *Node {
	if n.parent == 0 {
		return nil
	}
	return t.nodes[n.parent]
}

// Walk calls fn for n and each of its descendants, parents first.
func (t *Tree) Walk(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		t.Walk(c, fn)
	}
}

// FullPath joins the context base directory with a file node's filename.
// It is recomputed on every call.
func (t *Tree) FullPath(n *Node) string {
	if !n.kind.IsFile() {
		panic(fmt.Sprintf("tree: FullPath on %s node", n.kind))
	}
	return filepath.Join(t.ctx.BaseDir(), n.file.Filename)
}

// FrameImage decodes frame number frame of a video node.
func (t *Tree) FrameImage(video *Node, frame int) (image.Image, error) {
	if video.kind != KindVideoFile {
		panic(fmt.Sprintf("tree: FrameImage on %s node", video.kind))
	}
	return t.ctx.VideoFrame(t.FullPath(video), frame)
}

// AddFile appends a file record to the corpus and its node to the root.
func (t *Tree) AddFile(f *models.File) (*Node, error) {
	n, err := t.buildFile(f)
	if err != nil {
		return nil, err
	}
	t.corpus.Files = append(t.corpus.Files, f)
	t.root.children = append(t.root.children, n)
	return n, nil
}

// AppendAnnotation appends a to the backing list of an image or frame
// node and adds its node as the last child.
func (t *Tree) AppendAnnotation(media *Node, a *models.Annotation) *Node {
	list := media.annotationList()
	if list == nil {
		panic(fmt.Sprintf("tree: AppendAnnotation on %s node", media.kind))
	}
	*list = append(*list, a)
	n := t.buildAnnotation(a, media.id)
	media.children = append(media.children, n)
	return n
}

// RemoveAnnotation deletes the annotation at row from both the backing
// list and the child list of an image or frame node.
func (t *Tree) RemoveAnnotation(media *Node, row int) {
	list := media.annotationList()
	if list == nil {
		panic(fmt.Sprintf("tree: RemoveAnnotation on %s node", media.kind))
	}
	if row < 0 || row >= len(media.children) || row >= len(*list) {
		panic(fmt.Sprintf("tree: RemoveAnnotation row %d out of range", row))
	}
	*list = slices.Delete(*list, row, row+1)
	t.detach(media, row)
}

// InsertKey stores a new key on an annotation node's annotation and
// appends its key/value child.
func (t *Tree) InsertKey(ann *Node, key string, value any) *Node {
	if ann.kind != KindAnnotation {
		panic(fmt.Sprintf("tree: InsertKey on %s node", ann.kind))
	}
	if ann.annotation.Has(key) {
		panic(fmt.Sprintf("tree: InsertKey: key %q already present", key))
	}
	ann.annotation.Set(key, value)
	n := t.newNode(KindKeyValue, ann.id)
	n.annotation = ann.annotation
	n.key = key
	ann.children = append(ann.children, n)
	return n
}

// KeyRow returns the row of key's child under an annotation node, or -1.
func (t *Tree) KeyRow(ann *Node, key string) int {
	return slices.IndexFunc(ann.children, func(c *Node) bool { return c.key == key })
}

// RemoveKey deletes key from an annotation node's annotation and drops
// its key/value child.
func (t *Tree) RemoveKey(ann *Node, key string) {
	if ann.kind != KindAnnotation {
		panic(fmt.Sprintf("tree: RemoveKey on %s node", ann.kind))
	}
	row := t.KeyRow(ann, key)
	if row < 0 {
		panic(fmt.Sprintf("tree: RemoveKey: no child for key %q", key))
	}
	ann.annotation.Delete(key)
	t.detach(ann, row)
}

func (t *Tree) detach(parent *Node, row int) {
	child := parent.children[row]
	parent.children = slices.Delete(parent.children, row, row+1)
	t.Walk(child, func(n *Node) {
		delete(t.nodes, n.id)
		n.parent = 0
	})
}

func (t *Tree) newNode(kind Kind, parent NodeID) *Node {
	t.lastID++
	n := &Node{id: t.lastID, kind: kind, parent: parent}
	t.nodes[n.id] = n
	return n
}

// buildFile validates the type tag before registering anything, so an
// unknown tag leaves no partial node behind.
func (t *Tree) buildFile(f *models.File) (*Node, error) {
	if f == nil {
		return nil, fmt.Errorf("tree: nil file record")
	}
	var kind Kind
	switch f.Type {
	case models.MediaImage:
		kind = KindImageFile
	case models.MediaVideo:
		kind = KindVideoFile
	default:
		return nil, fmt.Errorf("tree: %s: type %q: %w", f.Filename, f.Type, apperr.ErrUnknownMediaType)
	}

	n := t.newNode(kind, t.root.id)
	n.file = f
	switch kind {
	case KindImageFile:
		for _, a := range f.Annotations {
			n.children = append(n.children, t.buildAnnotation(a, n.id))
		}
	case KindVideoFile:
		for _, fr := range f.Frames {
			n.children = append(n.children, t.buildFrame(fr, n.id))
		}
	}
	return n, nil
}

func (t *Tree) buildFrame(fr *models.Frame, parent NodeID) *Node {
	n := t.newNode(KindFrame, parent)
	n.frame = fr
	for _, a := range fr.Annotations {
		n.children = append(n.children, t.buildAnnotation(a, n.id))
	}
	return n
}

func (t *Tree) buildAnnotation(a *models.Annotation, parent NodeID) *Node {
	n := t.newNode(KindAnnotation, parent)
	n.annotation = a
	for _, k := range a.Keys() {
		kv := t.newNode(KindKeyValue, n.id)
		kv.annotation = a
		kv.key = k
		n.children = append(n.children, kv)
	}
	return n
}
