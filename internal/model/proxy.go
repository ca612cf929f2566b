package model

import (
	"cmp"
	"slices"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/tree"
)

// SortFilter decides which source rows a Proxy shows and in what order.
// Both methods receive source indexes and may only read from src.
type SortFilter interface {
	// Accept reports whether source row under parent is visible.
	Accept(src *Model, row int, parent Index) bool
	// Less orders two visible siblings.
	Less(src *Model, left, right Index) bool
}

// DisplaySort orders siblings by the display text of one column using
// locale-aware collation, and filters top-level files by a
// case-insensitive substring of their label.
type DisplaySort struct {
	column     int
	descending bool
	filter     string
	collator   *collate.Collator
}

// NewDisplaySort creates a DisplaySort for column. An empty filter shows
// every file.
func NewDisplaySort(column int, descending bool, filter string, tag language.Tag) *DisplaySort {
	return &DisplaySort{
		column:     column,
		descending: descending,
		filter:     strings.ToLower(filter),
		collator:   collate.New(tag, collate.IgnoreCase),
	}
}

func (d *DisplaySort) Accept(src *Model, row int, parent Index) bool {
	if d.filter == "" || parent.IsValid() {
		return true
	}
	label, _ := src.Data(src.Index(row, tree.ColumnLabel, parent), tree.RoleDisplay)
	s, _ := label.(string)
	return strings.Contains(strings.ToLower(s), d.filter)
}

func (d *DisplaySort) Less(src *Model, left, right Index) bool {
	a := displayText(src, src.Sibling(left, left.Row(), d.column))
	b := displayText(src, src.Sibling(right, right.Row(), d.column))
	c := d.compare(a, b)
	if d.descending {
		return c > 0
	}
	return c < 0
}

// compare orders labels chunk by chunk: runs of ASCII digits compare by
// numeric value, everything else through the collator.
func (d *DisplaySort) compare(a, b string) int {
	for a != "" && b != "" {
		ca, ra := nextChunk(a)
		cb, rb := nextChunk(b)
		var c int
		if isDigit(ca[0]) && isDigit(cb[0]) {
			c = compareDigits(ca, cb)
		} else {
			c = d.collator.CompareString(ca, cb)
		}
		if c != 0 {
			return c
		}
		a, b = ra, rb
	}
	return cmp.Compare(len(a), len(b))
}

func isDigit(c byte) bool { return '0' <= c && c <= '9' }

// nextChunk splits off the leading run of digits or non-digits.
func nextChunk(s string) (chunk, rest string) {
	digit := isDigit(s[0])
	i := 1
	for i < len(s) && isDigit(s[i]) == digit {
		i++
	}
	return s[:i], s[i:]
}

func compareDigits(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}

func displayText(src *Model, idx Index) string {
	v, _ := src.Data(idx, tree.RoleDisplay)
	s, _ := v.(string)
	return s
}

// mapping is the row translation for the children of one source parent.
// sourceToProxy holds -1 for filtered rows.
type mapping struct {
	proxyToSource []int
	sourceToProxy []int
}

type pendingRemove struct {
	parent Index
	row    int
}

// Proxy is a sorted/filtered view over a Model. It keeps only row
// mappings, built lazily per source parent; every read and mutation is
// translated to the source. It is not safe for concurrent use.
type Proxy struct {
	notifier

	src     *Model
	sf      SortFilter
	space   *addrSpace
	maps    map[tree.NodeID]*mapping
	pending *pendingRemove
	cancel  func()
}

// NewProxy wraps src. A nil sf shows every row in source order.
func NewProxy(src *Model, sf SortFilter) *Proxy {
	p := &Proxy{
		src:   src,
		sf:    sf,
		space: &addrSpace{name: "proxy"},
		maps:  make(map[tree.NodeID]*mapping),
	}
	p.cancel = src.Subscribe(sourceObserver{p})
	return p
}

// Close detaches the proxy from its source.
func (p *Proxy) Close() { p.cancel() }

// Source returns the wrapped model.
func (p *Proxy) Source() *Model { return p.src }

// SetSortFilter replaces the transform and invalidates every mapping.
func (p *Proxy) SetSortFilter(sf SortFilter) {
	p.guard("SetSortFilter")
	p.sf = sf
	clear(p.maps)
	p.emit(func(o Observer) { o.LayoutChanged() })
}

func (p *Proxy) key(srcParent Index) tree.NodeID {
	if !srcParent.IsValid() {
		return p.src.tree.Root().ID()
	}
	return srcParent.id
}

func (p *Proxy) mapFor(srcParent Index) *mapping {
	k := p.key(srcParent)
	if mp, ok := p.maps[k]; ok {
		return mp
	}
	mp := p.build(srcParent)
	p.maps[k] = mp
	return mp
}

func (p *Proxy) build(srcParent Index) *mapping {
	n := p.src.RowCount(srcParent)
	mp := &mapping{sourceToProxy: make([]int, n)}
	for r := 0; r < n; r++ {
		mp.sourceToProxy[r] = -1
		if p.sf == nil || p.sf.Accept(p.src, r, srcParent) {
			mp.proxyToSource = append(mp.proxyToSource, r)
		}
	}
	if p.sf != nil {
		sort.SliceStable(mp.proxyToSource, func(i, j int) bool {
			l := p.src.Index(mp.proxyToSource[i], 0, srcParent)
			r := p.src.Index(mp.proxyToSource[j], 0, srcParent)
			return p.sf.Less(p.src, l, r)
		})
	}
	for pr, sr := range mp.proxyToSource {
		mp.sourceToProxy[sr] = pr
	}
	return mp
}

// MapToSource translates a proxy index into the source layer.
func (p *Proxy) MapToSource(idx Index) Index {
	if !idx.IsValid() || idx.space != p.space {
		return Index{}
	}
	s := p.src.indexOf(idx.id, idx.column)
	if !s.IsValid() {
		return Index{}
	}
	mp := p.mapFor(p.src.Parent(s))
	if s.row >= len(mp.sourceToProxy) || mp.sourceToProxy[s.row] != idx.row {
		return Index{}
	}
	return s
}

// MapFromSource translates a source index into the proxy layer. Rows that
// are filtered out, or sit under a filtered row, map to invalid.
func (p *Proxy) MapFromSource(idx Index) Index {
	if !idx.IsValid() || idx.space != p.src.space {
		return Index{}
	}
	srcParent := p.src.Parent(idx)
	if srcParent.IsValid() && !p.MapFromSource(srcParent).IsValid() {
		return Index{}
	}
	mp := p.mapFor(srcParent)
	if idx.row >= len(mp.sourceToProxy) {
		return Index{}
	}
	row := mp.sourceToProxy[idx.row]
	if row < 0 {
		return Index{}
	}
	return Index{row: row, column: idx.column, id: idx.id, space: p.space}
}

func (p *Proxy) Index(row, column int, parent Index) Index {
	var srcParent Index
	if parent.IsValid() {
		srcParent = p.MapToSource(parent)
		if !srcParent.IsValid() {
			return Index{}
		}
	}
	mp := p.mapFor(srcParent)
	if row < 0 || row >= len(mp.proxyToSource) {
		return Index{}
	}
	s := p.src.Index(mp.proxyToSource[row], column, srcParent)
	if !s.IsValid() {
		return Index{}
	}
	return Index{row: row, column: column, id: s.id, space: p.space}
}

func (p *Proxy) Parent(idx Index) Index {
	s := p.MapToSource(idx)
	if !s.IsValid() {
		return Index{}
	}
	return p.MapFromSource(p.src.Parent(s))
}

func (p *Proxy) RowCount(parent Index) int {
	var srcParent Index
	if parent.IsValid() {
		srcParent = p.MapToSource(parent)
		if !srcParent.IsValid() {
			return 0
		}
	}
	return len(p.mapFor(srcParent).proxyToSource)
}

func (p *Proxy) ColumnCount() int { return p.src.ColumnCount() }

func (p *Proxy) HeaderLabel(column int) string { return p.src.HeaderLabel(column) }

func (p *Proxy) Data(idx Index, role tree.Role) (any, error) {
	return p.src.Data(p.MapToSource(idx), role)
}

func (p *Proxy) Kind(idx Index) tree.Kind { return p.src.Kind(p.MapToSource(idx)) }

func (p *Proxy) Sibling(idx Index, row, column int) Index {
	return p.Index(row, column, p.Parent(idx))
}

func (p *Proxy) MediaIndex(idx Index) Index {
	return p.MapFromSource(p.src.MediaIndex(p.MapToSource(idx)))
}

func (p *Proxy) NextMedia(idx Index) Index { return stepMedia(p, idx, 1) }

func (p *Proxy) PreviousMedia(idx Index) Index { return stepMedia(p, idx, -1) }

// AddAnnotation forwards to the source and returns the new row's proxy
// index.
func (p *Proxy) AddAnnotation(target Index, fields *models.Annotation) Index {
	p.guard("AddAnnotation")
	return p.MapFromSource(p.src.AddAnnotation(p.MapToSource(target), fields))
}

func (p *Proxy) RemoveAnnotation(idx Index) {
	p.guard("RemoveAnnotation")
	p.src.RemoveAnnotation(p.MapToSource(idx))
}

func (p *Proxy) SetAnnotationFields(idx Index, fields *models.Annotation) bool {
	p.guard("SetAnnotationFields")
	return p.src.SetAnnotationFields(p.MapToSource(idx), fields)
}

// SetAnnotationValue forwards to the source.
func (p *Proxy) SetAnnotationValue(idx Index, key string, value any) bool {
	p.guard("SetAnnotationValue")
	return p.src.SetAnnotationValue(p.MapToSource(idx), key, value)
}

// InsertFile forwards to the source. The returned index is invalid when the
// filter hides the new file.
func (p *Proxy) InsertFile(f *models.File) (Index, error) {
	p.guard("InsertFile")
	s, err := p.src.InsertFile(f)
	if err != nil {
		return Index{}, err
	}
	return p.MapFromSource(s), nil
}

func (p *Proxy) BaseDir() string { return p.src.BaseDir() }

func (p *Proxy) Dirty() bool { return p.src.Dirty() }

// visibleParent maps a source parent into the proxy. ok is false when the
// parent itself is hidden.
func (p *Proxy) visibleParent(srcParent Index) (Index, bool) {
	if !srcParent.IsValid() {
		return Index{}, true
	}
	pp := p.MapFromSource(srcParent)
	return pp, pp.IsValid()
}

// prune drops mappings of parents that no longer exist.
func (p *Proxy) prune() {
	root := p.src.tree.Root().ID()
	for id := range p.maps {
		if _, ok := p.src.tree.Lookup(id); !ok && id != root {
			delete(p.maps, id)
		}
	}
}

// sourceObserver translates source notifications into proxy ones.
type sourceObserver struct{ p *Proxy }

func (s sourceObserver) RowsAboutToBeInserted(parent Index, first, last int) {
	s.p.mapFor(parent)
}

func (s sourceObserver) RowsInserted(parent Index, first, last int) {
	p := s.p
	pp, visible := p.visibleParent(parent)
	next := p.build(parent)
	if !visible {
		p.maps[p.key(parent)] = next
		return
	}
	if first != last {
		p.maps[p.key(parent)] = next
		p.emit(func(o Observer) { o.LayoutChanged() })
		return
	}
	row := next.sourceToProxy[first]
	if row < 0 {
		p.maps[p.key(parent)] = next
		return
	}
	p.emit(func(o Observer) { o.RowsAboutToBeInserted(pp, row, row) })
	p.maps[p.key(parent)] = next
	p.emit(func(o Observer) { o.RowsInserted(pp, row, row) })
}

func (s sourceObserver) RowsAboutToBeRemoved(parent Index, first, last int) {
	p := s.p
	p.pending = nil
	pp, visible := p.visibleParent(parent)
	mp := p.mapFor(parent)
	if !visible || first != last || first >= len(mp.sourceToProxy) {
		return
	}
	row := mp.sourceToProxy[first]
	if row < 0 {
		return
	}
	p.pending = &pendingRemove{parent: pp, row: row}
	p.emit(func(o Observer) { o.RowsAboutToBeRemoved(pp, row, row) })
}

func (s sourceObserver) RowsRemoved(parent Index, first, last int) {
	p := s.p
	pending := p.pending
	p.pending = nil
	p.maps[p.key(parent)] = p.build(parent)
	p.prune()
	if pending != nil {
		p.emit(func(o Observer) { o.RowsRemoved(pending.parent, pending.row, pending.row) })
		return
	}
	if first != last {
		if _, visible := p.visibleParent(parent); visible {
			p.emit(func(o Observer) { o.LayoutChanged() })
		}
	}
}

func (s sourceObserver) DataChanged(topLeft, bottomRight Index) {
	p := s.p
	reordered := p.rebuild(p.src.Parent(topLeft))
	if reordered {
		p.emit(func(o Observer) { o.LayoutChanged() })
		return
	}
	// Edited values may reorder the changed row's own children.
	if p.rebuild(p.src.Sibling(topLeft, topLeft.Row(), 0)) {
		p.emit(func(o Observer) { o.LayoutChanged() })
		return
	}
	tl, br := p.MapFromSource(topLeft), p.MapFromSource(bottomRight)
	if tl.IsValid() && br.IsValid() {
		p.emit(func(o Observer) { o.DataChanged(tl, br) })
	}
}

// rebuild refreshes an existing mapping and reports whether it changed.
func (p *Proxy) rebuild(srcParent Index) bool {
	k := p.key(srcParent)
	old, ok := p.maps[k]
	if !ok {
		return false
	}
	next := p.build(srcParent)
	p.maps[k] = next
	return !slices.Equal(old.proxyToSource, next.proxyToSource) ||
		!slices.Equal(old.sourceToProxy, next.sourceToProxy)
}

func (s sourceObserver) LayoutChanged() {
	clear(s.p.maps)
	s.p.emit(func(o Observer) { o.LayoutChanged() })
}

func (s sourceObserver) DirtyChanged(dirty bool) {
	s.p.emit(func(o Observer) { o.DirtyChanged(dirty) })
}

var _ Addressable = (*Proxy)(nil)
var _ Observer = sourceObserver{}
