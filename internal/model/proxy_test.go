package model

import (
	"testing"

	"golang.org/x/text/language"

	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/testutil"
	"github.com/starford/annotree/internal/tree"
)

func newDefault(t *testing.T) *Model {
	t.Helper()
	m, err := New(testutil.DefaultCorpus())
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func label(a Addressable, idx Index) string {
	v, _ := a.Data(idx, tree.RoleDisplay)
	s, _ := v.(string)
	return s
}

func TestProxy_Identity(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, nil)
	defer p.Close()

	if p.RowCount(Index{}) != m.RowCount(Index{}) {
		t.Fatalf("top-level rows %d vs %d", p.RowCount(Index{}), m.RowCount(Index{}))
	}
	n := checkAddressing(t, p)
	if n != checkAddressing(t, m) {
		t.Error("identity proxy must expose every source index")
	}
	walk(p, Index{}, func(idx Index) {
		src := p.MapToSource(idx)
		if src.Row() != idx.Row() || p.MapFromSource(src) != idx {
			t.Fatalf("%v maps to %v", idx, src)
		}
	})
}

func TestProxy_SortDescending(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, true, "", language.English))
	defer p.Close()

	got := []string{label(p, p.Index(0, 0, Index{})), label(p, p.Index(1, 0, Index{})), label(p, p.Index(9, 0, Index{}))}
	want := []string{"file4.png", "file4.avi", "file0.avi"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %q, want %q", i, got[i], want[i])
		}
	}
	checkAddressing(t, p)
}

func TestProxy_SortIsNumeric(t *testing.T) {
	corpus := &models.Corpus{}
	for _, name := range []string{"img10.png", "img9.png", "img100.png"} {
		corpus.Files = append(corpus.Files, &models.File{Filename: name, Type: models.MediaImage})
	}
	m, err := New(corpus)
	if err != nil {
		t.Fatal(err)
	}
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "", language.Und))
	for i, want := range []string{"img9.png", "img10.png", "img100.png"} {
		if got := label(p, p.Index(i, 0, Index{})); got != want {
			t.Errorf("row %d = %q, want %q", i, got, want)
		}
	}
}

func TestProxy_Filter(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "PNG", language.English))
	defer p.Close()

	if got := p.RowCount(Index{}); got != 5 {
		t.Fatalf("visible files = %d, want 5", got)
	}
	img := p.Index(0, 0, Index{})
	if label(p, img) != "file0.png" || p.RowCount(img) != 4 {
		t.Errorf("first file %q with %d rows", label(p, img), p.RowCount(img))
	}
	hidden := m.Index(5, 0, Index{})
	if p.MapFromSource(hidden).IsValid() {
		t.Error("filtered file must not map into the proxy")
	}
	if p.MapFromSource(m.Index(0, 0, hidden)).IsValid() {
		t.Error("children of a filtered file must not map into the proxy")
	}
	checkAddressing(t, p)
}

func TestProxy_ForeignIndexes(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, nil)
	src := m.Index(0, 0, Index{})
	if got, _ := p.Data(src, tree.RoleDisplay); got != nil {
		t.Errorf("proxy answered a source index: %v", got)
	}
	if got, _ := m.Data(p.Index(0, 0, Index{}), tree.RoleDisplay); got != nil {
		t.Errorf("source answered a proxy index: %v", got)
	}
}

func TestProxy_AddAnnotationForwards(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "", language.English))
	rec := &recorder{}
	p.Subscribe(rec.observer())

	img := p.Index(1, 0, Index{}) // file0.png
	if label(p, img) != "file0.png" {
		t.Fatalf("row 1 = %q", label(p, img))
	}
	// Sorted by type: point, point, rect, rect.
	if label(p, p.Index(0, 0, img)) != "point" {
		t.Fatalf("annotations not sorted")
	}

	added := p.AddAnnotation(img, models.NewAnnotation("type", "circle", "r", "3"))

	if !added.IsValid() || added.Row() != 0 || label(p, added) != "circle" {
		t.Errorf("added = %v %q", added, label(p, added))
	}
	if got := len(m.Corpus().Files[0].Annotations); got != 5 {
		t.Errorf("source annotations = %d, want 5", got)
	}
	if got := rec.kinds(); got != "about-insert,inserted,dirty,data" {
		t.Fatalf("proxy events = %s", got)
	}
	if e := rec.events[0]; e.parent != img || e.first != 0 || e.last != 0 {
		t.Errorf("insert event = %+v", e)
	}
	if !p.Dirty() {
		t.Error("dirty must forward")
	}
	checkAddressing(t, p)
}

func TestProxy_RemoveAnnotationForwards(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "", language.English))
	rec := &recorder{}
	p.Subscribe(rec.observer())

	img := p.Index(1, 0, Index{})
	target := p.Index(2, 0, img) // first rect, source row 0
	if p.MapToSource(target).Row() != 0 {
		t.Fatalf("proxy row 2 maps to source row %d", p.MapToSource(target).Row())
	}

	p.RemoveAnnotation(target)

	if got := rec.kinds(); got != "about-remove,removed,dirty" {
		t.Fatalf("proxy events = %s", got)
	}
	if e := rec.events[0]; e.parent != img || e.first != 2 {
		t.Errorf("remove event = %+v", e)
	}
	if p.RowCount(img) != 3 || len(m.Corpus().Files[0].Annotations) != 3 {
		t.Errorf("rows = %d", p.RowCount(img))
	}
	checkAddressing(t, p)
}

func TestProxy_SetFieldsResorts(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "", language.English))
	rec := &recorder{}
	p.Subscribe(rec.observer())

	img := p.Index(1, 0, Index{})
	first := p.Index(0, 0, img)
	if !p.SetAnnotationFields(first, models.NewAnnotation("type", "zigzag", "x", "30", "y", "30")) {
		t.Fatal("SetAnnotationFields failed")
	}
	if label(p, p.Index(3, 0, img)) != "zigzag" {
		t.Errorf("edited annotation should sort last, got %q", label(p, p.Index(3, 0, img)))
	}
	if rec.kinds() != "layout,dirty" {
		t.Errorf("events = %s", rec.kinds())
	}
	checkAddressing(t, p)
}

func TestProxy_SetValueResorts(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "", language.English))

	img := p.Index(1, 0, Index{})
	if !p.SetAnnotationValue(p.Index(0, 0, img), "type", "zigzag") {
		t.Fatal("SetAnnotationValue failed")
	}
	if label(p, p.Index(3, 0, img)) != "zigzag" {
		t.Errorf("edited annotation should sort last, got %q", label(p, p.Index(3, 0, img)))
	}
	if p.SetAnnotationValue(img, "type", "x") {
		t.Error("a file is not an annotation")
	}
	checkAddressing(t, p)
}

func TestProxy_InsertFileHiddenByFilter(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "png", language.English))
	rec := &recorder{}
	p.Subscribe(rec.observer())

	idx, err := p.InsertFile(&models.File{Filename: "late.avi", Type: models.MediaVideo})
	if err != nil {
		t.Fatal(err)
	}
	if idx.IsValid() {
		t.Error("a filtered file has no proxy index")
	}
	if m.RowCount(Index{}) != 11 || p.RowCount(Index{}) != 5 {
		t.Errorf("source=%d proxy=%d", m.RowCount(Index{}), p.RowCount(Index{}))
	}

	idx, err = p.InsertFile(&models.File{Filename: "a.png", Type: models.MediaImage})
	if err != nil || idx.Row() != 0 || label(p, idx) != "a.png" {
		t.Errorf("visible insert = %v %q %v", idx, label(p, idx), err)
	}
}

func TestProxy_SetSortFilter(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, nil)
	rec := &recorder{}
	p.Subscribe(rec.observer())
	p.SetSortFilter(NewDisplaySort(tree.ColumnLabel, true, "", language.English))
	if rec.kinds() != "layout" {
		t.Errorf("events = %s", rec.kinds())
	}
	if label(p, p.Index(0, 0, Index{})) != "file4.png" {
		t.Error("new order not applied")
	}
}

func TestProxy_Navigation(t *testing.T) {
	m := newDefault(t)
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, true, "", language.English))
	vid := p.Index(1, 0, Index{}) // file4.avi
	last := p.Index(4, 0, vid)
	if got := p.NextMedia(last); got != last {
		t.Errorf("NextMedia(last) = %v", got)
	}
	kv := p.Index(0, 1, p.Index(0, 0, last))
	if got := p.MediaIndex(kv); got != last {
		t.Errorf("MediaIndex = %v, want %v", got, last)
	}
	if p.BaseDir() != m.BaseDir() {
		t.Error("base dir must forward")
	}
}

func TestDisplaySort_Compare(t *testing.T) {
	d := NewDisplaySort(tree.ColumnLabel, false, "", language.English)
	cases := []struct {
		a, b string
		want int
	}{
		{"file0.png", "file4.png", -1},
		{"0 / 0.000", "1 / 0.040", -1},
		{"img9.png", "img10.png", -1},
		{"img010.png", "img9.png", 1},
		{"File2", "file10", -1},
		{"file4.avi", "file4.png", -1},
		{"a", "a1", -1},
		{"007", "7", 0},
	}
	for _, c := range cases {
		if got := d.compare(c.a, c.b); got != c.want {
			t.Errorf("compare(%q, %q) = %d, want %d", c.a, c.b, got, c.want)
		}
		if got := d.compare(c.b, c.a); got != -c.want {
			t.Errorf("compare(%q, %q) = %d, want %d", c.b, c.a, got, -c.want)
		}
	}
}

func TestProxy_SortZeroLabels(t *testing.T) {
	corpus := &models.Corpus{Files: []*models.File{
		{Filename: "file4.png", Type: models.MediaImage},
		{Filename: "file0.png", Type: models.MediaImage},
		{Filename: "v.avi", Type: models.MediaVideo, Frames: []*models.Frame{
			{Num: 1, Timestamp: 0.04},
			{Num: 0, Timestamp: 0},
		}},
	}}
	m, err := New(corpus)
	if err != nil {
		t.Fatal(err)
	}
	p := NewProxy(m, NewDisplaySort(tree.ColumnLabel, false, "", language.English))
	defer p.Close()

	for i, want := range []string{"file0.png", "file4.png", "v.avi"} {
		if got := label(p, p.Index(i, 0, Index{})); got != want {
			t.Errorf("top row %d = %q, want %q", i, got, want)
		}
	}
	vid := p.Index(2, 0, Index{})
	for i, want := range []string{"0 / 0.000", "1 / 0.040"} {
		if got := label(p, p.Index(i, 0, vid)); got != want {
			t.Errorf("frame row %d = %q, want %q", i, got, want)
		}
	}
	if src := p.MapToSource(p.Index(0, 0, vid)); src.Row() != 1 {
		t.Errorf("frame 0 maps to source row %d, want 1", src.Row())
	}
	checkAddressing(t, p)
}
