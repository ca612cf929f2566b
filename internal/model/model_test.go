package model

import (
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/annotree/internal/apperr"
	"github.com/starford/annotree/internal/framecache"
	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/testutil"
	"github.com/starford/annotree/internal/tree"
)

type event struct {
	kind        string
	parent      Index
	first, last int
	dirty       bool
}

type recorder struct{ events []event }

func (r *recorder) observer() ObserverFuncs {
	rows := func(kind string) func(Index, int, int) {
		return func(p Index, first, last int) {
			r.events = append(r.events, event{kind: kind, parent: p, first: first, last: last})
		}
	}
	return ObserverFuncs{
		OnRowsAboutToBeInserted: rows("about-insert"),
		OnRowsInserted:          rows("inserted"),
		OnRowsAboutToBeRemoved:  rows("about-remove"),
		OnRowsRemoved:           rows("removed"),
		OnDataChanged: func(tl, _ Index) {
			r.events = append(r.events, event{kind: "data", parent: tl})
		},
		OnLayoutChanged: func() { r.events = append(r.events, event{kind: "layout"}) },
		OnDirtyChanged: func(d bool) {
			r.events = append(r.events, event{kind: "dirty", dirty: d})
		},
	}
}

func (r *recorder) kinds() string {
	var ks []string
	for _, e := range r.events {
		ks = append(ks, e.kind)
	}
	return strings.Join(ks, ",")
}

func newScenario(t *testing.T) (*Model, *testutil.Videos) {
	t.Helper()
	videos := &testutil.Videos{}
	m, err := New(testutil.ScenarioCorpus(),
		WithBaseDir("/data"),
		WithFrameCache(framecache.New(videos.Open, nil)),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, videos
}

// walk visits every valid index of a, both columns, parents first.
func walk(a Addressable, parent Index, fn func(Index)) {
	for r := 0; r < a.RowCount(parent); r++ {
		for c := 0; c < a.ColumnCount(); c++ {
			fn(a.Index(r, c, parent))
		}
		walk(a, a.Index(r, 0, parent), fn)
	}
}

func checkAddressing(t *testing.T, a Addressable) int {
	t.Helper()
	n := 0
	walk(a, Index{}, func(idx Index) {
		n++
		if !idx.IsValid() {
			t.Fatalf("walk produced an invalid index")
		}
		if got := a.Index(idx.Row(), idx.Column(), a.Parent(idx)); got != idx {
			t.Fatalf("round trip of %v gave %v", idx, got)
		}
	})
	return n
}

func TestScenarioCounts(t *testing.T) {
	m, _ := newScenario(t)
	if got := m.RowCount(Index{}); got != 2 {
		t.Fatalf("root rows = %d, want 2", got)
	}
	img := m.Index(0, 0, Index{})
	vid := m.Index(1, 0, Index{})
	if m.Kind(img) != tree.KindImageFile || m.RowCount(img) != 2 {
		t.Errorf("image kind=%s rows=%d", m.Kind(img), m.RowCount(img))
	}
	if m.Kind(vid) != tree.KindVideoFile || m.RowCount(vid) != 5 {
		t.Errorf("video kind=%s rows=%d", m.Kind(vid), m.RowCount(vid))
	}
	for r := 0; r < 5; r++ {
		fr := m.Index(r, 0, vid)
		if m.Kind(fr) != tree.KindFrame || m.RowCount(fr) != 2 {
			t.Errorf("frame %d kind=%s rows=%d", r, m.Kind(fr), m.RowCount(fr))
		}
	}
	if m.ColumnCount() != 2 {
		t.Errorf("columns = %d", m.ColumnCount())
	}
}

func TestRoundTrip(t *testing.T) {
	m, err := New(testutil.DefaultCorpus())
	if err != nil {
		t.Fatal(err)
	}
	if n := checkAddressing(t, m); n == 0 {
		t.Fatal("nothing walked")
	}
}

func TestRoundTrip_AfterMutations(t *testing.T) {
	m, _ := newScenario(t)
	img := m.Index(0, 0, Index{})
	frame := m.Index(2, 0, m.Index(1, 0, Index{}))

	m.AddAnnotation(img, models.NewAnnotation("type", "point", "x", "1", "y", "1"))
	m.RemoveAnnotation(m.Index(0, 0, frame))
	m.AddAnnotation(frame, models.NewAnnotation("type", "rect"))
	m.SetAnnotationFields(m.Index(0, 0, img), models.NewAnnotation("type", "rect", "x", "3", "q", "7"))
	m.RemoveAnnotation(m.Index(1, 0, img))
	if _, err := m.InsertFile(&models.File{Filename: "late.png", Type: models.MediaImage}); err != nil {
		t.Fatal(err)
	}

	checkAddressing(t, m)
	walk(m, Index{}, func(idx Index) {
		if idx.Column() != 0 {
			return
		}
		if got, want := m.RowCount(idx), m.Node(idx).NumChildren(); got != want {
			t.Errorf("%v: RowCount %d, children %d", idx, got, want)
		}
	})
	if m.RowCount(img) != 2 || m.RowCount(frame) != 2 || m.RowCount(Index{}) != 3 {
		t.Errorf("rows img=%d frame=%d root=%d", m.RowCount(img), m.RowCount(frame), m.RowCount(Index{}))
	}
}

func TestIndex_OutOfRange(t *testing.T) {
	m, _ := newScenario(t)
	for _, rc := range [][2]int{{2, 0}, {-1, 0}, {0, 2}, {0, -1}} {
		if idx := m.Index(rc[0], rc[1], Index{}); idx.IsValid() {
			t.Errorf("Index(%d,%d) = %v, want invalid", rc[0], rc[1], idx)
		}
	}
	if m.Parent(Index{}).IsValid() {
		t.Error("parent of invalid must be invalid")
	}
	if m.Parent(m.Index(1, 0, Index{})).IsValid() {
		t.Error("parent of a top-level file must be invalid")
	}
	if idx := (Index{}); idx.Row() != -1 || idx.Column() != -1 {
		t.Errorf("invalid row/column = %d/%d", idx.Row(), idx.Column())
	}
}

func TestHeaderLabel(t *testing.T) {
	m, _ := newScenario(t)
	if m.HeaderLabel(0) != "File/Type/Key" || m.HeaderLabel(1) != "Value" || m.HeaderLabel(2) != "" {
		t.Errorf("headers = %q %q %q", m.HeaderLabel(0), m.HeaderLabel(1), m.HeaderLabel(2))
	}
}

func TestData(t *testing.T) {
	m, _ := newScenario(t)
	kv := Resolve(m, []int{0, 0, 1}, 1)
	if got, _ := m.Data(kv, tree.RoleDisplay); got != "10" {
		t.Errorf("display = %v", got)
	}
	if got, _ := m.Data(Index{}, tree.RoleDisplay); got != nil {
		t.Errorf("invalid index data = %v", got)
	}
	if got := m.FullPath(m.Index(1, 0, Index{})); got != "/data/clips/clip.avi" {
		t.Errorf("FullPath = %q", got)
	}
	m.SetBaseDir("/mnt")
	if got := m.FullPath(m.Index(1, 0, Index{})); got != "/mnt/clips/clip.avi" {
		t.Errorf("FullPath after SetBaseDir = %q", got)
	}
}

func TestMediaIndex(t *testing.T) {
	m, _ := newScenario(t)
	frame := Resolve(m, []int{1, 3}, 0)
	kv := Resolve(m, []int{1, 3, 1, 2}, 1)
	if got := m.MediaIndex(kv); got != frame {
		t.Errorf("MediaIndex(kv) = %v, want %v", got, frame)
	}
	img := m.Index(0, 1, Index{})
	if got := m.MediaIndex(img); got != img {
		t.Errorf("MediaIndex(image) = %v, want itself", got)
	}
	if m.MediaIndex(m.Index(1, 0, Index{})).IsValid() {
		t.Error("a video file has no enclosing media")
	}
	if m.MediaIndex(Index{}).IsValid() {
		t.Error("invalid in, invalid out")
	}
}

func TestFrameImage_UsesCache(t *testing.T) {
	m, videos := newScenario(t)
	for _, r := range []int{0, 1, 4} {
		v, err := m.Data(Resolve(m, []int{1, r}, 0), tree.RoleImage)
		if err != nil {
			t.Fatalf("frame %d: %v", r, err)
		}
		if got := testutil.GrayValue(v.(image.Image)); got != r*10 {
			t.Errorf("frame %d decoded as %d, want %d", r, got, r*10)
		}
	}
	if len(videos.Opened) != 1 || videos.Opened[0] != filepath.Join("/data", "clips/clip.avi") {
		t.Errorf("opened = %v, want one decoder", videos.Opened)
	}
}

func TestFrameImage_DecodeError(t *testing.T) {
	videos := &testutil.Videos{Fail: map[string]bool{filepath.Join("/data", "clips/clip.avi"): true}}
	m, err := New(testutil.ScenarioCorpus(),
		WithBaseDir("/data"),
		WithFrameCache(framecache.New(videos.Open, nil)),
	)
	if err != nil {
		t.Fatal(err)
	}
	v, err := m.Data(Resolve(m, []int{1, 0}, 0), tree.RoleImage)
	if !errors.Is(err, apperr.ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
	if v != nil {
		t.Error("no raster expected on failure")
	}
}

func TestAddAnnotation(t *testing.T) {
	m, _ := newScenario(t)
	rec := &recorder{}
	m.Subscribe(rec.observer())
	frame := Resolve(m, []int{1, 2}, 0)
	backing := m.Node(frame).Frame()

	idx := m.AddAnnotation(frame, models.NewAnnotation("type", "rect", "x", "5"))

	if got := rec.kinds(); got != "about-insert,inserted,dirty,data" {
		t.Fatalf("events = %s", got)
	}
	for _, e := range rec.events[:2] {
		if e.parent != frame || e.first != 2 || e.last != 2 {
			t.Errorf("%s: parent=%v rows=%d..%d", e.kind, e.parent, e.first, e.last)
		}
	}
	if !rec.events[2].dirty || rec.events[3].parent != frame {
		t.Errorf("dirty/data events = %+v %+v", rec.events[2], rec.events[3])
	}
	if len(backing.Annotations) != 3 || m.RowCount(frame) != 3 {
		t.Errorf("backing=%d rows=%d", len(backing.Annotations), m.RowCount(frame))
	}
	if idx != m.Index(2, 0, frame) {
		t.Errorf("returned %v", idx)
	}
	if got, _ := m.Data(idx, tree.RoleType); got != "rect" {
		t.Errorf("type = %v", got)
	}
}

func TestAddAnnotation_RowsGrowDuringNotification(t *testing.T) {
	m, _ := newScenario(t)
	img := m.Index(0, 0, Index{})
	var before, after int
	m.Subscribe(ObserverFuncs{
		OnRowsAboutToBeInserted: func(p Index, _, _ int) { before = m.RowCount(p) },
		OnRowsInserted:          func(p Index, _, _ int) { after = m.RowCount(p) },
	})
	m.AddAnnotation(img, models.NewAnnotation("type", "point"))
	if before != 2 || after != 3 {
		t.Errorf("row counts seen by observer: before=%d after=%d", before, after)
	}
}

func TestAddAnnotation_BadTargetPanics(t *testing.T) {
	m, _ := newScenario(t)
	targets := map[string]Index{
		"invalid":    {},
		"video":      m.Index(1, 0, Index{}),
		"annotation": Resolve(m, []int{0, 0}, 0),
	}
	for name, idx := range targets {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			m.AddAnnotation(idx, models.NewAnnotation("type", "point"))
		})
	}
	if m.Dirty() {
		t.Error("a rejected mutation must not set dirty")
	}
}

func TestRemoveAnnotation(t *testing.T) {
	m, _ := newScenario(t)
	rec := &recorder{}
	m.Subscribe(rec.observer())
	img := m.Index(0, 0, Index{})
	first := m.Index(0, 0, img)
	second := m.Index(1, 0, img)
	keep := m.Node(second).Annotation()

	m.RemoveAnnotation(first)

	if got := rec.kinds(); got != "about-remove,removed,dirty" {
		t.Fatalf("events = %s", got)
	}
	if e := rec.events[0]; e.parent != img || e.first != 0 || e.last != 0 {
		t.Errorf("about-remove = %+v", e)
	}
	files := m.Corpus().Files
	if len(files[0].Annotations) != 1 || files[0].Annotations[0] != keep {
		t.Error("backing list not updated")
	}
	if m.Node(first) != nil {
		t.Error("removed index must resolve to nothing")
	}
	if second.IsValid() && m.Node(second) != nil {
		t.Error("an index whose row shifted must not resolve")
	}
	if got := m.Index(0, 0, img); m.Node(got).Annotation() != keep {
		t.Error("remaining annotation should now be row 0")
	}
}

func TestRemoveAnnotation_BadTargetPanics(t *testing.T) {
	m, _ := newScenario(t)
	for name, idx := range map[string]Index{
		"image": m.Index(0, 0, Index{}),
		"frame": Resolve(m, []int{1, 0}, 0),
		"key":   Resolve(m, []int{0, 0, 0}, 0),
	} {
		t.Run(name, func(t *testing.T) {
			defer func() {
				if recover() == nil {
					t.Error("expected panic")
				}
			}()
			m.RemoveAnnotation(idx)
		})
	}
}

func TestSetAnnotationFields_Reconciles(t *testing.T) {
	corpus := &models.Corpus{Files: []*models.File{{
		Filename:    "a.png",
		Type:        models.MediaImage,
		Annotations: []*models.Annotation{models.NewAnnotation("type", "point", "x", "1", "y", "2")},
	}}}
	m, err := New(corpus)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	m.Subscribe(rec.observer())
	ann := Resolve(m, []int{0, 0}, 0)

	ok := m.SetAnnotationFields(ann, models.NewAnnotation("type", "point", "x", "1", "y", "5", "z", "9"))
	if !ok {
		t.Fatal("SetAnnotationFields reported false")
	}
	if got := childText(m, ann); got != "type=point,x=1,y=5,z=9" {
		t.Errorf("children = %s", got)
	}
	if got := rec.kinds(); got != "about-insert,inserted,data,dirty" {
		t.Errorf("events = %s", got)
	}
	if e := rec.events[0]; e.parent != ann || e.first != 3 {
		t.Errorf("insert event = %+v", e)
	}

	rec.events = nil
	m.SetAnnotationFields(ann, models.NewAnnotation("type", "point", "x", "1", "z", "9"))
	if got := childText(m, ann); got != "type=point,x=1,z=9" {
		t.Errorf("children after drop = %s", got)
	}
	if got := rec.kinds(); got != "about-remove,removed,data" {
		t.Errorf("events = %s", got)
	}
	if e := rec.events[0]; e.first != 2 {
		t.Errorf("removed row = %d, want 2", e.first)
	}
	if got := strings.Join(corpus.Files[0].Annotations[0].Keys(), ","); got != "type,x,z" {
		t.Errorf("backing keys = %s", got)
	}
	checkAddressing(t, m)
}

func TestSetAnnotationValue(t *testing.T) {
	corpus := &models.Corpus{Files: []*models.File{{
		Filename:    "a.png",
		Type:        models.MediaImage,
		Annotations: []*models.Annotation{models.NewAnnotation("type", "point", "x", "1", "y", "2")},
	}}}
	m, err := New(corpus)
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	m.Subscribe(rec.observer())
	ann := Resolve(m, []int{0, 0}, 0)

	if !m.SetAnnotationValue(ann, "x", "7") {
		t.Fatal("SetAnnotationValue reported false")
	}
	if got := childText(m, ann); got != "type=point,x=7,y=2" {
		t.Errorf("children = %s", got)
	}
	if got := rec.kinds(); got != "data,dirty" {
		t.Errorf("events = %s", got)
	}

	rec.events = nil
	m.SetAnnotationValue(ann, "label", "car")
	if got := childText(m, ann); got != "type=point,x=7,y=2,label=car" {
		t.Errorf("children after new key = %s", got)
	}
	if got := rec.kinds(); got != "about-insert,inserted,data" {
		t.Errorf("events = %s", got)
	}
	if got := strings.Join(corpus.Files[0].Annotations[0].Keys(), ","); got != "type,x,y,label" {
		t.Errorf("backing keys = %s", got)
	}

	if m.SetAnnotationValue(ann, "", "v") {
		t.Error("empty key must be rejected")
	}
	if m.SetAnnotationValue(m.Index(0, 0, Index{}), "x", "1") {
		t.Error("file index must be rejected")
	}
	checkAddressing(t, m)
}

func TestSetAnnotationFields_NonAnnotation(t *testing.T) {
	m, _ := newScenario(t)
	if m.SetAnnotationFields(m.Index(0, 0, Index{}), models.NewAnnotation("type", "x")) {
		t.Error("file index must be rejected")
	}
	if m.SetAnnotationFields(Index{}, models.NewAnnotation("type", "x")) {
		t.Error("invalid index must be rejected")
	}
	if m.Dirty() {
		t.Error("rejected edits must not set dirty")
	}
}

func childText(m *Model, parent Index) string {
	var parts []string
	for r := 0; r < m.RowCount(parent); r++ {
		k, _ := m.Data(m.Index(r, 0, parent), tree.RoleDisplay)
		v, _ := m.Data(m.Index(r, 1, parent), tree.RoleDisplay)
		parts = append(parts, fmt.Sprintf("%v=%v", k, v))
	}
	return strings.Join(parts, ",")
}

func TestDirty(t *testing.T) {
	m, _ := newScenario(t)
	var seen []bool
	m.Subscribe(ObserverFuncs{OnDirtyChanged: func(d bool) { seen = append(seen, d) }})
	if m.Dirty() {
		t.Fatal("new model must be clean")
	}
	img := m.Index(0, 0, Index{})
	m.AddAnnotation(img, models.NewAnnotation("type", "point"))
	m.AddAnnotation(img, models.NewAnnotation("type", "point"))
	m.RemoveAnnotation(m.Index(0, 0, img))
	if !m.Dirty() || len(seen) != 1 || !seen[0] {
		t.Fatalf("dirty=%v events=%v", m.Dirty(), seen)
	}
	m.SetDirty(false)
	if m.Dirty() || len(seen) != 2 || seen[1] {
		t.Errorf("after save dirty=%v events=%v", m.Dirty(), seen)
	}
}

func TestInsertFile(t *testing.T) {
	m, _ := newScenario(t)
	rec := &recorder{}
	m.Subscribe(rec.observer())

	idx, err := m.InsertFile(&models.File{Filename: "more/b.jpg", Type: models.MediaImage})
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.kinds(); got != "about-insert,inserted,dirty,data" {
		t.Errorf("events = %s", got)
	}
	if e := rec.events[0]; e.parent.IsValid() || e.first != 2 {
		t.Errorf("insert event = %+v", e)
	}
	if idx != m.Index(2, 0, Index{}) || len(m.Corpus().Files) != 3 {
		t.Errorf("idx=%v files=%d", idx, len(m.Corpus().Files))
	}
	if got, _ := m.Data(idx, tree.RoleDisplay); got != "b.jpg" {
		t.Errorf("label = %v", got)
	}

	rec.events = nil
	if _, err := m.InsertFile(&models.File{Filename: "c.wav", Type: "audio"}); !errors.Is(err, apperr.ErrUnknownMediaType) {
		t.Errorf("err = %v", err)
	}
	if len(rec.events) != 0 || m.RowCount(Index{}) != 3 {
		t.Error("rejected file must not notify or insert")
	}
}

func TestReentrantMutationPanics(t *testing.T) {
	m, _ := newScenario(t)
	img := m.Index(0, 0, Index{})
	m.Subscribe(ObserverFuncs{OnRowsInserted: func(p Index, _, _ int) {
		m.AddAnnotation(p, models.NewAnnotation("type", "echo"))
	}})
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic from nested mutation")
		}
		if m.RowCount(img) != 3 {
			t.Errorf("rows = %d, want only the outer insert", m.RowCount(img))
		}
	}()
	m.AddAnnotation(img, models.NewAnnotation("type", "point"))
}

func TestUnsubscribe(t *testing.T) {
	m, _ := newScenario(t)
	rec := &recorder{}
	cancel := m.Subscribe(rec.observer())
	cancel()
	m.AddAnnotation(m.Index(0, 0, Index{}), models.NewAnnotation("type", "point"))
	if len(rec.events) != 0 {
		t.Errorf("events after unsubscribe: %s", rec.kinds())
	}
}

func TestNew_UnknownMediaType(t *testing.T) {
	_, err := New(&models.Corpus{Files: []*models.File{{Filename: "x", Type: "doc"}}})
	if !errors.Is(err, apperr.ErrUnknownMediaType) {
		t.Errorf("err = %v", err)
	}
}
