// Package session serves one loaded project to the network surfaces. It
// owns the model, serializes every call into it and speaks row paths
// ("0/3/1") instead of indexes.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/starford/annotree/internal/apperr"
	"github.com/starford/annotree/internal/checksum"
	"github.com/starford/annotree/internal/framecache"
	"github.com/starford/annotree/internal/model"
	"github.com/starford/annotree/internal/models"
	"github.com/starford/annotree/internal/parser"
	"github.com/starford/annotree/internal/sse"
	"github.com/starford/annotree/internal/storage"
	"github.com/starford/annotree/internal/tree"
)

// Publisher receives change events.
type Publisher interface {
	PublishChange(event sse.Event)
}

// Node describes one row of the tree.
type Node struct {
	Path  string `json:"path"`
	Row   int    `json:"row"`
	Kind  string `json:"kind"`
	Label string `json:"label"`
	Value string `json:"value,omitempty"`
	Type  string `json:"type,omitempty"`
	Rows  int    `json:"rows"`
	Media bool   `json:"media"`
}

// Status summarizes the session.
type Status struct {
	File     string    `json:"file"`
	BaseDir  string    `json:"base_dir"`
	Files    int       `json:"files"`
	Dirty    bool      `json:"dirty"`
	Sorted   bool      `json:"sorted"`
	Checksum string    `json:"checksum"`
	LoadedAt time.Time `json:"loaded_at"`
	Closed   bool      `json:"closed,omitempty"`
}

// SyncResult reports what Sync found on disk.
type SyncResult struct {
	Changed  bool `json:"changed"`
	Reloaded bool `json:"reloaded"`
}

// Session is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	store  storage.Provider
	file   string
	logger *slog.Logger
	pub    Publisher
	sf     model.SortFilter
	sorted bool
	opener framecache.Opener

	model    *model.Model
	proxy    *model.Proxy
	view     model.Addressable
	cancel   func()
	checksum string
	loadedAt time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithView shows the tree through a sorted/filtered proxy.
func WithView(sf model.SortFilter) Option {
	return func(s *Session) {
		s.sf = sf
		s.sorted = true
	}
}

// WithPublisher forwards model changes to p.
func WithPublisher(p Publisher) Option {
	return func(s *Session) { s.pub = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithFrameOpener sets how video decoders are opened.
func WithFrameOpener(open framecache.Opener) Option {
	return func(s *Session) { s.opener = open }
}

// Open loads file from store. Media file names resolve against the store
// root.
func Open(store storage.Provider, file string, opts ...Option) (*Session, error) {
	s := &Session{store: store, file: file}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) read() ([]byte, error) {
	data, err := s.store.Read(s.file)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("session: project %s: %w", s.file, apperr.ErrNotFound)
		}
		return nil, err
	}
	return data, nil
}

// load replaces the model with a fresh one read from disk. Callers hold mu
// or own s exclusively.
func (s *Session) load() error {
	data, err := s.read()
	if err != nil {
		return err
	}
	corpus, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", s.file, err)
	}
	baseDir := s.store.Root()
	if s.model != nil {
		baseDir = s.model.BaseDir()
	}
	m, err := model.New(corpus,
		model.WithBaseDir(baseDir),
		model.WithFrameCache(framecache.New(s.opener, s.logger)),
		model.WithLogger(s.logger),
	)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", s.file, err)
	}

	s.release()
	s.model = m
	s.view = m
	if s.sorted {
		s.proxy = model.NewProxy(m, s.sf)
		s.view = s.proxy
	}
	s.cancel = s.view.Subscribe(s.observer())
	s.checksum = checksum.Sum(data)
	s.loadedAt = time.Now()

	s.logger.Info("session: project loaded",
		slog.String("file", s.file),
		slog.Int("files", len(corpus.Files)),
		slog.String("checksum", s.checksum))
	return nil
}

func (s *Session) release() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.proxy != nil {
		s.proxy.Close()
		s.proxy = nil
	}
	if s.model != nil {
		if err := s.model.Close(); err != nil {
			s.logger.Warn("session: release frame cache", slog.String("error", err.Error()))
		}
	}
}

// Close releases the model. Later calls fail with apperr.ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.release()
	s.cancel = nil
	s.model = nil
	s.view = nil
}

func (s *Session) closed() error {
	if s.model == nil {
		return fmt.Errorf("session: %s: %w", s.file, apperr.ErrClosed)
	}
	return nil
}

func (s *Session) publish(typ string, data any) {
	if s.pub != nil {
		s.pub.PublishChange(sse.Event{Type: typ, Data: data})
	}
}

// observer publishes completed changes. It runs inside model calls, with
// mu held.
func (s *Session) observer() model.Observer {
	rows := func(typ string) func(model.Index, int, int) {
		return func(parent model.Index, first, last int) {
			s.publish(typ, map[string]any{
				"parent": s.pathOf(parent),
				"first":  first,
				"last":   last,
			})
		}
	}
	return model.ObserverFuncs{
		OnRowsInserted: rows(sse.RowsInserted),
		OnRowsRemoved:  rows(sse.RowsRemoved),
		OnDataChanged: func(tl, br model.Index) {
			s.publish(sse.DataChanged, map[string]any{
				"path":    s.pathOf(tl),
				"columns": []int{tl.Column(), br.Column()},
			})
		},
		OnLayoutChanged: func() { s.publish(sse.LayoutChanged, map[string]any{}) },
		OnDirtyChanged: func(dirty bool) {
			s.publish(sse.DirtyChanged, map[string]bool{"dirty": dirty})
		},
	}
}

func (s *Session) pathOf(idx model.Index) string {
	return model.FormatPath(model.PathOf(s.view, idx))
}

// resolve maps a row path to an index. The empty path is the root and
// resolves to the invalid index with a nil error.
func (s *Session) resolve(path string, column int) (model.Index, error) {
	if err := s.closed(); err != nil {
		return model.Index{}, err
	}
	rows, err := model.ParsePath(path)
	if err != nil {
		return model.Index{}, err
	}
	if len(rows) == 0 {
		return model.Index{}, nil
	}
	idx := model.Resolve(s.view, rows, column)
	if !idx.IsValid() {
		return model.Index{}, fmt.Errorf("session: path %q: %w", path, apperr.ErrNotFound)
	}
	return idx, nil
}

func (s *Session) describe(idx model.Index) Node {
	v := s.view
	kind := v.Kind(idx)
	n := Node{
		Path:  s.pathOf(idx),
		Row:   idx.Row(),
		Kind:  kind.String(),
		Rows:  v.RowCount(idx),
		Media: kind.IsMedia(),
	}
	if !idx.IsValid() {
		return n
	}
	n.Label = displayString(v, v.Sibling(idx, idx.Row(), tree.ColumnLabel))
	n.Value = displayString(v, v.Sibling(idx, idx.Row(), tree.ColumnValue))
	if t, _ := v.Data(idx, tree.RoleType); t != nil {
		n.Type, _ = t.(string)
	}
	return n
}

func displayString(v model.Addressable, idx model.Index) string {
	d, _ := v.Data(idx, tree.RoleDisplay)
	str, _ := d.(string)
	return str
}

// Header returns the column titles, nil once the session is closed.
func (s *Session) Header(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() != nil {
		return nil
	}
	labels := make([]string, s.view.ColumnCount())
	for c := range labels {
		labels[c] = s.view.HeaderLabel(c)
	}
	return labels
}

// Node describes the row at path.
func (s *Session) Node(_ context.Context, path string) (*Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.resolve(path, 0)
	if err != nil {
		return nil, err
	}
	n := s.describe(idx)
	return &n, nil
}

// Children describes the rows under path.
func (s *Session) Children(_ context.Context, path string) ([]Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, err := s.resolve(path, 0)
	if err != nil {
		return nil, err
	}
	out := make([]Node, s.view.RowCount(parent))
	for r := range out {
		out[r] = s.describe(s.view.Index(r, 0, parent))
	}
	return out, nil
}

// Data returns the JSON encoding of the row's backing record. The record
// is encoded under the lock, so callers never see live structures. The
// empty path yields the visible file records in view order.
func (s *Session) Data(_ context.Context, path string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.resolve(path, 0)
	if err != nil {
		return nil, err
	}
	var v any
	if idx.IsValid() {
		v, _ = s.view.Data(idx, tree.RoleData)
	} else {
		files := make([]any, s.view.RowCount(idx))
		for r := range files {
			files[r], _ = s.view.Data(s.view.Index(r, 0, idx), tree.RoleData)
		}
		v = files
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("session: encode %q: %w", path, err)
	}
	return raw, nil
}

// Image decodes the raster of the image file or frame at path.
func (s *Session) Image(_ context.Context, path string) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.resolve(path, 0)
	if err != nil {
		return nil, err
	}
	if !s.view.Kind(idx).IsMedia() {
		return nil, fmt.Errorf("session: image %q: %w", path, apperr.ErrNotMedia)
	}
	v, err := s.view.Data(idx, tree.RoleImage)
	if err != nil {
		return nil, fmt.Errorf("session: image %q: %w", path, err)
	}
	img, ok := v.(image.Image)
	if !ok {
		return nil, fmt.Errorf("session: image %q: no raster: %w", path, apperr.ErrDecode)
	}
	return img, nil
}

// Media returns the path of the nearest image file or frame at or above
// path.
func (s *Session) Media(_ context.Context, path string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.media(path)
	if err != nil {
		return "", err
	}
	return s.pathOf(idx), nil
}

func (s *Session) media(path string) (model.Index, error) {
	idx, err := s.resolve(path, 0)
	if err != nil {
		return model.Index{}, err
	}
	mi := s.view.MediaIndex(idx)
	if !mi.IsValid() {
		return model.Index{}, fmt.Errorf("session: %q has no enclosing media: %w", path, apperr.ErrNotMedia)
	}
	return mi, nil
}

// Next returns the media row after the one enclosing path, or that same
// row at the end.
func (s *Session) Next(_ context.Context, path string) (string, error) {
	return s.step(path, model.Addressable.NextMedia)
}

// Previous returns the media row before the one enclosing path, or that
// same row at the start.
func (s *Session) Previous(_ context.Context, path string) (string, error) {
	return s.step(path, model.Addressable.PreviousMedia)
}

func (s *Session) step(path string, move func(model.Addressable, model.Index) model.Index) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mi, err := s.media(path)
	if err != nil {
		return "", err
	}
	return s.pathOf(move(s.view, mi)), nil
}

// AddAnnotation appends a copy of fields under the image file or frame at
// path and returns the new row's path.
func (s *Session) AddAnnotation(_ context.Context, path string, fields *models.Annotation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.resolve(path, 0)
	if err != nil {
		return "", err
	}
	if !s.view.Kind(idx).IsMedia() {
		return "", fmt.Errorf("session: add annotation under %q: %w", path, apperr.ErrNotMedia)
	}
	return s.pathOf(s.view.AddAnnotation(idx, fields.Clone())), nil
}

// UpdateAnnotation replaces the fields of the annotation at path.
func (s *Session) UpdateAnnotation(_ context.Context, path string, fields *models.Annotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.annotation(path)
	if err != nil {
		return err
	}
	s.view.SetAnnotationFields(idx, fields.Clone())
	return nil
}

// SetAnnotationValue sets one key of the annotation at path, appending the
// key when it is new.
func (s *Session) SetAnnotationValue(_ context.Context, path, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.annotation(path)
	if err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("session: set value on %q: empty key", path)
	}
	s.view.SetAnnotationValue(idx, key, value)
	return nil
}

// RemoveAnnotation deletes the annotation at path.
func (s *Session) RemoveAnnotation(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, err := s.annotation(path)
	if err != nil {
		return err
	}
	if !s.view.Kind(s.view.Parent(idx)).IsMedia() {
		return fmt.Errorf("session: remove %q: %w", path, apperr.ErrNotAnnotation)
	}
	s.view.RemoveAnnotation(idx)
	return nil
}

func (s *Session) annotation(path string) (model.Index, error) {
	idx, err := s.resolve(path, 0)
	if err != nil {
		return model.Index{}, err
	}
	if s.view.Kind(idx) != tree.KindAnnotation {
		return model.Index{}, fmt.Errorf("session: %q: %w", path, apperr.ErrNotAnnotation)
	}
	return idx, nil
}

// InsertFile appends a media file record and returns its path, which is
// empty when the view's filter hides it.
func (s *Session) InsertFile(_ context.Context, filename string, typ models.MediaType) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closed(); err != nil {
		return "", err
	}
	if _, err := s.store.Abs(filename); err != nil {
		return "", fmt.Errorf("session: insert %s: %w", filename, err)
	}
	if _, err := s.store.Stat(filename); err != nil {
		s.logger.Warn("session: inserted file is not readable",
			slog.String("filename", filename), slog.String("error", err.Error()))
	}
	idx, err := s.view.InsertFile(&models.File{Filename: filename, Type: typ})
	if err != nil {
		return "", fmt.Errorf("session: insert %s: %w", filename, err)
	}
	if !idx.IsValid() {
		return "", nil
	}
	return s.pathOf(idx), nil
}

// SetBaseDir changes the directory media file names resolve against.
func (s *Session) SetBaseDir(_ context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("session: base dir %s: %w", dir, apperr.ErrNotFound)
	}
	if !info.IsDir() {
		return fmt.Errorf("session: base dir %s is not a directory: %w", dir, apperr.ErrNotFound)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closed(); err != nil {
		return err
	}
	s.model.SetBaseDir(dir)
	return nil
}

// Status summarizes the session.
func (s *Session) Status(_ context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed() != nil {
		return Status{File: s.file, Closed: true}
	}
	return Status{
		File:     s.file,
		BaseDir:  s.view.BaseDir(),
		Files:    len(s.model.Corpus().Files),
		Dirty:    s.view.Dirty(),
		Sorted:   s.sorted,
		Checksum: s.checksum,
		LoadedAt: s.loadedAt,
	}
}

// Export renders the current corpus, edits included, as YAML.
func (s *Session) Export(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closed(); err != nil {
		return nil, err
	}
	return parser.Encode(s.model.Corpus())
}

// Sync compares the project file on disk with the loaded one. A changed
// file is reloaded when the session holds no edits; otherwise the change
// is only announced.
func (s *Session) Sync(_ context.Context) (SyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.closed(); err != nil {
		return SyncResult{}, err
	}
	data, err := s.read()
	if err != nil {
		return SyncResult{}, err
	}
	sum := checksum.Sum(data)
	if sum == s.checksum {
		return SyncResult{}, nil
	}
	res := SyncResult{Changed: true}
	if !s.model.Dirty() {
		if err := s.load(); err != nil {
			return res, err
		}
		res.Reloaded = true
		s.publish(sse.LayoutChanged, map[string]any{})
	}
	s.logger.Info("session: project changed on disk",
		slog.String("file", s.file), slog.String("checksum", checksum.Short(sum)),
		slog.Bool("reloaded", res.Reloaded))
	s.publish(sse.ProjectChanged, res)
	return res, nil
}
