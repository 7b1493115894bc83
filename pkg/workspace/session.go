// Package workspace hosts the single open mission document: it reads and
// writes .swt files, applies edit batches and records what was saved.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/rexliu/swtedit/pkg/core"
	"github.com/rexliu/swtedit/pkg/storage/sqlite"
	"github.com/rexliu/swtedit/pkg/swt"
	"github.com/rexliu/swtedit/pkg/vcs/git"
)

var (
	// ErrNoDocument is returned when no document is open.
	ErrNoDocument = errors.New("no document open")
	// ErrNoPath is returned by Save for a document that was loaded from
	// text and never given a file path.
	ErrNoPath = errors.New("document has no file path")
	// ErrStorage marks failures recording revisions or edits.
	ErrStorage = errors.New("storage")
	// ErrVCS marks failures committing a saved file.
	ErrVCS = errors.New("vcs")
)

// RevisionStore records saved revisions and applied edits.
// *sqlite.Store implements it.
type RevisionStore interface {
	RecordRevision(ctx context.Context, rev sqlite.Revision) (sqlite.Revision, error)
	ListRevisions(ctx context.Context, path string, limit int) ([]sqlite.Revision, error)
	LoadRevision(ctx context.Context, id string) (sqlite.Revision, error)
	RecordEdits(ctx context.Context, path string, ops []core.Op) error
}

// Committer commits saved files. *git.FilesystemRepo implements it.
type Committer interface {
	Commit(ctx context.Context, message string, files ...string) (git.Status, error)
	Contains(path string) bool
}

// Options configures a Session. Store and Repo are optional.
type Options struct {
	IDs     core.IDGenerator
	Scan    swt.ScanMode
	Encoder *swt.Encoder
	Store   RevisionStore
	Repo    Committer
	Logger  zerolog.Logger
}

// State is a snapshot of the session.
type State struct {
	Path     string       `json:"path,omitempty"`
	Document core.Mission `json:"document"`
	Dirty    bool         `json:"dirty"`
	Warnings []string     `json:"warnings,omitempty"`
}

// OpenResult is returned by Open.
type OpenResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// SaveResult describes a completed save.
type SaveResult struct {
	Path     string      `json:"path"`
	Bytes    int         `json:"bytes"`
	Revision string      `json:"revision,omitempty"`
	Commit   *git.Status `json:"commit,omitempty"`
}

// Session owns one open document. It is safe for concurrent use; each
// change replaces the document as a whole.
type Session struct {
	opts Options

	mu       sync.RWMutex
	path     string
	doc      *core.Mission
	dirty    bool
	warnings []string
	// gen counts document replacements.
	gen uint64
	// loads counts documents installed from a file or text. Only an
	// install may change path.
	loads uint64
}

// New returns an empty session.
func New(opts Options) *Session {
	if opts.IDs == nil {
		opts.IDs = core.NewULIDGenerator(core.DefaultIDPrefix)
	}
	if opts.Encoder == nil {
		opts.Encoder = swt.NewEncoder()
	}
	return &Session{opts: opts}
}

// Open reads and decodes the file at path and makes it the current
// document. On failure the current document is kept.
func (s *Session) Open(ctx context.Context, path string) (OpenResult, error) {
	_ = ctx
	abs, err := filepath.Abs(path)
	if err != nil {
		return OpenResult{}, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return OpenResult{}, fmt.Errorf("read %s: %w", abs, err)
	}
	if err := s.load(abs, string(data)); err != nil {
		return OpenResult{}, err
	}
	s.opts.Logger.Info().Str("path", abs).Int("bytes", len(data)).Msg("opened")
	return OpenResult{Path: abs, Content: string(data)}, nil
}

// Load decodes content supplied by a client. path may be empty, in which
// case the document must be saved with SaveAs.
func (s *Session) Load(path, content string) error {
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		path = abs
	}
	return s.load(path, content)
}

func (s *Session) load(path, content string) error {
	m, warnings, err := s.decode(path, content)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.install(path, m, warnings, false)
	return nil
}

func (s *Session) decode(path, content string) (core.Mission, []string, error) {
	dec := &swt.Decoder{IDs: s.opts.IDs, Scan: s.opts.Scan}
	m, err := dec.Decode(strings.NewReader(content))
	if err != nil {
		return core.Mission{}, nil, err
	}
	warnings := make([]string, 0, len(dec.Warnings))
	for _, w := range dec.Warnings {
		warnings = append(warnings, w.Error())
		s.opts.Logger.Warn().Str("path", path).Err(w).Msg("decode warning")
	}
	return m, warnings, nil
}

// install replaces the document. The caller holds mu.
func (s *Session) install(path string, m core.Mission, warnings []string, dirty bool) {
	s.path = path
	s.doc = &m
	s.dirty = dirty
	s.warnings = warnings
	s.gen++
	s.loads++
}

// Snapshot returns the current state, and false when no document is open.
func (s *Session) Snapshot() (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc == nil {
		return State{}, false
	}
	return State{Path: s.path, Document: *s.doc, Dirty: s.dirty, Warnings: s.warnings}, true
}

// MarkDirty flags the current document as having unsaved changes.
func (s *Session) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc != nil {
		s.dirty = true
	}
}

// Encode returns the XML of the current document.
func (s *Session) Encode() (string, error) {
	st, ok := s.Snapshot()
	if !ok {
		return "", ErrNoDocument
	}
	return s.opts.Encoder.EncodeString(st.Document)
}

// Apply validates and applies ops to the current document and returns the
// new document. A rejected batch leaves the document unchanged.
func (s *Session) Apply(ctx context.Context, ops []core.Op) (core.Mission, error) {
	s.mu.Lock()
	if s.doc == nil {
		s.mu.Unlock()
		return core.Mission{}, ErrNoDocument
	}
	next, err := core.Apply(*s.doc, ops, s.opts.IDs)
	if err != nil {
		s.mu.Unlock()
		return core.Mission{}, err
	}
	s.doc = &next
	s.dirty = true
	s.gen++
	path := s.path
	s.mu.Unlock()

	if s.opts.Store != nil && path != "" {
		if err := s.opts.Store.RecordEdits(ctx, path, ops); err != nil {
			s.opts.Logger.Warn().Err(err).Str("path", path).Msg("journal edits")
		}
	}
	return next, nil
}

// Save writes the current document back to its file.
func (s *Session) Save(ctx context.Context) (SaveResult, error) {
	return s.saveTo(ctx, "")
}

// SaveAs writes the current document to path, which becomes the current
// path.
func (s *Session) SaveAs(ctx context.Context, path string) (SaveResult, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return SaveResult{}, err
	}
	return s.saveTo(ctx, abs)
}

// saveTo writes the document to path, or to the current path when path is
// empty. The document and its path are read together.
func (s *Session) saveTo(ctx context.Context, path string) (SaveResult, error) {
	s.mu.RLock()
	if s.doc == nil {
		s.mu.RUnlock()
		return SaveResult{}, ErrNoDocument
	}
	if path == "" {
		path = s.path
	}
	doc, gen, loads := *s.doc, s.gen, s.loads
	s.mu.RUnlock()
	if path == "" {
		return SaveResult{}, ErrNoPath
	}

	content, err := s.opts.Encoder.EncodeString(doc)
	if err != nil {
		return SaveResult{}, err
	}
	if err := writeFileAtomic(path, []byte(content)); err != nil {
		return SaveResult{}, fmt.Errorf("write %s: %w", path, err)
	}

	s.mu.Lock()
	// A document opened meanwhile keeps its own path, and a concurrent
	// Apply keeps the document dirty.
	if s.loads == loads {
		s.path = path
	}
	if s.gen == gen {
		s.dirty = false
	}
	s.mu.Unlock()

	res := SaveResult{Path: path, Bytes: len(content)}
	log := s.opts.Logger.With().Str("path", path).Logger()
	log.Info().Int("bytes", len(content)).Msg("saved")

	if s.opts.Store != nil {
		rev, err := s.opts.Store.RecordRevision(ctx, sqlite.Revision{
			Path:       path,
			Version:    doc.Metadata.Version,
			EventCount: core.Count(doc),
			Content:    content,
		})
		if err != nil {
			return res, fmt.Errorf("%w: record revision: %w", ErrStorage, err)
		}
		res.Revision = rev.ID
	}
	if s.opts.Repo != nil && s.opts.Repo.Contains(path) {
		status, err := s.opts.Repo.Commit(ctx, "Save "+filepath.Base(path), path)
		if err != nil {
			return res, fmt.Errorf("%w: commit: %w", ErrVCS, err)
		}
		res.Commit = &status
		if status.Committed {
			log.Info().Str("hash", status.Hash).Msg("committed")
		}
	}
	return res, nil
}

// History lists the saved revisions of the current file, newest first.
func (s *Session) History(ctx context.Context, limit int) ([]sqlite.Revision, error) {
	st, ok := s.Snapshot()
	if !ok {
		return nil, ErrNoDocument
	}
	if s.opts.Store == nil || st.Path == "" {
		return []sqlite.Revision{}, nil
	}
	revs, err := s.opts.Store.ListRevisions(ctx, st.Path, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return revs, nil
}

// Restore replaces the current document with a saved revision. The
// document keeps the current path and is marked dirty; it is not written
// until the next save. With no document open the revision's path is used.
func (s *Session) Restore(ctx context.Context, id string) (core.Mission, error) {
	if s.opts.Store == nil {
		return core.Mission{}, fmt.Errorf("%w: no revision store", ErrStorage)
	}
	rev, err := s.opts.Store.LoadRevision(ctx, id)
	if err != nil {
		return core.Mission{}, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	m, warnings, err := s.decode(rev.Path, rev.Content)
	if err != nil {
		return core.Mission{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.path
	if s.doc == nil || path == "" {
		path = rev.Path
	}
	s.install(path, m, warnings, true)
	return m, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
