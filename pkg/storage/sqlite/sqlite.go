package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rexliu/swtedit/pkg/core"
)

// ErrRevisionNotFound is returned by LoadRevision for an unknown id.
var ErrRevisionNotFound = errors.New("revision not found")

// Store owns the SQLite database for a profile. It keeps the saved
// revisions of every mission file and a journal of applied edits.
type Store struct {
	db   *sql.DB
	path string
	ids  core.IDGenerator
}

// Options tunes the connection pragmas. Empty fields keep the defaults.
type Options struct {
	JournalMode string
	Synchronous string
}

// Revision is one saved version of a mission file.
type Revision struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	Version    *string   `json:"version,omitempty"`
	EventCount int       `json:"eventCount"`
	Content    string    `json:"content,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Edit is one journaled edit operation.
type Edit struct {
	Seq       int64           `json:"seq"`
	Path      string          `json:"path"`
	Type      string          `json:"type"`
	EventID   string          `json:"eventId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Open initializes a SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path, ids: core.NewULIDGenerator("rev_")}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init ensures pragmas and schema are configured.
func (s *Store) Init(ctx context.Context, opts Options) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	journal, sync := opts.JournalMode, opts.Synchronous
	if journal == "" {
		journal = "DELETE"
	}
	if sync == "" {
		sync = "FULL"
	}
	pragmas := []string{
		"PRAGMA journal_mode = " + journal + ";",
		"PRAGMA synchronous = " + sync + ";",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return s.applySchema(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS revisions (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			version TEXT,
			event_count INTEGER NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_revisions_path_created ON revisions(path, created_at);`,
		`CREATE TABLE IF NOT EXISTS edits (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL,
			type TEXT NOT NULL CHECK (type IN ('add','update','move','delete')),
			event_id TEXT,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_path ON edits(path, seq);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// SchemaVersion reads the schema version recorded in meta.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'schemaVersion'`).Scan(&v)
	return v, err
}

// RecordRevision stores the encoded content of a saved file. ID and
// CreatedAt are filled in when empty.
func (s *Store) RecordRevision(ctx context.Context, rev Revision) (Revision, error) {
	if rev.ID == "" {
		rev.ID = s.ids.NewID()
	}
	if rev.CreatedAt.IsZero() {
		rev.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO revisions(id, path, version, event_count, content, created_at) VALUES(?,?,?,?,?,?)`,
		rev.ID, rev.Path, rev.Version, rev.EventCount, rev.Content, rev.CreatedAt.UnixMilli())
	if err != nil {
		return Revision{}, err
	}
	return rev, nil
}

// ListRevisions returns the revisions of path, newest first, without their
// content. limit <= 0 returns all of them.
func (s *Store) ListRevisions(ctx context.Context, path string, limit int) ([]Revision, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, version, event_count, created_at
		FROM revisions
		WHERE path = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?;
	`, path, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Revision
	for rows.Next() {
		var (
			rev     Revision
			created int64
		)
		if err := rows.Scan(&rev.ID, &rev.Path, &rev.Version, &rev.EventCount, &created); err != nil {
			return nil, err
		}
		rev.CreatedAt = time.UnixMilli(created)
		out = append(out, rev)
	}
	return out, rows.Err()
}

// LoadRevision returns a revision including its content.
func (s *Store) LoadRevision(ctx context.Context, id string) (Revision, error) {
	var (
		rev     Revision
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, version, event_count, content, created_at
		FROM revisions WHERE id = ?;
	`, id).Scan(&rev.ID, &rev.Path, &rev.Version, &rev.EventCount, &rev.Content, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, ErrRevisionNotFound
	}
	if err != nil {
		return Revision{}, err
	}
	rev.CreatedAt = time.UnixMilli(created)
	return rev, nil
}

// RecordEdits journals a batch of applied ops atomically.
func (s *Store) RecordEdits(ctx context.Context, path string, ops []core.Op) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, op := range ops {
		var typ, eventID string
		switch v := op.(type) {
		case core.AddEventOp:
			typ, eventID = "add", v.ParentID
		case core.UpdateEventOp:
			typ, eventID = "update", v.EventID
		case core.MoveEventOp:
			typ, eventID = "move", v.EventID
		case core.DeleteEventOp:
			typ, eventID = "delete", v.EventID
		default:
			tx.Rollback()
			return fmt.Errorf("unsupported op %T", op)
		}
		payload, err := json.Marshal(op)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO edits(path, type, event_id, payload, created_at) VALUES(?,?,?,?,?)`,
			path, typ, nullable(eventID), string(payload), now); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ListEdits returns the journaled edits of path in the order they were
// applied.
func (s *Store) ListEdits(ctx context.Context, path string) ([]Edit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, path, type, event_id, payload, created_at
		FROM edits WHERE path = ? ORDER BY seq;
	`, path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Edit
	for rows.Next() {
		var (
			e       Edit
			eventID *string
			payload string
			created int64
		)
		if err := rows.Scan(&e.Seq, &e.Path, &e.Type, &eventID, &payload, &created); err != nil {
			return nil, err
		}
		if eventID != nil {
			e.EventID = *eventID
		}
		e.Payload = json.RawMessage(payload)
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
