package logging

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rexliu/swtedit/pkg/config"
)

// New returns a console logger on stderr tagged with component.
func New(component string) zerolog.Logger {
	return newLogger(console(os.Stderr), component)
}

// Configure applies logging settings from config and returns the logger to
// use from then on. A configured file receives JSON lines next to the
// console output.
func Configure(l zerolog.Logger, component string, cfg config.LoggingConfig) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		parsed, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return l, nopCloser{}, err
		}
		level = parsed
	}
	if cfg.FilePath == "" {
		return l.Level(level), nopCloser{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o700); err != nil {
		return l, nopCloser{}, err
	}
	file, err := newRollingFile(cfg.FilePath, cfg.FileMaxSize)
	if err != nil {
		return l, nopCloser{}, err
	}
	out := zerolog.MultiLevelWriter(console(os.Stderr), file)
	return newLogger(out, component).Level(level), file, nil
}

func console(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
}

func newLogger(w io.Writer, component string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Str("component", component).Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// rollingFile keeps one backup: when a write would push the file past max
// megabytes it is renamed to path.1 and a new file is started.
type rollingFile struct {
	mu   sync.Mutex
	path string
	max  int
	file *os.File
}

func newRollingFile(path string, maxMB int) (*rollingFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, err
	}
	return &rollingFile{path: path, max: maxMB, file: f}, nil
}

func (r *rollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.max > 0 {
		if info, err := r.file.Stat(); err == nil && info.Size()+int64(len(p)) > int64(r.max)*1024*1024 {
			r.file.Close()
			os.Rename(r.path, r.path+".1")
			newFile, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
			if err != nil {
				return 0, err
			}
			r.file = newFile
		}
	}
	return r.file.Write(p)
}

func (r *rollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.file.Close()
}
