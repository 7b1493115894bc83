package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the profile configuration file.
const FileName = "config.toml"

// EditorConfig controls how documents are decoded and encoded.
type EditorConfig struct {
	// IDStrategy is one of "ulid", "uuid" or "counter".
	IDStrategy string `toml:"idStrategy"`
	IDPrefix   string `toml:"idPrefix"`
	// ScanMode is "outermost" or "all".
	ScanMode  string `toml:"scanMode"`
	Indent    string `toml:"indent"`
	XMLHeader bool   `toml:"xmlHeader"`
}

// IPCConfig defines socket settings.
type IPCConfig struct {
	SocketPath string `toml:"socketPath"`
}

// StorageConfig defines SQLite tuning options.
type StorageConfig struct {
	Enabled     bool   `toml:"enabled"`
	DBPath      string `toml:"dbPath"`
	JournalMode string `toml:"journalMode"`
	Synchronous string `toml:"synchronous"`
}

// VCSRemote config.
type VCSRemote struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// VCSConfig defines Git options. Path is the worktree saved files are
// committed to.
type VCSConfig struct {
	Enabled     bool      `toml:"enabled"`
	Path        string    `toml:"path"`
	Branch      string    `toml:"branch"`
	AutoCommit  bool      `toml:"autoCommit"`
	AuthorName  string    `toml:"authorName"`
	AuthorEmail string    `toml:"authorEmail"`
	Remote      VCSRemote `toml:"remote"`
}

// LoggingConfig defines basic logging knobs.
type LoggingConfig struct {
	Level       string `toml:"level"`
	FilePath    string `toml:"filePath"`
	FileMaxSize int    `toml:"fileMaxSizeMB"`
}

// ProfileConfig aggregates service configuration for a profile.
type ProfileConfig struct {
	ProfileName string        `toml:"profileName"`
	Editor      EditorConfig  `toml:"editor"`
	Storage     StorageConfig `toml:"storage"`
	VCS         VCSConfig     `toml:"vcs"`
	IPC         IPCConfig     `toml:"ipc"`
	Logging     LoggingConfig `toml:"logging"`
}

// DefaultProfile returns the configuration written by "swt init".
func DefaultProfile(name string) *ProfileConfig {
	return &ProfileConfig{
		ProfileName: name,
		Editor: EditorConfig{
			IDStrategy: "ulid",
			IDPrefix:   "evt_",
			ScanMode:   "outermost",
			Indent:     "  ",
		},
		Storage: StorageConfig{
			Enabled:     true,
			DBPath:      "state.db",
			JournalMode: "WAL",
			Synchronous: "NORMAL",
		},
		VCS: VCSConfig{
			Branch:      "main",
			AuthorName:  "swtd",
			AuthorEmail: "swtd@localhost",
			Remote:      VCSRemote{Name: "origin"},
		},
		IPC: IPCConfig{SocketPath: "ipc.sock"},
		Logging: LoggingConfig{
			Level:       "info",
			FilePath:    "logs/swtd.log",
			FileMaxSize: 10,
		},
	}
}

// Load reads config.toml from the provided path.
func Load(path string) (*ProfileConfig, error) {
	var cfg ProfileConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProfile reads the config.toml of a profile directory.
func LoadProfile(dir string) (*ProfileConfig, error) {
	return Load(filepath.Join(dir, FileName))
}

// Save writes cfg as TOML, creating the parent directory.
func Save(path string, cfg *ProfileConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o600)
}

// ResolvePath makes p absolute relative to the profile directory. Empty
// stays empty.
func ResolvePath(profileDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(profileDir, p)
}

func (cfg *ProfileConfig) validate() error {
	if cfg.ProfileName == "" {
		return fmt.Errorf("profileName required")
	}
	if cfg.Storage.Enabled && cfg.Storage.DBPath == "" {
		return fmt.Errorf("storage.dbPath required")
	}
	if cfg.IPC.SocketPath == "" {
		return fmt.Errorf("ipc.socketPath required")
	}
	if cfg.VCS.Enabled && cfg.VCS.Path == "" {
		return fmt.Errorf("vcs.path required when vcs is enabled")
	}
	switch cfg.Editor.IDStrategy {
	case "":
		cfg.Editor.IDStrategy = "ulid"
	case "ulid", "uuid", "counter":
	default:
		return fmt.Errorf("editor.idStrategy %q not supported", cfg.Editor.IDStrategy)
	}
	switch cfg.Editor.ScanMode {
	case "":
		cfg.Editor.ScanMode = "outermost"
	case "outermost", "all":
	default:
		return fmt.Errorf("editor.scanMode %q not supported", cfg.Editor.ScanMode)
	}
	if cfg.Editor.Indent == "" {
		cfg.Editor.Indent = "  "
	}
	if cfg.VCS.Branch == "" {
		cfg.VCS.Branch = "main"
	}
	if cfg.VCS.Remote.Name == "" {
		cfg.VCS.Remote.Name = "origin"
	}
	return nil
}
