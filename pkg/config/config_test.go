package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadProfile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultProfile("work")
	cfg.VCS.Enabled = true
	cfg.VCS.Path = "missions"

	require.NoError(t, Save(filepath.Join(dir, FileName), cfg))

	loaded, err := LoadProfile(dir)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestLoadFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(`
profileName = "p"

[storage]
enabled = true
dbPath = "state.db"

[ipc]
socketPath = "/tmp/swt.sock"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "ulid", cfg.Editor.IDStrategy)
	assert.Equal(t, "outermost", cfg.Editor.ScanMode)
	assert.Equal(t, "  ", cfg.Editor.Indent)
	assert.Equal(t, "main", cfg.VCS.Branch)
	assert.Equal(t, "origin", cfg.VCS.Remote.Name)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing profile", `[ipc]
socketPath = "s"`},
		{"missing socket", `profileName = "p"`},
		{"bad strategy", `profileName = "p"
[ipc]
socketPath = "s"
[editor]
idStrategy = "random"`},
		{"bad scan mode", `profileName = "p"
[ipc]
socketPath = "s"
[editor]
scanMode = "deep"`},
		{"vcs without path", `profileName = "p"
[ipc]
socketPath = "s"
[vcs]
enabled = true`},
		{"not toml", `profileName = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), FileName)
			require.NoError(t, os.WriteFile(path, []byte(tt.body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestResolvePath(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", "state.db"), ResolvePath("/p", "state.db"))
	assert.Equal(t, "/abs/x.sock", ResolvePath("/p", "/abs/x.sock"))
	assert.Equal(t, "", ResolvePath("/p", ""))
}
