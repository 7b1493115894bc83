package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rexliu/swtedit/pkg/config"
)

func TestConfigureFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "swtd.log")
	logger, closer, err := Configure(New("test"), "test", config.LoggingConfig{Level: "warn", FilePath: path})
	require.NoError(t, err)

	logger.Info().Msg("dropped")
	logger.Warn().Str("path", "a.swt").Msg("kept")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "dropped")
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Contains(t, string(data), `"message":"kept"`)
}

func TestConfigureLevel(t *testing.T) {
	logger, _, err := Configure(New("test"), "test", config.LoggingConfig{Level: "debug"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())

	_, _, err = Configure(New("test"), "test", config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRollingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roll.log")
	r, err := newRollingFile(path, 1)
	require.NoError(t, err)
	defer r.Close()

	chunk := bytes.Repeat([]byte("x"), 700*1024)
	_, err = r.Write(chunk)
	require.NoError(t, err)
	_, err = r.Write(chunk)
	require.NoError(t, err)

	backup, err := os.Stat(path + ".1")
	require.NoError(t, err)
	assert.EqualValues(t, len(chunk), backup.Size())
	current, err := os.Stat(path)
	require.NoError(t, err)
	assert.EqualValues(t, len(chunk), current.Size())
}
