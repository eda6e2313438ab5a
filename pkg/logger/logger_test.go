package logger

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instatrack/pkg/config"
)

func TestNewWithValidLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "disabled"} {
		log, err := New(&config.LoggingConfig{Level: level})
		require.NoError(t, err, "level %q", level)
		assert.NotNil(t, log)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "instatrack.log")

	log, err := New(&config.LoggingConfig{Level: "info", File: path})
	require.NoError(t, err)

	log.WithField("username", "alice").Info("profile synced")

	_, statErr := filepath.Glob(path)
	assert.NoError(t, statErr)
}

func TestParseLogLevel(t *testing.T) {
	level, err := parseLogLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, level)

	level, err = parseLogLevel("warning")
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, level)

	_, err = parseLogLevel("noisy")
	assert.Error(t, err)
}

func TestChainingDoesNotMutateParent(t *testing.T) {
	log, err := New(&config.LoggingConfig{Level: "disabled"})
	require.NoError(t, err)

	child := log.WithField("a", 1).WithFields(map[string]interface{}{"b": 2}).WithError(errors.New("x"))
	assert.NotNil(t, child)
	child.Info("still works")
	log.Info("parent unaffected")
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.WithField("k", "v").WithError(errors.New("ignored")).Error("swallowed")
	assert.Nil(t, log.GetZerolog())
}
