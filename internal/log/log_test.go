package log

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(LevelInfo)
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := captureOutput(t, LevelWarn)

	Debug("hidden debug")
	Info("hidden info")
	Warn("shown warn", "channel", "weekly")
	Error("shown error", errors.New("boom"))

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown warn channel=weekly")
	assert.Contains(t, out, "[ERROR] shown error err=boom")
}

func TestFormatKVsIgnoresOddAndNonStringKeys(t *testing.T) {
	assert.Equal(t, " a=1 b=two", formatKVs("a", 1, "b", "two", "dangling"))
	assert.Equal(t, " ok=true", formatKVs(42, "skipped", "ok", true))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		" INFO ":  LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestOpenFileWritesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trashcal.log")
	require.NoError(t, OpenFile(path, 1, 1))
	t.Cleanup(func() { _ = Close() })

	Info("written to file", "k", "v")
	require.NoError(t, Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "[INFO] written to file k=v"))
}
