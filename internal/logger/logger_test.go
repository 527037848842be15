package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	lvl, ok := ParseLevel("debug")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelDebug, lvl)

	lvl, ok = ParseLevel("WARNING")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelWarn, lvl)

	lvl, ok = ParseLevel("8")
	assert.True(t, ok)
	assert.Equal(t, slog.LevelError, lvl)

	_, ok = ParseLevel("loud")
	assert.False(t, ok)
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: slog.LevelInfo, Format: "json", Writer: &buf})
	l.Info("hello", "attempt", 2)
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"attempt":2`)

	buf.Reset()
	l = NewLogger(Config{Level: slog.LevelWarn, Format: "text", Writer: &buf})
	l.Info("dropped")
	assert.Empty(t, buf.String())
	l.Warn("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestOrFallsBackToGlobal(t *testing.T) {
	assert.Same(t, Logger, Or(nil))
	custom := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	assert.Same(t, custom, Or(custom))
}
