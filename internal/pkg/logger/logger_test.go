package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel(" warning "))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestInitReconfiguresLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter("error", &buf)

	Component("sync").Info("hidden")
	Init("info")
	Component("sync").Info("visible", "account", "acct1")
	LogError(context.Background(), errors.New("boom"), "failed")
	LogError(context.Background(), nil, "never")

	assert.True(t, Get().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, Get().Enabled(context.Background(), slog.LevelDebug))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "visible", first["msg"])
	assert.Equal(t, "sync", first["component"])
	assert.Equal(t, "acct1", first["account"])
	assert.Contains(t, lines[1], `"error":"boom"`)
	assert.NotContains(t, buf.String(), "never")
}
