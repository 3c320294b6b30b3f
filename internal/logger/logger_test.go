package logger

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		_, err := New(Config{Level: "loud", Format: "json"})
		assert.Error(t, err)
	})

	t.Run("console", func(t *testing.T) {
		var buf bytes.Buffer
		l, err := New(Config{Level: "info", Format: "console", Output: &buf})
		require.NoError(t, err)
		l.Info("hello")
		require.NoError(t, l.Sync())
		assert.Contains(t, buf.String(), "hello")
	})

	t.Run("file tee", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "guardrails.log")
		var buf bytes.Buffer
		l, err := New(Config{Level: "debug", Format: "json", Output: &buf, File: &FileConfig{Enabled: true, Path: path}})
		require.NoError(t, err)
		l.Debug("to both")
		require.NoError(t, l.Sync())
		assert.FileExists(t, path)
		assert.Contains(t, buf.String(), "to both")
	})
}

func TestLogRequest_RedactsHeaders(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)

	l.WithComponent("server").WithRequestID("req-1").LogRequest("POST", "/guard/input", 200, 3*time.Millisecond,
		map[string][]string{
			"Authorization": {"Bearer sk-secret"},
			"Content-Type":  {"application/json"},
		})
	require.NoError(t, l.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "server", entry["component"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, float64(200), entry["status_code"])

	headers := entry["headers"].(map[string]any)
	assert.Equal(t, "[REDACTED]", headers["Authorization"])
	assert.Equal(t, "application/json", headers["Content-Type"])
	assert.NotContains(t, buf.String(), "sk-secret")
}

func TestIsSensitiveHeader(t *testing.T) {
	assert.True(t, isSensitiveHeader("X-API-Key"))
	assert.True(t, isSensitiveHeader("Cookie"))
	assert.False(t, isSensitiveHeader("Accept"))
}
