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
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewWithWriter_JSONOutsideDev(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "production", "info").WithRequestID("req-1")

	log.LogSeatLocked(context.Background(), 5, "A10", "sess-a", true)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "seat locked", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.Equal(t, "A10", entry["seat"])
	assert.Equal(t, float64(5), entry["show_id"])
	assert.Equal(t, true, entry["is_new_lock"])
}

func TestNewWithWriter_TextInDev(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "dev", "info").WithSession("sess-a")

	log.LogSeatsReleased(context.Background(), "sess-a", 2)

	out := buf.String()
	assert.True(t, strings.Contains(out, `msg="seat locks released"`), out)
	assert.Contains(t, out, "count=2")
}

func TestLogSeatConflict_IsDebugOnly(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "production", "info").LogSeatConflict(context.Background(), 5, "A10", "sess-b", "seat_locked")
	assert.Empty(t, buf.String())

	NewWithWriter(&buf, "production", "debug").LogSeatConflict(context.Background(), 5, "A10", "sess-b", "seat_locked")
	assert.Contains(t, buf.String(), `"reason":"seat_locked"`)
}

func TestErrorWithContext(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "production", "info")

	log.ErrorWithContext(context.Background(), "release failed", errors.New("boom"), map[string]any{"reservation_id": 99})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, float64(99), entry["reservation_id"])
}
