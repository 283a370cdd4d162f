package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		level    LogLevel
		expected slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{"WARNING", slog.LevelWarn},
		{LevelError, slog.LevelError},
		{"invalid", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tc := range testCases {
		t.Run(string(tc.level), func(t *testing.T) {
			assert.Equal(t, tc.expected, ParseLevel(tc.level))
		})
	}
}

func TestSetupLogger_JSON(t *testing.T) {
	originalLogger := defaultLogger
	defer func() {
		defaultLogger = originalLogger
		slog.SetDefault(originalLogger)
	}()

	var buf bytes.Buffer
	SetupLogger(&buf, LevelInfo, FormatJSON)

	Debug("hidden")
	Info("tool call completed", "tool", "get_ticket")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "tool call completed", entry["msg"])
	assert.Equal(t, "get_ticket", entry["tool"])
	assert.Equal(t, "tracker-mcp-server", entry["service"])
}

func TestSetupLogger_Text(t *testing.T) {
	originalLogger := defaultLogger
	defer func() {
		defaultLogger = originalLogger
		slog.SetDefault(originalLogger)
	}()

	var buf bytes.Buffer
	SetupLogger(&buf, LevelDebug, FormatText)

	tests := []struct {
		logFunc func(string, ...any)
		level   string
	}{
		{Debug, "DEBUG"},
		{Info, "INFO"},
		{Warn, "WARN"},
		{Error, "ERROR"},
	}
	for _, tc := range tests {
		buf.Reset()
		tc.logFunc("message", "key", "value")
		output := buf.String()
		assert.Contains(t, output, "level="+tc.level)
		assert.Contains(t, output, "key=value")
	}
	assert.Same(t, defaultLogger, GetLogger())
}

func TestMaskSensitive(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"Empty string", "", "<not set>"},
		{"Short string", "abc", "<set>"},
		{"Exactly 4 characters", "abcd", "<set>"},
		{"API key", "lin_api_abcdef", "lin_...***"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, MaskSensitive(tc.input))
		})
	}
}
