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
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{input: "", want: slog.LevelInfo},
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewHandler_Pretty(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, Options{Format: FormatPretty})
	require.NoError(t, err)

	slog.New(h).Info("container started", "port", 55432)

	out := buf.String()
	assert.Contains(t, out, "container started")
	assert.Contains(t, out, "port=55432")
	assert.NotContains(t, out, "\033[", "a buffer is not a terminal")
}

func TestNewHandler_JSON(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, Options{Format: "json", Level: "warn"})
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Info("dropped")
	logger.Warn("kept", "key", "DATASOURCE_URL")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &record))
	assert.Equal(t, "kept", record["msg"])
	assert.Equal(t, "DATASOURCE_URL", record["key"])
}

func TestNewHandler_Errors(t *testing.T) {
	_, err := NewHandler(&bytes.Buffer{}, Options{Format: "xml"})
	assert.ErrorContains(t, err, "unknown log format")

	_, err = NewHandler(&bytes.Buffer{}, Options{Level: "chatty"})
	assert.ErrorContains(t, err, "unknown log level")
}
