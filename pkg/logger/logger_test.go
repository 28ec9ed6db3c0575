package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"", slog.LevelInfo, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSetupTextAndJSON(t *testing.T) {
	var buf bytes.Buffer

	log, err := Setup(Options{Level: "debug", Format: "text", Output: &buf})
	require.NoError(t, err)
	log.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "hello")

	buf.Reset()
	log, err = Setup(Options{Level: "info", Format: "json", Output: &buf})
	require.NoError(t, err)
	log.Info("structured")
	assert.Contains(t, buf.String(), `"msg":"structured"`)

	_, err = Setup(Options{Format: "yaml"})
	assert.Error(t, err)
}
