package monitoring

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), tt.in)
	}
}

func TestNew_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	l := New(Config{Level: "info", Out: &buf})
	l.Info().Str("athlete_id", "a1").Msg("sub-test finished")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "sub-test finished", rec["message"])
	assert.Equal(t, "a1", rec["athlete_id"])
	assert.Equal(t, "info", rec["level"])
	assert.Contains(t, rec, "time")
	assert.Contains(t, rec, "caller")
}

func TestNew_LevelFilters(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	l := New(Config{Level: "error", Out: &buf})
	l.Info().Msg("hidden")
	assert.Empty(t, buf.String())
	l.Error().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestNew_Pretty(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.TraceLevel)

	var buf bytes.Buffer
	l := New(Config{Level: "debug", Pretty: true, Out: &buf})
	l.Debug().Str("phase", "ready").Msg("event applied")
	out := buf.String()
	assert.Contains(t, out, "event applied")
	assert.Contains(t, out, "phase=")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestSetLoggerAndComponent(t *testing.T) {
	original := Logger
	defer SetLogger(original)

	var buf bytes.Buffer
	SetLogger(zerolog.New(&buf))

	Component("station").Warn().Msg("stall")
	assert.Contains(t, buf.String(), `"component":"station"`)

	buf.Reset()
	Discard()
	Component("station").Warn().Msg("muted")
	Logger.Info().Msg("muted")
	assert.Empty(t, buf.String())
}
