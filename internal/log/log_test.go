package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"off":     zerolog.Disabled,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "level %q", in)
	}
}

func TestNewWithWriterFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn", false)

	logger.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	logger.Warn().Str("node", "n1").Msg("shown")
	assert.Contains(t, buf.String(), `"node":"n1"`)
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestWatermillAdapter(t *testing.T) {
	var buf bytes.Buffer
	adapter := NewWatermillAdapter(NewWithWriter(&buf, "debug", false))

	adapter.With(watermill.LogFields{"topic": "pkpauth.session_issued"}).
		Error("publish failed", errors.New("broken pipe"), watermill.LogFields{"attempt": 2})

	out := buf.String()
	assert.Contains(t, out, `"topic":"pkpauth.session_issued"`)
	assert.Contains(t, out, `"attempt":2`)
	assert.Contains(t, out, `"error":"broken pipe"`)
	assert.Contains(t, out, `"level":"error"`)

	buf.Reset()
	adapter.Trace("noise", nil)
	assert.Zero(t, buf.Len())
}
