package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" INFO ":  zerolog.InfoLevel,
		"error":   zerolog.ErrorLevel,
		"":        zerolog.WarnLevel,
		"verbose": zerolog.WarnLevel,
	}
	for in, want := range cases {
		var buf bytes.Buffer
		assert.Equal(t, want, New(in, &buf).GetLevel(), "level %q", in)
	}
}

func TestComponentWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := Component(New("info", &buf), "cache")

	logger.Info().Str("path", "/tmp/x").Msg("loaded")

	out := buf.String()
	require.NotEmpty(t, out)
	assert.Contains(t, out, `"component":"cache"`)
	assert.Contains(t, out, `"path":"/tmp/x"`)
	assert.Contains(t, out, `"message":"loaded"`)
}
