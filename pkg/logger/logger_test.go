package logger

import (
	"bytes"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedLevelFiles() (*levelFiles, map[zerolog.Level]*bytes.Buffer) {
	bufs := map[zerolog.Level]*bytes.Buffer{
		zerolog.DebugLevel: {},
		zerolog.InfoLevel:  {},
		zerolog.WarnLevel:  {},
		zerolog.ErrorLevel: {},
	}
	files := map[zerolog.Level]io.Writer{}
	for level, buf := range bufs {
		files[level] = buf
	}
	return &levelFiles{files: files}, bufs
}

func TestWriteLevelRoutesToLevelFile(t *testing.T) {
	lf, bufs := newBufferedLevelFiles()

	_, err := lf.WriteLevel(zerolog.WarnLevel, []byte("warned\n"))
	require.NoError(t, err)
	assert.Equal(t, "warned\n", bufs[zerolog.WarnLevel].String())
	assert.Empty(t, bufs[zerolog.InfoLevel].String())
}

func TestWriteLevelFatalLandsInErrorFile(t *testing.T) {
	lf, bufs := newBufferedLevelFiles()

	_, err := lf.WriteLevel(zerolog.FatalLevel, []byte("fatal\n"))
	require.NoError(t, err)
	assert.Equal(t, "fatal\n", bufs[zerolog.ErrorLevel].String())
}

func TestWriteDefaultsToInfoFile(t *testing.T) {
	lf, bufs := newBufferedLevelFiles()

	_, err := lf.Write([]byte("plain\n"))
	require.NoError(t, err)
	assert.Equal(t, "plain\n", bufs[zerolog.InfoLevel].String())
}

func TestNewRespectsLevel(t *testing.T) {
	log := New(Config{Level: "warn"})
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	log.Debug().Msg("suppressed")
}
