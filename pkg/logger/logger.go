// Package logger builds the process-wide structured logger.
//
// Output goes to the console (pretty in dev mode) and, when a log directory
// is configured, to four per-level rotating files named
// YYYY-MM-DD_{level}.log with a size cap and age-based cleanup.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // Enable pretty console output
	Dir        string // Log file directory; empty disables file output
	MaxSizeMB  int    // Per-file size cap before rotation (default 10)
	MaxAgeDays int    // Days to keep rotated files (default 7)
}

// New creates a new structured logger
func New(cfg Config) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var console io.Writer = os.Stdout
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	writers := []io.Writer{console}
	if cfg.Dir != "" {
		writers = append(writers, newLevelFiles(cfg))
	}

	return zerolog.New(zerolog.MultiLevelWriter(writers...)).
		With().
		Timestamp().
		Caller().
		Logger()
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}

// levelFiles fans log lines out to one rotating file per level.
// Debug lines only reach their file when the global level admits them.
type levelFiles struct {
	files map[zerolog.Level]io.Writer
}

func newLevelFiles(cfg Config) *levelFiles {
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxAge := cfg.MaxAgeDays
	if maxAge <= 0 {
		maxAge = 7
	}

	day := time.Now().Format("2006-01-02")
	open := func(name string) io.Writer {
		return &lumberjack.Logger{
			Filename: filepath.Join(cfg.Dir, day+"_"+name+".log"),
			MaxSize:  maxSize,
			MaxAge:   maxAge,
		}
	}

	return &levelFiles{
		files: map[zerolog.Level]io.Writer{
			zerolog.DebugLevel: open("debug"),
			zerolog.InfoLevel:  open("info"),
			zerolog.WarnLevel:  open("warn"),
			zerolog.ErrorLevel: open("error"),
		},
	}
}

// Write satisfies io.Writer; lines without level routing go to the info file.
func (l *levelFiles) Write(p []byte) (int, error) {
	if w, ok := l.files[zerolog.InfoLevel]; ok {
		return w.Write(p)
	}
	return len(p), nil
}

// WriteLevel satisfies zerolog.LevelWriter
func (l *levelFiles) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	w, ok := l.files[level]
	if !ok {
		// Fatal and panic land in the error file
		if level > zerolog.ErrorLevel {
			w, ok = l.files[zerolog.ErrorLevel]
		}
		if !ok {
			return len(p), nil
		}
	}
	return w.Write(p)
}
