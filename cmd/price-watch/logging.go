package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newLogger writes to three sinks: the console, a JSON file with errors
// only, and a rolling file with everything.
func newLogger(cfg config) (zerolog.Logger, func(), error) {
	level := zerolog.InfoLevel
	if cfg.debug {
		level = zerolog.DebugLevel
	}
	if err := os.MkdirAll(cfg.logDir, 0o755); err != nil {
		return zerolog.Nop(), func() {}, err
	}
	errFile, err := os.OpenFile(filepath.Join(cfg.logDir, "errors.json"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}
	rolling := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.logDir, "all.log"),
		MaxSize:    50, // MB
		MaxAge:     31,
		MaxBackups: 12,
		Compress:   true,
	}
	console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}

	w := zerolog.MultiLevelWriter(
		console,
		rolling,
		&zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: errFile},
			Level:  zerolog.ErrorLevel,
		},
	)
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	closeFn := func() {
		_ = rolling.Close()
		_ = errFile.Close()
	}
	return logger, closeFn, nil
}
