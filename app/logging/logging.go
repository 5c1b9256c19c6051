package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxSizeMB  = 64
	maxBackups = 3
	maxAgeDays = 7
)

// Setup installs the default slog logger. When file is set, records are also
// written to a size-rotated log file; the returned closer releases it.
func Setup(debug bool, file string) (io.Closer, error) {
	return setup(os.Stderr, debug, file)
}

func setup(console io.Writer, debug bool, file string) (io.Closer, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var output io.Writer = console
	var closer io.Closer = nopCloser{}

	if file != "" {
		if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}

		fileWriter := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		output = io.MultiWriter(console, fileWriter)
		closer = fileWriter
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})))

	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
