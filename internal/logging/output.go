package logging

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	defaultFileMaxSizeMB  = 5
	defaultFileMaxBackups = 3
	defaultFileMaxAgeDays = 14
)

// FileOptions configures the rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewFileOutput returns a size-rotated log file writer.
func NewFileOutput(options FileOptions) (io.WriteCloser, error) {
	path := strings.TrimSpace(options.Path)
	if path == "" {
		return nil, errors.New("log file path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	maxSize := options.MaxSizeMB
	if maxSize <= 0 {
		maxSize = defaultFileMaxSizeMB
	}
	maxBackups := options.MaxBackups
	if maxBackups < 0 {
		maxBackups = defaultFileMaxBackups
	}
	maxAge := options.MaxAgeDays
	if maxAge <= 0 {
		maxAge = defaultFileMaxAgeDays
	}

	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     maxAge,
		Compress:   options.Compress,
	}, nil
}

// NewTeeOutput writes every line to all non-nil writers.
func NewTeeOutput(writers ...io.Writer) io.Writer {
	targets := make([]io.Writer, 0, len(writers))
	for _, writer := range writers {
		if writer != nil {
			targets = append(targets, writer)
		}
	}
	switch len(targets) {
	case 0:
		return io.Discard
	case 1:
		return targets[0]
	default:
		return io.MultiWriter(targets...)
	}
}
