// Package monitoring holds the pipeline's diagnostic logging hooks.
package monitoring

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Logf is the package-level diagnostic logger used by normalization,
// training and inference. It defaults to log.Printf; tests mute or capture
// it with SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces Logf. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// RotationOptions controls the on-disk log file written by long-running
// commands (training runs, the inference server).
type RotationOptions struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation keeps a week of 50MB files.
func DefaultRotation() RotationOptions {
	return RotationOptions{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 7, Compress: true}
}

// LogToFile tees the standard logger to a size-rotated file at path while
// keeping stderr output. The returned closer flushes and closes the file.
// An empty path leaves logging untouched.
func LogToFile(path string, opts RotationOptions) io.Closer {
	if path == "" {
		return io.NopCloser(nil)
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAgeDays,
		Compress:   opts.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, lj))
	return lj
}
