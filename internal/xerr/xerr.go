// Package xerr provides the error-wrapping/logging idiom used at the
// store and decode boundaries: wrap with a stack trace, log
// structurally, and never let the stack trace leak across an external
// boundary (spec.md §7 — "no stack traces" in client-visible errors).
package xerr

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"github.com/mdobak/go-xerrors"
)

var (
	loggerOnce sync.Once
	logger     *slog.Logger
)

// Logger returns the process-wide structured logger.
func Logger() *slog.Logger {
	loggerOnce.Do(func() {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	})
	return logger
}

// Wrap attaches a stack trace to err, or returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	return xerrors.New(err)
}

// LogError logs err (already wrapped, or not) with the given message
// and context, via the shared structured logger.
func LogError(ctx context.Context, msg string, err error) {
	Logger().ErrorContext(ctx, msg, slog.Any("error", Wrap(err)))
}
