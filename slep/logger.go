package slep

import (
	"io"
	"log/slog"
	"os"

	"github.com/tevino/abool"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil)).With("component", "slep")

// quiet is read by every training run, including concurrent path runs.
var quiet = abool.New()

// SetLogger replaces the package logger. A nil logger discards output. It
// must not be called while a training run is in progress.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	logger = l.With("component", "slep")
}

// SetQuiet silences the package logger without replacing it.
func SetQuiet(q bool) {
	quiet.SetTo(q)
}

func logInfo(msg string, args ...any) {
	if quiet.IsSet() {
		return
	}
	logger.Info(msg, args...)
}

func logWarn(msg string, args ...any) {
	if quiet.IsSet() {
		return
	}
	logger.Warn(msg, args...)
}

func logDebug(msg string, args ...any) {
	if quiet.IsSet() {
		return
	}
	logger.Debug(msg, args...)
}
