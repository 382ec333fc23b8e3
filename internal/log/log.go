// Package log provides the single structured logger threaded explicitly
// through a build run: one logrus-backed logger, scoped with fields per
// project/phase/driver, never a package-level global.
package log

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Entry so callers can attach build-domain fields
// (project, phase, driver) without reaching for logrus directly.
type Logger struct {
	*logrus.Entry
}

// New builds a root Logger writing to w at the given level ("debug", "info",
// "warn", "error"). An unrecognized level falls back to "info".
func New(level string, w io.Writer) *Logger {
	base := logrus.New()
	base.SetOutput(w)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}

	base.SetLevel(parsed)

	return &Logger{Entry: logrus.NewEntry(base)}
}

// Default returns a Logger writing to stderr at info level, used only by
// entry points before a Config has been parsed.
func Default() *Logger {
	return New("info", os.Stderr)
}

// WithProject scopes the logger to a project id.
func (l *Logger) WithProject(id string) *Logger {
	return &Logger{Entry: l.Entry.WithField("project", id)}
}

// WithPhase scopes the logger to a build phase name.
func (l *Logger) WithPhase(phase string) *Logger {
	return &Logger{Entry: l.Entry.WithField("phase", phase)}
}

// WithDriver scopes the logger to a driver id.
func (l *Logger) WithDriver(id string) *Logger {
	return &Logger{Entry: l.Entry.WithField("driver", id)}
}
