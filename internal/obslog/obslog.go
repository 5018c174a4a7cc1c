// Package obslog provides the Execution Core's structured logging
// setup: a logrus logger whose output is split between stdout and
// stderr by level, so container log collectors can treat the two
// streams differently.
package obslog

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// streamSplitter routes formatted log lines to stderr when they carry
// an error level, and to stdout otherwise.
type streamSplitter struct{}

func (streamSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) || bytes.Contains(p, []byte("level=fatal")) ||
		bytes.Contains(p, []byte(`"level":"error"`)) || bytes.Contains(p, []byte(`"level":"fatal"`)) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the process-wide logger every Core component should use.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(streamSplitter{})
	Logger.SetFormatter(&logrus.JSONFormatter{})
}

// SetLevel parses level (debug/info/warn/error) and applies it,
// defaulting to info on an unrecognized value.
func SetLevel(level string) {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		lv = logrus.InfoLevel
	}
	Logger.SetLevel(lv)
}

// SetTextFormat switches to a human-readable formatter, for local
// development where JSON lines are not useful.
func SetTextFormat() {
	Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// Component returns a logger entry scoped to a named Core component
// (catalog, registry, planner, scheduler, dispatcher, commit, service).
func Component(name string) *logrus.Entry {
	return Logger.WithField("component", name)
}
