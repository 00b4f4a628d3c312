// Package logging builds the logrus logger shared by every component.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	Level  string // logrus level name, default "info"
	Format string // "text" or "json"
	Output io.Writer
}

// New creates a logger. Unknown levels are an error so a typo in the config
// does not silently hide debug output.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()

	if opts.Output != nil {
		l.Out = opts.Output
	} else {
		l.Out = os.Stderr
	}

	switch opts.Format {
	case "json":
		l.Formatter = &logrus.JSONFormatter{}
	case "", "text":
		l.Formatter = &logrus.TextFormatter{DisableTimestamp: true}
	default:
		return nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		if level, err = logrus.ParseLevel(opts.Level); err != nil {
			return nil, err
		}
	}
	l.Level = level

	return l, nil
}

// Discard returns a logger that writes nothing. Used as the default when a
// component is built without one.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}
