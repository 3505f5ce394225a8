// Package logging configures the process-wide logrus logger and hands out
// per-module entries tagged with a "module" field.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config represents logging configuration.
type Config struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

var (
	base = newBase(os.Stdout)
	mu   sync.Mutex
)

func newBase(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	l.SetLevel(logrus.InfoLevel)
	return l
}

// Initialize applies level and format to the shared logger.
// Entries handed out earlier share the logger and pick up the change.
func Initialize(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Format) {
	case "", "text":
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return setLevel(cfg.Level)
}

// SetLevel changes the level at runtime.
func SetLevel(level string) error {
	mu.Lock()
	defer mu.Unlock()
	return setLevel(level)
}

func setLevel(level string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	base.SetLevel(lvl)
	return nil
}

// SetOutput redirects all log output; used by tests and the simulator.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	base.SetOutput(w)
}

// GetLogger returns an entry for the named module.
func GetLogger(module string) *logrus.Entry {
	return base.WithField("module", module)
}

// Discard returns an entry that drops everything. Handy in tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}
