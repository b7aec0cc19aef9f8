// Package conf implements the facron configuration front-end: the line and
// field reader, the line-oriented parser and the ordered entry store, plus
// the load/reload life cycle of a configuration file.
//
// A configuration line has the form
//
//	<path> <mask-expr> <command-field>...
//
// for example
//
//	/etc/app.conf FAN_MODIFY,FAN_CLOSE_WRITE /usr/bin/logger "app.conf changed" $$
//
// Lines that are empty or start with whitespace are ignored. A malformed line
// is reported and skipped; it never aborts the load of the rest of the file.
package conf

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
)

// Conf owns the entries parsed from one configuration file.
type Conf struct {
	path   string
	logger *slog.Logger
	opts   []ParseOption

	entries    *Entries
	lineErrors int
}

// New returns a Conf for the file at path. No I/O happens until Load.
func New(path string, logger *slog.Logger, opts ...ParseOption) *Conf {
	return &Conf{
		path:    path,
		logger:  logger,
		opts:    opts,
		entries: &Entries{},
	}
}

// Path returns the configuration file path.
func (c *Conf) Path() string { return c.path }

// Entries returns the current entries. It never returns nil.
func (c *Conf) Entries() *Entries { return c.entries }

// LineErrors returns the number of lines discarded by the last successful
// parse.
func (c *Conf) LineErrors() int { return c.lineErrors }

// Load performs the initial load. When the file cannot be read the error
// is returned and the configuration stays empty; callers may keep running
// with zero entries.
func (c *Conf) Load() error {
	entries, err := c.load()
	if err != nil {
		c.logger.Error("cannot load configuration",
			slog.String("path", c.path),
			slog.Any("error", err),
		)
		return err
	}
	c.entries = entries
	return nil
}

// Reload parses the file again into a fresh list. On success the new list
// replaces the current one and the previous list is returned so the caller
// can remove its watches. If the file cannot be opened or read to the end,
// the current entries are kept and the error is returned.
func (c *Conf) Reload() (*Entries, error) {
	entries, err := c.load()
	if err != nil {
		c.logger.Error("cannot reload configuration, keeping previous entries",
			slog.String("path", c.path),
			slog.Int("entries", c.entries.Len()),
			slog.Any("error", err),
		)
		return nil, err
	}
	old := c.entries
	c.entries = entries
	return old, nil
}

func (c *Conf) load() (*Entries, error) {
	f, err := os.Open(c.path)
	if err != nil {
		return nil, fmt.Errorf("conf: open %q: %w", c.path, err)
	}
	defer f.Close()

	c.logger.Info("loading configuration", slog.String("path", c.path))

	entries, perr := Parse(f, c.opts...)
	discarded, rerr := c.report(perr)
	if rerr != nil {
		return nil, rerr
	}
	c.lineErrors = discarded

	c.logger.Info("configuration loaded",
		slog.String("path", c.path),
		slog.Int("entries", entries.Len()),
		slog.Int("discarded_lines", c.lineErrors),
	)
	return entries, nil
}

// report logs each discarded line and returns how many there were, along
// with the stream error if reading stopped early.
func (c *Conf) report(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}

	n := 0
	var readErr error
	for _, e := range errs {
		var le *LineError
		if !errors.As(e, &le) {
			readErr = e
			continue
		}
		n++
		c.logger.Warn("configuration line discarded",
			slog.String("path", c.path),
			slog.Int("line", le.Line),
			slog.Int("column", le.Column),
			slog.String("reason", le.Err.Error()),
		)
	}
	return n, readErr
}
