// Package dispatch matches filesystem events against the configured entries
// and launches the command of every matching mask group.
package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/facron/facron/internal/command"
	"github.com/facron/facron/internal/conf"
	"github.com/facron/facron/internal/history"
	"github.com/facron/facron/internal/mask"
	"github.com/facron/facron/internal/metrics"
)

// Recorder stores one launch. *history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, l history.Launch) (history.Launch, error)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRecorder records every launch in r.
func WithRecorder(r Recorder) Option {
	return func(d *Dispatcher) { d.recorder = r }
}

// WithMetrics counts matches and launches in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// Dispatcher owns the active entry list. It is not safe for concurrent use;
// the daemon calls Install and Handle from its event loop only.
type Dispatcher struct {
	launcher command.Launcher
	counter  *command.Counter
	logger   *slog.Logger
	recorder Recorder
	metrics  *metrics.Metrics
	entries  *conf.Entries
}

// New returns a Dispatcher with no entries installed.
func New(launcher command.Launcher, counter *command.Counter, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		launcher: launcher,
		counter:  counter,
		logger:   logger,
		metrics:  metrics.New(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Install replaces the entry list consulted by Handle.
func (d *Dispatcher) Install(entries *conf.Entries) {
	d.entries = entries
}

// Handle dispatches one event and returns the number of commands handed to
// the launcher. Entries are visited in declaration order and, within an
// entry, groups in the order they were written.
func (d *Dispatcher) Handle(ctx context.Context, path string, m mask.Mask, pid int) int {
	launched := 0
	for e := d.entries.First(); e != nil; e = e.Next() {
		for _, g := range Matches(e, path, m) {
			d.metrics.Matches.Add(1)
			d.launch(ctx, e, g, path, m, pid)
			launched++
		}
	}
	return launched
}

func (d *Dispatcher) launch(ctx context.Context, e *conf.Entry, g mask.Mask, path string, m mask.Mask, pid int) {
	argv := command.Expand(e.Command, path, pid, d.counter)
	log := d.logger.With(
		slog.String("watch", e.Path),
		slog.String("path", path),
		slog.String("group", g.String()),
		slog.Int("pid", pid),
		slog.String("command", shellquote.Join(argv...)),
	)

	rec := history.Launch{Path: path, Mask: m.String(), PID: pid, Argv: argv}
	if err := d.launcher.Spawn(argv); err != nil {
		d.metrics.LaunchErrors.Add(1)
		rec.Error = err.Error()
		log.Error("dispatch: launch failed", slog.Any("error", err))
	} else {
		d.metrics.CommandsLaunched.Add(1)
		log.Info("dispatch: command launched")
	}

	if d.recorder == nil {
		return
	}
	if _, err := d.recorder.Record(ctx, rec); err != nil {
		d.logger.Warn("dispatch: record launch", slog.Any("error", err))
	}
}

// Matches returns the groups of e that an event of mask m on path satisfies.
//
// When path is the watched path itself a group matches if every one of its
// bits is present in m. Otherwise the group must carry EVENT_ON_CHILD, path
// must name something below the watched directory, and the remaining bits
// must all be present in m.
func Matches(e *conf.Entry, path string, m mask.Mask) []mask.Mask {
	var out []mask.Mask
	if e.Path == path {
		for _, g := range e.Groups {
			if g&m == g {
				out = append(out, g)
			}
		}
		return out
	}
	if !below(e.Path, path) {
		return nil
	}
	for _, g := range e.Groups {
		if !g.Has(mask.EventOnChild) {
			continue
		}
		want := g &^ mask.EventOnChild
		if g&m == want {
			out = append(out, g)
		}
	}
	return out
}

// below reports whether path lies strictly under the directory dir. A
// shared prefix only counts at a '/' boundary, so "/data2" is not below
// "/data".
func below(dir, path string) bool {
	if len(path) <= len(dir) || !strings.HasPrefix(path, dir) {
		return false
	}
	return strings.HasSuffix(dir, "/") || path[len(dir)] == '/'
}
