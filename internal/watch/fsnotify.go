package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/facron/facron/internal/mask"
)

// ErrClosed is returned by ReadEvents once the backend has been closed.
var ErrClosed = errors.New("watch: backend closed")

// Fsnotify is a portable backend built on fsnotify. It needs no privileges
// but reports a coarser set of events than fanotify:
//
//   - Write and Create are reported as MODIFY;
//   - Chmod, Remove and Rename are dropped;
//   - the causing PID is never known and reported as 0.
//
// A path marked several times (one mark per mask group) is watched once and
// released with its last Remove.
type Fsnotify struct {
	w      *fsnotify.Watcher
	logger *slog.Logger
	refs   map[string]int
}

// NewFsnotify creates the underlying fsnotify watcher.
func NewFsnotify(logger *slog.Logger) (*Fsnotify, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: init: %w", err)
	}
	return &Fsnotify{w: w, logger: logger, refs: make(map[string]int)}, nil
}

// Mark implements Backend. The mask only matters to the dispatcher; fsnotify
// always subscribes to every event it knows.
func (f *Fsnotify) Mark(op Op, _ mask.Mask, path string) error {
	switch op {
	case Add:
		if f.refs[path] == 0 {
			if err := f.w.Add(path); err != nil {
				return fmt.Errorf("fsnotify: add %q: %w", path, err)
			}
		}
		f.refs[path]++
	case Remove:
		n, ok := f.refs[path]
		if !ok {
			return fmt.Errorf("fsnotify: remove %q: not watched", path)
		}
		if n > 1 {
			f.refs[path] = n - 1
			return nil
		}
		delete(f.refs, path)
		if err := f.w.Remove(path); err != nil {
			return fmt.Errorf("fsnotify: remove %q: %w", path, err)
		}
	}
	return nil
}

// ReadEvents implements Backend.
func (f *Fsnotify) ReadEvents(ctx context.Context) ([]Event, error) {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case err, ok := <-f.w.Errors:
		if !ok {
			return nil, ErrClosed
		}
		if errors.Is(err, fsnotify.ErrEventOverflow) {
			f.logger.Warn("fsnotify: event queue overflow, events were lost")
		} else {
			f.logger.Warn("fsnotify: watcher error", slog.Any("error", err))
		}
		return nil, nil
	case ev, ok := <-f.w.Events:
		if !ok {
			return nil, ErrClosed
		}
		events := appendEvent(nil, ev)
		// Drain what is already queued so one batch covers a burst.
		for {
			select {
			case ev, ok := <-f.w.Events:
				if !ok {
					return events, nil
				}
				events = appendEvent(events, ev)
			default:
				return events, nil
			}
		}
	}
}

func appendEvent(events []Event, ev fsnotify.Event) []Event {
	var m mask.Mask
	if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
		m |= mask.Modify
	}
	if m == 0 {
		return events
	}
	return append(events, Event{Path: ev.Name, Mask: m})
}

// Close implements Backend.
func (f *Fsnotify) Close() error {
	if err := f.w.Close(); err != nil {
		return fmt.Errorf("fsnotify: close: %w", err)
	}
	return nil
}
