// Package watch provides the kernel watch backends used by the facron
// daemon. A Backend installs marks for (mask, path) pairs and reports the
// resulting filesystem events in batches.
//
// Two backends exist:
//
//	fanotify  (linux only, needs CAP_SYS_ADMIN) : fanotify_init/fanotify_mark
//	fsnotify  (portable, unprivileged)          : inotify/kqueue via fsnotify
//
// The fanotify backend registers itself from fanotify_linux.go. On other
// platforms New returns ErrUnsupported for it.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facron/facron/internal/mask"
)

// Op selects whether Mark adds or removes a watch.
type Op int

const (
	Add Op = iota
	Remove
)

func (o Op) String() string {
	if o == Remove {
		return "remove"
	}
	return "add"
}

// Event is one filesystem event reported by a backend.
type Event struct {
	// Path is the absolute path of the object the event refers to.
	Path string
	// Mask holds the event bits reported by the kernel.
	Mask mask.Mask
	// PID is the process that caused the event, or 0 when unknown.
	PID int
}

// Backend is a source of filesystem events. Implementations are used from a
// single goroutine.
type Backend interface {
	// Mark adds or removes the watch for m on path.
	Mark(op Op, m mask.Mask, path string) error
	// ReadEvents blocks until events are available, ctx is done or the poll
	// interval elapses. An empty batch with a nil error is a timeout: the
	// caller gets a chance to run deferred work before reading again.
	ReadEvents(ctx context.Context) ([]Event, error)
	// Close releases the backend. Marks are dropped by the kernel.
	Close() error
}

// Backend kinds accepted by New.
const (
	KindFanotify = "fanotify"
	KindFsnotify = "fsnotify"
)

// pollInterval bounds how long ReadEvents blocks without events.
const pollInterval = 100 * time.Millisecond

// ErrUnsupported is returned by New for a backend the platform lacks.
var ErrUnsupported = errors.New("watch: backend not supported on this platform")

// fanotifyFactory is set by fanotify_linux.go.
var fanotifyFactory func(logger *slog.Logger) (Backend, error)

// New initialises the backend of the given kind. Failing here is fatal for
// the daemon: nothing can be watched.
func New(kind string, logger *slog.Logger) (Backend, error) {
	switch kind {
	case KindFanotify:
		if fanotifyFactory == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnsupported, kind)
		}
		return fanotifyFactory(logger)
	case KindFsnotify:
		return NewFsnotify(logger)
	default:
		return nil, fmt.Errorf("watch: unknown backend %q", kind)
	}
}
