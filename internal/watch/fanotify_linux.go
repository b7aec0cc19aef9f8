//go:build linux

package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/facron/facron/internal/mask"
)

func init() {
	fanotifyFactory = func(logger *slog.Logger) (Backend, error) {
		return NewFanotify(logger)
	}
}

// metadataSize is the fixed size of struct fanotify_event_metadata.
const metadataSize = int(unsafe.Sizeof(unix.FanotifyEventMetadata{}))

// ErrMetadataVersion is returned by ReadEvents when the kernel speaks a
// different fanotify metadata version than the one this code decodes.
var ErrMetadataVersion = errors.New("fanotify: kernel metadata version mismatch")

// Fanotify is the fanotify(7) backend. Each reported event carries an open
// file descriptor, which is resolved to a path through /proc/self/fd and
// closed before the event is returned.
type Fanotify struct {
	fd     int
	logger *slog.Logger
	buf    []byte
}

// NewFanotify calls fanotify_init for a notification-class group.
func NewFanotify(logger *slog.Logger) (*Fanotify, error) {
	fd, err := unix.FanotifyInit(
		unix.FAN_CLASS_NOTIF|unix.FAN_CLOEXEC|unix.FAN_NONBLOCK,
		unix.O_RDONLY|unix.O_LARGEFILE|unix.O_CLOEXEC,
	)
	if err != nil {
		return nil, fmt.Errorf("fanotify: init: %w", err)
	}
	return &Fanotify{
		fd:     fd,
		logger: logger,
		buf:    make([]byte, 4096*metadataSize),
	}, nil
}

// Mark implements Backend.
func (f *Fanotify) Mark(op Op, m mask.Mask, path string) error {
	flags := uint(unix.FAN_MARK_ADD)
	if op == Remove {
		flags = unix.FAN_MARK_REMOVE
	}
	if err := unix.FanotifyMark(f.fd, flags, uint64(m), unix.AT_FDCWD, path); err != nil {
		return fmt.Errorf("fanotify: mark %s %s on %q: %w", op, m, path, err)
	}
	return nil
}

// ReadEvents implements Backend.
func (f *Fanotify) ReadEvents(ctx context.Context) ([]Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pfd := []unix.PollFd{{Fd: int32(f.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(pfd, int(pollInterval/time.Millisecond))
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("fanotify: poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	nr, err := unix.Read(f.fd, f.buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("fanotify: read: %w", err)
	}
	return f.decode(f.buf[:nr])
}

// decode walks the consecutive event records in buf.
func (f *Fanotify) decode(buf []byte) ([]Event, error) {
	var events []Event
	for off := 0; off+metadataSize <= len(buf); {
		// The kernel aligns records on their largest member, so the cast is
		// safe for a buffer obtained from make.
		meta := (*unix.FanotifyEventMetadata)(unsafe.Pointer(&buf[off]))
		if int(meta.Event_len) < metadataSize || off+int(meta.Event_len) > len(buf) {
			break
		}
		off += int(meta.Event_len)

		if meta.Vers != unix.FANOTIFY_METADATA_VERSION {
			if meta.Fd >= 0 {
				_ = unix.Close(int(meta.Fd))
			}
			return events, fmt.Errorf("%w: got %d, want %d",
				ErrMetadataVersion, meta.Vers, unix.FANOTIFY_METADATA_VERSION)
		}

		if meta.Fd < 0 {
			if mask.Mask(meta.Mask).Has(mask.QOverflow) {
				f.logger.Warn("fanotify: event queue overflow, events were lost")
			}
			continue
		}

		path, err := os.Readlink("/proc/self/fd/" + strconv.Itoa(int(meta.Fd)))
		_ = unix.Close(int(meta.Fd))
		if err != nil {
			f.logger.Debug("fanotify: cannot resolve event path", slog.Any("error", err))
			continue
		}

		events = append(events, Event{
			Path: path,
			Mask: mask.Mask(meta.Mask),
			PID:  int(meta.Pid),
		})
	}
	return events, nil
}

// Close implements Backend.
func (f *Fanotify) Close() error {
	if err := unix.Close(f.fd); err != nil {
		return fmt.Errorf("fanotify: close: %w", err)
	}
	return nil
}
