// Package daemon contains the facron event loop. It owns the watch backend
// and the active configuration, marks every configured path, hands each
// event to the dispatcher and applies reload requests between batches.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/facron/facron/internal/conf"
	"github.com/facron/facron/internal/dispatch"
	"github.com/facron/facron/internal/mask"
	"github.com/facron/facron/internal/metrics"
	"github.com/facron/facron/internal/watch"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("daemon: already running")

// Daemon is the single-goroutine event loop. Only RequestReload, Health and
// HealthzHandler may be called from other goroutines.
type Daemon struct {
	conf       *conf.Conf
	backend    watch.Backend
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
	notifier   Notifier

	reload chan struct{}

	mu          sync.RWMutex
	running     bool
	startTime   time.Time
	lastEventAt time.Time
	lastReload  time.Time
	entries     int
}

// Option is a functional option for Daemon construction.
type Option func(*Daemon)

// WithMetrics registers the counters the loop updates.
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Daemon) { d.metrics = m }
}

// WithNotifier replaces the service manager notifier.
func WithNotifier(n Notifier) Option {
	return func(d *Daemon) { d.notifier = n }
}

// New creates a Daemon. The backend must already be initialised; Run takes
// ownership of it and closes it on return.
func New(c *conf.Conf, backend watch.Backend, dispatcher *dispatch.Dispatcher, logger *slog.Logger, opts ...Option) *Daemon {
	d := &Daemon{
		conf:       c,
		backend:    backend,
		dispatcher: dispatcher,
		logger:     logger,
		metrics:    metrics.New(),
		notifier:   SystemdNotifier{},
		reload:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.metrics.GaugeFunc("facron_up", "Whether the event loop is running.", func() int64 {
		if d.Health().Status == "ok" {
			return 1
		}
		return 0
	})
	d.metrics.GaugeFunc("facron_config_entries", "Number of entries in the active configuration.", func() int64 {
		return int64(d.Health().Entries)
	})
	return d
}

// RequestReload asks the loop to re-read the configuration at its next safe
// point. Requests made while one is pending are coalesced. It never blocks.
func (d *Daemon) RequestReload() {
	select {
	case d.reload <- struct{}{}:
	default:
	}
}

// Run loads the configuration, marks every entry and processes events until
// ctx is cancelled or the backend fails. A cancelled context is a clean stop
// and returns nil.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return ErrAlreadyRunning
	}
	d.running = true
	d.startTime = time.Now()
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	d.logger.Info("starting facron", slog.String("conf_path", d.conf.Path()))

	if err := d.conf.Load(); err != nil {
		d.logger.Warn("continuing without entries", slog.Any("error", err))
	}
	d.metrics.ConfigDiscardedLines.Add(int64(d.conf.LineErrors()))
	d.install(d.conf.Entries())

	d.notify(StateReady)
	d.logger.Info("facron started", slog.Int("entries", d.conf.Entries().Len()))

	err := d.loop(ctx)
	d.shutdown()
	return err
}

func (d *Daemon) loop(ctx context.Context) error {
	for {
		// Safe point: no batch is being dispatched.
		select {
		case <-ctx.Done():
			return nil
		case <-d.reload:
			d.applyReload()
		default:
		}

		events, err := d.backend.ReadEvents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("daemon: read events: %w", err)
		}
		for _, ev := range events {
			d.handle(ctx, ev)
		}
	}
}

func (d *Daemon) handle(ctx context.Context, ev watch.Event) {
	d.metrics.Events.Add(1)
	d.mu.Lock()
	d.lastEventAt = time.Now()
	d.mu.Unlock()

	if ev.Mask.Has(mask.QOverflow) {
		d.logger.Warn("event queue overflow, events were lost")
		return
	}
	d.logger.Debug("event received",
		slog.String("path", ev.Path),
		slog.String("mask", ev.Mask.String()),
		slog.Int("pid", ev.PID),
	)
	d.dispatcher.Handle(ctx, ev.Path, ev.Mask, ev.PID)
}

// applyReload re-reads the configuration. When the file cannot be opened the
// current entries stay marked and installed.
func (d *Daemon) applyReload() {
	d.notify(StateReloading)
	defer d.notify(StateReady)

	old, err := d.conf.Reload()
	if err != nil {
		d.metrics.ConfigReloadErrors.Add(1)
		d.logger.Error("reload failed, keeping current configuration", slog.Any("error", err))
		return
	}
	d.metrics.ConfigReloads.Add(1)
	d.metrics.ConfigDiscardedLines.Add(int64(d.conf.LineErrors()))

	d.markAll(watch.Remove, old)
	d.install(d.conf.Entries())

	d.mu.Lock()
	d.lastReload = time.Now()
	d.mu.Unlock()

	d.logger.Info("configuration reloaded",
		slog.Int("previous_entries", old.Len()),
		slog.Int("entries", d.conf.Entries().Len()),
	)
}

func (d *Daemon) install(entries *conf.Entries) {
	d.markAll(watch.Add, entries)
	d.dispatcher.Install(entries)
	d.mu.Lock()
	d.entries = entries.Len()
	d.mu.Unlock()
}

// markAll applies op to every group of every entry. Failures are logged and
// counted; the remaining marks are still attempted.
func (d *Daemon) markAll(op watch.Op, entries *conf.Entries) {
	for e := entries.First(); e != nil; e = e.Next() {
		for _, g := range e.Groups {
			if err := d.backend.Mark(op, g, e.Path); err != nil {
				d.metrics.MarkErrors.Add(1)
				d.logger.Warn("mark failed",
					slog.String("op", op.String()),
					slog.String("path", e.Path),
					slog.String("mask", g.String()),
					slog.Any("error", err),
				)
			}
		}
	}
}

func (d *Daemon) shutdown() {
	d.notify(StateStopping)
	d.markAll(watch.Remove, d.conf.Entries())
	if err := d.backend.Close(); err != nil {
		d.logger.Warn("error closing watch backend", slog.Any("error", err))
	}
	d.logger.Info("facron stopped")
}

func (d *Daemon) notify(state string) {
	if err := d.notifier.Notify(state); err != nil {
		d.logger.Debug("service manager notification failed",
			slog.String("state", state), slog.Any("error", err))
	}
}

// HealthStatus is the payload returned by the /healthz endpoint.
type HealthStatus struct {
	Status       string  `json:"status"`
	UptimeS      float64 `json:"uptime_s"`
	ConfPath     string  `json:"conf_path"`
	Entries      int     `json:"entries"`
	LastEventAt  string  `json:"last_event_at,omitempty"`
	LastReloadAt string  `json:"last_reload_at,omitempty"`
}

// Health returns a snapshot of the current daemon state.
func (d *Daemon) Health() HealthStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()

	h := HealthStatus{
		Status:   "stopped",
		ConfPath: d.conf.Path(),
		Entries:  d.entries,
	}
	if d.running {
		h.Status = "ok"
		h.UptimeS = time.Since(d.startTime).Seconds()
	}
	if !d.lastEventAt.IsZero() {
		h.LastEventAt = d.lastEventAt.UTC().Format(time.RFC3339)
	}
	if !d.lastReload.IsZero() {
		h.LastReloadAt = d.lastReload.UTC().Format(time.RFC3339)
	}
	return h
}

// HealthzHandler is an http.HandlerFunc that responds with the daemon's
// health status as a JSON object. A stopped daemon answers 503.
func (d *Daemon) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	h := d.Health()
	w.Header().Set("Content-Type", "application/json")
	if h.Status == "ok" {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(h); err != nil {
		d.logger.Warn("healthz: failed to encode response", slog.Any("error", err))
	}
}
