// Package repository owns the single translation worker of the process. It
// starts the worker on first use, keeps it warm while requests arrive and
// stops it after the configured idle timeout.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/seantiz/polyglot/internal/config"
	"github.com/seantiz/polyglot/internal/timer"
	"github.com/seantiz/polyglot/internal/worker"
)

var (
	// ErrInvalidIdleTimeout is returned by New for a non-positive idle timeout.
	ErrInvalidIdleTimeout = errors.New("idle timeout must be greater than zero")

	// ErrClosed is returned by Translate after Close.
	ErrClosed = errors.New("repository closed")
)

// Worker is the subset of a translation worker the repository drives.
type Worker interface {
	Start() error
	Stop() error
	StopIfIdle() (bool, error)
	IsAlive() bool
	IsProcessing() bool
	Pid() int
	Translate(ctx context.Context, text, source, target string, params map[string]any) (string, error)
}

// WorkerFactory builds the repository's worker from the service config.
type WorkerFactory func(cfg config.Config) (Worker, error)

// Scheduler arms the idle check. *timer.Timer implements it.
type Scheduler interface {
	Start(interval time.Duration, fn func()) error
	Cancel()
}

// Options configure a Repository.
type Options struct {
	Config    config.Config
	Logger    *slog.Logger
	Scheduler Scheduler
	Broker    *Broker
}

// Status is a point-in-time view of the repository.
type Status struct {
	Model              string     `json:"model"`
	Alive              bool       `json:"alive"`
	Processing         bool       `json:"processing"`
	Pid                int        `json:"pid,omitempty"`
	LastAccess         *time.Time `json:"last_access,omitempty"`
	IdleTimeoutSeconds float64    `json:"idle_timeout_seconds"`
}

// Repository serializes worker start and stop transitions. Translations run
// outside the lock so that an idle check never waits on a slow command.
type Repository struct {
	cfg    config.Config
	logger *slog.Logger
	worker Worker
	timer  Scheduler
	broker *Broker

	mu     sync.Mutex
	closed bool

	lastAccess atomic.Int64
}

// New builds a repository. It creates the model storage directory, checks
// the idle timeout and builds a stopped worker.
func New(opts Options, create WorkerFactory) (*Repository, error) {
	cfg := opts.Config

	if err := os.MkdirAll(cfg.ModelPath, 0o755); err != nil {
		return nil, fmt.Errorf("create model storage path: %w", err)
	}
	if cfg.IdleTimeout <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIdleTimeout, cfg.IdleTimeout)
	}

	r := &Repository{
		cfg:    cfg,
		logger: opts.Logger,
		timer:  opts.Scheduler,
		broker: opts.Broker,
	}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if r.timer == nil {
		r.timer = timer.New()
	}
	if r.broker == nil {
		r.broker = NewBroker()
	}

	w, err := create(cfg)
	if err != nil {
		return nil, fmt.Errorf("create worker: %w", err)
	}
	r.worker = w
	return r, nil
}

var (
	sharedMu sync.Mutex
	shared   atomic.Pointer[Repository]
)

// Shared returns the process-wide repository, constructing it on the first
// call. Later calls ignore their arguments. A failed construction is not
// cached.
func Shared(opts Options, create WorkerFactory) (*Repository, error) {
	if r := shared.Load(); r != nil {
		return r, nil
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if r := shared.Load(); r != nil {
		return r, nil
	}
	r, err := New(opts, create)
	if err != nil {
		return nil, err
	}
	shared.Store(r)
	return r, nil
}

// Events returns the lifecycle event broker.
func (r *Repository) Events() *Broker {
	return r.broker
}

// Model returns the configured model identifier.
func (r *Repository) Model() string {
	return r.cfg.ModelName
}

// Translate runs one translation, starting the worker first if needed. On
// success the idle check is re-armed so that eviction happens one idle
// timeout after the latest completed request.
//
// A command refused because an eviction won the race is sent once more after
// restarting the worker; the refused command never ran.
func (r *Repository) Translate(ctx context.Context, text, source, target string, params map[string]any) (string, error) {
	start := time.Now()
	defer func() { translateDuration.Observe(time.Since(start).Seconds()) }()

	if err := r.ensureStarted(ctx); err != nil {
		return "", err
	}

	r.logger.DebugContext(ctx, "translating", "source_language", source, "target_language", target)
	out, err := r.worker.Translate(ctx, text, source, target, params)
	if errors.Is(err, worker.ErrNotRunning) {
		if err := r.ensureStarted(ctx); err != nil {
			return "", err
		}
		out, err = r.worker.Translate(ctx, text, source, target, params)
	}
	if err != nil {
		return "", err
	}

	if err := r.timer.Start(r.cfg.IdleTimeout, r.checkIdle); err != nil {
		r.logger.ErrorContext(ctx, "arm idle timer", "error", err)
	}
	r.lastAccess.Store(time.Now().UnixNano())
	r.logger.DebugContext(ctx, "translation completed", "source_language", source, "target_language", target)
	return out, nil
}

func (r *Repository) ensureStarted(ctx context.Context) error {
	if r.worker.IsAlive() {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.worker.IsAlive() {
		return nil
	}

	r.logger.InfoContext(ctx, "starting translation worker", "model", r.cfg.ModelName)
	if err := r.worker.Start(); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	r.publish(EventStarted, "")
	return nil
}

// checkIdle is the timer callback. It stops the worker only if the worker is
// alive and not processing, and otherwise leaves the timer to try again one
// interval later.
func (r *Repository) checkIdle() {
	r.logger.Debug("checking worker idle timeout", "model", r.cfg.ModelName)

	if !r.worker.IsAlive() {
		return
	}
	if r.worker.IsProcessing() {
		r.skipEviction()
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pid := r.worker.Pid()
	stopped, err := r.worker.StopIfIdle()
	if err != nil {
		evictionsTotal.WithLabelValues(resultError).Inc()
		r.logger.Error("idle eviction failed", "model", r.cfg.ModelName, "error", err)
		return
	}
	if !stopped {
		r.skipEviction()
		return
	}

	r.timer.Cancel()
	evictionsTotal.WithLabelValues(resultStopped).Inc()
	r.logger.Info("worker stopped due to idle timeout", "model", r.cfg.ModelName, "worker_pid", pid)
	r.broker.Publish(Event{Type: EventStopped, Model: r.cfg.ModelName, Pid: pid, Reason: "idle", Time: time.Now().UTC()})
}

func (r *Repository) skipEviction() {
	evictionsTotal.WithLabelValues(resultBusy).Inc()
	r.logger.Debug("worker busy, eviction skipped", "model", r.cfg.ModelName)
	r.publish(EventEvictSkipped, "processing")
}

// Evict stops the worker now regardless of the idle timer. A command in
// flight fails with a broken channel error.
func (r *Repository) Evict(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timer.Cancel()
	if !r.worker.IsAlive() {
		return nil
	}

	pid := r.worker.Pid()
	if err := r.worker.Stop(); err != nil {
		evictionsTotal.WithLabelValues(resultError).Inc()
		return fmt.Errorf("stop worker: %w", err)
	}
	evictionsTotal.WithLabelValues(resultAdmin).Inc()
	r.logger.InfoContext(ctx, "worker evicted", "model", r.cfg.ModelName, "worker_pid", pid)
	r.broker.Publish(Event{Type: EventEvicted, Model: r.cfg.ModelName, Pid: pid, Reason: "admin", Time: time.Now().UTC()})
	return nil
}

// Close stops the worker and the idle timer for shutdown. Translate fails
// with ErrClosed afterwards.
func (r *Repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.timer.Cancel()

	pid := r.worker.Pid()
	err := r.worker.Stop()
	r.broker.Publish(Event{Type: EventShutdown, Model: r.cfg.ModelName, Pid: pid, Time: time.Now().UTC()})
	r.broker.Close()
	if err != nil {
		return fmt.Errorf("stop worker: %w", err)
	}
	return nil
}

// Status reports the worker state and the time of the last successful
// translation.
func (r *Repository) Status() Status {
	s := Status{
		Model:              r.cfg.ModelName,
		Alive:              r.worker.IsAlive(),
		Processing:         r.worker.IsProcessing(),
		Pid:                r.worker.Pid(),
		IdleTimeoutSeconds: r.cfg.IdleTimeout.Seconds(),
	}
	if ns := r.lastAccess.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.LastAccess = &t
	}
	return s
}

func (r *Repository) publish(typ, reason string) {
	r.broker.Publish(Event{
		Type:   typ,
		Model:  r.cfg.ModelName,
		Pid:    r.worker.Pid(),
		Reason: reason,
		Time:   time.Now().UTC(),
	})
}
