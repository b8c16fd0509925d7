package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gofrs/flock"

	"needledrop/internal/config"
	"needledrop/internal/httpapi"
	"needledrop/internal/jobqueue"
	"needledrop/internal/logging"
)

// Components are the already-wired moving parts the daemon supervises.
type Components struct {
	Server *httpapi.Server
	Pools  []*jobqueue.Pool
	// Closers release shared clients (database pool, redis) on shutdown,
	// in order.
	Closers []func()
}

// Daemon coordinates the worker pools and the HTTP API and enforces
// single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger
	comps  Components

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	apiErr  chan error
}

// New constructs a daemon around pre-built components.
func New(cfg *config.Config, logger *slog.Logger, comps Components) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("configuration required")
	}
	if comps.Server == nil {
		return nil, errors.New("http server required")
	}
	if len(comps.Pools) == 0 {
		return nil, errors.New("at least one worker pool required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		comps:    comps,
		lockPath: cfg.Paths.LockFile,
		lock:     flock.New(cfg.Paths.LockFile),
	}, nil
}

// Start acquires the instance lock, launches the worker pools, and
// begins serving the API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another needledrop daemon instance is already running")
	}

	ctx, d.cancel = context.WithCancel(ctx)
	for i, pool := range d.comps.Pools {
		if err := pool.Start(ctx); err != nil {
			for _, started := range d.comps.Pools[:i] {
				started.Stop()
			}
			d.cancel()
			_ = d.lock.Unlock()
			return fmt.Errorf("start worker pool: %w", err)
		}
	}

	d.apiErr = make(chan error, 1)
	go func() {
		d.apiErr <- d.comps.Server.Start(d.cfg.Paths.APIBind)
	}()

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("bind", d.cfg.Paths.APIBind),
		logging.String("lock", d.lockPath))
	return nil
}

// Wait blocks until the API listener exits. Returns nil on clean
// shutdown.
func (d *Daemon) Wait() error {
	if d.apiErr == nil {
		return errors.New("daemon not started")
	}
	return <-d.apiErr
}

// Stop shuts everything down in reverse dependency order: API first so
// no new jobs arrive, then the pools, then the shared clients.
func (d *Daemon) Stop(ctx context.Context) {
	if !d.running.Load() {
		return
	}
	if err := d.comps.Server.Shutdown(ctx); err != nil {
		d.logger.Warn("api shutdown failed", logging.Error(err))
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	for _, pool := range d.comps.Pools {
		pool.Stop()
	}
	for _, closer := range d.comps.Closers {
		closer()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("daemon stopped")
}

// Running reports whether Start has succeeded and Stop has not run.
func (d *Daemon) Running() bool { return d.running.Load() }
