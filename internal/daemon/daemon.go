package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"avmerge/internal/api"
	"avmerge/internal/config"
	"avmerge/internal/deps"
	"avmerge/internal/history"
	"avmerge/internal/job"
	"avmerge/internal/logging"
	"avmerge/internal/matcher"
	"avmerge/internal/notifications"
	"avmerge/internal/preflight"
	"avmerge/internal/watcher"
)

// Daemon hosts the job runner and its control surfaces and enforces
// single-instance execution.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *history.Store
	runner  *job.Runner
	matcher *matcher.Matcher
	service *api.MergeService
	logPath string

	lockPath string
	lock     *flock.Flock

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// stateMu guards the pointers below; handlers read them while mu may
	// be held by Stop.
	stateMu sync.Mutex
	watcher *watcher.Watcher
	api     *apiServer
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	LockFilePath string
	HistoryPath  string
	Watching     bool
	Pending      []watcher.Arrival
	Job          job.Status
	Dependencies []deps.Status
}

// New constructs a daemon. store may be nil when history is disabled.
func New(cfg *config.Config, store *history.Store, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}

	var recorder job.Recorder
	if store != nil {
		recorder = store
	}
	recorder = notifications.NewRecorder(recorder, notifications.NewService(cfg), logger)
	runner := job.NewRunnerFromConfig(cfg, recorder, logger)
	m := matcher.New(cfg.Matching.AudioExtensions, cfg.Matching.VideoExtensions, logging.NewComponentLogger(logger, "matcher"))

	baseCtx, baseCancel := context.WithCancel(context.Background())
	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		runner:     runner,
		matcher:    m,
		logPath:    cfg.LogPath(),
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
	}

	var hist api.HistoryReader
	if store != nil {
		hist = store
	}
	svc, err := api.NewMergeService(api.MergeServiceConfig{
		Context: baseCtx,
		Config:  cfg,
		Runner:  runner,
		Matcher: m,
		History: hist,
		Logger:  logger,
	})
	if err != nil {
		baseCancel()
		return nil, err
	}
	d.service = svc
	return d, nil
}

// Start acquires the daemon lock and launches the HTTP API and, when
// configured, the directory watcher.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another avmerge daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if d.store != nil {
		if n, err := d.store.MarkInterrupted(d.ctx, time.Now()); err != nil {
			d.logger.Warn("history cleanup failed", logging.Error(err))
		} else if n > 0 {
			d.logger.Info("closed interrupted batches", logging.Int64("count", n))
		}
	}

	srv, err := newAPIServer(d.cfg, d, d.logger)
	if err == nil {
		err = srv.start(d.ctx)
	}
	if err != nil {
		d.abortStart()
		return fmt.Errorf("start api server: %w", err)
	}
	d.setAPI(srv)

	if d.cfg.Watch.Enabled {
		if err := d.startWatcher(); err != nil {
			srv.stop()
			d.setAPI(nil)
			d.abortStart()
			return fmt.Errorf("start watcher: %w", err)
		}
	}

	d.running.Store(true)
	d.logger.Info("avmerge daemon started",
		logging.String("lock", d.lockPath),
		logging.Bool("watch", d.cfg.Watch.Enabled),
		logging.Bool("auto_merge", d.cfg.Watch.AutoMerge),
	)
	return nil
}

func (d *Daemon) abortStart() {
	_ = d.lock.Unlock()
	d.cancel()
	d.ctx = nil
	d.cancel = nil
}

func (d *Daemon) startWatcher() error {
	w, err := watcher.New(watcher.Config{
		AudioDir:        d.cfg.Paths.AudioDir,
		VideoDir:        d.cfg.Paths.VideoDir,
		AudioExtensions: d.cfg.Matching.AudioExtensions,
		VideoExtensions: d.cfg.Matching.VideoExtensions,
		Settle:          time.Duration(d.cfg.Watch.SettleSeconds) * time.Second,
		Logger:          logging.NewComponentLogger(d.logger, "watcher"),
	})
	if err != nil {
		return err
	}
	d.stateMu.Lock()
	d.watcher = w
	d.stateMu.Unlock()
	ctx := d.ctx
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := w.Run(ctx); err != nil {
			d.logger.Warn("watcher stopped", logging.Error(err))
		}
	}()
	if d.cfg.Watch.AutoMerge {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.runAutoMerge(ctx, w)
		}()
	}
	return nil
}

// Stop interrupts any running batch, stops background services, and
// releases the daemon lock.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return
	}

	if d.runner.Busy() {
		d.runner.Stop()
		grace := time.Duration(d.cfg.FFmpeg.KillGraceSeconds)*time.Second*2 + 5*time.Second
		waitCtx, cancel := context.WithTimeout(context.Background(), grace)
		if err := d.runner.Wait(waitCtx); err != nil {
			d.logger.Warn("batch did not stop in time", logging.Error(err))
		}
		cancel()
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.stateMu.Lock()
	srv, w := d.api, d.watcher
	d.api, d.watcher = nil, nil
	d.stateMu.Unlock()
	if srv != nil {
		srv.stop()
	}
	if w != nil {
		_ = w.Close()
	}
	d.wg.Wait()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("avmerge daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	d.baseCancel()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Service returns the merge control service shared by the API and IPC.
func (d *Daemon) Service() *api.MergeService {
	return d.service
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// APIAddress returns the bound HTTP address, or "" when the API is not listening.
func (d *Daemon) APIAddress() string {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		Job:          d.runner.Status(),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
	if d.store != nil {
		status.HistoryPath = d.store.Path()
	}
	d.stateMu.Lock()
	if d.watcher != nil {
		status.Watching = true
		status.Pending = d.watcher.Pending()
	}
	d.stateMu.Unlock()
	return status
}

func (d *Daemon) setAPI(srv *apiServer) {
	d.stateMu.Lock()
	d.api = srv
	d.stateMu.Unlock()
}
