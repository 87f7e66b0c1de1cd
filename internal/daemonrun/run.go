// Package daemonrun hosts the long-running daemon process shared by
// `avmerge daemon run` and the avmerged binary.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"avmerge/internal/config"
	"avmerge/internal/daemon"
	"avmerge/internal/history"
	"avmerge/internal/ipc"
	"avmerge/internal/logging"
	"avmerge/internal/preflight"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	SocketPath  string
	Development bool
}

// PIDPath returns the pid file the daemon writes under the log directory.
func PIDPath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "avmerged.pid")
}

// Run starts the avmerge daemon and blocks until a signal arrives or a
// client requests shutdown over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	level := cfg.Logging.Level
	if strings.TrimSpace(opts.LogLevel) != "" {
		level = opts.LogLevel
	}
	files := []string{cfg.LogPath()}
	if cfg.Logging.File != "" {
		files = append(files, cfg.Logging.File)
	}
	logger, closeLogs, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		Console:     os.Stdout,
		Files:       files,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogs()

	logDependencySnapshot(signalCtx, logger, cfg)
	pidPath := PIDPath(cfg)
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg)
		if err != nil {
			logger.Error("open history store", logging.Error(err))
			return err
		}
	}

	d, err := daemon.New(cfg, store, logger)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	socketPath := cfg.SocketPath()
	if strings.TrimSpace(opts.SocketPath) != "" {
		socketPath = opts.SocketPath
	}
	ipcServer, err := ipc.NewServer(signalCtx, socketPath, d, logger, cancel)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running avmerged and the api_bind address"),
			logging.String(logging.FieldImpact, "merges cannot be started"),
		)
		return err
	}
	logger.Info("avmerge daemon ready",
		logging.String("socket", socketPath),
		logging.String("api", d.APIAddress()),
		logging.String("log", cfg.LogPath()),
	)

	<-signalCtx.Done()
	logger.Info("avmerge daemon shutting down")
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(ctx context.Context, logger *slog.Logger, cfg *config.Config) {
	attrs := []logging.Attr{logging.String(logging.FieldEventType, "dependency_snapshot")}
	for _, dep := range preflight.CheckSystemDeps(ctx, cfg) {
		key := strings.ToLower(dep.Name)
		attrs = append(attrs,
			logging.Bool(key+"_available", dep.Available),
			logging.String(key+"_binary", dep.Command),
		)
		if dep.Version != "" {
			attrs = append(attrs, logging.String(key+"_version", dep.Version))
		}
	}
	attrs = append(attrs,
		logging.Bool("watch_enabled", cfg.Watch.Enabled),
		logging.Bool("history_enabled", cfg.History.Enabled),
	)
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
