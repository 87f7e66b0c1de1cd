package watcher

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"avmerge/internal/logging"
	"avmerge/internal/media"
	"avmerge/internal/services"
)

// Arrival is a media file that appeared or changed since the last Drain.
type Arrival struct {
	Path string     `json:"path"`
	Kind media.Kind `json:"kind"`
	At   time.Time  `json:"at"`
}

// Config configures a Watcher. AudioDir and VideoDir may be the same directory.
type Config struct {
	AudioDir        string
	VideoDir        string
	AudioExtensions []string
	VideoExtensions []string
	Settle          time.Duration
	Logger          *slog.Logger
}

// Watcher buffers file arrivals from the capture directories.
type Watcher struct {
	fs        *fsnotify.Watcher
	audioExts []string
	videoExts []string
	settle    time.Duration
	logger    *slog.Logger
	settled   chan struct{}

	mu      sync.Mutex
	pending map[string]Arrival
}

// New starts watching the configured directories. Both must exist.
func New(cfg Config) (*Watcher, error) {
	if strings.TrimSpace(cfg.AudioDir) == "" || strings.TrimSpace(cfg.VideoDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "watcher", "init", "audio and video directories are required", nil)
	}
	if cfg.Settle < 0 {
		cfg.Settle = 0
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "watcher", "init", "create fsnotify watcher", err)
	}
	dirs := []string{filepath.Clean(cfg.AudioDir)}
	if video := filepath.Clean(cfg.VideoDir); video != dirs[0] {
		dirs = append(dirs, video)
	}
	for _, dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return nil, services.Wrap(services.ErrNotFound, "watcher", "init", "watch "+dir, err)
		}
	}

	logger.Info("watching capture directories",
		logging.Any("dirs", dirs),
		logging.Duration("settle", cfg.Settle),
		logging.String(logging.FieldEventType, "watch_started"),
	)
	return &Watcher{
		fs:        fsw,
		audioExts: cfg.AudioExtensions,
		videoExts: cfg.VideoExtensions,
		settle:    cfg.Settle,
		logger:    logger,
		settled:   make(chan struct{}, 1),
		pending:   make(map[string]Arrival),
	}, nil
}

// Settled receives a value each time pending arrivals have been quiet for
// the settle period.
func (w *Watcher) Settled() <-chan struct{} {
	return w.settled
}

// Pending returns the buffered arrivals without clearing them.
func (w *Watcher) Pending() []Arrival {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sortedLocked()
}

// Drain returns and clears the buffered arrivals.
func (w *Watcher) Drain() []Arrival {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.sortedLocked()
	w.pending = make(map[string]Arrival)
	return out
}

// Run processes filesystem events until ctx ends or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if w.handle(event) {
				timer.Reset(w.settle)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				logging.WarnWithContext(w.logger, "watch event overflow", "watch_overflow",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "some arrivals may be missed; run a manual merge"),
				)
				continue
			}
			w.logger.Warn("watch error", logging.Error(err), logging.String(logging.FieldEventType, "watch_error"))
		case <-timer.C:
			if len(w.Pending()) == 0 {
				continue
			}
			select {
			case w.settled <- struct{}{}:
			default:
			}
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fs.Close()
}

// handle updates the buffer and reports whether the settle timer should restart.
func (w *Watcher) handle(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return false
	}
	kind, ok := w.classify(event.Name)
	if !ok {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		delete(w.pending, event.Name)
		return false
	case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
		if _, seen := w.pending[event.Name]; !seen {
			w.logger.Debug("file arrived", logging.String("path", event.Name), logging.String("kind", string(kind)))
		}
		w.pending[event.Name] = Arrival{Path: event.Name, Kind: kind, At: time.Now()}
		return true
	}
	return false
}

func (w *Watcher) classify(path string) (media.Kind, bool) {
	switch {
	case media.HasExtension(path, w.audioExts):
		return media.KindAudio, true
	case media.HasExtension(path, w.videoExts):
		return media.KindVideo, true
	}
	return "", false
}

func (w *Watcher) sortedLocked() []Arrival {
	out := make([]Arrival, 0, len(w.pending))
	for _, a := range w.pending {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
