package job

import (
	"log/slog"
	"time"

	"avmerge/internal/config"
	"avmerge/internal/ffmpeg"
	"avmerge/internal/media/ffprobe"
)

// NewRunnerFromConfig builds a runner that shells out to the configured
// ffmpeg and probes durations with ffprobe. recorder may be nil.
func NewRunnerFromConfig(cfg *config.Config, recorder Recorder, logger *slog.Logger) *Runner {
	grace := time.Duration(cfg.FFmpeg.KillGraceSeconds) * time.Second
	return NewRunner(Config{
		Executor: ffmpeg.NewRunner(cfg.FFmpegBinary(), grace, logger),
		Binary:   cfg.FFmpegBinary(),
		Prober:   ffprobe.Prober{Binary: cfg.FFprobeBinary()},
		Recorder: recorder,
		Logger:   logger,
	})
}
