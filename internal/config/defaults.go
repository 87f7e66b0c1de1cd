package config

const (
	defaultAudioDir         = "~/avmerge/audio"
	defaultVideoDir         = "~/avmerge/video"
	defaultOutputDir        = "~/avmerge/output"
	defaultLogDir           = "~/.local/share/avmerge/logs"
	defaultHistoryPath      = "~/.local/share/avmerge/history.db"
	defaultAPIBind          = "127.0.0.1:8000"
	defaultFFmpegBinary     = "ffmpeg"
	defaultFFprobeBinary    = "ffprobe"
	defaultKillGraceSeconds = 5
	defaultSettleSeconds    = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultAudioCodec       = "aac"
	defaultVideoCodec       = "copy"
	defaultOutputFormat     = "mp4"
	defaultSocialWidth      = 1080
	defaultSocialHeight     = 1080
	defaultSocialFormat     = "mp4"
	defaultNotifyTimeout    = 10
)

var (
	defaultAudioExtensions = []string{".mp3", ".m4a", ".aac", ".wav", ".flac", ".ogg", ".opus"}
	defaultVideoExtensions = []string{".mkv", ".mp4", ".mov", ".webm", ".avi"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AudioDir:  defaultAudioDir,
			VideoDir:  defaultVideoDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Merge: Merge{
			KeepOriginalTrack: true,
			AudioCodec:        defaultAudioCodec,
			VideoCodec:        defaultVideoCodec,
			OutputFormat:      defaultOutputFormat,
			SocialWidth:       defaultSocialWidth,
			SocialHeight:      defaultSocialHeight,
			SocialFormat:      defaultSocialFormat,
		},
		Matching: Matching{
			AudioExtensions: append([]string(nil), defaultAudioExtensions...),
			VideoExtensions: append([]string(nil), defaultVideoExtensions...),
		},
		FFmpeg: FFmpeg{
			Binary:           defaultFFmpegBinary,
			FFprobeBinary:    defaultFFprobeBinary,
			KillGraceSeconds: defaultKillGraceSeconds,
		},
		Watch: Watch{
			SettleSeconds: defaultSettleSeconds,
		},
		History: History{
			Enabled: true,
			Path:    defaultHistoryPath,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNotifyTimeout,
			OnSuccess:             true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
