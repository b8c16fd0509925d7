package config

const (
	defaultTmpDir       = "~/.local/share/needledrop/tmp"
	defaultAudioDir     = "~/.local/share/needledrop/audio"
	defaultLogDir       = "~/.local/share/needledrop/logs"
	defaultLockFile     = "~/.local/share/needledrop/needledropd.lock"
	defaultAPIBind      = "127.0.0.1:3847"
	defaultRedisAddr    = "localhost:6379"
	defaultSearchURL    = "http://localhost:7700"
	defaultSearchIndex  = "tracks"
	defaultAnalysisURL  = "http://localhost:8001/analyze"
	defaultAudioBaseURL = "http://localhost:3847/api/audio"

	defaultAnalysisTimeoutSeconds = 60
	defaultDownloadTimeoutSeconds = 120

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultDownloadConcurrency   = 5
	defaultDownloadAttempts      = 3
	defaultDownloadBackoffMillis = 2000
	defaultAnalyzeConcurrency    = 3
	defaultAnalyzeAttempts       = 2
	defaultAnalyzeBackoffMillis  = 1000
	defaultKeepCompleted         = 10
	defaultKeepFailed            = 50
	defaultPollIntervalMillis    = 1000
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			TmpDir:   defaultTmpDir,
			AudioDir: defaultAudioDir,
			LogDir:   defaultLogDir,
			LockFile: defaultLockFile,
			APIBind:  defaultAPIBind,
		},
		Redis: Redis{
			Addr: defaultRedisAddr,
		},
		Search: Search{
			Enabled: true,
			URL:     defaultSearchURL,
			Index:   defaultSearchIndex,
		},
		Analysis: Analysis{
			ServiceURL:     defaultAnalysisURL,
			AudioBaseURL:   defaultAudioBaseURL,
			TimeoutSeconds: defaultAnalysisTimeoutSeconds,
		},
		Downloaders: Downloaders{
			FreyrBin:       "freyr",
			SpotdlBin:      "spotdl",
			YtdlpBin:       "yt-dlp",
			ScdlBin:        "scdl",
			FfmpegBin:      "ffmpeg",
			TimeoutSeconds: defaultDownloadTimeoutSeconds,
		},
		Queues: Queues{
			Download: QueueSettings{
				Concurrency:    defaultDownloadConcurrency,
				Attempts:       defaultDownloadAttempts,
				BackoffMillis:  defaultDownloadBackoffMillis,
				KeepCompleted:  defaultKeepCompleted,
				KeepFailed:     defaultKeepFailed,
				PollIntervalMS: defaultPollIntervalMillis,
			},
			Analyze: QueueSettings{
				Concurrency:    defaultAnalyzeConcurrency,
				Attempts:       defaultAnalyzeAttempts,
				BackoffMillis:  defaultAnalyzeBackoffMillis,
				KeepCompleted:  defaultKeepCompleted,
				KeepFailed:     defaultKeepFailed,
				PollIntervalMS: defaultPollIntervalMillis,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
