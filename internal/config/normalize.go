package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeRedis()
	c.normalizeDatabase()
	c.normalizeSearch()
	c.normalizeAnalysis()
	c.normalizeDownloaders()
	c.normalizeQueues()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.TmpDir, err = expandPath(c.Paths.TmpDir); err != nil {
		return fmt.Errorf("paths.tmp_dir: %w", err)
	}
	if c.Paths.AudioDir, err = expandPath(c.Paths.AudioDir); err != nil {
		return fmt.Errorf("paths.audio_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if c.Paths.LockFile, err = expandPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeRedis() {
	c.Redis.Addr = strings.TrimSpace(c.Redis.Addr)
	if c.Redis.Addr == "" {
		if value, ok := os.LookupEnv("REDIS_ADDR"); ok {
			c.Redis.Addr = strings.TrimSpace(value)
		}
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = defaultRedisAddr
	}
}

func (c *Config) normalizeDatabase() {
	c.Database.URL = strings.TrimSpace(c.Database.URL)
	if c.Database.URL == "" {
		if value, ok := os.LookupEnv("DATABASE_URL"); ok {
			c.Database.URL = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeSearch() {
	c.Search.URL = strings.TrimRight(strings.TrimSpace(c.Search.URL), "/")
	if c.Search.APIKey == "" {
		if value, ok := os.LookupEnv("MEILI_MASTER_KEY"); ok {
			c.Search.APIKey = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Search.Index) == "" {
		c.Search.Index = defaultSearchIndex
	}
}

func (c *Config) normalizeAnalysis() {
	c.Analysis.ServiceURL = strings.TrimSpace(c.Analysis.ServiceURL)
	if c.Analysis.ServiceURL == "" {
		if value, ok := os.LookupEnv("ESSENTIA_API_URL"); ok {
			c.Analysis.ServiceURL = strings.TrimSpace(value)
		}
	}
	c.Analysis.AudioBaseURL = strings.TrimRight(strings.TrimSpace(c.Analysis.AudioBaseURL), "/")
	if c.Analysis.TimeoutSeconds <= 0 {
		c.Analysis.TimeoutSeconds = defaultAnalysisTimeoutSeconds
	}
}

func (c *Config) normalizeDownloaders() {
	d := &c.Downloaders
	for _, bin := range []*string{&d.FreyrBin, &d.SpotdlBin, &d.YtdlpBin, &d.ScdlBin, &d.FfmpegBin} {
		*bin = strings.TrimSpace(*bin)
	}
	if d.TimeoutSeconds <= 0 {
		d.TimeoutSeconds = defaultDownloadTimeoutSeconds
	}
}

func (c *Config) normalizeQueues() {
	normalizeQueueSettings(&c.Queues.Download, Default().Queues.Download)
	normalizeQueueSettings(&c.Queues.Analyze, Default().Queues.Analyze)
}

func normalizeQueueSettings(qs *QueueSettings, fallback QueueSettings) {
	if qs.Concurrency <= 0 {
		qs.Concurrency = fallback.Concurrency
	}
	if qs.Attempts <= 0 {
		qs.Attempts = fallback.Attempts
	}
	if qs.BackoffMillis <= 0 {
		qs.BackoffMillis = fallback.BackoffMillis
	}
	if qs.KeepCompleted <= 0 {
		qs.KeepCompleted = fallback.KeepCompleted
	}
	if qs.KeepFailed <= 0 {
		qs.KeepFailed = fallback.KeepFailed
	}
	if qs.PollIntervalMS <= 0 {
		qs.PollIntervalMS = fallback.PollIntervalMS
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
