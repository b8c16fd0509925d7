package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	TmpDir   string `toml:"tmp_dir"`
	AudioDir string `toml:"audio_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	LockFile string `toml:"lock_file"`
}

// Redis contains connection settings for the queue and job status store.
type Redis struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Database contains the Postgres connection settings for the track record
// store and per-friend download settings.
type Database struct {
	URL string `toml:"url"`
}

// Search contains Meilisearch settings for the track index.
type Search struct {
	Enabled bool   `toml:"enabled"`
	URL     string `toml:"url"`
	APIKey  string `toml:"api_key"`
	Index   string `toml:"index"`
}

// Analysis contains settings for the external feature-extraction service.
type Analysis struct {
	ServiceURL     string `toml:"service_url"`
	AudioBaseURL   string `toml:"audio_base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Downloaders contains binary names and timeouts for the acquisition tools.
type Downloaders struct {
	FreyrBin       string `toml:"freyr_bin"`
	SpotdlBin      string `toml:"spotdl_bin"`
	YtdlpBin       string `toml:"ytdlp_bin"`
	ScdlBin        string `toml:"scdl_bin"`
	FfmpegBin      string `toml:"ffmpeg_bin"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// QueueSettings describes retry and concurrency behavior for one queue.
type QueueSettings struct {
	Concurrency    int `toml:"concurrency"`
	Attempts       int `toml:"attempts"`
	BackoffMillis  int `toml:"backoff_millis"`
	KeepCompleted  int `toml:"keep_completed"`
	KeepFailed     int `toml:"keep_failed"`
	PollIntervalMS int `toml:"poll_interval_millis"`
}

// Queues contains the per-queue worker settings.
type Queues struct {
	Download QueueSettings `toml:"download"`
	Analyze  QueueSettings `toml:"analyze"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for needledrop.
//
// Configuration sections by subsystem:
//   - Paths: temp/audio/log directories, API bind address, daemon lock file
//   - Redis: queue and job-status store connection
//   - Database: Postgres track record store
//   - Search: Meilisearch track index
//   - Analysis: feature-extraction service endpoint and timeout
//   - Downloaders: acquisition tool binaries and child-process timeout
//   - Queues: per-queue concurrency, attempts, and backoff
//   - Logging: log format and level
type Config struct {
	Paths       Paths       `toml:"paths"`
	Redis       Redis       `toml:"redis"`
	Database    Database    `toml:"database"`
	Search      Search      `toml:"search"`
	Analysis    Analysis    `toml:"analysis"`
	Downloaders Downloaders `toml:"downloaders"`
	Queues      Queues      `toml:"queues"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/needledrop/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized. The boolean reports
// whether a config file was found at the resolved path.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	projectPath, err := filepath.Abs("needledrop.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		path = filepath.Join(home, path[2:])
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return abs, nil
}

// EnsureDirectories creates the temp, audio, and log directories. Creation is
// idempotent so concurrent workers can race on it safely.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.TmpDir, c.Paths.AudioDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
