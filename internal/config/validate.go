package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateSearch(); err != nil {
		return err
	}
	if err := c.validateAnalysis(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.TmpDir == "" {
		return errors.New("paths.tmp_dir must be set")
	}
	if c.Paths.AudioDir == "" {
		return errors.New("paths.audio_dir must be set")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.Addr == "" {
		return errors.New("redis.addr must be set")
	}
	if c.Redis.DB < 0 {
		return errors.New("redis.db must not be negative")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	if c.Database.URL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/needledrop/config.toml"
		}
		return fmt.Errorf("database.url is required. Set DATABASE_URL env var or edit %s (create with 'needledrop config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateSearch() error {
	if !c.Search.Enabled {
		return nil
	}
	if c.Search.URL == "" {
		return errors.New("search.url must be set when search is enabled")
	}
	if c.Search.Index == "" {
		return errors.New("search.index must be set when search is enabled")
	}
	return nil
}

func (c *Config) validateAnalysis() error {
	if c.Analysis.ServiceURL == "" {
		return errors.New("analysis.service_url must be set")
	}
	if c.Analysis.AudioBaseURL == "" {
		return errors.New("analysis.audio_base_url must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
