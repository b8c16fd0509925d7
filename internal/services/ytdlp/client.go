package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"needledrop/internal/services/runner"
)

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec runner.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// Client wraps yt-dlp CLI interactions.
type Client struct {
	binary  string
	timeout time.Duration
	exec    runner.Executor
}

// New constructs a yt-dlp client.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("yt-dlp binary required")
	}
	client := &Client{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    runner.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Download extracts best audio from the given URL into destPath (an .m4a
// output template) and returns destPath once a non-empty file exists there.
func (c *Client) Download(ctx context.Context, url, destPath string, onOutput func(string)) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("source url required")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"-f", "bestaudio/best", "-x", "--audio-format", "m4a", "-o", destPath, url}
	if err := c.exec.Run(runCtx, c.binary, args, onOutput); err != nil {
		return "", fmt.Errorf("yt-dlp extract: %w", err)
	}

	info, err := os.Stat(destPath)
	if err != nil || info.Size() == 0 {
		return "", errors.New("yt-dlp produced no output file")
	}
	return destPath, nil
}
