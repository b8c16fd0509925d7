package scdl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"needledrop/internal/fileutil"
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

// Client wraps scdl CLI interactions.
type Client struct {
	binary  string
	timeout time.Duration
	exec    runner.Executor
}

// New constructs a scdl client.
func New(binary string, timeoutSeconds int, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("scdl binary required")
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

// Download invokes scdl for the given SoundCloud URL, placing output under
// outDir, and returns the path of the newest non-empty .mp3 produced.
func (c *Client) Download(ctx context.Context, url, outDir string, onOutput func(string)) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", errors.New("source url required")
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	runCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	args := []string{"-l", url, "--path", outDir, "--onlymp3", "--addtofile"}
	if err := c.exec.Run(runCtx, c.binary, args, onOutput); err != nil {
		return "", fmt.Errorf("scdl download: %w", err)
	}

	path, err := fileutil.NewestWithExt(outDir, ".mp3")
	if err != nil {
		return "", fmt.Errorf("inspect scdl output: %w", err)
	}
	if path == "" {
		return "", errors.New("scdl produced no output file")
	}
	return path, nil
}
