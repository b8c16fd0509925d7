package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

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

// Client wraps ffmpeg CLI interactions.
type Client struct {
	binary string
	exec   runner.Executor
}

// New constructs an ffmpeg client.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("ffmpeg binary required")
	}
	client := &Client{
		binary: binary,
		exec:   runner.CommandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// ConvertMono downmixes src to a mono waveform at dst. The container is
// inferred from the dst extension; no bitrate negotiation happens so the
// output stays deterministic for the analysis service.
func (c *Client) ConvertMono(ctx context.Context, src, dst string) error {
	args := []string{"-y", "-i", src, "-ac", "1", dst}
	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return fmt.Errorf("ffmpeg mono conversion: %w", err)
	}
	return verifyOutput(dst)
}

// Encode transcodes src to dst using the named audio codec at the given
// bitrate (e.g. "aac_at", "192k").
func (c *Client) Encode(ctx context.Context, src, dst, codec, bitrate string) error {
	args := []string{"-y", "-i", src, "-c:a", codec, "-b:a", bitrate, dst}
	if err := c.exec.Run(ctx, c.binary, args, nil); err != nil {
		return fmt.Errorf("ffmpeg %s encode: %w", codec, err)
	}
	return verifyOutput(dst)
}

func verifyOutput(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("ffmpeg output missing: %w", err)
	}
	if info.Size() == 0 {
		return errors.New("ffmpeg produced empty output")
	}
	return nil
}
