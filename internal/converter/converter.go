package converter

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"needledrop/internal/fileutil"
	"needledrop/internal/logging"
	"needledrop/internal/services"
)

// Transcoder abstracts the ffmpeg operations the converter needs.
type Transcoder interface {
	ConvertMono(ctx context.Context, src, dst string) error
	Encode(ctx context.Context, src, dst, codec, bitrate string) error
}

// Artifacts describes the files produced for one track.
type Artifacts struct {
	OriginalPath string
	OriginalName string
	PlaybackPath string
	PlaybackName string
	WavPath      string
	WavName      string
}

type encoderStep struct {
	codec string
	ext   string
}

// Playback encoders in preference order. aac_at is the macOS AudioToolbox
// encoder; builds without it fall through to the stock aac encoder, and
// libmp3lame is the floor every ffmpeg build carries.
var encoderChain = []encoderStep{
	{codec: "aac_at", ext: ".m4a"},
	{codec: "aac", ext: ".m4a"},
	{codec: "libmp3lame", ext: ".mp3"},
}

const playbackBitrate = "192k"

// Option configures a Converter.
type Option func(*Converter)

// WithNamer overrides artifact base-name generation (tests).
func WithNamer(namer func() string) Option {
	return func(c *Converter) {
		if namer != nil {
			c.namer = namer
		}
	}
}

// Converter produces playback and analysis artifacts in the audio
// directory from a freshly downloaded source file.
type Converter struct {
	audioDir   string
	transcoder Transcoder
	logger     *slog.Logger
	namer      func() string
}

// New constructs a converter writing into audioDir.
func New(audioDir string, transcoder Transcoder, logger *slog.Logger, opts ...Option) (*Converter, error) {
	audioDir = strings.TrimSpace(audioDir)
	if audioDir == "" {
		return nil, errors.New("audio directory required")
	}
	if transcoder == nil {
		return nil, errors.New("transcoder required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	conv := &Converter{
		audioDir:   audioDir,
		transcoder: transcoder,
		logger:     logging.NewComponentLogger(logger, "converter"),
		namer:      defaultNamer,
	}
	for _, opt := range opts {
		opt(conv)
	}
	return conv, nil
}

// Convert archives srcPath into the audio directory, renders the mono WAV
// for analysis, and encodes the playback copy. The source file and its
// scratch directory are removed afterwards; cleanup failures are logged
// rather than surfaced because every artifact already exists by then.
func (c *Converter) Convert(ctx context.Context, srcPath string) (Artifacts, error) {
	if strings.TrimSpace(srcPath) == "" {
		return Artifacts{}, services.Wrap(services.ErrValidation, "convert", "convert", "source path required", nil)
	}
	if err := os.MkdirAll(c.audioDir, 0o755); err != nil {
		return Artifacts{}, services.Wrap(services.ErrConfiguration, "convert", "convert", "create audio directory", err)
	}

	// The playback encode owns the bare base name; the archived source gets
	// a suffix so an m4a source and an m4a playback never collide.
	base := c.namer()
	artifacts := Artifacts{
		OriginalName: base + "_original" + filepath.Ext(srcPath),
		WavName:      base + ".wav",
	}
	artifacts.OriginalPath = filepath.Join(c.audioDir, artifacts.OriginalName)
	artifacts.WavPath = filepath.Join(c.audioDir, artifacts.WavName)

	if err := fileutil.CopyFile(srcPath, artifacts.OriginalPath); err != nil {
		return Artifacts{}, services.Wrap(services.ErrExternalTool, "convert", "archive", "copy original into audio directory", err)
	}

	if err := c.transcoder.ConvertMono(ctx, srcPath, artifacts.WavPath); err != nil {
		c.discard(artifacts.OriginalPath, artifacts.WavPath)
		return Artifacts{}, services.Wrap(services.ErrExternalTool, "convert", "wav", "render mono wav", err)
	}

	playbackPath, playbackName, err := c.encodePlayback(ctx, srcPath, base)
	if err != nil {
		c.discard(artifacts.OriginalPath, artifacts.WavPath)
		return Artifacts{}, err
	}
	artifacts.PlaybackPath = playbackPath
	artifacts.PlaybackName = playbackName

	c.removeSource(srcPath)
	return artifacts, nil
}

func (c *Converter) encodePlayback(ctx context.Context, srcPath, base string) (string, string, error) {
	var failures []error
	for _, step := range encoderChain {
		name := base + step.ext
		dst := filepath.Join(c.audioDir, name)
		err := c.transcoder.Encode(ctx, srcPath, dst, step.codec, playbackBitrate)
		if err == nil {
			return dst, name, nil
		}
		if ctx.Err() != nil {
			return "", "", services.Wrap(services.ErrTimeout, "convert", "playback", "playback encode interrupted", err)
		}
		c.logger.Warn("playback encoder unavailable",
			logging.String("codec", step.codec),
			logging.Error(err))
		failures = append(failures, fmt.Errorf("%s: %w", step.codec, err))
		fileutil.RemoveIfExists(dst)
	}
	return "", "", services.Wrap(services.ErrExternalTool, "convert", "playback", "no playback encoder succeeded", errors.Join(failures...))
}

// discard drops partial artifacts after a failed conversion so retries
// do not pile orphans into the audio directory.
func (c *Converter) discard(paths ...string) {
	for _, path := range paths {
		if err := fileutil.RemoveIfExists(path); err != nil {
			c.logger.Warn("partial artifact cleanup failed", logging.String("path", path), logging.Error(err))
		}
	}
}

// CleanupWav removes the analysis WAV once feature extraction finished.
// Missing files are fine; the call is idempotent.
func (c *Converter) CleanupWav(path string) {
	if strings.TrimSpace(path) == "" {
		return
	}
	if err := fileutil.RemoveIfExists(path); err != nil {
		c.logger.Warn("wav cleanup failed", logging.String("path", path), logging.Error(err))
	}
}

func (c *Converter) removeSource(srcPath string) {
	if err := os.Remove(srcPath); err != nil && !os.IsNotExist(err) {
		c.logger.Warn("scratch file cleanup failed", logging.String("path", srcPath), logging.Error(err))
		return
	}
	// Downloaders stage each attempt in its own scratch directory; drop it
	// once it is empty.
	dir := filepath.Dir(srcPath)
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if err := os.Remove(dir); err != nil {
			c.logger.Warn("scratch directory cleanup failed", logging.String("path", dir), logging.Error(err))
		}
	}
}

func defaultNamer() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("audio_%d_%06d", time.Now().UnixMilli(), time.Now().Nanosecond()%1000000)
	}
	return fmt.Sprintf("audio_%d_%s", time.Now().UnixMilli(), hex.EncodeToString(buf))
}
