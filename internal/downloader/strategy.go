package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"needledrop/internal/logging"
	"needledrop/internal/services"
)

// DirDownloader acquires a URL into a directory and returns the file found.
type DirDownloader interface {
	Download(ctx context.Context, url, outDir string, onOutput func(string)) (string, error)
}

// FileDownloader acquires a URL directly into a destination file path.
type FileDownloader interface {
	Download(ctx context.Context, url, destPath string, onOutput func(string)) (string, error)
}

// attempt pairs a source with the tool that serves it. The ordered attempts
// table is the single place fallback precedence is defined.
type attempt struct {
	source Source
	tool   Tool
}

var attemptOrder = []attempt{
	{SourceAppleMusic, ToolFreyr},
	{SourceSpotify, ToolFreyr},
	{SourceSpotify, ToolSpotdl},
	{SourceYouTube, ToolYtdlp},
	{SourceSoundCloud, ToolScdl},
}

// Strategy chooses and invokes acquisition tools until one yields audio.
type Strategy struct {
	tmpDir string
	freyr  DirDownloader
	spotdl DirDownloader
	ytdlp  FileDownloader
	scdl   DirDownloader
	logger *slog.Logger
	now    func() time.Time
}

// NewStrategy constructs a source strategy over the given tool clients.
func NewStrategy(tmpDir string, freyrClient, spotdlClient DirDownloader, ytdlpClient FileDownloader, scdlClient DirDownloader, logger *slog.Logger) *Strategy {
	return &Strategy{
		tmpDir: tmpDir,
		freyr:  freyrClient,
		spotdl: spotdlClient,
		ytdlp:  ytdlpClient,
		scdl:   scdlClient,
		logger: logging.NewComponentLogger(logger, "downloader"),
		now:    time.Now,
	}
}

// Fetch runs the fallback chain and returns the local path of the acquired
// file. A preferred tool moves its attempts to the front of the order; it
// never adds or removes attempts.
func (s *Strategy) Fetch(ctx context.Context, urls URLs, preferred Tool) (string, error) {
	if urls.Empty() {
		return "", services.Wrap(services.ErrValidation, "download", "payload", "no source URLs provided", nil)
	}

	var attemptErrs []error
	for _, a := range orderFor(preferred) {
		url := urls.ForSource(a.source)
		if url == "" {
			continue
		}

		s.logger.Info("attempting source",
			logging.String(logging.FieldSource, string(a.source)),
			logging.String(logging.FieldTool, string(a.tool)),
		)
		path, err := s.runAttempt(ctx, a, url)
		if err != nil {
			if ctx.Err() != nil {
				return "", services.Wrap(services.ErrTimeout, "download", string(a.tool), "canceled", ctx.Err())
			}
			s.logger.Warn("source attempt failed, trying next candidate",
				logging.String(logging.FieldSource, string(a.source)),
				logging.String(logging.FieldTool, string(a.tool)),
				logging.Error(err),
			)
			attemptErrs = append(attemptErrs, fmt.Errorf("%s via %s: %w", a.source, a.tool, err))
			continue
		}

		s.logger.Info("source produced audio",
			logging.String(logging.FieldSource, string(a.source)),
			logging.String(logging.FieldTool, string(a.tool)),
			logging.String("path", path),
		)
		return path, nil
	}

	return "", services.Wrap(services.ErrExternalTool, "download", "fetch", "no source produced audio", errors.Join(attemptErrs...))
}

// orderFor returns the attempt order with the preferred tool's attempts moved
// to the front; relative order is otherwise preserved.
func orderFor(preferred Tool) []attempt {
	if preferred == "" {
		return attemptOrder
	}
	ordered := make([]attempt, 0, len(attemptOrder))
	for _, a := range attemptOrder {
		if a.tool == preferred {
			ordered = append(ordered, a)
		}
	}
	for _, a := range attemptOrder {
		if a.tool != preferred {
			ordered = append(ordered, a)
		}
	}
	return ordered
}

func (s *Strategy) runAttempt(ctx context.Context, a attempt, url string) (string, error) {
	stamp := s.now().UnixMilli()
	onOutput := func(line string) {
		s.logger.Debug("tool output", logging.String(logging.FieldTool, string(a.tool)), logging.String("line", line))
	}

	switch a.tool {
	case ToolFreyr:
		outDir := filepath.Join(s.tmpDir, fmt.Sprintf("%s_%d", a.source, stamp))
		return s.freyr.Download(ctx, url, outDir, onOutput)
	case ToolSpotdl:
		outDir := filepath.Join(s.tmpDir, fmt.Sprintf("spotdl_%d", stamp))
		return s.spotdl.Download(ctx, url, outDir, onOutput)
	case ToolYtdlp:
		dest := filepath.Join(s.tmpDir, fmt.Sprintf("youtube_%d.m4a", stamp))
		return s.ytdlp.Download(ctx, url, dest, onOutput)
	case ToolScdl:
		outDir := filepath.Join(s.tmpDir, fmt.Sprintf("soundcloud_%d", stamp))
		return s.scdl.Download(ctx, url, outDir, onOutput)
	default:
		return "", fmt.Errorf("unknown tool %q", a.tool)
	}
}
