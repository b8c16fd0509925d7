package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"needledrop/internal/analysis"
	"needledrop/internal/jobqueue"
	"needledrop/internal/logging"
	"needledrop/internal/services"
	"needledrop/internal/tracks"
)

// Analyzer extracts features from a named WAV in the audio directory.
type Analyzer interface {
	Analyze(ctx context.Context, wavName string) (analysis.Features, error)
}

// ResultWriter persists analysis output onto the track record.
type ResultWriter interface {
	ApplyResult(ctx context.Context, trackID string, friendID int, update tracks.Update) error
}

// WavCleaner removes a consumed analysis WAV.
type WavCleaner interface {
	CleanupWav(path string)
}

// AnalyzeHandler runs one analyze job: extract features, write them and
// the playback reference back, and drop the WAV no matter what.
type AnalyzeHandler struct {
	audioDir string
	analyzer Analyzer
	writer   ResultWriter
	cleaner  WavCleaner
	progress ProgressReporter
	logger   *slog.Logger
}

// NewAnalyzeHandler wires the analyze stage.
func NewAnalyzeHandler(audioDir string, analyzer Analyzer, writer ResultWriter, cleaner WavCleaner, progress ProgressReporter, logger *slog.Logger) *AnalyzeHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &AnalyzeHandler{
		audioDir: audioDir,
		analyzer: analyzer,
		writer:   writer,
		cleaner:  cleaner,
		progress: progress,
		logger:   logging.NewComponentLogger(logger, "analyze"),
	}
}

// Handle implements jobqueue.Handler.
func (h *AnalyzeHandler) Handle(ctx context.Context, job *jobqueue.Job) (any, error) {
	var payload AnalyzePayload
	if err := job.UnmarshalData(&payload); err != nil {
		return nil, services.Wrap(services.ErrValidation, "analyze", "handle", "decode payload", err)
	}
	if strings.TrimSpace(payload.WavFileName) == "" || strings.TrimSpace(payload.PlaybackFileName) == "" {
		return nil, services.Wrap(services.ErrValidation, "analyze", "handle", "converter artifacts required", nil)
	}
	// The WAV is consumed by this stage alone; remove it whether analysis
	// succeeds or not so failed jobs do not leak files.
	defer h.cleaner.CleanupWav(filepath.Join(h.audioDir, payload.WavFileName))

	logger := h.logger.With(
		logging.String(logging.FieldTrackID, payload.TrackID),
		logging.Int(logging.FieldFriendID, payload.FriendID))

	h.report(ctx, job.ID, 10)

	features, err := h.analyzer.Analyze(ctx, payload.WavFileName)
	if err != nil {
		return nil, err
	}
	h.report(ctx, job.ID, 70)

	update := tracks.UpdateFromFeatures(features)
	update.LocalAudioURL = &payload.PlaybackFileName
	if err := h.writer.ApplyResult(ctx, payload.TrackID, payload.FriendID, update); err != nil {
		return nil, err
	}
	h.report(ctx, job.ID, 90)
	logger.Info("analysis stored", logging.String("playback", payload.PlaybackFileName))

	return AnalyzeResult{
		TrackID:      payload.TrackID,
		FriendID:     payload.FriendID,
		BPM:          features.BPM,
		Key:          features.Key,
		Danceability: features.Danceability,
		Duration:     features.Duration,
		Filename:     payload.PlaybackFileName,
	}, nil
}

func (h *AnalyzeHandler) report(ctx context.Context, jobID string, progress int) {
	if h.progress == nil {
		return
	}
	if err := h.progress.UpdateProgress(ctx, jobID, progress); err != nil {
		h.logger.Warn("progress update failed",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}
