package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"needledrop/internal/converter"
	"needledrop/internal/downloader"
	"needledrop/internal/jobqueue"
	"needledrop/internal/logging"
	"needledrop/internal/services"
)

// Fetcher resolves source URLs into one local audio file.
type Fetcher interface {
	Fetch(ctx context.Context, urls downloader.URLs, preferred downloader.Tool) (string, error)
}

// Converter turns an acquired file into pipeline artifacts.
type Converter interface {
	Convert(ctx context.Context, srcPath string) (converter.Artifacts, error)
}

// Enqueuer is the queue slice the download stage uses to chain jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobName string, payload any, priority int) (*jobqueue.Job, error)
}

// ProgressReporter exposes progress updates on the handler's own queue.
type ProgressReporter interface {
	UpdateProgress(ctx context.Context, jobID string, progress int) error
}

// DownloadHandler runs one download job: fetch audio from the best
// available source, convert it, and chain exactly one analyze job.
type DownloadHandler struct {
	fetcher      Fetcher
	converter    Converter
	analyzeQueue Enqueuer
	progress     ProgressReporter
	logger       *slog.Logger
}

// NewDownloadHandler wires the download stage. progress is the download
// queue itself in production.
func NewDownloadHandler(fetcher Fetcher, conv Converter, analyzeQueue Enqueuer, progress ProgressReporter, logger *slog.Logger) *DownloadHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &DownloadHandler{
		fetcher:      fetcher,
		converter:    conv,
		analyzeQueue: analyzeQueue,
		progress:     progress,
		logger:       logging.NewComponentLogger(logger, "download"),
	}
}

// Handle implements jobqueue.Handler.
func (h *DownloadHandler) Handle(ctx context.Context, job *jobqueue.Job) (any, error) {
	var payload DownloadPayload
	if err := job.UnmarshalData(&payload); err != nil {
		return nil, services.Wrap(services.ErrValidation, "download", "handle", "decode payload", err)
	}
	if strings.TrimSpace(payload.TrackID) == "" {
		return nil, services.Wrap(services.ErrValidation, "download", "handle", "track id required", nil)
	}
	logger := h.logger.With(
		logging.String(logging.FieldTrackID, payload.TrackID),
		logging.Int(logging.FieldFriendID, payload.FriendID))

	h.report(ctx, job.ID, 10)

	preferred, known := downloader.ParseTool(payload.PreferredDownloader)
	if !known {
		logger.Warn("ignoring unknown preferred downloader",
			logging.String(logging.FieldTool, payload.PreferredDownloader))
		preferred = ""
	}
	srcPath, err := h.fetcher.Fetch(ctx, payload.URLs(), preferred)
	if err != nil {
		return nil, err
	}
	logger.Info("audio acquired", logging.String("path", filepath.Base(srcPath)))
	h.report(ctx, job.ID, 30)

	artifacts, err := h.converter.Convert(ctx, srcPath)
	if err != nil {
		return nil, err
	}
	logger.Info("audio converted",
		logging.String("playback", artifacts.PlaybackName),
		logging.String("wav", artifacts.WavName))
	h.report(ctx, job.ID, 90)

	analyze := AnalyzePayload{
		TrackID:          payload.TrackID,
		FriendID:         payload.FriendID,
		WavFileName:      artifacts.WavName,
		PlaybackFileName: artifacts.PlaybackName,
	}
	if _, err := h.analyzeQueue.Enqueue(ctx, JobAnalyze, analyze, job.Priority); err != nil {
		return nil, services.Wrap(services.ErrTransient, "download", "chain", "enqueue analyze job", err)
	}

	return DownloadResult{
		WavFileName:      artifacts.WavName,
		PlaybackFileName: artifacts.PlaybackName,
		Format:           strings.TrimPrefix(filepath.Ext(artifacts.PlaybackName), "."),
	}, nil
}

func (h *DownloadHandler) report(ctx context.Context, jobID string, progress int) {
	if h.progress == nil {
		return
	}
	if err := h.progress.UpdateProgress(ctx, jobID, progress); err != nil {
		h.logger.Warn("progress update failed",
			logging.String(logging.FieldJobID, jobID), logging.Error(err))
	}
}
