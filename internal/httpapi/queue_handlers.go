package httpapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"needledrop/internal/jobqueue"
	"needledrop/internal/pipeline"
	"needledrop/internal/services"
)

type enqueueDownloadRequest struct {
	pipeline.DownloadPayload
	Priority string `json:"priority,omitempty"`
}

type enqueueAnalyzeRequest struct {
	pipeline.AnalyzePayload
	Priority string `json:"priority,omitempty"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
	Queue string `json:"queue"`
}

func parsePriority(value string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "normal":
		return jobqueue.PriorityNormal, nil
	case "high":
		return jobqueue.PriorityHigh, nil
	case "low":
		return jobqueue.PriorityLow, nil
	}
	return 0, services.Wrap(services.ErrValidation, "api", "enqueue", "priority must be high, normal, or low", nil)
}

func (s *Server) enqueueDownload(c echo.Context) error {
	var req enqueueDownloadRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "enqueue", "decode request", err))
	}
	if strings.TrimSpace(req.TrackID) == "" {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "enqueue", "track id required", nil))
	}
	if req.URLs().Empty() {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "enqueue", "at least one source url required", nil))
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return s.writeError(c, err)
	}
	job, err := s.download.Enqueue(c.Request().Context(), pipeline.JobDownload, req.DownloadPayload, priority)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, enqueueResponse{JobID: job.ID, Queue: s.download.Name()})
}

func (s *Server) enqueueAnalyze(c echo.Context) error {
	var req enqueueAnalyzeRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "enqueue", "decode request", err))
	}
	if strings.TrimSpace(req.WavFileName) == "" || strings.TrimSpace(req.PlaybackFileName) == "" {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "enqueue", "wav and playback file names required", nil))
	}
	priority, err := parsePriority(req.Priority)
	if err != nil {
		return s.writeError(c, err)
	}
	job, err := s.analyze.Enqueue(c.Request().Context(), pipeline.JobAnalyze, req.AnalyzePayload, priority)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, enqueueResponse{JobID: job.ID, Queue: s.analyze.Name()})
}

func (s *Server) queueByName(name string) (*jobqueue.Queue, error) {
	switch name {
	case pipeline.QueueDownload, "download":
		return s.download, nil
	case pipeline.QueueAnalyze, "analyze":
		return s.analyze, nil
	}
	return nil, services.Wrap(services.ErrNotFound, "api", "introspect", "unknown queue "+name, nil)
}

type listJobsResponse struct {
	Counts jobqueue.Counts `json:"counts"`
	Jobs   []*jobqueue.Job `json:"jobs"`
}

func (s *Server) listJobs(c echo.Context) error {
	queue, err := s.queueByName(c.Param("queue"))
	if err != nil {
		return s.writeError(c, err)
	}
	ctx := c.Request().Context()
	jobs, err := queue.List(ctx)
	if err != nil {
		return s.writeError(c, err)
	}
	counts, err := queue.Counts(ctx)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, listJobsResponse{Counts: counts, Jobs: jobs})
}

func (s *Server) queueCounts(c echo.Context) error {
	queue, err := s.queueByName(c.Param("queue"))
	if err != nil {
		return s.writeError(c, err)
	}
	counts, err := queue.Counts(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, counts)
}

func (s *Server) getJob(c echo.Context) error {
	queue, err := s.queueByName(c.Param("queue"))
	if err != nil {
		return s.writeError(c, err)
	}
	job, err := queue.GetJob(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) clearQueue(c echo.Context) error {
	queue, err := s.queueByName(c.Param("queue"))
	if err != nil {
		return s.writeError(c, err)
	}
	if err := queue.Clear(c.Request().Context()); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
