package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"needledrop/internal/jobqueue"
	"needledrop/internal/jobstatus"
	"needledrop/internal/logging"
	"needledrop/internal/services"
	"needledrop/internal/settings"
)

// StatusService is the job status surface the worker routes use.
type StatusService interface {
	Create(ctx context.Context, req jobstatus.CreateRequest) (jobstatus.Record, error)
	Get(ctx context.Context, jobID string) (jobstatus.Record, error)
	Apply(ctx context.Context, jobID string, update jobstatus.Update) (jobstatus.Record, error)
	List(ctx context.Context, limit int) ([]jobstatus.Record, error)
	Summarize(ctx context.Context) (jobstatus.Summary, error)
	Delete(ctx context.Context, jobID string) error
	Clear(ctx context.Context) error
}

// SettingsService reads and writes per-friend preferences.
type SettingsService interface {
	GetOrDefault(ctx context.Context, friendID int) (settings.Settings, error)
	Update(ctx context.Context, friendID int, patch settings.Patch) (settings.Settings, error)
}

// Server is the daemon's HTTP surface.
type Server struct {
	echo     *echo.Echo
	download *jobqueue.Queue
	analyze  *jobqueue.Queue
	status   StatusService
	settings SettingsService
	audioDir string
	logger   *slog.Logger
}

// New wires routes onto a fresh echo instance.
func New(download, analyze *jobqueue.Queue, status StatusService, settingsSvc SettingsService, audioDir string, logger *slog.Logger) (*Server, error) {
	if download == nil || analyze == nil {
		return nil, errors.New("both queues required")
	}
	if status == nil {
		return nil, errors.New("status service required")
	}
	if settingsSvc == nil {
		return nil, errors.New("settings service required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		download: download,
		analyze:  analyze,
		status:   status,
		settings: settingsSvc,
		audioDir: audioDir,
		logger:   logging.NewComponentLogger(logger, "httpapi"),
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	api := s.echo.Group("/api")

	api.POST("/jobs/download", s.enqueueDownload)
	api.POST("/jobs/analyze", s.enqueueAnalyze)
	api.GET("/jobs/:queue", s.listJobs)
	api.GET("/jobs/:queue/counts", s.queueCounts)
	api.GET("/jobs/:queue/:id", s.getJob)
	api.DELETE("/jobs/:queue", s.clearQueue)

	api.POST("/worker/jobs", s.createStatusJob)
	api.GET("/worker/jobs", s.listStatusJobs)
	api.GET("/worker/jobs/summary", s.statusSummary)
	api.GET("/worker/jobs/:id", s.getStatusJob)
	api.PATCH("/worker/jobs/:id", s.updateStatusJob)
	api.DELETE("/worker/jobs/:id", s.deleteStatusJob)
	api.DELETE("/worker/jobs", s.clearStatusJobs)

	api.GET("/settings/:friendID", s.getSettings)
	api.PATCH("/settings/:friendID", s.updateSettings)

	api.GET("/audio", s.serveAudio)
}

// Start serves until the listener fails or Shutdown runs.
func (s *Server) Start(bind string) error {
	err := s.echo.Start(bind)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.echo.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.echo }

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, services.ErrValidation), errors.Is(err, services.ErrConfiguration):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrTimeout):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			logging.String("path", c.Request().URL.Path),
			logging.Error(err))
	}
	return c.JSON(status, errorBody{Error: err.Error()})
}
