package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"needledrop/internal/jobstatus"
	"needledrop/internal/services"
)

func (s *Server) createStatusJob(c echo.Context) error {
	var req jobstatus.CreateRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "status", "decode request", err))
	}
	record, err := s.status.Create(c.Request().Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, record)
}

func (s *Server) getStatusJob(c echo.Context) error {
	record, err := s.status.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

func (s *Server) updateStatusJob(c echo.Context) error {
	var update jobstatus.Update
	if err := c.Bind(&update); err != nil {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "status", "decode request", err))
	}
	record, err := s.status.Apply(c.Request().Context(), c.Param("id"), update)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, record)
}

type listStatusResponse struct {
	Jobs []jobstatus.Record `json:"jobs"`
}

func (s *Server) listStatusJobs(c echo.Context) error {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return s.writeError(c, services.Wrap(services.ErrValidation, "api", "status", "limit must be a non-negative integer", err))
		}
		limit = parsed
	}
	records, err := s.status.List(c.Request().Context(), limit)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, listStatusResponse{Jobs: records})
}

func (s *Server) statusSummary(c echo.Context) error {
	summary, err := s.status.Summarize(c.Request().Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) deleteStatusJob(c echo.Context) error {
	if err := s.status.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) clearStatusJobs(c echo.Context) error {
	if err := s.status.Clear(c.Request().Context()); err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
