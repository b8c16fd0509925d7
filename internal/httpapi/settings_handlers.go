package httpapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"needledrop/internal/services"
	"needledrop/internal/settings"
)

func friendIDParam(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("friendID"))
	if err != nil || id < 0 {
		return 0, services.Wrap(services.ErrValidation, "api", "settings", "friend id must be a non-negative integer", err)
	}
	return id, nil
}

func (s *Server) getSettings(c echo.Context) error {
	friendID, err := friendIDParam(c)
	if err != nil {
		return s.writeError(c, err)
	}
	got, err := s.settings.GetOrDefault(c.Request().Context(), friendID)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, got)
}

func (s *Server) updateSettings(c echo.Context) error {
	friendID, err := friendIDParam(c)
	if err != nil {
		return s.writeError(c, err)
	}
	var patch settings.Patch
	if err := c.Bind(&patch); err != nil {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "settings", "decode request", err))
	}
	updated, err := s.settings.Update(c.Request().Context(), friendID, patch)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, updated)
}
