package httpapi

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/labstack/echo/v4"

	"needledrop/internal/services"
)

// serveAudio streams a file out of the audio directory. The analysis
// service fetches WAVs through here; players fetch playback files.
func (s *Server) serveAudio(c echo.Context) error {
	filename := strings.TrimSpace(c.QueryParam("filename"))
	if filename == "" {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "audio", "filename query parameter required", nil))
	}
	// Reject anything that could escape the audio directory.
	if filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return s.writeError(c, services.Wrap(services.ErrValidation, "api", "audio", "invalid filename", nil))
	}
	path := filepath.Join(s.audioDir, filename)
	if _, err := os.Stat(path); err != nil {
		return s.writeError(c, services.Wrap(services.ErrNotFound, "api", "audio", "audio file "+filename+" not found", nil))
	}
	return c.File(path)
}
