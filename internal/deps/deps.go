// Package deps reports the availability of the external binaries the
// acquisition pipeline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"needledrop/internal/config"
)

// Requirement defines one external tool the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of one requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the acquisition and transcoding tools for the
// configured binary names. ffmpeg is the only hard requirement; each
// downloader is optional because a deployment may only serve a subset
// of sources.
func Requirements(cfg config.Downloaders) []Requirement {
	return []Requirement{
		{Name: "ffmpeg", Command: cfg.FfmpegBin, Description: "Audio transcoding"},
		{Name: "freyr", Command: cfg.FreyrBin, Description: "Apple Music downloads", Optional: true},
		{Name: "spotdl", Command: cfg.SpotdlBin, Description: "Spotify downloads", Optional: true},
		{Name: "yt-dlp", Command: cfg.YtdlpBin, Description: "YouTube downloads", Optional: true},
		{Name: "scdl", Command: cfg.ScdlBin, Description: "SoundCloud downloads", Optional: true},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
