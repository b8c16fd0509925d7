package downloader

import "strings"

// Source identifies a third-party platform hosting a track's audio.
type Source string

const (
	SourceAppleMusic Source = "apple_music"
	SourceSpotify    Source = "spotify"
	SourceYouTube    Source = "youtube"
	SourceSoundCloud Source = "soundcloud"
)

// Tool identifies one of the external acquisition tools.
type Tool string

const (
	ToolFreyr  Tool = "freyr"
	ToolSpotdl Tool = "spotdl"
	ToolYtdlp  Tool = "yt-dlp"
	ToolScdl   Tool = "scdl"
)

// ParseTool converts a string into a known Tool. Empty input is valid and
// means "no preference".
func ParseTool(value string) (Tool, bool) {
	switch Tool(strings.ToLower(strings.TrimSpace(value))) {
	case "":
		return "", true
	case ToolFreyr:
		return ToolFreyr, true
	case ToolSpotdl:
		return ToolSpotdl, true
	case ToolYtdlp:
		return ToolYtdlp, true
	case ToolScdl:
		return ToolScdl, true
	default:
		return "", false
	}
}

// URLs carries a track's candidate source URLs. Any subset may be set.
type URLs struct {
	AppleMusic string
	Spotify    string
	YouTube    string
	SoundCloud string
}

// ForSource returns the URL for a source, or "" when absent.
func (u URLs) ForSource(source Source) string {
	switch source {
	case SourceAppleMusic:
		return strings.TrimSpace(u.AppleMusic)
	case SourceSpotify:
		return strings.TrimSpace(u.Spotify)
	case SourceYouTube:
		return strings.TrimSpace(u.YouTube)
	case SourceSoundCloud:
		return strings.TrimSpace(u.SoundCloud)
	default:
		return ""
	}
}

// Empty reports whether no source URL is present at all.
func (u URLs) Empty() bool {
	for _, source := range []Source{SourceAppleMusic, SourceSpotify, SourceYouTube, SourceSoundCloud} {
		if u.ForSource(source) != "" {
			return false
		}
	}
	return true
}
