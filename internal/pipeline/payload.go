package pipeline

import (
	"needledrop/internal/downloader"
)

// Queue names used by the daemon and the HTTP API.
const (
	QueueDownload = "audio-download"
	QueueAnalyze  = "audio-analyze"
)

// Job names within the queues.
const (
	JobDownload = "download"
	JobAnalyze  = "analyze"
)

// DownloadPayload asks for audio acquisition for one catalog track.
type DownloadPayload struct {
	TrackID             string `json:"track_id"`
	FriendID            int    `json:"friend_id"`
	AppleMusicURL       string `json:"apple_music_url,omitempty"`
	SpotifyURL          string `json:"spotify_url,omitempty"`
	YouTubeURL          string `json:"youtube_url,omitempty"`
	SoundCloudURL       string `json:"soundcloud_url,omitempty"`
	PreferredDownloader string `json:"preferred_downloader,omitempty"`
}

// URLs collects the payload's source links in strategy form.
func (p DownloadPayload) URLs() downloader.URLs {
	return downloader.URLs{
		AppleMusic: p.AppleMusicURL,
		Spotify:    p.SpotifyURL,
		YouTube:    p.YouTubeURL,
		SoundCloud: p.SoundCloudURL,
	}
}

// DownloadResult is a download job's return value and the seed of the
// chained analyze job.
type DownloadResult struct {
	WavFileName      string `json:"wav_file_name"`
	PlaybackFileName string `json:"playback_file_name"`
	Format           string `json:"format"`
}

// AnalyzePayload carries converter artifacts into the analyze stage.
type AnalyzePayload struct {
	TrackID          string `json:"track_id"`
	FriendID         int    `json:"friend_id"`
	WavFileName      string `json:"wav_file_name"`
	PlaybackFileName string `json:"playback_file_name"`
}

// AnalyzeResult reports what the write-back stored.
type AnalyzeResult struct {
	TrackID      string   `json:"track_id"`
	FriendID     int      `json:"friend_id"`
	BPM          *int     `json:"bpm,omitempty"`
	Key          string   `json:"key,omitempty"`
	Danceability *float64 `json:"danceability,omitempty"`
	Duration     *int     `json:"duration,omitempty"`
	Filename     string   `json:"filename"`
}
