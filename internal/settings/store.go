package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"needledrop/internal/services"
)

// Audio quality tiers accepted by the download tools.
const (
	QualityBest     = "best"
	QualityHigh     = "high"
	QualityStandard = "standard"
	QualityLossless = "lossless"
)

// Settings is one friend's acquisition preferences.
type Settings struct {
	FriendID          int    `json:"friend_id"`
	AudioQuality      string `json:"audio_quality"`
	AudioFormat       string `json:"audio_format"`
	SaveCover         bool   `json:"save_cover"`
	CoverFormat       string `json:"cover_format"`
	SaveLyrics        bool   `json:"save_lyrics"`
	LyricsFormat      string `json:"lyrics_format"`
	OverwriteExisting bool   `json:"overwrite_existing"`
	SkipMusicVideos   bool   `json:"skip_music_videos"`
	MaxRetries        int    `json:"max_retries"`
}

// Defaults returns the settings a new friend starts with.
func Defaults(friendID int) Settings {
	return Settings{
		FriendID:          friendID,
		AudioQuality:      QualityBest,
		AudioFormat:       "m4a",
		SaveCover:         false,
		CoverFormat:       "jpg",
		SaveLyrics:        false,
		LyricsFormat:      "lrc",
		OverwriteExisting: false,
		SkipMusicVideos:   true,
		MaxRetries:        3,
	}
}

// Patch carries the fields one update touches. Nil fields keep their
// stored value.
type Patch struct {
	AudioQuality      *string `json:"audio_quality"`
	AudioFormat       *string `json:"audio_format"`
	SaveCover         *bool   `json:"save_cover"`
	CoverFormat       *string `json:"cover_format"`
	SaveLyrics        *bool   `json:"save_lyrics"`
	LyricsFormat      *string `json:"lyrics_format"`
	OverwriteExisting *bool   `json:"overwrite_existing"`
	SkipMusicVideos   *bool   `json:"skip_music_videos"`
	MaxRetries        *int    `json:"max_retries"`
}

func (p Patch) isEmpty() bool {
	return p.AudioQuality == nil && p.AudioFormat == nil && p.SaveCover == nil &&
		p.CoverFormat == nil && p.SaveLyrics == nil && p.LyricsFormat == nil &&
		p.OverwriteExisting == nil && p.SkipMusicVideos == nil && p.MaxRetries == nil
}

var validQualities = map[string]bool{
	QualityBest: true, QualityHigh: true, QualityStandard: true, QualityLossless: true,
}

var validFormats = map[string]bool{
	"m4a": true, "mp3": true, "aac": true, "flac": true,
}

// Validate rejects values the download tools cannot honor.
func (p Patch) Validate() error {
	if p.AudioQuality != nil && !validQualities[*p.AudioQuality] {
		return services.Wrap(services.ErrValidation, "settings", "update",
			fmt.Sprintf("unknown audio quality %q", *p.AudioQuality), nil)
	}
	if p.AudioFormat != nil && !validFormats[*p.AudioFormat] {
		return services.Wrap(services.ErrValidation, "settings", "update",
			fmt.Sprintf("unknown audio format %q", *p.AudioFormat), nil)
	}
	if p.MaxRetries != nil && (*p.MaxRetries < 0 || *p.MaxRetries > 10) {
		return services.Wrap(services.ErrValidation, "settings", "update",
			fmt.Sprintf("max retries %d out of range", *p.MaxRetries), nil)
	}
	return nil
}

// Querier is the slice of pgxpool.Pool the store uses.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads and writes download_settings rows.
type Store struct {
	db Querier
}

// NewStore constructs a settings store.
func NewStore(db Querier) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle required")
	}
	return &Store{db: db}, nil
}

const selectColumns = `audio_quality, audio_format, save_cover, cover_format,
	save_lyrics, lyrics_format, overwrite_existing, skip_music_videos, max_retries`

// GetOrDefault returns the friend's settings, inserting the defaults
// first if the friend has no row yet.
func (s *Store) GetOrDefault(ctx context.Context, friendID int) (Settings, error) {
	got, err := s.get(ctx, friendID)
	if err == nil {
		return got, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, services.Wrap(services.ErrTransient, "settings", "get", "read settings row", err)
	}

	defaults := Defaults(friendID)
	const insert = `INSERT INTO download_settings
		(friend_id, audio_quality, audio_format, save_cover, cover_format,
		 save_lyrics, lyrics_format, overwrite_existing, skip_music_videos, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (friend_id) DO NOTHING`
	_, err = s.db.Exec(ctx, insert,
		defaults.FriendID, defaults.AudioQuality, defaults.AudioFormat,
		defaults.SaveCover, defaults.CoverFormat, defaults.SaveLyrics,
		defaults.LyricsFormat, defaults.OverwriteExisting, defaults.SkipMusicVideos,
		defaults.MaxRetries)
	if err != nil {
		return Settings{}, services.Wrap(services.ErrTransient, "settings", "get", "seed default settings", err)
	}
	return defaults, nil
}

func (s *Store) get(ctx context.Context, friendID int) (Settings, error) {
	query := fmt.Sprintf("SELECT %s FROM download_settings WHERE friend_id = $1", selectColumns)
	got := Settings{FriendID: friendID}
	err := s.db.QueryRow(ctx, query, friendID).Scan(
		&got.AudioQuality, &got.AudioFormat, &got.SaveCover, &got.CoverFormat,
		&got.SaveLyrics, &got.LyricsFormat, &got.OverwriteExisting,
		&got.SkipMusicVideos, &got.MaxRetries,
	)
	if err != nil {
		return Settings{}, err
	}
	return got, nil
}

// Update applies the non-nil patch fields to the friend's row and returns
// the merged result. Updating a friend with no row seeds defaults first.
func (s *Store) Update(ctx context.Context, friendID int, patch Patch) (Settings, error) {
	if err := patch.Validate(); err != nil {
		return Settings{}, err
	}
	current, err := s.GetOrDefault(ctx, friendID)
	if err != nil {
		return Settings{}, err
	}
	if patch.isEmpty() {
		return current, nil
	}

	query, args := buildUpdate(friendID, patch)
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return Settings{}, services.Wrap(services.ErrTransient, "settings", "update", "update settings row", err)
	}
	if tag.RowsAffected() == 0 {
		return Settings{}, services.Wrap(services.ErrNotFound, "settings", "update",
			fmt.Sprintf("settings for friend %d not found", friendID), nil)
	}
	return Apply(current, patch), nil
}

// Apply returns current with the patch's non-nil fields overlaid.
func Apply(current Settings, patch Patch) Settings {
	if patch.AudioQuality != nil {
		current.AudioQuality = *patch.AudioQuality
	}
	if patch.AudioFormat != nil {
		current.AudioFormat = *patch.AudioFormat
	}
	if patch.SaveCover != nil {
		current.SaveCover = *patch.SaveCover
	}
	if patch.CoverFormat != nil {
		current.CoverFormat = *patch.CoverFormat
	}
	if patch.SaveLyrics != nil {
		current.SaveLyrics = *patch.SaveLyrics
	}
	if patch.LyricsFormat != nil {
		current.LyricsFormat = *patch.LyricsFormat
	}
	if patch.OverwriteExisting != nil {
		current.OverwriteExisting = *patch.OverwriteExisting
	}
	if patch.SkipMusicVideos != nil {
		current.SkipMusicVideos = *patch.SkipMusicVideos
	}
	if patch.MaxRetries != nil {
		current.MaxRetries = *patch.MaxRetries
	}
	return current
}

func buildUpdate(friendID int, patch Patch) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.AudioQuality != nil {
		add("audio_quality", *patch.AudioQuality)
	}
	if patch.AudioFormat != nil {
		add("audio_format", *patch.AudioFormat)
	}
	if patch.SaveCover != nil {
		add("save_cover", *patch.SaveCover)
	}
	if patch.CoverFormat != nil {
		add("cover_format", *patch.CoverFormat)
	}
	if patch.SaveLyrics != nil {
		add("save_lyrics", *patch.SaveLyrics)
	}
	if patch.LyricsFormat != nil {
		add("lyrics_format", *patch.LyricsFormat)
	}
	if patch.OverwriteExisting != nil {
		add("overwrite_existing", *patch.OverwriteExisting)
	}
	if patch.SkipMusicVideos != nil {
		add("skip_music_videos", *patch.SkipMusicVideos)
	}
	if patch.MaxRetries != nil {
		add("max_retries", *patch.MaxRetries)
	}
	args = append(args, friendID)
	query := fmt.Sprintf("UPDATE download_settings SET %s WHERE friend_id = $%d",
		strings.Join(sets, ", "), len(args))
	return query, args
}
