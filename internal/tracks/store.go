package tracks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"needledrop/internal/analysis"
	"needledrop/internal/logging"
	"needledrop/internal/search"
	"needledrop/internal/services"
)

// Querier is the slice of pgxpool.Pool the store uses; tests substitute
// a stub.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Track is the catalog row slice this pipeline touches, shaped for the
// search index document.
type Track struct {
	TrackID         string   `json:"track_id"`
	FriendID        int      `json:"friend_id"`
	Title           string   `json:"title"`
	Artist          string   `json:"artist"`
	Album           string   `json:"album"`
	LocalAudioURL   *string  `json:"local_audio_url"`
	BPM             *int     `json:"bpm"`
	Key             *string  `json:"key"`
	Danceability    *float64 `json:"danceability"`
	DurationSeconds *int     `json:"duration_seconds"`
}

// Document is the search-index shape of a track: the row plus a composite
// id, since tracks are partitioned per friend.
type Document struct {
	ID string `json:"id"`
	Track
}

// Update carries the fields one job produced. Nil fields are left
// untouched on the row.
type Update struct {
	LocalAudioURL   *string
	BPM             *int
	Key             *string
	Danceability    *float64
	DurationSeconds *int
}

// UpdateFromFeatures converts extractor output into a row update.
func UpdateFromFeatures(features analysis.Features) Update {
	update := Update{
		BPM:             features.BPM,
		Danceability:    features.Danceability,
		DurationSeconds: features.Duration,
	}
	if features.Key != "" {
		key := features.Key
		update.Key = &key
	}
	return update
}

func (u Update) isEmpty() bool {
	return u.LocalAudioURL == nil && u.BPM == nil && u.Key == nil &&
		u.Danceability == nil && u.DurationSeconds == nil
}

// Store persists track updates and mirrors them into the search index.
type Store struct {
	db      Querier
	indexer search.Indexer
	logger  *slog.Logger
}

// NewStore constructs a track store. Pass search.Disabled{} when indexing
// is off.
func NewStore(db Querier, indexer search.Indexer, logger *slog.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("database handle required")
	}
	if indexer == nil {
		indexer = search.Disabled{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		db:      db,
		indexer: indexer,
		logger:  logging.NewComponentLogger(logger, "tracks"),
	}, nil
}

// ApplyResult writes the non-nil update fields onto the row keyed by
// (trackID, friendID), then re-reads the row and pushes it to the search
// index. An index failure is logged and swallowed. A missing row is also
// logged and swallowed: a catalog entry removed mid-job should not fail
// the whole pipeline run, the work just has nowhere to land.
func (s *Store) ApplyResult(ctx context.Context, trackID string, friendID int, update Update) error {
	if strings.TrimSpace(trackID) == "" {
		return services.Wrap(services.ErrValidation, "write", "apply", "track id required", nil)
	}
	if update.isEmpty() {
		return nil
	}

	query, args := buildUpdate(trackID, friendID, update)
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return services.Wrap(services.ErrTransient, "write", "apply", "update track row", err)
	}
	if tag.RowsAffected() == 0 {
		s.logger.Warn("track row missing, skipping index push",
			logging.String(logging.FieldTrackID, trackID),
			logging.Int(logging.FieldFriendID, friendID))
		return nil
	}

	track, err := s.Get(ctx, trackID, friendID)
	if err != nil {
		return err
	}
	doc := Document{ID: fmt.Sprintf("%s_%d", track.TrackID, track.FriendID), Track: track}
	if err := s.indexer.UpdateDocuments(ctx, []Document{doc}); err != nil {
		s.logger.Warn("search index push failed",
			logging.String(logging.FieldTrackID, trackID),
			logging.Int(logging.FieldFriendID, friendID),
			logging.Error(err))
	}
	return nil
}

// Get reads the pipeline-visible slice of one track row.
func (s *Store) Get(ctx context.Context, trackID string, friendID int) (Track, error) {
	const query = `SELECT track_id, friend_id, title, artist, album,
		local_audio_url, bpm, "key", danceability, duration_seconds
		FROM tracks WHERE track_id = $1 AND friend_id = $2`

	var track Track
	err := s.db.QueryRow(ctx, query, trackID, friendID).Scan(
		&track.TrackID, &track.FriendID, &track.Title, &track.Artist, &track.Album,
		&track.LocalAudioURL, &track.BPM, &track.Key, &track.Danceability, &track.DurationSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Track{}, services.Wrap(services.ErrNotFound, "write", "get",
			fmt.Sprintf("track %s friend %d not found", trackID, friendID), nil)
	}
	if err != nil {
		return Track{}, services.Wrap(services.ErrTransient, "write", "get", "read track row", err)
	}
	return track, nil
}

// buildUpdate renders a single-statement partial update touching only the
// present fields.
func buildUpdate(trackID string, friendID int, update Update) (string, []any) {
	var (
		sets []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if update.LocalAudioURL != nil {
		add("local_audio_url", *update.LocalAudioURL)
	}
	if update.BPM != nil {
		add("bpm", *update.BPM)
	}
	if update.Key != nil {
		add(`"key"`, *update.Key)
	}
	if update.Danceability != nil {
		add("danceability", *update.Danceability)
	}
	if update.DurationSeconds != nil {
		add("duration_seconds", *update.DurationSeconds)
	}
	args = append(args, trackID, friendID)
	query := fmt.Sprintf("UPDATE tracks SET %s WHERE track_id = $%d AND friend_id = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))
	return query, args
}
