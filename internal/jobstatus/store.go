package jobstatus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"needledrop/internal/logging"
	"needledrop/internal/services"
	"needledrop/internal/settings"
)

// Job statuses.
const (
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// DefaultListLimit bounds List when the caller does not.
const DefaultListLimit = 100

const (
	keyPrefix    = "job:"
	indexKey     = "jobs:index"
	workOrderKey = "download_queue"
)

// Result is what a finished job produced. FilePath is where the worker
// wrote the audio; FileURL is where the API serves it from.
type Result struct {
	FilePath string `json:"file_path,omitempty"`
	FileURL  string `json:"file_url,omitempty"`
	Duration int    `json:"duration,omitempty"`
	Format   string `json:"format,omitempty"`
}

// Record is one job's externally visible state.
type Record struct {
	JobID     string  `json:"job_id"`
	Status    string  `json:"status"`
	Progress  int     `json:"progress"`
	TrackID   string  `json:"track_id"`
	FriendID  int     `json:"friend_id"`
	CreatedAt int64   `json:"created_at"`
	UpdatedAt int64   `json:"updated_at"`
	Error     string  `json:"error,omitempty"`
	Result    *Result `json:"result,omitempty"`
}

// CreateRequest asks for a new job. Overrides are overlaid on the
// friend's stored settings.
type CreateRequest struct {
	TrackID       string         `json:"track_id"`
	FriendID      int            `json:"friend_id"`
	AppleMusicURL string         `json:"apple_music_url,omitempty"`
	SpotifyURL    string         `json:"spotify_url,omitempty"`
	YouTubeURL    string         `json:"youtube_url,omitempty"`
	SoundCloudURL string         `json:"soundcloud_url,omitempty"`
	Overrides     settings.Patch `json:"overrides"`
}

// workOrder is the payload pushed for the external workers; it bundles
// everything a worker needs so it never has to call back.
type workOrder struct {
	JobID         string            `json:"job_id"`
	TrackID       string            `json:"track_id"`
	FriendID      int               `json:"friend_id"`
	AppleMusicURL string            `json:"apple_music_url,omitempty"`
	SpotifyURL    string            `json:"spotify_url,omitempty"`
	YouTubeURL    string            `json:"youtube_url,omitempty"`
	SoundCloudURL string            `json:"soundcloud_url,omitempty"`
	Settings      settings.Settings `json:"settings"`
}

// Update mutates a job in place. Nil fields are left alone.
type Update struct {
	Status   *string `json:"status"`
	Progress *int    `json:"progress"`
	Error    *string `json:"error"`
	Result   *Result `json:"result"`
}

// Summary aggregates job counts by status.
type Summary struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// SettingsResolver supplies per-friend acquisition preferences.
type SettingsResolver interface {
	GetOrDefault(ctx context.Context, friendID int) (settings.Settings, error)
}

// Store manages job records in Redis.
type Store struct {
	client   redis.Cmdable
	settings SettingsResolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore constructs a job status store.
func NewStore(client redis.Cmdable, resolver SettingsResolver, logger *slog.Logger) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if resolver == nil {
		return nil, errors.New("settings resolver required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		client:   client,
		settings: resolver,
		logger:   logging.NewComponentLogger(logger, "jobstatus"),
		now:      time.Now,
	}, nil
}

func validStatus(status string) bool {
	switch status {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Create registers a queued job and pushes its work order for the
// external workers. The friend's stored settings are resolved first;
// request overrides win over stored values.
func (s *Store) Create(ctx context.Context, req CreateRequest) (Record, error) {
	if strings.TrimSpace(req.TrackID) == "" {
		return Record{}, services.Wrap(services.ErrValidation, "jobstatus", "create", "track id required", nil)
	}
	if req.AppleMusicURL == "" && req.SpotifyURL == "" && req.YouTubeURL == "" && req.SoundCloudURL == "" {
		return Record{}, services.Wrap(services.ErrValidation, "jobstatus", "create", "at least one source url required", nil)
	}
	if err := req.Overrides.Validate(); err != nil {
		return Record{}, err
	}

	resolved, err := s.settings.GetOrDefault(ctx, req.FriendID)
	if err != nil {
		return Record{}, err
	}
	merged := settings.Apply(resolved, req.Overrides)

	now := s.now().UnixMilli()
	record := Record{
		JobID:     uuid.NewString(),
		Status:    StatusQueued,
		TrackID:   req.TrackID,
		FriendID:  req.FriendID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	order := workOrder{
		JobID:         record.JobID,
		TrackID:       req.TrackID,
		FriendID:      req.FriendID,
		AppleMusicURL: req.AppleMusicURL,
		SpotifyURL:    req.SpotifyURL,
		YouTubeURL:    req.YouTubeURL,
		SoundCloudURL: req.SoundCloudURL,
		Settings:      merged,
	}
	encoded, err := json.Marshal(order)
	if err != nil {
		return Record{}, services.Wrap(services.ErrValidation, "jobstatus", "create", "encode work order", err)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, keyPrefix+record.JobID, record.hashFields())
	pipe.SAdd(ctx, indexKey, record.JobID)
	pipe.LPush(ctx, workOrderKey, encoded)
	if _, err := pipe.Exec(ctx); err != nil {
		return Record{}, services.Wrap(services.ErrTransient, "jobstatus", "create", "store job", err)
	}
	s.logger.Info("job created",
		logging.String(logging.FieldJobID, record.JobID),
		logging.String(logging.FieldTrackID, req.TrackID),
		logging.Int(logging.FieldFriendID, req.FriendID))
	return record, nil
}

// Get reads one job.
func (s *Store) Get(ctx context.Context, jobID string) (Record, error) {
	fields, err := s.client.HGetAll(ctx, keyPrefix+jobID).Result()
	if err != nil {
		return Record{}, services.Wrap(services.ErrTransient, "jobstatus", "get", "read job", err)
	}
	if len(fields) == 0 {
		return Record{}, services.Wrap(services.ErrNotFound, "jobstatus", "get", fmt.Sprintf("job %s not found", jobID), nil)
	}
	return recordFromHash(fields)
}

// Apply mutates a job in place, stamping updated_at. Progress is
// monotonic; error and progress=100 pair with their statuses.
func (s *Store) Apply(ctx context.Context, jobID string, update Update) (Record, error) {
	current, err := s.Get(ctx, jobID)
	if err != nil {
		return Record{}, err
	}
	if update.Status != nil {
		if !validStatus(*update.Status) {
			return Record{}, services.Wrap(services.ErrValidation, "jobstatus", "update",
				fmt.Sprintf("unknown status %q", *update.Status), nil)
		}
		current.Status = *update.Status
	}
	if update.Progress != nil && *update.Progress > current.Progress {
		current.Progress = min(*update.Progress, 100)
	}
	if update.Error != nil {
		current.Error = *update.Error
	}
	if update.Result != nil {
		current.Result = update.Result
	}

	switch current.Status {
	case StatusCompleted:
		current.Progress = 100
		current.Error = ""
	case StatusFailed:
		if current.Error == "" {
			current.Error = "job failed"
		}
	default:
		if current.Progress >= 100 {
			current.Progress = 99
		}
		current.Error = ""
	}
	current.UpdatedAt = s.now().UnixMilli()

	if err := s.client.HSet(ctx, keyPrefix+jobID, current.hashFields()).Err(); err != nil {
		return Record{}, services.Wrap(services.ErrTransient, "jobstatus", "update", "store job", err)
	}
	return current, nil
}

// List returns jobs sorted by most recent update. limit <= 0 applies the
// default cap.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jobstatus", "list", "scan index", err)
	}
	records := make([]Record, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if errors.Is(err, services.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].UpdatedAt != records[j].UpdatedAt {
			return records[i].UpdatedAt > records[j].UpdatedAt
		}
		return records[i].JobID < records[j].JobID
	})
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Summarize counts every tracked job by status.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	records, err := s.List(ctx, int(^uint(0)>>1))
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Total: len(records)}
	for _, record := range records {
		switch record.Status {
		case StatusQueued:
			summary.Queued++
		case StatusProcessing:
			summary.Processing++
		case StatusCompleted:
			summary.Completed++
		case StatusFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

// Delete removes one job.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	removed, err := s.client.SRem(ctx, indexKey, jobID).Result()
	if err != nil {
		return services.Wrap(services.ErrTransient, "jobstatus", "delete", "drop index entry", err)
	}
	if removed == 0 {
		return services.Wrap(services.ErrNotFound, "jobstatus", "delete", fmt.Sprintf("job %s not found", jobID), nil)
	}
	if err := s.client.Del(ctx, keyPrefix+jobID).Err(); err != nil {
		return services.Wrap(services.ErrTransient, "jobstatus", "delete", "drop job hash", err)
	}
	return nil
}

// Clear removes every tracked job and the pending work orders.
func (s *Store) Clear(ctx context.Context) error {
	ids, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return services.Wrap(services.ErrTransient, "jobstatus", "clear", "scan index", err)
	}
	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, keyPrefix+id)
	}
	pipe.Del(ctx, indexKey)
	pipe.Del(ctx, workOrderKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "jobstatus", "clear", "drop job keys", err)
	}
	return nil
}

func (r Record) hashFields() map[string]any {
	fields := map[string]any{
		"job_id":     r.JobID,
		"status":     r.Status,
		"progress":   r.Progress,
		"track_id":   r.TrackID,
		"friend_id":  r.FriendID,
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
		"error":      r.Error,
	}
	if r.Result != nil {
		encoded, _ := json.Marshal(r.Result)
		fields["result"] = string(encoded)
	} else {
		fields["result"] = ""
	}
	return fields
}

func recordFromHash(fields map[string]string) (Record, error) {
	record := Record{
		JobID:    fields["job_id"],
		Status:   fields["status"],
		TrackID:  fields["track_id"],
		Error:    fields["error"],
		Progress: atoi(fields["progress"]),
		FriendID: atoi(fields["friend_id"]),
	}
	record.CreatedAt, _ = strconv.ParseInt(fields["created_at"], 10, 64)
	record.UpdatedAt, _ = strconv.ParseInt(fields["updated_at"], 10, 64)
	if encoded := fields["result"]; encoded != "" {
		var result Result
		if err := json.Unmarshal([]byte(encoded), &result); err != nil {
			return Record{}, services.Wrap(services.ErrTransient, "jobstatus", "get", "decode stored result", err)
		}
		record.Result = &result
	}
	return record, nil
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
