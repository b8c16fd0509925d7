package settings

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"needledrop/internal/services"
)

type execCall struct {
	sql  string
	args []any
}

type stubQuerier struct {
	execs   []execCall
	execTag pgconn.CommandTag
	rowErr  error
	stored  *Settings
}

func (s *stubQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	s.execs = append(s.execs, execCall{sql: sql, args: args})
	return s.execTag, nil
}

func (s *stubQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return stubRow{err: s.rowErr, stored: s.stored}
}

type stubRow struct {
	err    error
	stored *Settings
}

func (r stubRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*string) = r.stored.AudioQuality
	*dest[1].(*string) = r.stored.AudioFormat
	*dest[2].(*bool) = r.stored.SaveCover
	*dest[3].(*string) = r.stored.CoverFormat
	*dest[4].(*bool) = r.stored.SaveLyrics
	*dest[5].(*string) = r.stored.LyricsFormat
	*dest[6].(*bool) = r.stored.OverwriteExisting
	*dest[7].(*bool) = r.stored.SkipMusicVideos
	*dest[8].(*int) = r.stored.MaxRetries
	return nil
}

func ptr[T any](v T) *T { return &v }

func TestDefaultsMatchSchema(t *testing.T) {
	got := Defaults(1)
	want := Settings{
		FriendID:          1,
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
	if got != want {
		t.Fatalf("defaults = %+v, want %+v", got, want)
	}
}

func TestGetOrDefaultSeedsMissingRow(t *testing.T) {
	db := &stubQuerier{rowErr: pgx.ErrNoRows, execTag: pgconn.NewCommandTag("INSERT 0 1")}
	store, err := NewStore(db)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	got, err := store.GetOrDefault(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetOrDefault: %v", err)
	}
	if got != Defaults(7) {
		t.Fatalf("got %+v, want defaults", got)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0].sql, "INSERT INTO download_settings") {
		t.Fatalf("expected seed insert, got %v", db.execs)
	}
	if !strings.Contains(db.execs[0].sql, "ON CONFLICT (friend_id) DO NOTHING") {
		t.Fatalf("seed insert must tolerate races: %s", db.execs[0].sql)
	}
}

func TestGetOrDefaultReturnsStoredRow(t *testing.T) {
	stored := Defaults(7)
	stored.AudioQuality = QualityLossless
	stored.MaxRetries = 5
	db := &stubQuerier{stored: &stored}
	store, _ := NewStore(db)

	got, err := store.GetOrDefault(context.Background(), 7)
	if err != nil {
		t.Fatalf("GetOrDefault: %v", err)
	}
	if got.AudioQuality != QualityLossless || got.MaxRetries != 5 {
		t.Fatalf("stored row not returned: %+v", got)
	}
	if len(db.execs) != 0 {
		t.Fatalf("no insert expected for existing row, got %v", db.execs)
	}
}

func TestUpdateTouchesOnlyPatchedColumns(t *testing.T) {
	stored := Defaults(7)
	db := &stubQuerier{stored: &stored, execTag: pgconn.NewCommandTag("UPDATE 1")}
	store, _ := NewStore(db)

	got, err := store.Update(context.Background(), 7, Patch{
		AudioFormat: ptr("flac"),
		SaveLyrics:  ptr(false),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.AudioFormat != "flac" || got.SaveLyrics {
		t.Fatalf("patch not applied: %+v", got)
	}
	if got.AudioQuality != QualityBest {
		t.Fatalf("unpatched field changed: %+v", got)
	}

	sql := db.execs[len(db.execs)-1].sql
	if !strings.Contains(sql, "audio_format = $1") || !strings.Contains(sql, "save_lyrics = $2") {
		t.Fatalf("unexpected set clause: %s", sql)
	}
	if strings.Contains(sql, "max_retries") {
		t.Fatalf("untouched column in statement: %s", sql)
	}
}

func TestUpdateRejectsUnknownValues(t *testing.T) {
	store, _ := NewStore(&stubQuerier{})

	if _, err := store.Update(context.Background(), 7, Patch{AudioQuality: ptr("ultra")}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for quality, got %v", err)
	}
	if _, err := store.Update(context.Background(), 7, Patch{AudioFormat: ptr("ogg")}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for format, got %v", err)
	}
	if _, err := store.Update(context.Background(), 7, Patch{MaxRetries: ptr(-1)}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for retries, got %v", err)
	}
}

func TestUpdateEmptyPatchReturnsCurrent(t *testing.T) {
	stored := Defaults(7)
	db := &stubQuerier{stored: &stored}
	store, _ := NewStore(db)

	got, err := store.Update(context.Background(), 7, Patch{})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got != stored {
		t.Fatalf("expected stored settings back, got %+v", got)
	}
	if len(db.execs) != 0 {
		t.Fatalf("no statement expected, got %v", db.execs)
	}
}
