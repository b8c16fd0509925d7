package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"needledrop/internal/analysis"
	"needledrop/internal/jobqueue"
	"needledrop/internal/logging"
	"needledrop/internal/services"
	"needledrop/internal/tracks"
)

type fakeAnalyzer struct {
	features analysis.Features
	err      error
	wavName  string
	calls    int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, wavName string) (analysis.Features, error) {
	f.calls++
	f.wavName = wavName
	if f.err != nil {
		return analysis.Features{}, f.err
	}
	return f.features, nil
}

type fakeWriter struct {
	trackID  string
	friendID int
	update   tracks.Update
	err      error
	calls    int
}

func (f *fakeWriter) ApplyResult(ctx context.Context, trackID string, friendID int, update tracks.Update) error {
	f.calls++
	f.trackID = trackID
	f.friendID = friendID
	f.update = update
	return f.err
}

type fakeCleaner struct {
	paths []string
}

func (f *fakeCleaner) CleanupWav(path string) {
	f.paths = append(f.paths, path)
}

func ptr[T any](v T) *T { return &v }

func analyzeJob(t *testing.T, payload AnalyzePayload) *jobqueue.Job {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return &jobqueue.Job{ID: "an-1", Name: JobAnalyze, Data: data}
}

func TestAnalyzeHandlerWritesFeaturesAndPlayback(t *testing.T) {
	analyzer := &fakeAnalyzer{features: analysis.Features{
		BPM:          ptr(127),
		Key:          "F# minor",
		Danceability: ptr(1.235),
		Duration:     ptr(216),
	}}
	writer := &fakeWriter{}
	cleaner := &fakeCleaner{}
	progress := &fakeProgress{}
	handler := NewAnalyzeHandler("/var/lib/needledrop/audio", analyzer, writer, cleaner, progress, logging.NewNop())

	payload := AnalyzePayload{
		TrackID:          "T1",
		FriendID:         7,
		WavFileName:      "audio_1_abc.wav",
		PlaybackFileName: "audio_1_abc.m4a",
	}
	result, err := handler.Handle(context.Background(), analyzeJob(t, payload))
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if analyzer.wavName != "audio_1_abc.wav" {
		t.Fatalf("analyzer fed %q", analyzer.wavName)
	}
	if writer.trackID != "T1" || writer.friendID != 7 {
		t.Fatalf("write keyed (%q, %d)", writer.trackID, writer.friendID)
	}
	if writer.update.LocalAudioURL == nil || *writer.update.LocalAudioURL != "audio_1_abc.m4a" {
		t.Fatalf("playback reference not written: %+v", writer.update)
	}
	if writer.update.BPM == nil || *writer.update.BPM != 127 {
		t.Fatalf("bpm not written: %+v", writer.update)
	}

	got := result.(AnalyzeResult)
	if got.Filename != "audio_1_abc.m4a" || got.Key != "F# minor" {
		t.Fatalf("unexpected result %+v", got)
	}
	want := []int{10, 70, 90}
	for i := range want {
		if i >= len(progress.updates) || progress.updates[i] != want[i] {
			t.Fatalf("progress updates = %v, want %v", progress.updates, want)
		}
	}
}

func TestAnalyzeHandlerCleansWavOnSuccess(t *testing.T) {
	cleaner := &fakeCleaner{}
	handler := NewAnalyzeHandler("/audio", &fakeAnalyzer{}, &fakeWriter{}, cleaner, nil, logging.NewNop())

	payload := AnalyzePayload{TrackID: "T1", FriendID: 7, WavFileName: "a.wav", PlaybackFileName: "a.m4a"}
	if _, err := handler.Handle(context.Background(), analyzeJob(t, payload)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(cleaner.paths) != 1 || cleaner.paths[0] != filepath.Join("/audio", "a.wav") {
		t.Fatalf("wav cleanup = %v", cleaner.paths)
	}
}

func TestAnalyzeHandlerCleansWavOnFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{err: services.Wrap(services.ErrTransient, "analyze", "analyze", "extractor down", nil)}
	writer := &fakeWriter{}
	cleaner := &fakeCleaner{}
	handler := NewAnalyzeHandler("/audio", analyzer, writer, cleaner, nil, logging.NewNop())

	payload := AnalyzePayload{TrackID: "T1", FriendID: 7, WavFileName: "a.wav", PlaybackFileName: "a.m4a"}
	_, err := handler.Handle(context.Background(), analyzeJob(t, payload))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected analyzer error, got %v", err)
	}
	if len(cleaner.paths) != 1 {
		t.Fatalf("wav must be cleaned after failure, got %v", cleaner.paths)
	}
	if writer.calls != 0 {
		t.Fatal("write must not run after analysis failure")
	}
}

func TestAnalyzeHandlerPartialFeatures(t *testing.T) {
	analyzer := &fakeAnalyzer{features: analysis.Features{BPM: ptr(98)}}
	writer := &fakeWriter{}
	handler := NewAnalyzeHandler("/audio", analyzer, writer, &fakeCleaner{}, nil, logging.NewNop())

	payload := AnalyzePayload{TrackID: "T1", FriendID: 7, WavFileName: "a.wav", PlaybackFileName: "a.m4a"}
	if _, err := handler.Handle(context.Background(), analyzeJob(t, payload)); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if writer.update.Key != nil || writer.update.Danceability != nil || writer.update.DurationSeconds != nil {
		t.Fatalf("absent features must stay nil: %+v", writer.update)
	}
	if writer.update.BPM == nil || *writer.update.BPM != 98 {
		t.Fatalf("bpm missing: %+v", writer.update)
	}
}

func TestAnalyzeHandlerRejectsMissingArtifacts(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	handler := NewAnalyzeHandler("/audio", analyzer, &fakeWriter{}, &fakeCleaner{}, nil, logging.NewNop())

	_, err := handler.Handle(context.Background(), analyzeJob(t, AnalyzePayload{TrackID: "T1", FriendID: 7}))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if analyzer.calls != 0 {
		t.Fatal("analysis must not run without artifacts")
	}
}

func TestAnalyzeHandlerPropagatesWriteFailure(t *testing.T) {
	writer := &fakeWriter{err: services.Wrap(services.ErrTransient, "write", "apply", "db down", nil)}
	cleaner := &fakeCleaner{}
	handler := NewAnalyzeHandler("/audio", &fakeAnalyzer{}, writer, cleaner, nil, logging.NewNop())

	payload := AnalyzePayload{TrackID: "T1", FriendID: 7, WavFileName: "a.wav", PlaybackFileName: "a.m4a"}
	_, err := handler.Handle(context.Background(), analyzeJob(t, payload))
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected write error, got %v", err)
	}
	if len(cleaner.paths) != 1 {
		t.Fatal("wav must be cleaned even when the write fails")
	}
}
