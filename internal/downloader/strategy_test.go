package downloader_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"needledrop/internal/downloader"
	"needledrop/internal/logging"
	"needledrop/internal/services"
)

type stubDirTool struct {
	name  string
	err   error
	calls []string
	log   *[]string
}

func (s *stubDirTool) Download(ctx context.Context, url, outDir string, onOutput func(string)) (string, error) {
	s.calls = append(s.calls, url)
	if s.log != nil {
		*s.log = append(*s.log, s.name)
	}
	if s.err != nil {
		return "", s.err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(outDir, "track.m4a")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

type stubFileTool struct {
	name  string
	err   error
	calls []string
	log   *[]string
}

func (s *stubFileTool) Download(ctx context.Context, url, destPath string, onOutput func(string)) (string, error) {
	s.calls = append(s.calls, url)
	if s.log != nil {
		*s.log = append(*s.log, s.name)
	}
	if s.err != nil {
		return "", s.err
	}
	if err := os.WriteFile(destPath, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return destPath, nil
}

func newStrategy(t *testing.T, callLog *[]string, freyrErr, spotdlErr, ytdlpErr, scdlErr error) (*downloader.Strategy, *stubDirTool, *stubDirTool, *stubFileTool, *stubDirTool) {
	t.Helper()
	fr := &stubDirTool{name: "freyr", err: freyrErr, log: callLog}
	sp := &stubDirTool{name: "spotdl", err: spotdlErr, log: callLog}
	yt := &stubFileTool{name: "yt-dlp", err: ytdlpErr, log: callLog}
	sc := &stubDirTool{name: "scdl", err: scdlErr, log: callLog}
	strategy := downloader.NewStrategy(t.TempDir(), fr, sp, yt, sc, logging.NewNop())
	return strategy, fr, sp, yt, sc
}

func TestFetchRejectsEmptyURLsWithoutInvokingTools(t *testing.T) {
	var callLog []string
	strategy, _, _, _, _ := newStrategy(t, &callLog, nil, nil, nil, nil)

	_, err := strategy.Fetch(context.Background(), downloader.URLs{}, "")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(callLog) != 0 {
		t.Fatalf("no tool should run for empty payload, got %v", callLog)
	}
}

func TestFetchFallsBackAcrossSources(t *testing.T) {
	var callLog []string
	strategy, fr, _, yt, _ := newStrategy(t, &callLog, errors.New("exit status 1"), nil, nil, nil)

	urls := downloader.URLs{AppleMusic: "https://a/1", YouTube: "https://y/1"}
	path, err := strategy.Fetch(context.Background(), urls, "")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(fr.calls) != 1 || fr.calls[0] != "https://a/1" {
		t.Fatalf("expected freyr attempt first, got %v", fr.calls)
	}
	if len(yt.calls) != 1 {
		t.Fatalf("expected yt-dlp fallback, got %v", yt.calls)
	}
	if !strings.HasSuffix(path, ".m4a") {
		t.Fatalf("unexpected result path %q", path)
	}
}

func TestFetchHonorsPreferredTool(t *testing.T) {
	var callLog []string
	strategy, _, sp, _, _ := newStrategy(t, &callLog, nil, nil, nil, nil)

	urls := downloader.URLs{AppleMusic: "https://a/1", Spotify: "https://s/1"}
	_, err := strategy.Fetch(context.Background(), urls, downloader.ToolSpotdl)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(callLog) == 0 || callLog[0] != "spotdl" {
		t.Fatalf("expected spotdl first, call order %v", callLog)
	}
	if len(sp.calls) != 1 || sp.calls[0] != "https://s/1" {
		t.Fatalf("unexpected spotdl calls %v", sp.calls)
	}
}

func TestFetchPreferredFailureStillRunsChain(t *testing.T) {
	var callLog []string
	strategy, fr, _, _, _ := newStrategy(t, &callLog, nil, errors.New("network down"), nil, nil)

	urls := downloader.URLs{AppleMusic: "https://a/1", Spotify: "https://s/1"}
	_, err := strategy.Fetch(context.Background(), urls, downloader.ToolSpotdl)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if callLog[0] != "spotdl" {
		t.Fatalf("expected spotdl attempted first, got %v", callLog)
	}
	if len(fr.calls) == 0 {
		t.Fatal("expected freyr fallback after preferred failure")
	}
}

func TestFetchExhaustionAggregatesFailures(t *testing.T) {
	var callLog []string
	strategy, _, _, _, _ := newStrategy(t, &callLog,
		errors.New("freyr down"), errors.New("spotdl down"), errors.New("ytdlp down"), errors.New("scdl down"))

	urls := downloader.URLs{
		AppleMusic: "https://a/1",
		Spotify:    "https://s/1",
		YouTube:    "https://y/1",
		SoundCloud: "https://sc/1",
	}
	_, err := strategy.Fetch(context.Background(), urls, "")
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool marker, got %v", err)
	}
	for _, fragment := range []string{"no source produced audio", "freyr down", "scdl down"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("aggregate error missing %q: %v", fragment, err)
		}
	}
	// apple/freyr, spotify/freyr, spotify/spotdl, youtube, soundcloud.
	if len(callLog) != 5 {
		t.Fatalf("expected 5 attempts, got %v", callLog)
	}
}

func TestFetchSkipsAbsentSources(t *testing.T) {
	var callLog []string
	strategy, _, _, yt, _ := newStrategy(t, &callLog, nil, nil, nil, nil)

	_, err := strategy.Fetch(context.Background(), downloader.URLs{YouTube: "https://y/1"}, "")
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if len(callLog) != 1 || callLog[0] != "yt-dlp" {
		t.Fatalf("expected only yt-dlp to run, got %v", callLog)
	}
	if len(yt.calls) != 1 {
		t.Fatalf("unexpected yt-dlp calls %v", yt.calls)
	}
}
