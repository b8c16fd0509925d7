package converter_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"needledrop/internal/converter"
	"needledrop/internal/logging"
	"needledrop/internal/services"
)

type stubTranscoder struct {
	monoErr    error
	failCodecs map[string]error
	monoCalls  []string
	encodes    []string
}

func (s *stubTranscoder) ConvertMono(ctx context.Context, src, dst string) error {
	s.monoCalls = append(s.monoCalls, dst)
	if s.monoErr != nil {
		return s.monoErr
	}
	return os.WriteFile(dst, []byte("wav"), 0o644)
}

func (s *stubTranscoder) Encode(ctx context.Context, src, dst, codec, bitrate string) error {
	s.encodes = append(s.encodes, codec+":"+bitrate)
	if err, ok := s.failCodecs[codec]; ok {
		return err
	}
	return os.WriteFile(dst, []byte(codec), 0o644)
}

func writeSource(t *testing.T) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "apple_music_1700000000000")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	src := filepath.Join(dir, "track.m4a")
	if err := os.WriteFile(src, []byte("source-audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	return src
}

func newConverter(t *testing.T, transcoder converter.Transcoder) (*converter.Converter, string) {
	t.Helper()
	audioDir := filepath.Join(t.TempDir(), "audio")
	conv, err := converter.New(audioDir, transcoder, logging.NewNop(),
		converter.WithNamer(func() string { return "audio_1700000000000_abc123" }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return conv, audioDir
}

func TestConvertProducesAllArtifacts(t *testing.T) {
	transcoder := &stubTranscoder{}
	conv, audioDir := newConverter(t, transcoder)
	src := writeSource(t)

	artifacts, err := conv.Convert(context.Background(), src)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if artifacts.OriginalName != "audio_1700000000000_abc123_original.m4a" {
		t.Fatalf("unexpected original name %q", artifacts.OriginalName)
	}
	if artifacts.WavName != "audio_1700000000000_abc123.wav" {
		t.Fatalf("unexpected wav name %q", artifacts.WavName)
	}
	if artifacts.PlaybackName != "audio_1700000000000_abc123.m4a" {
		t.Fatalf("unexpected playback name %q", artifacts.PlaybackName)
	}
	for _, path := range []string{artifacts.OriginalPath, artifacts.WavPath, artifacts.PlaybackPath} {
		if !strings.HasPrefix(path, audioDir) {
			t.Fatalf("artifact %q outside audio directory", path)
		}
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("artifact missing: %v", err)
		}
	}
	if len(transcoder.encodes) != 1 || transcoder.encodes[0] != "aac_at:192k" {
		t.Fatalf("expected single aac_at encode, got %v", transcoder.encodes)
	}
}

func TestConvertRemovesScratchFiles(t *testing.T) {
	conv, _ := newConverter(t, &stubTranscoder{})
	src := writeSource(t)

	if _, err := conv.Convert(context.Background(), src); err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("scratch file should be gone, stat err %v", err)
	}
	if _, err := os.Stat(filepath.Dir(src)); !os.IsNotExist(err) {
		t.Fatalf("scratch directory should be gone, stat err %v", err)
	}
}

func TestConvertFallsBackThroughEncoderChain(t *testing.T) {
	transcoder := &stubTranscoder{failCodecs: map[string]error{
		"aac_at": errors.New("unknown encoder"),
		"aac":    errors.New("unknown encoder"),
	}}
	conv, _ := newConverter(t, transcoder)

	artifacts, err := conv.Convert(context.Background(), writeSource(t))
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if artifacts.PlaybackName != "audio_1700000000000_abc123.mp3" {
		t.Fatalf("expected mp3 fallback, got %q", artifacts.PlaybackName)
	}
	want := []string{"aac_at:192k", "aac:192k", "libmp3lame:192k"}
	if len(transcoder.encodes) != len(want) {
		t.Fatalf("expected full chain %v, got %v", want, transcoder.encodes)
	}
	for i, enc := range want {
		if transcoder.encodes[i] != enc {
			t.Fatalf("encode %d = %q, want %q", i, transcoder.encodes[i], enc)
		}
	}
}

func TestConvertFailsWhenEveryEncoderFails(t *testing.T) {
	transcoder := &stubTranscoder{failCodecs: map[string]error{
		"aac_at":     errors.New("unknown encoder aac_at"),
		"aac":        errors.New("unknown encoder aac"),
		"libmp3lame": errors.New("unknown encoder libmp3lame"),
	}}
	conv, audioDir := newConverter(t, transcoder)
	src := writeSource(t)

	_, err := conv.Convert(context.Background(), src)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if !strings.Contains(err.Error(), "libmp3lame") {
		t.Fatalf("aggregate error missing encoder detail: %v", err)
	}
	if _, statErr := os.Stat(src); statErr != nil {
		t.Fatalf("source must survive a failed conversion: %v", statErr)
	}
	leftovers, err := os.ReadDir(audioDir)
	if err != nil {
		t.Fatalf("read audio dir: %v", err)
	}
	if len(leftovers) != 0 {
		t.Fatalf("failed conversion left partial artifacts: %v", leftovers)
	}
}

func TestConvertSurfacesWavFailure(t *testing.T) {
	transcoder := &stubTranscoder{monoErr: errors.New("decode failed")}
	conv, audioDir := newConverter(t, transcoder)

	_, err := conv.Convert(context.Background(), writeSource(t))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
	if len(transcoder.encodes) != 0 {
		t.Fatalf("playback encode must not run after wav failure, got %v", transcoder.encodes)
	}
	leftovers, readErr := os.ReadDir(audioDir)
	if readErr != nil {
		t.Fatalf("read audio dir: %v", readErr)
	}
	if len(leftovers) != 0 {
		t.Fatalf("failed conversion left partial artifacts: %v", leftovers)
	}
}

func TestConvertRejectsEmptySource(t *testing.T) {
	conv, _ := newConverter(t, &stubTranscoder{})
	if _, err := conv.Convert(context.Background(), "  "); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCleanupWavIsIdempotent(t *testing.T) {
	conv, audioDir := newConverter(t, &stubTranscoder{})
	if err := os.MkdirAll(audioDir, 0o755); err != nil {
		t.Fatal(err)
	}
	wav := filepath.Join(audioDir, "audio_1.wav")
	if err := os.WriteFile(wav, []byte("wav"), 0o644); err != nil {
		t.Fatal(err)
	}

	conv.CleanupWav(wav)
	if _, err := os.Stat(wav); !os.IsNotExist(err) {
		t.Fatalf("wav should be removed, stat err %v", err)
	}
	conv.CleanupWav(wav)
	conv.CleanupWav("")
}
