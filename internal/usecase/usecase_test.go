package usecase

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/ports"
)

func TestAssemble_PlayAndTitleCard(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{}
	provider := &fakeProvider{
		words: []rundown.Word{
			{Text: "hello", Start: 0, End: 0.5},
			{Text: "world", Start: 0.5, End: 1.0},
		},
		duration: 1 * time.Second,
	}
	fetcher := &fakeFetcher{}
	cache := newFakeCache()

	uc := New(Deps{
		Video:   video,
		Primary: provider,
		Fetcher: fetcher,
		Cache:   cache,
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}, Config{WorkingDirRoot: tmp})

	rd := rundown.Rundown{Items: []rundown.RundownItem{
		{Kind: rundown.ItemTitleCard, TitleCardSourceURL: "https://example.com/title.mp4"},
		{
			Kind:      rundown.ItemPlay,
			Clip:      rundown.Clip{ID: "c1", Source: "https://example.com/c1.mp4"},
			Selection: []int{0, 1},
		},
	}}

	out := filepath.Join(tmp, "assembled.mp4")
	res, err := uc.Assemble(context.Background(), rd, filepath.Join(tmp, "transitions"), out)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(res.Items))
	}
	for _, it := range res.Items {
		if it.Status != "ok" {
			t.Fatalf("item %s status = %s, want ok", it.Label, it.Status)
		}
	}
	if !cache.putCalled {
		t.Fatalf("expected transcription result to be cached")
	}
	if len(video.execFilterGraphs) != 1 {
		t.Fatalf("expected exactly one filter-graph execution for the 2-item timeline, got %d", len(video.execFilterGraphs))
	}
}

func TestAssemble_InvalidRundownRejected(t *testing.T) {
	t.Parallel()

	uc := New(Deps{Video: &fakeVideoTool{}}, Config{})
	rd := rundown.Rundown{Items: []rundown.RundownItem{
		{Kind: rundown.ItemTitleCard, TitleCardSourceURL: "https://example.com/a.mp4"},
		{Kind: rundown.ItemTitleCard, TitleCardSourceURL: "https://example.com/b.mp4"},
	}}
	if _, err := uc.Assemble(context.Background(), rd, "", "out.mp4"); err == nil {
		t.Fatalf("expected validation error for a rundown with two title cards")
	}
}

func TestAssemble_DropsRecoverableClipFailure(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{}
	fetcher := &fakeFetcher{failSource: "https://example.com/bad.mp4"}
	provider := &fakeProvider{words: []rundown.Word{{Text: "hi", Start: 0, End: 0.2}}, duration: 200 * time.Millisecond}

	uc := New(Deps{
		Video:   video,
		Primary: provider,
		Fetcher: fetcher,
		Cache:   newFakeCache(),
		Logger:  slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}, Config{WorkingDirRoot: tmp})

	rd := rundown.Rundown{Items: []rundown.RundownItem{
		{Kind: rundown.ItemPlay, Clip: rundown.Clip{ID: "bad", Source: "https://example.com/bad.mp4"}, Selection: []int{0}},
		{Kind: rundown.ItemPlay, Clip: rundown.Clip{ID: "good", Source: "https://example.com/good.mp4"}, Selection: []int{0}},
	}}

	res, err := uc.Assemble(context.Background(), rd, filepath.Join(tmp, "transitions"), filepath.Join(tmp, "out.mp4"))
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(res.Items))
	}
	if res.Items[0].Status != "skipped" {
		t.Fatalf("expected the unreachable source to be skipped, got %s", res.Items[0].Status)
	}
	if res.Items[1].Status != "ok" {
		t.Fatalf("expected the good clip to succeed, got %s", res.Items[1].Status)
	}
}

func TestAssembleSyncedNarration_PlacesAndMixes(t *testing.T) {
	t.Parallel()

	tmp := t.TempDir()
	video := &fakeVideoTool{}
	fetcher := &fakeFetcher{}
	gen := &fakeNarrationGenerator{}
	tts := &fakeTTS{}

	uc := New(Deps{
		Video:              video,
		Fetcher:            fetcher,
		NarrationGenerator: gen,
		TTS:                tts,
		Logger:             slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}, Config{WorkingDirRoot: tmp})

	clips := map[string]rundown.Clip{
		"c1": {ID: "c1", Source: "https://example.com/c1.mp4"},
	}
	analyses := map[string]rundown.Analysis{
		"c1": {ActionStart: 2, ActionEnd: 4, ActionPeak: 3, TotalDuration: 10, Description: "Home run"},
	}
	placements := map[string]rundown.NarrationPlacement{
		"c1": rundown.PlacementDuringAction,
	}

	out := filepath.Join(tmp, "narrated.mp4")
	res, err := uc.AssembleSyncedNarration(context.Background(), []string{"c1"}, clips, analyses, placements, "voice1", "excited", out)
	if err != nil {
		t.Fatalf("AssembleSyncedNarration: %v", err)
	}
	if len(res.Items) != 1 || res.Items[0].Status != "ok" {
		t.Fatalf("unexpected items: %+v", res.Items)
	}
	if len(video.trims) != 1 {
		t.Fatalf("expected exactly one action-window trim, got %d", len(video.trims))
	}
	if len(video.concats) != 1 {
		t.Fatalf("expected exactly one concat, got %d", len(video.concats))
	}
	if len(video.execFilterGraphs) != 1 {
		t.Fatalf("expected exactly one mix filter graph, got %d", len(video.execFilterGraphs))
	}
	if !gen.called || !tts.called {
		t.Fatalf("expected both narration generator and TTS to be invoked")
	}
}

func TestAssembleSyncedNarration_RequiresGeneratorAndTTS(t *testing.T) {
	t.Parallel()

	uc := New(Deps{Video: &fakeVideoTool{}}, Config{WorkingDirRoot: t.TempDir()})
	_, err := uc.AssembleSyncedNarration(context.Background(), []string{"c1"}, nil, nil, nil, "voice1", "excited", "out.mp4")
	if err == nil {
		t.Fatalf("expected validation error when narration generator and TTS are unset")
	}
}

type fakeNarrationGenerator struct {
	called bool
}

func (f *fakeNarrationGenerator) Generate(_ context.Context, _ rundown.Clip, analysis rundown.Analysis) (string, error) {
	f.called = true
	return "What a play: " + analysis.Description, nil
}

type fakeTTS struct {
	called bool
}

func (f *fakeTTS) Synthesize(_ context.Context, _, _, _ string) ([]byte, error) {
	f.called = true
	return []byte("mp3-bytes"), nil
}

type fakeVideoTool struct {
	trims            []string
	concats          [][]string
	execFilterGraphs []string
}

func (f *fakeVideoTool) Probe(_ context.Context, path string) (ports.ProbeResult, error) {
	return ports.ProbeResult{Duration: 1500 * time.Millisecond, FPS: 30, FrameCount: 45}, nil
}

func (f *fakeVideoTool) ExtractAudioMono16k(_ context.Context, _, outWav string) error {
	return os.WriteFile(outWav, []byte("wav"), 0o644)
}

func (f *fakeVideoTool) Trim(_ context.Context, _ string, _, _ time.Duration, out string, _ bool, _ time.Duration) error {
	f.trims = append(f.trims, out)
	return os.WriteFile(out, []byte("trim"), 0o644)
}

func (f *fakeVideoTool) ConcatReencode(_ context.Context, ins []string, out string) error {
	f.concats = append(f.concats, ins)
	return os.WriteFile(out, []byte("concat"), 0o644)
}

func (f *fakeVideoTool) ExecFilterGraph(_ context.Context, _ []string, graph string, _ []string, out string) error {
	f.execFilterGraphs = append(f.execFilterGraphs, graph)
	return os.WriteFile(out, []byte("graph"), 0o644)
}

type fakeProvider struct {
	words    []rundown.Word
	duration time.Duration
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Transcribe(_ context.Context, _ string) (ports.TranscriptionResult, error) {
	return ports.TranscriptionResult{Words: f.words, Duration: f.duration}, nil
}

type fakeFetcher struct {
	failSource string
}

func (f *fakeFetcher) Fetch(_ context.Context, sourceURL, destDir string) (string, error) {
	if sourceURL == f.failSource {
		return "", haperrors.New(haperrors.KindNetwork, "fetch failed: "+sourceURL)
	}
	path := filepath.Join(destDir, "fetched.mp4")
	return path, os.WriteFile(path, []byte("video"), 0o644)
}

type fakeCache struct {
	entries   map[string]rundown.TranscriptionCacheEntry
	putCalled bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]rundown.TranscriptionCacheEntry{}}
}

func (c *fakeCache) Get(_ context.Context, sourceURL string) (rundown.TranscriptionCacheEntry, bool, error) {
	e, ok := c.entries[sourceURL]
	return e, ok, nil
}

func (c *fakeCache) Put(_ context.Context, entry rundown.TranscriptionCacheEntry) error {
	c.putCalled = true
	c.entries[entry.SourceURL] = entry
	return nil
}
