package timeline

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mlb-digital/hapctl/internal/ports"
)

type fakeTool struct {
	graph      string
	mapping    []string
	concatIns  []string
}

func (f *fakeTool) Probe(ctx context.Context, path string) (ports.ProbeResult, error) { return ports.ProbeResult{}, nil }
func (f *fakeTool) ExtractAudioMono16k(ctx context.Context, in, out string) error      { return nil }
func (f *fakeTool) Trim(ctx context.Context, in string, start, end time.Duration, out string, audioFade bool, fadeDuration time.Duration) error {
	return nil
}
func (f *fakeTool) ConcatReencode(ctx context.Context, ins []string, out string) error {
	f.concatIns = ins
	return nil
}
func (f *fakeTool) ExecFilterGraph(ctx context.Context, ins []string, graph string, mapping []string, out string) error {
	f.graph = graph
	f.mapping = mapping
	return nil
}

func TestAssemble_SingleItemPassesThrough(t *testing.T) {
	tool := &fakeTool{}
	items := []Item{{Path: "a.mp4", Duration: 2 * time.Second}}
	res, err := Assemble(context.Background(), tool, items, "out.mp4", Options{})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.OutputDuration != 2*time.Second {
		t.Fatalf("duration = %v, want 2s", res.OutputDuration)
	}
	if len(tool.concatIns) != 1 {
		t.Fatalf("expected a single-input concat passthrough")
	}
}

func TestAssemble_MultiItemCrossfadeDuration(t *testing.T) {
	tool := &fakeTool{}
	items := []Item{
		{Path: "a.mp4", Duration: 2 * time.Second},
		{Path: "b.mp4", Duration: 3 * time.Second},
		{Path: "c.mp4", Duration: 1500 * time.Millisecond},
	}
	opts := Options{CrossfadeFrames: 10, FPS: 30}
	res, err := Assemble(context.Background(), tool, items, "out.mp4", opts)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	frames, fps := 10, float64(30)
	fadeDur := time.Duration(float64(frames) / fps * float64(time.Second))
	want := 2*time.Second + 3*time.Second + 1500*time.Millisecond - 2*fadeDur
	if res.OutputDuration != want {
		t.Fatalf("duration = %v, want %v", res.OutputDuration, want)
	}
	if tool.graph == "" {
		t.Fatalf("expected a non-empty filter graph")
	}
	if len(tool.mapping) != 2 {
		t.Fatalf("mapping = %v, want 2 entries (video, audio)", tool.mapping)
	}
}

func TestBuildCrossfadeGraph_OffsetsShortenWithEachStage(t *testing.T) {
	items := []Item{
		{Path: "a.mp4", Duration: 2 * time.Second},
		{Path: "b.mp4", Duration: 3 * time.Second},
		{Path: "c.mp4", Duration: 1500 * time.Millisecond},
	}
	frames, fps := 10, float64(30)
	fadeDur := time.Duration(float64(frames) / fps * float64(time.Second))
	graph, _ := buildCrossfadeGraph(items, fadeDur, 30)

	f := fadeDur.Seconds()
	wantOffset1 := 2.0 - f
	wantOffset2 := 2.0 + 3.0 - 2*f

	if !strings.Contains(graph, fmt.Sprintf("offset=%.3f", wantOffset1)) {
		t.Fatalf("graph missing first-stage offset %.3f (one fade subtracted): %s", wantOffset1, graph)
	}
	if !strings.Contains(graph, fmt.Sprintf("offset=%.3f", wantOffset2)) {
		t.Fatalf("graph missing second-stage offset %.3f (two fades subtracted): %s", wantOffset2, graph)
	}
}

func TestAssemble_NoItemsErrors(t *testing.T) {
	tool := &fakeTool{}
	if _, err := Assemble(context.Background(), tool, nil, "out.mp4", Options{}); err == nil {
		t.Fatalf("expected error for empty item list")
	}
}
