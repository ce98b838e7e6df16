// Package timeline is the Timeline Assembler (component G): joins the
// per-clip surgeon outputs, transition graphics, and an optional title
// card into one MP4 using audio-aware crossfade dissolves (§4.G).
package timeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/ports"
)

// Options configures the crossfade chain. Defaults match §6.
type Options struct {
	CrossfadeFrames int     // default 10
	FPS             float64 // default 30
}

// Item is one resolved element of the timeline: a local file and its
// probed duration. Items excluded due to MediaCorrupt inputs should simply
// be omitted by the caller before calling Assemble; Assemble itself does
// not re-probe.
type Item struct {
	Path     string
	Duration time.Duration
	Label    string // for diagnostics only: "title_card" / clip id / transition key
}

// Result reports what Assemble actually built. Assemble leaves Excluded
// empty: unreadable inputs are left out by the caller before the call (see
// Item), so reporting them is the caller's job.
type Result struct {
	OutputDuration time.Duration
	Excluded       []string
}

// Assemble builds the crossfade chain described in §4.G: an (n-1)-stage
// chain where stage j's video fade and audio crossfade are offset at
// offset_j = (sum_{i<=j} duration_i) - (j+1)*(k/fps).
func Assemble(ctx context.Context, tool ports.VideoTool, items []Item, out string, opts Options) (Result, error) {
	if opts.CrossfadeFrames <= 0 {
		opts.CrossfadeFrames = 10
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if len(items) == 0 {
		return Result{}, haperrors.New(haperrors.KindMediaFailure, "timeline assembler received no items")
	}

	fadeDur := time.Duration(float64(opts.CrossfadeFrames) / opts.FPS * float64(time.Second))

	if len(items) == 1 {
		if err := singlePassthrough(ctx, tool, items[0].Path, out); err != nil {
			return Result{}, err
		}
		return Result{OutputDuration: items[0].Duration}, nil
	}

	ins := make([]string, len(items))
	for i, it := range items {
		ins[i] = it.Path
	}

	graph, mapping := buildCrossfadeGraph(items, fadeDur, opts.FPS)

	if err := tool.ExecFilterGraph(ctx, ins, graph, mapping, out); err != nil {
		return Result{}, err
	}

	var total time.Duration
	for _, it := range items {
		total += it.Duration
	}
	total -= fadeDur * time.Duration(len(items)-1)

	return Result{OutputDuration: total}, nil
}

// buildCrossfadeGraph emits an (n-1)-stage xfade/acrossfade chain,
// normalising every video stream to a common timebase and framerate first
// (§4.G), in the string-built filter-graph style grounded on
// amaan7744-yt-shorts-auto's renderer.go.
func buildCrossfadeGraph(items []Item, fadeDur time.Duration, fps float64) (string, []string) {
	fadeSec := fadeDur.Seconds()
	var parts []string

	for i := range items {
		parts = append(parts, fmt.Sprintf("[%d:v]settb=AVTB,fps=%g[v%d]", i, fps, i))
		parts = append(parts, fmt.Sprintf("[%d:a]aresample=async=1[a%d]", i, i))
	}

	cumulative := 0.0
	curV := "v0"
	curA := "a0"
	for i := 1; i < len(items); i++ {
		offset := cumulative + items[i-1].Duration.Seconds() - fadeSec
		if offset < 0 {
			offset = 0
		}
		nextV := fmt.Sprintf("vx%d", i)
		nextA := fmt.Sprintf("ax%d", i)
		parts = append(parts, fmt.Sprintf(
			"[%s][v%d]xfade=transition=fade:duration=%.3f:offset=%.3f[%s]",
			curV, i, fadeSec, offset, nextV))
		parts = append(parts, fmt.Sprintf(
			"[%s][a%d]acrossfade=d=%.3f:c1=tri:c2=tri[%s]",
			curA, i, fadeSec, nextA))
		cumulative = offset
		curV, curA = nextV, nextA
	}

	graph := strings.Join(parts, ";")
	return graph, []string{"[" + curV + "]", "[" + curA + "]"}
}

func singlePassthrough(ctx context.Context, tool ports.VideoTool, in, out string) error {
	return tool.ConcatReencode(ctx, []string{in}, out)
}
