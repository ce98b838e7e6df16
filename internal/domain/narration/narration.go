// Package narration is the Synced-Narration Mixer (component H): the
// alternative terminal path that trims clips around an action window,
// concatenates them without crossfade, and overlays positioned narration
// with ducking of the original commentary (§4.H).
package narration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/ports"
)

// ActionBuffer is the fixed clamp window around a clip's action span
// (§4.H step 1).
const ActionBuffer = 1500 * time.Millisecond

// Options configures the mixer's gain stages; defaults match §6.
type Options struct {
	DuckingFloor   float64 // gain inside a narration window, default 0.2
	DuckingCeiling float64 // gain outside any narration window, default 0.7
	NarrationGain  float64 // gain applied to each narration input, default 2.0
	FinalGain      float64 // post-mix gain, default 1.5
	LimiterCeiling float64 // alimiter ceiling, default 0.97 (Open Question i)
}

func (o *Options) applyDefaults() {
	if o.DuckingFloor == 0 {
		o.DuckingFloor = 0.2
	}
	if o.DuckingCeiling == 0 {
		o.DuckingCeiling = 0.7
	}
	if o.NarrationGain == 0 {
		o.NarrationGain = 2.0
	}
	if o.FinalGain == 0 {
		o.FinalGain = 1.5
	}
	if o.LimiterCeiling == 0 {
		o.LimiterCeiling = 0.97
	}
}

// TrimPlan is the per-clip trim window and the cumulative placement data
// later stages need to resolve narration timing (§4.H step 1).
type TrimPlan struct {
	ClipID           string
	TrimStart        float64 // absolute seconds in the source clip
	TrimEnd          float64
	StartInFinal     float64 // cumulative seconds once concatenated
	ActionPeakInClip float64
}

// PlanTrims computes, for each clip's Analysis, the ±1.5s buffered trim
// window (clamped to clip bounds) and its cumulative offset once every
// clip is concatenated in order (§4.H step 1). Clips without an analysis
// are omitted, per the per-clip state machine ("stays in Fetched").
func PlanTrims(clipIDs []string, analyses map[string]rundown.Analysis) []TrimPlan {
	var plans []TrimPlan
	cumulative := 0.0
	for _, id := range clipIDs {
		a, ok := analyses[id]
		if !ok {
			continue
		}
		start := a.ActionStart - ActionBuffer.Seconds()
		if start < 0 {
			start = 0
		}
		end := a.ActionEnd + ActionBuffer.Seconds()
		if end > a.TotalDuration {
			end = a.TotalDuration
		}
		plans = append(plans, TrimPlan{
			ClipID:           id,
			TrimStart:        start,
			TrimEnd:          end,
			StartInFinal:     cumulative,
			ActionPeakInClip: a.ActionPeak - start,
		})
		cumulative += end - start
	}
	return plans
}

// PlaceNarration computes a narration segment's start time in the final
// timeline per the placement formulas of §4.H step 3, clamped to >= 0.
func PlaceNarration(plan TrimPlan, placement rundown.NarrationPlacement, narrationDuration time.Duration) (float64, error) {
	d := narrationDuration.Seconds()
	var start float64
	switch placement {
	case rundown.PlacementBeforeAction:
		start = plan.StartInFinal + plan.ActionPeakInClip - d - 0.5
	case rundown.PlacementDuringAction:
		start = plan.StartInFinal + plan.ActionPeakInClip
	case rundown.PlacementAfterAction:
		start = plan.StartInFinal + plan.ActionPeakInClip + 1.0
	case rundown.PlacementBridge:
		start = plan.StartInFinal
	default:
		return 0, haperrors.New(haperrors.KindValidation, "unknown narration placement: "+string(placement))
	}
	if start < 0 {
		start = 0
	}
	return start, nil
}

// PlacedNarration is a narration segment with its resolved final-timeline
// start time and duration.
type PlacedNarration struct {
	AudioPath string
	StartSec  float64
	Duration  time.Duration
}

// Mix concatenates the trimmed clip fragments (no crossfade, to keep the
// cumulative-offset math in PlanTrims exact) and overlays the placed
// narrations with ducking, per §4.H steps 2-5. A final alimiter stage
// resolves the clipping risk named in §9 open question (i): the source's
// duck-then-boost-1.5 behaviour is not silently reproduced.
func Mix(ctx context.Context, tool ports.VideoTool, trimmedClips []string, placed []PlacedNarration, out string, opts Options) error {
	opts.applyDefaults()
	if len(trimmedClips) == 0 {
		return haperrors.New(haperrors.KindInternal, "narration mixer requires at least one trimmed clip")
	}

	concatenated := out + ".concat.mp4"
	if err := tool.ConcatReencode(ctx, trimmedClips, concatenated); err != nil {
		return err
	}

	graph, mapping := buildMixGraph(placed, opts)

	ins := append([]string{concatenated}, narrationPaths(placed)...)
	return tool.ExecFilterGraph(ctx, ins, graph, mapping, out)
}

func narrationPaths(placed []PlacedNarration) []string {
	paths := make([]string, len(placed))
	for i, p := range placed {
		paths[i] = p.AudioPath
	}
	return paths
}

// buildMixGraph builds the ducking + delay + mix + limiter filter graph,
// in the string-built style grounded on amaan7744-yt-shorts-auto's
// mixAudio (adelay + amix with explicit gain compensation).
func buildMixGraph(placed []PlacedNarration, opts Options) (string, []string) {
	var parts []string

	// Duck the original track: ceiling outside any narration window, floor
	// inside one, windows extended 0.5s past the narration's end (§4.H
	// step 4).
	duckExpr := fmt.Sprintf("%.3f", opts.DuckingCeiling)
	for _, p := range placed {
		winEnd := p.StartSec + p.Duration.Seconds() + 0.5
		duckExpr = fmt.Sprintf("if(between(t,%.3f,%.3f),%.3f,%s)", p.StartSec, winEnd, opts.DuckingFloor, duckExpr)
	}
	parts = append(parts, fmt.Sprintf("[0:a]volume='%s':eval=frame[orig]", duckExpr))

	mixInputs := []string{"[orig]"}
	for i, p := range placed {
		delayMs := int(p.StartSec * 1000)
		label := fmt.Sprintf("narr%d", i)
		parts = append(parts, fmt.Sprintf(
			"[%d:a]adelay=%d|%d,volume=%.3f[%s]", i+1, delayMs, delayMs, opts.NarrationGain, label))
		mixInputs = append(mixInputs, "["+label+"]")
	}

	parts = append(parts, fmt.Sprintf(
		"%samix=inputs=%d:duration=first:normalize=0,volume=%.3f,alimiter=limit=%.3f[aout]",
		strings.Join(mixInputs, ""), len(mixInputs), opts.FinalGain, opts.LimiterCeiling))

	graph := strings.Join(parts, ";")
	return graph, []string{"[0:v]", "[aout]"}
}
