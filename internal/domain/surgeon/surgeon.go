// Package surgeon is the Clip Surgeon (component F): given a fetched clip
// and its selected Intervals, produces a single MP4 containing exactly
// those intervals, joined cleanly.
package surgeon

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/segments"
	"github.com/mlb-digital/hapctl/internal/ports"
)

// Options configures the micro-fade applied at every interval boundary
// (§9 open question ii: kept as a parameter rather than a constant).
type Options struct {
	FadeDuration time.Duration // default 50ms
}

// Operate extracts each interval from in, applies the configured fade, and
// concatenates the results into out (§4.F). The duration invariant
// (output duration == sum of interval durations, within one frame) is the
// caller's to verify against VideoTool.Probe; Operate itself does not
// re-probe.
func Operate(ctx context.Context, tool ports.VideoTool, in string, intervals []segments.Interval, scratchDir, out string, opts Options) error {
	if len(intervals) == 0 {
		return haperrors.New(haperrors.KindInternal, "clip surgeon requires at least one interval")
	}
	if opts.FadeDuration <= 0 {
		opts.FadeDuration = 50 * time.Millisecond
	}

	if len(intervals) == 1 {
		iv := intervals[0]
		return tool.Trim(ctx, in, toDuration(iv.Start), toDuration(iv.End), out, true, opts.FadeDuration)
	}

	runID := uuid.NewString()
	var temps []string
	defer func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}()

	for i, iv := range intervals {
		tmp := filepath.Join(scratchDir, fmt.Sprintf("surgeon-%s-%03d.mp4", runID, i))
		if err := tool.Trim(ctx, in, toDuration(iv.Start), toDuration(iv.End), tmp, true, opts.FadeDuration); err != nil {
			return err
		}
		temps = append(temps, tmp)
	}

	return tool.ConcatReencode(ctx, temps, out)
}

func toDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

// TotalDuration sums the requested interval durations, used to check the
// surgeon's output against §8 property 5 (duration invariant within one
// frame).
func TotalDuration(intervals []segments.Interval) time.Duration {
	var totalSec float64
	for _, iv := range intervals {
		totalSec += iv.End - iv.Start
	}
	return time.Duration(math.Round(totalSec * float64(time.Second)))
}
