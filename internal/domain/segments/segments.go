// Package segments builds the unified word∪gap Segment Model (component E)
// from a clip's word list and derives minimal intervals from a selection of
// segments (the Selection Reducer, component D).
package segments

import (
	"math"
	"sort"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
)

// floatEpsilon guards boundary comparisons against floating-point noise,
// the same tolerance HushCut's interval merge uses.
const floatEpsilon = 1e-9

// minGapSeconds is the smallest selectable unit of silence (§3): any gap
// this long or longer is split into round(d/0.3) equal Gap segments.
const minGapSeconds = 0.3

// Kind tags which variant a Segment holds.
type Kind string

const (
	KindWord Kind = "word"
	KindGap  Kind = "gap"
)

// Segment is one element of the Word∪Gap segmentation of a transcript.
type Segment struct {
	Kind  Kind
	Start float64
	End   float64
	Text  string

	// OriginalWordIndex is only meaningful when Kind == KindWord; it is the
	// index into the word list this segment was built from.
	OriginalWordIndex int
}

// Interval is a contiguous span of time to retain (§3).
type Interval struct {
	Start float64
	End   float64
}

// Build constructs the Segment list for a clip's word list and total
// duration (§3, §4.E). Gaps of at least minGapSeconds are split into
// round(d/0.3) equal-length Gap segments; shorter gaps, at the extremes or
// between words, are dropped rather than represented.
func Build(words []rundown.Word, totalDuration float64) ([]Segment, error) {
	for i := 0; i+1 < len(words); i++ {
		if words[i].End > words[i+1].Start+floatEpsilon {
			return nil, haperrors.New(haperrors.KindInternal, "words overlap; transcript invariant violated")
		}
	}

	var out []Segment
	cursor := 0.0

	appendGap := func(start, end float64) {
		if end-start < minGapSeconds-floatEpsilon {
			return
		}
		n := int(math.Round((end - start) / minGapSeconds))
		if n < 1 {
			n = 1
		}
		step := (end - start) / float64(n)
		for i := 0; i < n; i++ {
			gs := start + float64(i)*step
			ge := start + float64(i+1)*step
			out = append(out, Segment{Kind: KindGap, Start: gs, End: ge})
		}
	}

	for i, w := range words {
		if w.Start > cursor+floatEpsilon {
			appendGap(cursor, w.Start)
		}
		out = append(out, Segment{
			Kind:              KindWord,
			Start:             w.Start,
			End:               w.End,
			Text:              w.Text,
			OriginalWordIndex: i,
		})
		cursor = w.End
	}

	if totalDuration > cursor+floatEpsilon {
		appendGap(cursor, totalDuration)
	}

	return out, nil
}

// WordIndicesToSegmentIndices translates word indices into their position
// in segs (§4.E). Unknown word indices are skipped.
func WordIndicesToSegmentIndices(segs []Segment, wordIndices []int) []int {
	byWord := make(map[int]int, len(segs))
	for i, s := range segs {
		if s.Kind == KindWord {
			byWord[s.OriginalWordIndex] = i
		}
	}
	out := make([]int, 0, len(wordIndices))
	for _, wi := range wordIndices {
		if si, ok := byWord[wi]; ok {
			out = append(out, si)
		}
	}
	return out
}

// SegmentIndicesToWordIndices is the inverse of WordIndicesToSegmentIndices,
// restricted to the Word subset, satisfying §8 property 1 (round-tripping
// through the two conversions is the identity on word indices).
func SegmentIndicesToWordIndices(segs []Segment, segmentIndices []int) []int {
	out := make([]int, 0, len(segmentIndices))
	for _, si := range segmentIndices {
		if si < 0 || si >= len(segs) {
			continue
		}
		if segs[si].Kind == KindWord {
			out = append(out, segs[si].OriginalWordIndex)
		}
	}
	return out
}

// Reduce is the Selection Reducer (component D): a pure function mapping a
// set of selected segment indices plus a buffer into a minimal ordered
// list of Intervals (§4.D). Consecutive selected indices collapse into one
// buffered interval; intervals separated by less than mergeGap after
// buffering are merged.
//
// Grounded on the same sort-then-merge shape as HushCut's MergeIntervals,
// adapted from "merge overlapping silences" to "merge buffered selections".
func Reduce(segs []Segment, selected []int, buffer, mergeGap float64) ([]Interval, error) {
	if len(selected) == 0 {
		return nil, nil
	}

	idx := make([]int, len(selected))
	copy(idx, selected)
	sort.Ints(idx)

	for _, i := range idx {
		if i < 0 || i >= len(segs) {
			return nil, haperrors.New(haperrors.KindValidation, "selection references a segment index out of range")
		}
	}

	// Collapse consecutive runs of selected indices into buffered spans.
	var raw []Interval
	runStart := idx[0]
	prev := idx[0]
	for i := 1; i <= len(idx); i++ {
		if i < len(idx) && idx[i] == prev+1 {
			prev = idx[i]
			continue
		}
		start := segs[runStart].Start - buffer
		if start < 0 {
			start = 0
		}
		end := segs[prev].End + buffer
		raw = append(raw, Interval{Start: start, End: end})
		if i < len(idx) {
			runStart = idx[i]
			prev = idx[i]
		}
	}

	return mergeIntervals(raw, mergeGap), nil
}

func mergeIntervals(intervals []Interval, mergeGap float64) []Interval {
	if len(intervals) == 0 {
		return nil
	}
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	merged := []Interval{sorted[0]}
	for _, next := range sorted[1:] {
		last := &merged[len(merged)-1]
		if next.Start <= last.End+mergeGap+floatEpsilon {
			if next.End > last.End {
				last.End = next.End
			}
			continue
		}
		merged = append(merged, next)
	}
	return merged
}
