// Package ffmpeg is the Media Tool Adapter (component A): the only
// component in the pipeline that knows ffmpeg/ffprobe's command-line
// surface. Every other component speaks in semantic operations
// (Probe/Trim/ConcatReencode/ExecFilterGraph); this is what makes a second
// backend swappable without touching the rest of the pipeline.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/ports"
)

type Adapter struct {
	ffmpeg  string
	ffprobe string
}

func New(ffmpegPath, ffprobePath string) *Adapter {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Adapter{ffmpeg: ffmpegPath, ffprobe: ffprobePath}
}

func (a *Adapter) Probe(ctx context.Context, path string) (ports.ProbeResult, error) {
	cmd := exec.CommandContext(ctx, a.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "format=duration:stream=r_frame_rate,nb_frames",
		"-of", "default=noprint_wrappers=1",
		path,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return ports.ProbeResult{}, mediaErr("media_corrupt", "ffprobe", path, string(b), err)
	}

	var res ports.ProbeResult
	sc := bufio.NewScanner(strings.NewReader(string(b)))
	for sc.Scan() {
		line := sc.Text()
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		switch k {
		case "duration":
			sec, perr := strconv.ParseFloat(v, 64)
			if perr == nil {
				res.Duration = time.Duration(sec * float64(time.Second))
			}
		case "r_frame_rate":
			res.FPS = parseFrameRate(v)
		case "nb_frames":
			n, perr := strconv.ParseInt(v, 10, 64)
			if perr == nil {
				res.FrameCount = n
			}
		}
	}
	if res.Duration <= 0 {
		return ports.ProbeResult{}, haperrors.New(haperrors.KindMediaCorrupt, "ffprobe returned no duration for "+path)
	}
	return res, nil
}

func parseFrameRate(v string) float64 {
	num, den, ok := strings.Cut(v, "/")
	if !ok {
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	n, _ := strconv.ParseFloat(num, 64)
	d, _ := strconv.ParseFloat(den, 64)
	if d == 0 {
		return 0
	}
	return n / d
}

func (a *Adapter) ExtractAudioMono16k(ctx context.Context, inPath, outWav string) error {
	cmd := exec.CommandContext(ctx, a.ffmpeg,
		"-y",
		"-i", inPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav",
		outWav,
	)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return mediaErr("media_failure", "extract audio", inPath, string(b), err)
	}
	return nil
}

// Trim re-encodes [start, end) of in into out, applying a linear audio
// fade-in/out of fadeDuration at each boundary when audioFade is true
// (§4.A, §4.F).
func (a *Adapter) Trim(ctx context.Context, in string, start, end time.Duration, out string, audioFade bool, fadeDuration time.Duration) error {
	if end <= start {
		return haperrors.New(haperrors.KindInternal, "trim requires end > start")
	}
	dur := end - start

	args := []string{
		"-y",
		"-ss", fmtSeconds(start),
		"-i", in,
		"-to", fmtSeconds(dur), // -to after -i is measured relative to the trimmed stream
	}

	if audioFade {
		fadeOutStart := dur - fadeDuration
		if fadeOutStart < 0 {
			fadeOutStart = 0
		}
		af := fmt.Sprintf("afade=t=in:st=0:d=%s,afade=t=out:st=%s:d=%s",
			fmtSeconds(fadeDuration), fmtSeconds(fadeOutStart), fmtSeconds(fadeDuration))
		args = append(args, "-af", af)
	}

	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		out,
	)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return mediaErr("media_failure", "trim", in, string(b), err)
	}
	return nil
}

// ConcatReencode joins ins via the concat demuxer and re-encodes, so that
// per-segment filter-graph state (e.g. the fades Trim applies) does not
// leave stream-copy artifacts at the joins (§4.F).
func (a *Adapter) ConcatReencode(ctx context.Context, ins []string, out string) error {
	if len(ins) == 0 {
		return haperrors.New(haperrors.KindInternal, "concat requires at least one input")
	}
	listFile, err := writeConcatList(filepath.Dir(out), ins)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		out,
	}
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return mediaErr("media_failure", "concat", strings.Join(ins, ","), string(b), err)
	}
	return nil
}

// ExecFilterGraph is the escape hatch used by the Timeline Assembler and
// the Synced-Narration Mixer for crossfade/ducking graphs that don't fit
// the fixed Trim/ConcatReencode shape (§4.A).
func (a *Adapter) ExecFilterGraph(ctx context.Context, ins []string, graph string, mapping []string, out string) error {
	args := []string{"-y"}
	for _, in := range ins {
		args = append(args, "-i", in)
	}
	args = append(args, "-filter_complex", graph)
	for _, m := range mapping {
		args = append(args, "-map", m)
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "18",
		"-c:a", "aac",
		"-b:a", "192k",
		"-movflags", "+faststart",
		out,
	)
	cmd := exec.CommandContext(ctx, a.ffmpeg, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return mediaErr("media_failure", "filter graph", strings.Join(ins, ","), string(b), err)
	}
	return nil
}

func writeConcatList(dir string, ins []string) (string, error) {
	f, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("create concat list: %w", err)
	}
	defer f.Close()
	for _, in := range ins {
		abs, err := filepath.Abs(in)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(f, "file '%s'\n", escapeConcatPath(abs)); err != nil {
			return "", err
		}
	}
	return f.Name(), nil
}

func escapeConcatPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}

func fmtSeconds(d time.Duration) string {
	sec := float64(d) / float64(time.Second)
	return strconv.FormatFloat(sec, 'f', 3, 64)
}

// tailLines returns the last n lines of s, for embedding in error messages.
func tailLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func mediaErr(kind haperrors.Kind, stage, path, stderr string, cause error) error {
	return haperrors.WithStderr(kind, fmt.Sprintf("%s failed for %s", stage, path), tailLines(stderr, 20), cause)
}

var _ ports.VideoTool = (*Adapter)(nil)
