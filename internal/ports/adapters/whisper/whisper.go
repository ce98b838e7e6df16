// Package whisper is the primary transcription provider (component C),
// shelling out to a local whisper.cpp binary for word-level timestamps.
package whisper

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/ports"
)

type Adapter struct {
	bin     string
	model   string
	scratch string
}

func New(binPath, modelPath, scratchDir string) *Adapter {
	return &Adapter{bin: binPath, model: modelPath, scratch: scratchDir}
}

func (a *Adapter) Name() string { return "whispercpp" }

type whisperSegment struct {
	Text  string `json:"text"`
	Words []struct {
		Word  string  `json:"word"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
	} `json:"words"`
}

type whisperOutput struct {
	Segments []whisperSegment `json:"segments"`
}

func (a *Adapter) Transcribe(ctx context.Context, wavPath string) (ports.TranscriptionResult, error) {
	outPrefix := filepath.Join(a.scratch, "whisper-"+uuid.NewString())
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-oj",
		"-of", outPrefix,
		"-owts",
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return ports.TranscriptionResult{}, haperrors.WithStderr(haperrors.KindTranscription,
			"whisper.cpp failed", tail(string(b)), err)
	}
	defer os.Remove(outPrefix + ".json")

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return ports.TranscriptionResult{}, haperrors.Wrap(haperrors.KindTranscription, "read whisper.cpp output", err)
	}

	var out whisperOutput
	if err := json.Unmarshal(jb, &out); err != nil {
		return ports.TranscriptionResult{}, haperrors.Wrap(haperrors.KindTranscription, "parse whisper.cpp output", err)
	}

	var words []rundown.Word
	var maxEnd float64
	for _, seg := range out.Segments {
		for _, w := range seg.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			words = append(words, rundown.Word{
				Text:       text,
				Start:      w.Start,
				End:        w.End,
				Confidence: 1.0, // whisper.cpp's JSON export carries no per-word confidence
			})
			if w.End > maxEnd {
				maxEnd = w.End
			}
		}
	}

	return ports.TranscriptionResult{
		Words:    words,
		Duration: time.Duration(maxEnd * float64(time.Second)),
	}, nil
}

func tail(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > 20 {
		lines = lines[len(lines)-20:]
	}
	return strings.Join(lines, "\n")
}

var _ ports.TranscriptionProvider = (*Adapter)(nil)
