// Package ports defines the narrow interfaces the orchestrator drives.
// Every external collaborator (media tool, transcription provider, asset
// host, cache, TTS engine, action analyser) is named by the operation HAP
// needs from it, not by its concrete transport.
package ports

import (
	"context"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/rundown"
)

// VideoTool is the Media Tool Adapter (component A): the only component
// that knows the external media tool's command-line surface.
type VideoTool interface {
	// Probe returns the duration, frame rate and frame count of a media file.
	Probe(ctx context.Context, path string) (ProbeResult, error)

	// ExtractAudioMono16k renders a mono, 16kHz WAV suitable for
	// transcription providers.
	ExtractAudioMono16k(ctx context.Context, inPath, outWav string) error

	// Trim re-encodes the span [start, end) of in into out. When
	// audioFade is true, a linear audio fade-in/out of fadeDuration is
	// applied at each boundary.
	Trim(ctx context.Context, in string, start, end time.Duration, out string, audioFade bool, fadeDuration time.Duration) error

	// ConcatReencode concatenates ins via a concat demuxer and re-encodes
	// the result to normalise timebase and codec parameters.
	ConcatReencode(ctx context.Context, ins []string, out string) error

	// ExecFilterGraph runs an arbitrary declared filter graph over ins,
	// mapping the named outputs per mapping, and writes out.
	ExecFilterGraph(ctx context.Context, ins []string, graph string, mapping []string, out string) error
}

// ProbeResult is the Media Tool Adapter's probe response.
type ProbeResult struct {
	Duration   time.Duration
	FPS        float64
	FrameCount int64
}

// TranscriptionProvider is one speech-to-text backend. HAP drives a
// primary/fallback pair of these (§4.C).
type TranscriptionProvider interface {
	Transcribe(ctx context.Context, wavPath string) (TranscriptionResult, error)
	Name() string
}

// TranscriptionResult is a provider's normalised output.
type TranscriptionResult struct {
	Words    []rundown.Word
	Duration time.Duration
}

// Fetcher is the Asset Fetcher (component B).
type Fetcher interface {
	Fetch(ctx context.Context, sourceURL, destDir string) (localPath string, err error)
}

// Cache is the persistent transcription cache (§3, §4.C).
type Cache interface {
	Get(ctx context.Context, sourceURL string) (rundown.TranscriptionCacheEntry, bool, error)
	Put(ctx context.Context, entry rundown.TranscriptionCacheEntry) error
}

// NarrationScriptGenerator is the external large-language-model
// collaborator that produces narration text for the synced-narration path.
// HAP consumes its output but does not define it (§1).
type NarrationScriptGenerator interface {
	Generate(ctx context.Context, clip rundown.Clip, analysis rundown.Analysis) (string, error)
}

// TTS is the external text-to-speech collaborator (§6).
type TTS interface {
	Synthesize(ctx context.Context, text, voiceID, style string) ([]byte, error)
}

// ActionAnalyzer is the external action-peak vision analyser (§6).
type ActionAnalyzer interface {
	Analyze(ctx context.Context, videoPath string) (rundown.Analysis, error)
}
