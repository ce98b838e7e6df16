// Package openaiasr is the fallback transcription provider (component C):
// it submits audio to an OpenAI-API-shaped transcription endpoint when the
// primary whisper.cpp provider is unconfigured or fails.
package openaiasr

import (
	"context"
	"os"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tidwall/gjson"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/ports"
)

type Adapter struct {
	client openai.Client
	model  string
}

func New(apiKey, model, baseURL string) *Adapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "whisper-1"
	}
	return &Adapter{client: openai.NewClient(opts...), model: model}
}

func (a *Adapter) Name() string { return "openai" }

func (a *Adapter) Transcribe(ctx context.Context, wavPath string) (ports.TranscriptionResult, error) {
	f, err := os.Open(wavPath)
	if err != nil {
		return ports.TranscriptionResult{}, haperrors.Wrap(haperrors.KindTranscription, "open audio for fallback provider", err)
	}
	defer f.Close()

	resp, err := a.client.Audio.Transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:                   f,
		Model:                  openai.AudioModel(a.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word", "segment"},
	})
	if err != nil {
		return ports.TranscriptionResult{}, haperrors.Wrap(haperrors.KindTranscription, "openai transcription request", err)
	}

	return parseVerboseJSON(resp.RawJSON())
}

// parseVerboseJSON pulls the word-level array out of the provider's
// verbose_json response without binding to its full (large, mostly unused)
// schema.
func parseVerboseJSON(raw string) (ports.TranscriptionResult, error) {
	wordsJSON := gjson.Get(raw, "words")
	var words []rundown.Word
	if wordsJSON.IsArray() {
		wordsJSON.ForEach(func(_, v gjson.Result) bool {
			words = append(words, rundown.Word{
				Text:       v.Get("word").String(),
				Start:      v.Get("start").Float(),
				End:        v.Get("end").Float(),
				Confidence: 1.0, // the verbose_json shape carries no per-word confidence
			})
			return true
		})
	} else {
		// Some deployments only return segment-level timing; fall back to
		// treating each segment as a single word-shaped span so the
		// Segment Model still has something to chew on.
		gjson.Get(raw, "segments").ForEach(func(_, v gjson.Result) bool {
			words = append(words, rundown.Word{
				Text:       v.Get("text").String(),
				Start:      v.Get("start").Float(),
				End:        v.Get("end").Float(),
				Confidence: 1.0,
			})
			return true
		})
	}

	durationSec := gjson.Get(raw, "duration").Float()
	if durationSec == 0 && len(words) > 0 {
		durationSec = words[len(words)-1].End
	}

	return ports.TranscriptionResult{
		Words:    words,
		Duration: time.Duration(durationSec * float64(time.Second)),
	}, nil
}

var _ ports.TranscriptionProvider = (*Adapter)(nil)
