// Package pipeline wires the concrete adapters into the orchestrator and
// exposes the single entry point the CLI drives.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/mlb-digital/hapctl/internal/cache"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/ports"
	"github.com/mlb-digital/hapctl/internal/ports/adapters/fetch"
	"github.com/mlb-digital/hapctl/internal/ports/adapters/ffmpeg"
	"github.com/mlb-digital/hapctl/internal/ports/adapters/openaiasr"
	"github.com/mlb-digital/hapctl/internal/ports/adapters/openrouter"
	"github.com/mlb-digital/hapctl/internal/ports/adapters/whisper"
	"github.com/mlb-digital/hapctl/internal/usecase"
)

type Config struct {
	RundownPath    string
	TransitionsDir string
	OutDir         string
	CacheDir       string
	Logf           func(format string, args ...any)

	FFmpegPath  string
	FFprobePath string

	WhisperBin     string
	WhisperModel   string
	WhisperScratch string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string

	// OpenRouterAPIKey is only used by the synced-narration path: Run
	// passes the resulting NarrationGenerator into usecase.Deps, but Run
	// itself drives only Assemble, not AssembleSyncedNarration. Empty skips
	// building a NarrationGenerator, and BaseURL validation with it.
	OpenRouterAPIKey       string
	OpenRouterModel        string
	OpenRouterBaseURL      string
	OpenRouterAllowedHosts []string

	Concurrency          int
	CrossfadeFrames      int
	FPS                  float64
	SegmentBufferSeconds float64
	MergeGapSeconds      float64
	AudioFadeMillis      int
}

func (c Config) Validate() error {
	if c.RundownPath == "" {
		return errors.New("rundown path is empty")
	}
	if _, err := os.Stat(c.RundownPath); err != nil {
		return fmt.Errorf("stat rundown: %w", err)
	}
	if c.WhisperModel == "" && c.OpenAIAPIKey == "" {
		return errors.New("at least one transcription provider must be configured (whisper model or OpenAI API key)")
	}
	if c.OpenRouterAPIKey != "" {
		if err := openrouter.ValidateBaseURL(c.OpenRouterBaseURL, c.OpenRouterAllowedHosts); err != nil {
			return err
		}
	}
	return nil
}

// rundownFile is the JSON shape a caller submits on disk, mirroring the
// rundown.Rundown/RundownItem domain types (§3) with string-keyed kinds.
type rundownFile struct {
	Items []struct {
		Kind string `json:"kind"`

		Clip struct {
			ID             string         `json:"id"`
			Source         string         `json:"source"`
			Feed           rundown.Feed   `json:"feed"`
			AvailableFeeds []rundown.Feed `json:"availableFeeds"`
			Half           string         `json:"half,omitempty"`
			Inning         int            `json:"inning,omitempty"`
		} `json:"clip,omitempty"`
		Selection []int `json:"selection,omitempty"`

		Transition struct {
			Half   string `json:"half"`
			Inning int    `json:"inning"`
		} `json:"transition,omitempty"`

		TitleCardSourceURL string `json:"titleCardSourceURL,omitempty"`
	} `json:"items"`
}

// LoadRundown parses a caller-supplied rundown JSON document into the
// domain model.
func LoadRundown(path string) (rundown.Rundown, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return rundown.Rundown{}, fmt.Errorf("read rundown: %w", err)
	}
	var rf rundownFile
	if err := json.Unmarshal(b, &rf); err != nil {
		return rundown.Rundown{}, fmt.Errorf("parse rundown: %w", err)
	}

	rd := rundown.Rundown{Items: make([]rundown.RundownItem, 0, len(rf.Items))}
	for _, it := range rf.Items {
		switch rundown.ItemKind(it.Kind) {
		case rundown.ItemPlay:
			rd.Items = append(rd.Items, rundown.RundownItem{
				Kind: rundown.ItemPlay,
				Clip: rundown.Clip{
					ID:             it.Clip.ID,
					Source:         it.Clip.Source,
					Feed:           it.Clip.Feed,
					AvailableFeeds: it.Clip.AvailableFeeds,
					Half:           it.Clip.Half,
					Inning:         it.Clip.Inning,
				},
				Selection: it.Selection,
			})
		case rundown.ItemTransition:
			rd.Items = append(rd.Items, rundown.RundownItem{
				Kind:       rundown.ItemTransition,
				Transition: rundown.TransitionKey{Half: it.Transition.Half, Inning: it.Transition.Inning},
			})
		case rundown.ItemTitleCard:
			rd.Items = append(rd.Items, rundown.RundownItem{
				Kind:               rundown.ItemTitleCard,
				TitleCardSourceURL: it.TitleCardSourceURL,
			})
		default:
			return rundown.Rundown{}, fmt.Errorf("unknown rundown item kind: %q", it.Kind)
		}
	}
	return rd, nil
}

func Run(ctx context.Context, cfg Config) (usecase.Result, error) {
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	logger := slog.Default()

	rd, err := LoadRundown(cfg.RundownPath)
	if err != nil {
		return usecase.Result{}, err
	}

	video := ffmpeg.New(cfg.FFmpegPath, cfg.FFprobePath)

	var primary ports.TranscriptionProvider
	if cfg.WhisperModel != "" {
		scratch := cfg.WhisperScratch
		if scratch == "" {
			scratch = filepath.Join(".cache", "whisper")
		}
		primary = whisper.New(cfg.WhisperBin, cfg.WhisperModel, scratch)
	}
	var fallback ports.TranscriptionProvider
	if cfg.OpenAIAPIKey != "" {
		fallback = openaiasr.New(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL)
	}
	if primary == nil {
		primary, fallback = fallback, nil
	}

	jobID := hash(cfg.RundownPath)
	baseCache := cfg.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	cacheDir := filepath.Join(baseCache, "runs", jobID)
	logf("preparing workspace")
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return usecase.Result{}, err
	}
	logf("cache: %s", cacheDir)

	tc, err := cache.New(filepath.Join(baseCache, "transcriptions.sqlite"), logger, cache.Options{})
	if err != nil {
		return usecase.Result{}, fmt.Errorf("open transcription cache: %w", err)
	}

	var narrationGenerator ports.NarrationScriptGenerator
	if cfg.OpenRouterAPIKey != "" {
		narrationGenerator = openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterModel, cfg.OpenRouterBaseURL)
	}

	deps := usecase.Deps{
		Video:              video,
		Primary:            primary,
		Fallback:           fallback,
		Fetcher:            fetch.New(),
		Cache:              tc,
		Logger:             logger,
		NarrationGenerator: narrationGenerator,
	}

	uc := usecase.New(deps, usecase.Config{
		Concurrency:          cfg.Concurrency,
		CrossfadeFrames:      cfg.CrossfadeFrames,
		FPS:                  cfg.FPS,
		SegmentBufferSeconds: cfg.SegmentBufferSeconds,
		MergeGapSeconds:      cfg.MergeGapSeconds,
		AudioFadeMillis:      cfg.AudioFadeMillis,
		WorkingDirRoot:       cacheDir,
	})

	outDir := cfg.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, cfg.RundownPath, time.Now().UTC())
	if err := os.MkdirAll(runOutDir, 0o755); err != nil {
		return usecase.Result{}, err
	}
	logf("output run dir: %s", runOutDir)

	outPath := filepath.Join(runOutDir, "assembled.mp4")

	res, err := uc.Assemble(ctx, rd, cfg.TransitionsDir, outPath)
	if err != nil {
		return usecase.Result{}, err
	}

	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return usecase.Result{}, fmt.Errorf("marshal result: %w", err)
	}
	reportPath := filepath.Join(runOutDir, "report.json")
	if err := os.WriteFile(reportPath, b, 0o644); err != nil {
		return usecase.Result{}, err
	}
	logf("assembly complete (%d items): %s", len(res.Items), reportPath)
	return res, nil
}

func buildRunOutDir(outRoot, seedPath string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(seedPath), filepath.Ext(seedPath))
	name = normalizePathSegment(name)
	if name == "" {
		name = "rundown"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", seedPath, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}
