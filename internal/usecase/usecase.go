// Package usecase is the Pipeline Orchestrator (component I): validates a
// rundown, fans out per-clip work with bounded concurrency, sequences
// surgery then assembly, and manages the run's scoped working directory.
package usecase

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
	"github.com/mlb-digital/hapctl/internal/domain/narration"
	"github.com/mlb-digital/hapctl/internal/domain/rundown"
	"github.com/mlb-digital/hapctl/internal/domain/segments"
	"github.com/mlb-digital/hapctl/internal/domain/surgeon"
	"github.com/mlb-digital/hapctl/internal/domain/timeline"
	"github.com/mlb-digital/hapctl/internal/media/wavprobe"
	"github.com/mlb-digital/hapctl/internal/ports"
)

// Deps are the external collaborators the orchestrator drives.
type Deps struct {
	Video ports.VideoTool

	// Primary is tried first for every transcription; Fallback is
	// consulted only when Primary is unconfigured or errors (§4.C step 4).
	Primary  ports.TranscriptionProvider
	Fallback ports.TranscriptionProvider

	Fetcher ports.Fetcher
	Cache   ports.Cache
	Logger  *slog.Logger

	// NarrationGenerator and TTS are only required by AssembleSyncedNarration,
	// the alternative terminal path of §4.H. Both are nil-able: the default
	// crossfade path (Assemble) never touches them.
	NarrationGenerator ports.NarrationScriptGenerator
	TTS                ports.TTS
}

// Config carries the tunables named in §6's configuration table.
type Config struct {
	Concurrency          int     // default 4
	CrossfadeFrames      int     // default 10
	FPS                  float64 // default 30
	SegmentBufferSeconds float64 // default 0.15
	MergeGapSeconds      float64 // default 0.5
	AudioFadeMillis      int     // default 50 (§9 open question ii)

	TranscriptionTimeout time.Duration // default 120s
	FetchTimeout         time.Duration // default 60s
	MediaToolTimeout     time.Duration // default 300s

	WorkingDirRoot string
}

func (c *Config) applyDefaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.CrossfadeFrames <= 0 {
		c.CrossfadeFrames = 10
	}
	if c.FPS <= 0 {
		c.FPS = 30
	}
	if c.SegmentBufferSeconds == 0 {
		c.SegmentBufferSeconds = 0.15
	}
	if c.MergeGapSeconds == 0 {
		c.MergeGapSeconds = 0.5
	}
	if c.AudioFadeMillis <= 0 {
		c.AudioFadeMillis = 50
	}
	if c.TranscriptionTimeout <= 0 {
		c.TranscriptionTimeout = 120 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 60 * time.Second
	}
	if c.MediaToolTimeout <= 0 {
		c.MediaToolTimeout = 300 * time.Second
	}
	if c.WorkingDirRoot == "" {
		c.WorkingDirRoot = os.TempDir()
	}
}

type Usecase struct {
	d   Deps
	cfg Config
}

func New(d Deps, cfg Config) *Usecase {
	cfg.applyDefaults()
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Usecase{d: d, cfg: cfg}
}

// ItemStatus records what happened to one rundown item, fulfilling §7's
// "per-clip failures are captured into a structured per-clip status map"
// propagation policy.
type ItemStatus struct {
	Label  string
	Status string // "ok", "skipped"
	Reason string
}

// Result is the orchestrator's output: the assembled file plus the
// per-item status report.
type Result struct {
	OutputPath string
	Duration   time.Duration
	Items      []ItemStatus
}

type fragment struct {
	item  timeline.Item
	label string
}

// Assemble is the public contract of §4.I: assemble(rundown, options) ->
// resultPath, plus the per-item status report.
func (u *Usecase) Assemble(ctx context.Context, rd rundown.Rundown, transitionsDir, outPath string) (Result, error) {
	if err := rd.Validate(); err != nil {
		return Result{}, err
	}

	workDir := filepath.Join(u.cfg.WorkingDirRoot, "hap-run-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, haperrors.Wrap(haperrors.KindInternal, "create working directory", err)
	}
	defer os.RemoveAll(workDir)

	fragments := make([]fragment, len(rd.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.Concurrency)

	for i, item := range rd.Items {
		i, item := i, item
		switch item.Kind {
		case rundown.ItemPlay:
			fragments[i].label = item.Clip.ID
			g.Go(func() error {
				frag, err := u.processPlay(gctx, item, workDir)
				if err != nil {
					// A media failure here is a surgery-stage failure, which
					// drops only this clip (§7).
					if kind, ok := haperrorKind(err); ok && (kind.Recoverable() || kind == haperrors.KindMediaFailure) {
						u.d.Logger.Warn("clip dropped", "clipID", item.Clip.ID, "reason", err.Error())
						return nil
					}
					return err
				}
				fragments[i].item = frag
				return nil
			})
		case rundown.ItemTransition:
			fragments[i].label = item.Transition.FileName()
			path := filepath.Join(transitionsDir, item.Transition.FileName())
			g.Go(func() error {
				if _, err := os.Stat(path); err != nil {
					u.d.Logger.Warn("transition skipped: file missing", "key", item.Transition.FileName())
					return nil
				}
				probe, err := u.d.Video.Probe(gctx, path)
				if err != nil {
					u.d.Logger.Warn("transition skipped: unreadable", "key", item.Transition.FileName())
					return nil
				}
				fragments[i].item = timeline.Item{Path: path, Duration: probe.Duration, Label: item.Transition.FileName()}
				return nil
			})
		case rundown.ItemTitleCard:
			fragments[i].label = "title_card"
			g.Go(func() error {
				frag, err := u.processTitleCard(gctx, item.TitleCardSourceURL, workDir)
				if err != nil {
					u.d.Logger.Warn("title card skipped", "reason", err.Error())
					return nil
				}
				fragments[i].item = frag
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	var items []timeline.Item
	var statuses []ItemStatus
	for _, f := range fragments {
		if f.item.Path == "" {
			statuses = append(statuses, ItemStatus{Label: f.label, Status: "skipped", Reason: "excluded or dropped"})
			continue
		}
		items = append(items, f.item)
		statuses = append(statuses, ItemStatus{Label: f.label, Status: "ok"})
	}

	if len(items) == 0 {
		return Result{}, haperrors.New(haperrors.KindMediaFailure, "no rundown items survived to assembly")
	}

	res, err := timeline.Assemble(ctx, u.d.Video, items, outPath, timeline.Options{
		CrossfadeFrames: u.cfg.CrossfadeFrames,
		FPS:             u.cfg.FPS,
	})
	if err != nil {
		return Result{}, err
	}

	return Result{OutputPath: outPath, Duration: res.OutputDuration, Items: statuses}, nil
}

// processPlay runs the per-clip pipeline: fetch -> transcribe -> segment ->
// reduce -> surgery (§4.I step 3).
func (u *Usecase) processPlay(ctx context.Context, item rundown.RundownItem, workDir string) (timeline.Item, error) {
	clip := item.Clip
	clipDir := filepath.Join(workDir, clip.ID)
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return timeline.Item{}, haperrors.Wrap(haperrors.KindInternal, "create clip working directory", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, u.cfg.FetchTimeout)
	localPath, err := u.d.Fetcher.Fetch(fetchCtx, clip.Source, clipDir)
	cancel()
	if err != nil {
		return timeline.Item{}, err
	}

	entry, err := u.transcribe(ctx, localPath, clip.Source, clipDir)
	if err != nil {
		return timeline.Item{}, err
	}

	segs, err := segments.Build(entry.Words, entry.Duration)
	if err != nil {
		return timeline.Item{}, err
	}

	intervals, err := segments.Reduce(segs, item.Selection, u.cfg.SegmentBufferSeconds, u.cfg.MergeGapSeconds)
	if err != nil {
		return timeline.Item{}, err
	}
	if len(intervals) == 0 {
		return timeline.Item{}, haperrors.New(haperrors.KindValidation, "play selection yields no intervals: "+clip.ID)
	}

	outPath := filepath.Join(clipDir, "fragment.mp4")
	fadeDuration := time.Duration(u.cfg.AudioFadeMillis) * time.Millisecond
	if err := surgeon.Operate(ctx, u.d.Video, localPath, intervals, clipDir, outPath, surgeon.Options{FadeDuration: fadeDuration}); err != nil {
		return timeline.Item{}, err
	}

	return timeline.Item{
		Path:     outPath,
		Duration: surgeon.TotalDuration(intervals),
		Label:    clip.ID,
	}, nil
}

// transcribe implements §4.C: cache lookup, single-flight coalescing
// (delegated to the cache when it supports it), and the primary/fallback
// provider order.
func (u *Usecase) transcribe(ctx context.Context, localPath, sourceURL, clipDir string) (rundown.TranscriptionCacheEntry, error) {
	transcribeCtx, cancel := context.WithTimeout(ctx, u.cfg.TranscriptionTimeout)
	defer cancel()

	// Audio extraction is deferred into runProviders so a cache hit never
	// pays the ffmpeg extraction cost (§4.C step ordering: cache lookup
	// happens before any transcoding).
	runProviders := func(ctx context.Context) (ports.TranscriptionResult, error) {
		wav := filepath.Join(clipDir, "audio.wav")
		if err := u.d.Video.ExtractAudioMono16k(ctx, localPath, wav); err != nil {
			return ports.TranscriptionResult{}, err
		}
		// The clip duration comes from the WAV header of the rendering
		// (§4.C step 5); the provider's own duration is kept only when the
		// header cannot be read.
		withWavDuration := func(res ports.TranscriptionResult) ports.TranscriptionResult {
			if d, err := wavprobe.Duration(wav); err == nil && d > 0 {
				res.Duration = d
			}
			return res
		}
		if u.d.Primary != nil {
			res, err := u.d.Primary.Transcribe(ctx, wav)
			if err == nil {
				return withWavDuration(res), nil
			}
			u.d.Logger.Warn("primary transcription provider failed", "provider", u.d.Primary.Name(), "error", err)
		}
		if u.d.Fallback != nil {
			res, err := u.d.Fallback.Transcribe(ctx, wav)
			if err == nil {
				return withWavDuration(res), nil
			}
			return ports.TranscriptionResult{}, haperrors.Wrap(haperrors.KindTranscription, "fallback transcription provider failed", err)
		}
		return ports.TranscriptionResult{}, haperrors.New(haperrors.KindTranscription, "no transcription provider succeeded")
	}

	type singleFlighter interface {
		GetOrTranscribe(context.Context, string, func(context.Context) (ports.TranscriptionResult, error)) (rundown.TranscriptionCacheEntry, error)
	}
	if sf, ok := u.d.Cache.(singleFlighter); ok {
		return sf.GetOrTranscribe(transcribeCtx, sourceURL, runProviders)
	}

	if entry, ok, err := u.d.Cache.Get(transcribeCtx, sourceURL); err != nil {
		return rundown.TranscriptionCacheEntry{}, err
	} else if ok {
		return entry, nil
	}

	res, err := runProviders(transcribeCtx)
	if err != nil {
		return rundown.TranscriptionCacheEntry{}, err
	}
	entry := rundown.TranscriptionCacheEntry{
		SourceURL: sourceURL,
		Words:     res.Words,
		Duration:  res.Duration.Seconds(),
		CreatedAt: time.Now().UTC(),
	}
	if err := u.d.Cache.Put(transcribeCtx, entry); err != nil {
		return rundown.TranscriptionCacheEntry{}, err
	}
	return entry, nil
}

// processTitleCard extracts the first 1.5s of an externally hosted
// highlight video, fading the final 300ms of audio to 0 (§4.G).
func (u *Usecase) processTitleCard(ctx context.Context, sourceURL, workDir string) (timeline.Item, error) {
	dir := filepath.Join(workDir, "title_card")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return timeline.Item{}, haperrors.Wrap(haperrors.KindInternal, "create title card working directory", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, u.cfg.FetchTimeout)
	localPath, err := u.d.Fetcher.Fetch(fetchCtx, sourceURL, dir)
	cancel()
	if err != nil {
		return timeline.Item{}, err
	}

	const titleCardDuration = 1500 * time.Millisecond
	out := filepath.Join(dir, "title_card.mp4")
	if err := u.d.Video.Trim(ctx, localPath, 0, titleCardDuration, out, true, 300*time.Millisecond); err != nil {
		return timeline.Item{}, err
	}

	return timeline.Item{Path: out, Duration: titleCardDuration, Label: "title_card"}, nil
}

// AssembleSyncedNarration is the alternative terminal path of §4.H: it
// trims each clip to its buffered action window, generates and synthesises
// narration for it, and mixes the narrations over ducked original audio
// instead of preserving untouched commentary through a crossfade chain.
func (u *Usecase) AssembleSyncedNarration(
	ctx context.Context,
	clipIDs []string,
	clips map[string]rundown.Clip,
	analyses map[string]rundown.Analysis,
	placements map[string]rundown.NarrationPlacement,
	voiceID, style, outPath string,
) (Result, error) {
	if u.d.NarrationGenerator == nil || u.d.TTS == nil {
		return Result{}, haperrors.New(haperrors.KindValidation, "synced-narration path requires a narration script generator and a TTS provider")
	}

	workDir := filepath.Join(u.cfg.WorkingDirRoot, "hap-narration-"+uuid.NewString())
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return Result{}, haperrors.Wrap(haperrors.KindInternal, "create working directory", err)
	}
	defer os.RemoveAll(workDir)

	plans := narration.PlanTrims(clipIDs, analyses)
	if len(plans) == 0 {
		return Result{}, haperrors.New(haperrors.KindValidation, "no clip has an action analysis; nothing to assemble")
	}

	var trimmedPaths []string
	var placed []narration.PlacedNarration
	var statuses []ItemStatus

	for _, plan := range plans {
		clip, ok := clips[plan.ClipID]
		if !ok {
			statuses = append(statuses, ItemStatus{Label: plan.ClipID, Status: "skipped", Reason: "clip not found"})
			continue
		}
		clipDir := filepath.Join(workDir, clip.ID)
		if err := os.MkdirAll(clipDir, 0o755); err != nil {
			return Result{}, haperrors.Wrap(haperrors.KindInternal, "create clip working directory", err)
		}

		fetchCtx, cancel := context.WithTimeout(ctx, u.cfg.FetchTimeout)
		localPath, err := u.d.Fetcher.Fetch(fetchCtx, clip.Source, clipDir)
		cancel()
		if err != nil {
			if kind, ok := haperrorKind(err); ok && kind.Recoverable() {
				statuses = append(statuses, ItemStatus{Label: clip.ID, Status: "skipped", Reason: err.Error()})
				continue
			}
			return Result{}, err
		}

		trimmed := filepath.Join(clipDir, "action_window.mp4")
		start := time.Duration(plan.TrimStart * float64(time.Second))
		end := time.Duration(plan.TrimEnd * float64(time.Second))
		if err := u.d.Video.Trim(ctx, localPath, start, end, trimmed, false, 0); err != nil {
			return Result{}, err
		}
		trimmedPaths = append(trimmedPaths, trimmed)

		analysis := analyses[plan.ClipID]
		text, err := u.d.NarrationGenerator.Generate(ctx, clip, analysis)
		if err != nil {
			return Result{}, haperrors.Wrap(haperrors.KindInternal, "generate narration script", err)
		}

		audio, err := u.d.TTS.Synthesize(ctx, text, voiceID, style)
		if err != nil {
			return Result{}, haperrors.Wrap(haperrors.KindInternal, "synthesize narration audio", err)
		}
		audioPath := filepath.Join(clipDir, "narration.mp3")
		if err := os.WriteFile(audioPath, audio, 0o644); err != nil {
			return Result{}, haperrors.Wrap(haperrors.KindInternal, "write narration audio", err)
		}

		probe, err := u.d.Video.Probe(ctx, audioPath)
		if err != nil {
			return Result{}, err
		}

		placement, ok := placements[plan.ClipID]
		if !ok {
			placement = rundown.PlacementDuringAction
		}
		startSec, err := narration.PlaceNarration(plan, placement, probe.Duration)
		if err != nil {
			return Result{}, err
		}

		placed = append(placed, narration.PlacedNarration{AudioPath: audioPath, StartSec: startSec, Duration: probe.Duration})
		statuses = append(statuses, ItemStatus{Label: clip.ID, Status: "ok"})
	}

	if len(trimmedPaths) == 0 {
		return Result{}, haperrors.New(haperrors.KindMediaFailure, "no clips survived to the narration mixer")
	}

	if err := narration.Mix(ctx, u.d.Video, trimmedPaths, placed, outPath, narration.Options{}); err != nil {
		return Result{}, err
	}

	probe, err := u.d.Video.Probe(ctx, outPath)
	if err != nil {
		return Result{}, err
	}

	return Result{OutputPath: outPath, Duration: probe.Duration, Items: statuses}, nil
}

func haperrorKind(err error) (haperrors.Kind, bool) {
	he, ok := err.(*haperrors.Error)
	if !ok {
		return "", false
	}
	return he.Kind, true
}
