// Package rundown defines the data model a caller submits to the Highlight
// Assembly Pipeline: an ordered sequence of plays, transitions and an
// optional title card, together with the clip and word-level types that flow
// through the rest of the pipeline.
package rundown

import (
	"net/url"
	"time"

	"github.com/mlb-digital/hapctl/internal/domain/haperrors"
)

// Word is one time-aligned token from a transcription provider.
type Word struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

// Feed identifies which camera/commentary feed a clip was sourced from.
type Feed string

const (
	FeedNetwork Feed = "NETWORK"
	FeedCMS     Feed = "CMS"
	FeedHome    Feed = "HOME"
	FeedAway    Feed = "AWAY"
)

// PlayCatalogEntry is one row of the external play catalogue (§6): the
// metadata and candidate feed URLs for a single play, as supplied by the
// play-analysis and Film Room collaborators. HAP consumes the URLs and
// passes the rest through untouched.
type PlayCatalogEntry struct {
	ClipID      string `json:"clipId"`
	VideoURL    string `json:"videoURL"`
	CMSURL      string `json:"cmsURL,omitempty"`
	NetworkURL  string `json:"networkURL,omitempty"`
	HomeURL     string `json:"homeURL,omitempty"`
	AwayURL     string `json:"awayURL,omitempty"`
	HalfInning  string `json:"halfInning"`
	Inning      int    `json:"inning"`
	Batter      string `json:"batter"`
	Pitcher     string `json:"pitcher"`
	EventLabel  string `json:"eventLabel"`
	Description string `json:"description"`
}

// ResolveFeedURL picks the source URL for the requested feed, falling back
// to VideoURL when the feed-specific URL is absent. The catalogue names the
// fields but not a resolution order; this is the policy HAP applies.
func (p PlayCatalogEntry) ResolveFeedURL(feed Feed) (string, error) {
	var candidate string
	switch feed {
	case FeedCMS:
		candidate = p.CMSURL
	case FeedNetwork:
		candidate = p.NetworkURL
	case FeedHome:
		candidate = p.HomeURL
	case FeedAway:
		candidate = p.AwayURL
	}
	if candidate == "" {
		candidate = p.VideoURL
	}
	if candidate == "" {
		return "", haperrors.New(haperrors.KindValidation, "no source URL available for feed "+string(feed))
	}
	return candidate, nil
}

// Clip is one play's source video as seen by the pipeline. Feed is
// immutable per instance: switching feeds produces a new Clip via WithFeed.
type Clip struct {
	ID             string
	Source         string
	Feed           Feed
	AvailableFeeds []Feed
	Duration       time.Duration

	// Half and Inning place this clip's play within the game, in the same
	// vocabulary as TransitionKey ("top"/"bot", 1-based). Both are optional:
	// an empty Half means Validate does not check this clip against the
	// inning-transition ordering invariant of §3. Once Half is set, the
	// check uses Inning as given, zero included.
	Half   string
	Inning int

	// Transcript is populated once the Transcription Service has run for
	// this clip's current feed. It is cleared by WithFeed.
	Transcript []Word
}

// WithFeed returns a copy of c pointed at a different feed, with Transcript
// reset, per §3 ("switching feeds produces a new Clip with a reset
// transcript"). It errors if feed is not among AvailableFeeds.
func (c Clip) WithFeed(feed Feed) (Clip, error) {
	found := false
	for _, f := range c.AvailableFeeds {
		if f == feed {
			found = true
			break
		}
	}
	if !found {
		return Clip{}, haperrors.New(haperrors.KindValidation, "feed "+string(feed)+" not available for clip "+c.ID)
	}
	next := c
	next.Feed = feed
	next.Transcript = nil
	return next, nil
}

// TransitionKey identifies a pre-rendered inning-transition graphic.
type TransitionKey struct {
	Half   string // "top" or "bot"
	Inning int    // 1..9 (or later for extra innings)
}

func (k TransitionKey) FileName() string {
	return k.Half + "-" + itoa(k.Inning) + ".mp4"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// ItemKind tags which variant a RundownItem holds.
type ItemKind string

const (
	ItemPlay       ItemKind = "play"
	ItemTransition ItemKind = "transition"
	ItemTitleCard  ItemKind = "title_card"
)

// RundownItem is one entry of the ordered sequence the caller submits.
// Exactly one of Play/Transition/TitleCardSourceURL is meaningful,
// selected by Kind.
type RundownItem struct {
	Kind ItemKind

	// ItemPlay
	Clip      Clip
	Selection []int // selected segment indices into Clip's Segment Model

	// ItemTransition
	Transition TransitionKey

	// ItemTitleCard
	TitleCardSourceURL string
}

// Rundown is the caller-supplied ordered sequence of plays, transitions and
// at most one title card (§3).
type Rundown struct {
	Items []RundownItem
}

// Validate enforces the structural invariants of §3: at most one title
// card, always at position 0; and, for every Play whose Clip carries a
// Half/Inning, that the matching Transition appears earlier in the
// rundown. Plays with no Half set are not checked against this invariant.
func (r Rundown) Validate() error {
	titleCards := 0
	seenTransition := map[TransitionKey]int{}
	for i, item := range r.Items {
		switch item.Kind {
		case ItemTitleCard:
			titleCards++
			if titleCards > 1 {
				return haperrors.New(haperrors.KindValidation, "rundown has more than one title card")
			}
			if i != 0 {
				return haperrors.New(haperrors.KindValidation, "title card must be the first item")
			}
			if item.TitleCardSourceURL == "" {
				return haperrors.New(haperrors.KindValidation, "title card missing source URL")
			}
		case ItemTransition:
			if item.Transition.Half != "top" && item.Transition.Half != "bot" {
				return haperrors.New(haperrors.KindValidation, "transition half must be 'top' or 'bot'")
			}
			if item.Transition.Inning <= 0 {
				return haperrors.New(haperrors.KindValidation, "transition inning must be positive")
			}
			seenTransition[item.Transition] = i
		case ItemPlay:
			if item.Clip.ID == "" {
				return haperrors.New(haperrors.KindValidation, "play item missing clip id")
			}
			if _, err := url.Parse(item.Clip.Source); err != nil {
				return haperrors.Wrap(haperrors.KindValidation, "invalid clip source URL", err)
			}
			if item.Clip.Half != "" {
				key := TransitionKey{Half: item.Clip.Half, Inning: item.Clip.Inning}
				if _, ok := seenTransition[key]; !ok {
					return haperrors.New(haperrors.KindValidation, "play "+item.Clip.ID+" precedes its inning transition "+key.FileName())
				}
			}
		default:
			return haperrors.New(haperrors.KindValidation, "unknown rundown item kind: "+string(item.Kind))
		}
	}
	return nil
}

// TranscriptionCacheEntry is the persisted shape of one cached
// transcription result, keyed by source URL (§3, §4.C).
type TranscriptionCacheEntry struct {
	SchemaVersion int       `json:"schemaVersion"`
	SourceURL     string    `json:"sourceURL"`
	Words         []Word    `json:"words"`
	Duration      float64   `json:"duration"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Analysis is the synced-narration path's per-clip action timing, supplied
// by the external action-analysis collaborator (§3, §4.H).
type Analysis struct {
	ActionStart    float64
	ActionPeak     float64
	ActionEnd      float64
	TotalDuration  float64
	Description    string
}

// NarrationPlacement names where a narration segment sits relative to a
// clip's action peak (§4.H).
type NarrationPlacement string

const (
	PlacementBeforeAction NarrationPlacement = "before_action"
	PlacementDuringAction NarrationPlacement = "during_action"
	PlacementAfterAction  NarrationPlacement = "after_action"
	PlacementBridge       NarrationPlacement = "bridge"
)

// NarrationSegment is one piece of synthesized commentary to be mixed over
// a clip in the synced-narration path.
type NarrationSegment struct {
	ClipID    string
	Duration  time.Duration
	Placement NarrationPlacement
	AudioPath string
}
