package rundown

import "testing"

func TestValidate_TitleCardMustBeFirst(t *testing.T) {
	r := Rundown{Items: []RundownItem{
		{Kind: ItemTransition, Transition: TransitionKey{Half: "top", Inning: 1}},
		{Kind: ItemTitleCard, TitleCardSourceURL: "https://example.com/x.mp4"},
	}}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error for title card not at position 0")
	}
}

func TestValidate_AtMostOneTitleCard(t *testing.T) {
	r := Rundown{Items: []RundownItem{
		{Kind: ItemTitleCard, TitleCardSourceURL: "https://example.com/a.mp4"},
		{Kind: ItemTitleCard, TitleCardSourceURL: "https://example.com/b.mp4"},
	}}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error for two title cards")
	}
}

func TestValidate_ValidRundownPasses(t *testing.T) {
	r := Rundown{Items: []RundownItem{
		{Kind: ItemTitleCard, TitleCardSourceURL: "https://example.com/x.mp4"},
		{Kind: ItemTransition, Transition: TransitionKey{Half: "top", Inning: 1}},
		{Kind: ItemPlay, Clip: Clip{ID: "c1", Source: "https://example.com/c1.mp4"}},
	}}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsPlayBeforeItsInningTransition(t *testing.T) {
	r := Rundown{Items: []RundownItem{
		{Kind: ItemPlay, Clip: Clip{ID: "c1", Source: "https://example.com/c1.mp4", Half: "top", Inning: 2}},
		{Kind: ItemTransition, Transition: TransitionKey{Half: "top", Inning: 2}},
	}}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error for a play preceding its inning transition")
	}
}

func TestValidate_AllowsPlayAfterItsInningTransition(t *testing.T) {
	r := Rundown{Items: []RundownItem{
		{Kind: ItemTransition, Transition: TransitionKey{Half: "top", Inning: 2}},
		{Kind: ItemPlay, Clip: Clip{ID: "c1", Source: "https://example.com/c1.mp4", Half: "top", Inning: 2}},
	}}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_PlayWithoutHalfSkipsOrderingCheck(t *testing.T) {
	r := Rundown{Items: []RundownItem{
		{Kind: ItemPlay, Clip: Clip{ID: "c1", Source: "https://example.com/c1.mp4"}},
		{Kind: ItemTransition, Transition: TransitionKey{Half: "top", Inning: 2}},
	}}
	if err := r.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RejectsBadTransitionHalf(t *testing.T) {
	r := Rundown{Items: []RundownItem{
		{Kind: ItemTransition, Transition: TransitionKey{Half: "middle", Inning: 1}},
	}}
	if err := r.Validate(); err == nil {
		t.Fatalf("expected error for invalid half")
	}
}

func TestClip_WithFeed(t *testing.T) {
	c := Clip{ID: "c1", Feed: FeedNetwork, AvailableFeeds: []Feed{FeedNetwork, FeedCMS}, Transcript: []Word{{Text: "hi"}}}
	next, err := c.WithFeed(FeedCMS)
	if err != nil {
		t.Fatalf("WithFeed: %v", err)
	}
	if next.Feed != FeedCMS {
		t.Fatalf("feed = %v, want CMS", next.Feed)
	}
	if next.Transcript != nil {
		t.Fatalf("expected transcript to be reset on feed switch")
	}
	if c.Feed != FeedNetwork {
		t.Fatalf("original clip should be unaffected")
	}
}

func TestClip_WithFeed_RejectsUnavailableFeed(t *testing.T) {
	c := Clip{ID: "c1", Feed: FeedNetwork, AvailableFeeds: []Feed{FeedNetwork}}
	if _, err := c.WithFeed(FeedAway); err == nil {
		t.Fatalf("expected error for unavailable feed")
	}
}

func TestPlayCatalogEntry_ResolveFeedURL(t *testing.T) {
	p := PlayCatalogEntry{VideoURL: "https://example.com/default.mp4", CMSURL: "https://example.com/cms.mp4"}
	got, err := p.ResolveFeedURL(FeedCMS)
	if err != nil {
		t.Fatalf("ResolveFeedURL: %v", err)
	}
	if got != p.CMSURL {
		t.Fatalf("got %v, want cmsURL", got)
	}

	got, err = p.ResolveFeedURL(FeedHome)
	if err != nil {
		t.Fatalf("ResolveFeedURL: %v", err)
	}
	if got != p.VideoURL {
		t.Fatalf("got %v, want fallback videoURL", got)
	}
}

func TestPlayCatalogEntry_ResolveFeedURL_NoURLErrors(t *testing.T) {
	p := PlayCatalogEntry{}
	if _, err := p.ResolveFeedURL(FeedNetwork); err == nil {
		t.Fatalf("expected error when no URL is available")
	}
}

func TestTransitionKey_FileName(t *testing.T) {
	k := TransitionKey{Half: "bot", Inning: 7}
	if got := k.FileName(); got != "bot-7.mp4" {
		t.Fatalf("FileName() = %q, want bot-7.mp4", got)
	}
}
