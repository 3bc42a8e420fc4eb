package progress

import (
	"context"
	"errors"
	"testing"

	"tripletfilter/api/internal/annotation"
	"tripletfilter/api/internal/feed"
	"tripletfilter/api/internal/objstore"
)

func testPairs(n int) []feed.Pair {
	pairs := make([]feed.Pair, n)
	for i := range pairs {
		pairs[i] = feed.Pair{
			HypoID:        string(rune('a'+i)) + "_h.mp4",
			AdversarialID: string(rune('a'+i)) + "_a.mp4",
		}
	}
	return pairs
}

func completionOf(pairs []feed.Pair, completed ...int) annotation.Completion {
	hypo := make(map[string]annotation.Record)
	adv := make(map[string]annotation.Record)
	for _, i := range completed {
		pk := pairs[i].PairKey()
		hypo[pk] = annotation.Record{Status: annotation.StatusAccepted}
		adv[pk] = annotation.Record{Status: annotation.StatusRejected}
	}
	return annotation.BuildCompletion(hypo, adv)
}

func TestFirstUndecided(t *testing.T) {
	pairs := testPairs(4)

	if got := FirstUndecided(pairs, completionOf(pairs)); got != 0 {
		t.Errorf("no decisions: expected 0, got %d", got)
	}
	if got := FirstUndecided(pairs, completionOf(pairs, 0, 1)); got != 2 {
		t.Errorf("first two complete: expected 2, got %d", got)
	}
	// Gaps reopen: the first incomplete pair wins even after later ones.
	if got := FirstUndecided(pairs, completionOf(pairs, 0, 2, 3)); got != 1 {
		t.Errorf("gap at 1: expected 1, got %d", got)
	}
	if got := FirstUndecided(pairs, completionOf(pairs, 0, 1, 2, 3)); got != 3 {
		t.Errorf("all complete: expected last index 3, got %d", got)
	}
	if got := FirstUndecided(nil, completionOf(pairs)); got != 0 {
		t.Errorf("empty feed: expected 0, got %d", got)
	}
}

func TestStartPosition(t *testing.T) {
	pairs := testPairs(4)
	completion := completionOf(pairs, 0, 1)

	// Hint behind the derived position loses.
	if got := StartPosition(0, pairs, completion); got != 2 {
		t.Errorf("expected derived 2, got %d", got)
	}
	// Hint ahead wins.
	if got := StartPosition(3, pairs, completion); got != 3 {
		t.Errorf("expected hint 3, got %d", got)
	}
	// Out-of-range hint clamps to the last index.
	if got := StartPosition(99, pairs, completion); got != 3 {
		t.Errorf("expected clamp to 3, got %d", got)
	}
	if got := StartPosition(5, nil, completion); got != 0 {
		t.Errorf("empty feed: expected 0, got %d", got)
	}
}

func TestHintRoundTrip(t *testing.T) {
	mem := objstore.NewMemory()
	tracker := NewTracker(mem, "progress", nil)
	ctx := context.Background()

	tracker.SaveHint(ctx, "demolition", "Maria", 7)
	if got := tracker.LoadHint(ctx, "demolition", "maria"); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	// Hints are keyed per category and canonical annotator.
	if got := tracker.LoadHint(ctx, "animals", "maria"); got != 0 {
		t.Errorf("other category must be empty, got %d", got)
	}
	if got := tracker.LoadHint(ctx, "demolition", "pedro"); got != 0 {
		t.Errorf("other annotator must be empty, got %d", got)
	}
}

func TestLoadHintGarbage(t *testing.T) {
	mem := objstore.NewMemory()
	tracker := NewTracker(mem, "progress", nil)
	ctx := context.Background()

	mem.SeedObject("progress/progress_demolition_maria.txt", "not a number")
	if got := tracker.LoadHint(ctx, "demolition", "maria"); got != 0 {
		t.Errorf("garbage hint must read as 0, got %d", got)
	}

	mem.SeedObject("progress/progress_demolition_maria.txt", "-5")
	if got := tracker.LoadHint(ctx, "demolition", "maria"); got != 0 {
		t.Errorf("negative hint must read as 0, got %d", got)
	}
}

func TestHintFailuresAreSoft(t *testing.T) {
	mem := objstore.NewMemory()
	mem.Fail = func(op, objectID string) error {
		return &objstore.TransientError{Err: errors.New("slow down")}
	}
	tracker := NewTracker(mem, "progress", nil)
	ctx := context.Background()

	// Neither call may panic or surface an error to the session.
	tracker.SaveHint(ctx, "demolition", "maria", 3)
	if got := tracker.LoadHint(ctx, "demolition", "maria"); got != 0 {
		t.Errorf("unreadable hint must be 0, got %d", got)
	}
}
