// Package progress persists a small per-(category, annotator) resume hint
// and derives the authoritative "first undecided" position from the
// completion index. The hint is advisory: it can push the starting position
// forward past manual navigation but never reopens finished work.
package progress

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"tripletfilter/api/internal/annotation"
	"tripletfilter/api/internal/feed"
	"tripletfilter/api/internal/objstore"
)

// Tracker stores hints as plain-text objects named
// progress_<category>_<canonical annotator>.txt inside one folder.
type Tracker struct {
	store    objstore.Store
	folderID string
	logger   *zap.Logger
}

func NewTracker(store objstore.Store, folderID string, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{store: store, folderID: folderID, logger: logger}
}

func (t *Tracker) hintID(category, annotator string) string {
	name := fmt.Sprintf("progress_%s_%s.txt", category, annotation.Canonical(annotator))
	return strings.TrimSuffix(t.folderID, "/") + "/" + name
}

// LoadHint returns the stored position. Absent or unparsable content is 0;
// hint loading never fails a session.
func (t *Tracker) LoadHint(ctx context.Context, category, annotator string) int {
	id := t.hintID(category, annotator)
	text, err := t.store.ReadText(ctx, id)
	if err != nil {
		if objstore.IsNotFound(err) {
			// Reserve the object so later saves are plain overwrites.
			if werr := t.store.WriteText(ctx, id, "0"); werr != nil {
				t.logger.Warn("progress hint create failed",
					zap.String("category", category), zap.Error(werr))
			}
		} else {
			t.logger.Warn("progress hint read failed",
				zap.String("category", category), zap.Error(err))
		}
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SaveHint persists the position best-effort. Failures are logged, never
// surfaced: the hint is never authoritative over the completion index.
func (t *Tracker) SaveHint(ctx context.Context, category, annotator string, position int) {
	if position < 0 {
		position = 0
	}
	id := t.hintID(category, annotator)
	if err := t.store.WriteText(ctx, id, strconv.Itoa(position)); err != nil {
		t.logger.Warn("progress hint write failed",
			zap.String("category", category), zap.Error(err))
	}
}

// FirstUndecided returns the index of the first pair absent from the
// completion set, in feed order. When every pair is complete it returns the
// last valid index so callers always have something to display.
func FirstUndecided(pairs []feed.Pair, completion annotation.Completion) int {
	for i, pair := range pairs {
		if !completion.Complete(pair.PairKey()) {
			return i
		}
	}
	if len(pairs) == 0 {
		return 0
	}
	return len(pairs) - 1
}

// StartPosition combines the hint with the derived position. The hint only
// pushes forward: a stale, too-early hint cannot reopen finished pairs,
// while explicit backward navigation (which rewrites the hint immediately)
// is honored on the next load.
func StartPosition(hint int, pairs []feed.Pair, completion annotation.Completion) int {
	derived := FirstUndecided(pairs, completion)
	if hint > derived {
		derived = hint
	}
	if last := len(pairs) - 1; last >= 0 && derived > last {
		derived = last
	}
	if derived < 0 {
		derived = 0
	}
	return derived
}
