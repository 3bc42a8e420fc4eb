// Package feed reads the append-only metadata feed: newline-delimited JSON,
// one record per annotation pair. The feed is ingested once per category and
// never mutated by the engine.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"tripletfilter/api/internal/objstore"
)

// Pair is one metadata record. Raw keeps the full decoded line so decision
// records can copy every metadata field through, including ones this struct
// does not name.
type Pair struct {
	ID            string `json:"id"`
	HypoID        string `json:"hypo_id"`
	AdversarialID string `json:"adversarial_id"`
	Text          string `json:"text"`
	Hypothesis    string `json:"hypothesis"`
	Adversarial   string `json:"adversarial"`

	Raw map[string]any `json:"-"`
}

// PairKey joins the two asset filenames into the pair's stable identifier.
func (p Pair) PairKey() string {
	return p.HypoID + "|" + p.AdversarialID
}

// Parse decodes a JSONL feed. Blank and malformed lines are skipped, never
// fatal.
func Parse(text string) []Pair {
	var out []Pair
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		var pair Pair
		if err := json.Unmarshal([]byte(line), &pair); err != nil {
			continue
		}
		pair.Raw = raw
		out = append(out, pair)
	}
	return out
}

// Cache holds one parsed feed per feed object, loaded through the object
// store on first use and after Invalidate.
type Cache struct {
	store  objstore.Store
	logger *zap.Logger

	mu    sync.Mutex
	feeds map[string][]Pair
}

func NewCache(store objstore.Store, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		store:  store,
		logger: logger,
		feeds:  make(map[string][]Pair),
	}
}

// Load returns the parsed feed for one feed object id.
func (c *Cache) Load(ctx context.Context, feedID string) ([]Pair, error) {
	c.mu.Lock()
	pairs, ok := c.feeds[feedID]
	c.mu.Unlock()
	if ok {
		return pairs, nil
	}

	text, err := c.store.ReadText(ctx, feedID)
	if err != nil {
		return nil, fmt.Errorf("load metadata feed %s: %w", feedID, err)
	}
	pairs = Parse(text)
	c.logger.Info("metadata feed loaded",
		zap.String("feed", feedID), zap.Int("pairs", len(pairs)))

	c.mu.Lock()
	c.feeds[feedID] = pairs
	c.mu.Unlock()
	return pairs, nil
}

// Invalidate drops one cached feed.
func (c *Cache) Invalidate(feedID string) {
	c.mu.Lock()
	delete(c.feeds, feedID)
	c.mu.Unlock()
}
