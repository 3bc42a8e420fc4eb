// Package search indexes decision records for review tooling. Meilisearch is
// the primary backend; an in-memory scanner fills in whenever it is
// unreachable, so the save path never depends on search availability.
package search

import "context"

// DecisionDoc is the indexed projection of one decision record.
type DecisionDoc struct {
	ID        string `json:"id"` // pair_key|side|annotator|decided_at
	Category  string `json:"category"`
	PairKey   string `json:"pairKey"`
	Side      string `json:"side"`
	Status    string `json:"status"`
	Annotator string `json:"annotator"`
	DecidedAt int64  `json:"decidedAt"`
	Text      string `json:"text"`
}

// Query filters the decision index. Empty fields match everything.
type Query struct {
	Text      string
	Category  string
	Annotator string
	Status    string
	Limit     int
}

// Searcher answers decision queries.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]DecisionDoc, error)
}

// Indexer accepts decision documents.
type Indexer interface {
	IndexDecisions(ctx context.Context, docs []DecisionDoc) error
}

// Service routes between the primary backend and the fallback.
type Service struct {
	primary  *Meili
	fallback *MemoryIndex
}

// NewService builds the search service. primary may be nil when Meilisearch
// is not configured.
func NewService(primary *Meili) *Service {
	return &Service{
		primary:  primary,
		fallback: NewMemoryIndex(),
	}
}

// IndexDecisions records documents in every available backend. The memory
// fallback always succeeds; primary errors propagate so callers can log them.
func (s *Service) IndexDecisions(ctx context.Context, docs []DecisionDoc) error {
	if len(docs) == 0 {
		return nil
	}
	_ = s.fallback.IndexDecisions(ctx, docs)
	if s.primary != nil && s.primary.Healthy() {
		return s.primary.IndexDecisions(ctx, docs)
	}
	return nil
}

// Search prefers the healthy primary and degrades to the memory scan.
func (s *Service) Search(ctx context.Context, q Query) ([]DecisionDoc, error) {
	if s.primary != nil && s.primary.Healthy() {
		results, err := s.primary.Search(ctx, q)
		if err == nil {
			return results, nil
		}
	}
	return s.fallback.Search(ctx, q)
}
