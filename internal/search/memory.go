package search

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryIndex is the fallback backend: a bounded in-process scan over the
// documents indexed this session.
type MemoryIndex struct {
	mu   sync.Mutex
	docs map[string]DecisionDoc
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{docs: make(map[string]DecisionDoc)}
}

func (m *MemoryIndex) IndexDecisions(ctx context.Context, docs []DecisionDoc) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range docs {
		m.docs[doc.ID] = doc
	}
	return nil
}

func (m *MemoryIndex) Search(ctx context.Context, q Query) ([]DecisionDoc, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))

	m.mu.Lock()
	matched := make([]DecisionDoc, 0, limit)
	for _, doc := range m.docs {
		if q.Category != "" && doc.Category != q.Category {
			continue
		}
		if q.Annotator != "" && doc.Annotator != q.Annotator {
			continue
		}
		if q.Status != "" && doc.Status != q.Status {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(doc.Text), needle) &&
			!strings.Contains(strings.ToLower(doc.PairKey), needle) {
			continue
		}
		matched = append(matched, doc)
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].DecidedAt == matched[j].DecidedAt {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].DecidedAt > matched[j].DecidedAt
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}
