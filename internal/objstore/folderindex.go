package objstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FolderIndex caches complete folder listings for a bounded window, turning
// O(n) per-lookup remote list calls into O(1) map lookups. A miss against a
// present, unexpired entry is not re-checked remotely: newly added files
// become visible after the TTL, which callers accept.
type FolderIndex struct {
	store  Store
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.Mutex
	entries map[string]folderEntry
}

type folderEntry struct {
	names     map[string]string
	fetchedAt time.Time
}

func NewFolderIndex(store Store, ttl time.Duration, logger *zap.Logger) *FolderIndex {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FolderIndex{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
		entries: make(map[string]folderEntry),
	}
}

// Resolve maps a filename inside a folder to its object id. The second return
// is false when the name is absent from the cached listing.
func (f *FolderIndex) Resolve(ctx context.Context, folderID, name string) (string, bool, error) {
	if name == "" {
		return "", false, nil
	}
	names, err := f.listing(ctx, folderID)
	if err != nil {
		return "", false, err
	}
	id, ok := names[name]
	return id, ok, nil
}

func (f *FolderIndex) listing(ctx context.Context, folderID string) (map[string]string, error) {
	f.mu.Lock()
	entry, ok := f.entries[folderID]
	fresh := ok && f.now().Sub(entry.fetchedAt) < f.ttl
	f.mu.Unlock()
	if fresh {
		return entry.names, nil
	}

	names, err := f.store.ListFolder(ctx, folderID)
	if err != nil {
		// A stale listing beats no listing for read paths.
		if ok {
			f.logger.Warn("folder listing refresh failed, serving stale index",
				zap.String("folder", folderID), zap.Error(err))
			return entry.names, nil
		}
		return nil, fmt.Errorf("index folder %s: %w", folderID, err)
	}

	f.mu.Lock()
	f.entries[folderID] = folderEntry{names: names, fetchedAt: f.now()}
	f.mu.Unlock()
	return names, nil
}

// Invalidate drops one folder's cached listing, forcing a refetch on the
// next lookup. Mutators call this after creating or deleting objects.
func (f *FolderIndex) Invalidate(folderID string) {
	f.mu.Lock()
	delete(f.entries, folderID)
	f.mu.Unlock()
}
