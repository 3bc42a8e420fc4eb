package objstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFolderIndexResolve(t *testing.T) {
	mem := NewMemory()
	id := mem.Seed("src", "clip_001.mp4", "data")
	idx := NewFolderIndex(mem, time.Hour, nil)

	got, ok, err := idx.Resolve(context.Background(), "src", "clip_001.mp4")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !ok || got != id {
		t.Errorf("expected %s, got %s (ok=%v)", id, got, ok)
	}

	_, ok, err = idx.Resolve(context.Background(), "src", "absent.mp4")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if ok {
		t.Error("absent name must resolve to ok=false")
	}
}

func TestFolderIndexEmptyName(t *testing.T) {
	idx := NewFolderIndex(NewMemory(), time.Hour, nil)
	_, ok, err := idx.Resolve(context.Background(), "src", "")
	if err != nil || ok {
		t.Errorf("empty name must be a miss without a remote call, got ok=%v err=%v", ok, err)
	}
}

func TestFolderIndexCachesListing(t *testing.T) {
	mem := NewMemory()
	mem.Seed("src", "a.mp4", "x")
	lists := 0
	mem.Fail = func(op, objectID string) error {
		if op == "list" {
			lists++
		}
		return nil
	}
	idx := NewFolderIndex(mem, time.Hour, nil)

	for i := 0; i < 5; i++ {
		if _, _, err := idx.Resolve(context.Background(), "src", "a.mp4"); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	if lists != 1 {
		t.Errorf("expected one remote listing within the TTL, got %d", lists)
	}
}

func TestFolderIndexTTLExpiry(t *testing.T) {
	mem := NewMemory()
	mem.Seed("src", "a.mp4", "x")
	idx := NewFolderIndex(mem, time.Hour, nil)

	current := time.Unix(1000, 0)
	idx.now = func() time.Time { return current }

	if _, _, err := idx.Resolve(context.Background(), "src", "a.mp4"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// A file added after the fetch stays invisible until the TTL lapses.
	mem.Seed("src", "b.mp4", "y")
	if _, ok, _ := idx.Resolve(context.Background(), "src", "b.mp4"); ok {
		t.Error("new file must not be visible inside the TTL window")
	}

	current = current.Add(2 * time.Hour)
	if _, ok, _ := idx.Resolve(context.Background(), "src", "b.mp4"); !ok {
		t.Error("new file must be visible after the TTL lapses")
	}
}

func TestFolderIndexServesStaleOnFailure(t *testing.T) {
	mem := NewMemory()
	id := mem.Seed("src", "a.mp4", "x")
	idx := NewFolderIndex(mem, time.Hour, nil)

	current := time.Unix(1000, 0)
	idx.now = func() time.Time { return current }

	if _, _, err := idx.Resolve(context.Background(), "src", "a.mp4"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	current = current.Add(2 * time.Hour)
	mem.Fail = func(op, objectID string) error {
		if op == "list" {
			return &TransientError{Err: errors.New("slow down")}
		}
		return nil
	}

	got, ok, err := idx.Resolve(context.Background(), "src", "a.mp4")
	if err != nil {
		t.Fatalf("expected stale listing on refresh failure, got error: %v", err)
	}
	if !ok || got != id {
		t.Errorf("stale listing must still resolve, got %s (ok=%v)", got, ok)
	}
}

func TestFolderIndexInvalidate(t *testing.T) {
	mem := NewMemory()
	mem.Seed("dst", "a.mp4", "x")
	idx := NewFolderIndex(mem, time.Hour, nil)

	if _, _, err := idx.Resolve(context.Background(), "dst", "a.mp4"); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	mem.Seed("dst", "b.mp4", "y")
	idx.Invalidate("dst")

	if _, ok, _ := idx.Resolve(context.Background(), "dst", "b.mp4"); !ok {
		t.Error("invalidation must force a refetch")
	}
}
