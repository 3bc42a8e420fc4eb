package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"tripletfilter/api/internal/annotation"
	"tripletfilter/api/internal/objstore"
)

func newTestReconciler() (*Reconciler, *objstore.Memory) {
	mem := objstore.NewMemory()
	index := objstore.NewFolderIndex(mem, time.Hour, nil)
	return New(mem, index, nil), mem
}

func TestReconcileNoopOnEqualStatus(t *testing.T) {
	r, mem := newTestReconciler()
	ops := 0
	mem.Fail = func(op, objectID string) error {
		ops++
		return nil
	}
	got, err := r.Reconcile(context.Background(), Input{
		Name:           "h1.mp4",
		Previous:       annotation.StatusAccepted,
		Next:           annotation.StatusAccepted,
		SourceObjectID: "src/h1.mp4#1",
		DestFolderID:   "dst",
		KnownPointerID: "dst/h1.mp4#ptr1",
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got != "dst/h1.mp4#ptr1" {
		t.Errorf("known pointer id must pass through, got %q", got)
	}
	if ops != 0 {
		t.Errorf("equal statuses must not touch the store, got %d calls", ops)
	}
}

func TestReconcileEnteringAccepted(t *testing.T) {
	r, mem := newTestReconciler()
	srcID := mem.Seed("src", "h1.mp4", "video")

	got, err := r.Reconcile(context.Background(), Input{
		Name:           "h1.mp4",
		Previous:       annotation.StatusRejected,
		Next:           annotation.StatusAccepted,
		SourceObjectID: srcID,
		DestFolderID:   "dst",
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got == "" {
		t.Fatal("expected a pointer id")
	}
	target, ok := mem.PointerTarget(got)
	if !ok || target != srcID {
		t.Errorf("pointer must reference the source asset, got %q (ok=%v)", target, ok)
	}
}

func TestReconcileLeavingAccepted(t *testing.T) {
	r, mem := newTestReconciler()
	srcID := mem.Seed("src", "h1.mp4", "video")
	ptrID, err := mem.CreatePointer(context.Background(), srcID, "h1.mp4", "dst")
	if err != nil {
		t.Fatalf("CreatePointer failed: %v", err)
	}

	got, err := r.Reconcile(context.Background(), Input{
		Name:           "h1.mp4",
		Previous:       annotation.StatusAccepted,
		Next:           annotation.StatusRejected,
		SourceObjectID: srcID,
		DestFolderID:   "dst",
		KnownPointerID: ptrID,
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got != "" {
		t.Errorf("rejected side must end with no pointer, got %q", got)
	}
	if names := mem.FolderNames("dst"); len(names) != 0 {
		t.Errorf("destination folder must be empty, got %v", names)
	}
}

func TestReconcileDeleteWithoutKnownID(t *testing.T) {
	r, mem := newTestReconciler()
	srcID := mem.Seed("src", "h1.mp4", "video")
	if _, err := mem.CreatePointer(context.Background(), srcID, "h1.mp4", "dst"); err != nil {
		t.Fatalf("CreatePointer failed: %v", err)
	}

	// The prior record carried no pointer id; the pointer is found by name.
	_, err := r.Reconcile(context.Background(), Input{
		Name:         "h1.mp4",
		Previous:     annotation.StatusAccepted,
		Next:         annotation.StatusRejected,
		DestFolderID: "dst",
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if names := mem.FolderNames("dst"); len(names) != 0 {
		t.Errorf("name-resolved pointer must be deleted, got %v", names)
	}
}

func TestReconcileDeleteAbsentIsSuccess(t *testing.T) {
	r, _ := newTestReconciler()
	got, err := r.Reconcile(context.Background(), Input{
		Name:           "h1.mp4",
		Previous:       annotation.StatusAccepted,
		Next:           annotation.StatusRejected,
		DestFolderID:   "dst",
		KnownPointerID: "dst/h1.mp4#ptr9",
	})
	if err != nil {
		t.Fatalf("deleting an absent pointer must succeed, got %v", err)
	}
	if got != "" {
		t.Errorf("expected no pointer id, got %q", got)
	}
}

func TestReconcileMissingSourceSkipsPointer(t *testing.T) {
	r, mem := newTestReconciler()
	got, err := r.Reconcile(context.Background(), Input{
		Name:         "h1.mp4",
		Previous:     annotation.StatusRejected,
		Next:         annotation.StatusAccepted,
		DestFolderID: "dst",
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if got != "" {
		t.Errorf("missing source must skip pointer creation, got %q", got)
	}
	if names := mem.FolderNames("dst"); len(names) != 0 {
		t.Errorf("no pointer must exist, got %v", names)
	}
}

func TestReconcileFlipSequence(t *testing.T) {
	r, mem := newTestReconciler()
	srcID := mem.Seed("src", "h1.mp4", "video")

	statuses := []annotation.Status{
		annotation.StatusRejected,
		annotation.StatusAccepted,
		annotation.StatusRejected,
		annotation.StatusAccepted,
	}
	prev := annotation.Status("")
	pointer := ""
	for i, next := range statuses {
		var err error
		pointer, err = r.Reconcile(context.Background(), Input{
			Name:           "h1.mp4",
			Previous:       prev,
			Next:           next,
			SourceObjectID: srcID,
			DestFolderID:   "dst",
			KnownPointerID: pointer,
		})
		if err != nil {
			t.Fatalf("flip %d failed: %v", i, err)
		}
		prev = next
	}

	names := mem.FolderNames("dst")
	if len(names) != 1 {
		t.Fatalf("exactly one pointer must survive the flips, got %v", names)
	}
	if pointer == "" {
		t.Fatal("final accepted state must report a pointer id")
	}
	target, ok := mem.PointerTarget(pointer)
	if !ok || target != srcID {
		t.Errorf("surviving pointer must reference the source, got %q (ok=%v)", target, ok)
	}
}

func TestReconcileCreateFailure(t *testing.T) {
	r, mem := newTestReconciler()
	srcID := mem.Seed("src", "h1.mp4", "video")
	mem.Fail = func(op, objectID string) error {
		if op == "pointer" {
			return &objstore.TransientError{Err: errors.New("timeout")}
		}
		return nil
	}
	_, err := r.Reconcile(context.Background(), Input{
		Name:           "h1.mp4",
		Previous:       annotation.StatusRejected,
		Next:           annotation.StatusAccepted,
		SourceObjectID: srcID,
		DestFolderID:   "dst",
	})
	if err == nil {
		t.Fatal("create failure must surface")
	}
}
