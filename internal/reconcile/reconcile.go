// Package reconcile keeps pointer objects consistent with decision flips.
// The policy is idempotent and flip-safe: after any sequence of status
// transitions, including crash-recovery re-runs, at most one live pointer
// exists per (pair, side) and it references the current source asset.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"tripletfilter/api/internal/annotation"
	"tripletfilter/api/internal/objstore"
)

// Reconciler mutates pointer objects in destination folders.
type Reconciler struct {
	store  objstore.Store
	index  *objstore.FolderIndex
	logger *zap.Logger
}

func New(store objstore.Store, index *objstore.FolderIndex, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: store, index: index, logger: logger}
}

// Input describes one side's transition.
type Input struct {
	Name           string // asset filename; pointer objects share it
	Previous       annotation.Status
	Next           annotation.Status
	SourceObjectID string // resolved source asset; empty when missing
	DestFolderID   string
	KnownPointerID string // pointer id cached in the prior decision record
}

// Reconcile applies the flip-safe policy and returns the surviving pointer
// id, empty when no pointer should exist.
//
//  1. Equal statuses: no store mutation, the known pointer id passes through.
//  2. Leaving accepted: delete the pointer (known id, else resolve by name).
//  3. Entering accepted: delete any stale pointer first — a name-based object
//     may exist from an earlier interrupted run — then create a fresh one.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (string, error) {
	if in.Previous == in.Next {
		return in.KnownPointerID, nil
	}

	if in.Previous == annotation.StatusAccepted && in.Next != annotation.StatusAccepted {
		if err := r.deletePointer(ctx, in); err != nil {
			return "", err
		}
		return "", nil
	}

	if in.Next == annotation.StatusAccepted {
		if err := r.deletePointer(ctx, in); err != nil {
			return "", err
		}
		if in.SourceObjectID == "" {
			r.logger.Warn("accepted asset has no source object, pointer skipped",
				zap.String("name", in.Name), zap.String("folder", in.DestFolderID))
			return "", nil
		}
		pointerID, err := r.store.CreatePointer(ctx, in.SourceObjectID, in.Name, in.DestFolderID)
		if err != nil {
			return "", fmt.Errorf("create pointer for %s: %w", in.Name, err)
		}
		r.index.Invalidate(in.DestFolderID)
		r.logger.Info("pointer created",
			zap.String("name", in.Name), zap.String("pointer", pointerID))
		return pointerID, nil
	}

	return "", nil
}

// deletePointer removes the side's pointer if one exists. Deleting an absent
// object is success.
func (r *Reconciler) deletePointer(ctx context.Context, in Input) error {
	pointerID := in.KnownPointerID
	if pointerID == "" {
		resolved, ok, err := r.index.Resolve(ctx, in.DestFolderID, in.Name)
		if err != nil {
			return fmt.Errorf("resolve pointer for %s: %w", in.Name, err)
		}
		if !ok {
			return nil
		}
		pointerID = resolved
	}
	if err := r.store.Delete(ctx, pointerID); err != nil {
		if objstore.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete pointer %s: %w", pointerID, err)
	}
	r.index.Invalidate(in.DestFolderID)
	r.logger.Info("pointer deleted",
		zap.String("name", in.Name), zap.String("pointer", pointerID))
	return nil
}
