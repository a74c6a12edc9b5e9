package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// CollectsAPI is the slice of the catalog client the reconciler needs.
type CollectsAPI interface {
	ListCollects(ctx context.Context, productID string) ([]Collect, error)
	AddCollect(ctx context.Context, productID, collectionID string) error
	DeleteCollect(ctx context.Context, collectID string) error
}

// Reconciler pushes accepted assignments to the catalog while holding
// the line on how many deepest-level collections a product may join.
type Reconciler struct {
	api        CollectsAPI
	logger     *slog.Logger
	writeDelay time.Duration
}

// NewReconciler creates a reconciler over the given catalog API.
func NewReconciler(api CollectsAPI, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		api:        api,
		logger:     logger,
		writeDelay: 250 * time.Millisecond,
	}
}

// ApplyCollections adds the product to each target collection it is not
// already a member of. Level-3 additions stop once the product holds
// maxL3 level-3 memberships; other levels are unrestricted. Each
// addition is an individual catalog write with a courtesy delay between
// writes; writes already applied stay applied if a later one fails.
//
// With cleanup set, memberships are re-fetched afterwards and excess
// level-3 memberships beyond the first maxL3 target ids are removed,
// enforcing the cap even when it was previously violated.
func (r *Reconciler) ApplyCollections(ctx context.Context, productID string, targetIDs []string, levelMap map[string]int, maxL3 int, cleanup bool) (bool, error) {
	collects, err := r.api.ListCollects(ctx, productID)
	if err != nil {
		return false, fmt.Errorf("failed to fetch current memberships: %w", err)
	}

	current := make(map[string]bool, len(collects))
	l3Current := 0
	for _, col := range collects {
		current[col.CollectionID] = true
		if levelMap[col.CollectionID] == 3 {
			l3Current++
		}
	}

	var allowed []string
	for _, cid := range targetIDs {
		if current[cid] {
			continue
		}
		if levelMap[cid] == 3 {
			if l3Current >= maxL3 {
				r.logger.Info("skipping level-3 assignment over cap",
					"product_id", productID,
					"collection_id", cid,
					"max_l3", maxL3)
				continue
			}
			l3Current++
		}
		allowed = append(allowed, cid)
	}

	for i, cid := range allowed {
		if i > 0 {
			if err := sleepCtx(ctx, r.writeDelay); err != nil {
				return false, err
			}
		}
		if err := r.api.AddCollect(ctx, productID, cid); err != nil {
			// Earlier writes stay applied; partial success is reported
			// on the owning queue entry, not rolled back.
			return false, fmt.Errorf("failed to apply collection %s: %w", cid, err)
		}
	}

	if cleanup {
		if err := r.cleanupExcessL3(ctx, productID, targetIDs, levelMap, maxL3); err != nil {
			return false, err
		}
	}

	if len(allowed) > 0 {
		r.logger.Info("applied collection memberships",
			"product_id", productID,
			"added", len(allowed))
	}

	return true, nil
}

// cleanupExcessL3 removes level-3 memberships beyond the cap, keeping
// the first maxL3 target ids.
func (r *Reconciler) cleanupExcessL3(ctx context.Context, productID string, targetIDs []string, levelMap map[string]int, maxL3 int) error {
	collects, err := r.api.ListCollects(ctx, productID)
	if err != nil {
		return fmt.Errorf("failed to re-fetch memberships for cleanup: %w", err)
	}

	var l3 []Collect
	for _, col := range collects {
		if levelMap[col.CollectionID] == 3 {
			l3 = append(l3, col)
		}
	}

	excess := len(l3) - maxL3
	if excess <= 0 {
		return nil
	}

	keep := make(map[string]bool, maxL3)
	for i, cid := range targetIDs {
		if i >= maxL3 {
			break
		}
		keep[cid] = true
	}

	removed := 0
	for _, col := range l3 {
		if removed >= excess {
			break
		}
		if keep[col.CollectionID] {
			continue
		}
		if err := r.api.DeleteCollect(ctx, col.ID); err != nil {
			return fmt.Errorf("failed to remove excess collection %s: %w", col.CollectionID, err)
		}
		removed++
		if err := sleepCtx(ctx, r.writeDelay); err != nil {
			return err
		}
	}

	if removed > 0 {
		r.logger.Info("removed excess level-3 memberships",
			"product_id", productID,
			"removed", removed)
	}

	return nil
}
