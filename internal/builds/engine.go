// Package builds saves and deletes builds across every weapon version that
// can roll them.
package builds

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/metrics"
	"wishlistbuilder/internal/models"
	"wishlistbuilder/internal/weapons"
)

// Store is the build persistence the engine writes through. GetBuild returns
// an error wrapping apperr.ErrNotFound for a missing key. UpsertBuild inserts
// when ID is zero (setting ID) and updates otherwise.
type Store interface {
	GetBuild(ctx context.Context, id int64) (*models.Build, error)
	BuildsByItem(ctx context.Context, wishlistID int64, itemHash uint32) ([]models.Build, error)
	UpsertBuild(ctx context.Context, build *models.Build) error
	DeleteBuild(ctx context.Context, id int64) error
	DeleteBuildsByWishlist(ctx context.Context, wishlistID int64) (int64, error)
}

type Engine struct {
	store   Store
	catalog weapons.Lookup
	bus     *events.Bus
}

func NewEngine(store Store, lookup weapons.Lookup, bus *events.Bus) *Engine {
	return &Engine{store: store, catalog: lookup, bus: bus}
}

// Result is the outcome of a save. Build is the primary record; the counters
// describe what happened on the alternate versions.
type Result struct {
	Build   *models.Build `json:"build"`
	Copies  int           `json:"copies"`
	Skipped int           `json:"skipped"`
	Failed  int           `json:"failed"`
}

// Save persists build on its own item and upserts a copy on every alternate
// version whose perk pool contains the build's plugs. A copy that still
// matches the pre-edit state of a keyed build is updated in place instead of
// duplicated. Failures on alternates are logged and counted; they never undo
// the primary save.
func (e *Engine) Save(ctx context.Context, build models.Build) (*Result, error) {
	if build.ItemHash == 0 {
		return nil, fmt.Errorf("%w: build has no item hash", apperr.ErrInvalidInput)
	}
	if build.WishlistID == 0 {
		return nil, fmt.Errorf("%w: build has no wishlist", apperr.ErrInvalidInput)
	}

	var original *models.Build
	if build.ID != 0 {
		prev, err := e.store.GetBuild(ctx, build.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load build %d before update: %w", build.ID, err)
		}
		original = prev
	}

	primary := build.Clone()
	switch {
	case original != nil:
		primary.UniqueID = original.UniqueID
	case primary.UniqueID == "":
		primary.UniqueID = uuid.NewString()
	}
	if err := e.store.UpsertBuild(ctx, &primary); err != nil {
		return nil, fmt.Errorf("failed to save build: %w", err)
	}

	result := &Result{Build: &primary}
	for _, alt := range weapons.Alternates(e.catalog, primary.ItemHash) {
		if !weapons.IsViable(e.catalog, &primary, alt) {
			result.Skipped++
			metrics.PropagationSkipped.Inc()
			logger.Debug("Skipping alternate without the build's perks",
				"item_hash", primary.ItemHash,
				"alternate_hash", alt.Hash,
			)
			continue
		}
		if err := e.upsertCopy(ctx, &primary, original, alt); err != nil {
			result.Failed++
			metrics.PropagationFailures.WithLabelValues("upsert").Inc()
			logger.Warn("Failed to propagate build to alternate",
				"build_id", primary.ID,
				"alternate_hash", alt.Hash,
				"error", err,
			)
			continue
		}
		result.Copies++
		metrics.PropagatedCopies.WithLabelValues("upsert").Inc()
	}

	e.bus.Publish(events.Event{Kind: events.BuildsChanged, WishlistID: primary.WishlistID})
	logger.Info("Build saved",
		"build_id", primary.ID,
		"item_hash", primary.ItemHash,
		"copies", result.Copies,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	return result, nil
}

func (e *Engine) upsertCopy(ctx context.Context, primary, original *models.Build, alt *catalog.ItemDefinition) error {
	cp := primary.Clone()
	cp.ID = 0
	cp.UniqueID = ""
	cp.ItemHash = alt.Hash

	if original != nil {
		existing, err := e.store.BuildsByItem(ctx, primary.WishlistID, alt.Hash)
		if err != nil {
			return fmt.Errorf("failed to list builds for item %d: %w", alt.Hash, err)
		}
		for i := range existing {
			if SameLogicalBuild(&existing[i], original) {
				cp.ID = existing[i].ID
				cp.UniqueID = existing[i].UniqueID
				break
			}
		}
	}
	if cp.UniqueID == "" {
		cp.UniqueID = uuid.NewString()
	}
	return e.store.UpsertBuild(ctx, &cp)
}

// Delete removes the build and, on each alternate version, the first build
// that is a copy of it. Copies that diverged are left alone.
func (e *Engine) Delete(ctx context.Context, id int64) (*models.Build, error) {
	deleted, err := e.store.GetBuild(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load build %d: %w", id, err)
	}
	if err := e.store.DeleteBuild(ctx, id); err != nil {
		return nil, fmt.Errorf("failed to delete build %d: %w", id, err)
	}

	removed := 0
	for _, alt := range weapons.Alternates(e.catalog, deleted.ItemHash) {
		ok, err := e.deleteCopy(ctx, deleted, alt.Hash)
		if err != nil {
			metrics.PropagationFailures.WithLabelValues("delete").Inc()
			logger.Warn("Failed to delete propagated copy",
				"build_id", id,
				"alternate_hash", alt.Hash,
				"error", err,
			)
			continue
		}
		if ok {
			removed++
			metrics.PropagatedCopies.WithLabelValues("delete").Inc()
		}
	}

	e.bus.Publish(events.Event{Kind: events.BuildsChanged, WishlistID: deleted.WishlistID})
	logger.Info("Build deleted", "build_id", id, "item_hash", deleted.ItemHash, "copies_removed", removed)
	return deleted, nil
}

func (e *Engine) deleteCopy(ctx context.Context, deleted *models.Build, itemHash uint32) (bool, error) {
	candidates, err := e.store.BuildsByItem(ctx, deleted.WishlistID, itemHash)
	if err != nil {
		return false, fmt.Errorf("failed to list builds for item %d: %w", itemHash, err)
	}
	for i := range candidates {
		if !SameLogicalBuild(&candidates[i], deleted) {
			continue
		}
		if err := e.store.DeleteBuild(ctx, candidates[i].ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// Clear deletes every build of a wishlist.
func (e *Engine) Clear(ctx context.Context, wishlistID int64) (int64, error) {
	n, err := e.store.DeleteBuildsByWishlist(ctx, wishlistID)
	if err != nil {
		return 0, fmt.Errorf("failed to clear wishlist %d: %w", wishlistID, err)
	}
	e.bus.Publish(events.Event{Kind: events.BuildsChanged, WishlistID: wishlistID})
	logger.Info("Wishlist builds cleared", "wishlist_id", wishlistID, "deleted", n)
	return n, nil
}
