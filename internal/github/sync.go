package github

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/database"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/littlelight"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/models"
)

// Syncer moves wishlists between the local database and linked repositories.
type Syncer struct {
	client *Client
	db     *sql.DB
	bus    *events.Bus
}

func NewSyncer(client *Client, db *sql.DB, bus *events.Bus) *Syncer {
	return &Syncer{client: client, db: db, bus: bus}
}

func decodeRemote(file *RemoteFile) (models.Wishlist, []models.Build, error) {
	doc, err := littlelight.Decode(bytes.NewReader(file.Content))
	if err != nil {
		return models.Wishlist{}, nil, err
	}
	return doc.ToModels()
}

// Link imports the repository's wishlist file as a new local wishlist that
// remembers the repository and the file's SHA.
func (s *Syncer) Link(ctx context.Context, repo, token string) (*models.Wishlist, error) {
	file, err := s.client.FetchWishlist(ctx, repo, token)
	if err != nil {
		return nil, err
	}

	w, builds, err := decodeRemote(file)
	if err != nil {
		return nil, err
	}
	w.LinkedRepo = repo
	w.SHA = file.SHA

	created, err := database.ImportWishlist(ctx, s.db, w, builds)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(events.Event{Kind: events.WishlistsChanged, WishlistID: created.ID})
	logger.Info("Wishlist linked to repository", "wishlist_id", created.ID, "repo", repo, "builds", len(builds))
	return created, nil
}

func (s *Syncer) linkedWishlist(ctx context.Context, wishlistID int64) (*models.Wishlist, error) {
	w, err := database.GetWishlist(ctx, s.db, wishlistID)
	if err != nil {
		return nil, err
	}
	if w.LinkedRepo == "" {
		return nil, fmt.Errorf("%w: wishlist %d is not linked to a repository", apperr.ErrInvalidInput, wishlistID)
	}
	return w, nil
}

// Sync replaces the local builds with the repository's when the remote SHA
// differs from the stored one. It reports whether anything changed.
func (s *Syncer) Sync(ctx context.Context, wishlistID int64, token string) (bool, error) {
	w, err := s.linkedWishlist(ctx, wishlistID)
	if err != nil {
		return false, err
	}

	file, err := s.client.FetchWishlist(ctx, w.LinkedRepo, token)
	if err != nil {
		return false, err
	}
	if file.SHA == w.SHA {
		logger.Debug("Wishlist already up to date", "wishlist_id", wishlistID, "sha", file.SHA)
		return false, nil
	}

	_, builds, err := decodeRemote(file)
	if err != nil {
		return false, err
	}
	if err := database.ReplaceWishlistBuilds(ctx, s.db, wishlistID, builds, file.SHA); err != nil {
		return false, err
	}

	s.bus.Publish(events.Event{Kind: events.BuildsChanged, WishlistID: wishlistID})
	logger.Info("Wishlist synced from repository", "wishlist_id", wishlistID, "repo", w.LinkedRepo, "builds", len(builds))
	return true, nil
}

// Save pushes the local wishlist to its repository and stores the new SHA.
// A remote file that changed since the last link or sync is reported as
// apperr.ErrConflict.
func (s *Syncer) Save(ctx context.Context, wishlistID int64, token string) (string, error) {
	w, err := s.linkedWishlist(ctx, wishlistID)
	if err != nil {
		return "", err
	}
	if w.SHA == "" {
		return "", fmt.Errorf("%w: wishlist %d has no remote sha, sync it first", apperr.ErrInvalidInput, wishlistID)
	}

	builds, err := database.GetBuildsByWishlist(ctx, s.db, wishlistID)
	if err != nil {
		return "", err
	}
	opts := littlelight.ExportOptions{PrettyPrint: true}
	content, err := littlelight.Encode(littlelight.FromModels(*w, builds, opts), opts)
	if err != nil {
		return "", err
	}

	sha, err := s.client.PutWishlist(ctx, w.LinkedRepo, token, "Update wishlist: "+w.Name, content, w.SHA)
	if err != nil {
		return "", err
	}
	if sha != "" {
		if err := database.UpdateWishlistSHA(ctx, s.db, wishlistID, sha); err != nil {
			return "", err
		}
	}

	s.bus.Publish(events.Event{Kind: events.WishlistsChanged, WishlistID: wishlistID})
	logger.Info("Wishlist saved to repository", "wishlist_id", wishlistID, "repo", w.LinkedRepo, "sha", sha)
	return sha, nil
}
