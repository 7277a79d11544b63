package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/models"
)

const wishlistColumns = `id, unique_id, name, description, linked_repo, sha, created_at, updated_at`

func scanWishlist(row interface{ Scan(...any) error }) (*models.Wishlist, error) {
	var w models.Wishlist
	err := row.Scan(&w.ID, &w.UniqueID, &w.Name, &w.Description, &w.LinkedRepo, &w.SHA, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWishlist inserts a wishlist, generating a unique ID when none is set.
// A unique ID that already exists is reported as apperr.ErrConflict.
func CreateWishlist(ctx context.Context, db querier, w models.Wishlist) (*models.Wishlist, error) {
	if w.UniqueID == "" {
		w.UniqueID = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO wishlists (unique_id, name, description, linked_repo, sha, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.ExecContext(ctx, query, w.UniqueID, w.Name, w.Description, w.LinkedRepo, w.SHA, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: wishlist %s already exists", apperr.ErrConflict, w.UniqueID)
		}
		return nil, fmt.Errorf("failed to create wishlist: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get wishlist ID: %w", err)
	}

	w.ID = id
	w.CreatedAt = now
	w.UpdatedAt = now
	return &w, nil
}

func GetWishlist(ctx context.Context, db querier, id int64) (*models.Wishlist, error) {
	row := db.QueryRowContext(ctx, `SELECT `+wishlistColumns+` FROM wishlists WHERE id = ?`, id)
	w, err := scanWishlist(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("wishlist", id)
		}
		return nil, fmt.Errorf("failed to get wishlist: %w", err)
	}
	return w, nil
}

func GetWishlistByUniqueID(ctx context.Context, db querier, uniqueID string) (*models.Wishlist, error) {
	row := db.QueryRowContext(ctx, `SELECT `+wishlistColumns+` FROM wishlists WHERE unique_id = ?`, uniqueID)
	w, err := scanWishlist(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("wishlist", uniqueID)
		}
		return nil, fmt.Errorf("failed to get wishlist: %w", err)
	}
	return w, nil
}

func GetWishlists(ctx context.Context, db querier) ([]models.Wishlist, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+wishlistColumns+` FROM wishlists ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query wishlists: %w", err)
	}
	defer rows.Close()

	wishlists := []models.Wishlist{}
	for rows.Next() {
		w, err := scanWishlist(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wishlist: %w", err)
		}
		wishlists = append(wishlists, *w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating wishlists: %w", err)
	}
	return wishlists, nil
}

// UpdateWishlist rewrites the editable fields. The unique ID never changes.
func UpdateWishlist(ctx context.Context, db querier, w models.Wishlist) (*models.Wishlist, error) {
	if w.ID == 0 {
		return nil, fmt.Errorf("%w: wishlist has no id", apperr.ErrInvalidInput)
	}
	now := time.Now().UTC()

	query := `
		UPDATE wishlists
		SET name = ?, description = ?, linked_repo = ?, sha = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := db.ExecContext(ctx, query, w.Name, w.Description, w.LinkedRepo, w.SHA, now, w.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update wishlist: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, notFound("wishlist", w.ID)
	}
	return GetWishlist(ctx, db, w.ID)
}

func UpdateWishlistSHA(ctx context.Context, db querier, id int64, sha string) error {
	result, err := db.ExecContext(ctx, `UPDATE wishlists SET sha = ?, updated_at = ? WHERE id = ?`, sha, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update wishlist sha: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("wishlist", id)
	}
	return nil
}

// DeleteWishlist removes the wishlist and every build in it.
func DeleteWishlist(ctx context.Context, db *sql.DB, id int64) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM builds WHERE wishlist_id = ?`, id); err != nil {
			return fmt.Errorf("failed to delete wishlist builds: %w", err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM wishlists WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete wishlist: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return notFound("wishlist", id)
		}
		return nil
	})
}

// ImportWishlist stores a wishlist together with its builds in one
// transaction. Builds keep their unique IDs when set; nothing is propagated.
func ImportWishlist(ctx context.Context, db *sql.DB, w models.Wishlist, builds []models.Build) (*models.Wishlist, error) {
	var created *models.Wishlist
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		var err error
		created, err = CreateWishlist(ctx, tx, w)
		if err != nil {
			return err
		}
		for i := range builds {
			b := builds[i].Clone()
			b.ID = 0
			b.WishlistID = created.ID
			if err := CreateBuild(ctx, tx, &b); err != nil {
				return fmt.Errorf("failed to import build %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ReplaceWishlistBuilds swaps the wishlist's builds for the given ones and
// records the new remote SHA, all or nothing.
func ReplaceWishlistBuilds(ctx context.Context, db *sql.DB, wishlistID int64, builds []models.Build, sha string) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := DeleteBuildsByWishlist(ctx, tx, wishlistID); err != nil {
			return err
		}
		for i := range builds {
			b := builds[i].Clone()
			b.ID = 0
			b.WishlistID = wishlistID
			if err := CreateBuild(ctx, tx, &b); err != nil {
				return fmt.Errorf("failed to store build %d: %w", i, err)
			}
		}
		return UpdateWishlistSHA(ctx, tx, wishlistID, sha)
	})
}
