package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/models"
)

const buildColumns = `id, unique_id, wishlist_id, item_hash, name, description, tags, plugs, created_at, updated_at`

// Tags are stored as a sorted JSON array. Plugs are a JSON array of arrays,
// or NULL when the build records no perk selection.
func encodeBuild(b *models.Build) (tags string, plugs sql.NullString, err error) {
	tagsJSON, err := json.Marshal(b.Tags)
	if err != nil {
		return "", plugs, fmt.Errorf("failed to encode tags: %w", err)
	}
	if b.Plugs != nil {
		plugsJSON, err := json.Marshal(b.Plugs)
		if err != nil {
			return "", plugs, fmt.Errorf("failed to encode plugs: %w", err)
		}
		plugs = sql.NullString{String: string(plugsJSON), Valid: true}
	}
	return string(tagsJSON), plugs, nil
}

func scanBuild(row interface{ Scan(...any) error }) (*models.Build, error) {
	var b models.Build
	var itemHash int64
	var tags string
	var plugs sql.NullString

	err := row.Scan(&b.ID, &b.UniqueID, &b.WishlistID, &itemHash, &b.Name, &b.Description, &tags, &plugs, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.ItemHash = uint32(itemHash)

	if err := json.Unmarshal([]byte(tags), &b.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of build %d: %w", b.ID, err)
	}
	if plugs.Valid {
		if err := json.Unmarshal([]byte(plugs.String), &b.Plugs); err != nil {
			return nil, fmt.Errorf("failed to decode plugs of build %d: %w", b.ID, err)
		}
		if b.Plugs == nil {
			b.Plugs = [][]uint32{}
		}
	}
	return &b, nil
}

// CreateBuild inserts b and sets its ID and timestamps. A missing unique ID
// is generated.
func CreateBuild(ctx context.Context, db querier, b *models.Build) error {
	if b.UniqueID == "" {
		b.UniqueID = uuid.NewString()
	}
	tags, plugs, err := encodeBuild(b)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO builds (unique_id, wishlist_id, item_hash, name, description, tags, plugs, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	result, err := db.ExecContext(ctx, query, b.UniqueID, b.WishlistID, int64(b.ItemHash), b.Name, b.Description, tags, plugs, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: build %s already exists", apperr.ErrConflict, b.UniqueID)
		}
		return fmt.Errorf("failed to create build: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get build ID: %w", err)
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

// UpdateBuild rewrites every mutable column of an existing build. The unique
// ID and wishlist are left as stored.
func UpdateBuild(ctx context.Context, db querier, b *models.Build) error {
	tags, plugs, err := encodeBuild(b)
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	query := `
		UPDATE builds
		SET item_hash = ?, name = ?, description = ?, tags = ?, plugs = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := db.ExecContext(ctx, query, int64(b.ItemHash), b.Name, b.Description, tags, plugs, now, b.ID)
	if err != nil {
		return fmt.Errorf("failed to update build: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("build", b.ID)
	}
	b.UpdatedAt = now
	return nil
}

func GetBuild(ctx context.Context, db querier, id int64) (*models.Build, error) {
	row := db.QueryRowContext(ctx, `SELECT `+buildColumns+` FROM builds WHERE id = ?`, id)
	b, err := scanBuild(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("build", id)
		}
		return nil, fmt.Errorf("failed to get build: %w", err)
	}
	return b, nil
}

func queryBuilds(ctx context.Context, db querier, query string, args ...any) ([]models.Build, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query builds: %w", err)
	}
	defer rows.Close()

	builds := []models.Build{}
	for rows.Next() {
		b, err := scanBuild(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan build: %w", err)
		}
		builds = append(builds, *b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating builds: %w", err)
	}
	return builds, nil
}

func GetBuildsByWishlist(ctx context.Context, db querier, wishlistID int64) ([]models.Build, error) {
	return queryBuilds(ctx, db, `SELECT `+buildColumns+` FROM builds WHERE wishlist_id = ? ORDER BY id`, wishlistID)
}

func GetBuildsByItem(ctx context.Context, db querier, wishlistID int64, itemHash uint32) ([]models.Build, error) {
	return queryBuilds(ctx, db,
		`SELECT `+buildColumns+` FROM builds WHERE wishlist_id = ? AND item_hash = ? ORDER BY id`,
		wishlistID, int64(itemHash),
	)
}

func DeleteBuild(ctx context.Context, db querier, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM builds WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete build: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("build", id)
	}
	return nil
}

func DeleteBuildsByWishlist(ctx context.Context, db querier, wishlistID int64) (int64, error) {
	result, err := db.ExecContext(ctx, `DELETE FROM builds WHERE wishlist_id = ?`, wishlistID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete builds: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted builds: %w", err)
	}
	return n, nil
}
