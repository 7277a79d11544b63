package database

import (
	"context"
	"database/sql"

	"wishlistbuilder/internal/models"
)

// Store binds the package functions to one *sql.DB so that the engine and
// vault cache can depend on interfaces instead of this package.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) GetBuild(ctx context.Context, id int64) (*models.Build, error) {
	return GetBuild(ctx, s.db, id)
}

func (s *Store) BuildsByItem(ctx context.Context, wishlistID int64, itemHash uint32) ([]models.Build, error) {
	return GetBuildsByItem(ctx, s.db, wishlistID, itemHash)
}

// UpsertBuild inserts when the build has no ID yet and updates otherwise.
func (s *Store) UpsertBuild(ctx context.Context, b *models.Build) error {
	if b.ID == 0 {
		return CreateBuild(ctx, s.db, b)
	}
	return UpdateBuild(ctx, s.db, b)
}

func (s *Store) DeleteBuild(ctx context.Context, id int64) error {
	return DeleteBuild(ctx, s.db, id)
}

func (s *Store) DeleteBuildsByWishlist(ctx context.Context, wishlistID int64) (int64, error) {
	return DeleteBuildsByWishlist(ctx, s.db, wishlistID)
}

func (s *Store) GetVaultData(ctx context.Context, playerID string) (*models.VaultData, error) {
	return GetVaultData(ctx, s.db, playerID)
}

func (s *Store) SaveVaultData(ctx context.Context, data *models.VaultData) error {
	return SaveVaultData(ctx, s.db, data)
}
