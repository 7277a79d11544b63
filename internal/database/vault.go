package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"wishlistbuilder/internal/models"
)

func GetVaultData(ctx context.Context, db querier, playerID string) (*models.VaultData, error) {
	var data models.VaultData
	var items string

	err := db.QueryRowContext(ctx,
		`SELECT player_id, items, created_at FROM vault_cache WHERE player_id = ?`, playerID,
	).Scan(&data.PlayerID, &items, &data.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("vault data", playerID)
		}
		return nil, fmt.Errorf("failed to get vault data: %w", err)
	}

	if err := json.Unmarshal([]byte(items), &data.Items); err != nil {
		return nil, fmt.Errorf("failed to decode vault items: %w", err)
	}
	return &data, nil
}

// SaveVaultData replaces the player's cached vault. The last writer wins.
func SaveVaultData(ctx context.Context, db querier, data *models.VaultData) error {
	items, err := json.Marshal(data.Items)
	if err != nil {
		return fmt.Errorf("failed to encode vault items: %w", err)
	}

	query := `
		INSERT INTO vault_cache (player_id, items, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(player_id) DO UPDATE SET items = excluded.items, created_at = excluded.created_at
	`
	if _, err := db.ExecContext(ctx, query, data.PlayerID, string(items), data.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to save vault data: %w", err)
	}
	return nil
}

func DeleteVaultData(ctx context.Context, db querier, playerID string) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM vault_cache WHERE player_id = ?`, playerID); err != nil {
		return fmt.Errorf("failed to delete vault data: %w", err)
	}
	return nil
}
