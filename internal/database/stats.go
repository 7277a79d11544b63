package database

import (
	"context"
	"fmt"
	"time"
)

type Stats struct {
	TotalWishlists int `json:"total_wishlists"`
	TotalBuilds    int `json:"total_builds"`
	DistinctItems  int `json:"distinct_items"`
	LinkedRepos    int `json:"linked_repos"`
	CachedPlayers  int `json:"cached_players"`
}

type WishlistSummary struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	LinkedRepo string    `json:"linked_repo,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
	BuildCount int       `json:"build_count"`
	ItemCount  int       `json:"item_count"`
}

func GetStats(ctx context.Context, db querier) (*Stats, error) {
	stats := &Stats{}

	counts := []struct {
		query string
		dest  *int
		what  string
	}{
		{"SELECT COUNT(*) FROM wishlists", &stats.TotalWishlists, "wishlist count"},
		{"SELECT COUNT(*) FROM builds", &stats.TotalBuilds, "build count"},
		{"SELECT COUNT(DISTINCT item_hash) FROM builds", &stats.DistinctItems, "item count"},
		{"SELECT COUNT(*) FROM wishlists WHERE linked_repo != ''", &stats.LinkedRepos, "linked repo count"},
		{"SELECT COUNT(*) FROM vault_cache", &stats.CachedPlayers, "cached player count"},
	}
	for _, c := range counts {
		if err := db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to get %s: %w", c.what, err)
		}
	}

	return stats, nil
}

// GetRecentWishlists lists the most recently edited wishlists with their
// build and item counts.
func GetRecentWishlists(ctx context.Context, db querier, limit int) ([]WishlistSummary, error) {
	query := `
		SELECT
			w.id,
			w.name,
			w.linked_repo,
			w.updated_at,
			COUNT(b.id) AS build_count,
			COUNT(DISTINCT b.item_hash) AS item_count
		FROM wishlists w
		LEFT JOIN builds b ON b.wishlist_id = w.id
		GROUP BY w.id, w.name, w.linked_repo, w.updated_at
		ORDER BY w.updated_at DESC, w.id DESC
		LIMIT ?
	`

	rows, err := db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent wishlists: %w", err)
	}
	defer rows.Close()

	summaries := []WishlistSummary{}
	for rows.Next() {
		var s WishlistSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.LinkedRepo, &s.UpdatedAt, &s.BuildCount, &s.ItemCount); err != nil {
			return nil, fmt.Errorf("failed to scan recent wishlist: %w", err)
		}
		summaries = append(summaries, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent wishlists: %w", err)
	}
	return summaries, nil
}
