package models

import (
	"time"
)

type Wishlist struct {
	ID          int64     `json:"id" db:"id"`
	UniqueID    string    `json:"unique_id" db:"unique_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	LinkedRepo  string    `json:"linked_repo,omitempty" db:"linked_repo"`
	SHA         string    `json:"sha,omitempty" db:"sha"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Build is one recommended perk loadout for one item. Plugs holds one set of
// acceptable plug hashes per perk socket, in socket order. A nil Plugs means
// no perk selection was recorded, which is distinct from an empty slice.
type Build struct {
	ID          int64      `json:"id" db:"id"`
	UniqueID    string     `json:"unique_id" db:"unique_id"`
	WishlistID  int64      `json:"wishlist_id" db:"wishlist_id"`
	ItemHash    uint32     `json:"item_hash" db:"item_hash"`
	Name        string     `json:"name" db:"name"`
	Description string     `json:"description" db:"description"`
	Tags        TagSet     `json:"tags" db:"tags"`
	Plugs       [][]uint32 `json:"plugs" db:"plugs"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// Clone returns a deep copy so that propagated copies never share slices or
// tag maps with the build they were made from.
func (b Build) Clone() Build {
	out := b
	out.Tags = b.Tags.Clone()
	if b.Plugs != nil {
		out.Plugs = make([][]uint32, len(b.Plugs))
		for i, slot := range b.Plugs {
			if slot != nil {
				out.Plugs[i] = append([]uint32{}, slot...)
			}
		}
	}
	return out
}

// HasPlugs reports whether any slot selects at least one plug.
func (b Build) HasPlugs() bool {
	for _, slot := range b.Plugs {
		if len(slot) > 0 {
			return true
		}
	}
	return false
}

type VaultItem struct {
	ItemInstanceID string   `json:"item_instance_id"`
	ItemHash       uint32   `json:"item_hash"`
	ItemName       string   `json:"item_name"`
	PlugHashes     []uint32 `json:"plug_hashes"`
}

type VaultData struct {
	PlayerID  string      `json:"player_id" db:"player_id"`
	Items     []VaultItem `json:"items" db:"items"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}
