// Package vault reconciles a player's live inventory against stored builds
// and keeps a short-lived local copy of that inventory.
package vault

import (
	"strings"

	"wishlistbuilder/internal/models"
)

type AnnotatedBuild struct {
	models.Build
	Owned bool `json:"owned"`
}

// ItemSummary is one row of the item view: all builds for one item hash.
type ItemSummary struct {
	ItemHash   uint32 `json:"item_hash"`
	BuildCount int    `json:"build_count"`
	Owned      bool   `json:"owned"`
	IsTrash    bool   `json:"is_trash"`
}

// Annotate marks each build owned when some vault instance of the same item
// carries at least one plug of every non-empty slot. Slot positions are not
// compared.
func Annotate(builds []models.Build, items []models.VaultItem) []AnnotatedBuild {
	byHash := make(map[uint32][]map[uint32]struct{})
	for _, item := range items {
		plugs := make(map[uint32]struct{}, len(item.PlugHashes))
		for _, p := range item.PlugHashes {
			plugs[p] = struct{}{}
		}
		byHash[item.ItemHash] = append(byHash[item.ItemHash], plugs)
	}

	out := make([]AnnotatedBuild, len(builds))
	for i, b := range builds {
		out[i] = AnnotatedBuild{Build: b}
		for _, plugs := range byHash[b.ItemHash] {
			if satisfies(b.Plugs, plugs) {
				out[i].Owned = true
				break
			}
		}
	}
	return out
}

func satisfies(slots [][]uint32, plugs map[uint32]struct{}) bool {
	for _, slot := range slots {
		if len(slot) == 0 {
			continue
		}
		found := false
		for _, p := range slot {
			if _, ok := plugs[p]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsTrashName reports whether a build name marks its item as trash.
func IsTrashName(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), "trash")
}

// Summarize groups annotated builds by item hash, in order of first
// appearance. Owned and IsTrash are each true when any build in the group
// has the flag; the two are computed independently.
func Summarize(builds []AnnotatedBuild) []ItemSummary {
	index := make(map[uint32]int)
	var out []ItemSummary
	for _, b := range builds {
		i, ok := index[b.ItemHash]
		if !ok {
			i = len(out)
			index[b.ItemHash] = i
			out = append(out, ItemSummary{ItemHash: b.ItemHash})
		}
		s := &out[i]
		s.BuildCount++
		s.Owned = s.Owned || b.Owned
		s.IsTrash = s.IsTrash || IsTrashName(b.Name)
	}
	return out
}
