package builds

import "wishlistbuilder/internal/models"

// SameLogicalBuild reports whether candidate b is a copy of a: same name,
// description and tags, and every plug of each slot in a present in the same
// slot of b. The plug check is one-directional, so SameLogicalBuild(a, b)
// does not imply SameLogicalBuild(b, a).
func SameLogicalBuild(a, b *models.Build) bool {
	if a == nil || b == nil {
		return false
	}
	if a.Name != b.Name || a.Description != b.Description {
		return false
	}
	if !a.Tags.Equal(b.Tags) {
		return false
	}
	if (a.Plugs == nil) != (b.Plugs == nil) {
		return false
	}
	if len(a.Plugs) != len(b.Plugs) {
		return false
	}
	for i, slot := range a.Plugs {
		if !subset(slot, b.Plugs[i]) {
			return false
		}
	}
	return true
}

func subset(small, big []uint32) bool {
	if len(small) == 0 {
		return true
	}
	have := make(map[uint32]struct{}, len(big))
	for _, p := range big {
		have[p] = struct{}{}
	}
	for _, p := range small {
		if _, ok := have[p]; !ok {
			return false
		}
	}
	return true
}
