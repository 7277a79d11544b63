// Package weapons answers questions about weapon versions: which catalog
// items are alternates of one another and which perks a version can roll.
// Everything here is a pure function over a Lookup.
package weapons

import (
	"strings"

	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/models"
)

// Lookup is the read-only catalog view the functions in this package need.
// *catalog.Catalog satisfies it.
type Lookup interface {
	Item(hash uint32) (*catalog.ItemDefinition, bool)
	Weapons() []*catalog.ItemDefinition
	PlugSet(hash uint32) (*catalog.PlugSetDefinition, bool)
}

// ignoredReusablePlugSetHash is a shared reusable set that never holds perks.
const ignoredReusablePlugSetHash uint32 = 1074

var cosmeticSuffixes = []string{"(Adept)", "(Timelost)", "(Harrowing)"}

// NormalizeName strips the cosmetic version suffixes from a weapon name.
func NormalizeName(name string) string {
	for _, suffix := range cosmeticSuffixes {
		name = strings.ReplaceAll(name, suffix, "")
	}
	return strings.TrimSpace(name)
}

// Alternates returns the other weapon versions of hash in catalog order.
// An unknown hash yields nil.
func Alternates(lookup Lookup, hash uint32) []*catalog.ItemDefinition {
	target, ok := lookup.Item(hash)
	if !ok {
		return nil
	}
	name := NormalizeName(target.Name())

	var out []*catalog.ItemDefinition
	for _, candidate := range lookup.Weapons() {
		if candidate.Hash == target.Hash || !candidate.IsWeapon() {
			continue
		}
		if candidate.Season != target.Season {
			continue
		}
		if target.LoreHash != 0 && candidate.LoreHash != target.LoreHash {
			continue
		}
		if NormalizeName(candidate.Name()) != name {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

// ObtainablePlugs collects every plug the weapon's perk sockets can hold.
// Reusable plug sets that offer the empty plug are socket fillers, not perk
// pools, and are left out along with set 1074.
func ObtainablePlugs(lookup Lookup, def *catalog.ItemDefinition) map[uint32]struct{} {
	plugs := make(map[uint32]struct{})
	category, ok := def.SocketCategory(catalog.PerkSocketCategoryHash)
	if !ok {
		return plugs
	}

	addSet := func(hash uint32, skipEmptyable bool) {
		if hash == 0 {
			return
		}
		ps, ok := lookup.PlugSet(hash)
		if !ok {
			return
		}
		if skipEmptyable {
			for _, p := range ps.ReusablePlugItems {
				if p.PlugItemHash == catalog.EmptyPlugHash {
					return
				}
			}
		}
		for _, p := range ps.ReusablePlugItems {
			plugs[p.PlugItemHash] = struct{}{}
		}
	}

	for _, idx := range category.SocketIndexes {
		if idx < 0 || idx >= len(def.Sockets.SocketEntries) {
			continue
		}
		entry := def.Sockets.SocketEntries[idx]
		if entry.SingleInitialItemHash != 0 && entry.SingleInitialItemHash != catalog.EmptyPlugHash {
			plugs[entry.SingleInitialItemHash] = struct{}{}
		}
		for _, p := range entry.ReusablePlugItems {
			plugs[p.PlugItemHash] = struct{}{}
		}
		if entry.ReusablePlugSetHash != ignoredReusablePlugSetHash {
			addSet(entry.ReusablePlugSetHash, true)
		}
		addSet(entry.RandomizedPlugSetHash, false)
	}
	return plugs
}

// IsViable reports whether every plug the build asks for can roll on def.
func IsViable(lookup Lookup, build *models.Build, def *catalog.ItemDefinition) bool {
	if !build.HasPlugs() {
		return true
	}
	obtainable := ObtainablePlugs(lookup, def)
	for _, slot := range build.Plugs {
		for _, plug := range slot {
			if _, ok := obtainable[plug]; !ok {
				return false
			}
		}
	}
	return true
}
