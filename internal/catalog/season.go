package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DefaultSeason is used when no lookup table knows the item.
const DefaultSeason = 1

// SeasonTable maps a watermark path or a source/item hash (as a decimal
// string) to a season number. The upstream files use both numbers and
// numeric strings as values.
type SeasonTable map[string]int

func (t *SeasonTable) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(SeasonTable, len(raw))
	for key, value := range raw {
		var n int
		if err := json.Unmarshal(value, &n); err == nil {
			out[key] = n
			continue
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("season for %q is neither number nor string", key)
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("season for %q: %w", key, err)
		}
		out[key] = n
	}
	*t = out
	return nil
}

func (t SeasonTable) lookupString(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	n, ok := t[key]
	return n, ok
}

func (t SeasonTable) lookupHash(hash uint32) (int, bool) {
	if hash == 0 {
		return 0, false
	}
	n, ok := t[strconv.FormatUint(uint64(hash), 10)]
	return n, ok
}

// Seasons bundles the three lookup tables published by d2ai.
type Seasons struct {
	Watermark SeasonTable
	Source    SeasonTable
	Backup    SeasonTable
}

// ResolveSeason applies the lookup priority: primary watermark, shelved
// watermark, collectible source, collectible item, then the same two keys in
// the backup table. The first hit wins.
func ResolveSeason(s Seasons, item *ItemDefinition, collectible *CollectibleDefinition) int {
	if item != nil {
		if n, ok := s.Watermark.lookupString(item.IconWatermark); ok {
			return n
		}
		if n, ok := s.Watermark.lookupString(item.IconWatermarkShelved); ok {
			return n
		}
	}
	if collectible != nil {
		if n, ok := s.Source.lookupHash(collectible.SourceHash); ok {
			return n
		}
		if n, ok := s.Source.lookupHash(collectible.ItemHash); ok {
			return n
		}
		if n, ok := s.Backup.lookupHash(collectible.SourceHash); ok {
			return n
		}
		if n, ok := s.Backup.lookupHash(collectible.ItemHash); ok {
			return n
		}
	}
	return DefaultSeason
}

func (c *Catalog) resolveSeason(item *ItemDefinition) int {
	var col *CollectibleDefinition
	if item.CollectibleHash != 0 {
		col = c.collectibles[item.CollectibleHash]
	}
	return ResolveSeason(c.seasons, item, col)
}

// Season returns the resolved season of an item, or DefaultSeason when the
// item is unknown.
func (c *Catalog) Season(hash uint32) int {
	if def, ok := c.items[hash]; ok {
		return def.Season
	}
	return DefaultSeason
}
