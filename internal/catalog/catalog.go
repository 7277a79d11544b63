// Package catalog holds the read-only Destiny 2 item data the wishlist engine
// works against: item definitions with their socket topology, plug sets,
// collectibles and the season lookup tables. A Catalog is built once at
// startup and never mutated afterwards, so it is safe for concurrent reads.
package catalog

import (
	"sort"
)

const (
	ItemTypeWeapon  = 3
	ItemTypePattern = 30

	// PerkSocketCategoryHash identifies the weapon perks socket category.
	PerkSocketCategoryHash uint32 = 4241085061

	// EmptyPlugHash is the placeholder plug of an unfilled socket.
	EmptyPlugHash uint32 = 2285418970
)

type DisplayProperties struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

type PlugItem struct {
	PlugItemHash uint32 `json:"plugItemHash"`
}

type SocketEntry struct {
	SingleInitialItemHash uint32     `json:"singleInitialItemHash,omitempty"`
	ReusablePlugItems     []PlugItem `json:"reusablePlugItems,omitempty"`
	ReusablePlugSetHash   uint32     `json:"reusablePlugSetHash,omitempty"`
	RandomizedPlugSetHash uint32     `json:"randomizedPlugSetHash,omitempty"`
}

type SocketCategory struct {
	SocketCategoryHash uint32 `json:"socketCategoryHash"`
	SocketIndexes      []int  `json:"socketIndexes"`
}

type Sockets struct {
	SocketEntries    []SocketEntry    `json:"socketEntries"`
	SocketCategories []SocketCategory `json:"socketCategories"`
}

type Crafting struct {
	OutputItemHash uint32 `json:"outputItemHash"`
}

// ItemDefinition mirrors the parts of DestinyInventoryItemDefinition the
// engine needs. Season and Confirmed are derived when the catalog is built.
type ItemDefinition struct {
	Hash                 uint32            `json:"hash"`
	DisplayProperties    DisplayProperties `json:"displayProperties"`
	ItemType             int               `json:"itemType"`
	Equippable           bool              `json:"equippable"`
	Sockets              *Sockets          `json:"sockets,omitempty"`
	LoreHash             uint32            `json:"loreHash,omitempty"`
	IconWatermark        string            `json:"iconWatermark,omitempty"`
	IconWatermarkShelved string            `json:"iconWatermarkShelved,omitempty"`
	CollectibleHash      uint32            `json:"collectibleHash,omitempty"`
	Crafting             *Crafting         `json:"crafting,omitempty"`

	Season    int  `json:"season,omitempty"`
	Confirmed bool `json:"confirmed"`
}

func (d *ItemDefinition) Name() string {
	return d.DisplayProperties.Name
}

func (d *ItemDefinition) IsWeapon() bool {
	return d.ItemType == ItemTypeWeapon
}

// SocketCategory returns the category with the given hash, if the item has one.
func (d *ItemDefinition) SocketCategory(hash uint32) (*SocketCategory, bool) {
	if d.Sockets == nil {
		return nil, false
	}
	for i := range d.Sockets.SocketCategories {
		if d.Sockets.SocketCategories[i].SocketCategoryHash == hash {
			return &d.Sockets.SocketCategories[i], true
		}
	}
	return nil, false
}

type PlugSetDefinition struct {
	Hash              uint32     `json:"hash"`
	ReusablePlugItems []PlugItem `json:"reusablePlugItems"`
}

type CollectibleDefinition struct {
	Hash       uint32 `json:"hash"`
	ItemHash   uint32 `json:"itemHash"`
	SourceHash uint32 `json:"sourceHash"`
}

// Catalog is an immutable snapshot. Pointers it returns must not be modified.
type Catalog struct {
	items        map[uint32]*ItemDefinition
	plugSets     map[uint32]*PlugSetDefinition
	collectibles map[uint32]*CollectibleDefinition
	weapons      []*ItemDefinition
	seasons      Seasons
}

// New indexes the given definitions, stamps every item with its resolved
// season and confirmed flag, and collects the equippable weapons in
// ascending hash order.
func New(items []ItemDefinition, plugSets []PlugSetDefinition, collectibles []CollectibleDefinition, seasons Seasons) *Catalog {
	c := &Catalog{
		items:        make(map[uint32]*ItemDefinition, len(items)),
		plugSets:     make(map[uint32]*PlugSetDefinition, len(plugSets)),
		collectibles: make(map[uint32]*CollectibleDefinition, len(collectibles)),
		seasons:      seasons,
	}

	for i := range plugSets {
		ps := plugSets[i]
		c.plugSets[ps.Hash] = &ps
	}

	confirmed := make(map[uint32]bool)
	for i := range collectibles {
		col := collectibles[i]
		c.collectibles[col.Hash] = &col
		if col.ItemHash != 0 {
			confirmed[col.ItemHash] = true
		}
	}
	for i := range items {
		if items[i].ItemType == ItemTypePattern && items[i].Crafting != nil && items[i].Crafting.OutputItemHash != 0 {
			confirmed[items[i].Crafting.OutputItemHash] = true
		}
	}

	for i := range items {
		def := items[i]
		def.Confirmed = confirmed[def.Hash]
		c.items[def.Hash] = &def
	}
	for _, def := range c.items {
		def.Season = c.resolveSeason(def)
		if def.IsWeapon() && def.Equippable {
			c.weapons = append(c.weapons, def)
		}
	}
	sort.Slice(c.weapons, func(i, j int) bool { return c.weapons[i].Hash < c.weapons[j].Hash })

	return c
}

func (c *Catalog) Item(hash uint32) (*ItemDefinition, bool) {
	def, ok := c.items[hash]
	return def, ok
}

// Weapons returns every equippable weapon definition in ascending hash order.
func (c *Catalog) Weapons() []*ItemDefinition {
	return c.weapons
}

func (c *Catalog) PlugSet(hash uint32) (*PlugSetDefinition, bool) {
	ps, ok := c.plugSets[hash]
	return ps, ok
}

func (c *Catalog) Collectible(hash uint32) (*CollectibleDefinition, bool) {
	col, ok := c.collectibles[hash]
	return col, ok
}

// Size reports how many item definitions were loaded.
func (c *Catalog) Size() int {
	return len(c.items)
}
