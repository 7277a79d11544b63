// Package littlelight converts wishlists to and from the Little Light
// wishlist JSON format.
package littlelight

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/models"
)

type Build struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Hash        uint32     `json:"hash"`
	Plugs       [][]uint32 `json:"plugs"`
	Tags        []string   `json:"tags"`
	UniqueID    string     `json:"uniqueId,omitempty"`
}

type Wishlist struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Data        []Build `json:"data"`
	LinkedRepo  string  `json:"linkedRepo,omitempty"`
	SHA         string  `json:"sha,omitempty"`
	UniqueID    string  `json:"uniqueId,omitempty"`
}

type ExportOptions struct {
	OmitDescriptions bool `json:"omit_descriptions" form:"omit_descriptions"`
	PrettyPrint      bool `json:"pretty_print" form:"pretty_print"`
}

var importTagMap = map[string]models.Tag{
	"pve":        models.TagPvE,
	"godpve":     models.TagGodPvE,
	"pvp":        models.TagPvP,
	"godpvp":     models.TagGodPvP,
	"mnk":        models.TagMouse,
	"mouse":      models.TagMouse,
	"controller": models.TagController,
	"bungie":     models.TagCurated,
	"trash":      models.TagTrash,
}

var exportTagMap = map[models.Tag]string{
	models.TagGodPvE:     "GodPVE",
	models.TagGodPvP:     "GodPVP",
	models.TagPvE:        "PVE",
	models.TagPvP:        "PVP",
	models.TagCurated:    "Bungie",
	models.TagTrash:      "Trash",
	models.TagMouse:      "Mouse",
	models.TagController: "Controller",
}

// ImportTags maps Little Light tag names case-insensitively. Unknown names
// are dropped.
func ImportTags(tags []string) models.TagSet {
	set := models.NewTagSet()
	for _, t := range tags {
		if tag, ok := importTagMap[strings.ToLower(strings.TrimSpace(t))]; ok {
			set.Add(tag)
		}
	}
	return set
}

func ExportTags(tags models.TagSet) []string {
	out := []string{}
	for _, t := range tags.Sorted() {
		if name, ok := exportTagMap[t]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Decode reads a Little Light document.
func Decode(r io.Reader) (*Wishlist, error) {
	var doc Wishlist
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: malformed wishlist file: %v", apperr.ErrInvalidInput, err)
	}
	return &doc, nil
}

// ToModels converts a decoded document. A build that lists plugs without an
// item hash makes the whole document invalid.
func (doc *Wishlist) ToModels() (models.Wishlist, []models.Build, error) {
	w := models.Wishlist{
		UniqueID:    doc.UniqueID,
		Name:        doc.Name,
		Description: doc.Description,
		LinkedRepo:  doc.LinkedRepo,
		SHA:         doc.SHA,
	}

	builds := make([]models.Build, 0, len(doc.Data))
	for i, b := range doc.Data {
		// Builds without an item hash are kept as long as they pin no perks.
		if b.Hash == 0 && hasPlugs(b.Plugs) {
			return w, nil, fmt.Errorf("%w: build %d (%q) has perks but no item hash", apperr.ErrInvalidInput, i, b.Name)
		}
		builds = append(builds, models.Build{
			UniqueID:    b.UniqueID,
			ItemHash:    b.Hash,
			Name:        b.Name,
			Description: b.Description,
			Tags:        ImportTags(b.Tags),
			Plugs:       b.Plugs,
		})
	}
	return w, builds, nil
}

func exportBuild(b models.Build, opts ExportOptions, withID bool) Build {
	out := Build{
		Name:  b.Name,
		Hash:  b.ItemHash,
		Plugs: [][]uint32{},
		Tags:  ExportTags(b.Tags),
	}
	if !opts.OmitDescriptions {
		out.Description = b.Description
	}
	for _, slot := range b.Plugs {
		if len(slot) > 0 {
			out.Plugs = append(out.Plugs, slot)
		}
	}
	if withID {
		out.UniqueID = b.UniqueID
	}
	return out
}

// FromModels builds the exported document for one wishlist. Empty slots are
// dropped; repository link fields are not exported.
func FromModels(w models.Wishlist, builds []models.Build, opts ExportOptions) *Wishlist {
	doc := &Wishlist{
		Name:        w.Name,
		Description: w.Description,
		Data:        make([]Build, 0, len(builds)),
		UniqueID:    w.UniqueID,
	}
	for _, b := range builds {
		doc.Data = append(doc.Data, exportBuild(b, opts, true))
	}
	return doc
}

// Package merges the builds of several wishlists into one document. Unique
// IDs are left out since the builds no longer belong to their source lists.
func Package(name, description string, builds [][]models.Build, opts ExportOptions) *Wishlist {
	doc := &Wishlist{Name: name, Description: description, Data: []Build{}}
	for _, list := range builds {
		for _, b := range list {
			doc.Data = append(doc.Data, exportBuild(b, opts, false))
		}
	}
	return doc
}

// Encode renders doc, indented by four spaces when pretty printing.
func Encode(doc *Wishlist, opts ExportOptions) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if opts.PrettyPrint {
		enc.SetIndent("", "    ")
	}
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode wishlist: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func hasPlugs(plugs [][]uint32) bool {
	for _, slot := range plugs {
		if len(slot) > 0 {
			return true
		}
	}
	return false
}
