package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/database"
	"wishlistbuilder/internal/models"
	"wishlistbuilder/internal/weapons"
)

type buildRequest struct {
	WishlistID  int64         `json:"wishlist_id"`
	ItemHash    uint32        `json:"item_hash"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Tags        models.TagSet `json:"tags"`
	Plugs       [][]uint32    `json:"plugs"`
}

func (r *buildRequest) apply(b *models.Build) {
	b.Name = strings.TrimSpace(r.Name)
	b.Description = strings.TrimSpace(r.Description)
	b.Tags = r.Tags
	if b.Tags == nil {
		b.Tags = models.NewTagSet()
	}
	b.Plugs = r.Plugs
}

// itemView is the catalog metadata the UI shows next to an item hash.
type itemView struct {
	Hash      uint32 `json:"hash"`
	Name      string `json:"name"`
	Season    int    `json:"season"`
	Confirmed bool   `json:"confirmed"`
}

func newItemView(def *catalog.ItemDefinition) itemView {
	return itemView{Hash: def.Hash, Name: def.Name(), Season: def.Season, Confirmed: def.Confirmed}
}

func (h *Handler) handleListBuilds(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := database.GetWishlist(ctx, h.DB, id); err != nil {
		respondError(c, err)
		return
	}

	var list []models.Build
	if raw := c.Query("item_hash"); raw != "" {
		hash, err := parseHash(raw)
		if err != nil {
			respondError(c, err)
			return
		}
		list, err = database.GetBuildsByItem(ctx, h.DB, id, hash)
		if err != nil {
			respondError(c, err)
			return
		}
	} else {
		list, err = database.GetBuildsByWishlist(ctx, h.DB, id)
		if err != nil {
			respondError(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"builds": list})
}

func (h *Handler) handleGetBuild(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	b, err := database.GetBuild(c.Request.Context(), h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *Handler) handleCreateBuild(c *gin.Context) {
	var req buildRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if _, ok := h.Catalog.Item(req.ItemHash); !ok {
		respondError(c, fmt.Errorf("%w: unknown item %d", apperr.ErrInvalidInput, req.ItemHash))
		return
	}
	ctx := c.Request.Context()
	if _, err := database.GetWishlist(ctx, h.DB, req.WishlistID); err != nil {
		respondError(c, err)
		return
	}

	b := models.Build{WishlistID: req.WishlistID, ItemHash: req.ItemHash}
	req.apply(&b)

	result, err := h.Engine.Save(ctx, b)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// handleUpdateBuild edits name, description, tags and plugs. The item and
// wishlist of a build never change.
func (h *Handler) handleUpdateBuild(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req buildRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	current, err := database.GetBuild(ctx, h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	updated := current.Clone()
	req.apply(&updated)

	result, err := h.Engine.Save(ctx, updated)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleDeleteBuild(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if _, err := h.Engine.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleClearBuilds(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := database.GetWishlist(ctx, h.DB, id); err != nil {
		respondError(c, err)
		return
	}
	n, err := h.Engine.Clear(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *Handler) lookupItem(c *gin.Context) (*catalog.ItemDefinition, bool) {
	hash, err := parseHash(c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	def, ok := h.Catalog.Item(hash)
	if !ok {
		respondError(c, fmt.Errorf("item %d: %w", hash, apperr.ErrNotFound))
		return nil, false
	}
	return def, true
}

func (h *Handler) handleGetItem(c *gin.Context) {
	def, ok := h.lookupItem(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, def)
}

func (h *Handler) handleAlternates(c *gin.Context) {
	def, ok := h.lookupItem(c)
	if !ok {
		return
	}
	alts := weapons.Alternates(h.Catalog, def.Hash)
	out := make([]itemView, 0, len(alts))
	for _, alt := range alts {
		out = append(out, newItemView(alt))
	}
	c.JSON(http.StatusOK, gin.H{"item": newItemView(def), "alternates": out})
}
