package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/database"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/models"
)

type wishlistRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UniqueID    string `json:"unique_id"`
}

func (r *wishlistRequest) validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Description = strings.TrimSpace(r.Description)
	if r.Name == "" {
		return fmt.Errorf("%w: wishlist name is required", apperr.ErrInvalidInput)
	}
	if len(r.Name) > 200 {
		return fmt.Errorf("%w: wishlist name must be less than 200 characters", apperr.ErrInvalidInput)
	}
	return nil
}

func (h *Handler) handleListWishlists(c *gin.Context) {
	wishlists, err := database.GetWishlists(c.Request.Context(), h.DB)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"wishlists": wishlists})
}

func (h *Handler) handleCreateWishlist(c *gin.Context) {
	var req wishlistRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, err)
		return
	}

	w, err := database.CreateWishlist(c.Request.Context(), h.DB, models.Wishlist{
		UniqueID:    req.UniqueID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	h.Bus.Publish(events.Event{Kind: events.WishlistsChanged, WishlistID: w.ID})
	logger.Info("Wishlist created", "wishlist_id", w.ID)
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) handleGetWishlist(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	w, err := database.GetWishlist(c.Request.Context(), h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *Handler) handleUpdateWishlist(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req wishlistRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	if err := req.validate(); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	current, err := database.GetWishlist(ctx, h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	current.Name = req.Name
	current.Description = req.Description

	updated, err := database.UpdateWishlist(ctx, h.DB, *current)
	if err != nil {
		respondError(c, err)
		return
	}

	h.Bus.Publish(events.Event{Kind: events.WishlistsChanged, WishlistID: id})
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) handleDeleteWishlist(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	if err := database.DeleteWishlist(c.Request.Context(), h.DB, id); err != nil {
		respondError(c, err)
		return
	}

	h.Bus.Publish(events.Event{Kind: events.WishlistsChanged, WishlistID: id})
	logger.Info("Wishlist deleted", "wishlist_id", id)
	c.Status(http.StatusNoContent)
}

func (h *Handler) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	stats, err := database.GetStats(ctx, h.DB)
	if err != nil {
		respondError(c, err)
		return
	}
	recent, err := database.GetRecentWishlists(ctx, h.DB, 10)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":         stats,
		"recent":        recent,
		"catalog_items": h.Catalog.Size(),
		"subscribers":   h.Bus.Subscribers(),
	})
}
