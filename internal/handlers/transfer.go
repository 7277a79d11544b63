package handlers

import (
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/database"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/littlelight"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/models"
)

const maxImportBytes = 32 << 20

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func exportFilename(name string) string {
	slug := strings.Trim(unsafeFilename.ReplaceAllString(name, "-"), "-")
	if slug == "" {
		slug = "wishlist"
	}
	return slug + ".json"
}

func (h *Handler) handleImport(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxImportBytes)

	doc, err := littlelight.Decode(c.Request.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	w, list, err := doc.ToModels()
	if err != nil {
		respondError(c, err)
		return
	}
	if strings.TrimSpace(w.Name) == "" {
		respondError(c, fmt.Errorf("%w: wishlist name is required", apperr.ErrInvalidInput))
		return
	}

	created, err := database.ImportWishlist(c.Request.Context(), h.DB, w, list)
	if err != nil {
		respondError(c, err)
		return
	}

	h.Bus.Publish(events.Event{Kind: events.WishlistsChanged, WishlistID: created.ID})
	logger.Info("Wishlist imported", "wishlist_id", created.ID, "builds", len(list))
	c.JSON(http.StatusCreated, gin.H{"wishlist": created, "builds": len(list)})
}

func (h *Handler) handleExport(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var opts littlelight.ExportOptions
	if err := c.ShouldBindQuery(&opts); err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err))
		return
	}

	ctx := c.Request.Context()
	w, err := database.GetWishlist(ctx, h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}
	list, err := database.GetBuildsByWishlist(ctx, h.DB, id)
	if err != nil {
		respondError(c, err)
		return
	}

	data, err := littlelight.Encode(littlelight.FromModels(*w, list, opts), opts)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(w.Name)))
	c.Data(http.StatusOK, "application/json", data)
}

type packageRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	WishlistIDs []int64 `json:"wishlist_ids"`
	littlelight.ExportOptions
}

// handleExportPackage merges several wishlists into one downloadable file.
func (h *Handler) handleExportPackage(c *gin.Context) {
	var req packageRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.WishlistIDs) == 0 {
		respondError(c, fmt.Errorf("%w: package needs a name and at least one wishlist", apperr.ErrInvalidInput))
		return
	}

	ctx := c.Request.Context()
	lists := make([][]models.Build, 0, len(req.WishlistIDs))
	for _, id := range req.WishlistIDs {
		if _, err := database.GetWishlist(ctx, h.DB, id); err != nil {
			respondError(c, err)
			return
		}
		list, err := database.GetBuildsByWishlist(ctx, h.DB, id)
		if err != nil {
			respondError(c, err)
			return
		}
		lists = append(lists, list)
	}

	data, err := littlelight.Encode(littlelight.Package(req.Name, req.Description, lists, req.ExportOptions), req.ExportOptions)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exportFilename(req.Name)))
	c.Data(http.StatusOK, "application/json", data)
}
