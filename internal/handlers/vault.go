package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"wishlistbuilder/internal/database"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/models"
	"wishlistbuilder/internal/vault"
)

type itemSummaryView struct {
	vault.ItemSummary
	Name      string `json:"name,omitempty"`
	Season    int    `json:"season"`
	Confirmed bool   `json:"confirmed"`
}

type itemsResponse struct {
	Wishlist       *models.Wishlist       `json:"wishlist"`
	Items          []itemSummaryView      `json:"items"`
	Builds         []vault.AnnotatedBuild `json:"builds"`
	VaultError     string                 `json:"vault_error,omitempty"`
	VaultUpdatedAt *time.Time             `json:"vault_updated_at,omitempty"`
}

func playerFromQuery(c *gin.Context) vault.Player {
	membershipType, _ := strconv.Atoi(c.Query("membership_type"))
	return vault.Player{MembershipType: membershipType, MembershipID: c.Query("membership_id")}
}

// handleItemView lists the wishlist's items with build counts, ownership
// against the player's vault and trash flags. Without a player every build
// is reported unowned; a failing vault fetch does the same and sets
// vault_error.
func (h *Handler) handleItemView(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
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

	resp := itemsResponse{Wishlist: w}

	var items []models.VaultItem
	if player := playerFromQuery(c); player.Valid() {
		data, err := h.Vault.Load(ctx, player, bearerToken(c), c.Query("refresh") == "true")
		if err != nil {
			logger.Warn("Vault unavailable for item view", "wishlist_id", id, "player", player.Key(), "error", err)
			resp.VaultError = err.Error()
		} else {
			items = data.Items
			resp.VaultUpdatedAt = &data.CreatedAt
		}
	}

	resp.Builds = vault.Annotate(list, items)
	summaries := vault.Summarize(resp.Builds)
	resp.Items = make([]itemSummaryView, 0, len(summaries))
	for _, s := range summaries {
		view := itemSummaryView{ItemSummary: s}
		if def, ok := h.Catalog.Item(s.ItemHash); ok {
			view.Name = def.Name()
			view.Season = def.Season
			view.Confirmed = def.Confirmed
		}
		resp.Items = append(resp.Items, view)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleVaultRefresh(c *gin.Context) {
	var player vault.Player
	if err := bindJSON(c, &player); err != nil {
		respondError(c, err)
		return
	}
	data, err := h.Vault.Refresh(c.Request.Context(), player, bearerToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"player_id":  data.PlayerID,
		"weapons":    len(data.Items),
		"created_at": data.CreatedAt,
	})
}
