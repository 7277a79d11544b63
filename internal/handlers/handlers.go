package handlers

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"wishlistbuilder/internal/apperr"
	"wishlistbuilder/internal/builds"
	"wishlistbuilder/internal/catalog"
	"wishlistbuilder/internal/config"
	"wishlistbuilder/internal/events"
	"wishlistbuilder/internal/github"
	"wishlistbuilder/internal/logger"
	"wishlistbuilder/internal/middleware"
	"wishlistbuilder/internal/vault"
)

// Handler holds everything the HTTP API reads from or writes to. Syncer may
// be nil, in which case the GitHub routes answer 503.
type Handler struct {
	DB      *sql.DB
	Catalog *catalog.Catalog
	Engine  *builds.Engine
	Vault   *vault.Cache
	Syncer  *github.Syncer
	Bus     *events.Bus
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, h *Handler) {
	blocker := middleware.NewBlocker(cfg)

	r.Use(middleware.LogRequests())
	r.Use(middleware.SecurityHeaders(cfg))
	r.Use(blocker.IPBlocker())
	r.Use(blocker.Track404AndBlock())

	r.GET("/healthz", h.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.RateLimit(cfg))
	{
		api.GET("/stats", h.handleStats)
		api.GET("/events", h.handleEvents)

		api.GET("/wishlists", h.handleListWishlists)
		api.POST("/wishlists", h.handleCreateWishlist)
		api.GET("/wishlists/:id", h.handleGetWishlist)
		api.PUT("/wishlists/:id", h.handleUpdateWishlist)
		api.DELETE("/wishlists/:id", h.handleDeleteWishlist)

		api.GET("/wishlists/:id/builds", h.handleListBuilds)
		api.DELETE("/wishlists/:id/builds", h.handleClearBuilds)
		api.POST("/builds", h.handleCreateBuild)
		api.GET("/builds/:id", h.handleGetBuild)
		api.PUT("/builds/:id", h.handleUpdateBuild)
		api.DELETE("/builds/:id", h.handleDeleteBuild)

		// The vault behind the item view is cached and debounced, so page
		// loads only see the general limit.
		api.GET("/wishlists/:id/items", h.handleItemView)
		api.GET("/items/:hash", h.handleGetItem)
		api.GET("/items/:hash/alternates", h.handleAlternates)

		api.POST("/import", h.handleImport)
		api.GET("/wishlists/:id/export", h.handleExport)
		api.POST("/export/package", h.handleExportPackage)

		upstream := api.Group("/")
		upstream.Use(middleware.UpstreamRateLimit(cfg))
		{
			upstream.POST("/vault/refresh", h.handleVaultRefresh)

			upstream.POST("/github/link", h.handleGitHubLink)
			upstream.POST("/wishlists/:id/github/sync", h.handleGitHubSync)
			upstream.POST("/wishlists/:id/github/save", h.handleGitHubSave)
		}
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
}

func (h *Handler) handleHealth(c *gin.Context) {
	if err := h.DB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "catalog_items": h.Catalog.Size()})
}

// respondError maps the apperr sentinels to HTTP statuses. Anything else is
// logged and reported as a 500 without details.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var status int
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, apperr.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, apperr.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, apperr.ErrUpstream):
		status = http.StatusBadGateway
	default:
		logger.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", apperr.ErrInvalidInput, name, c.Param(name))
	}
	return id, nil
}

func parseHash(s string) (uint32, error) {
	hash, err := strconv.ParseUint(s, 10, 32)
	if err != nil || hash == 0 {
		return 0, fmt.Errorf("%w: invalid item hash %q", apperr.ErrInvalidInput, s)
	}
	return uint32(hash), nil
}

func bearerToken(c *gin.Context) string {
	auth := c.GetHeader("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidInput, err)
	}
	return nil
}
