package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const githubTokenHeader = "X-GitHub-Token"

type linkRequest struct {
	Repo string `json:"repo" binding:"required"`
}

func (h *Handler) githubEnabled(c *gin.Context) bool {
	if h.Syncer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "GitHub integration is disabled"})
		return false
	}
	return true
}

func (h *Handler) handleGitHubLink(c *gin.Context) {
	if !h.githubEnabled(c) {
		return
	}
	var req linkRequest
	if err := bindJSON(c, &req); err != nil {
		respondError(c, err)
		return
	}
	w, err := h.Syncer.Link(c.Request.Context(), req.Repo, c.GetHeader(githubTokenHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *Handler) handleGitHubSync(c *gin.Context) {
	if !h.githubEnabled(c) {
		return
	}
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	changed, err := h.Syncer.Sync(c.Request.Context(), id, c.GetHeader(githubTokenHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (h *Handler) handleGitHubSave(c *gin.Context) {
	if !h.githubEnabled(c) {
		return
	}
	id, err := paramID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	sha, err := h.Syncer.Save(c.Request.Context(), id, c.GetHeader(githubTokenHeader))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sha": sha})
}
