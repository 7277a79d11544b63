package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const eventsKeepAlive = 30 * time.Second

// handleEvents streams change notifications as server-sent events until the
// client goes away.
func (h *Handler) handleEvents(c *gin.Context) {
	ch, cancel := h.Bus.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"subscribers": h.Bus.Subscribers()})
	c.Writer.Flush()

	ticker := time.NewTicker(eventsKeepAlive)
	defer ticker.Stop()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case evt, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(evt.Kind), evt)
			return true
		case <-ticker.C:
			c.SSEvent("ping", time.Now().UTC().Unix())
			return true
		case <-ctx.Done():
			return false
		}
	})
}
