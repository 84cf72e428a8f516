package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// TriggerPush handles POST /push/:typeIdentifier/:serialNumber: re-sends
// update notifications to every registered device for the artifact.
func (h *Handler) TriggerPush(c *gin.Context) {
	artifact := h.lookupArtifact(c)
	if artifact == nil {
		return
	}

	if err := h.dispatcher.SendUpdates(c.Request.Context(), artifact); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListPushTokens handles GET /push/:typeIdentifier/:serialNumber: returns the
// push tokens of all devices currently registered for the artifact.
func (h *Handler) ListPushTokens(c *gin.Context) {
	artifact := h.lookupArtifact(c)
	if artifact == nil {
		return
	}

	tokens, err := h.dispatcher.PushTokens(c.Request.Context(), artifact.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pushTokens": tokens})
}
