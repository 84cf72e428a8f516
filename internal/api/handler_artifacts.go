package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GetArtifact handles GET /{passes|orders}/:typeIdentifier/:serialNumber.
// The If-Modified-Since header carries epoch seconds; an absent or
// unparseable value defaults to zero so the client gets the full bundle.
func (h *Handler) GetArtifact(c *gin.Context) {
	artifact := h.authorizedArtifact(c)
	if artifact == nil {
		return
	}

	var modifiedSince int64
	if raw := c.GetHeader("If-Modified-Since"); raw != "" {
		modifiedSince, _ = strconv.ParseInt(raw, 10, 64)
	}
	if artifact.UpdatedAt.Unix() <= modifiedSince {
		c.Status(http.StatusNotModified)
		return
	}

	data, err := h.bundles.Build(c.Request.Context(), artifact)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Header("Last-Modified", strconv.FormatInt(artifact.UpdatedAt.Unix(), 10))
	c.Header("Content-Transfer-Encoding", "binary")
	c.Data(http.StatusOK, h.family.ContentType, data)
}
