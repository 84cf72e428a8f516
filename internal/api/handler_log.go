package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type logRequest struct {
	Logs []string `json:"logs"`
}

// SubmitLogs handles POST /log: a batch of opaque client diagnostics. An
// empty or malformed batch is a client error and persists nothing.
func (h *Handler) SubmitLogs(c *gin.Context) {
	var req logRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Logs) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "log batch is empty or malformed"})
		return
	}

	if err := h.store.CreateErrorLogs(c.Request.Context(), req.Logs); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
