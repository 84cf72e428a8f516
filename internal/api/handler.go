package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"wallet-pass-backend/internal/bundle"
	"wallet-pass-backend/internal/model"
	"wallet-pass-backend/internal/push"
	"wallet-pass-backend/internal/store"
)

// Handler serves the Wallet web-service protocol for one artifact family.
type Handler struct {
	store      store.Store
	bundles    *bundle.Service
	dispatcher *push.Dispatcher
	family     bundle.Family
}

// NewHandler creates the protocol handler for a family.
func NewHandler(s store.Store, bundles *bundle.Service, dispatcher *push.Dispatcher, family bundle.Family) *Handler {
	return &Handler{
		store:      s,
		bundles:    bundles,
		dispatcher: dispatcher,
		family:     family,
	}
}

// lookupArtifact resolves the artifact addressed by the route parameters,
// answering 404 itself when it does not exist. Returns nil after writing the
// response on failure.
func (h *Handler) lookupArtifact(c *gin.Context) *model.Artifact {
	artifact, err := h.store.FindArtifact(c.Request.Context(), h.family.Name, c.Param("typeIdentifier"), c.Param("serialNumber"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown " + h.family.Name})
		return nil
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil
	}
	return artifact
}

// authorizedArtifact additionally enforces the artifact-scoped bearer token
// (scheme ApplePass or AppleOrder) before any store mutation happens.
func (h *Handler) authorizedArtifact(c *gin.Context) *model.Artifact {
	artifact := h.lookupArtifact(c)
	if artifact == nil {
		return nil
	}
	if c.GetHeader("Authorization") != h.family.AuthScheme+" "+artifact.AuthenticationToken {
		c.AbortWithStatus(http.StatusUnauthorized)
		return nil
	}
	return artifact
}
