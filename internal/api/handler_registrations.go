package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type registerDeviceRequest struct {
	PushToken string `json:"pushToken" binding:"required"`
}

// RegisterDevice handles
// POST /devices/:deviceLibraryIdentifier/registrations/:typeIdentifier/:serialNumber.
// Registration is idempotent: a repeated call from the same device answers 200
// instead of 201 and leaves a single registration row.
func (h *Handler) RegisterDevice(c *gin.Context) {
	var req registerDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	artifact := h.authorizedArtifact(c)
	if artifact == nil {
		return
	}

	device, err := h.store.FindOrCreateDevice(c.Request.Context(), c.Param("deviceLibraryIdentifier"), req.PushToken)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	created, err := h.store.CreateRegistrationIfAbsent(c.Request.Context(), device.ID, artifact.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if created {
		c.Status(http.StatusCreated)
		return
	}
	c.Status(http.StatusOK)
}

// UnregisterDevice handles
// DELETE /devices/:deviceLibraryIdentifier/registrations/:typeIdentifier/:serialNumber.
func (h *Handler) UnregisterDevice(c *gin.Context) {
	if h.authorizedArtifact(c) == nil {
		return
	}

	registration, err := h.store.FindRegistration(c.Request.Context(),
		h.family.Name, c.Param("deviceLibraryIdentifier"), c.Param("typeIdentifier"), c.Param("serialNumber"))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "registration not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.DeleteRegistration(c.Request.Context(), registration.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// ListRegistrations handles
// GET /devices/:deviceLibraryIdentifier/registrations/:typeIdentifier.
// An empty result set answers 204 with no body; the protocol distinguishes
// "nothing to report" from an empty list.
func (h *Handler) ListRegistrations(c *gin.Context) {
	var updatedSince time.Time
	if raw := c.Query(h.family.UpdatedSinceParam); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			updatedSince = time.Unix(secs, 0)
		}
	}

	registrations, err := h.store.RegistrationsForDevice(c.Request.Context(),
		h.family.Name, c.Param("deviceLibraryIdentifier"), c.Param("typeIdentifier"), updatedSince)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(registrations) == 0 {
		c.Status(http.StatusNoContent)
		return
	}

	serialNumbers := make([]string, 0, len(registrations))
	var lastUpdated time.Time
	for _, registration := range registrations {
		serialNumbers = append(serialNumbers, registration.Artifact.ID)
		if registration.Artifact.UpdatedAt.After(lastUpdated) {
			lastUpdated = registration.Artifact.UpdatedAt
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"lastUpdated":   strconv.FormatInt(lastUpdated.Unix(), 10),
		"serialNumbers": serialNumbers,
	})
}
