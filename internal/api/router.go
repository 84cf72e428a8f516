package api

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"wallet-pass-backend/config"
	"wallet-pass-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router, mounting the protocol
// once per enabled artifact family under /api/{passes|orders}/v1.
func NewRouter(cfg *config.ServerConfig, handlers ...*Handler) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)
	operatorAuth := mw.OperatorAuth(cfg.OperatorToken)

	for _, h := range handlers {
		group := r.Group("/api/" + h.family.PathComponent + "/v1")
		group.Use(rateLimiter)
		{
			group.GET("/devices/:deviceLibraryIdentifier/registrations/:typeIdentifier", h.ListRegistrations)
			group.POST("/devices/:deviceLibraryIdentifier/registrations/:typeIdentifier/:serialNumber", h.RegisterDevice)
			group.DELETE("/devices/:deviceLibraryIdentifier/registrations/:typeIdentifier/:serialNumber", h.UnregisterDevice)
			group.GET("/"+h.family.PathComponent+"/:typeIdentifier/:serialNumber", h.GetArtifact)
			group.POST("/log", h.SubmitLogs)

			privileged := group.Group("/push", operatorAuth)
			privileged.POST("/:typeIdentifier/:serialNumber", h.TriggerPush)
			privileged.GET("/:typeIdentifier/:serialNumber", h.ListPushTokens)
		}
	}

	return r
}
