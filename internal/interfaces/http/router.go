// Package http assembles the gin router for the token trust core.
package http

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veridia/tokencore/internal/config"
	"github.com/veridia/tokencore/internal/interfaces/http/handlers"
	"github.com/veridia/tokencore/pkg/logger"
)

// RouterDeps carries the wired handlers. Maintenance is optional.
type RouterDeps struct {
	Tokens      *handlers.TokenHandler
	Keys        *handlers.KeysHandler
	Health      *handlers.HealthHandler
	Maintenance *handlers.MaintenanceHandler
	Log         logger.Logger
}

// NewRouter builds the HTTP surface: token operations under /v1, the JWKS
// document, health probes, Prometheus metrics, and optionally pprof.
func NewRouter(cfg config.ServerConfig, deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), handlers.RequestID(), handlers.AccessLog(deps.Log))
	router.Use(cors.Default())

	router.GET("/healthz", deps.Health.Live)
	router.GET("/readyz", deps.Health.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/.well-known/jwks.json", handlers.ETag(), deps.Keys.JWKS)

	v1 := router.Group("/v1")
	{
		v1.POST("/tokens", deps.Tokens.Issue)
		v1.POST("/tokens/verify", deps.Tokens.Verify)
		v1.POST("/tokens/revoke", deps.Tokens.Revoke)
		v1.DELETE("/tokens/:jti", deps.Tokens.RevokeByJTI)
		v1.DELETE("/subjects/:subject/tokens", deps.Tokens.RevokeSubject)

		v1.GET("/keys", deps.Keys.List)
		v1.POST("/keys/rotate", deps.Keys.Rotate)

		if deps.Maintenance != nil {
			v1.POST("/maintenance/cleanup", deps.Maintenance.Cleanup)
		}
	}

	if cfg.EnablePprof {
		pprof.Register(router)
	}
	return router
}
