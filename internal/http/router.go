// Package httpapi wires the HTTP transport (Gin) to the sync and pairing
// services, middleware and route handlers. It owns the middleware order and
// the route table.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/instalist/instalist-server/docs"
	"github.com/instalist/instalist-server/internal/auth"
	"github.com/instalist/instalist-server/internal/config"
	"github.com/instalist/instalist-server/internal/http/handlers"
	"github.com/instalist/instalist-server/internal/http/middleware"
	"github.com/instalist/instalist-server/internal/observability"
	"github.com/instalist/instalist-server/internal/repo"
	"github.com/instalist/instalist-server/internal/services"
)

const defaultMaxBodyBytes = 1 << 20

var (
	corsMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsHeaders = []string{
		"Origin", "Content-Type", "Accept", "Accept-Encoding", "Authorization",
		"If-None-Match", middleware.HeaderIdempotencyKey,
	}
	exposed = []string{"ETag", handlers.HeaderIdempotencyReplayed}
)

// RegisterRoutes attaches all middleware and endpoints to r.
//
// Middleware order:
//  1. OpenTelemetry
//  2. RequestID
//  3. access Logger
//  4. Recovery
//  5. body size limit
//  6. Metrics
//  7. gzip (optional)
//  8. BearerAuth, which only annotates the context
//  9. Idempotency validator, whose lookup the create handler reuses
//  10. rate limiter keyed by device or IP; replays are charged too
//  11. CORS and security headers
//
// Group-scoped routes additionally require a token bound to the path group.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, tokens *auth.TokenService, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	r.Use(limitBody(maxBody))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if cfg.GzipEnabled {
		r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics"})))
	}

	r.Use(middleware.BearerAuth(tokens))

	keys := repo.IdempotencyKeys{DB: db, TTL: cfg.IdempotencyTTL}
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: middleware.DefaultIdempotencyKeyMaxLen},
		func(ctx context.Context, groupID, deviceID uint64, key string, now time.Time) (bool, error) {
			return keys.Exists(ctx, groupID, deviceID, key, now)
		},
	))

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByDeviceOrIP())
	r.Use(rl.Handler())

	r.Use(cors.New(corsConfig(cfg.CORS)))
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:    cfg.Security.EnableHSTS,
		HSTSMaxAge:    cfg.Security.HSTSMaxAge,
		NoStore:       true,
		EnablePolicy:  true,
		ExposeHeaders: exposed,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	syncSvc := services.NewSyncService(db, repo.Store{})
	syncSvc.Observe = observability.RecordSyncOp

	pairSvc := services.NewPairingService(db, repo.Store{}, auth.NewBcryptHasher(cfg.Auth.BcryptCost))
	if n := cfg.Auth.PairingCodeAttempts; n > 0 {
		pairSvc.MaxAttempts = n
	}

	h := handlers.New(syncSvc, pairSvc, tokens, handlers.Options{
		Idempotency:    keys,
		Stats:          repo.ChangeStatsReader{DB: db},
		ObservePairing: observability.RecordPairing,
	})

	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/groups", h.CreateGroup)
		api.POST("/groups/:groupid/devices", h.RegisterDevice)
		api.GET("/token", h.IssueToken)

		group := api.Group("/groups/:groupid", middleware.RequireGroup("groupid"))
		group.GET("/devices", h.ListDevices)
		h.RegisterKinds(group)
	}
}

// corsConfig allows any origin when no allowlist is configured. Credentials
// stay off in both modes; bearer tokens travel in the Authorization header.
func corsConfig(c config.CORSConfig) cors.Config {
	cc := cors.Config{
		AllowMethods:  corsMethods,
		AllowHeaders:  corsHeaders,
		ExposeHeaders: append([]string{"X-Request-ID", "Content-Length"}, exposed...),
		MaxAge:        12 * time.Hour,
	}
	if len(c.AllowedOrigins) == 0 {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.AllowedOrigins
	}
	return cc
}

// limitBody caps request bodies at maxBytes. Reads past the cap fail with
// *http.MaxBytesError, which handlers turn into 413.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
