// Package httpapi wires the HTTP transport (Gin) to the webhook dispatcher,
// payment pipeline, and probe handlers. It centralizes cross-cutting concerns
// such as tracing, correlation IDs, logging, panic recovery, metrics, CORS,
// and rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/juicyfox/juicybot/internal/config"
	"github.com/juicyfox/juicybot/internal/http/handlers"
	"github.com/juicyfox/juicybot/internal/http/middleware"
)

// RegisterRoutes attaches all middleware and endpoints to the given Gin
// engine.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per client IP)
//  8. CORS, gzip
func RegisterRoutes(r *gin.Engine, cfg config.Config, h *handlers.Handler, health *handlers.Health) {
	r.HandleMethodNotAllowed = true

	if cfg.OTEL.Enabled {
		r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	}
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())

	// Telegram updates are small; 1 MiB bounds hostile bodies.
	r.Use(limitBody(1 << 20))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Webhook ingress registers before the rate limiter: Telegram and the
	// payment provider retry on any non-2xx, so throttling them would only
	// amplify traffic. Dedup below HTTP keeps replays harmless.
	r.POST("/webhook", h.TelegramWebhook)
	r.POST("/payments/cryptobot", h.CryptoWebhook)

	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByIP())
	r.Use(rl.Handler())

	// Only the probe endpoints are browser-reachable, so a permissive CORS
	// posture is fine here.
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"X-Request-ID", "Content-Length"},
		MaxAge:          12 * time.Hour,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "message": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": "method_not_allowed", "message": "method not allowed"})
	})

	// Probes
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	r.GET("/livez", health.Livez)
}

// limitBody caps the request body size for all endpoints using
// http.MaxBytesReader. Requests exceeding the cap error on body read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
