// Health probe handlers.
package handlers

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

// Health reports process health for the probe endpoints. The Telegram flag
// flips once the startup getMe probe succeeds; readiness gates on it so a
// container with bad credentials never receives traffic.
type Health struct {
	botID       int64
	tgReady     atomic.Bool
	metaVersion string
}

// NewHealth builds probe state for the given bot identity.
func NewHealth(botID int64, version string) *Health {
	return &Health{botID: botID, metaVersion: version}
}

// SetTelegramReady marks the Telegram client as verified.
func (h *Health) SetTelegramReady(ok bool) { h.tgReady.Store(ok) }

// Healthz handles GET /healthz.
func (h *Health) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":               "ok",
		"version":              h.metaVersion,
		"bot_id":               h.botID,
		"telegram_initialized": h.tgReady.Load(),
	})
}

// Readyz handles GET /readyz. Not ready answers 503 so orchestrators hold
// traffic back.
func (h *Health) Readyz(c *gin.Context) {
	ready := h.tgReady.Load()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "bot_id": h.botID})
}

// Livez handles GET /livez.
func (h *Health) Livez(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"alive": true})
}
