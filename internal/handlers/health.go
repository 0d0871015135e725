package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const readinessTimeout = 3 * time.Second

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AllowlistProbe reports whether the allowlist file can be read.
type AllowlistProbe interface {
	Load(ctx context.Context) ([]string, error)
}

// HealthHandler serves liveness and readiness checks.
type HealthHandler struct {
	db        Pinger
	allowlist AllowlistProbe
}

// NewHealthHandler constructs a HealthHandler. Nil dependencies are reported as skipped.
func NewHealthHandler(db Pinger, allowlist AllowlistProbe) *HealthHandler {
	return &HealthHandler{db: db, allowlist: allowlist}
}

// Live returns a simple status payload.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"status":     "up",
		"checked_at": time.Now().UTC(),
	})
}

// Ready checks the record store and the allowlist file.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(requestContext(c), readinessTimeout)
	defer cancel()

	checks := gin.H{}
	ok := true

	checks["database"] = "skipped"
	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = "down"
			ok = false
		} else {
			checks["database"] = "up"
		}
	}

	checks["allowlist"] = "skipped"
	if h.allowlist != nil {
		if _, err := h.allowlist.Load(ctx); err != nil {
			checks["allowlist"] = "down"
			ok = false
		} else {
			checks["allowlist"] = "up"
		}
	}

	status, label := http.StatusOK, "up"
	if !ok {
		status, label = http.StatusServiceUnavailable, "down"
	}

	c.JSON(status, gin.H{
		"success":    ok,
		"status":     label,
		"checks":     checks,
		"checked_at": time.Now().UTC(),
	})
}
