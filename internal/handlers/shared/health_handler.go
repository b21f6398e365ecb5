package shared

import (
	"context"
	"net/http"
	"time"

	"tripchat/internal/utils"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	checks   map[string]HealthCheck
	sessions func() int
	started  time.Time
}

func NewHealthHandler(checks map[string]HealthCheck, sessions func() int) *HealthHandler {
	return &HealthHandler{checks: checks, sessions: sessions, started: time.Now()}
}

type healthStatus struct {
	Status   string            `json:"status"`
	Version  string            `json:"version"`
	Uptime   string            `json:"uptime"`
	Sessions int               `json:"sessions"`
	Checks   map[string]string `json:"checks,omitempty"`
}

func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := &healthStatus{
		Status:  "ok",
		Version: utils.AppVersion,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Checks:  make(map[string]string, len(h.checks)),
	}
	if h.sessions != nil {
		status.Sessions = h.sessions()
	}

	code := http.StatusOK
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}

	envelope := utils.StatusSuccess
	if code != http.StatusOK {
		envelope = utils.StatusError
	}
	c.JSON(code, utils.APIResponse{
		Status:    envelope,
		Data:      status,
		Timestamp: time.Now(),
	})
}
