package gin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// SystemAdapter serves liveness and metrics endpoints.
type SystemAdapter struct {
	checks   []HealthCheck
	gatherer prometheus.Gatherer
	timeout  time.Duration
}

// NewSystemAdapter creates the health and metrics adapter. A nil gatherer
// disables /metrics.
func NewSystemAdapter(gatherer prometheus.Gatherer, checks ...HealthCheck) *SystemAdapter {
	return &SystemAdapter{
		checks:   checks,
		gatherer: gatherer,
		timeout:  2 * time.Second,
	}
}

// RegisterRoutes registers /health and /metrics.
func (a *SystemAdapter) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", a.Health)
	if a.gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}
}

// Health reports ok when every check passes.
func (a *SystemAdapter) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), a.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(gin.H, len(a.checks))
	for _, check := range a.checks {
		if err := check.Check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			results[check.Name] = err.Error()
			continue
		}
		results[check.Name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}
