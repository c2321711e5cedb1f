package resdex

import (
	"context"
	"errors"
	"time"

	healthuc "github.com/kailas-cloud/resdex/internal/usecase/health"
)

var errUnhealthy = errors.New("resdex: unhealthy")

// HealthStatus is the aggregated result of the database and file root probes.
type HealthStatus struct {
	Status string            // "ok", "degraded" or "error"
	Checks map[string]string // component name to "ok" or "error"
}

// OK reports whether every component answered.
func (h HealthStatus) OK() bool { return h.Status == string(healthuc.Healthy) }

// Health checks the database and both file roots.
func (c *Client) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	report := c.health.Check(ctx)

	h := HealthStatus{
		Status: string(report.Status),
		Checks: make(map[string]string, len(report.Checks)),
	}
	for name, res := range report.Checks {
		h.Checks[name] = string(res)
	}

	var err error
	if !h.OK() {
		err = errUnhealthy
	}
	c.obs.observe("health", start, err, "status", h.Status)
	return h
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
