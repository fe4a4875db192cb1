// Package handler provides HTTP handlers for the nighttune API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/nighttune/nighttune/internal/api/models"
	"github.com/nighttune/nighttune/internal/api/response"
)

// ReadinessProbe checks one dependency for the readiness endpoint.
type ReadinessProbe struct {
	Name  string
	Check func(ctx context.Context) error
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	probes    []ReadinessProbe
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(version, buildTime string, probes ...ReadinessProbe) *OpsHandler {
	return &OpsHandler{
		version:   version,
		buildTime: buildTime,
		probes:    probes,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Any failing
// probe degrades the overall status and flips the response to 503.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	readiness := models.Readiness{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	status := http.StatusOK
	for _, probe := range h.probes {
		check := models.ReadinessCheck{Name: probe.Name, Status: models.HealthStatusOK}
		if err := probe.Check(r.Context()); err != nil {
			detail := err.Error()
			check.Status = models.HealthStatusFail
			check.Detail = &detail
			readiness.Status = models.HealthStatusFail
			status = http.StatusServiceUnavailable
		}
		readiness.Checks = append(readiness.Checks, check)
	}

	response.JSON(w, r, status, readiness)
}
