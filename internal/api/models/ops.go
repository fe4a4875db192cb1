package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// Readiness reports whether the service's dependencies are usable.
type Readiness struct {
	Status HealthStatus     `json:"status"`
	Time   Timestamp        `json:"time"`
	Checks []ReadinessCheck `json:"checks,omitempty"`
}

// ReadinessCheck is the state of a single dependency.
type ReadinessCheck struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}
