package observability

import "github.com/kbukum/rediskit/component"

// ServiceHealth is the body of the service health endpoint.
type ServiceHealth struct {
	Service    string                 `json:"service"`
	Status     component.HealthStatus `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Components []component.Health     `json:"components,omitempty"`
}

// NewServiceHealth creates a healthy ServiceHealth with no components.
func NewServiceHealth(service, version string) *ServiceHealth {
	return &ServiceHealth{
		Service: service,
		Status:  component.StatusHealthy,
		Version: version,
	}
}

// AddComponent records a component result. An unhealthy component makes the
// service unhealthy; a degraded one degrades it unless it is already
// unhealthy.
func (sh *ServiceHealth) AddComponent(h component.Health) {
	sh.Components = append(sh.Components, h)

	switch h.Status {
	case component.StatusUnhealthy:
		sh.Status = component.StatusUnhealthy
	case component.StatusDegraded:
		if sh.Status != component.StatusUnhealthy {
			sh.Status = component.StatusDegraded
		}
	}
}

// Healthy reports whether the service status is healthy.
func (sh *ServiceHealth) Healthy() bool {
	return sh.Status == component.StatusHealthy
}
