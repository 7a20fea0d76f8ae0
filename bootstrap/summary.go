package bootstrap

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kbukum/rediskit/component"
)

// RouteInfo represents a registered HTTP route.
type RouteInfo struct {
	Method string
	Path   string
}

// Summary collects what the application started and renders it once startup
// completes.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	routes          []RouteInfo
}

// NewSummary creates a new startup summary.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackRoute records an HTTP route.
func (s *Summary) TrackRoute(method, path string) {
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path})
}

// Render writes the summary: one line per Describable component, the
// tracked routes and a live health check of every registered component.
func (s *Summary) Render(ctx context.Context, w io.Writer, registry *component.Registry) {
	fmt.Fprintf(w, "\n%s v%s started in %.2fs\n", s.serviceName, s.version, s.startupDuration.Seconds())

	var infra []component.Description
	if registry != nil {
		for _, c := range registry.All() {
			d, ok := c.(component.Describable)
			if !ok {
				continue
			}
			desc := d.Describe()
			if desc.Name == "" {
				desc.Name = c.Name()
			}
			infra = append(infra, desc)
		}
	}

	if len(infra) > 0 {
		fmt.Fprintf(w, "\nInfrastructure\n")
		for i, d := range infra {
			details := d.Details
			if d.Port > 0 {
				details = fmt.Sprintf("%s (:%d)", details, d.Port)
			}
			fmt.Fprintf(w, "   %s [%s] %s: %s\n", branch(i, len(infra)), d.Type, d.Name, details)
		}
	}

	if len(s.routes) > 0 {
		fmt.Fprintf(w, "\nRoutes (%d)\n", len(s.routes))
		for i, r := range s.routes {
			fmt.Fprintf(w, "   %s %-7s %s\n", branch(i, len(s.routes)), r.Method, r.Path)
		}
	}

	if registry != nil {
		results := registry.HealthAll(ctx)
		if len(results) > 0 {
			fmt.Fprintf(w, "\nHealth\n")
			for i, h := range results {
				msg := ""
				if h.Message != "" {
					msg = ": " + h.Message
				}
				fmt.Fprintf(w, "   %s %s %s%s\n", branch(i, len(results)), h.Name, strings.ToLower(string(h.Status)), msg)
			}
		}
	}
	fmt.Fprintln(w)
}

func branch(i, n int) string {
	if i == n-1 {
		return "└──"
	}
	return "├──"
}
