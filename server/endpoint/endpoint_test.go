package endpoint

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/observability"
	"github.com/kbukum/rediskit/redis/pool"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func call(t *testing.T, h gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	engine := gin.New()
	engine.GET("/", h)
	rr := httptest.NewRecorder()
	engine.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	return rr
}

func checker(statuses ...component.HealthStatus) HealthChecker {
	return func(context.Context) []component.Health {
		out := make([]component.Health, 0, len(statuses))
		for i, s := range statuses {
			out = append(out, component.Health{Name: string(rune('a' + i)), Status: s})
		}
		return out
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantCode   int
		wantStatus component.HealthStatus
	}{
		{"no checker", nil, http.StatusOK, component.StatusHealthy},
		{"all healthy", checker(component.StatusHealthy, component.StatusHealthy), http.StatusOK, component.StatusHealthy},
		{"degraded", checker(component.StatusHealthy, component.StatusDegraded), http.StatusOK, component.StatusDegraded},
		{"unhealthy", checker(component.StatusDegraded, component.StatusUnhealthy), http.StatusServiceUnavailable, component.StatusUnhealthy},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := call(t, Health("rediskit", "1.0.0", tc.checker))
			if rr.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tc.wantCode)
			}
			var body observability.ServiceHealth
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Status != tc.wantStatus || body.Service != "rediskit" || body.Version != "1.0.0" {
				t.Errorf("unexpected body %+v", body)
			}
		})
	}
}

func TestReadiness(t *testing.T) {
	if rr := call(t, Readiness("rediskit", checker(component.StatusDegraded))); rr.Code != http.StatusOK {
		t.Errorf("degraded should still be ready, got %d", rr.Code)
	}
	if rr := call(t, Readiness("rediskit", checker(component.StatusUnhealthy))); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("unhealthy should not be ready, got %d", rr.Code)
	}
}

func TestLiveness(t *testing.T) {
	if rr := call(t, Liveness("rediskit")); rr.Code != http.StatusOK {
		t.Errorf("code = %d", rr.Code)
	}
}

func TestStats(t *testing.T) {
	provider := func() []pool.Stats {
		return []pool.Stats{
			{Name: "default/0", MaxSize: 4, Size: 2, Idle: 1, Checkouts: 10, Dials: 2},
			{Name: "default/1", MaxSize: 4},
		}
	}
	rr := call(t, Stats(provider))
	if rr.Code != http.StatusOK {
		t.Fatalf("code = %d", rr.Code)
	}

	var body struct {
		Pools []PoolStats `json:"pools"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Pools) != 2 || body.Pools[0].Name != "default/0" || body.Pools[0].Checkouts != 10 {
		t.Errorf("unexpected pools %+v", body.Pools)
	}
}
