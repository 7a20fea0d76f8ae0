package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/errors"
	"github.com/kbukum/rediskit/logger"
)

func TestConfigDefaultsAndValidate(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 8080 || cfg.ShutdownTimeout != "5s" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"bad read timeout", func(c *Config) { c.ReadTimeout = "soon" }},
		{"bad shutdown timeout", func(c *Config) { c.ShutdownTimeout = "10" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := cfg
			tc.mutate(&c)
			if err := c.Validate(); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
				t.Errorf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestServerStartServeStop(t *testing.T) {
	cfg := Config{Host: "127.0.0.1"}
	cfg.ApplyDefaults()
	cfg.Port = 0

	srv := New(cfg, logger.Nop())
	srv.ApplyMiddleware()
	srv.RegisterDefaultEndpoints("rediskit", "1.0.0", nil)

	comp := NewComponent(srv)
	ctx := context.Background()
	if h := comp.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before Start, got %s", h.Status)
	}
	if err := comp.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if h := comp.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy after Start, got %s", h.Status)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Error("expected the request ID middleware to run")
	}

	if err := comp.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h := comp.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy after Stop, got %s", h.Status)
	}
}

func TestServerStartPortInUse(t *testing.T) {
	first := New(Config{Host: "127.0.0.1"}, logger.Nop())
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = first.Stop(context.Background()) })

	host, port := splitAddr(t, first.Addr())
	second := New(Config{Host: host, Port: port}, logger.Nop())
	if err := second.Start(context.Background()); err == nil {
		_ = second.Stop(context.Background())
		t.Fatal("expected Start to fail on a bound port")
	}
}

func splitAddr(t *testing.T, addr string) (string, int) {
	t.Helper()
	host, p, err := net.SplitHostPort(addr)
	if err != nil {
		t.Fatalf("bad addr %q: %v", addr, err)
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		t.Fatalf("bad port %q: %v", p, err)
	}
	return host, port
}

func TestRespondWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		err    error
		status int
		code   errors.ErrorCode
	}{
		{"app error keeps status", errors.PoolExhausted("default", 0), http.StatusServiceUnavailable, errors.ErrCodePoolExhausted},
		{"plain error becomes internal", io.ErrUnexpectedEOF, http.StatusInternalServerError, errors.ErrCodeInternal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)
			RespondWithError(c, tc.err)

			if rr.Code != tc.status {
				t.Errorf("status = %d, want %d", rr.Code, tc.status)
			}
			var body errors.ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if body.Error.Code != tc.code {
				t.Errorf("code = %s, want %s", body.Error.Code, tc.code)
			}
		})
	}
}
