package redis

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/logger"
)

func TestComponentLifecycle(t *testing.T) {
	mini := miniredis.RunT(t)
	ctx := context.Background()

	c := NewComponent(Settings{
		Ping:    true,
		Workers: 2,
		Instances: map[string]Config{
			"default": {Addr: mini.Addr(), PoolSize: 3},
		},
	}, logger.Nop())

	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy before Start, got %v", h.Status)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if c.Registry() == nil {
		t.Fatal("expected a registry after Start")
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %v (%s)", h.Status, h.Message)
	}

	d := c.Describe()
	if d.Type != "redis" || !strings.Contains(d.Details, mini.Addr()) || !strings.Contains(d.Details, "workers=2") {
		t.Errorf("unexpected description %+v", d)
	}

	if err := c.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy after Stop, got %v", h.Status)
	}
}

func TestComponentStartRejectsBadSettings(t *testing.T) {
	c := NewComponent(Settings{
		Instances: map[string]Config{"default": {Addr: "no-port"}},
	}, logger.Nop())

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail")
	}
	if c.Registry() != nil {
		t.Error("expected no registry after a failed Start")
	}
}

func TestComponentStartPingFails(t *testing.T) {
	mini := miniredis.RunT(t)
	addr := mini.Addr()
	mini.Close()

	c := NewComponent(Settings{
		Ping:      true,
		Instances: map[string]Config{"default": {Addr: addr, DialTimeout: "200ms"}},
	}, logger.Nop())

	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail when the default instance is down")
	}
}

func TestComponentInRegistry(t *testing.T) {
	mini := miniredis.RunT(t)
	ctx := context.Background()

	reg := component.NewRegistry(logger.Nop())
	c := NewComponent(Settings{Instances: map[string]Config{"default": {Addr: mini.Addr()}}}, logger.Nop())
	if err := reg.Register(c); err != nil {
		t.Fatal(err)
	}
	if err := reg.StartAll(ctx); err != nil {
		t.Fatalf("StartAll failed: %v", err)
	}
	if !component.Healthy(reg.HealthAll(ctx)) {
		t.Error("expected all components healthy")
	}
	if err := reg.StopAll(ctx); err != nil {
		t.Fatalf("StopAll failed: %v", err)
	}
}
