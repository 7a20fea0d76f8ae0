package bootstrap

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"

	"github.com/kbukum/rediskit/component"
	"github.com/kbukum/rediskit/config"
	"github.com/kbukum/rediskit/logger"
)

type testConfig struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
}

func newConfig() *testConfig {
	return &testConfig{ServiceConfig: config.ServiceConfig{Name: "test-svc", Version: "1.0.0", Environment: "staging"}}
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) get() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fakeComponent struct {
	name     string
	rec      *recorder
	startErr error
	running  bool
}

func (f *fakeComponent) Name() string { return f.name }

func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.running = true
	f.rec.add("start:" + f.name)
	return nil
}

func (f *fakeComponent) Stop(context.Context) error {
	f.running = false
	f.rec.add("stop:" + f.name)
	return nil
}

func (f *fakeComponent) Health(context.Context) component.Health {
	if f.running {
		return component.Health{Name: f.name, Status: component.StatusHealthy}
	}
	return component.Health{Name: f.name, Status: component.StatusUnhealthy}
}

type describedComponent struct {
	fakeComponent
}

func (d *describedComponent) Describe() component.Description {
	return component.Description{Type: "redis", Details: "default=localhost:6379", Port: 6379}
}

func newTestApp(t *testing.T, out *bytes.Buffer) *App[*testConfig] {
	t.Helper()
	app, err := NewApp(newConfig(), WithLogger(logger.Nop()), WithSummaryOutput(out))
	if err != nil {
		t.Fatalf("NewApp failed: %v", err)
	}
	return app
}

func TestNewAppValidatesConfig(t *testing.T) {
	cfg := &testConfig{ServiceConfig: config.ServiceConfig{Environment: "qa"}}
	if _, err := NewApp(cfg, WithLogger(logger.Nop())); err == nil {
		t.Fatal("expected a validation error")
	}
}

func TestNewAppAppliesDefaults(t *testing.T) {
	app, err := NewApp(newConfig(), WithLogger(logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	if app.Name != "test-svc" || app.Version != "1.0.0" {
		t.Errorf("unexpected app identity %q %q", app.Name, app.Version)
	}
	if app.Cfg.Logging.Level == "" {
		t.Error("expected logging defaults applied")
	}
}

func TestRunTaskLifecycleOrder(t *testing.T) {
	var out bytes.Buffer
	rec := &recorder{}
	app := newTestApp(t, &out)

	_ = app.RegisterComponent(&fakeComponent{name: "redis", rec: rec})
	_ = app.RegisterComponent(&fakeComponent{name: "http", rec: rec})
	app.OnStart(func(context.Context) error { rec.add("onStart"); return nil })
	app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
		rec.add("configure:" + a.Cfg.Name)
		return nil
	})
	app.OnReady(func(context.Context) error { rec.add("onReady"); return nil })
	app.OnStop(func(context.Context) error { rec.add("onStop"); return nil })

	err := app.RunTask(context.Background(), func(context.Context) error {
		rec.add("task")
		return nil
	})
	if err != nil {
		t.Fatalf("RunTask failed: %v", err)
	}

	want := []string{
		"start:redis", "start:http", "onStart", "configure:test-svc", "onReady",
		"task", "onStop", "stop:http", "stop:redis",
	}
	got := rec.get()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v\nwant %v", got, want)
	}
}

func TestComponentRegisteredDuringConfigureStartsLast(t *testing.T) {
	var out bytes.Buffer
	rec := &recorder{}
	app := newTestApp(t, &out)

	_ = app.RegisterComponent(&fakeComponent{name: "redis", rec: rec})
	app.OnConfigure(func(_ context.Context, a *App[*testConfig]) error {
		rec.add("routes")
		return a.RegisterComponent(&fakeComponent{name: "http", rec: rec})
	})

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	want := "start:redis,routes,start:http,stop:http,stop:redis"
	if got := strings.Join(rec.get(), ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestRunTaskReturnsTaskError(t *testing.T) {
	var out bytes.Buffer
	rec := &recorder{}
	app := newTestApp(t, &out)
	_ = app.RegisterComponent(&fakeComponent{name: "redis", rec: rec})

	taskErr := stderrors.New("boom")
	if err := app.RunTask(context.Background(), func(context.Context) error { return taskErr }); !stderrors.Is(err, taskErr) {
		t.Fatalf("expected the task error, got %v", err)
	}
	if got := rec.get(); got[len(got)-1] != "stop:redis" {
		t.Errorf("expected components stopped after a failed task, got %v", got)
	}
}

func TestStartupFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*App[*testConfig], *recorder)
		want  []string
	}{
		{
			name: "component start fails",
			setup: func(a *App[*testConfig], rec *recorder) {
				_ = a.RegisterComponent(&fakeComponent{name: "redis", rec: rec})
				_ = a.RegisterComponent(&fakeComponent{name: "http", rec: rec, startErr: stderrors.New("bind")})
			},
			want: []string{"start:redis", "stop:redis"},
		},
		{
			name: "configure fails",
			setup: func(a *App[*testConfig], rec *recorder) {
				_ = a.RegisterComponent(&fakeComponent{name: "redis", rec: rec})
				a.OnConfigure(func(context.Context, *App[*testConfig]) error { return stderrors.New("routes") })
			},
			want: []string{"start:redis", "stop:redis"},
		},
		{
			name: "onReady fails",
			setup: func(a *App[*testConfig], rec *recorder) {
				_ = a.RegisterComponent(&fakeComponent{name: "redis", rec: rec})
				a.OnReady(func(context.Context) error { return stderrors.New("not ready") })
			},
			want: []string{"start:redis", "stop:redis"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var out bytes.Buffer
			rec := &recorder{}
			app := newTestApp(t, &out)
			tc.setup(app, rec)

			ran := false
			err := app.RunTask(context.Background(), func(context.Context) error {
				ran = true
				return nil
			})
			if err == nil {
				t.Fatal("expected a startup error")
			}
			if ran {
				t.Error("task must not run after a failed startup")
			}
			if strings.Join(rec.get(), ",") != strings.Join(tc.want, ",") {
				t.Errorf("events = %v, want %v", rec.get(), tc.want)
			}
		})
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	var out bytes.Buffer
	rec := &recorder{}
	app := newTestApp(t, &out)
	_ = app.RegisterComponent(&fakeComponent{name: "redis", rec: rec})

	ctx, cancel := context.WithCancel(context.Background())
	app.OnReady(func(context.Context) error { cancel(); return nil })

	if err := app.Run(ctx); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got := rec.get(); len(got) != 2 || got[1] != "stop:redis" {
		t.Errorf("expected start then stop, got %v", got)
	}
}

func TestReadyCheck(t *testing.T) {
	var out bytes.Buffer
	rec := &recorder{}
	app := newTestApp(t, &out)
	c := &fakeComponent{name: "redis", rec: rec}
	_ = app.RegisterComponent(c)

	if err := app.ReadyCheck(context.Background()); err == nil || !strings.Contains(err.Error(), "redis=unhealthy") {
		t.Errorf("expected redis reported unhealthy, got %v", err)
	}
	c.running = true
	if err := app.ReadyCheck(context.Background()); err != nil {
		t.Errorf("expected ready, got %v", err)
	}
}

func TestSummaryRender(t *testing.T) {
	var out bytes.Buffer
	rec := &recorder{}
	app := newTestApp(t, &out)
	_ = app.RegisterComponent(&describedComponent{fakeComponent{name: "redis", rec: rec}})
	_ = app.RegisterComponent(&fakeComponent{name: "http", rec: rec})
	app.Summary.TrackRoute("GET", "/kv/:key")

	if err := app.RunTask(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}

	s := out.String()
	for _, want := range []string{
		"test-svc v1.0.0 started",
		"[redis] redis: default=localhost:6379 (:6379)",
		"GET     /kv/:key",
		"http healthy",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
}
