package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected a log line, got nothing")
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(line), &m); err != nil {
		t.Fatalf("failed to decode log line %q: %v", line, err)
	}
	return m
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.Service() != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.Service())
	}
}

func TestNewInvalidLevel(t *testing.T) {
	l := New(&Config{Level: "bogus", Format: "json"}, "svc")
	if l == nil {
		t.Fatal("expected non-nil logger for invalid level")
	}
}

func TestWithComponent(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "svc").WithComponent("redis").Info("pool created")

	m := decodeLine(t, &buf)
	if m[FieldComponent] != "redis" {
		t.Errorf("expected component=redis, got %v", m[FieldComponent])
	}
	if m["message"] != "pool created" {
		t.Errorf("expected message, got %v", m["message"])
	}
}

func TestWithFieldsAndCallFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "svc").WithFields(Fields(FieldInstance, "cache", FieldWorker, "2"))
	l.Warn("checkout slow", Fields(FieldDuration, 12))

	m := decodeLine(t, &buf)
	if m[FieldInstance] != "cache" {
		t.Errorf("expected instance=cache, got %v", m[FieldInstance])
	}
	if m[FieldWorker] != "2" {
		t.Errorf("expected worker=2, got %v", m[FieldWorker])
	}
	if m[FieldDuration] != float64(12) {
		t.Errorf("expected duration_ms=12, got %v", m[FieldDuration])
	}
	if m["level"] != "warn" {
		t.Errorf("expected level=warn, got %v", m["level"])
	}
}

func TestWithContext(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWith(context.Background(), FieldRequestID, "req-1")
	NewWriter(&buf, "svc").WithContext(ctx).Info("hello")

	m := decodeLine(t, &buf)
	if m[FieldRequestID] != "req-1" {
		t.Errorf("expected request_id=req-1, got %v", m[FieldRequestID])
	}
	if _, ok := m[FieldTraceID]; ok {
		t.Error("trace_id should be absent when not in context")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "svc").WithError(fmt.Errorf("boom")).Error("failed")

	m := decodeLine(t, &buf)
	if m["error"] != "boom" {
		t.Errorf("expected error=boom, got %v", m["error"])
	}
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	l.Info("nothing")
	l.WithComponent("x").Error("still nothing")
}

func TestInitAndGlobal(t *testing.T) {
	prev := GetGlobalLogger()
	defer SetGlobalLogger(prev)

	l := Init(Config{Level: "debug", Format: "json", ServiceName: "rediskit"})
	if GetGlobalLogger() != l {
		t.Error("Init should install the global logger")
	}
	if l.Service() != "rediskit" {
		t.Errorf("expected service rediskit, got %q", l.Service())
	}

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got %q", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("expected format 'console', got %q", cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("expected output 'stdout', got %q", cfg.Output)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp enabled")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "info", Format: "json"}, false},
		{"pretty", Config{Level: "debug", Format: "pretty"}, false},
		{"bad level", Config{Level: "loud", Format: "json"}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if (err != nil) != tc.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestRegisterAndGet(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriter(&buf, "test")
	Register(NameHTTP, l)
	if Get(NameHTTP) != l {
		t.Error("expected the registered logger")
	}

	Register(NameHTTP, nil)
	fallback := Get(NameHTTP)
	if fallback == nil || fallback == l {
		t.Fatal("expected the global logger after removing the binding")
	}
}

func TestFields(t *testing.T) {
	m := Fields("a", 1, "b", "two", 3, "ignored", "dangling")
	if len(m) != 2 {
		t.Fatalf("expected 2 fields, got %d: %v", len(m), m)
	}
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("unexpected fields: %v", m)
	}
}

func TestErrorAndDurationFields(t *testing.T) {
	ef := ErrorFields("checkout", fmt.Errorf("exhausted"))
	if ef[FieldOperation] != "checkout" || ef[FieldError] != "exhausted" {
		t.Errorf("unexpected error fields: %v", ef)
	}
	df := DurationFields("dial", 1500*time.Millisecond)
	if df[FieldDuration] != int64(1500) {
		t.Errorf("expected 1500ms, got %v", df[FieldDuration])
	}
}
