package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"

	"github.com/kbukum/rediskit/errors"
	"github.com/kbukum/rediskit/logger"
	"github.com/kbukum/rediskit/redis"
	"github.com/kbukum/rediskit/server"
)

func newTestServer(t *testing.T) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mini := miniredis.RunT(t)
	instances, err := redis.NewInstances(map[string]redis.Config{
		"default": {Addr: mini.Addr(), PoolSize: 2},
	})
	if err != nil {
		t.Fatal(err)
	}
	reg := redis.NewRegistry(instances, redis.WithWorkers(2), redis.WithLogger(logger.Nop()))
	t.Cleanup(func() { _ = reg.Shutdown(context.Background()) })

	srv := server.New(server.Config{}, logger.Nop())
	srv.ApplyMiddleware()
	routes(srv, reg, logger.Nop())
	return srv.Handler(), mini
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) errors.ErrorCode {
	t.Helper()
	var body errors.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid error body %q: %v", rr.Body.String(), err)
	}
	return body.Error.Code
}

func TestKeyValueRoundTrip(t *testing.T) {
	h, mini := newTestServer(t)

	if rr := do(h, http.MethodPut, "/kv/greeting", "hello"); rr.Code != http.StatusNoContent {
		t.Fatalf("PUT: %d %s", rr.Code, rr.Body.String())
	}
	if got, _ := mini.Get("greeting"); got != "hello" {
		t.Errorf("stored %q", got)
	}

	rr := do(h, http.MethodGet, "/kv/greeting", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET: %d %s", rr.Code, rr.Body.String())
	}
	var got struct {
		Data struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Data.Value != "hello" {
		t.Errorf("value = %q", got.Data.Value)
	}

	if rr := do(h, http.MethodDelete, "/kv/greeting", ""); rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"deleted":1`) {
		t.Errorf("DELETE: %d %s", rr.Code, rr.Body.String())
	}
	if rr := do(h, http.MethodGet, "/kv/greeting", ""); rr.Code != http.StatusNotFound || errorCode(t, rr) != errors.ErrCodeNotFound {
		t.Errorf("GET after delete: %d %s", rr.Code, rr.Body.String())
	}
}

func TestPutWithTTL(t *testing.T) {
	h, mini := newTestServer(t)

	if rr := do(h, http.MethodPut, "/kv/session?ttl=30s", "x"); rr.Code != http.StatusNoContent {
		t.Fatalf("PUT: %d %s", rr.Code, rr.Body.String())
	}
	if ttl := mini.TTL("session"); ttl != 30*time.Second {
		t.Errorf("ttl = %v", ttl)
	}

	rr := do(h, http.MethodPut, "/kv/session?ttl=soon", "x")
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != errors.ErrCodeInvalidInput {
		t.Errorf("bad ttl: %d %s", rr.Code, rr.Body.String())
	}
}

func TestPutRejectsOversizedValue(t *testing.T) {
	h, _ := newTestServer(t)
	rr := do(h, http.MethodPut, "/kv/big", strings.Repeat("x", maxValueSize+1))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestUnknownInstance(t *testing.T) {
	h, _ := newTestServer(t)
	rr := do(h, http.MethodGet, "/kv/a?instance=cache2", "")
	if errorCode(t, rr) != errors.ErrCodeUnknownInstance {
		t.Errorf("expected UNKNOWN_INSTANCE, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestWrongTypeIsCommandFailure(t *testing.T) {
	h, mini := newTestServer(t)
	mini.Lpush("list", "a")

	rr := do(h, http.MethodGet, "/kv/list", "")
	if errorCode(t, rr) != errors.ErrCodeCommandFailed {
		t.Errorf("expected COMMAND_FAILED, got %d %s", rr.Code, rr.Body.String())
	}
}

func TestPublish(t *testing.T) {
	h, _ := newTestServer(t)
	rr := do(h, http.MethodPost, "/publish/news", "hi")
	if rr.Code != http.StatusAccepted || !strings.Contains(rr.Body.String(), `"receivers":0`) {
		t.Errorf("POST /publish: %d %s", rr.Code, rr.Body.String())
	}
}

func TestStatsListsBuiltPools(t *testing.T) {
	h, _ := newTestServer(t)
	do(h, http.MethodGet, "/kv/a", "")

	rr := do(h, http.MethodGet, "/stats", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /stats: %d", rr.Code)
	}
	var body struct {
		Pools []struct {
			Name      string `json:"name"`
			Checkouts uint64 `json:"checkouts"`
		} `json:"pools"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Pools) != 1 || body.Pools[0].Checkouts != 1 {
		t.Errorf("expected one pool with one checkout, got %+v", body.Pools)
	}
}

func TestAppConfigValidate(t *testing.T) {
	cfg := AppConfig{}
	cfg.Name = serviceName
	cfg.Redis.Instances = map[string]redis.Config{"default": {Addr: "localhost:6379"}}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	cfg.Redis.Default = "missing"
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an unconfigured default instance")
	}
}
