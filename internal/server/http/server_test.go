package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	cfgpkg "github.com/microsoft/service-fabric-sub058/internal/config"
	"github.com/microsoft/service-fabric-sub058/internal/container"
	"github.com/microsoft/service-fabric-sub058/internal/metrics"
	"github.com/microsoft/service-fabric-sub058/internal/runtime"
	logpkg "github.com/microsoft/service-fabric-sub058/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
)

func newServer(t *testing.T) (*Server, *runtime.Runtime) {
	t.Helper()
	cfg := cfgpkg.Default()
	cfg.DataDir = t.TempDir()
	cfg.Fsync = "never"
	reg := prometheus.NewRegistry()
	rt, err := runtime.Open(runtime.Options{Config: cfg, Metrics: metrics.New(reg)})
	if err != nil {
		t.Fatalf("rt open: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	logger, _ := logpkg.ApplyConfig(&logpkg.Config{Level: "error", Format: "text"})
	return New(rt, logger, reg), rt
}

func get(s *Server, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	s.srv.Handler.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	s, _ := newServer(t)
	w := get(s, "/v1/healthz")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestVersionHandler(t *testing.T) {
	s, _ := newServer(t)
	w := get(s, "/v1/version")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["container"] != "local" || body["driver"] == "" {
		t.Fatalf("body: %v", body)
	}
}

func TestContainerStatAndAlias(t *testing.T) {
	s, rt := newServer(t)
	ctx := context.Background()
	path := filepath.Join(rt.Config().DataDir, "c1")
	c, err := rt.Containers().CreateContainer(ctx, container.CreateOptions{
		Path: path, ID: uuid.New(), Capacity: 1 << 20, MaxStreams: 2, MaxBlockSize: 16384,
	})
	if err != nil {
		t.Fatalf("create container: %v", err)
	}
	defer c.Close(ctx)
	id := uuid.New()
	st, err := c.CreateStream(ctx, id, "orders")
	if err != nil {
		t.Fatalf("create stream: %v", err)
	}
	defer st.Close(ctx)

	w := get(s, "/v1/containers/stat?path="+url.QueryEscape(path))
	if w.Code != 200 {
		t.Fatalf("stat status: %d %s", w.Code, w.Body.String())
	}
	var stat map[string]any
	if err := json.NewDecoder(w.Body).Decode(&stat); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stat["id"] != c.ID().String() || stat["streams"].(float64) != 1 {
		t.Fatalf("stat: %v", stat)
	}

	w = get(s, "/v1/containers/alias?alias=orders&path="+url.QueryEscape(path))
	if w.Code != 200 || !strings.Contains(w.Body.String(), id.String()) {
		t.Fatalf("alias: %d %s", w.Code, w.Body.String())
	}
	w = get(s, "/v1/containers/alias?alias=missing&path="+url.QueryEscape(path))
	if w.Code != http.StatusNotFound {
		t.Fatalf("missing alias status: %d", w.Code)
	}
	w = get(s, "/v1/containers/stat")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no path status: %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s, rt := newServer(t)
	rt.Metrics().LogsOpen.Inc()
	w := get(s, "/metrics")
	if w.Code != 200 {
		t.Fatalf("status: %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "logmux_log_open") {
		t.Fatalf("metrics output missing logmux_log_open:\n%s", w.Body.String())
	}
}
