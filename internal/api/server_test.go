package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/nerrad567/gray-logic-relay/internal/directory"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/state"
)

type fakeClient struct {
	entries []directory.Entry
	listErr error
}

func (c *fakeClient) Authenticate(context.Context) error { return nil }

func (c *fakeClient) ListEntries(context.Context) ([]directory.Entry, error) {
	return c.entries, c.listErr
}

func (c *fakeClient) ListVariables(context.Context, string) ([]directory.Variable, error) {
	return nil, nil
}

func (c *fakeClient) SetValues(context.Context, directory.Entry, []directory.Value) error {
	return nil
}

type fakeStates map[string]*state.Record

func (f fakeStates) Get(_ context.Context, deviceID string) (*state.Record, error) {
	if deviceID == "BROKEN" {
		return nil, errors.New("disk I/O error")
	}
	rec, ok := f[deviceID]
	if !ok {
		return nil, state.ErrStateNotFound
	}
	return rec, nil
}

type fakeCheck struct{ err error }

func (c fakeCheck) HealthCheck(context.Context) error { return c.err }

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// testCache builds a directory cache over two accounts. The second account's
// catalog listing fails.
func testCache(t *testing.T) *directory.Cache {
	t.Helper()

	clients := map[int]directory.Client{
		0: &fakeClient{entries: []directory.Entry{
			{ID: "ds-1", Name: "Sigfox Device 2c30eb"},
			{ID: "ds-2", Name: "Sigfox Device 1a2b3c"},
		}},
		1: &fakeClient{listErr: errors.New("service unavailable")},
	}

	cache, err := directory.New(directory.Options{
		Credentials: []string{"A1E-first-account-key", "A1E-second-account-key"},
		TTL:         time.Minute,
		Jitter:      func(ttl time.Duration) time.Duration { return ttl },
		NewClient: func(account int, _ string) (directory.Client, error) {
			return clients[account], nil
		},
	})
	if err != nil {
		t.Fatalf("directory.New() error = %v", err)
	}
	return cache
}

func testServer(t *testing.T, cache *directory.Cache, checks map[string]HealthChecker) *Server {
	t.Helper()

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		Logger:    testLogger(),
		Directory: cache,
		States: fakeStates{
			"2C30EB": {
				DeviceID:  "2C30EB",
				Reported:  map[string]any{"tmp": 21.5, "lat": 1.31},
				UpdatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			},
		},
		Checks:  checks,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

func TestNew_RequiredDeps(t *testing.T) {
	cache := testCache(t)
	states := fakeStates{}

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Directory: cache, States: states}},
		{"missing directory", Deps{Logger: testLogger(), States: states}},
		{"missing states", Deps{Logger: testLogger(), Directory: cache}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() expected error, got nil")
			}
		})
	}
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]HealthChecker
		wantStatus int
		wantBody   string
	}{
		{
			name:       "all healthy",
			checks:     map[string]HealthChecker{"mqtt": fakeCheck{}, "database": fakeCheck{}},
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
		{
			name:       "broker down",
			checks:     map[string]HealthChecker{"mqtt": fakeCheck{err: errors.New("mqtt: client not connected")}, "database": fakeCheck{}},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
		},
		{
			name:       "no checks",
			wantStatus: http.StatusOK,
			wantBody:   "ok",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := testServer(t, testCache(t), tt.checks)
			w := get(t, srv, "/health")

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}

			var resp HealthResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decoding response: %v", err)
			}
			if resp.Status != tt.wantBody {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantBody)
			}
			if len(resp.Checks) != len(tt.checks) {
				t.Errorf("Checks = %v, want %d entries", resp.Checks, len(tt.checks))
			}
			if resp.Version != "test" {
				t.Errorf("Version = %q, want test", resp.Version)
			}
		})
	}
}

func TestHealth_ReportsFailingCheck(t *testing.T) {
	srv := testServer(t, testCache(t), map[string]HealthChecker{
		"database": fakeCheck{err: errors.New("database is locked")},
	})

	var resp HealthResponse
	if err := json.Unmarshal(get(t, srv, "/health").Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Checks["database"] != "database is locked" {
		t.Errorf("Checks[database] = %q", resp.Checks["database"])
	}
}

func TestDirectory_BeforeFirstBuild(t *testing.T) {
	srv := testServer(t, testCache(t), nil)
	w := get(t, srv, "/api/v1/directory")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp DirectoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Generation != 0 || resp.BuiltAt != nil || len(resp.Devices) != 0 {
		t.Errorf("unbuilt directory = %+v", resp)
	}
	if len(resp.Accounts) != 2 {
		t.Fatalf("Accounts = %d, want 2", len(resp.Accounts))
	}
	for _, a := range resp.Accounts {
		if !a.Stale || a.RefreshedAt != nil {
			t.Errorf("account %d = %+v, want stale and never refreshed", a.Account, a)
		}
	}
}

func TestDirectory_AfterBuild(t *testing.T) {
	cache := testCache(t)
	if _, err := cache.Directory(context.Background(), false); err != nil {
		t.Fatalf("Directory() error = %v", err)
	}
	srv := testServer(t, cache, nil)

	var resp DirectoryResponse
	if err := json.Unmarshal(get(t, srv, "/api/v1/directory").Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	if resp.Generation != 1 || resp.BuiltAt == nil {
		t.Errorf("Generation = %d, BuiltAt = %v; want 1 and set", resp.Generation, resp.BuiltAt)
	}
	if len(resp.Devices) != 2 || resp.Devices[0].DeviceID != "1A2B3C" || resp.Devices[1].DeviceID != "2C30EB" {
		t.Fatalf("Devices = %+v, want 1A2B3C then 2C30EB", resp.Devices)
	}
	b := resp.Devices[1].Bindings
	if len(b) != 1 || b[0].Account != 0 || b[0].EntryID != "ds-1" || b[0].EntryName != "Sigfox Device 2c30eb" {
		t.Errorf("2C30EB bindings = %+v", b)
	}

	first, second := resp.Accounts[0], resp.Accounts[1]
	if first.Stale || first.Devices != 2 || first.RefreshedAt == nil || first.LastError != "" {
		t.Errorf("first account = %+v, want fresh with 2 devices", first)
	}
	if second.Devices != 0 || second.RefreshedAt != nil || !strings.Contains(second.LastError, "service unavailable") {
		t.Errorf("second account = %+v, want failed refresh", second)
	}
	if strings.Contains(first.Name, "first-account-key") {
		t.Errorf("account name %q exposes the credential", first.Name)
	}
}

func TestDeviceState(t *testing.T) {
	srv := testServer(t, testCache(t), nil)

	tests := []struct {
		name       string
		path       string
		wantStatus int
	}{
		{"saved state", "/api/v1/devices/2C30EB/state", http.StatusOK},
		{"lowercase id", "/api/v1/devices/2c30eb/state", http.StatusOK},
		{"unknown device", "/api/v1/devices/FFFFFF/state", http.StatusNotFound},
		{"store failure", "/api/v1/devices/broken/state", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(t, srv, tt.path)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}

	var rec state.Record
	if err := json.Unmarshal(get(t, srv, "/api/v1/devices/2C30EB/state").Body.Bytes(), &rec); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if rec.DeviceID != "2C30EB" || rec.Reported["tmp"] != 21.5 {
		t.Errorf("record = %+v", rec)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, testCache(t), nil)
	get(t, srv, "/health")

	w := get(t, srv, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "relay_http_request_duration_seconds") {
		t.Error("metrics output missing relay_http_request_duration_seconds")
	}
}

func TestRequestID(t *testing.T) {
	srv := testServer(t, testCache(t), nil)

	w := get(t, srv, "/health")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req-123" {
		t.Errorf("X-Request-ID = %q, want req-123", got)
	}
}

func TestStartClose(t *testing.T) {
	srv := testServer(t, testCache(t), nil)

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	addr := srv.Addr()
	if addr == "" {
		t.Fatal("Addr() empty after Start()")
	}

	resp, err := http.Get("http://" + addr + "/health")
	if err != nil {
		t.Fatalf("GET /health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
