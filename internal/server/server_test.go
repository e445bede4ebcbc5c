package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flemzord/nodetalk/internal/command"
	"github.com/flemzord/nodetalk/internal/history"
	"github.com/flemzord/nodetalk/internal/metrics"
)

// echoRunner claims /ptt messages and replies with the surface it saw.
type echoRunner struct {
	mu   sync.Mutex
	last command.CommandContext
}

func (e *echoRunner) Run(_ context.Context, cc command.CommandContext) command.Result {
	e.mu.Lock()
	e.last = cc
	e.mu.Unlock()
	if !strings.HasPrefix(cc.TriggerNormalized, "/ptt") {
		return command.Continue
	}
	return command.Result{Reply: &command.Reply{Text: "PTT once → ios-1 via " + cc.Surface}}
}

type fakeHistory struct {
	records []history.Record
	err     error
	limit   int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Record, error) {
	f.limit = limit
	return f.records, f.err
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	if cfg.Commands == nil {
		cfg.Commands = &echoRunner{}
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresRunner(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error without command runner")
	}
}

func TestCommands_Claimed(t *testing.T) {
	t.Parallel()

	runner := &echoRunner{}
	h := newTestServer(t, Config{Commands: runner}).Handler()

	rec := do(t, h, http.MethodPost, "/v1/commands",
		`{"body":"/ptt once","provider":"telegram","from":"42","authorized":true}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}

	var res command.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.ShouldContinue || res.Reply == nil || res.Reply.Text != "PTT once → ios-1 via telegram" {
		t.Errorf("result = %+v", res)
	}
	if !runner.last.Authorized || runner.last.From != "42" {
		t.Errorf("context = %+v", runner.last)
	}
}

func TestCommands_PassThrough(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}).Handler()
	rec := do(t, h, http.MethodPost, "/v1/commands", `{"body":"hello"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != `{"shouldContinue":true}` {
		t.Errorf("body = %s", got)
	}
}

func TestCommands_DefaultSurface(t *testing.T) {
	t.Parallel()

	runner := &echoRunner{}
	h := newTestServer(t, Config{Commands: runner}).Handler()
	do(t, h, http.MethodPost, "/v1/commands", `{"body":"/ptt stop","authorized":true}`, nil)
	if runner.last.Surface != "http" {
		t.Errorf("surface = %q, want http", runner.last.Surface)
	}
}

func TestCommands_BadRequests(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{}).Handler()
	for _, body := range []string{`{`, `{"body":"   "}`, `[]`} {
		rec := do(t, h, http.MethodPost, "/v1/commands", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{BearerToken: "s3cret"}).Handler()

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "missing", want: http.StatusUnauthorized},
		{name: "wrong token", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic czNjcmV0", want: http.StatusUnauthorized},
		{name: "valid", header: "Bearer s3cret", want: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			rec := do(t, h, http.MethodPost, "/v1/commands", `{"body":"hi"}`, header)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestAuth_HealthStaysPublic(t *testing.T) {
	t.Parallel()

	h := newTestServer(t, Config{BearerToken: "s3cret"}).Handler()
	if rec := do(t, h, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		probe      func(context.Context) error
		wantCode   int
		wantStatus string
	}{
		{name: "no probe", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "gateway up", probe: func(context.Context) error { return nil }, wantCode: http.StatusOK, wantStatus: "ok"},
		{
			name:       "gateway down",
			probe:      func(context.Context) error { return errors.New("gateway: unavailable") },
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "degraded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newTestServer(t, Config{Probe: tt.probe, Version: "1.0.0"}).Handler()
			rec := do(t, h, http.MethodGet, "/health", "", nil)
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			var resp HealthResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Status != tt.wantStatus || resp.Version != "1.0.0" {
				t.Errorf("response = %+v", resp)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveInvocation("once", metrics.OutcomeOK, 20*time.Millisecond)

	h := newTestServer(t, Config{Gatherer: reg}).Handler()
	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `nodetalk_ptt_invocations_total{action="once",outcome="ok"} 1`) {
		t.Errorf("metrics output missing invocation counter:\n%s", rec.Body)
	}
}

func TestHistory(t *testing.T) {
	t.Parallel()

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		h := newTestServer(t, Config{}).Handler()
		if rec := do(t, h, http.MethodGet, "/v1/history", "", nil); rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("limit", func(t *testing.T) {
		t.Parallel()
		store := &fakeHistory{records: []history.Record{{IdempotencyKey: "k1", Action: "once", NodeID: "ios-1", OK: true}}}
		h := newTestServer(t, Config{History: store}).Handler()

		rec := do(t, h, http.MethodGet, "/v1/history?limit=5000", "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		if store.limit != maxHistoryLimit {
			t.Errorf("limit = %d, want %d", store.limit, maxHistoryLimit)
		}
		if !strings.Contains(rec.Body.String(), `"idempotencyKey":"k1"`) {
			t.Errorf("body = %s", rec.Body)
		}
	})

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		h := newTestServer(t, Config{History: &fakeHistory{}}).Handler()
		rec := do(t, h, http.MethodGet, "/v1/history", "", nil)
		if got := strings.TrimSpace(rec.Body.String()); got != `{"invocations":[]}` {
			t.Errorf("body = %s", got)
		}
	})

	t.Run("bad limit", func(t *testing.T) {
		t.Parallel()
		h := newTestServer(t, Config{History: &fakeHistory{}}).Handler()
		if rec := do(t, h, http.MethodGet, "/v1/history?limit=0", "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("store error", func(t *testing.T) {
		t.Parallel()
		h := newTestServer(t, Config{History: &fakeHistory{err: errors.New("disk")}}).Handler()
		if rec := do(t, h, http.MethodGet, "/v1/history", "", nil); rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
	})
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{ShutdownTimeout: time.Second})
	var lc net.ListenConfig
	ln, err := lc.Listen(t.Context(), "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	var resp *http.Response
	for range 50 {
		req, _ := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
		resp, err = http.DefaultClient.Do(req)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
