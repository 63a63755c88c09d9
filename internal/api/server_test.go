package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/flagdeck/flagdeck/internal/audit"
	"github.com/flagdeck/flagdeck/internal/bus"
	"github.com/flagdeck/flagdeck/internal/cache"
	"github.com/flagdeck/flagdeck/internal/coordinator"
	"github.com/flagdeck/flagdeck/internal/notifier"
	"github.com/flagdeck/flagdeck/internal/store"
)

const testAdminKey = "test-admin-key"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	t.Cleanup(func() { b.Close() })

	c := cache.New(cache.NewMemoryKV(), b, time.Minute, zerolog.Nop())
	trail := audit.NewTrail(audit.NewMemorySink(), 0, zerolog.Nop())
	t.Cleanup(func() { trail.Close() })

	coord := coordinator.New(st, c, trail, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	n := notifier.New(b, coord, zerolog.Nop())
	if err := n.Start(ctx); err != nil {
		t.Fatal(err)
	}

	srv := NewServer(coord, n, testAdminKey, 0, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, method, url string, body any, admin bool) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+testAdminKey)
		req.Header.Set("X-Actor-ID", "test-admin")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func createTestFlag(t *testing.T, ts *httptest.Server, req createFlagRequest) store.Flag {
	t.Helper()
	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/flags", req, true)
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("create flag: status %d: %s", resp.StatusCode, body)
	}
	return decodeBody[store.Flag](t, resp)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestCreateFlagRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	body := createFlagRequest{Key: "checkout", Type: "boolean"}

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/flags", body, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/flags", bytes.NewReader([]byte("{}")))
	req.Header.Set("Authorization", "Bearer wrong-key")
	wrongResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	wrongResp.Body.Close()
	if wrongResp.StatusCode != http.StatusForbidden {
		t.Fatalf("wrong token: status = %d, want 403", wrongResp.StatusCode)
	}
}

func TestCreateAndGetFlag(t *testing.T) {
	ts := newTestServer(t)

	created := createTestFlag(t, ts, createFlagRequest{
		Key:               "checkout",
		Description:       "new checkout flow",
		Enabled:           true,
		Type:              "boolean",
		RolloutPercentage: 100,
	})
	if created.Key != "checkout" || !created.Enabled {
		t.Fatalf("created = %+v", created)
	}

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/flags/checkout", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get: status = %d", resp.StatusCode)
	}
	got := decodeBody[store.Flag](t, resp)
	if got.ID != created.ID {
		t.Fatalf("get returned different flag: %+v", got)
	}
}

func TestGetFlagNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/flags/ghost", nil, false)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	errResp := decodeBody[ErrorResponse](t, resp)
	if errResp.Code != ErrCodeNotFound {
		t.Fatalf("code = %s, want %s", errResp.Code, ErrCodeNotFound)
	}
	if errResp.RequestID == "" {
		t.Fatal("expected request id in error body")
	}
}

func TestCreateFlagValidationErrors(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/flags", createFlagRequest{
		Key:               "Bad Key",
		Type:              "boolean",
		RolloutPercentage: 150,
	}, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	errResp := decodeBody[ErrorResponse](t, resp)
	if errResp.Code != ErrCodeValidation {
		t.Fatalf("code = %s, want %s", errResp.Code, ErrCodeValidation)
	}
	if errResp.Fields["key"] == "" || errResp.Fields["rolloutPercentage"] == "" {
		t.Fatalf("fields = %v", errResp.Fields)
	}
}

func TestCreateFlagConflict(t *testing.T) {
	ts := newTestServer(t)
	body := createFlagRequest{Key: "checkout", Type: "boolean"}

	createTestFlag(t, ts, body)
	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/flags", body, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}
}

func TestListFlags(t *testing.T) {
	ts := newTestServer(t)
	createTestFlag(t, ts, createFlagRequest{Key: "a", Type: "boolean"})
	createTestFlag(t, ts, createFlagRequest{Key: "b", Type: "string"})

	resp := doRequest(t, http.MethodGet, ts.URL+"/v1/flags", nil, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody[struct {
		Flags []store.Flag `json:"flags"`
	}](t, resp)
	if len(body.Flags) != 2 {
		t.Fatalf("got %d flags, want 2", len(body.Flags))
	}
}

func TestUpdateAndToggleFlag(t *testing.T) {
	ts := newTestServer(t)
	createTestFlag(t, ts, createFlagRequest{Key: "checkout", Type: "boolean", Enabled: true, RolloutPercentage: 100})

	rollout := 25
	resp := doRequest(t, http.MethodPut, ts.URL+"/v1/flags/checkout", updateFlagRequest{RolloutPercentage: &rollout}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status = %d", resp.StatusCode)
	}
	updated := decodeBody[store.Flag](t, resp)
	if updated.RolloutPercentage != 25 {
		t.Fatalf("rollout = %d, want 25", updated.RolloutPercentage)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/flags/checkout/toggle", toggleRequest{Enabled: false}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle: status = %d", resp.StatusCode)
	}
	toggled := decodeBody[store.Flag](t, resp)
	if toggled.Enabled {
		t.Fatal("expected disabled after toggle")
	}
}

func TestDeleteFlag(t *testing.T) {
	ts := newTestServer(t)
	createTestFlag(t, ts, createFlagRequest{Key: "checkout", Type: "boolean"})

	resp := doRequest(t, http.MethodDelete, ts.URL+"/v1/flags/checkout", nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status = %d, want 204", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/flags/checkout", nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestAddVariantAndTarget(t *testing.T) {
	ts := newTestServer(t)
	createTestFlag(t, ts, createFlagRequest{Key: "checkout", Type: "multivariate", Enabled: true, RolloutPercentage: 100})

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/flags/checkout/variants",
		variantRequest{Key: "control", Value: `"a"`, Weight: 50}, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add variant: status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/v1/flags/checkout/targets",
		targetRequest{Type: "user", Value: "user-1", Priority: 10}, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add target: status = %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/flags/checkout", nil, false)
	got := decodeBody[store.Flag](t, resp)
	if len(got.Variants) != 1 || len(got.Targets) != 1 {
		t.Fatalf("children missing: %+v", got)
	}
}

func TestEvaluateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	createTestFlag(t, ts, createFlagRequest{Key: "checkout", Type: "boolean", Enabled: true, RolloutPercentage: 100})

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/evaluate", evaluateRequest{
		FlagKey: "checkout",
	}, false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	result := decodeBody[evaluateResponse](t, resp)
	if !result.Enabled || result.Reason == "" {
		t.Fatalf("result = %+v", result)
	}
}

func TestEvaluateMissingFlagKey(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/evaluate", evaluateRequest{}, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestEvaluateUnknownFlag(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/evaluate", evaluateRequest{FlagKey: "ghost"}, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestAuditEndpoints(t *testing.T) {
	ts := newTestServer(t)
	createTestFlag(t, ts, createFlagRequest{Key: "checkout", Type: "boolean"})
	resp := doRequest(t, http.MethodPost, ts.URL+"/v1/flags/checkout/toggle", toggleRequest{Enabled: true}, true)
	resp.Body.Close()

	type entriesBody struct {
		Entries []audit.Entry `json:"entries"`
	}

	// The trail is written asynchronously.
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp = doRequest(t, http.MethodGet, ts.URL+"/v1/flags/checkout/audit", nil, true)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("flag audit: status = %d", resp.StatusCode)
		}
		body := decodeBody[entriesBody](t, resp)
		if len(body.Entries) >= 2 {
			if body.Entries[0].Action != audit.ActionEnabled {
				t.Fatalf("newest action = %s", body.Entries[0].Action)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("audit entries never appeared, got %d", len(body.Entries))
		}
		time.Sleep(5 * time.Millisecond)
	}

	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/audit?actor=test-admin", nil, true)
	body := decodeBody[entriesBody](t, resp)
	if len(body.Entries) == 0 {
		t.Fatal("expected entries for actor")
	}

	// Audit queries are admin-only.
	resp = doRequest(t, http.MethodGet, ts.URL+"/v1/audit", nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated audit: status = %d, want 401", resp.StatusCode)
	}
}

func TestFlagGateMiddleware(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	defer b.Close()
	c := cache.New(cache.NewMemoryKV(), b, time.Minute, zerolog.Nop())
	trail := audit.NewTrail(audit.NewMemorySink(), 0, zerolog.Nop())
	defer trail.Close()
	coord := coordinator.New(st, c, trail, zerolog.Nop())

	ctx := context.Background()
	if _, err := coord.CreateFlag(ctx, store.Flag{
		Key: "beta-api", Enabled: true, Type: store.TypeBoolean, RolloutPercentage: 100,
	}, coordinator.Meta{}); err != nil {
		t.Fatal(err)
	}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("open gate passes through", func(t *testing.T) {
		h := FlagGate{FlagKey: "beta-api"}.Middleware(coord)(inner)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("closed gate answers 503", func(t *testing.T) {
		if _, err := coord.ToggleFlag(ctx, "beta-api", false, coordinator.Meta{}); err != nil {
			t.Fatal(err)
		}
		h := FlagGate{FlagKey: "beta-api"}.Middleware(coord)(inner)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("status = %d, want 503", rec.Code)
		}
	})

	t.Run("missing flag follows fallback", func(t *testing.T) {
		for _, tc := range []struct {
			fallback bool
			want     int
		}{
			{fallback: true, want: http.StatusOK},
			{fallback: false, want: http.StatusServiceUnavailable},
		} {
			h := FlagGate{FlagKey: "ghost", FallbackOnError: tc.fallback}.Middleware(coord)(inner)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			if rec.Code != tc.want {
				t.Fatalf("fallback=%v: status = %d, want %d", tc.fallback, rec.Code, tc.want)
			}
		}
	})
}

func TestRateLimit(t *testing.T) {
	st := store.NewMemoryStore()
	b := bus.NewMemoryBus()
	defer b.Close()
	c := cache.New(cache.NewMemoryKV(), b, time.Minute, zerolog.Nop())
	trail := audit.NewTrail(audit.NewMemorySink(), 0, zerolog.Nop())
	defer trail.Close()
	coord := coordinator.New(st, c, trail, zerolog.Nop())
	n := notifier.New(b, coord, zerolog.Nop())

	srv := NewServer(coord, n, testAdminKey, 3, zerolog.Nop())
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	var limited bool
	for i := 0; i < 10; i++ {
		resp, err := http.Get(fmt.Sprintf("%s/healthz", ts.URL))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected a 429 after exceeding the per-IP limit")
	}
}
