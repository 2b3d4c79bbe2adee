package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"clubledger/internal/ledger"
	"clubledger/internal/log"
	"clubledger/internal/storage/memory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := memory.New()
	logger := log.New(log.DefaultConfig())
	auditor := ledger.NewAuditor(nil, logger)
	years := ledger.NewYearService(store, auditor, logger, 52, false)
	subs := ledger.NewSubscriptionService(store, auditor, logger)
	records := ledger.NewRecordService(store, auditor, logger)
	finance := ledger.NewFinanceService(store, nil, auditor, logger)

	srv := NewServer(":0", years, subs, records, finance, store)
	t.Cleanup(func() {
		if err := srv.Shutdown(context.Background()); err != nil {
			t.Errorf("Shutdown() error = %v", err)
		}
	})
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Club-ID", "club-1")
	req.Header.Set("X-User-ID", "user-1")
	req.Header.Set("X-User-Role", role)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return resp
}

func yearBody() map[string]any {
	return map[string]any{
		"name":                   "2026-27",
		"start_date":             "2026-04-01",
		"end_date":               "2027-03-31",
		"frequency":              "weekly",
		"total_installments":     52,
		"amount_per_installment": "50.00",
	}
}

func negativeInstallmentsBody() map[string]any {
	body := yearBody()
	body["total_installments"] = -1
	return body
}

func createYear(t *testing.T, srv *Server) int64 {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/years", "admin", yearBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("create year status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("year payload has wrong shape: %v", resp.Data)
	}
	id, ok := data["id"].(float64)
	if !ok || id <= 0 {
		t.Fatalf("year id missing from payload: %v", data)
	}
	return int64(id)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want 200", rec.Code)
	}

	rec = doRequest(t, srv, http.MethodGet, "/readyz", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("/readyz status = %d, want 200", rec.Code)
	}
}

func TestCreateYear_Envelope(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/years", "admin", yearBody())
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	resp := decodeResponse(t, rec)
	if !resp.Success {
		t.Errorf("success = false, error %q", resp.Error)
	}
	data := resp.Data.(map[string]any)
	if data["name"] != "2026-27" {
		t.Errorf("name = %v", data["name"])
	}
	if data["amount_per_installment"] != "50.00" {
		t.Errorf("amount_per_installment = %v, want decimal string", data["amount_per_installment"])
	}
}

func TestCreateYear_RotatesActiveYear(t *testing.T) {
	srv := newTestServer(t)
	firstID := createYear(t, srv)

	body := yearBody()
	body["name"] = "2027-28"
	rec := doRequest(t, srv, http.MethodPost, "/api/v1/years", "admin", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("second create status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	next := resp.Data.(map[string]any)
	if next["is_active"] != true {
		t.Errorf("new year is_active = %v, want true", next["is_active"])
	}

	rec = doRequest(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/years/%d", firstID), "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get first year status = %d", rec.Code)
	}
	resp = decodeResponse(t, rec)
	prev := resp.Data.(map[string]any)
	if prev["is_closed"] != true || prev["is_active"] != false {
		t.Errorf("prior year state = closed:%v active:%v, want closed and inactive",
			prev["is_closed"], prev["is_active"])
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t)
	yearID := createYear(t, srv)

	tests := []struct {
		name   string
		method string
		path   string
		role   string
		body   any
		status int
	}{
		{"member cannot create year", http.MethodPost, "/api/v1/years", "member", yearBody(), http.StatusForbidden},
		{"negative installments", http.MethodPost, "/api/v1/years", "admin", negativeInstallmentsBody(), http.StatusBadRequest},
		{"unknown year", http.MethodGet, "/api/v1/years/9999", "admin", nil, http.StatusNotFound},
		{"bad year id", http.MethodGet, "/api/v1/years/abc", "admin", nil, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/v1/years", "admin", map[string]any{"unknown_field": 1}, http.StatusBadRequest},
		{"member cannot toggle", http.MethodPost, "/api/v1/years/1/subscriptions/m1/installments/1/toggle", "member", nil, http.StatusForbidden},
	}
	_ = yearID

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, tt.method, tt.path, tt.role, tt.body)
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.status, rec.Body.String())
			}
			resp := decodeResponse(t, rec)
			if resp.Success {
				t.Error("error response has success = true")
			}
			if resp.Error == "" {
				t.Error("error response has empty error message")
			}
		})
	}
}

func TestMissingIdentityHeaders(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/years", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestToggleFlow(t *testing.T) {
	srv := newTestServer(t)
	yearID := createYear(t, srv)

	path := "/api/v1/years/1/subscriptions/member-1/installments/3/toggle"
	_ = yearID

	rec := doRequest(t, srv, http.MethodPost, path, "collector", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	if data["total_paid"] != "50.00" {
		t.Errorf("total_paid = %v, want 50.00", data["total_paid"])
	}

	// Toggling again reverts the payment.
	rec = doRequest(t, srv, http.MethodPost, path, "collector", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("second toggle status = %d", rec.Code)
	}
	resp = decodeResponse(t, rec)
	data = resp.Data.(map[string]any)
	if data["total_paid"] != "0.00" {
		t.Errorf("total_paid after revert = %v, want 0.00", data["total_paid"])
	}
}

func TestBalanceEndpointReflectsMutations(t *testing.T) {
	srv := newTestServer(t)
	createYear(t, srv)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/years/1/balance", "admin", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("balance status = %d", rec.Code)
	}
	resp := decodeResponse(t, rec)
	data := resp.Data.(map[string]any)
	if data["balance"] != "0.00" {
		t.Errorf("balance = %v, want 0.00", data["balance"])
	}

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/years/1/donations", "collector",
		map[string]any{"donor_name": "Donor", "amount": "120.00"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("donation status = %d, body %s", rec.Code, rec.Body.String())
	}

	// The mutation must invalidate the cached report.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/years/1/balance", "admin", nil)
	resp = decodeResponse(t, rec)
	data = resp.Data.(map[string]any)
	if data["balance"] != "120.00" {
		t.Errorf("balance after donation = %v, want 120.00", data["balance"])
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv := newTestServer(t)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/years", "member", nil)
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q", got)
	}
}
