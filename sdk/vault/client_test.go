package vault

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestInitiateReclaimSendsPayload(t *testing.T) {
	t.Parallel()

	var captured struct {
		method string
		path   string
		body   string
		idem   string
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		captured.method = r.Method
		captured.path = r.URL.Path
		captured.body = string(body)
		captured.idem = r.Header.Get("Idempotency-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"0x01","status":"ReclaimInitiated","totalCompensation":"400","reclaim":{"initiator":"0xaa","escrowEndsAt":3600}}`))
	}))
	defer server.Close()

	client, err := New(server.URL, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	v, err := client.InitiateReclaim(context.Background(), "0x01", "0xaa", "800", "0xpool", WithIdempotencyKey("reclaim-1"))
	if err != nil {
		t.Fatalf("initiate: %v", err)
	}
	if v.Status != "ReclaimInitiated" || v.TotalCompensation != "400" {
		t.Fatalf("unexpected vault: %+v", v)
	}
	if v.Reclaim == nil || v.Reclaim.EscrowEndsAt != 3600 {
		t.Fatalf("expected reclaim block, got %+v", v.Reclaim)
	}
	if captured.method != http.MethodPost || captured.path != "/vaults/0x01/reclaim" {
		t.Fatalf("unexpected request %s %s", captured.method, captured.path)
	}
	if !strings.Contains(captured.body, `"amount":"800"`) || !strings.Contains(captured.body, `"pool":"0xpool"`) {
		t.Fatalf("unexpected body %s", captured.body)
	}
	if captured.idem != "reclaim-1" {
		t.Fatalf("expected idempotency header, got %q", captured.idem)
	}
}

func TestAPIErrorCarriesIneligibility(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"error":"reclaim not eligible","reason":"volume_too_low","required":"10","actual":"3"}`))
	}))
	defer server.Close()

	client, err := New(server.URL, WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.InitiateReclaim(context.Background(), "0x01", "0xaa", "800", "0xpool")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnprocessableEntity || apiErr.Reason != "volume_too_low" || apiErr.Required != "10" || apiErr.Actual != "3" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestSetPausedSendsAdminToken(t *testing.T) {
	t.Parallel()

	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"paused":true}`))
	}))
	defer server.Close()

	client, err := New(server.URL, WithHTTPClient(server.Client()), WithAdminToken(" op-token "))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	paused, err := client.SetPaused(context.Background(), true)
	if err != nil {
		t.Fatalf("set paused: %v", err)
	}
	if !paused || auth != "Bearer op-token" {
		t.Fatalf("unexpected result paused=%v auth=%q", paused, auth)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New("  "); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}
