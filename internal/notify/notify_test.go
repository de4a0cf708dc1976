package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/CosmoTheDev/procwatch/internal/config"
	"github.com/CosmoTheDev/procwatch/models"
)

func scanLog(status string) *models.ScanLog {
	now := time.Now().UTC()
	return &models.ScanLog{
		ID:          7,
		StartedAt:   now,
		CompletedAt: &now,
		Status:      status,
		Trigger:     models.TriggerScheduled,
	}
}

func TestBuildEventChangesDetected(t *testing.T) {
	h2, h3 := "h2", "h3"
	pending := []models.DetectedChange{
		{FullName: "dbo.GetOrders", ObjectType: models.KindProcedure, ChangeType: models.ChangeModified, PreviousHash: &h2, CurrentHash: &h3, TenantCode: "acme", Environment: "production"},
		{FullName: "dbo.NewView", ObjectType: models.KindView, ChangeType: models.ChangeCreated, CurrentHash: &h3, TenantCode: "acme", Environment: "production"},
	}
	log := scanLog(models.ScanStatusCompleted)
	log.TotalChangesDetected = 2

	evt := buildEvent(log, nil, pending)
	if evt.Type != EventChangesDetected {
		t.Fatalf("type = %q", evt.Type)
	}
	if !strings.Contains(evt.Body, "~ dbo.GetOrders") || !strings.Contains(evt.Body, "+ dbo.NewView") {
		t.Fatalf("body:\n%s", evt.Body)
	}
	if evt.Metadata["changes_detected"] != 2 {
		t.Fatalf("metadata: %+v", evt.Metadata)
	}
}

func TestBuildEventBodyTruncatesChangeList(t *testing.T) {
	h := "h"
	pending := make([]models.DetectedChange, maxChangeLines+10)
	for i := range pending {
		pending[i] = models.DetectedChange{FullName: "dbo.P", ChangeType: models.ChangeModified, PreviousHash: &h, CurrentHash: &h}
	}
	evt := buildEvent(scanLog(models.ScanStatusCompleted), nil, pending)
	if !strings.Contains(evt.Body, "... and 10 more") {
		t.Fatalf("body not truncated:\n%s", evt.Body)
	}
}

func TestBuildEventFailedScan(t *testing.T) {
	log := scanLog(models.ScanStatusFailed)
	log.ErrorSummary = "Cancelled"
	evt := buildEvent(log, nil, nil)
	if evt.Type != EventScanFailed || !strings.Contains(evt.Body, "Cancelled") {
		t.Fatalf("evt: %+v", evt)
	}
}

func TestDispatcherQuietOnCleanScan(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	d := NewDispatcher(config.NotifyConfig{Webhook: config.WebhookNotifyConfig{URL: srv.URL}})
	if !d.IsAnyConfigured() {
		t.Fatal("webhook channel should be configured")
	}
	d.Notify(context.Background(), scanLog(models.ScanStatusCompleted), nil, nil)
	if called {
		t.Fatal("clean scan with no changes must not notify")
	}
}

func TestWebhookSignsPayload(t *testing.T) {
	const secret = "hush"
	var gotSig string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Procwatch-Signature")
		gotBody, _ = io.ReadAll(r.Body)
	}))
	defer srv.Close()

	ch := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL, Secret: secret})
	evt := Event{Type: EventChangesDetected, Title: "t", Body: "b"}
	if err := ch.Send(context.Background(), evt); err != nil {
		t.Fatal(err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(gotBody)
	want := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	if gotSig != want {
		t.Fatalf("signature = %q, want %q", gotSig, want)
	}

	var payload map[string]any
	if err := json.Unmarshal(gotBody, &payload); err != nil {
		t.Fatal(err)
	}
	if payload["type"] != EventChangesDetected {
		t.Fatalf("payload: %+v", payload)
	}
}

func TestWebhookRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhook(config.WebhookNotifyConfig{URL: srv.URL})
	if err := ch.Send(context.Background(), Event{Type: EventScanFailed}); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestUnconfiguredChannels(t *testing.T) {
	d := NewDispatcher(config.NotifyConfig{})
	if d.IsAnyConfigured() {
		t.Fatal("no channels should be configured")
	}
	if (&EmailChannel{}).IsConfigured() {
		t.Fatal("empty email config reported configured")
	}
}
