package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"alertbridge/internal/alert"
	"alertbridge/internal/tracker"
	logx "alertbridge/pkg/logx"
)

type fakeProcessor struct {
	events []alert.Event
	err    error
}

func (f *fakeProcessor) Process(_ context.Context, ev alert.Event) (tracker.Transition, error) {
	if f.err != nil {
		return tracker.TransitionNone, f.err
	}
	f.events = append(f.events, ev)
	return tracker.TransitionNew, nil
}

func postWebhook(t *testing.T, srv *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhook/grafana", strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestWebhookNormalizesAlerts(t *testing.T) {
	t.Parallel()
	fp := &fakeProcessor{}
	srv := NewServer(fp, logx.Nop())

	rr := postWebhook(t, srv, `{
		"status": "firing",
		"alerts": [
			{"status": "firing", "fingerprint": "abc123", "labels": {"alertname": "HighCPU", "severity": "critical"}},
			{"status": "resolved", "fingerprint": "def456", "labels": {"severity": "warning"}}
		]
	}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	if len(fp.events) != 2 {
		t.Fatalf("events = %+v", fp.events)
	}
	if fp.events[0].Fingerprint != "abc123" || fp.events[0].Severity != "critical" || fp.events[0].Status != alert.StatusFiring {
		t.Fatalf("first event: %+v", fp.events[0])
	}
	if fp.events[1].Status != alert.StatusResolved {
		t.Fatalf("second event: %+v", fp.events[1])
	}
	// Payload carried verbatim.
	if !strings.Contains(string(fp.events[0].Payload), `"alertname": "HighCPU"`) {
		t.Fatalf("payload not verbatim: %s", fp.events[0].Payload)
	}

	var resp webhookResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Received != 2 || resp.Processed != 2 || resp.Rejected != 0 {
		t.Fatalf("response = %+v", resp)
	}
}

func TestWebhookDerivesFingerprintFromLabels(t *testing.T) {
	t.Parallel()
	fp := &fakeProcessor{}
	srv := NewServer(fp, logx.Nop())

	body := `{"alerts": [{"status": "firing", "labels": {"alertname": "NoFp", "severity": "warning"}}]}`
	if rr := postWebhook(t, srv, body); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	first := fp.events[0].Fingerprint
	if first == "" {
		t.Fatal("no fingerprint derived")
	}
	// Same labels, same fingerprint.
	if rr := postWebhook(t, srv, body); rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if fp.events[1].Fingerprint != first {
		t.Fatalf("derived fingerprint unstable: %q vs %q", first, fp.events[1].Fingerprint)
	}
}

func TestWebhookRejectsUnusableAlerts(t *testing.T) {
	t.Parallel()
	fp := &fakeProcessor{}
	srv := NewServer(fp, logx.Nop())

	rr := postWebhook(t, srv, `{"alerts": [
		{"status": "firing"},
		{"status": "firing", "fingerprint": "ok1", "labels": {"severity": "warning"}}
	]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp webhookResponse
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp.Received != 2 || resp.Processed != 1 || resp.Rejected != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if len(fp.events) != 1 || fp.events[0].Fingerprint != "ok1" {
		t.Fatalf("events = %+v", fp.events)
	}
}

func TestWebhookBadBody(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeProcessor{}, logx.Nop())
	if rr := postWebhook(t, srv, `{nope`); rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestWebhookProcessorFailure(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeProcessor{err: errors.New("db gone")}, logx.Nop())
	rr := postWebhook(t, srv, `{"alerts": [{"status": "firing", "fingerprint": "x"}]}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()
	srv := NewServer(&fakeProcessor{}, logx.Nop())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz = %d %q", rr.Code, rr.Body.String())
	}
}
