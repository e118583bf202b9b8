package notify

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderReviewOutcomes(t *testing.T) {
	approved := Notification{
		Event: EventReviewApproved, Recipient: "alice",
		DocumentNumber: "SOP-2026-0001", DocumentTitle: "Cleaning", Version: "v01.00",
	}
	subject, _ := Render(approved)
	if !strings.Contains(subject, "Review Approved — Action Required") {
		t.Errorf("unexpected approved subject: %q", subject)
	}

	rejected := approved
	rejected.Event = EventReviewRejected
	subject, body := Render(rejected)
	if !strings.Contains(subject, "Review Rejected — Revision Required") {
		t.Errorf("unexpected rejected subject: %q", subject)
	}
	if !strings.Contains(body, "returned to draft") {
		t.Errorf("unexpected rejected body: %q", body)
	}
}

func TestRenderDetailOrdering(t *testing.T) {
	n := Notification{
		Event: EventWorkflowOverdue, Recipient: "bob",
		DocumentNumber: "SOP-2026-0002",
		Detail:         map[string]string{"due": "2026-08-01", "assignee": "bob"},
	}
	_, body := Render(n)
	if strings.Index(body, "assignee") > strings.Index(body, "due") {
		t.Error("expected detail keys in sorted order")
	}
}

func TestDispatchDefaultsToLog(t *testing.T) {
	var buf bytes.Buffer
	d := NewDispatcher("", log.New(&buf, "", 0))

	results := d.Dispatch(Notification{
		Event: EventDocumentEffective, Recipient: "alice",
		DocumentNumber: "SOP-2026-0003",
	})
	if len(results) != 1 || results[0].Channel != "log" || !results[0].Success {
		t.Fatalf("unexpected results: %+v", results)
	}
	if !strings.Contains(buf.String(), "SOP-2026-0003") {
		t.Errorf("expected log output to name the document, got %q", buf.String())
	}
}

func TestDispatchRoutesFromConfig(t *testing.T) {
	dir := t.TempDir()
	routesPath := filepath.Join(dir, "routes.yaml")
	routes := `
routes:
  default: [log]
  integrity_alert: [log, webhook]
contacts:
  webhook_url: ""
`
	if err := os.WriteFile(routesPath, []byte(routes), 0o600); err != nil {
		t.Fatalf("failed to write routes: %v", err)
	}

	var buf bytes.Buffer
	d := NewDispatcher(routesPath, log.New(&buf, "", 0))

	results := d.Dispatch(Notification{Event: EventIntegrityAlert, Recipient: "admins"})
	if len(results) != 2 {
		t.Fatalf("expected 2 channels, got %+v", results)
	}
	if !results[0].Success {
		t.Errorf("expected log channel to succeed: %+v", results[0])
	}
	// Webhook has no URL configured; the failure is recorded, not raised.
	if results[1].Success {
		t.Errorf("expected webhook channel to fail without URL: %+v", results[1])
	}
}

func TestUnknownChannelRecorded(t *testing.T) {
	dir := t.TempDir()
	routesPath := filepath.Join(dir, "routes.yaml")
	routes := "routes:\n  default: [pager]\n"
	if err := os.WriteFile(routesPath, []byte(routes), 0o600); err != nil {
		t.Fatalf("failed to write routes: %v", err)
	}

	d := NewDispatcher(routesPath, log.New(&bytes.Buffer{}, "", 0))
	results := d.Dispatch(Notification{Event: EventHealthReport, Recipient: "admins"})
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected unknown channel failure, got %+v", results)
	}
}
