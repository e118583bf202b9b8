// Package notify dispatches lifecycle event notifications to configured
// channels. Dispatch is fire-and-forget: a failed notification is logged and
// never propagates back into the transaction that produced the event.
package notify

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gopkg.in/yaml.v3"
)

// Event identifies a notification-worthy lifecycle occurrence. Each event
// maps to exactly one message template.
type Event string

// Notification events
const (
	EventReviewRequested   Event = "review_requested"
	EventReviewApproved    Event = "review_approved"
	EventReviewRejected    Event = "review_rejected"
	EventApprovalRequested Event = "approval_requested"
	EventApprovalRejected  Event = "approval_rejected"
	EventDocumentApproved  Event = "document_approved"
	EventDocumentEffective Event = "document_effective"
	EventDocumentObsolete  Event = "document_obsolete"
	EventWorkflowOverdue   Event = "workflow_overdue"
	EventWorkflowCancelled Event = "workflow_cancelled"
	EventPeriodicReviewDue Event = "periodic_review_due"
	EventIntegrityAlert    Event = "integrity_alert"
	EventHealthReport      Event = "health_report"
)

// Notification is one message to one recipient.
type Notification struct {
	Event     Event
	Recipient string

	DocumentNumber string
	DocumentTitle  string
	Version        string

	// Detail carries event-specific context rendered into the body,
	// e.g. a rejection reason or a due date.
	Detail map[string]string
}

// RoutesConfig maps events to delivery channels. Channels are "log",
// "email", or "webhook". Events without a route use the default route.
type RoutesConfig struct {
	Routes   map[string][]string `yaml:"routes"`
	Contacts map[string]string   `yaml:"contacts"`
}

// DispatchResult records the outcome on one channel.
type DispatchResult struct {
	Channel string
	Success bool
	Error   string
}

// Dispatcher routes notifications to channels.
type Dispatcher struct {
	config     *RoutesConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewDispatcher creates a dispatcher from a routes file. A missing or empty
// path yields a dispatcher that logs every notification.
func NewDispatcher(routesPath string, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.Default()
	}
	d := &Dispatcher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
	if routesPath == "" {
		return d
	}
	data, err := os.ReadFile(routesPath)
	if err != nil {
		logger.Printf("notify: cannot read routes config %s: %v", routesPath, err)
		return d
	}
	var cfg RoutesConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		logger.Printf("notify: cannot parse routes config %s: %v", routesPath, err)
		return d
	}
	d.config = &cfg
	return d
}

// Dispatch sends a notification to every configured channel for its event.
// Errors are recorded in the results and logged, never returned.
func (d *Dispatcher) Dispatch(n Notification) []DispatchResult {
	subject, body := Render(n)

	var results []DispatchResult
	for _, channel := range d.channelsFor(n.Event) {
		result := DispatchResult{Channel: channel}
		var err error
		switch channel {
		case "log":
			d.logger.Printf("notify: [%s] to=%s subject=%q", n.Event, n.Recipient, subject)
		case "email":
			err = d.sendEmail(n.Recipient, subject, body)
		case "webhook":
			err = d.sendWebhook(n, subject)
		default:
			err = fmt.Errorf("unknown channel %q", channel)
		}
		result.Success = err == nil
		if err != nil {
			result.Error = err.Error()
			d.logger.Printf("notify: %s dispatch failed for %s: %v", channel, n.Event, err)
		}
		results = append(results, result)
	}
	return results
}

// DispatchAll sends a batch of notifications, typically staged during a
// transaction and flushed after commit.
func (d *Dispatcher) DispatchAll(ns []Notification) {
	for _, n := range ns {
		d.Dispatch(n)
	}
}

func (d *Dispatcher) channelsFor(event Event) []string {
	if d.config == nil || len(d.config.Routes) == 0 {
		return []string{"log"}
	}
	if routes, ok := d.config.Routes[string(event)]; ok && len(routes) > 0 {
		return routes
	}
	if routes, ok := d.config.Routes["default"]; ok && len(routes) > 0 {
		return routes
	}
	return []string{"log"}
}

func (d *Dispatcher) contact(name string) string {
	if d.config == nil {
		return ""
	}
	return d.config.Contacts[name]
}

// sendEmail delivers through the system mail command. The recipient is
// resolved through the contacts map first so usernames can map to addresses.
func (d *Dispatcher) sendEmail(recipient, subject, body string) error {
	to := d.contact(recipient + "_email")
	if to == "" {
		to = recipient
	}
	cmd := exec.Command("mail", "-s", subject, to)
	cmd.Stdin = strings.NewReader(body)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("mail command failed: %w", err)
	}
	return nil
}

// sendWebhook posts the notification as JSON, retrying transient failures
// with exponential backoff.
func (d *Dispatcher) sendWebhook(n Notification, subject string) error {
	url := d.contact("webhook_url")
	if url == "" {
		return fmt.Errorf("no webhook URL configured")
	}

	payload := fmt.Sprintf(
		`{"event":%q,"recipient":%q,"document":%q,"title":%q,"subject":%q}`,
		n.Event, n.Recipient, n.DocumentNumber, n.DocumentTitle, subject)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(func() error {
		req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader([]byte(payload)))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Doctrack-Event", string(n.Event))

		resp, err := d.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode >= 500 {
			body, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body))
		}
		if resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			return backoff.Permanent(fmt.Errorf("webhook returned %d: %s", resp.StatusCode, string(body)))
		}
		return nil
	}, bo)
}
