package notify

import (
	"fmt"
	"sort"
	"strings"
)

// Render produces the single subject and body for a notification. The
// template set is closed: every event has exactly one message, so a lifecycle
// operation can never fan out duplicate emails to the same recipient.
func Render(n Notification) (subject, body string) {
	doc := n.DocumentNumber
	if doc == "" {
		doc = "document"
	}

	switch n.Event {
	case EventReviewRequested:
		subject = fmt.Sprintf("Review Requested: %s", doc)
		body = fmt.Sprintf("You have been assigned to review %s %q %s.", doc, n.DocumentTitle, n.Version)
	case EventReviewApproved:
		subject = fmt.Sprintf("Review Approved — Action Required: %s", doc)
		body = fmt.Sprintf("The review of %s %q %s was approved. Route the document for approval to continue.", doc, n.DocumentTitle, n.Version)
	case EventReviewRejected:
		subject = fmt.Sprintf("Review Rejected — Revision Required: %s", doc)
		body = fmt.Sprintf("The review of %s %q %s was rejected. The document has returned to draft.", doc, n.DocumentTitle, n.Version)
	case EventApprovalRequested:
		subject = fmt.Sprintf("Approval Requested: %s", doc)
		body = fmt.Sprintf("You have been assigned to approve %s %q %s.", doc, n.DocumentTitle, n.Version)
	case EventApprovalRejected:
		subject = fmt.Sprintf("Approval Rejected: %s", doc)
		body = fmt.Sprintf("The approval of %s %q %s was rejected. The document has returned to draft.", doc, n.DocumentTitle, n.Version)
	case EventDocumentApproved:
		subject = fmt.Sprintf("Document Approved: %s", doc)
		body = fmt.Sprintf("%s %q %s was approved.", doc, n.DocumentTitle, n.Version)
	case EventDocumentEffective:
		subject = fmt.Sprintf("Document Effective: %s", doc)
		body = fmt.Sprintf("%s %q %s is now effective.", doc, n.DocumentTitle, n.Version)
	case EventDocumentObsolete:
		subject = fmt.Sprintf("Document Obsolete: %s", doc)
		body = fmt.Sprintf("%s %q %s is now obsolete.", doc, n.DocumentTitle, n.Version)
	case EventWorkflowOverdue:
		subject = fmt.Sprintf("Workflow Overdue: %s", doc)
		body = fmt.Sprintf("The workflow on %s %q is past its due date. Please take action.", doc, n.DocumentTitle)
	case EventWorkflowCancelled:
		subject = fmt.Sprintf("Workflow Cancelled: %s", doc)
		body = fmt.Sprintf("The workflow assigned to you on %s %q was cancelled.", doc, n.DocumentTitle)
	case EventPeriodicReviewDue:
		subject = fmt.Sprintf("Periodic Review Due: %s", doc)
		body = fmt.Sprintf("%s %q %s is due for periodic review.", doc, n.DocumentTitle, n.Version)
	case EventIntegrityAlert:
		subject = "Integrity Alert: audit chain divergence"
		body = "The audit chain failed verification. Investigate immediately."
	case EventHealthReport:
		subject = "Daily Health Report"
		body = "Scheduled task summary for the last 24 hours."
	default:
		subject = fmt.Sprintf("Notification: %s", n.Event)
		body = fmt.Sprintf("Event %s on %s.", n.Event, doc)
	}

	if len(n.Detail) > 0 {
		keys := make([]string, 0, len(n.Detail))
		for k := range n.Detail {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var extra strings.Builder
		extra.WriteString(body)
		extra.WriteString("\n")
		for _, k := range keys {
			extra.WriteString(fmt.Sprintf("\n%s: %s", k, n.Detail[k]))
		}
		body = extra.String()
	}
	return subject, body
}
