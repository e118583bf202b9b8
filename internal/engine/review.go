package engine

import (
	"context"
	"fmt"

	"github.com/doctrack/doctrack/internal/authz"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// SubmitForReview moves a draft into the review pipeline and opens a review
// workflow assigned to the named reviewer. Both reviewer and approver are
// chosen up front; the approver can still be re-selected at routing time.
// Only the document's author may submit.
func (e *Engine) SubmitForReview(ctx context.Context, docID, actor, reviewer, approver, comment string) (*Result, error) {
	if reviewer == "" {
		return nil, types.MissingField("reviewer")
	}
	if approver == "" {
		return nil, types.MissingField("approver")
	}
	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditReviewSubmitted, "document", docID)
	}

	var (
		res    = &Result{}
		staged []notify.Notification
	)
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if err := requireActor(actor, doc.Author, "author"); err != nil {
			return err
		}
		if doc.FileReference == "" {
			return types.MissingField("document file")
		}
		if _, err := tx.GetUser(ctx, reviewer); err != nil {
			return err
		}
		if _, err := tx.GetUser(ctx, approver); err != nil {
			return err
		}

		var warnings []string
		if reviewer == approver {
			warnings = append(warnings,
				fmt.Sprintf("reviewer and approver are the same user (%s)", reviewer))
		}

		wf, err := e.newWorkflow(ctx, tx, doc, types.WorkflowReview,
			types.StatusPendingReview, actor, reviewer, e.opts.ReviewDueDays)
		if err != nil {
			return err
		}

		if err := transition(ctx, tx, doc, types.StatusPendingReview, actor, comment,
			wf.ID, types.AuditReviewSubmitted, map[string]interface{}{
				"reviewer": reviewer,
				"approver": approver,
			}); err != nil {
			return err
		}

		staged = append(staged, notify.Notification{
			Event:          notify.EventReviewRequested,
			Recipient:      reviewer,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
			Detail:         map[string]string{"submitted_by": actor},
		})
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status,
			WorkflowID: wf.ID, Warnings: warnings}
		return nil
	})
	if err != nil {
		if types.IsCode(err, types.CodePermissionDenied) {
			e.auditAccessDenied(ctx, actor, types.AuditReviewSubmitted, "document", docID, err.Error())
		}
		return nil, err
	}
	e.dispatch(staged)
	return res, nil
}

// AcceptReview acknowledges a pending review; only the assigned reviewer may
// accept.
func (e *Engine) AcceptReview(ctx context.Context, docID, actor, comment string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapReview); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditReviewAccepted, "document", docID)
	}

	res := &Result{}
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if err := requireActor(actor, doc.Reviewer, "reviewer"); err != nil {
			return err
		}
		wf, err := tx.GetActiveWorkflow(ctx, doc.ID)
		if err != nil {
			return err
		}
		wfID := ""
		if wf != nil {
			wfID = wf.ID
		}
		if err := transition(ctx, tx, doc, types.StatusUnderReview, actor, comment,
			wfID, types.AuditReviewAccepted, nil); err != nil {
			return err
		}
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wfID}
		return nil
	})
	if err != nil {
		if types.IsCode(err, types.CodePermissionDenied) {
			e.auditAccessDenied(ctx, actor, types.AuditReviewAccepted, "document", docID, err.Error())
		}
		return nil, err
	}
	return res, nil
}

// CompleteReview records the reviewer's verdict. Approval advances the
// document toward the approval phase; rejection returns it to draft and
// closes the review workflow. Exactly one notification goes to the author
// either way.
func (e *Engine) CompleteReview(ctx context.Context, docID, actor string, approved bool, comment string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapReview); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditReviewCompleted, "document", docID)
	}

	var (
		res    = &Result{}
		staged []notify.Notification
	)
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if err := requireActor(actor, doc.Reviewer, "reviewer"); err != nil {
			return err
		}
		wf, err := tx.GetActiveWorkflow(ctx, doc.ID)
		if err != nil {
			return err
		}
		wfID := ""
		if wf != nil {
			wfID = wf.ID
		}

		if approved {
			if err := transition(ctx, tx, doc, types.StatusReviewCompleted, actor, comment,
				wfID, types.AuditReviewCompleted, nil); err != nil {
				return err
			}
			// The ball is back in the author's court until routing.
			if wfID != "" {
				if err := tx.UpdateWorkflow(ctx, wfID, map[string]interface{}{
					"current_assignee": doc.Author,
				}); err != nil {
					return err
				}
			}
			staged = append(staged, notify.Notification{
				Event:          notify.EventReviewApproved,
				Recipient:      doc.Author,
				DocumentNumber: doc.Number,
				DocumentTitle:  doc.Title,
				Version:        doc.FullVersion(),
				Detail:         map[string]string{"reviewer": actor},
			})
		} else {
			if err := transition(ctx, tx, doc, types.StatusDraft, actor, comment,
				wfID, types.AuditReviewRejected, nil); err != nil {
				return err
			}
			if _, err := tx.TerminateOpenWorkflows(ctx, doc.ID); err != nil {
				return err
			}
			detail := map[string]string{"reviewer": actor}
			if comment != "" {
				detail["reason"] = comment
			}
			staged = append(staged, notify.Notification{
				Event:          notify.EventReviewRejected,
				Recipient:      doc.Author,
				DocumentNumber: doc.Number,
				DocumentTitle:  doc.Title,
				Version:        doc.FullVersion(),
				Detail:         detail,
			})
		}
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wfID}
		return nil
	})
	if err != nil {
		if types.IsCode(err, types.CodePermissionDenied) {
			e.auditAccessDenied(ctx, actor, types.AuditReviewCompleted, "document", docID, err.Error())
		}
		return nil, err
	}
	e.dispatch(staged)
	return res, nil
}

// RouteForApproval sends a review-completed document to its approver. An
// empty approver keeps the one named at submission; a non-empty one
// re-selects. Only the author routes, and routing to the same person who
// reviewed is legal but flagged with a warning.
func (e *Engine) RouteForApproval(ctx context.Context, docID, actor, approver, comment string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditApprovalRouted, "document", docID)
	}

	var (
		res    = &Result{}
		staged []notify.Notification
	)
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if err := requireActor(actor, doc.Author, "author"); err != nil {
			return err
		}
		if approver == "" {
			approver = doc.Approver
		}
		if approver == "" {
			return types.MissingField("approver")
		}
		if _, err := tx.GetUser(ctx, approver); err != nil {
			return err
		}

		var warnings []string
		if approver == doc.Reviewer {
			warnings = append(warnings,
				fmt.Sprintf("approver %s also reviewed this document", approver))
		}

		if _, err := tx.TerminateOpenWorkflows(ctx, doc.ID); err != nil {
			return err
		}
		wf, err := e.newWorkflow(ctx, tx, doc, types.WorkflowApproval,
			types.StatusPendingApproval, actor, approver, e.opts.ApprovalDueDays)
		if err != nil {
			return err
		}

		if err := transition(ctx, tx, doc, types.StatusPendingApproval, actor, comment,
			wf.ID, types.AuditApprovalRouted, map[string]interface{}{
				"approver": approver,
			}); err != nil {
			return err
		}

		staged = append(staged, notify.Notification{
			Event:          notify.EventApprovalRequested,
			Recipient:      approver,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
			Detail:         map[string]string{"routed_by": actor},
		})
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status,
			WorkflowID: wf.ID, Warnings: warnings}
		return nil
	})
	if err != nil {
		if types.IsCode(err, types.CodePermissionDenied) {
			e.auditAccessDenied(ctx, actor, types.AuditApprovalRouted, "document", docID, err.Error())
		}
		return nil, err
	}
	e.dispatch(staged)
	return res, nil
}
