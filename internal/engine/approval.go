package engine

import (
	"context"
	"time"

	"github.com/doctrack/doctrack/internal/authz"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// AcceptApproval acknowledges a pending approval; only the assigned approver
// may accept.
func (e *Engine) AcceptApproval(ctx context.Context, docID, actor, comment string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapApprove); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditApprovalAccepted, "document", docID)
	}

	res := &Result{}
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if err := requireActor(actor, doc.Approver, "approver"); err != nil {
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
		if err := transition(ctx, tx, doc, types.StatusUnderApproval, actor, comment,
			wfID, types.AuditApprovalAccepted, nil); err != nil {
			return err
		}
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wfID}
		return nil
	})
	if err != nil {
		if types.IsCode(err, types.CodePermissionDenied) {
			e.auditAccessDenied(ctx, actor, types.AuditApprovalAccepted, "document", docID, err.Error())
		}
		return nil, err
	}
	return res, nil
}

// ApproveDocument records the approval decision. The effective date is
// required: a date not after today makes the document effective immediately,
// a future date parks it in APPROVED_PENDING_EFFECTIVE for the scheduler.
// Critical dependency gating runs before anything is written.
func (e *Engine) ApproveDocument(ctx context.Context, docID, actor string, effectiveDate *time.Time, comment string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapApprove); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditDocApproved, "document", docID)
	}
	if effectiveDate == nil {
		return nil, types.MissingField("effective_date")
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
		if err := requireActor(actor, doc.Approver, "approver"); err != nil {
			return err
		}
		if doc.Status != types.StatusUnderApproval {
			return types.InvalidTransition(doc.Status, types.StatusEffective)
		}

		wf, err := tx.GetActiveWorkflow(ctx, doc.ID)
		if err != nil {
			return err
		}
		wfID := ""
		if wf != nil {
			wfID = wf.ID
		}

		now := e.now()
		d := effectiveDate.UTC()
		effDate := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)

		if err := tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditDocApproved,
			TargetKind:        "document",
			TargetID:          doc.ID,
			TargetDisplayName: doc.Number,
			Description:       comment,
			Metadata:          map[string]string{"effective_date": effDate.Format("2006-01-02")},
		}); err != nil {
			return err
		}
		doc.ApprovedAt = &now
		doc.Approver = actor

		staged = append(staged, notify.Notification{
			Event:          notify.EventDocumentApproved,
			Recipient:      doc.Author,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
			Detail:         map[string]string{"approver": actor, "effective_date": effDate.Format("2006-01-02")},
		})

		if !effDate.After(e.today()) {
			warnings, ns, err := e.makeEffective(ctx, tx, doc, actor, effDate, now, wfID)
			if err != nil {
				return err
			}
			staged = append(staged, ns...)
			*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status,
				WorkflowID: wfID, Warnings: warnings}
			return nil
		}

		// Future effective date: gating still runs now so an approval can
		// never park a document the scheduler would refuse to release.
		if err := graphCheckCritical(ctx, tx, doc); err != nil {
			return err
		}
		if err := transition(ctx, tx, doc, types.StatusApprovedPendingEffective, actor, comment,
			wfID, types.AuditDocApprovedPendingEffective, map[string]interface{}{
				"effective_date": effDate,
				"approved_at":    now,
				"approver":       actor,
			}); err != nil {
			return err
		}
		if _, err := tx.TerminateOpenWorkflows(ctx, doc.ID); err != nil {
			return err
		}
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wfID}
		return nil
	})
	if err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditDocApproved, "document", docID)
	}
	e.dispatch(staged)
	return res, nil
}

// RejectApproval returns a document under approval to draft. Reviewer and
// approver assignments are cleared so the next cycle reassigns them fresh.
func (e *Engine) RejectApproval(ctx context.Context, docID, actor, comment string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapApprove); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditApprovalRejected, "document", docID)
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
		if err := requireActor(actor, doc.Approver, "approver"); err != nil {
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

		if err := transition(ctx, tx, doc, types.StatusDraft, actor, comment,
			wfID, types.AuditApprovalRejected, map[string]interface{}{
				"reviewer": nil,
				"approver": nil,
			}); err != nil {
			return err
		}
		if _, err := tx.TerminateOpenWorkflows(ctx, doc.ID); err != nil {
			return err
		}

		detail := map[string]string{"approver": actor}
		if comment != "" {
			detail["reason"] = comment
		}
		staged = append(staged, notify.Notification{
			Event:          notify.EventApprovalRejected,
			Recipient:      doc.Author,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
			Detail:         detail,
		})
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wfID}
		return nil
	})
	if err != nil {
		if types.IsCode(err, types.CodePermissionDenied) {
			e.auditAccessDenied(ctx, actor, types.AuditApprovalRejected, "document", docID, err.Error())
		}
		return nil, err
	}
	e.dispatch(staged)
	return res, nil
}
