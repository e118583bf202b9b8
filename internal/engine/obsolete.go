package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/doctrack/doctrack/internal/authz"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// blockingDependents lists active critical inbound edges whose source
// document is still live. Retiring a document other documents critically
// depend on would silently break them.
func blockingDependents(ctx context.Context, tx storage.Transaction, doc *types.Document) ([]string, error) {
	inbound, err := tx.GetInboundDependencies(ctx, doc.ID, true)
	if err != nil {
		return nil, err
	}
	var blocking []string
	for _, edge := range inbound {
		if !edge.IsCritical || edge.Type == types.DepSupersedes {
			continue
		}
		from, err := tx.GetDocument(ctx, edge.FromID)
		if err != nil {
			return nil, err
		}
		if from.Status.IsTerminal() {
			continue
		}
		blocking = append(blocking, fmt.Sprintf("%s %s (%s)", from.Number, from.FullVersion(), from.Status))
	}
	return blocking, nil
}

// ScheduleObsolescence retires an effective document. A nil date, or one not
// after today, obsoletes immediately; a future date parks the document in
// SCHEDULED_FOR_OBSOLESCENCE for the scheduler. Documents with live critical
// dependents cannot be retired.
func (e *Engine) ScheduleObsolescence(ctx context.Context, docID, actor string, when *time.Time, reason string) (*Result, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapApprove); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditObsolescenceScheduled, "document", docID)
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
		if doc.Status != types.StatusEffective {
			return types.NewDomainError(types.CodeInvalidTransition,
				fmt.Sprintf("only effective documents can be obsoleted, %s is %s", doc.Number, doc.Status))
		}
		// Retirement is reserved for the approver who released this version,
		// or a superuser.
		su, err := authz.IsSuperuser(ctx, tx, actor)
		if err != nil {
			return err
		}
		if !su {
			if err := requireActor(actor, doc.Approver, "approver"); err != nil {
				return err
			}
		}

		blocking, err := blockingDependents(ctx, tx, doc)
		if err != nil {
			return err
		}
		if len(blocking) > 0 {
			return types.NewDomainError(types.CodeDependentStillActive,
				fmt.Sprintf("document %s has active critical dependents", doc.Number), blocking...)
		}

		now := e.now()
		date := e.today()
		if when != nil {
			d := when.UTC()
			date = time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		}

		if date.After(e.today()) {
			// The obsolescence workflow stays open until the scheduler
			// processes the date; its due date is the retirement date.
			wf, err := e.recordWorkflow(ctx, tx, doc, types.WorkflowObsolescence,
				types.StatusScheduledForObsolescence, actor, &date, false)
			if err != nil {
				return err
			}
			if err := transition(ctx, tx, doc, types.StatusScheduledForObsolescence, actor, reason,
				wf.ID, types.AuditObsolescenceScheduled, map[string]interface{}{
					"obsolescence_date": date,
				}); err != nil {
				return err
			}
			*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wf.ID}
			return nil
		}

		wf, err := e.recordWorkflow(ctx, tx, doc, types.WorkflowObsolescence,
			types.StatusObsolete, actor, nil, true)
		if err != nil {
			return err
		}
		if err := transition(ctx, tx, doc, types.StatusObsolete, actor, reason,
			wf.ID, types.AuditDocObsoleted, map[string]interface{}{
				"obsolescence_date": date,
				"obsoleted_at":      now,
			}); err != nil {
			return err
		}
		staged = append(staged, notify.Notification{
			Event:          notify.EventDocumentObsolete,
			Recipient:      doc.Author,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
			Detail:         map[string]string{"reason": reason},
		})
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wf.ID}
		return nil
	})
	if err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditObsolescenceScheduled, "document", docID)
	}
	e.dispatch(staged)
	return res, nil
}

// TerminateDocument abandons a pre-effective document. Terminal and effective
// states cannot be terminated; the assignee of any open workflow is notified
// of the cancellation.
func (e *Engine) TerminateDocument(ctx context.Context, docID, actor, reason string) (*Result, error) {
	if reason == "" {
		return nil, types.MissingField("reason")
	}
	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditDocTerminated, "document", docID)
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

		// The termination decision is instantaneous; its instance records that
		// the workflow ran, and the terminal transition hangs off it.
		wf, err := e.recordWorkflow(ctx, tx, doc, types.WorkflowTermination,
			types.StatusTerminated, actor, nil, true)
		if err != nil {
			return err
		}

		now := e.now()
		if err := transition(ctx, tx, doc, types.StatusTerminated, actor, reason,
			wf.ID, types.AuditDocTerminated, map[string]interface{}{
				"terminated_at": now,
				"is_active":     false,
			}); err != nil {
			return err
		}

		cancelled, err := tx.TerminateOpenWorkflows(ctx, doc.ID)
		if err != nil {
			return err
		}
		for _, c := range cancelled {
			if c.CurrentAssignee == "" || c.CurrentAssignee == actor {
				continue
			}
			staged = append(staged, notify.Notification{
				Event:          notify.EventWorkflowCancelled,
				Recipient:      c.CurrentAssignee,
				DocumentNumber: doc.Number,
				DocumentTitle:  doc.Title,
				Version:        doc.FullVersion(),
				Detail:         map[string]string{"reason": reason},
			})
		}

		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, WorkflowID: wf.ID}
		return nil
	})
	if err != nil {
		if types.IsCode(err, types.CodePermissionDenied) {
			e.auditAccessDenied(ctx, actor, types.AuditDocTerminated, "document", docID, err.Error())
		}
		return nil, err
	}
	e.dispatch(staged)
	return res, nil
}
