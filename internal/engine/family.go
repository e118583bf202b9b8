package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/doctrack/doctrack/internal/artifact"
	"github.com/doctrack/doctrack/internal/files"
	"github.com/doctrack/doctrack/internal/graph"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// graphCheckCritical gates effectivity on critical dependencies. An open
// Transaction satisfies graph.Resolver.
func graphCheckCritical(ctx context.Context, tx storage.Transaction, doc *types.Document) error {
	return graph.CheckCriticalDependencies(ctx, tx, doc)
}

// makeEffective is the single path a document takes into EFFECTIVE, shared by
// immediate approval and the scheduler's dated release. Inside the caller's
// transaction it gates on critical dependencies, supersedes the family's
// current effective member, applies the transition, renders and stores the
// signed release PDF, and closes open workflows. At most one family member is
// EFFECTIVE when the transaction commits.
func (e *Engine) makeEffective(ctx context.Context, tx storage.Transaction,
	doc *types.Document, actor string, effDate, now time.Time, wfID string) ([]string, []notify.Notification, error) {

	if err := graphCheckCritical(ctx, tx, doc); err != nil {
		return nil, nil, err
	}

	var staged []notify.Notification

	prior, err := tx.LatestEffective(ctx, doc.FamilyKey)
	if err != nil {
		return nil, nil, err
	}
	if prior != nil && prior.ID != doc.ID {
		if err := transition(ctx, tx, prior, types.StatusSuperseded, actor,
			fmt.Sprintf("superseded by %s", doc.FullVersion()),
			"", types.AuditDocSuperseded, nil); err != nil {
			return nil, nil, err
		}
		if err := tx.AddDependency(ctx, &types.Dependency{
			ID:        uuid.NewString(),
			FromID:    doc.ID,
			ToID:      prior.ID,
			Type:      types.DepSupersedes,
			IsActive:  true,
			CreatedAt: now,
			CreatedBy: types.SystemActor,
		}); err != nil {
			return nil, nil, err
		}
	}

	updates := map[string]interface{}{
		"effective_date": effDate,
	}
	if doc.ApprovedAt != nil {
		updates["approved_at"] = *doc.ApprovedAt
		updates["approver"] = doc.Approver
	}

	docType, err := tx.GetDocumentType(ctx, doc.TypeCode)
	if err != nil {
		return nil, nil, err
	}
	if docType.RequiresPeriodicReview && doc.NextPeriodicReviewDate == nil {
		next := effDate.AddDate(0, docType.ReviewIntervalMonths, 0)
		updates["next_periodic_review_date"] = next
		doc.NextPeriodicReviewDate = &next
	}

	if err := transition(ctx, tx, doc, types.StatusEffective, actor, "",
		wfID, types.AuditDocEffectiveProcessed, updates); err != nil {
		return nil, nil, err
	}
	doc.EffectiveDate = &effDate

	if err := e.renderSignedArtifact(ctx, tx, doc, docType, now); err != nil {
		return nil, nil, err
	}

	if _, err := tx.TerminateOpenWorkflows(ctx, doc.ID); err != nil {
		return nil, nil, err
	}

	staged = append(staged, notify.Notification{
		Event:          notify.EventDocumentEffective,
		Recipient:      doc.Author,
		DocumentNumber: doc.Number,
		DocumentTitle:  doc.Title,
		Version:        doc.FullVersion(),
		Detail:         map[string]string{"effective_date": effDate.Format("2006-01-02")},
	})
	return nil, staged, nil
}

// renderSignedArtifact builds the signed release PDF from the document's
// uploaded content and records the DOC_SIGNED entry. A document can go
// effective even if its content is not substitutable text; the body is
// treated as a placeholder template either way.
func (e *Engine) renderSignedArtifact(ctx context.Context, tx storage.Transaction,
	doc *types.Document, docType *types.DocumentType, now time.Time) error {

	content, err := e.files.Read(doc.FileReference)
	if err != nil {
		return err
	}

	members, err := tx.FamilyMembers(ctx, doc.FamilyKey)
	if err != nil {
		return err
	}

	signer := doc.Approver
	if signer == "" {
		signer = types.SystemActor
	}
	res, err := artifact.Render(artifact.Context{
		Doc:          doc,
		DocTypeName:  docType.Name,
		Organization: e.opts.Organization,
		SystemName:   e.opts.SystemName,
		Now:          now,
		History:      artifact.BuildHistory(members, doc.ID),
		Extra:        e.opts.ExtraPlaceholders,
	}, string(content), signer)
	if err != nil {
		return fmt.Errorf("failed to render release document: %w", err)
	}

	key := files.SignedKey(doc.ID, doc.FullVersion())
	if _, err := e.files.Write(key, res.PDF); err != nil {
		return err
	}
	if err := tx.UpdateDocument(ctx, doc.ID, map[string]interface{}{
		"signed_reference": key,
	}); err != nil {
		return err
	}
	doc.SignedReference = key

	return tx.AppendAuditEntry(ctx, &types.AuditEntry{
		Actor:             signer,
		Action:            types.AuditDocSigned,
		TargetKind:        "document",
		TargetID:          doc.ID,
		TargetDisplayName: doc.Number,
		Description:       "release document signed",
		Metadata: map[string]string{
			"signed_reference": key,
			"sha256":           res.Checksum,
			"content_sha256":   res.Signature.PDFChecksum,
		},
	})
}

// ProcessEffectiveDate releases a document whose effective date has arrived.
// Called by the scheduler as the system actor; releasing early is refused.
func (e *Engine) ProcessEffectiveDate(ctx context.Context, docID string) (*Result, error) {
	var (
		res    = &Result{}
		staged []notify.Notification
	)
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Status != types.StatusApprovedPendingEffective {
			return types.InvalidTransition(doc.Status, types.StatusEffective)
		}
		if doc.EffectiveDate == nil {
			return types.MissingField("effective_date")
		}
		if doc.EffectiveDate.After(e.now()) {
			return types.NewDomainError(types.CodeConflict,
				fmt.Sprintf("document %s is not due until %s", doc.Number,
					doc.EffectiveDate.Format("2006-01-02")))
		}

		warnings, ns, err := e.makeEffective(ctx, tx, doc, types.SystemActor,
			*doc.EffectiveDate, e.now(), "")
		if err != nil {
			return err
		}
		staged = append(staged, ns...)
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(staged)
	return res, nil
}

// ProcessObsolescence retires a document whose scheduled obsolescence date
// has arrived. Called by the scheduler as the system actor.
func (e *Engine) ProcessObsolescence(ctx context.Context, docID string) (*Result, error) {
	var (
		res    = &Result{}
		staged []notify.Notification
	)
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Status != types.StatusScheduledForObsolescence {
			return types.InvalidTransition(doc.Status, types.StatusObsolete)
		}
		if doc.ObsolescenceDate != nil && doc.ObsolescenceDate.After(e.now()) {
			return types.NewDomainError(types.CodeConflict,
				fmt.Sprintf("document %s is not due until %s", doc.Number,
					doc.ObsolescenceDate.Format("2006-01-02")))
		}

		// The obsolescence workflow opened at scheduling time closes here.
		wf, err := tx.GetActiveWorkflow(ctx, doc.ID)
		if err != nil {
			return err
		}
		wfID := ""
		if wf != nil {
			wfID = wf.ID
		}

		now := e.now()
		if err := transition(ctx, tx, doc, types.StatusObsolete, types.SystemActor, "",
			wfID, types.AuditDocObsoleted, map[string]interface{}{
				"obsoleted_at": now,
			}); err != nil {
			return err
		}
		if _, err := tx.TerminateOpenWorkflows(ctx, doc.ID); err != nil {
			return err
		}

		staged = append(staged, notify.Notification{
			Event:          notify.EventDocumentObsolete,
			Recipient:      doc.Author,
			DocumentNumber: doc.Number,
			DocumentTitle:  doc.Title,
			Version:        doc.FullVersion(),
		})
		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.dispatch(staged)
	return res, nil
}
