package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/doctrack/doctrack/internal/authz"
	"github.com/doctrack/doctrack/internal/graph"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// VersionBump selects how the version number advances on up-version.
type VersionBump string

// Version bump kinds
const (
	BumpMinor VersionBump = "minor"
	BumpMajor VersionBump = "major"
)

// StartVersionInput is the payload for StartVersionWorkflow.
type StartVersionInput struct {
	Bump             VersionBump
	ReasonForChange  string
	SummaryOfChanges string

	// Reviewer and Approver, when both set, send the new draft straight into
	// review. Left empty, the draft waits for revised content.
	Reviewer string
	Approver string
}

// StartVersionWorkflow creates the next version of an effective document as a
// new draft in the same family, inheriting the base version's content
// reference and its dependencies re-resolved to current effective targets.
// The number stays constant across the family. With a reviewer and approver
// named, the draft is submitted for review immediately; otherwise the author
// attaches revised content and submits it like any other draft.
//
// At most one pre-effective version may exist per family at a time; a second
// concurrent up-version fails with CONFLICT.
func (e *Engine) StartVersionWorkflow(ctx context.Context, docID, actor string, in StartVersionInput) (*Result, error) {
	if in.ReasonForChange == "" {
		return nil, types.MissingField("reason_for_change")
	}
	if in.SummaryOfChanges == "" {
		return nil, types.MissingField("summary_of_changes")
	}
	if in.Bump != BumpMinor && in.Bump != BumpMajor {
		return nil, types.NewDomainError(types.CodeMissingRequiredField,
			fmt.Sprintf("version bump must be %q or %q", BumpMinor, BumpMajor))
	}
	if (in.Reviewer == "") != (in.Approver == "") {
		return nil, types.NewDomainError(types.CodeMissingRequiredField,
			"reviewer and approver must be provided together")
	}
	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditVersionStarted, "document", docID)
	}

	res := &Result{}
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		base, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if base.Status != types.StatusEffective {
			return types.NewDomainError(types.CodeInvalidTransition,
				fmt.Sprintf("cannot start a new version from state %s", base.Status))
		}

		members, err := tx.FamilyMembers(ctx, base.FamilyKey)
		if err != nil {
			return err
		}
		for _, m := range members {
			if !m.Status.IsTerminal() && m.Status != types.StatusEffective &&
				m.Status != types.StatusScheduledForObsolescence {
				return types.NewDomainError(types.CodeConflict,
					fmt.Sprintf("version %s of %s is already in progress (%s)",
						m.FullVersion(), m.Number, m.Status))
			}
		}

		now := e.now()
		next := &types.Document{
			ID:              uuid.NewString(),
			Number:          base.Number,
			Title:           base.Title,
			Description:     base.Description,
			TypeCode:        base.TypeCode,
			SourceCode:      base.SourceCode,
			FamilyKey:       base.FamilyKey,
			Status:          types.StatusDraft,
			Author:          actor,
			ReasonForChange: in.ReasonForChange,
			// The prior version's content carries forward until the author
			// attaches a revision.
			FileReference: base.FileReference,
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		switch in.Bump {
		case BumpMajor:
			next.VersionMajor = base.VersionMajor + 1
			next.VersionMinor = 0
		case BumpMinor:
			next.VersionMajor = base.VersionMajor
			next.VersionMinor = base.VersionMinor + 1
		}

		if err := tx.CreateDocument(ctx, next); err != nil {
			return err
		}

		// The up-version workflow completes as soon as the draft exists; the
		// instance row is the record that it ran.
		wf, err := e.recordWorkflow(ctx, tx, next, types.WorkflowUpVersion,
			types.StatusDraft, actor, nil, true)
		if err != nil {
			return err
		}

		warnings, err := graph.CopyDependencies(ctx, tx, base, next, actor)
		if err != nil {
			return err
		}

		if err := tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditVersionStarted,
			TargetKind:        "document",
			TargetID:          next.ID,
			TargetDisplayName: next.Number,
			ToState:           types.StatusDraft,
			Description: fmt.Sprintf("started %s from %s: %s",
				next.FullVersion(), base.FullVersion(), in.ReasonForChange),
			Metadata: map[string]string{
				"base_version":       base.ID,
				"summary_of_changes": in.SummaryOfChanges,
			},
		}); err != nil {
			return err
		}

		*res = Result{Success: true, DocumentID: next.ID, NewState: next.Status,
			WorkflowID: wf.ID, Warnings: warnings}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if in.Reviewer != "" && in.Approver != "" {
		sub, err := e.SubmitForReview(ctx, res.DocumentID, actor, in.Reviewer, in.Approver, in.SummaryOfChanges)
		if err != nil {
			return nil, fmt.Errorf("version started as %s but submission failed: %w", res.DocumentID, err)
		}
		res.NewState = sub.NewState
		res.WorkflowID = sub.WorkflowID
		res.Warnings = append(res.Warnings, sub.Warnings...)
	}
	return res, nil
}

// RecordPeriodicReview captures the outcome of a scheduled periodic review of
// an effective document. A confirmed outcome advances the next review date;
// an up-version outcome leaves the date in place and tells the caller to
// start a version workflow.
func (e *Engine) RecordPeriodicReview(ctx context.Context, docID, actor string,
	outcome types.PeriodicReviewOutcome, comments string, nextReviewMonths int) (*Result, error) {

	if !outcome.IsValid() {
		return nil, types.NewDomainError(types.CodeMissingRequiredField,
			fmt.Sprintf("invalid periodic review outcome %q", outcome))
	}
	if err := authz.Require(ctx, e.store, actor, authz.CapReview); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditPeriodicReview, "document", docID)
	}

	res := &Result{}
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Status != types.StatusEffective {
			return types.NewDomainError(types.CodeInvalidTransition,
				fmt.Sprintf("periodic review applies to effective documents, %s is %s", doc.Number, doc.Status))
		}

		// The review itself is a single recorded decision, so its workflow
		// instance opens and closes in this transaction.
		wf, err := e.recordWorkflow(ctx, tx, doc, types.WorkflowPeriodicReview,
			types.StatusEffective, actor, nil, true)
		if err != nil {
			return err
		}

		if err := tx.CreatePeriodicReview(ctx, &types.PeriodicReview{
			ID:               uuid.NewString(),
			DocumentID:       doc.ID,
			Reviewer:         actor,
			Outcome:          outcome,
			Comments:         comments,
			NextReviewMonths: nextReviewMonths,
			CreatedAt:        e.now(),
		}); err != nil {
			return err
		}

		requiresUpversion := false
		switch outcome {
		case types.ReviewConfirmed:
			months := nextReviewMonths
			if months <= 0 {
				docType, err := tx.GetDocumentType(ctx, doc.TypeCode)
				if err != nil {
					return err
				}
				months = docType.ReviewIntervalMonths
			}
			next := e.today().AddDate(0, months, 0)
			if err := tx.UpdateDocument(ctx, doc.ID, map[string]interface{}{
				"next_periodic_review_date": next,
			}); err != nil {
				return err
			}
		default:
			requiresUpversion = true
		}

		if err := tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditPeriodicReview,
			TargetKind:        "document",
			TargetID:          doc.ID,
			TargetDisplayName: doc.Number,
			Description:       comments,
			Metadata:          map[string]string{"outcome": string(outcome)},
		}); err != nil {
			return err
		}

		*res = Result{Success: true, DocumentID: doc.ID, NewState: doc.Status,
			WorkflowID: wf.ID, RequiresUpversion: requiresUpversion}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}
