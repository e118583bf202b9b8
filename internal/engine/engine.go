// Package engine implements the document lifecycle state machine. Every
// operation runs in a single transaction: document mutation, workflow
// transition, and audit entry commit or roll back together. Notifications
// are staged during the transaction and dispatched only after commit.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/doctrack/doctrack/internal/authz"
	"github.com/doctrack/doctrack/internal/files"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// Result is the outcome of a lifecycle operation.
type Result struct {
	Success    bool         `json:"success"`
	DocumentID string       `json:"document_id,omitempty"`
	NewState   types.Status `json:"new_state,omitempty"`
	WorkflowID string       `json:"workflow_id,omitempty"`
	Warnings   []string     `json:"warnings,omitempty"`

	// RequiresUpversion signals the caller to start a version workflow after
	// a periodic review. Version creation stays a single codepath.
	RequiresUpversion bool `json:"requires_upversion,omitempty"`
}

// Options configures an Engine.
type Options struct {
	Organization    string
	SystemName      string
	ReviewDueDays   int
	ApprovalDueDays int
	// ExtraPlaceholders are installation-configured artifact placeholders.
	ExtraPlaceholders map[string]string
	Logger            *log.Logger
}

// Engine drives documents through their lifecycle.
type Engine struct {
	store      storage.Storage
	files      *files.Store
	dispatcher *notify.Dispatcher
	opts       Options
	logger     *log.Logger

	// now is swappable in tests.
	now func() time.Time
}

// New creates a lifecycle engine.
func New(store storage.Storage, fileStore *files.Store, dispatcher *notify.Dispatcher, opts Options) *Engine {
	if opts.ReviewDueDays <= 0 {
		opts.ReviewDueDays = 30
	}
	if opts.ApprovalDueDays <= 0 {
		opts.ApprovalDueDays = 14
	}
	if opts.SystemName == "" {
		opts.SystemName = "doctrack"
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		store:      store,
		files:      fileStore,
		dispatcher: dispatcher,
		opts:       opts,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Store exposes the underlying storage for read paths that bypass the engine.
func (e *Engine) Store() storage.Storage {
	return e.store
}

// Files exposes the managed file store.
func (e *Engine) Files() *files.Store {
	return e.files
}

// today truncates the engine clock to a UTC date.
func (e *Engine) today() time.Time {
	n := e.now()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

// dispatch flushes staged notifications after commit. Failures are logged by
// the dispatcher and never surface here.
func (e *Engine) dispatch(ns []notify.Notification) {
	if e.dispatcher == nil || len(ns) == 0 {
		return
	}
	e.dispatcher.DispatchAll(ns)
}

// auditAccessDenied records a denied attempt in its own transaction, after
// the operation's transaction has rolled back.
func (e *Engine) auditAccessDenied(ctx context.Context, actor string, action types.AuditAction, targetKind, targetID, detail string) {
	err := e.store.AppendAuditEntry(ctx, &types.AuditEntry{
		Actor:       actor,
		Action:      types.AuditAccessDenied,
		TargetKind:  targetKind,
		TargetID:    targetID,
		Description: fmt.Sprintf("denied %s: %s", action, detail),
		OccurredAt:  e.now(),
	})
	if err != nil {
		e.logger.Printf("engine: failed to audit denied access: %v", err)
	}
}

// denyAndAudit wraps a permission or precondition failure with its denial
// audit entry.
func (e *Engine) denyAndAudit(ctx context.Context, err error, actor string, action types.AuditAction, targetKind, targetID string) error {
	switch types.CodeOf(err) {
	case types.CodePermissionDenied, types.CodeCriticalDependencyUnmet,
		types.CodeDependentStillActive, types.CodeLastSuperuserProtected:
		e.auditAccessDenied(ctx, actor, action, targetKind, targetID, err.Error())
	}
	return err
}

// transition applies a legal state change to a document inside a
// transaction: status update, workflow transition record, audit entry.
func transition(ctx context.Context, tx storage.Transaction, doc *types.Document,
	to types.Status, actor, comment string, workflowID string,
	action types.AuditAction, extraUpdates map[string]interface{}) error {

	from := doc.Status
	if !types.CanTransition(from, to) {
		return types.InvalidTransition(from, to)
	}

	updates := map[string]interface{}{"status": string(to)}
	for k, v := range extraUpdates {
		updates[k] = v
	}
	if err := tx.UpdateDocument(ctx, doc.ID, updates); err != nil {
		return err
	}

	if workflowID != "" {
		if err := tx.AddWorkflowTransition(ctx, &types.WorkflowTransition{
			WorkflowID: workflowID,
			FromState:  from,
			ToState:    to,
			Actor:      actor,
			Comment:    comment,
		}); err != nil {
			return err
		}
		if err := tx.UpdateWorkflow(ctx, workflowID, map[string]interface{}{
			"current_state": string(to),
		}); err != nil {
			return err
		}
	}

	if err := tx.AppendAuditEntry(ctx, &types.AuditEntry{
		Actor:             actor,
		Action:            action,
		TargetKind:        "document",
		TargetID:          doc.ID,
		TargetDisplayName: doc.Number,
		FromState:         from,
		ToState:           to,
		Description:       comment,
	}); err != nil {
		return err
	}

	doc.Status = to
	return nil
}

// newWorkflow creates a workflow instance with a due date offset in days.
func (e *Engine) newWorkflow(ctx context.Context, tx storage.Transaction,
	doc *types.Document, wfType types.WorkflowType, state types.Status,
	initiator, assignee string, dueDays int) (*types.WorkflowInstance, error) {

	due := e.now().Add(time.Duration(dueDays) * 24 * time.Hour)
	wf := &types.WorkflowInstance{
		ID:              uuid.NewString(),
		DocumentID:      doc.ID,
		Type:            wfType,
		CurrentState:    state,
		InitiatedBy:     initiator,
		CurrentAssignee: assignee,
		InitiatedAt:     e.now(),
		DueAt:           &due,
	}
	if err := tx.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// recordWorkflow writes a workflow instance that carries its own schedule or
// completes inside the transaction that starts it, so no due-day offset
// applies. Lifecycle workflows (up-version, obsolescence, termination,
// periodic review) go through here.
func (e *Engine) recordWorkflow(ctx context.Context, tx storage.Transaction,
	doc *types.Document, wfType types.WorkflowType, state types.Status,
	initiator string, dueAt *time.Time, terminated bool) (*types.WorkflowInstance, error) {

	wf := &types.WorkflowInstance{
		ID:           uuid.NewString(),
		DocumentID:   doc.ID,
		Type:         wfType,
		CurrentState: state,
		InitiatedBy:  initiator,
		InitiatedAt:  e.now(),
		DueAt:        dueAt,
		IsTerminated: terminated,
	}
	if err := tx.CreateWorkflow(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// requireActor fails unless the actor matches the expected principal on the
// document, or is the system actor.
func requireActor(actor, expected, role string) error {
	if actor == types.SystemActor {
		return nil
	}
	if expected == "" || actor != expected {
		return types.PermissionDenied("document " + role)
	}
	return nil
}

// CreateDocumentInput is the payload for CreateDocument.
type CreateDocumentInput struct {
	Title       string
	Description string
	TypeCode    string
	SourceCode  string
	Author      string
}

// CreateDocument creates the first draft version of a new document family.
// The document number is server-generated per type and year.
func (e *Engine) CreateDocument(ctx context.Context, actor string, in CreateDocumentInput) (*types.Document, error) {
	if in.Title == "" {
		return nil, types.MissingField("title")
	}
	if in.TypeCode == "" {
		return nil, types.MissingField("type")
	}
	if in.Author == "" {
		in.Author = actor
	}

	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return nil, e.denyAndAudit(ctx, err, actor, types.AuditDocCreated, "document", "")
	}

	now := e.now()
	doc := &types.Document{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Description:  in.Description,
		TypeCode:     in.TypeCode,
		SourceCode:   in.SourceCode,
		VersionMajor: 1,
		VersionMinor: 0,
		FamilyKey:    uuid.NewString(),
		Status:       types.StatusDraft,
		Author:       in.Author,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if _, err := tx.GetDocumentType(ctx, in.TypeCode); err != nil {
			return err
		}
		if in.SourceCode != "" {
			if _, err := tx.GetDocumentSource(ctx, in.SourceCode); err != nil {
				return err
			}
		}
		number, err := tx.NextDocumentNumber(ctx, in.TypeCode, now.Year())
		if err != nil {
			return err
		}
		doc.Number = number
		if err := tx.CreateDocument(ctx, doc); err != nil {
			return err
		}
		return tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditDocCreated,
			TargetKind:        "document",
			TargetID:          doc.ID,
			TargetDisplayName: doc.Number,
			ToState:           types.StatusDraft,
			Description:       fmt.Sprintf("created %s %q", doc.Number, doc.Title),
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// AttachFile registers an uploaded file on a draft document. The content is
// written to the managed store and the checksum recorded in the audit trail.
func (e *Engine) AttachFile(ctx context.Context, docID, actor, ext string, content []byte) (string, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapWrite); err != nil {
		return "", err
	}
	var key string
	err := e.store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		doc, err := tx.GetDocument(ctx, docID)
		if err != nil {
			return err
		}
		if doc.Immutable() {
			return types.NewDomainError(types.CodeInvalidTransition,
				fmt.Sprintf("document %s is immutable in state %s", doc.Number, doc.Status))
		}
		key = files.OriginalKey(doc.ID, doc.FullVersion(), ext)
		checksum, err := e.files.Write(key, content)
		if err != nil {
			return err
		}
		if err := tx.UpdateDocument(ctx, doc.ID, map[string]interface{}{
			"file_reference": key,
		}); err != nil {
			return err
		}
		return tx.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor:             actor,
			Action:            types.AuditDocUpdated,
			TargetKind:        "document",
			TargetID:          doc.ID,
			TargetDisplayName: doc.Number,
			Description:       "file attached",
			Metadata:          map[string]string{"file_reference": key, "sha256": checksum},
		})
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

// DownloadSignedCopy serves the signed PDF of a released document. Only
// versions that passed approval carry a signed copy; drafts and documents
// still in review have nothing to serve.
func (e *Engine) DownloadSignedCopy(ctx context.Context, docID, actor string) (*types.Document, []byte, error) {
	if err := authz.Require(ctx, e.store, actor, authz.CapRead); err != nil {
		return nil, nil, err
	}
	doc, err := e.store.GetDocument(ctx, docID)
	if err != nil {
		return nil, nil, err
	}
	switch doc.Status {
	case types.StatusEffective, types.StatusApprovedPendingEffective,
		types.StatusScheduledForObsolescence, types.StatusSuperseded:
	default:
		return nil, nil, types.NewDomainError(types.CodeInvalidTransition,
			fmt.Sprintf("no signed copy exists for %s in state %s", doc.Number, doc.Status))
	}
	if doc.SignedReference == "" {
		return nil, nil, types.NotFound("signed copy for document", doc.Number)
	}
	data, err := e.files.Read(doc.SignedReference)
	if err != nil {
		return nil, nil, err
	}
	return doc, data, nil
}
