// Package storage defines the interface for document storage backends.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doctrack/doctrack/internal/types"
)

// ErrDBNotInitialized is returned when attempting to use a database storage
// feature before the database has been initialized.
var ErrDBNotInitialized = errors.New("database not initialized")

// Transaction exposes the subset of Storage methods that execute within a
// single database transaction. The lifecycle engine performs every
// state-changing operation through a Transaction so that document mutation,
// workflow transition, and audit entry commit or roll back together.
//
// Transaction semantics:
//   - All operations share the same database connection
//   - Changes are invisible to other connections until commit
//   - If the callback returns an error or panics, the transaction rolls back
//   - SQLite uses BEGIN IMMEDIATE to acquire the write lock early, which
//     serializes user-driven and scheduler-driven transitions on the same
//     document
type Transaction interface {
	// Documents
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	GetDocumentByNumber(ctx context.Context, typeCode, number string) (*types.Document, error)
	UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error
	NextDocumentNumber(ctx context.Context, typeCode string, year int) (string, error)

	// Family resolution
	FamilyMembers(ctx context.Context, familyKey string) ([]*types.Document, error)
	LatestEffective(ctx context.Context, familyKey string) (*types.Document, error)

	// Dependencies
	AddDependency(ctx context.Context, dep *types.Dependency) error
	DeactivateDependency(ctx context.Context, fromID, toID string) error
	GetOutboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error)
	GetInboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error)

	// Workflows
	CreateWorkflow(ctx context.Context, wf *types.WorkflowInstance) error
	GetActiveWorkflow(ctx context.Context, docID string) (*types.WorkflowInstance, error)
	UpdateWorkflow(ctx context.Context, id string, updates map[string]interface{}) error
	AddWorkflowTransition(ctx context.Context, tr *types.WorkflowTransition) error
	TerminateOpenWorkflows(ctx context.Context, docID string) ([]*types.WorkflowInstance, error)

	// Audit chain. AppendAuditEntry seals the entry against the current chain
	// head under the write lock and inserts it; the entry's sequence and
	// checksums are filled in on return.
	AppendAuditEntry(ctx context.Context, e *types.AuditEntry) error

	// Periodic reviews
	CreatePeriodicReview(ctx context.Context, pr *types.PeriodicReview) error

	// Users and roles
	GetUser(ctx context.Context, id string) (*types.User, error)
	SetSuperuser(ctx context.Context, userID string, isSuperuser bool) error
	CountActiveSuperusers(ctx context.Context) (int, error)
	UserCapabilities(ctx context.Context, userID string) ([]string, error)

	// Reference data
	GetDocumentType(ctx context.Context, code string) (*types.DocumentType, error)
	GetDocumentSource(ctx context.Context, code string) (*types.DocumentSource, error)
}

// Storage defines the interface for document storage backends.
type Storage interface {
	// Documents
	CreateDocument(ctx context.Context, doc *types.Document) error
	GetDocument(ctx context.Context, id string) (*types.Document, error)
	GetDocumentByNumber(ctx context.Context, typeCode, number string) (*types.Document, error)
	UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error
	SearchDocuments(ctx context.Context, filter types.DocumentFilter) ([]*types.Document, error)

	// Family resolution
	FamilyMembers(ctx context.Context, familyKey string) ([]*types.Document, error)
	LatestEffective(ctx context.Context, familyKey string) (*types.Document, error)

	// Dependencies
	AddDependency(ctx context.Context, dep *types.Dependency) error
	DeactivateDependency(ctx context.Context, fromID, toID string) error
	GetOutboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error)
	GetInboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error)
	GetAllActiveDependencies(ctx context.Context) ([]*types.Dependency, error)

	// Workflows
	GetActiveWorkflow(ctx context.Context, docID string) (*types.WorkflowInstance, error)
	GetWorkflow(ctx context.Context, id string) (*types.WorkflowInstance, error)
	GetWorkflowTransitions(ctx context.Context, workflowID string) ([]*types.WorkflowTransition, error)
	GetOverdueWorkflows(ctx context.Context, asOf time.Time) ([]*types.WorkflowInstance, error)
	// MarkOverdueNoticeSent records an overdue notice for a workflow on the
	// given day; false means one was already recorded today.
	MarkOverdueNoticeSent(ctx context.Context, workflowID string, day time.Time) (bool, error)

	// Audit chain. AppendAuditEntry opens its own write transaction; callers
	// already inside a transaction use the Transaction method instead.
	AppendAuditEntry(ctx context.Context, e *types.AuditEntry) error
	GetAuditEntries(ctx context.Context, afterSequence int64, limit int) ([]*types.AuditEntry, error)
	GetAuditHead(ctx context.Context) (*types.AuditEntry, error)
	GetAuditEntriesForTarget(ctx context.Context, targetKind, targetID string) ([]*types.AuditEntry, error)

	// Periodic reviews
	GetPeriodicReviews(ctx context.Context, docID string) ([]*types.PeriodicReview, error)

	// Users and roles
	CreateUser(ctx context.Context, u *types.User) error
	GetUser(ctx context.Context, id string) (*types.User, error)
	GetUserByUsername(ctx context.Context, username string) (*types.User, error)
	SetSuperuser(ctx context.Context, userID string, isSuperuser bool) error
	CountActiveSuperusers(ctx context.Context) (int, error)
	GrantRole(ctx context.Context, userID, role string) error
	RevokeRole(ctx context.Context, userID, role string) error
	UserCapabilities(ctx context.Context, userID string) ([]string, error)

	// Reference data
	CreateDocumentType(ctx context.Context, dt *types.DocumentType) error
	GetDocumentType(ctx context.Context, code string) (*types.DocumentType, error)
	ListDocumentTypes(ctx context.Context) ([]*types.DocumentType, error)
	CreateDocumentSource(ctx context.Context, ds *types.DocumentSource) error
	GetDocumentSource(ctx context.Context, code string) (*types.DocumentSource, error)

	// Scheduled task bookkeeping. Task results and periodic-task metadata
	// share the relational store so last_run_at / total_run_count are
	// observable alongside the documents they act on.
	RecordTaskRun(ctx context.Context, name string, scheduledTime time.Time, completed bool, resultStatus string) error
	GetScheduledTask(ctx context.Context, name string) (*types.ScheduledTask, error)
	ListScheduledTasks(ctx context.Context) ([]*types.ScheduledTask, error)
	PruneTaskResults(ctx context.Context, olderThan time.Time) (int64, error)

	// Metadata (internal state like the last verified audit sequence)
	SetMetadata(ctx context.Context, key, value string) error
	GetMetadata(ctx context.Context, key string) (string, error)

	// Statistics
	GetStatistics(ctx context.Context) (*types.Statistics, error)

	// Transactions
	//
	// RunInTransaction executes fn within a database transaction:
	//   - If fn returns nil, the transaction is committed
	//   - If fn returns an error, the transaction is rolled back
	//   - If fn panics, the transaction is rolled back and the panic re-raised
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Lifecycle
	Close() error

	// Database path (for daemon lock validation)
	Path() string

	// UnderlyingDB returns the underlying *sql.DB connection. Direct access
	// bypasses the storage layer; use with caution.
	UnderlyingDB() *sql.DB
}
