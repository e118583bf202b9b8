package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

// Compile-time interface checks
var (
	_ storage.Storage     = (*SQLiteStorage)(nil)
	_ storage.Transaction = (*sqliteTxStorage)(nil)
)

// sqliteTxStorage implements the storage.Transaction interface for SQLite.
// It wraps a dedicated database connection with an active transaction.
type sqliteTxStorage struct {
	conn   *sql.Conn
	parent *SQLiteStorage
}

// beginImmediateWithRetry starts an IMMEDIATE transaction, retrying with
// exponential backoff while the database reports SQLITE_BUSY.
func beginImmediateWithRetry(ctx context.Context, conn *sql.Conn, maxElapsed time.Duration) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxElapsedTime = maxElapsed
	return backoff.Retry(func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "SQLITE_BUSY") || strings.Contains(err.Error(), "database is locked") {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

// RunInTransaction executes fn within a database transaction.
//
// The transaction uses BEGIN IMMEDIATE to acquire the write lock early, which
// serializes user-driven and scheduler-driven operations on the same
// document. On error or panic the transaction rolls back.
func (s *SQLiteStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection for transaction: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := beginImmediateWithRetry(ctx, conn, 5*time.Second); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback completes even if ctx is cancelled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	txStorage := &sqliteTxStorage{conn: conn, parent: s}

	if err := fn(txStorage); err != nil {
		return err // rollback happens in defer
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// Transaction methods delegate to the shared helpers on the dedicated
// connection.

func (t *sqliteTxStorage) CreateDocument(ctx context.Context, doc *types.Document) error {
	return insertDocument(ctx, t.conn, doc)
}

func (t *sqliteTxStorage) GetDocument(ctx context.Context, id string) (*types.Document, error) {
	return getDocument(ctx, t.conn, id)
}

func (t *sqliteTxStorage) GetDocumentByNumber(ctx context.Context, typeCode, number string) (*types.Document, error) {
	return getDocumentByNumber(ctx, t.conn, typeCode, number)
}

func (t *sqliteTxStorage) UpdateDocument(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateDocument(ctx, t.conn, id, updates)
}

func (t *sqliteTxStorage) NextDocumentNumber(ctx context.Context, typeCode string, year int) (string, error) {
	return nextDocumentNumber(ctx, t.conn, typeCode, year)
}

func (t *sqliteTxStorage) FamilyMembers(ctx context.Context, familyKey string) ([]*types.Document, error) {
	return familyMembers(ctx, t.conn, familyKey)
}

func (t *sqliteTxStorage) LatestEffective(ctx context.Context, familyKey string) (*types.Document, error) {
	return latestEffective(ctx, t.conn, familyKey)
}

func (t *sqliteTxStorage) AddDependency(ctx context.Context, dep *types.Dependency) error {
	return insertDependency(ctx, t.conn, dep)
}

func (t *sqliteTxStorage) DeactivateDependency(ctx context.Context, fromID, toID string) error {
	return deactivateDependency(ctx, t.conn, fromID, toID)
}

func (t *sqliteTxStorage) GetOutboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error) {
	return getDependencies(ctx, t.conn, "from_id", docID, activeOnly)
}

func (t *sqliteTxStorage) GetInboundDependencies(ctx context.Context, docID string, activeOnly bool) ([]*types.Dependency, error) {
	return getDependencies(ctx, t.conn, "to_id", docID, activeOnly)
}

func (t *sqliteTxStorage) CreateWorkflow(ctx context.Context, wf *types.WorkflowInstance) error {
	return insertWorkflow(ctx, t.conn, wf)
}

func (t *sqliteTxStorage) GetActiveWorkflow(ctx context.Context, docID string) (*types.WorkflowInstance, error) {
	return getActiveWorkflow(ctx, t.conn, docID)
}

func (t *sqliteTxStorage) UpdateWorkflow(ctx context.Context, id string, updates map[string]interface{}) error {
	return updateWorkflow(ctx, t.conn, id, updates)
}

func (t *sqliteTxStorage) AddWorkflowTransition(ctx context.Context, tr *types.WorkflowTransition) error {
	return insertWorkflowTransition(ctx, t.conn, tr)
}

func (t *sqliteTxStorage) TerminateOpenWorkflows(ctx context.Context, docID string) ([]*types.WorkflowInstance, error) {
	return terminateOpenWorkflows(ctx, t.conn, docID)
}

func (t *sqliteTxStorage) AppendAuditEntry(ctx context.Context, e *types.AuditEntry) error {
	return appendAuditEntry(ctx, t.conn, e)
}

func (t *sqliteTxStorage) CreatePeriodicReview(ctx context.Context, pr *types.PeriodicReview) error {
	return insertPeriodicReview(ctx, t.conn, pr)
}

func (t *sqliteTxStorage) GetUser(ctx context.Context, id string) (*types.User, error) {
	return getUser(ctx, t.conn, id)
}

func (t *sqliteTxStorage) SetSuperuser(ctx context.Context, userID string, isSuperuser bool) error {
	return setSuperuser(ctx, t.conn, userID, isSuperuser)
}

func (t *sqliteTxStorage) CountActiveSuperusers(ctx context.Context) (int, error) {
	return countActiveSuperusers(ctx, t.conn)
}

func (t *sqliteTxStorage) UserCapabilities(ctx context.Context, userID string) ([]string, error) {
	return userCapabilities(ctx, t.conn, userID)
}

func (t *sqliteTxStorage) GetDocumentType(ctx context.Context, code string) (*types.DocumentType, error) {
	return getDocumentType(ctx, t.conn, code)
}

func (t *sqliteTxStorage) GetDocumentSource(ctx context.Context, code string) (*types.DocumentSource, error) {
	return getDocumentSource(ctx, t.conn, code)
}
