package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/doctrack/doctrack/internal/audit"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/types"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := New(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testDocument(t *testing.T, store *SQLiteStorage, title string) *types.Document {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()
	doc := &types.Document{
		ID:           uuid.NewString(),
		Title:        title,
		TypeCode:     "SOP",
		SourceCode:   "internal",
		VersionMajor: 1,
		VersionMinor: 0,
		FamilyKey:    uuid.NewString(),
		Status:       types.StatusDraft,
		Author:       "alice",
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		number, err := tx.NextDocumentNumber(ctx, doc.TypeCode, now.Year())
		if err != nil {
			return err
		}
		doc.Number = number
		return tx.CreateDocument(ctx, doc)
	})
	if err != nil {
		t.Fatalf("failed to create test document: %v", err)
	}
	return doc
}

func TestCreateAndGetDocument(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument(t, store, "Equipment Cleaning Procedure")

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Title != doc.Title {
		t.Errorf("expected title %q, got %q", doc.Title, got.Title)
	}
	if got.Status != types.StatusDraft {
		t.Errorf("expected status draft, got %s", got.Status)
	}
	if got.Number == "" {
		t.Error("expected generated document number")
	}

	byNumber, err := store.GetDocumentByNumber(ctx, "SOP", doc.Number)
	if err != nil {
		t.Fatalf("GetDocumentByNumber failed: %v", err)
	}
	if byNumber.ID != doc.ID {
		t.Errorf("expected document %s, got %s", doc.ID, byNumber.ID)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	store := setupTestDB(t)

	_, err := store.GetDocument(context.Background(), "missing")
	if !types.IsCode(err, types.CodeNotFound) {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}
}

func TestNextDocumentNumberSequence(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	var first, second string
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		if first, err = tx.NextDocumentNumber(ctx, "POL", 2026); err != nil {
			return err
		}
		second, err = tx.NextDocumentNumber(ctx, "POL", 2026)
		return err
	})
	if err != nil {
		t.Fatalf("number allocation failed: %v", err)
	}
	if first != "POL-2026-0001" {
		t.Errorf("expected POL-2026-0001, got %s", first)
	}
	if second != "POL-2026-0002" {
		t.Errorf("expected POL-2026-0002, got %s", second)
	}
}

func TestUpdateDocumentWhitelist(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	doc := testDocument(t, store, "Calibration SOP")

	err := store.UpdateDocument(ctx, doc.ID, map[string]interface{}{
		"status":   string(types.StatusPendingReview),
		"reviewer": "bob",
	})
	if err != nil {
		t.Fatalf("UpdateDocument failed: %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Status != types.StatusPendingReview {
		t.Errorf("expected pending_review, got %s", got.Status)
	}
	if got.Reviewer != "bob" {
		t.Errorf("expected reviewer bob, got %q", got.Reviewer)
	}

	// Versioning fields are immutable.
	err = store.UpdateDocument(ctx, doc.ID, map[string]interface{}{"version_major": 9})
	if err == nil {
		t.Error("expected error updating immutable column")
	}
}

func TestFamilyMembersAndLatestEffective(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	familyKey := uuid.NewString()
	effectiveDate := now.Add(-24 * time.Hour)

	v1 := &types.Document{
		ID: uuid.NewString(), Number: "SOP-2025-0001", Title: "Batch Record Review",
		TypeCode: "SOP", SourceCode: "internal", VersionMajor: 1, VersionMinor: 0,
		FamilyKey: familyKey, Status: types.StatusEffective,
		EffectiveDate: &effectiveDate, FileReference: "files/v1.pdf",
		Author: "alice", IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	v2 := &types.Document{
		ID: uuid.NewString(), Number: "SOP-2025-0001", Title: "Batch Record Review",
		TypeCode: "SOP", SourceCode: "internal", VersionMajor: 2, VersionMinor: 0,
		FamilyKey: familyKey, Status: types.StatusDraft, ReasonForChange: "annual update",
		Author: "alice", IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateDocument(ctx, v1); err != nil {
			return err
		}
		return tx.CreateDocument(ctx, v2)
	})
	if err != nil {
		t.Fatalf("failed to create family: %v", err)
	}

	members, err := store.FamilyMembers(ctx, familyKey)
	if err != nil {
		t.Fatalf("FamilyMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if members[0].VersionMajor != 1 || members[1].VersionMajor != 2 {
		t.Error("expected members ordered by version")
	}

	eff, err := store.LatestEffective(ctx, familyKey)
	if err != nil {
		t.Fatalf("LatestEffective failed: %v", err)
	}
	if eff == nil || eff.ID != v1.ID {
		t.Errorf("expected v1 as latest effective, got %+v", eff)
	}

	none, err := store.LatestEffective(ctx, "no-such-family")
	if err != nil {
		t.Fatalf("LatestEffective failed: %v", err)
	}
	if none != nil {
		t.Error("expected nil for family with no effective member")
	}
}

func TestDependencies(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	a := testDocument(t, store, "Quality Policy")
	b := testDocument(t, store, "Deviation SOP")

	dep := &types.Dependency{
		ID: uuid.NewString(), FromID: b.ID, ToID: a.ID,
		Type: types.DepImplements, IsCritical: true, IsActive: true,
		CreatedAt: time.Now().UTC(), CreatedBy: "alice",
	}
	if err := store.AddDependency(ctx, dep); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	// Same edge twice is a conflict.
	dup := *dep
	dup.ID = uuid.NewString()
	err := store.AddDependency(ctx, &dup)
	if !types.IsCode(err, types.CodeConflict) {
		t.Errorf("expected CONFLICT on duplicate edge, got %v", err)
	}

	out, err := store.GetOutboundDependencies(ctx, b.ID, true)
	if err != nil {
		t.Fatalf("GetOutboundDependencies failed: %v", err)
	}
	if len(out) != 1 || out[0].ToID != a.ID || !out[0].IsCritical {
		t.Errorf("unexpected outbound edges: %+v", out)
	}

	in, err := store.GetInboundDependencies(ctx, a.ID, true)
	if err != nil {
		t.Fatalf("GetInboundDependencies failed: %v", err)
	}
	if len(in) != 1 || in[0].FromID != b.ID {
		t.Errorf("unexpected inbound edges: %+v", in)
	}

	if err := store.DeactivateDependency(ctx, b.ID, a.ID); err != nil {
		t.Fatalf("DeactivateDependency failed: %v", err)
	}
	out, err = store.GetOutboundDependencies(ctx, b.ID, true)
	if err != nil {
		t.Fatalf("GetOutboundDependencies failed: %v", err)
	}
	if len(out) != 0 {
		t.Error("expected no active edges after deactivation")
	}
	// Edge row survives as inactive.
	all, err := store.GetOutboundDependencies(ctx, b.ID, false)
	if err != nil {
		t.Fatalf("GetOutboundDependencies failed: %v", err)
	}
	if len(all) != 1 || all[0].IsActive {
		t.Error("expected deactivated edge to remain")
	}
}

func TestWorkflowLifecycle(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	doc := testDocument(t, store, "Supplier Qualification SOP")

	due := time.Now().UTC().Add(30 * 24 * time.Hour)
	wf := &types.WorkflowInstance{
		ID: uuid.NewString(), DocumentID: doc.ID, Type: types.WorkflowReview,
		CurrentState: types.StatusPendingReview, InitiatedBy: "alice",
		CurrentAssignee: "bob", InitiatedAt: time.Now().UTC(), DueAt: &due,
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateWorkflow(ctx, wf); err != nil {
			return err
		}
		return tx.AddWorkflowTransition(ctx, &types.WorkflowTransition{
			WorkflowID: wf.ID, FromState: types.StatusDraft,
			ToState: types.StatusPendingReview, Actor: "alice",
		})
	})
	if err != nil {
		t.Fatalf("failed to create workflow: %v", err)
	}

	active, err := store.GetActiveWorkflow(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetActiveWorkflow failed: %v", err)
	}
	if active == nil || active.ID != wf.ID {
		t.Fatalf("expected active workflow %s, got %+v", wf.ID, active)
	}
	if active.CurrentAssignee != "bob" {
		t.Errorf("expected assignee bob, got %q", active.CurrentAssignee)
	}

	trs, err := store.GetWorkflowTransitions(ctx, wf.ID)
	if err != nil {
		t.Fatalf("GetWorkflowTransitions failed: %v", err)
	}
	if len(trs) != 1 || trs[0].ToState != types.StatusPendingReview {
		t.Errorf("unexpected transitions: %+v", trs)
	}

	var terminated []*types.WorkflowInstance
	err = store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		var err error
		terminated, err = tx.TerminateOpenWorkflows(ctx, doc.ID)
		return err
	})
	if err != nil {
		t.Fatalf("TerminateOpenWorkflows failed: %v", err)
	}
	if len(terminated) != 1 || !terminated[0].IsTerminated {
		t.Errorf("expected 1 terminated workflow, got %+v", terminated)
	}

	active, err = store.GetActiveWorkflow(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetActiveWorkflow failed: %v", err)
	}
	if active != nil {
		t.Error("expected no active workflow after termination")
	}
}

func TestOverdueWorkflows(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	doc := testDocument(t, store, "Training SOP")

	past := time.Now().UTC().Add(-48 * time.Hour)
	wf := &types.WorkflowInstance{
		ID: uuid.NewString(), DocumentID: doc.ID, Type: types.WorkflowApproval,
		CurrentState: types.StatusPendingApproval, InitiatedBy: "alice",
		InitiatedAt: past, DueAt: &past,
	}
	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.CreateWorkflow(ctx, wf)
	})
	if err != nil {
		t.Fatalf("failed to create workflow: %v", err)
	}

	overdue, err := store.GetOverdueWorkflows(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("GetOverdueWorkflows failed: %v", err)
	}
	if len(overdue) != 1 || overdue[0].ID != wf.ID {
		t.Fatalf("expected 1 overdue workflow, got %+v", overdue)
	}

	day := time.Now().UTC()
	sent, err := store.MarkOverdueNoticeSent(ctx, wf.ID, day)
	if err != nil {
		t.Fatalf("MarkOverdueNoticeSent failed: %v", err)
	}
	if !sent {
		t.Error("expected first notice to be recorded")
	}
	sent, err = store.MarkOverdueNoticeSent(ctx, wf.ID, day)
	if err != nil {
		t.Fatalf("MarkOverdueNoticeSent failed: %v", err)
	}
	if sent {
		t.Error("expected second notice on same day to be suppressed")
	}
}

func TestAuditChain(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	actions := []types.AuditAction{
		types.AuditDocCreated, types.AuditReviewSubmitted, types.AuditDocApproved,
	}
	for i, action := range actions {
		err := store.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor: "alice", Action: action,
			TargetKind: "document", TargetID: "doc-1",
			Metadata: map[string]string{"step": string(rune('a' + i))},
		})
		if err != nil {
			t.Fatalf("AppendAuditEntry failed: %v", err)
		}
	}

	head, err := store.GetAuditHead(ctx)
	if err != nil {
		t.Fatalf("GetAuditHead failed: %v", err)
	}
	if head == nil || head.Sequence != 3 {
		t.Fatalf("expected head at sequence 3, got %+v", head)
	}

	entries, err := store.GetAuditEntries(ctx, 0, 0)
	if err != nil {
		t.Fatalf("GetAuditEntries failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].PreviousChecksum != audit.GenesisChecksum {
		t.Error("expected first entry chained to genesis")
	}
	if entries[1].PreviousChecksum != entries[0].Checksum {
		t.Error("expected entry 2 chained to entry 1")
	}

	if div := audit.VerifyChain(entries); div != nil {
		t.Errorf("expected intact chain, got divergence: %v", div)
	}

	// Retroactive edit breaks verification.
	entries[1].Description = "tampered"
	entries[1].Metadata = map[string]string{"step": "z"}
	if div := audit.VerifyChain(entries); div == nil {
		t.Error("expected divergence after tampering")
	}
}

func TestAuditEntriesForTarget(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	for _, target := range []string{"doc-1", "doc-2", "doc-1"} {
		err := store.AppendAuditEntry(ctx, &types.AuditEntry{
			Actor: "system", Action: types.AuditDocEffectiveProcessed,
			TargetKind: "document", TargetID: target,
		})
		if err != nil {
			t.Fatalf("AppendAuditEntry failed: %v", err)
		}
	}

	entries, err := store.GetAuditEntriesForTarget(ctx, "document", "doc-1")
	if err != nil {
		t.Fatalf("GetAuditEntriesForTarget failed: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries for doc-1, got %d", len(entries))
	}
}

func TestUsersRolesAndCapabilities(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	u := &types.User{
		ID: uuid.NewString(), Username: "bob", DisplayName: "Bob",
		IsActive: true, Roles: []string{"reviewer"},
	}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	caps, err := store.UserCapabilities(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserCapabilities failed: %v", err)
	}
	if len(caps) != 2 || caps[0] != "read" || caps[1] != "review" {
		t.Errorf("expected [read review], got %v", caps)
	}

	if err := store.GrantRole(ctx, u.ID, "approver"); err != nil {
		t.Fatalf("GrantRole failed: %v", err)
	}
	caps, err = store.UserCapabilities(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserCapabilities failed: %v", err)
	}
	found := false
	for _, c := range caps {
		if c == "approve" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected approve capability after grant, got %v", caps)
	}

	if err := store.RevokeRole(ctx, u.ID, "approver"); err != nil {
		t.Fatalf("RevokeRole failed: %v", err)
	}

	if err := store.SetSuperuser(ctx, u.ID, true); err != nil {
		t.Fatalf("SetSuperuser failed: %v", err)
	}
	caps, err = store.UserCapabilities(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserCapabilities failed: %v", err)
	}
	if len(caps) != 5 {
		t.Errorf("expected full capability set for superuser, got %v", caps)
	}

	n, err := store.CountActiveSuperusers(ctx)
	if err != nil {
		t.Fatalf("CountActiveSuperusers failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 superuser, got %d", n)
	}
}

func TestRevokeRoleKeepsMembershipRow(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	u := &types.User{
		ID: uuid.NewString(), Username: "carol", DisplayName: "Carol",
		IsActive: true, Roles: []string{"approver"},
	}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := store.RevokeRole(ctx, u.ID, "approver"); err != nil {
		t.Fatalf("RevokeRole failed: %v", err)
	}
	caps, err := store.UserCapabilities(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserCapabilities failed: %v", err)
	}
	for _, c := range caps {
		if c == "approve" {
			t.Errorf("revoked role still grants capabilities: %v", caps)
		}
	}
	got, err := store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if len(got.Roles) != 0 {
		t.Errorf("revoked role still listed: %v", got.Roles)
	}

	// Revocation deactivates; the membership row stays for the record.
	var rows int
	err = store.UnderlyingDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE user_id = ? AND role = ?`,
		u.ID, "approver").Scan(&rows)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Fatalf("expected the membership row to survive revocation, got %d rows", rows)
	}

	// A second revoke has nothing left to deactivate.
	if err := store.RevokeRole(ctx, u.ID, "approver"); !types.IsCode(err, types.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND on double revoke, got %v", err)
	}

	// Re-granting reactivates the same row.
	if err := store.GrantRole(ctx, u.ID, "approver"); err != nil {
		t.Fatalf("GrantRole failed: %v", err)
	}
	got, err = store.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetUser failed: %v", err)
	}
	if len(got.Roles) != 1 || got.Roles[0] != "approver" {
		t.Errorf("expected approver restored, got %v", got.Roles)
	}
}

func TestScheduledTaskBookkeeping(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := store.RecordTaskRun(ctx, "process-effective-dates", now, true, "processed 2 documents"); err != nil {
		t.Fatalf("RecordTaskRun failed: %v", err)
	}
	if err := store.RecordTaskRun(ctx, "process-effective-dates", now.Add(time.Hour), true, "processed 0 documents"); err != nil {
		t.Fatalf("RecordTaskRun failed: %v", err)
	}

	task, err := store.GetScheduledTask(ctx, "process-effective-dates")
	if err != nil {
		t.Fatalf("GetScheduledTask failed: %v", err)
	}
	if task.TotalRunCount != 2 {
		t.Errorf("expected 2 runs, got %d", task.TotalRunCount)
	}
	if task.ResultStatus != "processed 0 documents" {
		t.Errorf("expected latest result, got %q", task.ResultStatus)
	}

	tasks, err := store.ListScheduledTasks(ctx)
	if err != nil {
		t.Fatalf("ListScheduledTasks failed: %v", err)
	}
	if len(tasks) != 1 {
		t.Errorf("expected 1 task, got %d", len(tasks))
	}

	pruned, err := store.PruneTaskResults(ctx, time.Now().UTC().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneTaskResults failed: %v", err)
	}
	if pruned != 2 {
		t.Errorf("expected 2 pruned results, got %d", pruned)
	}
}

func TestMetadata(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	val, err := store.GetMetadata(ctx, "last_verified_sequence")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if val != "" {
		t.Errorf("expected empty value for unset key, got %q", val)
	}

	if err := store.SetMetadata(ctx, "last_verified_sequence", "42"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if err := store.SetMetadata(ctx, "last_verified_sequence", "43"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	val, err = store.GetMetadata(ctx, "last_verified_sequence")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if val != "43" {
		t.Errorf("expected 43, got %q", val)
	}
}

func TestTransactionRollback(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	doc := testDocument(t, store, "Rollback Test")

	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.UpdateDocument(ctx, doc.ID, map[string]interface{}{"title": "changed"}); err != nil {
			return err
		}
		return types.NewDomainError(types.CodeInternal, "forced failure")
	})
	if !types.IsCode(err, types.CodeInternal) {
		t.Fatalf("expected forced failure, got %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Title != "Rollback Test" {
		t.Errorf("expected rollback to preserve title, got %q", got.Title)
	}
}

func TestStatistics(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	testDocument(t, store, "Doc A")
	testDocument(t, store, "Doc B")

	stats, err := store.GetStatistics(ctx)
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}
	if stats.TotalDocuments != 2 {
		t.Errorf("expected 2 documents, got %d", stats.TotalDocuments)
	}
	if stats.DraftDocuments != 2 {
		t.Errorf("expected 2 drafts, got %d", stats.DraftDocuments)
	}
}
