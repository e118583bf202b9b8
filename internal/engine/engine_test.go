package engine

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/doctrack/doctrack/internal/files"
	"github.com/doctrack/doctrack/internal/notify"
	"github.com/doctrack/doctrack/internal/storage"
	"github.com/doctrack/doctrack/internal/storage/sqlite"
	"github.com/doctrack/doctrack/internal/types"
)

var testClock = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

const testBody = "Purpose: {{DOCUMENT_TITLE}}\n\nOwner: {{AUTHOR_NAME}}\nEffective: {{EFFECTIVE_DATE}}\n"

// setupEngine builds an engine on a throwaway database and file store, with
// a fixed clock and a standard cast of users.
func setupEngine(t *testing.T) (*Engine, storage.Storage) {
	t.Helper()
	ctx := context.Background()

	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "doctrack.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	fileStore, err := files.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create file store: %v", err)
	}

	quiet := log.New(io.Discard, "", 0)
	eng := New(store, fileStore, notify.NewDispatcher("", quiet), Options{
		Organization: "Acme Pharma",
		Logger:       quiet,
	})
	eng.now = func() time.Time { return testClock }

	seed := []struct {
		dt types.DocumentType
	}{
		{types.DocumentType{Code: "SOP", Name: "Standard Operating Procedure", RequiresPeriodicReview: true, ReviewIntervalMonths: 24}},
		{types.DocumentType{Code: "POL", Name: "Policy"}},
	}
	for _, s := range seed {
		if err := store.CreateDocumentType(ctx, &s.dt); err != nil {
			t.Fatalf("failed to seed document type %s: %v", s.dt.Code, err)
		}
	}

	users := []types.User{
		{ID: "alice", Username: "alice", IsActive: true, Roles: []string{"author"}},
		{ID: "bob", Username: "bob", IsActive: true, Roles: []string{"reviewer"}},
		{ID: "carol", Username: "carol", IsActive: true, Roles: []string{"approver", "author"}},
		{ID: "dana", Username: "dana", IsActive: true, IsSuperuser: true},
		{ID: "eve", Username: "eve", IsActive: true, Roles: []string{"viewer"}},
	}
	for i := range users {
		if err := store.CreateUser(ctx, &users[i]); err != nil {
			t.Fatalf("failed to seed user %s: %v", users[i].Username, err)
		}
	}
	return eng, store
}

// draftWithContent creates a draft SOP with content attached.
func draftWithContent(t *testing.T, eng *Engine, title string) *types.Document {
	t.Helper()
	ctx := context.Background()
	doc, err := eng.CreateDocument(ctx, "alice", CreateDocumentInput{
		Title:    title,
		TypeCode: "SOP",
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if _, err := eng.AttachFile(ctx, doc.ID, "alice", "md", []byte(testBody)); err != nil {
		t.Fatalf("AttachFile failed: %v", err)
	}
	return doc
}

// runToEffective drives a draft through review and approval to EFFECTIVE.
func runToEffective(t *testing.T, eng *Engine, docID string) {
	t.Helper()
	ctx := context.Background()
	steps := []struct {
		name string
		fn   func() (*Result, error)
	}{
		{"submit", func() (*Result, error) { return eng.SubmitForReview(ctx, docID, "alice", "bob", "carol", "") }},
		{"accept review", func() (*Result, error) { return eng.AcceptReview(ctx, docID, "bob", "") }},
		{"complete review", func() (*Result, error) { return eng.CompleteReview(ctx, docID, "bob", true, "looks good") }},
		{"route approval", func() (*Result, error) { return eng.RouteForApproval(ctx, docID, "alice", "carol", "") }},
		{"accept approval", func() (*Result, error) { return eng.AcceptApproval(ctx, docID, "carol", "") }},
		{"approve", func() (*Result, error) { return eng.ApproveDocument(ctx, docID, "carol", &testClock, "") }},
	}
	for _, s := range steps {
		if _, err := s.fn(); err != nil {
			t.Fatalf("%s failed: %v", s.name, err)
		}
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Equipment Cleaning")
	if doc.Number == "" || doc.VersionMajor != 1 || doc.VersionMinor != 0 {
		t.Fatalf("unexpected new document: %+v", doc)
	}
	runToEffective(t, eng, doc.ID)

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if got.Status != types.StatusEffective {
		t.Fatalf("expected effective, got %s", got.Status)
	}
	if got.EffectiveDate == nil || !got.EffectiveDate.Equal(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected effective date: %v", got.EffectiveDate)
	}
	if got.ApprovedAt == nil || got.Approver != "carol" {
		t.Errorf("approval not recorded: approver=%q approved_at=%v", got.Approver, got.ApprovedAt)
	}
	if got.SignedReference == "" {
		t.Fatal("expected a signed release document")
	}
	if !eng.Files().Exists(got.SignedReference) {
		t.Errorf("signed reference %s not present in file store", got.SignedReference)
	}
	// SOP requires periodic review: 24 months out from effectivity.
	wantReview := time.Date(2028, 3, 10, 0, 0, 0, 0, time.UTC)
	if got.NextPeriodicReviewDate == nil || !got.NextPeriodicReviewDate.Equal(wantReview) {
		t.Errorf("next periodic review = %v, want %v", got.NextPeriodicReviewDate, wantReview)
	}

	if wf, err := store.GetActiveWorkflow(ctx, doc.ID); err != nil {
		t.Fatalf("GetActiveWorkflow failed: %v", err)
	} else if wf != nil {
		t.Errorf("expected no open workflow, got %s (%s)", wf.ID, wf.Type)
	}

	entries, err := store.GetAuditEntriesForTarget(ctx, "document", doc.ID)
	if err != nil {
		t.Fatalf("GetAuditEntriesForTarget failed: %v", err)
	}
	want := []types.AuditAction{
		types.AuditDocCreated, types.AuditDocUpdated,
		types.AuditReviewSubmitted, types.AuditReviewAccepted, types.AuditReviewCompleted,
		types.AuditApprovalRouted, types.AuditApprovalAccepted,
		types.AuditDocApproved, types.AuditDocEffectiveProcessed, types.AuditDocSigned,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].Action != w {
			t.Errorf("audit[%d] = %s, want %s", i, entries[i].Action, w)
		}
	}
}

func TestReviewRejectionReturnsToDraft(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Deviation Handling")
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := eng.AcceptReview(ctx, doc.ID, "bob", ""); err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	res, err := eng.CompleteReview(ctx, doc.ID, "bob", false, "section 3 is wrong")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if res.NewState != types.StatusDraft {
		t.Fatalf("expected draft after rejection, got %s", res.NewState)
	}
	if wf, _ := store.GetActiveWorkflow(ctx, doc.ID); wf != nil {
		t.Error("expected review workflow to be closed after rejection")
	}
}

func TestOnlyAssignedReviewerMayReview(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Change Control")
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	// dana is a superuser with every capability, but not the assigned reviewer.
	_, err := eng.AcceptReview(ctx, doc.ID, "dana", "")
	if err == nil {
		t.Fatal("expected permission error for unassigned reviewer")
	}
	if !types.IsCode(err, types.CodePermissionDenied) {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}

	head, err := store.GetAuditHead(ctx)
	if err != nil {
		t.Fatalf("GetAuditHead failed: %v", err)
	}
	if head.Action != types.AuditAccessDenied {
		t.Errorf("expected denied access audited, head is %s", head.Action)
	}
}

func TestApprovalRejectionClearsAssignments(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Supplier Qualification")
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptReview(ctx, doc.ID, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CompleteReview(ctx, doc.ID, "bob", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RouteForApproval(ctx, doc.ID, "alice", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptApproval(ctx, doc.ID, "carol", ""); err != nil {
		t.Fatal(err)
	}
	res, err := eng.RejectApproval(ctx, doc.ID, "carol", "scope too broad")
	if err != nil {
		t.Fatalf("RejectApproval failed: %v", err)
	}
	if res.NewState != types.StatusDraft {
		t.Fatalf("expected draft, got %s", res.NewState)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Reviewer != "" || got.Approver != "" {
		t.Errorf("expected cleared assignments, got reviewer=%q approver=%q", got.Reviewer, got.Approver)
	}
}

func TestReviewerAsApproverWarns(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Training Records")
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptReview(ctx, doc.ID, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CompleteReview(ctx, doc.ID, "bob", true, ""); err != nil {
		t.Fatal(err)
	}
	res, err := eng.RouteForApproval(ctx, doc.ID, "alice", "bob", "")
	if err != nil {
		t.Fatalf("RouteForApproval failed: %v", err)
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning when the reviewer is also the approver")
	}
}

func TestCriticalDependencyBlocksApproval(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	target := draftWithContent(t, eng, "Prerequisite Policy")
	doc := draftWithContent(t, eng, "Dependent Procedure")
	if _, err := eng.AddDependency(ctx, "alice", doc.ID, target.ID, types.DepImplements, true); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}

	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptReview(ctx, doc.ID, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CompleteReview(ctx, doc.ID, "bob", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RouteForApproval(ctx, doc.ID, "alice", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptApproval(ctx, doc.ID, "carol", ""); err != nil {
		t.Fatal(err)
	}

	_, err := eng.ApproveDocument(ctx, doc.ID, "carol", &testClock, "")
	if err == nil {
		t.Fatal("expected approval to be blocked by unmet critical dependency")
	}
	if !types.IsCode(err, types.CodeCriticalDependencyUnmet) {
		t.Fatalf("expected CRITICAL_DEPENDENCY_UNMET, got %v", err)
	}
	head, err := store.GetAuditHead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head.Action != types.AuditAccessDenied {
		t.Errorf("expected blocked approval audited, head is %s", head.Action)
	}

	// Once the prerequisite is effective the approval goes through.
	runToEffective(t, eng, target.ID)
	if _, err := eng.ApproveDocument(ctx, doc.ID, "carol", &testClock, ""); err != nil {
		t.Fatalf("approval should succeed once the dependency is met: %v", err)
	}
}

func TestFutureEffectiveDateWaitsForScheduler(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Batch Release")
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptReview(ctx, doc.ID, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CompleteReview(ctx, doc.ID, "bob", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RouteForApproval(ctx, doc.ID, "alice", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptApproval(ctx, doc.ID, "carol", ""); err != nil {
		t.Fatal(err)
	}

	tomorrow := testClock.AddDate(0, 0, 1)
	res, err := eng.ApproveDocument(ctx, doc.ID, "carol", &tomorrow, "")
	if err != nil {
		t.Fatalf("ApproveDocument failed: %v", err)
	}
	if res.NewState != types.StatusApprovedPendingEffective {
		t.Fatalf("expected approved_pending_effective, got %s", res.NewState)
	}
	// Parking is its own audit action; DOC_EFFECTIVE_PROCESSED belongs to the
	// actual release.
	head, err := store.GetAuditHead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head.Action != types.AuditDocApprovedPendingEffective {
		t.Fatalf("expected DOC_APPROVED_PENDING_EFFECTIVE audited, head is %s", head.Action)
	}

	// Releasing before the date is refused.
	if _, err := eng.ProcessEffectiveDate(ctx, doc.ID); !types.IsCode(err, types.CodeConflict) {
		t.Fatalf("expected CONFLICT for early release, got %v", err)
	}

	eng.now = func() time.Time { return testClock.AddDate(0, 0, 2) }
	if _, err := eng.ProcessEffectiveDate(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessEffectiveDate failed: %v", err)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusEffective {
		t.Fatalf("expected effective, got %s", got.Status)
	}
	entries, err := store.GetAuditEntriesForTarget(ctx, "document", doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	processed := 0
	for _, e := range entries {
		if e.Action == types.AuditDocEffectiveProcessed {
			processed++
		}
	}
	if processed != 1 {
		t.Errorf("expected exactly one DOC_EFFECTIVE_PROCESSED entry, got %d", processed)
	}
	// Re-running is a no-op failure, not a second release.
	if _, err := eng.ProcessEffectiveDate(ctx, doc.ID); !types.IsCode(err, types.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION on re-run, got %v", err)
	}
}

func TestApproveRequiresEffectiveDate(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Dateless Approval")
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptReview(ctx, doc.ID, "bob", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.CompleteReview(ctx, doc.ID, "bob", true, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.RouteForApproval(ctx, doc.ID, "alice", "carol", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AcceptApproval(ctx, doc.ID, "carol", ""); err != nil {
		t.Fatal(err)
	}

	_, err := eng.ApproveDocument(ctx, doc.ID, "carol", nil, "")
	if !types.IsCode(err, types.CodeMissingRequiredField) {
		t.Fatalf("expected MISSING_REQUIRED_FIELD without an effective date, got %v", err)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusUnderApproval {
		t.Fatalf("document should stay under approval, got %s", got.Status)
	}
}

func TestUpversionSupersedesPrior(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	v1 := draftWithContent(t, eng, "Calibration")
	runToEffective(t, eng, v1.ID)

	res, err := eng.StartVersionWorkflow(ctx, v1.ID, "alice", StartVersionInput{
		Bump: BumpMinor, ReasonForChange: "annual update", SummaryOfChanges: "refreshed calibration intervals",
	})
	if err != nil {
		t.Fatalf("StartVersionWorkflow failed: %v", err)
	}
	v2, err := store.GetDocument(ctx, res.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if v2.Number != v1.Number {
		t.Errorf("version number changed: %s -> %s", v1.Number, v2.Number)
	}
	if v2.VersionMajor != 1 || v2.VersionMinor != 1 {
		t.Errorf("expected v01.01, got %s", v2.FullVersion())
	}
	// The up-version workflow completes with the draft's creation; its
	// instance is recorded already closed on the new version.
	upwf, err := store.GetWorkflow(ctx, res.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}
	if upwf.Type != types.WorkflowUpVersion || !upwf.IsTerminated || upwf.DocumentID != v2.ID {
		t.Errorf("expected a closed up-version workflow on %s, got %+v", v2.ID, upwf)
	}

	// A second concurrent up-version is refused while v01.01 is in progress.
	if _, err := eng.StartVersionWorkflow(ctx, v1.ID, "alice", StartVersionInput{
		Bump: BumpMajor, ReasonForChange: "another", SummaryOfChanges: "n/a",
	}); !types.IsCode(err, types.CodeConflict) {
		t.Fatalf("expected CONFLICT for concurrent up-version, got %v", err)
	}

	if _, err := eng.AttachFile(ctx, v2.ID, "alice", "md", []byte(testBody)); err != nil {
		t.Fatal(err)
	}
	runToEffective(t, eng, v2.ID)

	oldV1, err := store.GetDocument(ctx, v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if oldV1.Status != types.StatusSuperseded {
		t.Fatalf("expected v01.00 superseded, got %s", oldV1.Status)
	}
	latest, err := store.LatestEffective(ctx, v1.FamilyKey)
	if err != nil {
		t.Fatal(err)
	}
	if latest == nil || latest.ID != v2.ID {
		t.Fatalf("expected v01.01 as latest effective, got %+v", latest)
	}

	deps, err := store.GetOutboundDependencies(ctx, v2.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	foundSupersedes := false
	for _, d := range deps {
		if d.Type == types.DepSupersedes && d.ToID == v1.ID {
			foundSupersedes = true
		}
	}
	if !foundSupersedes {
		t.Error("expected a supersedes edge from v01.01 to v01.00")
	}
}

func TestUpversionCarriesContentAndCanEnterReview(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	v1 := draftWithContent(t, eng, "Cleaning Validation")
	runToEffective(t, eng, v1.ID)

	res, err := eng.StartVersionWorkflow(ctx, v1.ID, "alice", StartVersionInput{
		Bump:             BumpMajor,
		ReasonForChange:  "regulatory update",
		SummaryOfChanges: "new acceptance criteria",
		Reviewer:         "bob",
		Approver:         "carol",
	})
	if err != nil {
		t.Fatalf("StartVersionWorkflow failed: %v", err)
	}
	if res.NewState != types.StatusPendingReview {
		t.Fatalf("expected pending_review after auto-submit, got %s", res.NewState)
	}
	if res.WorkflowID == "" {
		t.Error("expected a review workflow on auto-submit")
	}
	v2, err := store.GetDocument(ctx, res.DocumentID)
	if err != nil {
		t.Fatal(err)
	}
	if v2.FileReference == "" {
		t.Error("expected the prior version's content to carry forward")
	}
	base, err := store.GetDocument(ctx, v1.ID)
	if err != nil {
		t.Fatal(err)
	}
	if v2.FileReference != base.FileReference {
		t.Errorf("file reference diverged: %s vs %s", v2.FileReference, base.FileReference)
	}

	// Naming only one of the pair is rejected up front.
	v3 := draftWithContent(t, eng, "Another Procedure")
	runToEffective(t, eng, v3.ID)
	if _, err := eng.StartVersionWorkflow(ctx, v3.ID, "alice", StartVersionInput{
		Bump: BumpMinor, ReasonForChange: "tweak", SummaryOfChanges: "wording",
		Reviewer: "bob",
	}); !types.IsCode(err, types.CodeMissingRequiredField) {
		t.Fatalf("expected MISSING_REQUIRED_FIELD for reviewer without approver, got %v", err)
	}
}

func TestDownloadSignedCopy(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Released Procedure")

	// Nothing to download before release.
	if _, _, err := eng.DownloadSignedCopy(ctx, doc.ID, "eve"); !types.IsCode(err, types.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION for a draft, got %v", err)
	}

	runToEffective(t, eng, doc.ID)

	got, data, err := eng.DownloadSignedCopy(ctx, doc.ID, "eve")
	if err != nil {
		t.Fatalf("DownloadSignedCopy failed: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("wrong document returned: %s", got.ID)
	}
	if len(data) == 0 || !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("expected PDF bytes, got %d bytes", len(data))
	}

	// The read capability is still required.
	if _, _, err := eng.DownloadSignedCopy(ctx, doc.ID, "nobody"); !types.IsCode(err, types.CodePermissionDenied) {
		t.Fatalf("expected PERMISSION_DENIED for unknown user, got %v", err)
	}
}

func TestUpversionResolvesDependenciesToLatestEffective(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	// B v1 effective, referenced by A v1.
	b1 := draftWithContent(t, eng, "Base Policy")
	runToEffective(t, eng, b1.ID)

	a1 := draftWithContent(t, eng, "Working Procedure")
	if _, err := eng.AddDependency(ctx, "alice", a1.ID, b1.ID, types.DepReference, false); err != nil {
		t.Fatal(err)
	}
	runToEffective(t, eng, a1.ID)

	// B moves on to v2.
	bres, err := eng.StartVersionWorkflow(ctx, b1.ID, "alice", StartVersionInput{
		Bump: BumpMajor, ReasonForChange: "restructure", SummaryOfChanges: "reorganized sections",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AttachFile(ctx, bres.DocumentID, "alice", "md", []byte(testBody)); err != nil {
		t.Fatal(err)
	}
	runToEffective(t, eng, bres.DocumentID)

	// A's next version should point at B v2, not B v1.
	ares, err := eng.StartVersionWorkflow(ctx, a1.ID, "alice", StartVersionInput{
		Bump: BumpMinor, ReasonForChange: "align with new base", SummaryOfChanges: "updated references",
	})
	if err != nil {
		t.Fatal(err)
	}
	deps, err := store.GetOutboundDependencies(ctx, ares.DocumentID, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 {
		t.Fatalf("expected 1 inherited dependency, got %d", len(deps))
	}
	if deps[0].ToID != bres.DocumentID {
		t.Errorf("dependency points at %s, want latest effective %s", deps[0].ToID, bres.DocumentID)
	}
}

func TestUpversionWarnsOnUnresolvedDependency(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	orphan := draftWithContent(t, eng, "Never Effective")
	a := draftWithContent(t, eng, "Refers to Draft")
	if _, err := eng.AddDependency(ctx, "alice", a.ID, orphan.ID, types.DepReference, false); err != nil {
		t.Fatal(err)
	}
	runToEffective(t, eng, a.ID)

	res, err := eng.StartVersionWorkflow(ctx, a.ID, "alice", StartVersionInput{
		Bump: BumpMinor, ReasonForChange: "update", SummaryOfChanges: "dependency cleanup",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected an unresolved dependency warning")
	}
}

func TestThreeHopCycleRejected(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	a := draftWithContent(t, eng, "Doc A")
	b := draftWithContent(t, eng, "Doc B")
	c := draftWithContent(t, eng, "Doc C")

	if _, err := eng.AddDependency(ctx, "alice", a.ID, b.ID, types.DepReference, false); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AddDependency(ctx, "alice", b.ID, c.ID, types.DepReference, false); err != nil {
		t.Fatal(err)
	}
	_, err := eng.AddDependency(ctx, "alice", c.ID, a.ID, types.DepReference, false)
	if !types.IsCode(err, types.CodeCircularDependency) {
		t.Fatalf("expected CIRCULAR_DEPENDENCY, got %v", err)
	}
}

func TestScheduledObsolescence(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Retiring Procedure")
	runToEffective(t, eng, doc.ID)

	next := testClock.AddDate(0, 0, 7)
	res, err := eng.ScheduleObsolescence(ctx, doc.ID, "carol", &next, "replaced by new process")
	if err != nil {
		t.Fatalf("ScheduleObsolescence failed: %v", err)
	}
	if res.NewState != types.StatusScheduledForObsolescence {
		t.Fatalf("expected scheduled_for_obsolescence, got %s", res.NewState)
	}
	// An obsolescence workflow stays open until the date is processed, with
	// the retirement date as its due date.
	wf, err := store.GetActiveWorkflow(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if wf == nil || wf.Type != types.WorkflowObsolescence {
		t.Fatalf("expected an open obsolescence workflow, got %+v", wf)
	}
	if wf.DueAt == nil || !wf.DueAt.Equal(time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("obsolescence workflow due %v, want the retirement date", wf.DueAt)
	}

	// A scheduled document can no longer start a new version.
	if _, err := eng.StartVersionWorkflow(ctx, doc.ID, "alice", StartVersionInput{
		Bump: BumpMinor, ReasonForChange: "late edit", SummaryOfChanges: "n/a",
	}); !types.IsCode(err, types.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION for up-version of scheduled document, got %v", err)
	}

	if _, err := eng.ProcessObsolescence(ctx, doc.ID); !types.IsCode(err, types.CodeConflict) {
		t.Fatalf("expected CONFLICT for early obsolescence, got %v", err)
	}

	eng.now = func() time.Time { return testClock.AddDate(0, 0, 8) }
	if _, err := eng.ProcessObsolescence(ctx, doc.ID); err != nil {
		t.Fatalf("ProcessObsolescence failed: %v", err)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.StatusObsolete {
		t.Fatalf("expected obsolete, got %s", got.Status)
	}
	if got.ObsoletedAt == nil {
		t.Error("expected obsoleted_at to be recorded")
	}
	if open, _ := store.GetActiveWorkflow(ctx, doc.ID); open != nil {
		t.Errorf("expected the obsolescence workflow closed after processing, got %s", open.ID)
	}
	closed, err := store.GetWorkflow(ctx, wf.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !closed.IsTerminated {
		t.Error("expected the obsolescence workflow instance terminated")
	}
}

func TestObsolescenceBlockedByActiveDependent(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	base := draftWithContent(t, eng, "Foundation Policy")
	runToEffective(t, eng, base.ID)

	dep := draftWithContent(t, eng, "Implementing Procedure")
	if _, err := eng.AddDependency(ctx, "alice", dep.ID, base.ID, types.DepImplements, true); err != nil {
		t.Fatal(err)
	}
	runToEffective(t, eng, dep.ID)

	_, err := eng.ScheduleObsolescence(ctx, base.ID, "carol", nil, "cleanup")
	if !types.IsCode(err, types.CodeDependentStillActive) {
		t.Fatalf("expected DEPENDENT_STILL_ACTIVE, got %v", err)
	}
}

func TestTerminateClosesWorkflows(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Abandoned Draft")
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); err != nil {
		t.Fatal(err)
	}
	res, err := eng.TerminateDocument(ctx, doc.ID, "alice", "superseded by project cancellation")
	if err != nil {
		t.Fatalf("TerminateDocument failed: %v", err)
	}
	if res.NewState != types.StatusTerminated {
		t.Fatalf("expected terminated, got %s", res.NewState)
	}
	if wf, _ := store.GetActiveWorkflow(ctx, doc.ID); wf != nil {
		t.Error("expected open workflows closed on termination")
	}
	// The termination itself runs as a workflow; the instance is recorded
	// already closed.
	wf, err := store.GetWorkflow(ctx, res.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}
	if wf.Type != types.WorkflowTermination || !wf.IsTerminated {
		t.Errorf("expected a closed termination workflow, got %s terminated=%v", wf.Type, wf.IsTerminated)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TerminatedAt == nil {
		t.Error("expected terminated_at to be recorded")
	}
}

func TestEffectiveDocumentIsImmutable(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Frozen Procedure")
	runToEffective(t, eng, doc.ID)

	if _, err := eng.AttachFile(ctx, doc.ID, "alice", "md", []byte("new content")); !types.IsCode(err, types.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION attaching to effective document, got %v", err)
	}
	if _, err := eng.SubmitForReview(ctx, doc.ID, "alice", "bob", "carol", ""); !types.IsCode(err, types.CodeInvalidTransition) {
		t.Fatalf("expected INVALID_TRANSITION submitting effective document, got %v", err)
	}
}

func TestLastSuperuserProtected(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	err := eng.RevokeSuperuser(ctx, "dana", "dana")
	if !types.IsCode(err, types.CodeLastSuperuserProtected) {
		t.Fatalf("expected LAST_SUPERUSER_PROTECTED, got %v", err)
	}

	if err := eng.GrantSuperuser(ctx, "dana", "eve"); err != nil {
		t.Fatalf("GrantSuperuser failed: %v", err)
	}
	if err := eng.RevokeSuperuser(ctx, "eve", "dana"); err != nil {
		t.Fatalf("RevokeSuperuser failed with a second superuser present: %v", err)
	}
	count, err := store.CountActiveSuperusers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected 1 superuser, got %d", count)
	}
}

func TestPeriodicReviewOutcomes(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	doc := draftWithContent(t, eng, "Annual Review Target")
	runToEffective(t, eng, doc.ID)

	res, err := eng.RecordPeriodicReview(ctx, doc.ID, "bob", types.ReviewConfirmed, "still accurate", 12)
	if err != nil {
		t.Fatalf("RecordPeriodicReview failed: %v", err)
	}
	if res.RequiresUpversion {
		t.Error("confirmed outcome should not require up-version")
	}
	wf, err := store.GetWorkflow(ctx, res.WorkflowID)
	if err != nil {
		t.Fatal(err)
	}
	if wf.Type != types.WorkflowPeriodicReview || !wf.IsTerminated {
		t.Errorf("expected a closed periodic review workflow, got %s terminated=%v", wf.Type, wf.IsTerminated)
	}
	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2027, 3, 10, 0, 0, 0, 0, time.UTC)
	if got.NextPeriodicReviewDate == nil || !got.NextPeriodicReviewDate.Equal(want) {
		t.Errorf("next review = %v, want %v", got.NextPeriodicReviewDate, want)
	}

	res, err = eng.RecordPeriodicReview(ctx, doc.ID, "bob", types.ReviewMinorUpversion, "needs refresh", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !res.RequiresUpversion {
		t.Error("up-version outcome should flag RequiresUpversion")
	}

	reviews, err := store.GetPeriodicReviews(ctx, doc.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(reviews) != 2 {
		t.Fatalf("expected 2 periodic reviews, got %d", len(reviews))
	}
}

func TestMissingCapabilityDenied(t *testing.T) {
	eng, store := setupEngine(t)
	ctx := context.Background()

	// eve only holds read.
	_, err := eng.CreateDocument(ctx, "eve", CreateDocumentInput{Title: "Nope", TypeCode: "SOP"})
	if !types.IsCode(err, types.CodePermissionDenied) {
		t.Fatalf("expected PERMISSION_DENIED, got %v", err)
	}
	head, err := store.GetAuditHead(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if head == nil || head.Action != types.AuditAccessDenied {
		t.Errorf("expected denied attempt audited, head is %+v", head)
	}
}

func TestSupersedesEdgeNotUserEditable(t *testing.T) {
	eng, _ := setupEngine(t)
	ctx := context.Background()

	a := draftWithContent(t, eng, "Doc A")
	b := draftWithContent(t, eng, "Doc B")
	_, err := eng.AddDependency(ctx, "alice", a.ID, b.ID, types.DepSupersedes, false)
	if !types.IsCode(err, types.CodePermissionDenied) {
		t.Fatalf("expected PERMISSION_DENIED for user supersedes edge, got %v", err)
	}
}
