// Package types defines core data structures for the doctrack document
// lifecycle core.
package types

import (
	"fmt"
	"time"
)

// Document represents a single version of a controlled document.
//
// Documents sharing a FamilyKey are versions of the same logical document;
// at most one member of a family may be EFFECTIVE at any time.
type Document struct {
	ID          string `json:"id"`
	Number      string `json:"number"` // human key, e.g. SOP-2026-0001, server-generated
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	TypeCode   string `json:"type"`   // DocumentType.Code, always the code string at this boundary
	SourceCode string `json:"source"` // DocumentSource.Code

	VersionMajor int    `json:"version_major"`
	VersionMinor int    `json:"version_minor"`
	FamilyKey    string `json:"family_key"`

	Status                 Status     `json:"status"`
	EffectiveDate          *time.Time `json:"effective_date,omitempty"`
	ObsolescenceDate       *time.Time `json:"obsolescence_date,omitempty"`
	NextPeriodicReviewDate *time.Time `json:"next_periodic_review_date,omitempty"`

	Author   string `json:"author"`
	Reviewer string `json:"reviewer,omitempty"`
	Approver string `json:"approver,omitempty"`

	FileReference   string `json:"file_reference,omitempty"` // opaque key into the file store
	SignedReference string `json:"signed_reference,omitempty"`

	ReasonForChange string `json:"reason_for_change,omitempty"`
	IsActive        bool   `json:"is_active"`

	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	ObsoletedAt  *time.Time `json:"obsoleted_at,omitempty"`
	TerminatedAt *time.Time `json:"terminated_at,omitempty"`
}

// FullVersion renders the document version as vMM.mm, e.g. v01.02.
func (d *Document) FullVersion() string {
	return fmt.Sprintf("v%02d.%02d", d.VersionMajor, d.VersionMinor)
}

// IsFirstVersion reports whether this is the initial version of its family.
func (d *Document) IsFirstVersion() bool {
	return d.VersionMajor <= 1 && d.VersionMinor == 0
}

// Immutable reports whether the document content may no longer change.
// Once a document reaches EFFECTIVE or any fully terminal state, the record
// is frozen; only system transitions (supersession, obsolescence) apply.
func (d *Document) Immutable() bool {
	switch d.Status {
	case StatusEffective, StatusObsolete, StatusSuperseded, StatusTerminated:
		return true
	}
	return false
}

// Validate checks structural field invariants. Transition legality and
// permission checks live in the lifecycle engine, not here.
func (d *Document) Validate() error {
	if d.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(d.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(d.Title))
	}
	if d.TypeCode == "" {
		return fmt.Errorf("document type is required")
	}
	if d.Author == "" {
		return fmt.Errorf("author is required")
	}
	if d.VersionMajor < 0 || d.VersionMinor < 0 {
		return fmt.Errorf("version numbers cannot be negative")
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", d.Status)
	}
	if !d.IsFirstVersion() && d.ReasonForChange == "" {
		return fmt.Errorf("reason_for_change is required for versions beyond v01.00")
	}
	if d.Status == StatusEffective {
		if d.EffectiveDate == nil {
			return fmt.Errorf("effective documents must have an effective_date")
		}
		if d.FileReference == "" {
			return fmt.Errorf("effective documents must have a file reference")
		}
	}
	return nil
}

// DocumentType classifies controlled documents (POL, SOP, WIN, ...).
type DocumentType struct {
	Code                   string `json:"code"`
	Name                   string `json:"name"`
	RequiresPeriodicReview bool   `json:"requires_periodic_review"`
	ReviewIntervalMonths   int    `json:"default_review_interval_months"`
}

// DocumentSource records where a document originated (internal, supplier, ...).
type DocumentSource struct {
	Code                 string `json:"code"`
	Name                 string `json:"name"`
	RequiresVerification bool   `json:"requires_verification"`
}

// Dependency is a typed, directional edge between two documents.
type Dependency struct {
	ID         string         `json:"id"`
	FromID     string         `json:"from_document"`
	ToID       string         `json:"to_document"`
	Type       DependencyType `json:"type"`
	IsCritical bool           `json:"is_critical"`
	IsActive   bool           `json:"is_active"`
	CreatedAt  time.Time      `json:"created_at"`
	CreatedBy  string         `json:"created_by"`
}

// DependencyType categorizes the relationship between documents.
type DependencyType string

// Dependency type constants
const (
	DepImplements   DependencyType = "implements" // typically critical
	DepSupports     DependencyType = "supports"
	DepTemplate     DependencyType = "template"
	DepReference    DependencyType = "reference"
	DepIncorporates DependencyType = "incorporates"
	// DepSupersedes edges are system-generated on family supersession and
	// never user-editable.
	DepSupersedes DependencyType = "supersedes"
)

// IsValid checks if the dependency type value is valid.
func (d DependencyType) IsValid() bool {
	switch d {
	case DepImplements, DepSupports, DepTemplate, DepReference, DepIncorporates, DepSupersedes:
		return true
	}
	return false
}

// UserEditable reports whether users may create or deactivate this edge type.
func (d DependencyType) UserEditable() bool {
	return d != DepSupersedes
}

// WorkflowType identifies the workflow driving a document through its lifecycle.
type WorkflowType string

// Workflow type constants
const (
	WorkflowReview         WorkflowType = "review"
	WorkflowApproval       WorkflowType = "approval"
	WorkflowUpVersion      WorkflowType = "up_version"
	WorkflowObsolescence   WorkflowType = "obsolescence"
	WorkflowTermination    WorkflowType = "termination"
	WorkflowPeriodicReview WorkflowType = "periodic_review"
)

// IsValid checks if the workflow type value is valid.
func (w WorkflowType) IsValid() bool {
	switch w {
	case WorkflowReview, WorkflowApproval, WorkflowUpVersion,
		WorkflowObsolescence, WorkflowTermination, WorkflowPeriodicReview:
		return true
	}
	return false
}

// WorkflowInstance tracks one active workflow on a document.
type WorkflowInstance struct {
	ID              string       `json:"id"`
	DocumentID      string       `json:"document_id"`
	Type            WorkflowType `json:"workflow_type"`
	CurrentState    Status       `json:"current_state"`
	InitiatedBy     string       `json:"initiated_by"`
	CurrentAssignee string       `json:"current_assignee,omitempty"`
	InitiatedAt     time.Time    `json:"initiated_at"`
	DueAt           *time.Time   `json:"due_at,omitempty"`
	IsTerminated    bool         `json:"is_terminated"`
}

// WorkflowTransition is an immutable record of a single state change.
type WorkflowTransition struct {
	ID         int64     `json:"id"`
	WorkflowID string    `json:"workflow_id"`
	FromState  Status    `json:"from_state"`
	ToState    Status    `json:"to_state"`
	Actor      string    `json:"actor"`
	Comment    string    `json:"comment,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// PeriodicReviewOutcome is the result recorded at a scheduled periodic review.
type PeriodicReviewOutcome string

// Periodic review outcome constants
const (
	ReviewConfirmed      PeriodicReviewOutcome = "confirmed"
	ReviewMinorUpversion PeriodicReviewOutcome = "minor_upversion"
	ReviewMajorUpversion PeriodicReviewOutcome = "major_upversion"
)

// IsValid checks if the outcome value is valid.
func (o PeriodicReviewOutcome) IsValid() bool {
	switch o {
	case ReviewConfirmed, ReviewMinorUpversion, ReviewMajorUpversion:
		return true
	}
	return false
}

// PeriodicReview records the outcome of a scheduled review of an effective
// document.
type PeriodicReview struct {
	ID               string                `json:"id"`
	DocumentID       string                `json:"document_id"`
	Reviewer         string                `json:"reviewer"`
	Outcome          PeriodicReviewOutcome `json:"outcome"`
	Comments         string                `json:"comments,omitempty"`
	NextReviewMonths int                   `json:"next_review_months,omitempty"`
	LinkedNewVersion string                `json:"linked_new_version,omitempty"`
	CreatedAt        time.Time             `json:"created_at"`
}

// ScheduledTask is the persisted record of a background task execution,
// kept in the relational store for monitoring.
type ScheduledTask struct {
	Name          string     `json:"name"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	Completed     bool       `json:"completed"`
	ResultStatus  string     `json:"result_status,omitempty"`
	LastRunAt     *time.Time `json:"last_run_at,omitempty"`
	TotalRunCount int        `json:"total_run_count"`
}

// User is a reference record; user CRUD is handled outside the core.
type User struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	DisplayName string   `json:"display_name,omitempty"`
	IsActive    bool     `json:"is_active"`
	IsSuperuser bool     `json:"is_superuser"`
	Roles       []string `json:"roles,omitempty"`
}

// SystemActor is the principal recorded for scheduler-driven transitions.
const SystemActor = "system"

// DocumentFilter is used to filter document queries.
type DocumentFilter struct {
	Status    *Status
	TypeCode  string
	FamilyKey string
	Author    string

	EffectiveOnOrBefore    *time.Time // for process-effective-dates
	ObsolescenceOnOrBefore *time.Time // for process-obsoletion-dates
	ReviewDueOnOrBefore    *time.Time // for process-periodic-reviews

	IncludeInactive bool
	Limit           int
}

// Statistics provides aggregate metrics over the document store.
type Statistics struct {
	TotalDocuments     int `json:"total_documents"`
	DraftDocuments     int `json:"draft_documents"`
	InReviewDocuments  int `json:"in_review_documents"`
	EffectiveDocuments int `json:"effective_documents"`
	ObsoleteDocuments  int `json:"obsolete_documents"`
	ActiveWorkflows    int `json:"active_workflows"`
	OverdueWorkflows   int `json:"overdue_workflows"`
	AuditEntries       int `json:"audit_entries"`
}
