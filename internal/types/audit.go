package types

import "time"

// AuditAction categorizes audit trail entries.
type AuditAction string

// Audit action constants
const (
	AuditDocCreated                  AuditAction = "DOC_CREATED"
	AuditDocUpdated                  AuditAction = "DOC_UPDATED"
	AuditReviewSubmitted             AuditAction = "REVIEW_SUBMITTED"
	AuditReviewAccepted              AuditAction = "REVIEW_ACCEPTED"
	AuditReviewCompleted             AuditAction = "REVIEW_COMPLETED"
	AuditReviewRejected              AuditAction = "REVIEW_REJECTED"
	AuditApprovalRouted              AuditAction = "APPROVAL_ROUTED"
	AuditApprovalAccepted            AuditAction = "APPROVAL_ACCEPTED"
	AuditDocApproved                 AuditAction = "DOC_APPROVED"
	AuditDocApprovedPendingEffective AuditAction = "DOC_APPROVED_PENDING_EFFECTIVE"
	AuditApprovalRejected            AuditAction = "APPROVAL_REJECTED"
	AuditDocEffectiveProcessed       AuditAction = "DOC_EFFECTIVE_PROCESSED"
	AuditDocSuperseded               AuditAction = "DOC_SUPERSEDED"
	AuditObsolescenceScheduled       AuditAction = "OBSOLESCENCE_SCHEDULED"
	AuditDocObsoleted                AuditAction = "DOC_OBSOLETED"
	AuditDocTerminated               AuditAction = "DOC_TERMINATED"
	AuditVersionStarted              AuditAction = "VERSION_STARTED"
	AuditDependencyAdded             AuditAction = "DEPENDENCY_ADDED"
	AuditDependencyRemoved           AuditAction = "DEPENDENCY_REMOVED"
	AuditPeriodicReview              AuditAction = "PERIODIC_REVIEW_RECORDED"
	AuditDocSigned                   AuditAction = "DOC_SIGNED"
	AuditRoleGranted                 AuditAction = "ROLE_GRANTED"
	AuditRoleRevoked                 AuditAction = "ROLE_REVOKED"
	AuditSuperuserGranted            AuditAction = "SUPERUSER_GRANTED"
	AuditSuperuserRevoked            AuditAction = "SUPERUSER_REVOKED"
	AuditAccessDenied                AuditAction = "ACCESS_DENIED"
	AuditIntegrityAlert              AuditAction = "INTEGRITY_ALERT"
	AuditTaskExecuted                AuditAction = "TASK_EXECUTED"
)

// AuditEntry is an immutable, checksum-chained activity record.
//
// Entries are never updated and never deleted. Sequence strictly increases
// and each entry's PreviousChecksum equals the checksum of the entry before
// it, so any retroactive edit breaks the chain.
type AuditEntry struct {
	Sequence int64       `json:"sequence"`
	Actor    string      `json:"actor"` // SystemActor for scheduler-driven entries
	Action   AuditAction `json:"action"`

	TargetKind        string `json:"target_kind"`
	TargetID          string `json:"target_id"`
	TargetDisplayName string `json:"target_display_name,omitempty"`

	FromState Status `json:"from_state,omitempty"`
	ToState   Status `json:"to_state,omitempty"`

	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	// SessionID is nullable by contract: API-originated entries may carry no
	// session. An empty value must never fail the write.
	SessionID string `json:"session_id,omitempty"`

	PreviousChecksum string `json:"previous_checksum"`
	Checksum         string `json:"checksum"`
}
