package types

// Status represents the lifecycle state of a document.
type Status string

// Document status constants. This set is closed: a status outside it is a
// data-integrity incident.
const (
	StatusDraft                    Status = "draft"
	StatusPendingReview            Status = "pending_review"
	StatusUnderReview              Status = "under_review"
	StatusReviewCompleted          Status = "review_completed"
	StatusPendingApproval          Status = "pending_approval"
	StatusUnderApproval            Status = "under_approval"
	StatusApprovedPendingEffective Status = "approved_pending_effective"
	StatusEffective                Status = "effective"
	StatusScheduledForObsolescence Status = "scheduled_for_obsolescence"
	StatusObsolete                 Status = "obsolete"
	StatusSuperseded               Status = "superseded"
	StatusRejected                 Status = "rejected"
	StatusTerminated               Status = "terminated"
	StatusCancelled                Status = "cancelled"
)

// AllStatuses lists every valid status code, in lifecycle order.
var AllStatuses = []Status{
	StatusDraft,
	StatusPendingReview,
	StatusUnderReview,
	StatusReviewCompleted,
	StatusPendingApproval,
	StatusUnderApproval,
	StatusApprovedPendingEffective,
	StatusEffective,
	StatusScheduledForObsolescence,
	StatusObsolete,
	StatusSuperseded,
	StatusRejected,
	StatusTerminated,
	StatusCancelled,
}

// IsValid checks if the status value is in the closed status set.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingReview, StatusUnderReview, StatusReviewCompleted,
		StatusPendingApproval, StatusUnderApproval, StatusApprovedPendingEffective,
		StatusEffective, StatusScheduledForObsolescence, StatusObsolete,
		StatusSuperseded, StatusRejected, StatusTerminated, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no transition, user or system, leaves this state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusObsolete, StatusSuperseded, StatusTerminated, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// transitionMatrix is the canonical set of legal transitions. Anything not
// listed here fails with ErrInvalidTransition. EFFECTIVE is quasi-terminal:
// the only exits are system- or approver-driven (supersession, obsolescence)
// and they are all listed.
var transitionMatrix = map[Status][]Status{
	StatusDraft:                    {StatusPendingReview, StatusTerminated},
	StatusPendingReview:            {StatusUnderReview, StatusTerminated},
	StatusUnderReview:              {StatusReviewCompleted, StatusDraft, StatusTerminated},
	StatusReviewCompleted:          {StatusPendingApproval, StatusTerminated},
	StatusPendingApproval:          {StatusUnderApproval, StatusTerminated},
	StatusUnderApproval:            {StatusApprovedPendingEffective, StatusEffective, StatusDraft, StatusTerminated},
	StatusApprovedPendingEffective: {StatusEffective, StatusTerminated},
	StatusEffective:                {StatusScheduledForObsolescence, StatusObsolete, StatusSuperseded},
	StatusScheduledForObsolescence: {StatusObsolete},
}

// CanTransition reports whether from -> to is a legal lifecycle transition.
func CanTransition(from, to Status) bool {
	for _, t := range transitionMatrix[from] {
		if t == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns the legal target states from the given state.
// Terminal states return nil.
func AllowedTransitions(from Status) []Status {
	targets := transitionMatrix[from]
	out := make([]Status, len(targets))
	copy(out, targets)
	return out
}

// StateInfo describes one entry of the state registry for API consumers.
type StateInfo struct {
	Code               Status   `json:"code"`
	Name               string   `json:"name"`
	IsTerminal         bool     `json:"is_terminal"`
	AllowedTransitions []Status `json:"allowed_transitions,omitempty"`
}

// stateNames maps status codes to display names.
var stateNames = map[Status]string{
	StatusDraft:                    "Draft",
	StatusPendingReview:            "Pending Review",
	StatusUnderReview:              "Under Review",
	StatusReviewCompleted:          "Review Completed",
	StatusPendingApproval:          "Pending Approval",
	StatusUnderApproval:            "Under Approval",
	StatusApprovedPendingEffective: "Approved, Pending Effective",
	StatusEffective:                "Effective",
	StatusScheduledForObsolescence: "Scheduled for Obsolescence",
	StatusObsolete:                 "Obsolete",
	StatusSuperseded:               "Superseded",
	StatusRejected:                 "Rejected",
	StatusTerminated:               "Terminated",
	StatusCancelled:                "Cancelled",
}

// Name returns the display name for a status code.
func (s Status) Name() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return string(s)
}

// StateRegistry returns the full state registry, one entry per status.
func StateRegistry() []StateInfo {
	out := make([]StateInfo, 0, len(AllStatuses))
	for _, s := range AllStatuses {
		out = append(out, StateInfo{
			Code:               s,
			Name:               s.Name(),
			IsTerminal:         s.IsTerminal(),
			AllowedTransitions: AllowedTransitions(s),
		})
	}
	return out
}
