package types

import "testing"

func TestCanTransition(t *testing.T) {
	legal := []struct{ from, to Status }{
		{StatusDraft, StatusPendingReview},
		{StatusPendingReview, StatusUnderReview},
		{StatusUnderReview, StatusReviewCompleted},
		{StatusUnderReview, StatusDraft},
		{StatusReviewCompleted, StatusPendingApproval},
		{StatusPendingApproval, StatusUnderApproval},
		{StatusUnderApproval, StatusEffective},
		{StatusUnderApproval, StatusApprovedPendingEffective},
		{StatusUnderApproval, StatusDraft},
		{StatusApprovedPendingEffective, StatusEffective},
		{StatusEffective, StatusScheduledForObsolescence},
		{StatusEffective, StatusSuperseded},
		{StatusEffective, StatusObsolete},
		{StatusScheduledForObsolescence, StatusObsolete},
		{StatusDraft, StatusTerminated},
		{StatusPendingReview, StatusTerminated},
	}
	for _, tc := range legal {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be legal", tc.from, tc.to)
		}
	}

	illegal := []struct{ from, to Status }{
		{StatusDraft, StatusEffective},
		{StatusDraft, StatusUnderReview},
		{StatusPendingReview, StatusReviewCompleted},
		{StatusEffective, StatusDraft},
		{StatusEffective, StatusTerminated},
		{StatusObsolete, StatusDraft},
		{StatusSuperseded, StatusEffective},
		{StatusTerminated, StatusDraft},
		{StatusApprovedPendingEffective, StatusDraft},
	}
	for _, tc := range illegal {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("expected %s -> %s to be illegal", tc.from, tc.to)
		}
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	for _, s := range AllStatuses {
		if !s.IsTerminal() {
			continue
		}
		if targets := AllowedTransitions(s); len(targets) != 0 {
			t.Errorf("terminal state %s has exits %v", s, targets)
		}
	}
}

func TestStateRegistryCoversAllStatuses(t *testing.T) {
	reg := StateRegistry()
	if len(reg) != len(AllStatuses) {
		t.Fatalf("registry has %d entries, want %d", len(reg), len(AllStatuses))
	}
	seen := map[Status]bool{}
	for _, info := range reg {
		if info.Name == string(info.Code) {
			t.Errorf("status %s has no display name", info.Code)
		}
		seen[info.Code] = true
	}
	for _, s := range AllStatuses {
		if !seen[s] {
			t.Errorf("status %s missing from registry", s)
		}
	}
}

func TestImmutableStates(t *testing.T) {
	doc := &Document{Status: StatusEffective}
	if !doc.Immutable() {
		t.Error("effective documents must be immutable")
	}
	doc.Status = StatusDraft
	if doc.Immutable() {
		t.Error("draft documents must be editable")
	}
}
