package automation

import (
	"fmt"

	"github.com/teamleap/crmauto/internal/models"
)

// ResolutionError reports that a rule's assignee could not be resolved at
// fire time. The firing is aborted for that deal; other rules continue.
type ResolutionError struct {
	RuleKind models.RuleKind
	RuleID   uint64
	DealID   uint64
	UserID   uint64
	Reason   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("automation: resolve assignee for %s rule %d deal %d user %d: %s",
		e.RuleKind, e.RuleID, e.DealID, e.UserID, e.Reason)
}

// EmissionError reports a task-store write failure after a dedupe claim was
// granted. The claim is deliberately not released: retrying would risk a
// duplicate task, so the miss is logged for manual reconciliation instead.
type EmissionError struct {
	RuleKind models.RuleKind
	RuleID   uint64
	DealID   uint64
	Err      error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("automation: emit task for %s rule %d deal %d: %v",
		e.RuleKind, e.RuleID, e.DealID, e.Err)
}

func (e *EmissionError) Unwrap() error {
	return e.Err
}
