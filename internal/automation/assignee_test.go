package automation

import (
	"testing"

	"github.com/teamleap/crmauto/internal/models"
)

func testEvent(ownerID, actorID uint64) TriggerEvent {
	return TriggerEvent{
		Kind:     EventStageMoved,
		TenantID: 1,
		Deal: DealSnapshot{
			DealID:      10,
			OwnerUserID: ownerID,
		},
		ActorUserID: actorID,
	}
}

func TestResolveAssigneeOwner(t *testing.T) {
	got := ResolveAssignee(models.AssigneeTargetOwner, nil, testEvent(7, 9))
	if got != 7 {
		t.Fatalf("expected owner 7, got %d", got)
	}
}

func TestResolveAssigneeMover(t *testing.T) {
	got := ResolveAssignee(models.AssigneeTargetMover, nil, testEvent(7, 9))
	if got != 9 {
		t.Fatalf("expected mover 9, got %d", got)
	}
}

func TestResolveAssigneeMoverFallsBackToOwner(t *testing.T) {
	// Scheduler-originated events carry no actor.
	got := ResolveAssignee(models.AssigneeTargetMover, nil, testEvent(7, 0))
	if got != 7 {
		t.Fatalf("expected owner fallback 7, got %d", got)
	}
}

func TestResolveAssigneeSpecific(t *testing.T) {
	specific := uint64(42)
	got := ResolveAssignee(models.AssigneeTargetSpecific, &specific, testEvent(7, 9))
	if got != 42 {
		t.Fatalf("expected specific 42, got %d", got)
	}
}

func TestResolveAssigneeSpecificWithoutUserFallsBack(t *testing.T) {
	got := ResolveAssignee(models.AssigneeTargetSpecific, nil, testEvent(7, 9))
	if got != 7 {
		t.Fatalf("expected owner fallback 7, got %d", got)
	}
}
