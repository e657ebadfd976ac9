package automation

import "time"

// EventKind names a trigger event type.
type EventKind string

// EventKind values.
const (
	// EventStageMoved fires when a deal changes stage.
	EventStageMoved EventKind = "stage_moved"
	// EventDealWon fires when a deal enters a closed-won stage.
	EventDealWon EventKind = "deal_won"
	// EventStaleScanTick originates from the background scanner.
	EventStaleScanTick EventKind = "stale_scan_tick"
)

// DealSnapshot carries the deal fields evaluation needs so rules never
// re-query the deal mid-evaluation.
type DealSnapshot struct {
	DealID      uint64
	Name        string
	Amount      float64
	Currency    string
	OwnerUserID uint64
	OwnerName   string
}

// TriggerEvent is a transient pipeline occurrence rules are evaluated
// against. It is never persisted.
type TriggerEvent struct {
	Kind     EventKind
	TenantID uint64

	Deal DealSnapshot

	// MoveID is the StageMove row ID that produced this event. It is the
	// event identity embedded in transition dedupe keys: redelivering the
	// same event carries the same MoveID, while a second real transition
	// carries a new one.
	MoveID uint64

	FromStageID   *uint64
	ToStageID     uint64
	FromStageName string
	ToStageName   string

	// ActorUserID is zero for scheduler-originated events.
	ActorUserID uint64
	ActorName   string

	At time.Time
}
