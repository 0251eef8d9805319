/*
store.go - Persistence interface for the roster engine

PURPOSE:
  The only seam between the engine and the persisted admin store. The
  engine computes desired slot sets; the Store performs the transactional
  overwrite. Different implementations back this with SQLite
  (store/sqlite) or memory (roster/store, for tests).

OVERWRITE CONTRACT:
  ReplaceSlots is the single write path for builds: delete every slot in
  the scope at or after keepBefore, insert the new set, atomically. On
  failure no partial overwrite is left behind. A zero keepBefore deletes
  the whole scope.

TIMEOUTS:
  Bounded-duration calls are the implementation's responsibility. A timed
  out call surfaces as ErrStoreUnavailable, which the builder retries
  exactly once.
*/
package roster

import (
	"context"
	"time"
)

// Store is the engine-facing persistence interface. The Slot Store Adapter
// is the sole writer of slots; the builder and autofill hand desired slot
// sets to ReplaceSlots and never write rows themselves.
type Store interface {
	// PeopleByID returns the people with the given IDs, keyed by ID.
	// Missing IDs are simply absent.
	PeopleByID(ctx context.Context, ids []int64) (map[int64]Person, error)

	// PostsByID returns the posts with the given IDs, keyed by ID.
	PostsByID(ctx context.Context, ids []int64) (map[int64]Post, error)

	// ContractsOverlapping returns all contracts in force at any point in
	// [from, to), joined with nothing; callers resolve people and posts
	// separately.
	ContractsOverlapping(ctx context.Context, from, to Date) ([]Contract, error)

	// GroupsByKind returns all groups of one kind with parsed rules.
	GroupsByKind(ctx context.Context, kind GroupKind) ([]Group, error)

	// SlotsInRange returns all slots overlapping [from, to), ordered by
	// start time then ID.
	SlotsInRange(ctx context.Context, from, to time.Time) ([]Slot, error)

	// ReplaceSlots atomically deletes every slot in scope whose start is
	// at or after keepBefore (all of them when keepBefore is zero) and
	// inserts the given slots. Returns the number of slots created.
	ReplaceSlots(ctx context.Context, scope SlotScope, keepBefore time.Time, slots []Slot) (int, error)

	// SaveSlot overwrites any existing slot of the same type starting the
	// same calendar day, then inserts the slot. Used for manual edits.
	SaveSlot(ctx context.Context, slot Slot) (Slot, error)

	// DeleteSlot removes one slot. ErrSlotNotFound when absent.
	DeleteSlot(ctx context.Context, id int64) error

	// ApprovedLeaveOverlapping returns approved leave intersecting
	// [from, to).
	ApprovedLeaveOverlapping(ctx context.Context, from, to time.Time) ([]Leave, error)

	// HolidaysInRange returns observed holidays with dates in [from, to].
	HolidaysInRange(ctx context.Context, from, to Date) ([]Holiday, error)

	// AppendAudit records an audit entry. Append-only.
	AppendAudit(ctx context.Context, entry AuditEntry) error
}
