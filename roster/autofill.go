/*
autofill.go - Single-post night autofill

PURPOSE:
  The narrow variant of the builder used when a post's own staff
  self-cover instead of drawing from the department pool: the pool is
  exactly the contract holders of one post (commonly one person or a
  small job-share group), call type is always night, coverage is one per
  night. Rest, teaching, leave, and freeze checks are identical to the
  full build; the overwrite scope is the post's own night slots only.
*/
package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AutofillByPost assigns one night slot per night of the month from the
// post's contract holders. Posts without an explicit call policy do not
// self-cover; resolving them yields ErrNoEligibleCandidates.
func (b *Builder) AutofillByPost(ctx context.Context, postID int64, year, month int) (BuildResult, error) {
	if err := ValidatePeriod(year, month); err != nil {
		return BuildResult{}, err
	}
	if postID <= 0 {
		return BuildResult{}, fmt.Errorf("%w: post id required", ErrInvalidPeriod)
	}

	scope := SlotScope{
		Year:   year,
		Month:  time.Month(month),
		Types:  []SlotType{SlotNightCall},
		PostID: postID,
	}
	key := scope.LockKey()
	if err := b.locks.Acquire(key); err != nil {
		return BuildResult{}, err
	}
	defer b.locks.Release(key)

	req := BuildRequest{Year: year, Month: month, NightCallsPerDay: 1}
	spec := PoolSpec{PostID: postID}
	result, err := b.buildOnce(ctx, req, scope, spec)
	if IsRetryable(err) {
		b.log.Warn("store unavailable during autofill, retrying once",
			zap.Int64("post_id", postID), zap.Int("year", year), zap.Int("month", month))
		result, err = b.buildOnce(ctx, req, scope, spec)
	}
	if err != nil {
		return BuildResult{}, err
	}

	b.audit(ctx, AuditPostAutofill, result, scope)
	b.log.Info("post autofill complete",
		zap.String("run_id", result.RunID),
		zap.Int64("post_id", postID),
		zap.Int("created_slots", result.CreatedSlots),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// AssignSlot creates or overwrites one slot from a manual calendar edit.
// Any existing slot of the same type starting the same calendar day is
// replaced. The slot invariants (start < end) are enforced here; rest and
// teaching rules are deliberately not — manual edits are audited and
// surfaced by the validator instead of being blocked.
func (b *Builder) AssignSlot(ctx context.Context, slot Slot) (Slot, error) {
	if !slot.Start.Before(slot.End) {
		return Slot{}, fmt.Errorf("%w: slot start must precede end", ErrInvalidPeriod)
	}
	if slot.Type != SlotDayCall && slot.Type != SlotNightCall {
		return Slot{}, fmt.Errorf("%w: unknown slot type %q", ErrInvalidPeriod, slot.Type)
	}

	saved, err := b.store.SaveSlot(ctx, slot)
	if err != nil {
		return Slot{}, fmt.Errorf("save slot: %w", err)
	}

	if err := b.store.AppendAudit(ctx, AuditEntry{
		ID:     uuid.NewString(),
		Action: AuditSlotAssign,
		After: map[string]any{
			"slot_id": saved.ID,
			"user_id": saved.UserID,
			"start":   saved.Start,
			"end":     saved.End,
			"type":    saved.Type,
		},
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		b.log.Warn("audit append failed", zap.Error(err))
	}
	return saved, nil
}

// DeleteSlot removes one slot by explicit admin action.
func (b *Builder) DeleteSlot(ctx context.Context, id int64) error {
	if err := b.store.DeleteSlot(ctx, id); err != nil {
		return err
	}
	if err := b.store.AppendAudit(ctx, AuditEntry{
		ID:        uuid.NewString(),
		Action:    AuditSlotDelete,
		Before:    map[string]any{"slot_id": id},
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		b.log.Warn("audit append failed", zap.Error(err))
	}
	return nil
}
