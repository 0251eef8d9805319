/*
builder.go - Month roster construction

PURPOSE:
  Assigns people to day/night call slots for a whole month by round-robin
  over the eligible pool, respecting contracts, core hours, teaching
  blocks, approved leave, nightly caps, rest floors, and freeze dates.

ROUND-ROBIN:
  The cursor starts at index 0 on every build invocation and advances one
  position past each successful assignment, wrapping. A full re-run with
  identical inputs therefore reproduces the exact same roster: builds are
  idempotent overwrites, never accumulations.

DISQUALIFICATION IS NOT FAILURE:
  When a candidate can't take a slot (teaching conflict, rest conflict,
  night cap) the next candidate in rotation is tried. When every candidate
  is disqualified the period is left unassigned and recorded as a warning;
  the build continues. The validator's coverage check surfaces the gap.

OVERWRITE:
  The computed slot set replaces everything in the scope (month, requested
  call types, pool) on or after the freeze date, in one store transaction.
  A store timeout is retried exactly once with no assignment state carried
  over.
*/
package roster

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// BuildRequest describes one roster build.
type BuildRequest struct {
	Year             int
	Month            int
	DayCallsPerDay   int
	NightCallsPerDay int
	PoolRoles        []string
	FreezeBefore     Date // zero = rebuild the whole month
}

// BuildResult reports what a build produced. Warnings list the periods
// left unassigned because every candidate was disqualified.
type BuildResult struct {
	RunID        string
	CreatedSlots int
	Warnings     []string
}

// Builder assigns duty slots for whole months.
type Builder struct {
	store    Store
	resolver *Resolver
	locks    *ScopeLocks
	log      *zap.Logger
}

// NewBuilder creates a builder. The same ScopeLocks instance must be
// shared with every component that overwrites slots.
func NewBuilder(store Store, locks *ScopeLocks, log *zap.Logger) *Builder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Builder{
		store:    store,
		resolver: NewResolver(store),
		locks:    locks,
		log:      log,
	}
}

// Build assigns the month described by req and commits it through the
// store in a single overwrite. Holds the scope lock for the duration.
func (b *Builder) Build(ctx context.Context, req BuildRequest) (BuildResult, error) {
	if err := ValidatePeriod(req.Year, req.Month); err != nil {
		return BuildResult{}, err
	}
	if req.DayCallsPerDay < 0 || req.NightCallsPerDay < 0 {
		return BuildResult{}, fmt.Errorf("%w: negative calls per day", ErrInvalidPeriod)
	}
	scope := SlotScope{Year: req.Year, Month: time.Month(req.Month), Types: requestedTypes(req)}
	if len(scope.Types) == 0 {
		return BuildResult{}, fmt.Errorf("%w: no call types requested", ErrInvalidPeriod)
	}

	key := scope.LockKey()
	if err := b.locks.Acquire(key); err != nil {
		return BuildResult{}, err
	}
	defer b.locks.Release(key)

	spec := PoolSpec{Roles: req.PoolRoles}
	result, err := b.buildOnce(ctx, req, scope, spec)
	if IsRetryable(err) {
		b.log.Warn("store unavailable during build, retrying once",
			zap.Int("year", req.Year), zap.Int("month", req.Month))
		result, err = b.buildOnce(ctx, req, scope, spec)
	}
	if err != nil {
		return BuildResult{}, err
	}

	b.audit(ctx, AuditRosterBuild, result, scope)
	b.log.Info("roster build complete",
		zap.String("run_id", result.RunID),
		zap.Int("year", req.Year), zap.Int("month", req.Month),
		zap.Int("created_slots", result.CreatedSlots),
		zap.Int("warnings", len(result.Warnings)))
	return result, nil
}

// buildOnce computes and commits one assignment pass. It carries no state
// between invocations so a retry restarts cleanly.
func (b *Builder) buildOnce(ctx context.Context, req BuildRequest, scope SlotScope, spec PoolSpec) (BuildResult, error) {
	candidates, err := b.resolver.Resolve(ctx, req.Year, req.Month, spec)
	if err != nil {
		return BuildResult{}, err
	}
	if len(candidates) == 0 {
		return BuildResult{}, fmt.Errorf("pool %v for %04d-%02d: %w",
			poolName(spec), req.Year, req.Month, ErrNoEligibleCandidates)
	}

	run, err := b.newAssignmentRun(ctx, req, scope, candidates)
	if err != nil {
		return BuildResult{}, err
	}

	days, _ := DaysInMonth(req.Year, req.Month)
	perType := map[SlotType]int{SlotDayCall: req.DayCallsPerDay, SlotNightCall: req.NightCallsPerDay}
	for day := 1; day <= days; day++ {
		date := NewDate(req.Year, time.Month(req.Month), day)
		if !req.FreezeBefore.IsZero() && date.Before(req.FreezeBefore) {
			continue
		}
		// Day call is assigned before night call, always.
		for _, typ := range scope.Types {
			for unit := 0; unit < perType[typ]; unit++ {
				run.assign(typ, date)
			}
		}
	}

	var keepBefore time.Time
	if !req.FreezeBefore.IsZero() {
		keepBefore = req.FreezeBefore.Time()
	}
	created, err := b.store.ReplaceSlots(ctx, scope, keepBefore, run.slots)
	if err != nil {
		return BuildResult{}, fmt.Errorf("commit roster: %w", err)
	}

	return BuildResult{
		RunID:        uuid.NewString(),
		CreatedSlots: created,
		Warnings:     run.warnings,
	}, nil
}

func (b *Builder) audit(ctx context.Context, action string, result BuildResult, scope SlotScope) {
	entry := AuditEntry{
		ID:     uuid.NewString(),
		Action: action,
		After: map[string]any{
			"run_id":        result.RunID,
			"scope":         scope.LockKey(),
			"created_slots": result.CreatedSlots,
			"warnings":      len(result.Warnings),
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := b.store.AppendAudit(ctx, entry); err != nil {
		b.log.Warn("audit append failed", zap.Error(err))
	}
}

func requestedTypes(req BuildRequest) []SlotType {
	var types []SlotType
	if req.DayCallsPerDay > 0 {
		types = append(types, SlotDayCall)
	}
	if req.NightCallsPerDay > 0 {
		types = append(types, SlotNightCall)
	}
	return types
}

func poolName(spec PoolSpec) any {
	if spec.PostID != 0 {
		return fmt.Sprintf("post:%d", spec.PostID)
	}
	return spec.Roles
}

// =============================================================================
// ASSIGNMENT RUN - Mutable state for one pass over the month
// =============================================================================

// assignmentRun holds the cursor and the per-person assignment state for
// a single build invocation. Nothing here survives the run.
type assignmentRun struct {
	candidates []Candidate
	cursor     int

	slots    []Slot
	warnings []string

	// byUser holds every slot that constrains rest checks: slots
	// produced in this run plus committed context (previous month's
	// tail, frozen slots, slots outside the scope being replaced).
	byUser map[int64][]Slot
	nights map[int64]int

	leave    map[int64][]Leave
	teaching map[int64][]Window // dated teaching windows, keyed by post ID
	holidays map[string]bool    // keyed by Date.String()

	minRestDefault int
}

// newAssignmentRun loads the committed context the run must respect.
func (b *Builder) newAssignmentRun(ctx context.Context, req BuildRequest, scope SlotScope, candidates []Candidate) (*assignmentRun, error) {
	mw, err := MonthWindow(req.Year, req.Month)
	if err != nil {
		return nil, err
	}

	run := &assignmentRun{
		candidates: candidates,
		byUser:     make(map[int64][]Slot),
		nights:     make(map[int64]int),
		leave:      make(map[int64][]Leave),
		teaching:   make(map[int64][]Window),
		holidays:   make(map[string]bool),
	}

	// Committed slots that survive the overwrite still constrain rest:
	// the previous month's tail, anything before the freeze date, and
	// slot types outside this scope.
	existing, err := b.store.SlotsInRange(ctx, mw.Start.Add(-48*time.Hour), mw.End)
	if err != nil {
		return nil, fmt.Errorf("load committed slots: %w", err)
	}
	for _, s := range existing {
		if run.survivesOverwrite(s, scope, mw, req.FreezeBefore) {
			run.byUser[s.UserID] = append(run.byUser[s.UserID], s)
		}
	}

	leaves, err := b.store.ApprovedLeaveOverlapping(ctx, mw.Start, mw.End.Add(9*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load leave: %w", err)
	}
	for _, l := range leaves {
		run.leave[l.UserID] = append(run.leave[l.UserID], l)
	}

	holidays, err := b.store.HolidaysInRange(ctx, DateOf(mw.Start).AddDays(-1), DateOf(mw.End))
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	for _, h := range holidays {
		if h.Observed {
			run.holidays[h.Date.String()] = true
		}
	}

	groups, err := b.store.GroupsByKind(ctx, KindTeachingBlock)
	if err != nil {
		return nil, fmt.Errorf("load teaching blocks: %w", err)
	}
	byGroup, err := expandTeachingWindows(req.Year, req.Month, groups, run.holidays)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if _, done := run.teaching[c.Post.ID]; done {
			continue
		}
		run.teaching[c.Post.ID] = []Window{}
		for _, gid := range c.Post.GroupIDs {
			run.teaching[c.Post.ID] = append(run.teaching[c.Post.ID], byGroup[gid]...)
		}
	}

	return run, nil
}

// expandTeachingWindows turns each teaching-block pattern into dated
// windows for the month, keyed by group ID. The day after the month is
// included because night cover runs into the next morning. Windows on
// observed holidays are dropped here so every caller gets the
// holiday-suppressed view.
func expandTeachingWindows(year, month int, groups []Group, holidays map[string]bool) (map[int64][]Window, error) {
	mw, err := MonthWindow(year, month)
	if err != nil {
		return nil, err
	}
	byGroup := make(map[int64][]Window, len(groups))
	for _, g := range groups {
		rules, ok := g.Rules.(TeachingBlockRules)
		if !ok {
			continue
		}
		windows, err := ExpandWeekly(year, month, rules.Weekday, rules.Window)
		if err != nil {
			return nil, fmt.Errorf("expand teaching block %q: %w", g.Name, err)
		}
		if next := DateOf(mw.End); next.Weekday() == rules.Weekday {
			windows = append(windows, rules.Window.On(next))
		}
		for _, w := range windows {
			if holidays[DateOf(w.Start).String()] {
				continue
			}
			byGroup[g.ID] = append(byGroup[g.ID], w)
		}
	}
	return byGroup, nil
}

// survivesOverwrite reports whether a committed slot will still exist
// after ReplaceSlots for this scope.
func (run *assignmentRun) survivesOverwrite(s Slot, scope SlotScope, mw Window, freeze Date) bool {
	if s.Start.Before(mw.Start) {
		return true
	}
	if !scope.HasType(s.Type) {
		return true
	}
	if scope.PostID != 0 && s.PostID != scope.PostID {
		return true
	}
	return !freeze.IsZero() && s.Start.Before(freeze.Time())
}

// assign places one unit of coverage for typ on date, or records a
// warning when every candidate in rotation is disqualified.
func (run *assignmentRun) assign(typ SlotType, date Date) {
	w := CallWindow(typ, date)
	n := len(run.candidates)

	for probe := 0; probe < n; probe++ {
		c := run.candidates[(run.cursor+probe)%n]
		if !run.qualifies(c, typ, date, w) {
			continue
		}

		slot := Slot{
			UserID: c.Person.ID,
			PostID: c.Post.ID,
			Start:  w.Start,
			End:    w.End,
			Type:   typ,
		}
		run.slots = append(run.slots, slot)
		run.byUser[c.Person.ID] = append(run.byUser[c.Person.ID], slot)
		if typ == SlotNightCall {
			run.nights[c.Person.ID]++
		}
		// Advance one position past the assignee; an unsuccessful probe
		// never moves the cursor.
		run.cursor = (run.cursor + probe + 1) % n
		return
	}

	run.warnings = append(run.warnings,
		fmt.Sprintf("%s %s unassigned: every eligible candidate disqualified", date, typ))
}

// qualifies applies the per-assignment checks from the build contract.
func (run *assignmentRun) qualifies(c Candidate, typ SlotType, date Date, w Window) bool {
	if !c.Contract.Covers(date) {
		return false
	}
	if !c.Post.RosterableOn(date) {
		return false
	}
	if typ == SlotNightCall && c.Policy.MaxNightsPerMonth > 0 &&
		run.nights[c.Person.ID] >= c.Policy.MaxNightsPerMonth {
		return false
	}
	for _, l := range run.leave[c.Person.ID] {
		if Overlaps(l.Start, l.End, w.Start, w.End) {
			return false
		}
	}
	if run.protectedConflict(c.Post, date, w) {
		return false
	}
	return run.restSatisfied(c, w)
}

// protectedConflict checks the post's core hours and pre-expanded
// teaching windows against the call window. Protection is suppressed
// on observed public holidays (core work does not run on them).
func (run *assignmentRun) protectedConflict(post Post, date Date, w Window) bool {
	for _, d := range []Date{date, date.AddDays(1)} {
		if run.holidays[d.String()] {
			continue
		}
		for _, cw := range post.CoreHours.On(d) {
			if cw.Overlaps(w) {
				return true
			}
		}
	}
	for _, tw := range run.teaching[post.ID] {
		if tw.Overlaps(w) {
			return true
		}
	}
	return false
}

// restSatisfied enforces the policy's rest floor against the candidate's
// committed and in-run slots on adjacent days. Overlap is always a
// disqualifier.
func (run *assignmentRun) restSatisfied(c Candidate, w Window) bool {
	minRest := float64(c.Policy.MinRestHours)
	for _, s := range run.byUser[c.Person.ID] {
		if Overlaps(s.Start, s.End, w.Start, w.End) {
			return false
		}
		var rest float64
		if !s.End.After(w.Start) {
			rest = HoursBetween(s.End, w.Start)
		} else {
			rest = HoursBetween(w.End, s.Start)
		}
		if rest < minRest {
			return false
		}
	}
	return true
}
