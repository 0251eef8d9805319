/*
validator.go - EWTD-style compliance audit of a committed month

PURPOSE:
  Walks every committed slot in a month, plus the contract chain of its
  holder, and reports rule violations: duty length, daily rest, weekly
  rest, teaching protection, handover blocks, coverage, and fairness.
  Read-only; takes no lock and never mutates state. Every check runs and
  every violation is collected — nothing short-circuits.

CONTEXT:
  Duties from the tail of the previous month count as rest context for
  the first days of the audited month, matching the builder. A duty
  observed mid-build can make the report stale; callers re-validate after
  a build completes.
*/
package roster

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Issue messages. The leading phrase is stable; detail follows in
// parentheses where the issue is not slot-specific.
const (
	msgDutyLength   = "duty exceeds 24h cap"
	msgDailyRest    = "rest < 11h before next duty"
	msgWeeklyRest   = "no 24h weekly rest"
	msgTeaching     = "overrides protected teaching"
	msgHandover     = "assigned during handover block"
	msgUncovered    = "uncovered period"
	msgDuplicate    = "duplicate coverage"
	msgUnevenSpread = "uneven distribution"
)

// ValidatorConfig declares what the month is required to look like.
type ValidatorConfig struct {
	DayCallsPerDay    int
	NightCallsPerDay  int
	MaxDutyHours      float64
	MinDailyRestHours int
	WeeklyRestHours   int
	FairnessTolerance int
	PoolRoles         []string
}

// DefaultValidatorConfig mirrors the department's standing rota shape:
// one night of cover per day, no scheduled day call, EWTD rest floors.
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		DayCallsPerDay:    0,
		NightCallsPerDay:  1,
		MaxDutyHours:      24,
		MinDailyRestHours: 11,
		WeeklyRestHours:   24,
		FairnessTolerance: 2,
		PoolRoles:         []string{"nchd"},
	}
}

// Validator audits committed months. Safe for concurrent use.
type Validator struct {
	store    Store
	resolver *Resolver
	cfg      ValidatorConfig
}

// NewValidator creates a validator with the given requirements.
func NewValidator(store Store, cfg ValidatorConfig) *Validator {
	return &Validator{store: store, resolver: NewResolver(store), cfg: cfg}
}

// Validate audits one month and returns the structured report.
// OK is true iff no issues were found.
func (v *Validator) Validate(ctx context.Context, year, month int) (ValidationReport, error) {
	if err := ValidatePeriod(year, month); err != nil {
		return ValidationReport{}, err
	}
	mw, _ := MonthWindow(year, month)

	// Seven days of lead-in so weekly-rest windows reaching back into the
	// previous month see its committed duties.
	all, err := v.store.SlotsInRange(ctx, mw.Start.Add(-7*24*time.Hour), mw.End)
	if err != nil {
		return ValidationReport{}, fmt.Errorf("load slots: %w", err)
	}

	var monthSlots []Slot
	byUser := make(map[int64][]Slot)
	for _, s := range all {
		byUser[s.UserID] = append(byUser[s.UserID], s)
		if !s.Start.Before(mw.Start) && s.Start.Before(mw.End) {
			monthSlots = append(monthSlots, s)
		}
	}
	for uid := range byUser {
		slots := byUser[uid]
		sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
		byUser[uid] = slots
	}

	names, err := v.userNames(ctx, monthSlots)
	if err != nil {
		return ValidationReport{}, err
	}

	issues := []ValidationIssue{}
	issues = append(issues, v.checkDutyLength(monthSlots, names)...)
	issues = append(issues, v.checkDailyRest(byUser, mw, names)...)
	issues = append(issues, v.checkWeeklyRest(monthSlots, byUser, names)...)

	teachingIssues, err := v.checkTeaching(ctx, year, month, monthSlots, names)
	if err != nil {
		return ValidationReport{}, err
	}
	issues = append(issues, teachingIssues...)
	issues = append(issues, v.checkHandover(monthSlots, names)...)
	issues = append(issues, v.checkCoverage(year, month, monthSlots)...)

	fairnessIssues, err := v.checkFairness(ctx, year, month, monthSlots)
	if err != nil {
		return ValidationReport{}, err
	}
	issues = append(issues, fairnessIssues...)

	return ValidationReport{OK: len(issues) == 0, Issues: issues}, nil
}

func (v *Validator) userNames(ctx context.Context, slots []Slot) (map[int64]string, error) {
	idSet := make(map[int64]bool)
	var ids []int64
	for _, s := range slots {
		if !idSet[s.UserID] {
			idSet[s.UserID] = true
			ids = append(ids, s.UserID)
		}
	}
	people, err := v.store.PeopleByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	names := make(map[int64]string, len(people))
	for id, p := range people {
		names[id] = p.Name
	}
	return names, nil
}

// checkDutyLength: end - start must not exceed the duty cap.
func (v *Validator) checkDutyLength(slots []Slot, names map[int64]string) []ValidationIssue {
	var issues []ValidationIssue
	for _, s := range slots {
		if HoursBetween(s.Start, s.End) > v.cfg.MaxDutyHours {
			issues = append(issues, v.slotIssue(s, names, msgDutyLength))
		}
	}
	return issues
}

// checkDailyRest: between the end of one duty and the start of the
// person's next there must be at least the daily rest floor. Issues are
// only raised for the in-month member of the pair; the lead-in slot can
// pair with the month's first duty.
func (v *Validator) checkDailyRest(byUser map[int64][]Slot, mw Window, names map[int64]string) []ValidationIssue {
	var issues []ValidationIssue
	floor := float64(v.cfg.MinDailyRestHours)
	for _, slots := range byUser {
		for i := 1; i < len(slots); i++ {
			next := slots[i]
			if next.Start.Before(mw.Start) {
				continue
			}
			rest := HoursBetween(slots[i-1].End, next.Start)
			if rest < floor {
				issues = append(issues, v.slotIssue(next, names, msgDailyRest))
			}
		}
	}
	sortIssues(issues)
	return issues
}

// checkWeeklyRest: in the rolling 7-day window ending at each duty's end
// the person must have had one contiguous off-duty stretch of at least
// the weekly rest floor.
func (v *Validator) checkWeeklyRest(monthSlots []Slot, byUser map[int64][]Slot, names map[int64]string) []ValidationIssue {
	var issues []ValidationIssue
	floor := float64(v.cfg.WeeklyRestHours)
	for _, s := range monthSlots {
		window := RollingWindow(s.End, 7*24)
		if longestGap(byUser[s.UserID], window) < floor {
			issues = append(issues, v.slotIssue(s, names, msgWeeklyRest))
		}
	}
	return issues
}

// longestGap returns the longest contiguous off-duty stretch, in hours,
// inside the window given the person's (sorted) duties.
func longestGap(slots []Slot, window Window) float64 {
	cursor := window.Start
	longest := 0.0
	for _, s := range slots {
		if !Overlaps(s.Start, s.End, window.Start, window.End) {
			continue
		}
		start := s.Start
		if start.Before(window.Start) {
			start = window.Start
		}
		if gap := HoursBetween(cursor, start); gap > longest {
			longest = gap
		}
		if s.End.After(cursor) {
			cursor = s.End
		}
	}
	if cursor.Before(window.End) {
		if gap := HoursBetween(cursor, window.End); gap > longest {
			longest = gap
		}
	}
	return longest
}

// checkTeaching: a duty must not overlap a teaching_block group window
// registered against the holder's post. Protection is suppressed on
// observed public holidays.
func (v *Validator) checkTeaching(ctx context.Context, year, month int, monthSlots []Slot, names map[int64]string) ([]ValidationIssue, error) {
	monthStart := NewDate(year, time.Month(month), 1)
	monthEnd := monthStart.AddMonths(1)

	contracts, err := v.store.ContractsOverlapping(ctx, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}
	contractsByUser := make(map[int64][]Contract)
	var postIDs []int64
	for _, c := range contracts {
		contractsByUser[c.UserID] = append(contractsByUser[c.UserID], c)
		postIDs = append(postIDs, c.PostID)
	}
	posts, err := v.store.PostsByID(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}
	holidays, err := v.store.HolidaysInRange(ctx, monthStart.AddDays(-1), monthEnd)
	if err != nil {
		return nil, fmt.Errorf("load holidays: %w", err)
	}
	observed := make(map[string]bool, len(holidays))
	for _, h := range holidays {
		if h.Observed {
			observed[h.Date.String()] = true
		}
	}
	groups, err := v.store.GroupsByKind(ctx, KindTeachingBlock)
	if err != nil {
		return nil, fmt.Errorf("load teaching blocks: %w", err)
	}
	byGroup, err := expandTeachingWindows(year, month, groups, observed)
	if err != nil {
		return nil, err
	}

	var issues []ValidationIssue
	for _, s := range monthSlots {
		post, ok := v.governingPost(s, contractsByUser, posts)
		if !ok {
			continue
		}
		if teachingConflict(s, post, byGroup) {
			issues = append(issues, v.slotIssue(s, names, msgTeaching))
		}
	}
	return issues, nil
}

func (v *Validator) governingPost(s Slot, contractsByUser map[int64][]Contract, posts map[int64]Post) (Post, bool) {
	day := DateOf(s.Start)
	for _, c := range contractsByUser[s.UserID] {
		if !c.Covers(day) {
			continue
		}
		if post, ok := posts[c.PostID]; ok {
			return post, true
		}
	}
	return Post{}, false
}

// teachingConflict checks the slot against the dated teaching windows of
// the groups its governing post belongs to. Holiday suppression happens
// at expansion time.
func teachingConflict(s Slot, post Post, byGroup map[int64][]Window) bool {
	for _, gid := range post.GroupIDs {
		for _, w := range byGroup[gid] {
			if Overlaps(s.Start, s.End, w.Start, w.End) {
				return true
			}
		}
	}
	return false
}

// checkHandover: call must change hands at clean boundaries. A slot
// whose start or end falls inside a handover block is assigned during
// handover. Ending exactly at a block's start (the standard 09:00
// night-call end) is clean, and a long duty running straight through a
// block is a duty-length problem, not a handover one.
func (v *Validator) checkHandover(monthSlots []Slot, names map[int64]string) []ValidationIssue {
	var issues []ValidationIssue
	for _, s := range monthSlots {
		if handoverConflict(s) {
			issues = append(issues, v.slotIssue(s, names, msgHandover))
		}
	}
	return issues
}

func handoverConflict(s Slot) bool {
	for d := DateOf(s.Start); !d.After(DateOf(s.End)); d = d.AddDays(1) {
		for _, hw := range HandoverWindows(d) {
			// Start lies inside the block.
			if !s.Start.Before(hw.Start) && s.Start.Before(hw.End) {
				return true
			}
			// End lies inside the block (exclusive of hw.Start: a slot
			// ending exactly where handover begins is a clean handoff).
			if s.End.After(hw.Start) && !s.End.After(hw.End) {
				return true
			}
		}
	}
	return false
}

// checkCoverage: every required day/night period must have exactly the
// required number of slots of that type — zero is a gap, more is
// duplication.
func (v *Validator) checkCoverage(year, month int, monthSlots []Slot) []ValidationIssue {
	required := map[SlotType]int{
		SlotDayCall:   v.cfg.DayCallsPerDay,
		SlotNightCall: v.cfg.NightCallsPerDay,
	}
	counts := make(map[string]int)
	for _, s := range monthSlots {
		counts[DateOf(s.Start).String()+"|"+string(s.Type)]++
	}

	days, _ := DaysInMonth(year, month)
	var issues []ValidationIssue
	for _, typ := range []SlotType{SlotDayCall, SlotNightCall} {
		want := required[typ]
		if want <= 0 {
			continue
		}
		for day := 1; day <= days; day++ {
			date := NewDate(year, time.Month(month), day)
			got := counts[date.String()+"|"+string(typ)]
			switch {
			case got < want:
				issues = append(issues, ValidationIssue{
					Message: fmt.Sprintf("%s (%s %s)", msgUncovered, typ, date),
				})
			case got > want:
				issues = append(issues, ValidationIssue{
					Message: fmt.Sprintf("%s (%s %s)", msgDuplicate, typ, date),
				})
			}
		}
	}
	return issues
}

// checkFairness: the spread between the most and least loaded eligible
// person's night counts must stay within tolerance. One summary issue,
// never per-person.
func (v *Validator) checkFairness(ctx context.Context, year, month int, monthSlots []Slot) ([]ValidationIssue, error) {
	nights := make(map[int64]int)
	for _, s := range monthSlots {
		if s.Type == SlotNightCall {
			nights[s.UserID]++
		}
	}
	if len(nights) == 0 {
		return nil, nil
	}

	// Eligible people with zero nights count toward the spread. When the
	// pool can't be resolved (inconsistent contracts), fall back to the
	// people actually holding nights.
	pool := make(map[int64]bool)
	candidates, err := v.resolver.Resolve(ctx, year, month, PoolSpec{Roles: v.cfg.PoolRoles})
	if err == nil {
		for _, c := range candidates {
			pool[c.Person.ID] = true
		}
	}
	for uid := range nights {
		pool[uid] = true
	}

	minN, maxN := -1, 0
	for uid := range pool {
		n := nights[uid]
		if minN < 0 || n < minN {
			minN = n
		}
		if n > maxN {
			maxN = n
		}
	}
	if maxN-minN > v.cfg.FairnessTolerance {
		return []ValidationIssue{{
			Message: fmt.Sprintf("%s (night spread %d exceeds tolerance %d)",
				msgUnevenSpread, maxN-minN, v.cfg.FairnessTolerance),
		}}, nil
	}
	return nil, nil
}

func (v *Validator) slotIssue(s Slot, names map[int64]string, msg string) ValidationIssue {
	return ValidationIssue{
		UserID:   s.UserID,
		UserName: names[s.UserID],
		SlotID:   s.ID,
		Message:  msg,
	}
}

func sortIssues(issues []ValidationIssue) {
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].SlotID != issues[j].SlotID {
			return issues[i].SlotID < issues[j].SlotID
		}
		return issues[i].UserID < issues[j].UserID
	})
}
