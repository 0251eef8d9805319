package roster_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nooarche/NCHD-Roster-V1/roster"
	"github.com/nooarche/NCHD-Roster-V1/roster/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// uncapped participates in call with no monthly night cap.
func uncapped() *roster.CallPolicy {
	return &roster.CallPolicy{ParticipatesInCall: true, MinRestHours: 11}
}

func newBuilder(m *store.Memory) *roster.Builder {
	return roster.NewBuilder(m, roster.NewScopeLocks(), nil)
}

func nightRequest(year, month int) roster.BuildRequest {
	return roster.BuildRequest{
		Year:             year,
		Month:            month,
		NightCallsPerDay: 1,
		PoolRoles:        []string{"nchd"},
	}
}

// monthSlots returns the committed slots of the month, sorted by start.
func monthSlots(t *testing.T, m *store.Memory, year, month int) []roster.Slot {
	t.Helper()
	mw, err := roster.MonthWindow(year, month)
	if err != nil {
		t.Fatalf("month window: %v", err)
	}
	slots, err := m.SlotsInRange(context.Background(), mw.Start, mw.End)
	if err != nil {
		t.Fatalf("load slots: %v", err)
	}
	return slots
}

// =============================================================================
// ROTATION
// =============================================================================

func TestBuild_RoundRobinRotation(t *testing.T) {
	// GIVEN: three eligible people
	m := store.NewMemory()
	alice := seedNCHD(m, "Alice", uncapped())
	bob := seedNCHD(m, "Bob", uncapped())
	carol := seedNCHD(m, "Carol", uncapped())

	// WHEN: a night roster is built for March 2024
	result, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// THEN: all 31 nights are covered in strict A, B, C, A, ... rotation
	if result.CreatedSlots != 31 {
		t.Errorf("expected 31 created slots, got %d", result.CreatedSlots)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", result.Warnings)
	}
	if result.RunID == "" {
		t.Error("expected a non-empty run ID")
	}

	slots := monthSlots(t, m, 2024, 3)
	if len(slots) != 31 {
		t.Fatalf("expected 31 committed slots, got %d", len(slots))
	}
	order := []int64{alice.ID, bob.ID, carol.ID}
	for i, s := range slots {
		if want := order[i%3]; s.UserID != want {
			t.Fatalf("night %d: expected user %d, got %d", i+1, want, s.UserID)
		}
		if s.Type != roster.SlotNightCall {
			t.Errorf("night %d: expected night_call, got %s", i+1, s.Type)
		}
	}
}

func TestBuild_NightWindowShape(t *testing.T) {
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())

	if _, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3)); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	s := monthSlots(t, m, 2024, 3)[0]
	if s.Start.Hour() != 17 || s.End.Hour() != 9 {
		t.Errorf("expected 17:00 -> 09:00 night window, got %v -> %v", s.Start, s.End)
	}
	if got := s.End.Sub(s.Start); got != 16*time.Hour {
		t.Errorf("expected a 16h night, got %v", got)
	}
}

func TestBuild_FairDistribution(t *testing.T) {
	// GIVEN: five people and a 30-night month
	m := store.NewMemory()
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		seedNCHD(m, name, uncapped())
	}

	if _, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 4)); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// THEN: every person holds exactly 6 nights
	counts := make(map[int64]int)
	for _, s := range monthSlots(t, m, 2024, 4) {
		counts[s.UserID]++
	}
	if len(counts) != 5 {
		t.Fatalf("expected 5 assignees, got %d", len(counts))
	}
	for uid, n := range counts {
		if n != 6 {
			t.Errorf("user %d: expected 6 nights, got %d", uid, n)
		}
	}
}

// =============================================================================
// IDEMPOTENT OVERWRITE
// =============================================================================

func TestBuild_RebuildOverwrites(t *testing.T) {
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())
	seedNCHD(m, "Bob", uncapped())
	b := newBuilder(m)

	first, err := b.Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("first build failed: %v", err)
	}
	firstSlots := monthSlots(t, m, 2024, 3)

	second, err := b.Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("second build failed: %v", err)
	}

	// Overwrite, never accumulation - and identical inputs reproduce the
	// identical roster.
	secondSlots := monthSlots(t, m, 2024, 3)
	if len(secondSlots) != len(firstSlots) {
		t.Fatalf("expected %d slots after rebuild, got %d", len(firstSlots), len(secondSlots))
	}
	for i := range firstSlots {
		if firstSlots[i].UserID != secondSlots[i].UserID {
			t.Fatalf("night %d: rebuild changed assignee %d -> %d",
				i+1, firstSlots[i].UserID, secondSlots[i].UserID)
		}
	}
	if first.CreatedSlots != second.CreatedSlots {
		t.Errorf("expected identical created counts, got %d and %d",
			first.CreatedSlots, second.CreatedSlots)
	}
}

func TestBuild_FreezePreservesCommittedSlots(t *testing.T) {
	// GIVEN: a fully built month
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())
	seedNCHD(m, "Bob", uncapped())
	b := newBuilder(m)
	if _, err := b.Build(context.Background(), nightRequest(2024, 3)); err != nil {
		t.Fatalf("initial build failed: %v", err)
	}

	frozen := make(map[int64]int64) // slot ID -> user ID
	freeze := date(2024, time.March, 15)
	for _, s := range monthSlots(t, m, 2024, 3) {
		if s.Start.Before(freeze.Time()) {
			frozen[s.ID] = s.UserID
		}
	}
	if len(frozen) != 14 {
		t.Fatalf("expected 14 slots before the freeze date, got %d", len(frozen))
	}

	// WHEN: the month is rebuilt with freeze_before
	req := nightRequest(2024, 3)
	req.FreezeBefore = freeze
	result, err := b.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("frozen rebuild failed: %v", err)
	}

	// THEN: the frozen slots survive untouched and only the tail is rebuilt
	if result.CreatedSlots != 17 {
		t.Errorf("expected 17 rebuilt slots, got %d", result.CreatedSlots)
	}
	after := monthSlots(t, m, 2024, 3)
	if len(after) != 31 {
		t.Fatalf("expected 31 slots after frozen rebuild, got %d", len(after))
	}
	for _, s := range after {
		if s.Start.Before(freeze.Time()) {
			if uid, ok := frozen[s.ID]; !ok || uid != s.UserID {
				t.Errorf("slot %d before freeze was rebuilt", s.ID)
			}
		}
	}
}

// =============================================================================
// DISQUALIFICATION
// =============================================================================

func TestBuild_LeaveDisqualifies(t *testing.T) {
	m := store.NewMemory()
	alice := seedNCHD(m, "Alice", uncapped())
	bob := seedNCHD(m, "Bob", uncapped())

	// Alice is on approved leave for the whole month.
	m.AddLeave(roster.Leave{
		UserID: alice.ID,
		Start:  time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		Status: "approved",
	})

	result, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// Bob alone can only take alternate nights (the 11h rest floor rules
	// out back-to-back nights), so the off nights become warnings.
	if result.CreatedSlots != 16 {
		t.Errorf("expected 16 slots on Bob, got %d", result.CreatedSlots)
	}
	if len(result.Warnings) != 15 {
		t.Errorf("expected 15 warnings, got %d", len(result.Warnings))
	}
	for _, s := range monthSlots(t, m, 2024, 3) {
		if s.UserID != bob.ID {
			t.Fatalf("expected every night on Bob, got user %d", s.UserID)
		}
	}
}

func TestBuild_PendingLeaveDoesNotDisqualify(t *testing.T) {
	m := store.NewMemory()
	alice := seedNCHD(m, "Alice", uncapped())
	m.AddLeave(roster.Leave{
		UserID: alice.ID,
		Start:  time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		Status: "pending",
	})

	result, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	// Alternate nights only (rest floor), but pending leave itself never
	// blocks an assignment.
	if result.CreatedSlots != 16 {
		t.Errorf("pending leave must not block assignment, got %d slots", result.CreatedSlots)
	}
}

func TestBuild_TeachingBlockDisqualifies(t *testing.T) {
	// GIVEN: one candidate whose post protects Wednesday afternoon teaching
	m := store.NewMemory()
	teaching := m.AddGroup(roster.Group{
		Name: "Wednesday academic teaching",
		Kind: roster.KindTeachingBlock,
		Rules: roster.TeachingBlockRules{
			Weekday: time.Wednesday,
			Window: roster.ClockRange{
				Start: roster.TimeOfDay{Hour: 14},
				End:   roster.TimeOfDay{Hour: 16},
			},
		},
	})
	p := m.AddPerson(roster.Person{Name: "Alice", Role: "nchd"})
	post := m.AddPost(roster.Post{
		Title:      "Registrar",
		Status:     roster.StatusActiveRosterable,
		CallPolicy: uncapped(),
		GroupIDs:   []int64{teaching.ID},
	})
	m.AddContract(roster.Contract{UserID: p.ID, PostID: post.ID, Start: date(2020, time.January, 1)})

	// WHEN: day call is built (09:30-16:30, overlapping the block)
	result, err := newBuilder(m).Build(context.Background(), roster.BuildRequest{
		Year: 2024, Month: 3, DayCallsPerDay: 1, PoolRoles: []string{"nchd"},
	})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	// THEN: every Wednesday is left as a warning, not an error
	if len(result.Warnings) != 4 {
		t.Errorf("expected 4 Wednesday warnings in March 2024, got %d: %v",
			len(result.Warnings), result.Warnings)
	}
	for _, s := range monthSlots(t, m, 2024, 3) {
		if roster.DateOf(s.Start).Weekday() == time.Wednesday {
			t.Errorf("slot assigned over protected teaching on %s", roster.DateOf(s.Start))
		}
	}
}

func TestBuild_NightCapRespected(t *testing.T) {
	// One person, default-style cap of 7 nights.
	m := store.NewMemory()
	seedNCHD(m, "Alice", &roster.CallPolicy{
		ParticipatesInCall: true,
		MaxNightsPerMonth:  7,
		MinRestHours:       11,
	})

	result, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if result.CreatedSlots != 7 {
		t.Errorf("expected the cap to stop at 7 slots, got %d", result.CreatedSlots)
	}
	if len(result.Warnings) != 24 {
		t.Errorf("expected 24 unassigned-night warnings, got %d", len(result.Warnings))
	}
}

func TestBuild_AllDisqualifiedLeavesGaps(t *testing.T) {
	m := store.NewMemory()
	alice := seedNCHD(m, "Alice", uncapped())
	m.AddLeave(roster.Leave{
		UserID: alice.ID,
		Start:  time.Date(2024, time.February, 28, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC),
		Status: "approved",
	})

	result, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("expected warnings, not an error, got %v", err)
	}
	if result.CreatedSlots != 0 {
		t.Errorf("expected 0 slots, got %d", result.CreatedSlots)
	}
	if len(result.Warnings) != 31 {
		t.Errorf("expected 31 warnings, got %d", len(result.Warnings))
	}
}

// =============================================================================
// FAILURE MODES
// =============================================================================

func TestBuild_EmptyPool(t *testing.T) {
	m := store.NewMemory()
	_, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if !errors.Is(err, roster.ErrNoEligibleCandidates) {
		t.Fatalf("expected ErrNoEligibleCandidates, got %v", err)
	}
}

func TestBuild_InvalidRequests(t *testing.T) {
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())
	b := newBuilder(m)

	cases := []struct {
		name string
		req  roster.BuildRequest
	}{
		{"bad month", roster.BuildRequest{Year: 2024, Month: 13, NightCallsPerDay: 1}},
		{"year below range", roster.BuildRequest{Year: 1999, Month: 1, NightCallsPerDay: 1}},
		{"negative count", roster.BuildRequest{Year: 2024, Month: 3, NightCallsPerDay: -1}},
		{"no call types", roster.BuildRequest{Year: 2024, Month: 3}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := b.Build(context.Background(), tc.req); !errors.Is(err, roster.ErrInvalidPeriod) {
				t.Fatalf("expected ErrInvalidPeriod, got %v", err)
			}
		})
	}
}

func TestBuild_RetriesOnceOnStoreTimeout(t *testing.T) {
	// GIVEN: a store that fails the first commit
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())
	seedNCHD(m, "Bob", uncapped())
	m.FailNext = roster.ErrStoreUnavailable

	// THEN: the single retry succeeds transparently
	result, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("expected the retry to succeed, got %v", err)
	}
	if result.CreatedSlots != 31 {
		t.Errorf("expected 31 slots from the retried build, got %d", result.CreatedSlots)
	}
}

func TestBuild_NonRetryableStoreErrorSurfaces(t *testing.T) {
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())
	boom := errors.New("disk full")
	m.FailNext = boom

	_, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if !errors.Is(err, boom) {
		t.Fatalf("expected the store error to surface, got %v", err)
	}
}

func TestBuild_ScopeLocked(t *testing.T) {
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())
	locks := roster.NewScopeLocks()
	b := roster.NewBuilder(m, locks, nil)

	scope := roster.SlotScope{Year: 2024, Month: time.March, Types: []roster.SlotType{roster.SlotNightCall}}
	if err := locks.Acquire(scope.LockKey()); err != nil {
		t.Fatalf("pre-acquire failed: %v", err)
	}
	defer locks.Release(scope.LockKey())

	_, err := b.Build(context.Background(), nightRequest(2024, 3))
	if !errors.Is(err, roster.ErrScopeLocked) {
		t.Fatalf("expected ErrScopeLocked, got %v", err)
	}
}

func TestBuild_AppendsAudit(t *testing.T) {
	m := store.NewMemory()
	seedNCHD(m, "Alice", uncapped())

	result, err := newBuilder(m).Build(context.Background(), nightRequest(2024, 3))
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}

	audits := m.Audits()
	if len(audits) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(audits))
	}
	entry := audits[0]
	if entry.Action != roster.AuditRosterBuild {
		t.Errorf("expected action %q, got %q", roster.AuditRosterBuild, entry.Action)
	}
	if entry.After["run_id"] != result.RunID {
		t.Errorf("expected audit to carry run ID %s", result.RunID)
	}
}
