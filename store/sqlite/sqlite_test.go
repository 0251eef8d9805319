package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nooarche/NCHD-Roster-V1/factory"
	"github.com/nooarche/NCHD-Roster-V1/roster"
	"github.com/nooarche/NCHD-Roster-V1/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func mustDate(t *testing.T, s string) roster.Date {
	t.Helper()
	d, err := roster.ParseDate(s)
	require.NoError(t, err)
	return d
}

func saveUser(t *testing.T, s *sqlite.Store, name string) roster.Person {
	t.Helper()
	p, err := s.SaveUser(context.Background(), roster.Person{
		Name: name, Email: name + "@hospital.ie", Role: roster.RoleNCHD,
	})
	require.NoError(t, err)
	return p
}

func nightAt(userID int64, day int) roster.Slot {
	w := roster.NightWindow(roster.NewDate(2024, time.March, day))
	return roster.Slot{UserID: userID, Start: w.Start, End: w.End, Type: roster.SlotNightCall}
}

func marchScope(types ...roster.SlotType) roster.SlotScope {
	return roster.SlotScope{Year: 2024, Month: time.March, Types: types}
}

// =============================================================================
// USERS
// =============================================================================

func TestUserRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p := saveUser(t, s, "aoife")
	require.NotZero(t, p.ID)

	got, err := s.GetUser(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	p.Name = "aoife-walsh"
	require.NoError(t, s.UpdateUser(ctx, p))
	got, err = s.GetUser(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "aoife-walsh", got.Name)

	require.NoError(t, s.DeleteUser(ctx, p.ID))
	_, err = s.GetUser(ctx, p.ID)
	assert.True(t, errors.Is(err, roster.ErrNotFound))
}

func TestUser_MissingRows(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, 99)
	assert.True(t, errors.Is(err, roster.ErrNotFound))
	assert.True(t, errors.Is(s.UpdateUser(ctx, roster.Person{ID: 99, Name: "x"}), roster.ErrNotFound))
	assert.True(t, errors.Is(s.DeleteUser(ctx, 99), roster.ErrNotFound))
}

// =============================================================================
// POSTS
// =============================================================================

func TestPostPayloadRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	post := roster.Post{
		Title:  "Liaison registrar",
		Site:   "St. Ita's",
		Grade:  "registrar",
		Status: roster.StatusVacantUnrosterable,
		CoreHours: roster.CoreHours{
			time.Tuesday: {{Start: roster.TimeOfDay{Hour: 9, Minute: 30}, End: roster.TimeOfDay{Hour: 16, Minute: 30}}},
		},
		CallPolicy: &roster.CallPolicy{
			ParticipatesInCall: true, Role: "NCHD", MaxNightsPerMonth: 4, MinRestHours: 11,
		},
		GroupIDs:   []int64{3, 7},
		StatusFrom: mustDate(t, "2024-06-01"),
		Notes:      "job share",
	}
	fte, err := factory.ParseFTE("0.5")
	require.NoError(t, err)
	post.FTE = fte

	saved, err := s.SavePost(ctx, post)
	require.NoError(t, err)
	require.NotZero(t, saved.ID)

	got, err := s.GetPost(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, post.Title, got.Title)
	assert.Equal(t, "0.5", got.FTE.String())
	assert.Equal(t, roster.StatusVacantUnrosterable, got.Status)
	assert.True(t, got.StatusFrom.Equal(post.StatusFrom))
	assert.Equal(t, post.CoreHours, got.CoreHours)
	assert.Equal(t, post.CallPolicy, got.CallPolicy)
	assert.Equal(t, []int64{3, 7}, got.GroupIDs)
}

func TestPost_UndeclaredPayloadsStayNil(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	saved, err := s.SavePost(ctx, roster.Post{Title: "Bare post", Status: roster.StatusActiveRosterable})
	require.NoError(t, err)

	got, err := s.GetPost(ctx, saved.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CoreHours)
	assert.Nil(t, got.CallPolicy)
	assert.Nil(t, got.GroupIDs)
	assert.True(t, got.StatusFrom.IsZero())
	// Unset FTE defaults to full time.
	assert.Equal(t, "1", got.FTE.String())
}

// =============================================================================
// TEAMS
// =============================================================================

func TestTeamRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")

	team, err := s.SaveTeam(ctx, sqlite.Team{Name: "General adult A", SupervisorID: u.ID})
	require.NoError(t, err)
	require.NotZero(t, team.ID)
	require.NoError(t, s.AddTeamMember(ctx, team.ID, u.ID, "registrar"))

	teams, err := s.ListTeams(ctx)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, "General adult A", teams[0].Name)
	assert.Equal(t, u.ID, teams[0].SupervisorID)

	require.NoError(t, s.DeleteTeam(ctx, team.ID))
	assert.True(t, errors.Is(s.DeleteTeam(ctx, team.ID), roster.ErrNotFound))
}

// =============================================================================
// CONTRACTS
// =============================================================================

func TestSaveContract_RefusesOverlap(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")

	first, err := s.SaveContract(ctx, roster.Contract{
		UserID: u.ID, PostID: 1, Start: mustDate(t, "2020-01-01"),
	})
	require.NoError(t, err)

	_, err = s.SaveContract(ctx, roster.Contract{
		UserID: u.ID, PostID: 2, Start: mustDate(t, "2024-03-01"),
	})
	require.Error(t, err)
	var oce *roster.OverlappingContractError
	require.True(t, errors.As(err, &oce))
	assert.Equal(t, u.ID, oce.UserID)
	assert.Contains(t, oce.ContractIDs, first.ID)
}

func TestSaveContract_SequentialAllowed(t *testing.T) {
	// A rotation changeover: old contract ends the day the new one starts.
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")

	_, err := s.SaveContract(ctx, roster.Contract{
		UserID: u.ID, PostID: 1,
		Start: mustDate(t, "2024-01-08"), End: mustDate(t, "2024-07-08"),
	})
	require.NoError(t, err)
	_, err = s.SaveContract(ctx, roster.Contract{
		UserID: u.ID, PostID: 2, Start: mustDate(t, "2024-07-08"),
	})
	require.NoError(t, err)

	// Different people never conflict.
	other := saveUser(t, s, "brendan")
	_, err = s.SaveContract(ctx, roster.Contract{
		UserID: other.ID, PostID: 1, Start: mustDate(t, "2024-01-08"),
	})
	require.NoError(t, err)
}

func TestContractsOverlapping_WindowMath(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	past := saveUser(t, s, "past")
	current := saveUser(t, s, "current")

	_, err := s.SaveContract(ctx, roster.Contract{
		UserID: past.ID, PostID: 1,
		Start: mustDate(t, "2023-07-01"), End: mustDate(t, "2024-03-01"),
	})
	require.NoError(t, err)
	_, err = s.SaveContract(ctx, roster.Contract{
		UserID: current.ID, PostID: 2, Start: mustDate(t, "2024-01-01"),
	})
	require.NoError(t, err)

	// March 2024: the contract ending exactly on March 1 is already over
	// (end is exclusive).
	got, err := s.ContractsOverlapping(ctx, mustDate(t, "2024-03-01"), mustDate(t, "2024-04-01"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, current.ID, got[0].UserID)

	// February 2024: both are in force.
	got, err = s.ContractsOverlapping(ctx, mustDate(t, "2024-02-01"), mustDate(t, "2024-03-01"))
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

// =============================================================================
// GROUPS
// =============================================================================

func TestGroupRulesRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	groups := []roster.Group{
		{Name: "Night pool", Kind: roster.KindOnCallPool, Rules: roster.OnCallPoolRules{
			Shift: "night",
			Hours: []roster.ClockRange{{Start: roster.TimeOfDay{Hour: 17}, End: roster.TimeOfDay{Hour: 9}}},
		}},
		{Name: "Wednesday teaching", Kind: roster.KindTeachingBlock, Rules: roster.TeachingBlockRules{
			Weekday: time.Wednesday,
			Window:  roster.ClockRange{Start: roster.TimeOfDay{Hour: 14}, End: roster.TimeOfDay{Hour: 16}},
		}},
		{Name: "Team A", Kind: roster.KindTeam, Rules: roster.TeamRules{MemberRoles: []string{"nchd"}}},
	}
	for _, g := range groups {
		_, err := s.SaveGroup(ctx, g)
		require.NoError(t, err)
	}

	all, err := s.ListGroups(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, g := range all {
		assert.Equal(t, groups[i].Rules, g.Rules, "group %s", g.Name)
	}

	teaching, err := s.GroupsByKind(ctx, roster.KindTeachingBlock)
	require.NoError(t, err)
	require.Len(t, teaching, 1)
	assert.Equal(t, "Wednesday teaching", teaching[0].Name)
}

// =============================================================================
// LEAVE AND HOLIDAYS
// =============================================================================

func TestApprovedLeaveOverlapping(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")

	approved := roster.Leave{
		UserID: u.ID,
		Start:  time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC),
		End:    time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
		Type:   "annual",
		Status: "approved",
	}
	pending := approved
	pending.Status = "pending"
	for _, l := range []roster.Leave{approved, pending} {
		_, err := s.SaveLeave(ctx, l)
		require.NoError(t, err)
	}

	got, err := s.ApprovedLeaveOverlapping(ctx,
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, got, 1, "pending leave must not surface")
	assert.Equal(t, "approved", got[0].Status)

	// A window entirely after the leave sees nothing.
	got, err = s.ApprovedLeaveOverlapping(ctx,
		time.Date(2024, time.March, 11, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHolidaysInRange_InclusiveBounds(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for _, d := range []string{"2024-03-01", "2024-03-18", "2024-04-01"} {
		_, err := s.SaveHoliday(ctx, roster.Holiday{Date: mustDate(t, d), Name: d, Observed: true})
		require.NoError(t, err)
	}

	got, err := s.HolidaysInRange(ctx, mustDate(t, "2024-03-01"), mustDate(t, "2024-03-31"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-03-01", got[0].Date.String())
	assert.Equal(t, "2024-03-18", got[1].Date.String())
}

// =============================================================================
// SLOTS
// =============================================================================

func TestReplaceSlots_OverwritesScope(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")

	scope := marchScope(roster.SlotNightCall)
	first := []roster.Slot{nightAt(u.ID, 1), nightAt(u.ID, 3), nightAt(u.ID, 5)}
	n, err := s.ReplaceSlots(ctx, scope, time.Time{}, first)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-replacing is an overwrite, not an accumulation.
	second := []roster.Slot{nightAt(u.ID, 2), nightAt(u.ID, 4)}
	_, err = s.ReplaceSlots(ctx, scope, time.Time{}, second)
	require.NoError(t, err)

	mw, _ := roster.MonthWindow(2024, 3)
	got, err := s.SlotsInRange(ctx, mw.Start, mw.End)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Start.Day())
	assert.Equal(t, 4, got[1].Start.Day())
}

func TestReplaceSlots_KeepBeforePreservesFrozen(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")

	scope := marchScope(roster.SlotNightCall)
	_, err := s.ReplaceSlots(ctx, scope, time.Time{},
		[]roster.Slot{nightAt(u.ID, 1), nightAt(u.ID, 10), nightAt(u.ID, 20)})
	require.NoError(t, err)

	freeze := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	_, err = s.ReplaceSlots(ctx, scope, freeze, []roster.Slot{nightAt(u.ID, 25)})
	require.NoError(t, err)

	mw, _ := roster.MonthWindow(2024, 3)
	got, err := s.SlotsInRange(ctx, mw.Start, mw.End)
	require.NoError(t, err)
	days := make([]int, len(got))
	for i, sl := range got {
		days[i] = sl.Start.Day()
	}
	assert.Equal(t, []int{1, 10, 25}, days, "slots before the freeze survive, later ones are replaced")
}

func TestReplaceSlots_ScopeFilters(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")

	// A day slot and a post-scoped night share the month with pool nights.
	daySlot := roster.Slot{
		UserID: u.ID,
		Start:  roster.DayWindow(roster.NewDate(2024, time.March, 2)).Start,
		End:    roster.DayWindow(roster.NewDate(2024, time.March, 2)).End,
		Type:   roster.SlotDayCall,
	}
	postNight := nightAt(u.ID, 3)
	postNight.PostID = 7
	_, err := s.ReplaceSlots(ctx, marchScope(roster.SlotDayCall, roster.SlotNightCall), time.Time{},
		[]roster.Slot{daySlot, nightAt(u.ID, 1), postNight})
	require.NoError(t, err)

	// A post-filtered replace touches only that post's nights; the pool
	// night and the day slot survive.
	postScope := marchScope(roster.SlotNightCall)
	postScope.PostID = 7
	_, err = s.ReplaceSlots(ctx, postScope, time.Time{}, []roster.Slot{})
	require.NoError(t, err)

	mw, _ := roster.MonthWindow(2024, 3)
	got, err := s.SlotsInRange(ctx, mw.Start, mw.End)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, roster.SlotNightCall, got[0].Type) // pool night on the 1st
	assert.Equal(t, roster.SlotDayCall, got[1].Type)
}

func TestSaveSlot_SameDayOverwrite(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := saveUser(t, s, "aoife")
	b := saveUser(t, s, "brendan")

	first, err := s.SaveSlot(ctx, nightAt(a.ID, 5))
	require.NoError(t, err)
	second, err := s.SaveSlot(ctx, nightAt(b.ID, 5))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	mw, _ := roster.MonthWindow(2024, 3)
	got, err := s.SlotsInRange(ctx, mw.Start, mw.End)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, b.ID, got[0].UserID)
}

func TestSaveSlot_MultiCoverScopedToHolder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	a := saveUser(t, s, "aoife")
	b := saveUser(t, s, "brendan")

	// Two covers for the same night.
	n1 := nightAt(a.ID, 5)
	n2 := nightAt(b.ID, 5)
	_, err := s.ReplaceSlots(ctx, marchScope(roster.SlotNightCall), time.Time{}, []roster.Slot{n1, n2})
	require.NoError(t, err)

	// Reassigning one holder leaves the other holder's cover in place.
	_, err = s.SaveSlot(ctx, nightAt(a.ID, 5))
	require.NoError(t, err)

	mw, _ := roster.MonthWindow(2024, 3)
	got, err := s.SlotsInRange(ctx, mw.Start, mw.End)
	require.NoError(t, err)
	require.Len(t, got, 2)
	holders := map[int64]int{}
	for _, sl := range got {
		holders[sl.UserID]++
	}
	assert.Equal(t, 1, holders[a.ID])
	assert.Equal(t, 1, holders[b.ID])
}

func TestDeleteSlot_NotFound(t *testing.T) {
	s := newStore(t)
	err := s.DeleteSlot(context.Background(), 42)
	assert.True(t, errors.Is(err, roster.ErrSlotNotFound))
}

func TestSlotsInMonthWithNames(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "Aoife Byrne")

	_, err := s.SaveSlot(ctx, nightAt(u.ID, 5))
	require.NoError(t, err)
	// A slot whose holder is gone still renders, just nameless.
	_, err = s.SaveSlot(ctx, nightAt(999, 6))
	require.NoError(t, err)

	views, err := s.SlotsInMonthWithNames(ctx, 2024, 3)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Aoife Byrne", views[0].UserName)
	assert.Equal(t, "", views[1].UserName)
}

// =============================================================================
// ENGINE LOOKUPS AND AUDIT
// =============================================================================

func TestPeopleAndPostsByID(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	u := saveUser(t, s, "aoife")
	post, err := s.SavePost(ctx, roster.Post{Title: "Registrar", Status: roster.StatusActiveRosterable})
	require.NoError(t, err)

	people, err := s.PeopleByID(ctx, []int64{u.ID, 999})
	require.NoError(t, err)
	require.Len(t, people, 1)
	assert.Equal(t, u.Name, people[u.ID].Name)

	posts, err := s.PostsByID(ctx, []int64{post.ID})
	require.NoError(t, err)
	assert.Equal(t, "Registrar", posts[post.ID].Title)

	empty, err := s.PeopleByID(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAppendAudit(t *testing.T) {
	s := newStore(t)
	err := s.AppendAudit(context.Background(), roster.AuditEntry{
		ID:        "a2c8b5e0-0000-4000-8000-000000000001",
		Action:    roster.AuditRosterBuild,
		After:     map[string]any{"created_slots": 31},
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
}
