/*
Package roster provides the on-call roster scheduling and compliance engine.

PURPOSE:
  This package contains the domain types and algorithms behind the admin
  console's roster endpoints: building a month of on-call cover, autofilling
  a single post, and auditing a committed month against EWTD-style duty
  rules. Persistence lives behind the Store interface (store/sqlite in
  production, roster/store in tests).

KEY CONCEPTS IN THIS FILE (types.go):
  - Person/Post/Contract: who can be rostered, where, and when
  - CallPolicy: per-post participation, night cap, and rest floor
  - Group: named pools, teaching blocks, and teams with typed rules
  - Slot: the atomic scheduling unit (one day or night of call)
  - ValidationIssue: a single finding from the compliance validator

DESIGN PRINCIPLES:
  1. Wall-clock semantics: all times are timezone-naive local wall clock,
     represented as UTC time.Time values and never converted.
  2. Precision: post FTE uses decimal.Decimal, never float64.
  3. Closed payloads: the free-form JSON payloads of the admin store
     (core_hours, call_policy, group rules) are parsed at the boundary
     (package factory) into the closed types defined here.

SEE ALSO:
  - calendar.go: date and window arithmetic
  - builder.go: month build algorithm
  - validator.go: compliance checks
  - store.go: persistence interface
*/
package roster

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PEOPLE AND ROLES
// =============================================================================

// Role classifies a user in the admin console.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleNCHD       Role = "nchd"
	RoleStaff      Role = "staff"
)

// Person is a user of the system. Immutable once fetched; owned by the
// external user store.
type Person struct {
	ID    int64
	Name  string
	Email string
	Role  Role
}

// =============================================================================
// POSTS
// =============================================================================

// PostStatus describes whether a post can hold rostered duty.
type PostStatus string

const (
	StatusActiveRosterable   PostStatus = "ACTIVE_ROSTERABLE"
	StatusVacantRosterable   PostStatus = "VACANT_ROSTERABLE"
	StatusVacantUnrosterable PostStatus = "VACANT_UNROSTERABLE"
)

// Post is a staffable position.
type Post struct {
	ID     int64
	Title  string
	Site   string
	Grade  string
	FTE    decimal.Decimal // 0.1 .. 1.0
	Status PostStatus

	// StatusFrom is the date the current status took effect. A
	// VACANT_UNROSTERABLE post is never assignable on or after this date.
	// Zero means the status has always applied.
	StatusFrom Date

	// CoreHours are weekday windows reserved for the post's core work
	// (clinics, OPD). Call must not override them.
	CoreHours CoreHours

	// CallPolicy is nil when the post has never declared one. Absence
	// means "participates" for role pools and "does not participate"
	// for post-scoped autofill.
	CallPolicy *CallPolicy

	// GroupIDs links the post to groups (teaching blocks, pools, teams).
	GroupIDs []int64

	Notes string
}

// RosterableOn reports whether the post may hold duty on the given date.
func (p Post) RosterableOn(d Date) bool {
	if p.Status != StatusVacantUnrosterable {
		return true
	}
	if p.StatusFrom.IsZero() {
		return false
	}
	return d.Before(p.StatusFrom)
}

// CallPolicy governs a post's participation in on-call.
type CallPolicy struct {
	ParticipatesInCall bool
	Role               string
	MaxNightsPerMonth  int // <= 0 means uncapped
	MinRestHours       int
}

// DefaultCallPolicy mirrors the store's historical defaults for posts that
// predate explicit policies.
func DefaultCallPolicy() CallPolicy {
	return CallPolicy{
		ParticipatesInCall: true,
		Role:               "NCHD",
		MaxNightsPerMonth:  7,
		MinRestHours:       11,
	}
}

// =============================================================================
// CORE HOURS
// =============================================================================

// TimeOfDay is a wall-clock time within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// At anchors the time of day on a date.
func (t TimeOfDay) At(d Date) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
}

// ClockRange is a [Start, End) wall-clock range within a single day.
type ClockRange struct {
	Start TimeOfDay
	End   TimeOfDay
}

// On anchors the range on a date.
func (c ClockRange) On(d Date) Window {
	return Window{Start: c.Start.At(d), End: c.End.At(d)}
}

// CoreHours maps weekdays to reserved wall-clock ranges.
type CoreHours map[time.Weekday][]ClockRange

// On returns the core windows anchored on the given date.
func (ch CoreHours) On(d Date) []Window {
	ranges := ch[d.Weekday()]
	if len(ranges) == 0 {
		return nil
	}
	windows := make([]Window, len(ranges))
	for i, r := range ranges {
		windows[i] = r.On(d)
	}
	return windows
}

// =============================================================================
// CONTRACTS
// =============================================================================

// Contract binds a person to a post over [Start, End). End.IsZero() means
// open-ended. The store enforces per-person non-overlap; the engine treats
// overlap as a hard input-consistency error (ErrOverlappingContract).
type Contract struct {
	ID     int64
	UserID int64
	PostID int64
	TeamID int64 // 0 when unset
	Start  Date
	End    Date // exclusive; zero = open-ended
}

// Covers reports whether the contract is in force on the given date.
func (c Contract) Covers(d Date) bool {
	if d.Before(c.Start) {
		return false
	}
	if c.End.IsZero() {
		return true
	}
	return d.Before(c.End)
}

// OverlapsPeriod reports whether the contract overlaps [from, to).
func (c Contract) OverlapsPeriod(from, to Date) bool {
	if !c.Start.Before(to) {
		return false
	}
	if c.End.IsZero() {
		return true
	}
	return from.Before(c.End)
}

// =============================================================================
// GROUPS
// =============================================================================

// GroupKind discriminates the typed rules payload of a group.
type GroupKind string

const (
	KindOnCallPool    GroupKind = "on_call_pool"
	KindTeachingBlock GroupKind = "teaching_block"
	KindTeam          GroupKind = "team"
)

// GroupRules is the closed tagged variant for group rule payloads.
// Exactly one concrete type exists per GroupKind; package factory produces
// them from the store's JSON at the boundary.
type GroupRules interface {
	Kind() GroupKind
}

// OnCallPoolRules configures a department-wide call pool.
type OnCallPoolRules struct {
	Shift string // e.g. "night"
	Hours []ClockRange
}

func (OnCallPoolRules) Kind() GroupKind { return KindOnCallPool }

// TeachingBlockRules protects a weekly teaching window.
type TeachingBlockRules struct {
	Weekday time.Weekday
	Window  ClockRange
}

func (TeachingBlockRules) Kind() GroupKind { return KindTeachingBlock }

// TeamRules describes a clinical team pool.
type TeamRules struct {
	MemberRoles []string
}

func (TeamRules) Kind() GroupKind { return KindTeam }

// Group is a named pool with typed rules.
type Group struct {
	ID    int64
	Name  string
	Kind  GroupKind
	Rules GroupRules
	Notes string
}

// =============================================================================
// SLOTS
// =============================================================================

// SlotType is the kind of duty a slot holds.
type SlotType string

const (
	SlotDayCall   SlotType = "day_call"
	SlotNightCall SlotType = "night_call"
)

// Slot is the atomic scheduling unit: one person covering one call period.
// Invariants: Start < End; no two slots for the same person overlap.
type Slot struct {
	ID     int64
	UserID int64
	PostID int64 // 0 when the slot is not post-scoped
	Start  time.Time
	End    time.Time
	Type   SlotType
}

// Overlaps reports whether two slots overlap in time.
func (s Slot) Overlaps(o Slot) bool {
	return Overlaps(s.Start, s.End, o.Start, o.End)
}

// SlotScope identifies the set of slots a build run owns: one month, the
// requested call types, and either the department pool or a single post.
// Rebuilding the same scope is an overwrite, never an accumulation.
type SlotScope struct {
	Year   int
	Month  time.Month
	Types  []SlotType
	PostID int64 // 0 = department pool scope
}

// LockKey returns the exclusive-lock key for the scope. Pool builds and
// post autofills for the same month use distinct keys and may run in
// parallel; two builds for the same key must not.
func (s SlotScope) LockKey() string {
	if s.PostID != 0 {
		return formatScopeKey(s.Year, s.Month, "post", s.PostID)
	}
	return formatScopeKey(s.Year, s.Month, "pool", 0)
}

// HasType reports whether the scope covers the given slot type.
func (s SlotScope) HasType(t SlotType) bool {
	for _, st := range s.Types {
		if st == t {
			return true
		}
	}
	return false
}

// =============================================================================
// LEAVE AND HOLIDAYS
// =============================================================================

// Leave is an approved absence. A person on approved leave is never
// assigned call overlapping the leave window.
type Leave struct {
	ID     int64
	UserID int64
	Start  time.Time
	End    time.Time
	Type   string
	Status string
}

// Approved reports whether the leave blocks rostering.
func (l Leave) Approved() bool { return l.Status == "approved" }

// Holiday is a public holiday. Core hours and teaching protection are
// suppressed on observed holidays.
type Holiday struct {
	ID       int64
	Date     Date
	Name     string
	Observed bool
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationIssue is one finding from the compliance validator. SlotID is
// zero when the issue is not slot-specific (coverage gaps, fairness).
// Issues are transient; they are never persisted.
type ValidationIssue struct {
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name"`
	SlotID   int64  `json:"slot_id"`
	Message  string `json:"message"`
}

// ValidationReport is the result of validating one month.
type ValidationReport struct {
	OK     bool              `json:"ok"`
	Issues []ValidationIssue `json:"issues"`
}

// =============================================================================
// AUDIT
// =============================================================================

// AuditEntry records who did what. Append-only; failures to audit never
// fail the underlying operation.
type AuditEntry struct {
	ID        string // uuid
	ActorID   int64
	Action    string
	Before    map[string]any
	After     map[string]any
	Reason    string
	CreatedAt time.Time
}

const (
	AuditRosterBuild  = "roster_build"
	AuditPostAutofill = "post_autofill"
	AuditSlotAssign   = "slot_assign"
	AuditSlotDelete   = "slot_delete"
)
