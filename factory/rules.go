/*
Package factory converts the admin store's free-form JSON payloads into
the engine's closed types.

PURPOSE:
  Posts and groups carry dynamically shaped JSON (core_hours, call_policy,
  group rules) so admins can edit them without code changes. The engine
  never re-interprets that JSON ad hoc: this package validates it once at
  the store boundary and produces the tagged variants from package roster.

JSON SHAPES:
  call_policy:  {"participates_in_call": true, "role": "NCHD",
                 "min_rest_hours": 11, "max_nights_per_month": 7}
  core_hours:   {"Mon": [["09:00","17:00"]], "Wed": [["09:00","12:30"]]}
  group rules:
    on_call_pool:   {"shift": "night", "hours": [["17:00","09:00"]]}
    teaching_block: {"weekday": "Wed", "time": ["14:00","16:00"]}
    team:           {"member_roles": ["nchd","supervisor"]}

DEFAULTS:
  Absent call_policy fields fall back to the store's historical defaults
  (participates, NCHD, 11h rest, 7 nights). Unknown weekdays, malformed
  clock times, and unknown group kinds are rejected, not guessed at.
*/
package factory

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nooarche/NCHD-Roster-V1/roster"
)

var weekdays = map[string]time.Weekday{
	"Mon": time.Monday, "Tue": time.Tuesday, "Wed": time.Wednesday,
	"Thu": time.Thursday, "Fri": time.Friday, "Sat": time.Saturday,
	"Sun": time.Sunday,
}

// =============================================================================
// CALL POLICY
// =============================================================================

type callPolicyJSON struct {
	ParticipatesInCall *bool  `json:"participates_in_call"`
	Role               string `json:"role"`
	MaxNightsPerMonth  *int   `json:"max_nights_per_month"`
	MinRestHours       *int   `json:"min_rest_hours"`
}

// ParseCallPolicy parses a post's call_policy payload. Empty input means
// the post never declared one and returns (nil, nil).
func ParseCallPolicy(raw []byte) (*roster.CallPolicy, error) {
	if len(raw) == 0 || string(raw) == "null" || string(raw) == "{}" {
		return nil, nil
	}
	var in callPolicyJSON
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("parse call_policy: %w", err)
	}

	policy := roster.DefaultCallPolicy()
	if in.ParticipatesInCall != nil {
		policy.ParticipatesInCall = *in.ParticipatesInCall
	}
	if in.Role != "" {
		policy.Role = in.Role
	}
	if in.MaxNightsPerMonth != nil {
		if *in.MaxNightsPerMonth < 0 {
			return nil, fmt.Errorf("parse call_policy: max_nights_per_month must be >= 0")
		}
		policy.MaxNightsPerMonth = *in.MaxNightsPerMonth
	}
	if in.MinRestHours != nil {
		if *in.MinRestHours < 0 {
			return nil, fmt.Errorf("parse call_policy: min_rest_hours must be >= 0")
		}
		policy.MinRestHours = *in.MinRestHours
	}
	return &policy, nil
}

// =============================================================================
// CORE HOURS
// =============================================================================

// ParseCoreHours parses a post's core_hours payload: weekday names to
// lists of ["HH:MM","HH:MM"] pairs.
func ParseCoreHours(raw []byte) (roster.CoreHours, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var in map[string][][]string
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("parse core_hours: %w", err)
	}

	ch := make(roster.CoreHours)
	for day, pairs := range in {
		wd, ok := weekdays[day]
		if !ok {
			return nil, fmt.Errorf("parse core_hours: unknown weekday %q", day)
		}
		for _, pair := range pairs {
			cr, err := parseClockRange(pair)
			if err != nil {
				return nil, fmt.Errorf("parse core_hours %s: %w", day, err)
			}
			ch[wd] = append(ch[wd], cr)
		}
	}
	return ch, nil
}

// =============================================================================
// GROUP RULES
// =============================================================================

type onCallPoolJSON struct {
	Shift string     `json:"shift"`
	Hours [][]string `json:"hours"`
}

type teachingBlockJSON struct {
	Weekday string   `json:"weekday"`
	Time    []string `json:"time"`
}

type teamJSON struct {
	MemberRoles []string `json:"member_roles"`
}

// ParseGroupRules parses a group's rules payload for its kind. Unknown
// kinds are rejected; the engine has no behavior for them.
func ParseGroupRules(kind roster.GroupKind, raw []byte) (roster.GroupRules, error) {
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	switch kind {
	case roster.KindOnCallPool:
		var in onCallPoolJSON
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("parse on_call_pool rules: %w", err)
		}
		rules := roster.OnCallPoolRules{Shift: in.Shift}
		for _, pair := range in.Hours {
			cr, err := parseClockRange(pair)
			if err != nil {
				return nil, fmt.Errorf("parse on_call_pool hours: %w", err)
			}
			rules.Hours = append(rules.Hours, cr)
		}
		return rules, nil

	case roster.KindTeachingBlock:
		var in teachingBlockJSON
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("parse teaching_block rules: %w", err)
		}
		wd, ok := weekdays[in.Weekday]
		if !ok {
			return nil, fmt.Errorf("parse teaching_block rules: unknown weekday %q", in.Weekday)
		}
		cr, err := parseClockRange(in.Time)
		if err != nil {
			return nil, fmt.Errorf("parse teaching_block time: %w", err)
		}
		return roster.TeachingBlockRules{Weekday: wd, Window: cr}, nil

	case roster.KindTeam:
		var in teamJSON
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, fmt.Errorf("parse team rules: %w", err)
		}
		return roster.TeamRules{MemberRoles: in.MemberRoles}, nil

	default:
		return nil, fmt.Errorf("unknown group kind %q", kind)
	}
}

// =============================================================================
// FTE
// =============================================================================

var (
	fteMin = decimal.NewFromFloat(0.1)
	fteMax = decimal.NewFromInt(1)
)

// ParseFTE validates a post's whole-time-equivalent fraction. Stored as a
// string to avoid float drift.
func ParseFTE(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.NewFromInt(1), nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse fte %q: %w", s, err)
	}
	if d.LessThan(fteMin) || d.GreaterThan(fteMax) {
		return decimal.Decimal{}, fmt.Errorf("fte %s outside [0.1, 1.0]", d)
	}
	return d, nil
}

// =============================================================================
// CLOCK PARSING
// =============================================================================

func parseClockRange(pair []string) (roster.ClockRange, error) {
	if len(pair) != 2 {
		return roster.ClockRange{}, fmt.Errorf("time range must be [start, end], got %v", pair)
	}
	start, err := parseTimeOfDay(pair[0])
	if err != nil {
		return roster.ClockRange{}, err
	}
	end, err := parseTimeOfDay(pair[1])
	if err != nil {
		return roster.ClockRange{}, err
	}
	return roster.ClockRange{Start: start, End: end}, nil
}

func parseTimeOfDay(s string) (roster.TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return roster.TimeOfDay{}, fmt.Errorf("bad clock time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return roster.TimeOfDay{}, fmt.Errorf("bad clock time %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return roster.TimeOfDay{}, fmt.Errorf("bad clock time %q", s)
	}
	return roster.TimeOfDay{Hour: hour, Minute: minute}, nil
}

// MarshalCoreHours serializes core hours back to the store's JSON shape.
func MarshalCoreHours(ch roster.CoreHours) ([]byte, error) {
	if ch == nil {
		return []byte("null"), nil
	}
	out := make(map[string][][]string)
	for day, name := range weekdayNames() {
		for _, cr := range ch[day] {
			out[name] = append(out[name], []string{formatTimeOfDay(cr.Start), formatTimeOfDay(cr.End)})
		}
	}
	return json.Marshal(out)
}

// MarshalCallPolicy serializes a policy back to the store's JSON shape.
func MarshalCallPolicy(p *roster.CallPolicy) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	return json.Marshal(map[string]any{
		"participates_in_call": p.ParticipatesInCall,
		"role":                 p.Role,
		"max_nights_per_month": p.MaxNightsPerMonth,
		"min_rest_hours":       p.MinRestHours,
	})
}

func weekdayNames() map[time.Weekday]string {
	out := make(map[time.Weekday]string, len(weekdays))
	for name, wd := range weekdays {
		out[wd] = name
	}
	return out
}

func formatTimeOfDay(t roster.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
