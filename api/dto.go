/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Engine:
    BuildRosterRequest, AutofillByPostRequest, AutofillRequest,
    AssignSlotRequest, BuildResultDTO, SlotDTO

  Admin:
    UserDTO, PostDTO, ContractDTO, GroupDTO, TeamDTO, HolidayDTO

VALIDATION:
  Request bodies carry validator/v10 struct tags; handlers run them
  through the shared validator before touching the engine. The free-form
  rules/core_hours/call_policy payloads stay json.RawMessage here and are
  parsed by the factory at the store boundary.

ERROR SHAPE:
  All error responses are {"detail": "..."} for console compatibility.

SEE ALSO:
  - handlers.go: Engine endpoint handlers
  - handlers_admin.go: CRUD handlers
  - factory/rules.go: Payload parsing
*/
package api

import (
	"encoding/json"
)

// apiTimeFormat is the wall-clock timestamp shape used on the wire.
const apiTimeFormat = "2006-01-02T15:04:05"

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// =============================================================================
// ENGINE TYPES
// =============================================================================

// BuildRosterRequest is the body of POST /api/actions/roster-build.
type BuildRosterRequest struct {
	Year             int      `json:"year" validate:"required"`
	Month            int      `json:"month" validate:"required"`
	DayCallsPerDay   int      `json:"day_calls_per_day" validate:"min=0,max=10"`
	NightCallsPerDay int      `json:"night_calls_per_day" validate:"min=0,max=10"`
	PoolRoles        []string `json:"pool_roles" validate:"omitempty,dive,required"`
	FreezeBefore     string   `json:"freeze_before,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// AutofillByPostRequest is the body of POST /api/actions/autofill-by-post.
type AutofillByPostRequest struct {
	PostID int64 `json:"post_id" validate:"required"`
	Year   int   `json:"year" validate:"required"`
	Month  int   `json:"month" validate:"required"`
}

// AutofillRequest is the body of POST /api/oncall/autofill: a night-only
// pool build with the configured default roles.
type AutofillRequest struct {
	Year             int    `json:"year" validate:"required"`
	Month            int    `json:"month" validate:"required"`
	NightCallsPerDay int    `json:"night_calls_per_day" validate:"min=0,max=10"`
	FreezeBefore     string `json:"freeze_before,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// AssignSlotRequest is the body of POST /api/oncall/assign.
type AssignSlotRequest struct {
	UserID int64  `json:"user_id" validate:"required"`
	PostID int64  `json:"post_id,omitempty"`
	Start  string `json:"start" validate:"required"`
	End    string `json:"end" validate:"required"`
	Type   string `json:"type" validate:"required,oneof=day_call night_call"`
}

// BuildResultDTO reports what a build produced.
type BuildResultDTO struct {
	RunID        string   `json:"run_id"`
	CreatedSlots int      `json:"created_slots"`
	Warnings     []string `json:"warnings,omitempty"`
}

// AutofillStatusDTO is the oncall/autofill response: the build result
// plus a human-readable status line for the console banner.
type AutofillStatusDTO struct {
	Status       string   `json:"status"`
	CreatedSlots int      `json:"created_slots"`
	Warnings     []string `json:"warnings,omitempty"`
}

// SlotDTO represents an on-call slot, joined with the holder's name for
// calendar views.
type SlotDTO struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	PostID   int64  `json:"post_id,omitempty"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Type     string `json:"type"`
}

// =============================================================================
// ADMIN TYPES
// =============================================================================

// UserDTO represents a user in API responses and create/update bodies.
type UserDTO struct {
	ID    int64  `json:"id,omitempty"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// PostDTO represents a post. CoreHours, CallPolicy and GroupIDs carry the
// store's JSON payload shapes verbatim.
type PostDTO struct {
	ID         int64           `json:"id,omitempty"`
	Title      string          `json:"title" validate:"required"`
	Site       string          `json:"site,omitempty"`
	Grade      string          `json:"grade,omitempty"`
	FTE        string          `json:"fte,omitempty"`
	Status     string          `json:"status,omitempty"`
	StatusFrom string          `json:"status_from,omitempty" validate:"omitempty,datetime=2006-01-02"`
	CoreHours  json.RawMessage `json:"core_hours,omitempty"`
	CallPolicy json.RawMessage `json:"call_policy,omitempty"`
	GroupIDs   []int64         `json:"group_ids,omitempty"`
	Notes      string          `json:"notes,omitempty"`
}

// ContractDTO represents a contract.
type ContractDTO struct {
	ID     int64  `json:"id,omitempty"`
	UserID int64  `json:"user_id" validate:"required"`
	PostID int64  `json:"post_id" validate:"required"`
	TeamID int64  `json:"team_id,omitempty"`
	Start  string `json:"start" validate:"required,datetime=2006-01-02"`
	End    string `json:"end,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

// GroupDTO represents a group; Rules is the kind-shaped payload.
type GroupDTO struct {
	ID    int64           `json:"id,omitempty"`
	Name  string          `json:"name" validate:"required"`
	Kind  string          `json:"kind" validate:"required,oneof=on_call_pool teaching_block team"`
	Rules json.RawMessage `json:"rules,omitempty"`
	Notes string          `json:"notes,omitempty"`
}

// TeamDTO represents a team.
type TeamDTO struct {
	ID           int64  `json:"id,omitempty"`
	Name         string `json:"name" validate:"required"`
	SupervisorID int64  `json:"supervisor_id,omitempty"`
}

// HolidayDTO represents a public holiday.
type HolidayDTO struct {
	ID       int64  `json:"id,omitempty"`
	Date     string `json:"date" validate:"required,datetime=2006-01-02"`
	Name     string `json:"name" validate:"required"`
	Observed *bool  `json:"observed,omitempty"`
}
