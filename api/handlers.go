/*
handlers.go - HTTP handlers for the roster engine

PURPOSE:
  Exposes the scheduling and compliance engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Actions:
    POST   /api/actions/roster-build     Build a month's roster
    POST   /api/actions/autofill-by-post Autofill one post's nights

  On-call:
    POST   /api/oncall/autofill          Night-only pool build
    POST   /api/oncall/assign            Manual single-slot edit
    DELETE /api/oncall/{id}              Remove one slot
    GET    /api/oncall/month             Month calendar view

  Validation:
    GET    /api/validate/rota            Compliance report

REQUEST FLOW:
  1. Decode and validate input
  2. Call domain logic (builder, validator)
  3. Serialize response
  4. Map errors to status codes

ERROR HANDLING:
  Errors are returned as {"detail": "..."} with status from the engine's
  error taxonomy:
  - 400: Invalid period, malformed input
  - 404: Slot/resource not found
  - 409: Overlapping contracts, concurrent build on the same scope
  - 422: Pool resolves to no eligible candidates
  - 503: Store unavailable after retry
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.
  The console is expected to sit behind the hospital network boundary.

SEE ALSO:
  - dto.go: Request/response data structures
  - handlers_admin.go: CRUD surface for the admin console
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/nooarche/NCHD-Roster-V1/roster"
	"github.com/nooarche/NCHD-Roster-V1/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     *sqlite.Store
	Builder   *roster.Builder
	Validator *roster.Validator

	// poolRoles is the configured default pool for builds that don't
	// name one (oncall/autofill).
	poolRoles []string

	log      *zap.Logger
	validate *validator.Validate
}

// NewHandler creates a handler wired to the store and engine.
func NewHandler(store *sqlite.Store, builder *roster.Builder, v *roster.Validator, poolRoles []string, log *zap.Logger) *Handler {
	return &Handler{
		Store:     store,
		Builder:   builder,
		Validator: v,
		poolRoles: poolRoles,
		log:       log,
		validate:  validator.New(),
	}
}

// =============================================================================
// BUILD ACTIONS
// =============================================================================

// BuildRoster builds (or rebuilds) a month's roster.
// POST /api/actions/roster-build
func (h *Handler) BuildRoster(w http.ResponseWriter, r *http.Request) {
	var req BuildRosterRequest
	if !h.decode(w, r, &req) {
		return
	}

	freeze, ok := h.parseFreeze(w, req.FreezeBefore)
	if !ok {
		return
	}
	roles := req.PoolRoles
	if len(roles) == 0 {
		roles = h.poolRoles
	}

	result, err := h.Builder.Build(r.Context(), roster.BuildRequest{
		Year:             req.Year,
		Month:            req.Month,
		DayCallsPerDay:   req.DayCallsPerDay,
		NightCallsPerDay: req.NightCallsPerDay,
		PoolRoles:        roles,
		FreezeBefore:     freeze,
	})
	if err != nil {
		h.writeEngineError(w, "roster build", err)
		return
	}
	writeJSON(w, http.StatusCreated, buildResultDTO(result))
}

// AutofillByPost fills one post's nights from its own contract holders.
// POST /api/actions/autofill-by-post
func (h *Handler) AutofillByPost(w http.ResponseWriter, r *http.Request) {
	var req AutofillByPostRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.Builder.AutofillByPost(r.Context(), req.PostID, req.Year, req.Month)
	if err != nil {
		h.writeEngineError(w, "post autofill", err)
		return
	}
	writeJSON(w, http.StatusOK, buildResultDTO(result))
}

// Autofill runs a night-only pool build with the configured default roles.
// POST /api/oncall/autofill
func (h *Handler) Autofill(w http.ResponseWriter, r *http.Request) {
	var req AutofillRequest
	if !h.decode(w, r, &req) {
		return
	}

	freeze, ok := h.parseFreeze(w, req.FreezeBefore)
	if !ok {
		return
	}
	nights := req.NightCallsPerDay
	if nights == 0 {
		nights = 1
	}

	result, err := h.Builder.Build(r.Context(), roster.BuildRequest{
		Year:             req.Year,
		Month:            req.Month,
		NightCallsPerDay: nights,
		PoolRoles:        h.poolRoles,
		FreezeBefore:     freeze,
	})
	if err != nil {
		h.writeEngineError(w, "autofill", err)
		return
	}

	status := "filled"
	if len(result.Warnings) > 0 {
		status = "filled with gaps"
	}
	writeJSON(w, http.StatusOK, AutofillStatusDTO{
		Status:       status,
		CreatedSlots: result.CreatedSlots,
		Warnings:     result.Warnings,
	})
}

// =============================================================================
// SLOT EDITS
// =============================================================================

// AssignSlot creates or overwrites one slot from the calendar UI.
// POST /api/oncall/assign
func (h *Handler) AssignSlot(w http.ResponseWriter, r *http.Request) {
	var req AssignSlotRequest
	if !h.decode(w, r, &req) {
		return
	}

	start, err := time.ParseInLocation(apiTimeFormat, req.Start, time.UTC)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid start (use YYYY-MM-DDTHH:MM:SS)")
		return
	}
	end, err := time.ParseInLocation(apiTimeFormat, req.End, time.UTC)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid end (use YYYY-MM-DDTHH:MM:SS)")
		return
	}

	slot, err := h.Builder.AssignSlot(r.Context(), roster.Slot{
		UserID: req.UserID,
		PostID: req.PostID,
		Start:  start,
		End:    end,
		Type:   roster.SlotType(req.Type),
	})
	if err != nil {
		h.writeEngineError(w, "assign slot", err)
		return
	}
	writeJSON(w, http.StatusCreated, slotDTO(slot, ""))
}

// DeleteSlot removes one slot.
// DELETE /api/oncall/{id}
func (h *Handler) DeleteSlot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	if err := h.Builder.DeleteSlot(r.Context(), id); err != nil {
		h.writeEngineError(w, "delete slot", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MonthSlots returns the month's slots joined with holder names.
// GET /api/oncall/month?year&month
func (h *Handler) MonthSlots(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.parsePeriod(w, r)
	if !ok {
		return
	}

	views, err := h.Store.SlotsInMonthWithNames(r.Context(), year, month)
	if err != nil {
		h.writeEngineError(w, "month slots", err)
		return
	}

	dtos := make([]SlotDTO, len(views))
	for i, v := range views {
		dtos[i] = slotDTO(v.Slot, v.UserName)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidateRota audits the month against the duty rules.
// GET /api/validate/rota?year&month
func (h *Handler) ValidateRota(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.parsePeriod(w, r)
	if !ok {
		return
	}

	report, err := h.Validator.Validate(r.Context(), year, month)
	if err != nil {
		h.writeEngineError(w, "validate rota", err)
		return
	}
	if report.Issues == nil {
		report.Issues = []roster.ValidationIssue{}
	}
	writeJSON(w, http.StatusOK, report)
}

// =============================================================================
// HELPERS
// =============================================================================

// decode parses and validates a JSON request body, writing the 400 itself
// on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) parseFreeze(w http.ResponseWriter, s string) (roster.Date, bool) {
	if s == "" {
		return roster.Date{}, true
	}
	d, err := roster.ParseDate(s)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid freeze_before (use YYYY-MM-DD)")
		return roster.Date{}, false
	}
	return d, true
}

func (h *Handler) parsePeriod(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid year")
		return 0, 0, false
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid month")
		return 0, 0, false
	}
	return year, month, true
}

func buildResultDTO(result roster.BuildResult) BuildResultDTO {
	return BuildResultDTO{
		RunID:        result.RunID,
		CreatedSlots: result.CreatedSlots,
		Warnings:     result.Warnings,
	}
}

func slotDTO(s roster.Slot, userName string) SlotDTO {
	return SlotDTO{
		ID:       s.ID,
		UserID:   s.UserID,
		UserName: userName,
		PostID:   s.PostID,
		Start:    s.Start.Format(apiTimeFormat),
		End:      s.End.Format(apiTimeFormat),
		Type:     string(s.Type),
	}
}

// writeEngineError maps the engine's error taxonomy to HTTP statuses.
func (h *Handler) writeEngineError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, roster.ErrNoEligibleCandidates):
		status = http.StatusUnprocessableEntity
	case roster.IsClientError(err):
		status = http.StatusBadRequest
	case roster.IsConflict(err):
		status = http.StatusConflict
	case roster.IsNotFound(err):
		status = http.StatusNotFound
	case roster.IsRetryable(err):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error(op+" failed", zap.Error(err))
	}
	writeDetail(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
