/*
handlers_admin.go - CRUD surface for the admin console

PURPOSE:
  Thin glue between the console's list/detail/editor screens and the
  store. No scheduling logic lives here: payload validation happens at
  the store boundary (factory parsers), and the engine endpoints in
  handlers.go are the only writers of slots.

ENDPOINTS:
  /api/users      GET, POST, GET/{id}, PUT/{id}, DELETE/{id}
  /api/posts      GET, POST, GET/{id}, PUT/{id}, DELETE/{id}
  /api/contracts  GET, POST, DELETE/{id}
  /api/groups     GET, POST, PUT/{id}, DELETE/{id}
  /api/teams      GET, POST, DELETE/{id}
  /api/holidays   GET, POST, DELETE/{id}
  /api/health     GET

SEE ALSO:
  - dto.go: Request/response data structures
  - store/sqlite: The CRUD implementations these delegate to
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nooarche/NCHD-Roster-V1/factory"
	"github.com/nooarche/NCHD-Roster-V1/roster"
	"github.com/nooarche/NCHD-Roster-V1/store/sqlite"
)

// =============================================================================
// USERS
// =============================================================================

// ListUsers returns all users.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	people, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeEngineError(w, "list users", err)
		return
	}
	dtos := make([]UserDTO, len(people))
	for i, p := range people {
		dtos[i] = userDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetUser returns a single user.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "get user", err)
		return
	}
	writeJSON(w, http.StatusOK, userDTO(p))
}

// CreateUser creates a user.
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req UserDTO
	if !h.decode(w, r, &req) {
		return
	}
	p, err := h.Store.SaveUser(r.Context(), roster.Person{
		Name:  req.Name,
		Email: req.Email,
		Role:  roster.Role(req.Role),
	})
	if err != nil {
		h.writeEngineError(w, "create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, userDTO(p))
}

// UpdateUser updates a user.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UserDTO
	if !h.decode(w, r, &req) {
		return
	}
	p := roster.Person{ID: id, Name: req.Name, Email: req.Email, Role: roster.Role(req.Role)}
	if err := h.Store.UpdateUser(r.Context(), p); err != nil {
		h.writeEngineError(w, "update user", err)
		return
	}
	writeJSON(w, http.StatusOK, userDTO(p))
}

// DeleteUser removes a user.
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete user", h.Store.DeleteUser)
}

func userDTO(p roster.Person) UserDTO {
	return UserDTO{ID: p.ID, Name: p.Name, Email: p.Email, Role: string(p.Role)}
}

// =============================================================================
// POSTS
// =============================================================================

// ListPosts returns all posts.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.Store.ListPosts(r.Context())
	if err != nil {
		h.writeEngineError(w, "list posts", err)
		return
	}
	dtos := make([]PostDTO, len(posts))
	for i, p := range posts {
		dto, err := postDTO(p)
		if err != nil {
			h.writeEngineError(w, "list posts", err)
			return
		}
		dtos[i] = dto
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPost returns a single post.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.Store.GetPost(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, "get post", err)
		return
	}
	dto, err := postDTO(p)
	if err != nil {
		h.writeEngineError(w, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// CreatePost creates a post.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	var req PostDTO
	if !h.decode(w, r, &req) {
		return
	}
	post, ok := h.postFromDTO(w, req)
	if !ok {
		return
	}
	saved, err := h.Store.SavePost(r.Context(), post)
	if err != nil {
		h.writeEngineError(w, "create post", err)
		return
	}
	dto, err := postDTO(saved)
	if err != nil {
		h.writeEngineError(w, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto)
}

// UpdatePost updates a post.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req PostDTO
	if !h.decode(w, r, &req) {
		return
	}
	post, ok := h.postFromDTO(w, req)
	if !ok {
		return
	}
	post.ID = id
	if err := h.Store.UpdatePost(r.Context(), post); err != nil {
		h.writeEngineError(w, "update post", err)
		return
	}
	dto, err := postDTO(post)
	if err != nil {
		h.writeEngineError(w, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, dto)
}

// DeletePost removes a post.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete post", h.Store.DeletePost)
}

// postFromDTO parses the free-form payloads through the factory so the
// 400 surfaces here, not on the next read.
func (h *Handler) postFromDTO(w http.ResponseWriter, req PostDTO) (roster.Post, bool) {
	post := roster.Post{
		Title:    req.Title,
		Site:     req.Site,
		Grade:    req.Grade,
		Status:   roster.PostStatus(req.Status),
		GroupIDs: req.GroupIDs,
		Notes:    req.Notes,
	}
	if post.Status == "" {
		post.Status = roster.StatusActiveRosterable
	}

	fte := req.FTE
	if fte == "" {
		fte = "1"
	}
	var err error
	if post.FTE, err = factory.ParseFTE(fte); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return roster.Post{}, false
	}
	if req.StatusFrom != "" {
		if post.StatusFrom, err = roster.ParseDate(req.StatusFrom); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid status_from (use YYYY-MM-DD)")
			return roster.Post{}, false
		}
	}
	if len(req.CoreHours) > 0 {
		if post.CoreHours, err = factory.ParseCoreHours(req.CoreHours); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return roster.Post{}, false
		}
	}
	if len(req.CallPolicy) > 0 {
		if post.CallPolicy, err = factory.ParseCallPolicy(req.CallPolicy); err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return roster.Post{}, false
		}
	}
	return post, true
}

func postDTO(p roster.Post) (PostDTO, error) {
	coreHours, err := factory.MarshalCoreHours(p.CoreHours)
	if err != nil {
		return PostDTO{}, err
	}
	callPolicy, err := factory.MarshalCallPolicy(p.CallPolicy)
	if err != nil {
		return PostDTO{}, err
	}
	dto := PostDTO{
		ID:         p.ID,
		Title:      p.Title,
		Site:       p.Site,
		Grade:      p.Grade,
		FTE:        p.FTE.String(),
		Status:     string(p.Status),
		CoreHours:  coreHours,
		CallPolicy: callPolicy,
		GroupIDs:   p.GroupIDs,
		Notes:      p.Notes,
	}
	if !p.StatusFrom.IsZero() {
		dto.StatusFrom = p.StatusFrom.String()
	}
	return dto, nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

// ListContracts returns all contracts.
func (h *Handler) ListContracts(w http.ResponseWriter, r *http.Request) {
	contracts, err := h.Store.ListContracts(r.Context())
	if err != nil {
		h.writeEngineError(w, "list contracts", err)
		return
	}
	dtos := make([]ContractDTO, len(contracts))
	for i, c := range contracts {
		dtos[i] = contractDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateContract creates a contract. Overlapping contracts for the same
// person are refused with 409.
func (h *Handler) CreateContract(w http.ResponseWriter, r *http.Request) {
	var req ContractDTO
	if !h.decode(w, r, &req) {
		return
	}

	start, err := roster.ParseDate(req.Start)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid start (use YYYY-MM-DD)")
		return
	}
	contract := roster.Contract{
		UserID: req.UserID,
		PostID: req.PostID,
		TeamID: req.TeamID,
		Start:  start,
	}
	if req.End != "" {
		if contract.End, err = roster.ParseDate(req.End); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid end (use YYYY-MM-DD)")
			return
		}
	}

	saved, err := h.Store.SaveContract(r.Context(), contract)
	if err != nil {
		h.writeEngineError(w, "create contract", err)
		return
	}
	writeJSON(w, http.StatusCreated, contractDTO(saved))
}

// DeleteContract removes a contract.
func (h *Handler) DeleteContract(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete contract", h.Store.DeleteContract)
}

func contractDTO(c roster.Contract) ContractDTO {
	dto := ContractDTO{
		ID:     c.ID,
		UserID: c.UserID,
		PostID: c.PostID,
		TeamID: c.TeamID,
		Start:  c.Start.String(),
	}
	if !c.End.IsZero() {
		dto.End = c.End.String()
	}
	return dto
}

// =============================================================================
// GROUPS
// =============================================================================

// ListGroups returns all groups.
func (h *Handler) ListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.Store.ListGroups(r.Context())
	if err != nil {
		h.writeEngineError(w, "list groups", err)
		return
	}
	dtos := make([]GroupDTO, len(groups))
	for i, g := range groups {
		dtos[i] = groupDTO(g)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateGroup creates a group; the rules payload must match the kind.
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req GroupDTO
	if !h.decode(w, r, &req) {
		return
	}
	group, ok := h.groupFromDTO(w, req)
	if !ok {
		return
	}
	saved, err := h.Store.SaveGroup(r.Context(), group)
	if err != nil {
		h.writeEngineError(w, "create group", err)
		return
	}
	writeJSON(w, http.StatusCreated, groupDTO(saved))
}

// UpdateGroup updates a group.
func (h *Handler) UpdateGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req GroupDTO
	if !h.decode(w, r, &req) {
		return
	}
	group, ok := h.groupFromDTO(w, req)
	if !ok {
		return
	}
	group.ID = id
	if err := h.Store.UpdateGroup(r.Context(), group); err != nil {
		h.writeEngineError(w, "update group", err)
		return
	}
	writeJSON(w, http.StatusOK, groupDTO(group))
}

// DeleteGroup removes a group.
func (h *Handler) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete group", h.Store.DeleteGroup)
}

func (h *Handler) groupFromDTO(w http.ResponseWriter, req GroupDTO) (roster.Group, bool) {
	kind := roster.GroupKind(req.Kind)
	rules, err := factory.ParseGroupRules(kind, req.Rules)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return roster.Group{}, false
	}
	return roster.Group{Name: req.Name, Kind: kind, Rules: rules, Notes: req.Notes}, true
}

func groupDTO(g roster.Group) GroupDTO {
	rules, _ := json.Marshal(rulesPayload(g.Rules))
	return GroupDTO{ID: g.ID, Name: g.Name, Kind: string(g.Kind), Rules: rules, Notes: g.Notes}
}

func rulesPayload(rules roster.GroupRules) any {
	switch r := rules.(type) {
	case roster.OnCallPoolRules:
		hours := make([][]string, len(r.Hours))
		for i, hr := range r.Hours {
			hours[i] = []string{clockString(hr.Start), clockString(hr.End)}
		}
		return map[string]any{"shift": r.Shift, "hours": hours}
	case roster.TeachingBlockRules:
		return map[string]any{
			"weekday": r.Weekday.String()[:3],
			"time":    []string{clockString(r.Window.Start), clockString(r.Window.End)},
		}
	case roster.TeamRules:
		return map[string]any{"member_roles": r.MemberRoles}
	default:
		return map[string]any{}
	}
}

// =============================================================================
// TEAMS
// =============================================================================

// ListTeams returns all teams.
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := h.Store.ListTeams(r.Context())
	if err != nil {
		h.writeEngineError(w, "list teams", err)
		return
	}
	dtos := make([]TeamDTO, len(teams))
	for i, t := range teams {
		dtos[i] = TeamDTO{ID: t.ID, Name: t.Name, SupervisorID: t.SupervisorID}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTeam creates a team.
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	var req TeamDTO
	if !h.decode(w, r, &req) {
		return
	}
	t, err := h.Store.SaveTeam(r.Context(), sqlite.Team{
		Name:         req.Name,
		SupervisorID: req.SupervisorID,
	})
	if err != nil {
		h.writeEngineError(w, "create team", err)
		return
	}
	writeJSON(w, http.StatusCreated, TeamDTO{ID: t.ID, Name: t.Name, SupervisorID: t.SupervisorID})
}

// DeleteTeam removes a team.
func (h *Handler) DeleteTeam(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete team", h.Store.DeleteTeam)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// ListHolidays returns all holidays.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		h.writeEngineError(w, "list holidays", err)
		return
	}
	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		observed := hol.Observed
		dtos[i] = HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name, Observed: &observed}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday creates a holiday.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req HolidayDTO
	if !h.decode(w, r, &req) {
		return
	}
	date, err := roster.ParseDate(req.Date)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid date (use YYYY-MM-DD)")
		return
	}
	observed := true
	if req.Observed != nil {
		observed = *req.Observed
	}
	saved, err := h.Store.SaveHoliday(r.Context(), roster.Holiday{
		Date:     date,
		Name:     req.Name,
		Observed: observed,
	})
	if err != nil {
		h.writeEngineError(w, "create holiday", err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{
		ID: saved.ID, Date: saved.Date.String(), Name: saved.Name, Observed: &saved.Observed,
	})
}

// DeleteHoliday removes a holiday.
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	h.deleteByID(w, r, "delete holiday", h.Store.DeleteHoliday)
}

// =============================================================================
// HEALTH
// =============================================================================

// Health reports liveness.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func (h *Handler) deleteByID(w http.ResponseWriter, r *http.Request, op string, del func(ctx context.Context, id int64) error) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := del(r.Context(), id); err != nil {
		h.writeEngineError(w, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func clockString(t roster.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}
