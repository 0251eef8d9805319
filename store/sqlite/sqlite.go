/*
Package sqlite provides the SQLite-backed implementation of the roster
store.

PURPOSE:
  Implements roster.Store (the engine-facing slot adapter) plus the plain
  CRUD surface the admin console consumes (users, posts, teams, contracts,
  groups, leave, holidays). This package is the sole writer of the
  on_call_slots table.

OVERWRITE SEMANTICS:
  ReplaceSlots performs the scope-wide delete and the insert of the new
  set inside one database transaction: a failed build never leaves a
  partially mixed month behind.

TIMEOUTS:
  Every call runs under a bounded deadline. Deadline expiry surfaces as
  roster.ErrStoreUnavailable so the builder can retry once.

KEY TABLES:
  users, teams, team_members, posts, contracts, groups,
  on_call_slots, leave, holidays, audits

INDEXES:
  - idx_slots_start:        month-window reads (hot path for build/validate)
  - idx_slots_user_start:   per-person rest/spread lookups
  - idx_contracts_user_dates: governing-contract resolution

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/roster.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - roster/store.go: Interface definition
  - roster/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/nooarche/NCHD-Roster-V1/factory"
	"github.com/nooarche/NCHD-Roster-V1/roster"
)

const (
	timeFormat = "2006-01-02 15:04:05"

	// callTimeout bounds every database call. Exceeding it is reported
	// as roster.ErrStoreUnavailable.
	callTimeout = 5 * time.Second
)

// Store implements roster.Store and the admin CRUD surface using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a store on the given database path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A second pooled connection to :memory: would see a different empty
	// database. The store serializes access anyway, so pin to one.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teams (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		supervisor_id INTEGER REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS team_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		team_id INTEGER NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
		user_id INTEGER NOT NULL REFERENCES users(id),
		role TEXT NOT NULL DEFAULT 'nchd',
		UNIQUE(team_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		site TEXT,
		grade TEXT,
		fte TEXT NOT NULL DEFAULT '1',
		status TEXT NOT NULL DEFAULT 'ACTIVE_ROSTERABLE',
		status_from TEXT,
		core_hours TEXT,
		call_policy TEXT,
		group_ids TEXT,
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS contracts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		post_id INTEGER NOT NULL REFERENCES posts(id),
		team_id INTEGER REFERENCES teams(id),
		start TEXT NOT NULL,
		end TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_user_dates
		ON contracts(user_id, start, end);

	CREATE TABLE IF NOT EXISTS groups (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		rules TEXT NOT NULL DEFAULT '{}',
		notes TEXT
	);

	CREATE TABLE IF NOT EXISTS on_call_slots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		post_id INTEGER,
		start TEXT NOT NULL,
		end TEXT NOT NULL,
		type TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_slots_start ON on_call_slots(start);
	CREATE INDEX IF NOT EXISTS idx_slots_user_start ON on_call_slots(user_id, start);

	CREATE TABLE IF NOT EXISTS leave (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL REFERENCES users(id),
		start TEXT NOT NULL,
		end TEXT NOT NULL,
		type TEXT NOT NULL,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'approved'
	);

	CREATE TABLE IF NOT EXISTS holidays (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		observed INTEGER NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS audits (
		id TEXT PRIMARY KEY,
		actor_id INTEGER,
		action TEXT NOT NULL,
		before TEXT,
		after TEXT,
		reason TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// wrapErr maps driver/context failures onto the engine's error taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w", op, roster.ErrStoreUnavailable)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, callTimeout)
}

// =============================================================================
// USERS
// =============================================================================

// ListUsers returns all users ordered by ID.
func (s *Store) ListUsers(ctx context.Context) ([]roster.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, role FROM users ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list users", err)
	}
	defer rows.Close()

	var people []roster.Person
	for rows.Next() {
		var p roster.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Role); err != nil {
			return nil, wrapErr("scan user", err)
		}
		people = append(people, p)
	}
	return people, wrapErr("list users", rows.Err())
}

// GetUser returns one user, or roster.ErrNotFound.
func (s *Store) GetUser(ctx context.Context, id int64) (roster.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var p roster.Person
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role FROM users WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Email, &p.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.Person{}, fmt.Errorf("user %d: %w", id, roster.ErrNotFound)
	}
	return p, wrapErr("get user", err)
}

// SaveUser inserts a user and returns it with its assigned ID.
func (s *Store) SaveUser(ctx context.Context, p roster.Person) (roster.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, email, role, created_at) VALUES (?, ?, ?, ?)`,
		p.Name, p.Email, p.Role, time.Now().UTC().Format(timeFormat))
	if err != nil {
		return roster.Person{}, wrapErr("save user", err)
	}
	p.ID, _ = res.LastInsertId()
	return p, nil
}

// UpdateUser updates a user in place.
func (s *Store) UpdateUser(ctx context.Context, p roster.Person) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, email = ?, role = ? WHERE id = ?`,
		p.Name, p.Email, p.Role, p.ID)
	if err != nil {
		return wrapErr("update user", err)
	}
	return requireRow(res, "user", p.ID)
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "users", "user", id)
}

// =============================================================================
// TEAMS
// =============================================================================

// Team is a named clinical team with an optional supervisor.
type Team struct {
	ID           int64
	Name         string
	SupervisorID int64 // 0 when unset
}

// ListTeams returns all teams ordered by ID.
func (s *Store) ListTeams(ctx context.Context) ([]Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(supervisor_id, 0) FROM teams ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list teams", err)
	}
	defer rows.Close()

	var teams []Team
	for rows.Next() {
		var t Team
		if err := rows.Scan(&t.ID, &t.Name, &t.SupervisorID); err != nil {
			return nil, wrapErr("scan team", err)
		}
		teams = append(teams, t)
	}
	return teams, wrapErr("list teams", rows.Err())
}

// SaveTeam inserts a team.
func (s *Store) SaveTeam(ctx context.Context, t Team) (Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO teams (name, supervisor_id) VALUES (?, ?)`,
		t.Name, nullableID(t.SupervisorID))
	if err != nil {
		return Team{}, wrapErr("save team", err)
	}
	t.ID, _ = res.LastInsertId()
	return t, nil
}

// DeleteTeam removes a team and its memberships.
func (s *Store) DeleteTeam(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "teams", "team", id)
}

// AddTeamMember links a user into a team.
func (s *Store) AddTeamMember(ctx context.Context, teamID, userID int64, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO team_members (team_id, user_id, role) VALUES (?, ?, ?)`,
		teamID, userID, role)
	return wrapErr("add team member", err)
}

// =============================================================================
// POSTS
// =============================================================================

// ListPosts returns all posts with parsed payloads, ordered by ID.
func (s *Store) ListPosts(ctx context.Context) ([]roster.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, postSelect+` ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list posts", err)
	}
	defer rows.Close()

	var posts []roster.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, wrapErr("list posts", rows.Err())
}

// GetPost returns one post, or roster.ErrNotFound.
func (s *Store) GetPost(ctx context.Context, id int64) (roster.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	row := s.db.QueryRowContext(ctx, postSelect+` WHERE id = ?`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return roster.Post{}, fmt.Errorf("post %d: %w", id, roster.ErrNotFound)
	}
	return post, wrapErr("get post", err)
}

const postSelect = `
	SELECT id, title, COALESCE(site,''), COALESCE(grade,''), fte, status,
	       COALESCE(status_from,''), COALESCE(core_hours,''),
	       COALESCE(call_policy,''), COALESCE(group_ids,''), COALESCE(notes,'')
	FROM posts`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (roster.Post, error) {
	var (
		post                       roster.Post
		fte, statusFrom, coreHours string
		callPolicy, groupIDs       string
	)
	if err := row.Scan(&post.ID, &post.Title, &post.Site, &post.Grade, &fte,
		&post.Status, &statusFrom, &coreHours, &callPolicy, &groupIDs, &post.Notes); err != nil {
		return roster.Post{}, err
	}

	var err error
	if post.FTE, err = factory.ParseFTE(fte); err != nil {
		return roster.Post{}, fmt.Errorf("post %d: %w", post.ID, err)
	}
	if statusFrom != "" {
		if post.StatusFrom, err = roster.ParseDate(statusFrom); err != nil {
			return roster.Post{}, fmt.Errorf("post %d: %w", post.ID, err)
		}
	}
	if coreHours != "" {
		if post.CoreHours, err = factory.ParseCoreHours([]byte(coreHours)); err != nil {
			return roster.Post{}, fmt.Errorf("post %d: %w", post.ID, err)
		}
	}
	if callPolicy != "" {
		if post.CallPolicy, err = factory.ParseCallPolicy([]byte(callPolicy)); err != nil {
			return roster.Post{}, fmt.Errorf("post %d: %w", post.ID, err)
		}
	}
	if groupIDs != "" {
		if err = json.Unmarshal([]byte(groupIDs), &post.GroupIDs); err != nil {
			return roster.Post{}, fmt.Errorf("post %d group_ids: %w", post.ID, err)
		}
	}
	return post, nil
}

// SavePost inserts a post. Payloads round-trip through the factory
// serializers, so malformed JSON never reaches the table.
func (s *Store) SavePost(ctx context.Context, post roster.Post) (roster.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	coreHours, callPolicy, groupIDs, err := marshalPostPayloads(post)
	if err != nil {
		return roster.Post{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO posts (title, site, grade, fte, status, status_from,
		                   core_hours, call_policy, group_ids, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		post.Title, post.Site, post.Grade, fteString(post.FTE), post.Status,
		nullableDate(post.StatusFrom), coreHours, callPolicy, groupIDs, post.Notes)
	if err != nil {
		return roster.Post{}, wrapErr("save post", err)
	}
	post.ID, _ = res.LastInsertId()
	return post, nil
}

// UpdatePost updates a post in place.
func (s *Store) UpdatePost(ctx context.Context, post roster.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	coreHours, callPolicy, groupIDs, err := marshalPostPayloads(post)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE posts SET title = ?, site = ?, grade = ?, fte = ?, status = ?,
		       status_from = ?, core_hours = ?, call_policy = ?, group_ids = ?, notes = ?
		WHERE id = ?`,
		post.Title, post.Site, post.Grade, fteString(post.FTE), post.Status,
		nullableDate(post.StatusFrom), coreHours, callPolicy, groupIDs, post.Notes, post.ID)
	if err != nil {
		return wrapErr("update post", err)
	}
	return requireRow(res, "post", post.ID)
}

// DeletePost removes a post.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "posts", "post", id)
}

// fteString persists an unset FTE as full time so the row always
// round-trips through factory.ParseFTE.
func fteString(fte decimal.Decimal) string {
	if fte.IsZero() {
		return "1"
	}
	return fte.String()
}

func marshalPostPayloads(post roster.Post) (coreHours, callPolicy, groupIDs string, err error) {
	ch, err := factory.MarshalCoreHours(post.CoreHours)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal core_hours: %w", err)
	}
	cp, err := factory.MarshalCallPolicy(post.CallPolicy)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal call_policy: %w", err)
	}
	gids, err := json.Marshal(post.GroupIDs)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal group_ids: %w", err)
	}
	return string(ch), string(cp), string(gids), nil
}

// =============================================================================
// CONTRACTS
// =============================================================================

// ListContracts returns all contracts ordered by ID.
func (s *Store) ListContracts(ctx context.Context) ([]roster.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, contractSelect+` ORDER BY id`)
	if err != nil {
		return nil, wrapErr("list contracts", err)
	}
	defer rows.Close()
	return scanContracts(rows)
}

const contractSelect = `
	SELECT id, user_id, post_id, COALESCE(team_id, 0), start, COALESCE(end, '')
	FROM contracts`

// SaveContract inserts a contract after enforcing the per-person
// non-overlap invariant: the store refuses overlap at write time so the
// engine only ever has to report it, never repair it.
func (s *Store) SaveContract(ctx context.Context, c roster.Contract) (roster.Contract, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if err := s.checkContractOverlap(ctx, c); err != nil {
		return roster.Contract{}, err
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO contracts (user_id, post_id, team_id, start, end)
		VALUES (?, ?, ?, ?, ?)`,
		c.UserID, c.PostID, nullableID(c.TeamID),
		c.Start.String(), nullableDate(c.End))
	if err != nil {
		return roster.Contract{}, wrapErr("save contract", err)
	}
	c.ID, _ = res.LastInsertId()
	return c, nil
}

// DeleteContract removes a contract.
func (s *Store) DeleteContract(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "contracts", "contract", id)
}

func (s *Store) checkContractOverlap(ctx context.Context, c roster.Contract) error {
	rows, err := s.db.QueryContext(ctx,
		contractSelect+` WHERE user_id = ? AND id != ?`, c.UserID, c.ID)
	if err != nil {
		return wrapErr("check contract overlap", err)
	}
	defer rows.Close()

	existing, err := scanContracts(rows)
	if err != nil {
		return err
	}
	for _, o := range existing {
		// Open-ended contracts overlap anything that starts after them.
		startsBeforeOtherEnds := o.End.IsZero() || c.Start.Before(o.End)
		otherStartsBeforeEnds := c.End.IsZero() || o.Start.Before(c.End)
		if startsBeforeOtherEnds && otherStartsBeforeEnds {
			return &roster.OverlappingContractError{
				UserID:      c.UserID,
				ContractIDs: []int64{o.ID, c.ID},
			}
		}
	}
	return nil
}

func scanContracts(rows *sql.Rows) ([]roster.Contract, error) {
	var contracts []roster.Contract
	for rows.Next() {
		var (
			c          roster.Contract
			start, end string
		)
		if err := rows.Scan(&c.ID, &c.UserID, &c.PostID, &c.TeamID, &start, &end); err != nil {
			return nil, wrapErr("scan contract", err)
		}
		var err error
		if c.Start, err = roster.ParseDate(start); err != nil {
			return nil, fmt.Errorf("contract %d: %w", c.ID, err)
		}
		if end != "" {
			if c.End, err = roster.ParseDate(end); err != nil {
				return nil, fmt.Errorf("contract %d: %w", c.ID, err)
			}
		}
		contracts = append(contracts, c)
	}
	return contracts, wrapErr("scan contracts", rows.Err())
}

// =============================================================================
// GROUPS
// =============================================================================

// ListGroups returns all groups with parsed rules, ordered by ID.
func (s *Store) ListGroups(ctx context.Context) ([]roster.Group, error) {
	return s.queryGroups(ctx,
		`SELECT id, name, kind, rules, COALESCE(notes,'') FROM groups ORDER BY id`)
}

// SaveGroup inserts a group. Rules are validated against the kind before
// the row is written.
func (s *Store) SaveGroup(ctx context.Context, g roster.Group) (roster.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rules, err := marshalGroupRules(g)
	if err != nil {
		return roster.Group{}, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (name, kind, rules, notes) VALUES (?, ?, ?, ?)`,
		g.Name, g.Kind, rules, g.Notes)
	if err != nil {
		return roster.Group{}, wrapErr("save group", err)
	}
	g.ID, _ = res.LastInsertId()
	return g, nil
}

// UpdateGroup updates a group in place.
func (s *Store) UpdateGroup(ctx context.Context, g roster.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rules, err := marshalGroupRules(g)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET name = ?, kind = ?, rules = ?, notes = ? WHERE id = ?`,
		g.Name, g.Kind, rules, g.Notes, g.ID)
	if err != nil {
		return wrapErr("update group", err)
	}
	return requireRow(res, "group", g.ID)
}

// DeleteGroup removes a group.
func (s *Store) DeleteGroup(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "groups", "group", id)
}

func (s *Store) queryGroups(ctx context.Context, query string, args ...any) ([]roster.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("query groups", err)
	}
	defer rows.Close()

	var groups []roster.Group
	for rows.Next() {
		var (
			g     roster.Group
			rules string
		)
		if err := rows.Scan(&g.ID, &g.Name, &g.Kind, &rules, &g.Notes); err != nil {
			return nil, wrapErr("scan group", err)
		}
		if g.Rules, err = factory.ParseGroupRules(g.Kind, []byte(rules)); err != nil {
			return nil, fmt.Errorf("group %d: %w", g.ID, err)
		}
		groups = append(groups, g)
	}
	return groups, wrapErr("query groups", rows.Err())
}

func marshalGroupRules(g roster.Group) (string, error) {
	switch r := g.Rules.(type) {
	case nil:
		return "{}", nil
	case roster.OnCallPoolRules:
		hours := make([][]string, len(r.Hours))
		for i, h := range r.Hours {
			hours[i] = []string{clockString(h.Start), clockString(h.End)}
		}
		raw, err := json.Marshal(map[string]any{"shift": r.Shift, "hours": hours})
		return string(raw), err
	case roster.TeachingBlockRules:
		raw, err := json.Marshal(map[string]any{
			"weekday": weekdayName(r.Weekday),
			"time":    []string{clockString(r.Window.Start), clockString(r.Window.End)},
		})
		return string(raw), err
	case roster.TeamRules:
		raw, err := json.Marshal(map[string]any{"member_roles": r.MemberRoles})
		return string(raw), err
	default:
		return "", fmt.Errorf("unknown rules type %T", g.Rules)
	}
}

// =============================================================================
// LEAVE AND HOLIDAYS
// =============================================================================

// ListHolidays returns all holidays ordered by date.
func (s *Store) ListHolidays(ctx context.Context) ([]roster.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, name, observed FROM holidays ORDER BY date`)
	if err != nil {
		return nil, wrapErr("list holidays", err)
	}
	defer rows.Close()
	return scanHolidays(rows)
}

// SaveHoliday inserts a holiday.
func (s *Store) SaveHoliday(ctx context.Context, h roster.Holiday) (roster.Holiday, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO holidays (date, name, observed) VALUES (?, ?, ?)`,
		h.Date.String(), h.Name, h.Observed)
	if err != nil {
		return roster.Holiday{}, wrapErr("save holiday", err)
	}
	h.ID, _ = res.LastInsertId()
	return h, nil
}

// DeleteHoliday removes a holiday.
func (s *Store) DeleteHoliday(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "holidays", "holiday", id)
}

func scanHolidays(rows *sql.Rows) ([]roster.Holiday, error) {
	var holidays []roster.Holiday
	for rows.Next() {
		var (
			h    roster.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &date, &h.Name, &h.Observed); err != nil {
			return nil, wrapErr("scan holiday", err)
		}
		var err error
		if h.Date, err = roster.ParseDate(date); err != nil {
			return nil, fmt.Errorf("holiday %d: %w", h.ID, err)
		}
		holidays = append(holidays, h)
	}
	return holidays, wrapErr("scan holidays", rows.Err())
}

// SaveLeave inserts a leave record.
func (s *Store) SaveLeave(ctx context.Context, l roster.Leave) (roster.Leave, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO leave (user_id, start, end, type, status) VALUES (?, ?, ?, ?, ?)`,
		l.UserID, l.Start.Format(timeFormat), l.End.Format(timeFormat), l.Type, l.Status)
	if err != nil {
		return roster.Leave{}, wrapErr("save leave", err)
	}
	l.ID, _ = res.LastInsertId()
	return l, nil
}

// =============================================================================
// roster.Store - engine-facing adapter
// =============================================================================

// PeopleByID implements roster.Store.
func (s *Store) PeopleByID(ctx context.Context, ids []int64) (map[int64]roster.Person, error) {
	if len(ids) == 0 {
		return map[int64]roster.Person{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT id, name, email, role FROM users WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, wrapErr("people by id", err)
	}
	defer rows.Close()

	out := make(map[int64]roster.Person)
	for rows.Next() {
		var p roster.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.Email, &p.Role); err != nil {
			return nil, wrapErr("scan user", err)
		}
		out[p.ID] = p
	}
	return out, wrapErr("people by id", rows.Err())
}

// PostsByID implements roster.Store.
func (s *Store) PostsByID(ctx context.Context, ids []int64) (map[int64]roster.Post, error) {
	if len(ids) == 0 {
		return map[int64]roster.Post{}, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := postSelect + ` WHERE id IN (` + placeholders(len(ids)) + `)`
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids)...)
	if err != nil {
		return nil, wrapErr("posts by id", err)
	}
	defer rows.Close()

	out := make(map[int64]roster.Post)
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out[post.ID] = post
	}
	return out, wrapErr("posts by id", rows.Err())
}

// ContractsOverlapping implements roster.Store.
func (s *Store) ContractsOverlapping(ctx context.Context, from, to roster.Date) ([]roster.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		contractSelect+` WHERE start < ? AND (end IS NULL OR end > ?) ORDER BY id`,
		to.String(), from.String())
	if err != nil {
		return nil, wrapErr("contracts overlapping", err)
	}
	defer rows.Close()
	return scanContracts(rows)
}

// GroupsByKind implements roster.Store.
func (s *Store) GroupsByKind(ctx context.Context, kind roster.GroupKind) ([]roster.Group, error) {
	return s.queryGroups(ctx,
		`SELECT id, name, kind, rules, COALESCE(notes,'') FROM groups WHERE kind = ? ORDER BY id`,
		string(kind))
}

// SlotsInRange implements roster.Store.
func (s *Store) SlotsInRange(ctx context.Context, from, to time.Time) ([]roster.Slot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, COALESCE(post_id, 0), start, end, type
		FROM on_call_slots
		WHERE start < ? AND end > ?
		ORDER BY start, id`,
		to.Format(timeFormat), from.Format(timeFormat))
	if err != nil {
		return nil, wrapErr("slots in range", err)
	}
	defer rows.Close()
	return scanSlots(rows)
}

// SlotView is a slot joined with its holder's display name, for the
// calendar month view.
type SlotView struct {
	roster.Slot
	UserName string
}

// SlotsInMonthWithNames returns the month's slots joined with user names.
func (s *Store) SlotsInMonthWithNames(ctx context.Context, year, month int) ([]SlotView, error) {
	mw, err := roster.MonthWindow(year, month)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT sl.id, sl.user_id, COALESCE(sl.post_id, 0), sl.start, sl.end, sl.type,
		       COALESCE(u.name, '')
		FROM on_call_slots sl
		LEFT JOIN users u ON u.id = sl.user_id
		WHERE sl.start >= ? AND sl.start < ?
		ORDER BY sl.start, sl.id`,
		mw.Start.Format(timeFormat), mw.End.Format(timeFormat))
	if err != nil {
		return nil, wrapErr("slots in month", err)
	}
	defer rows.Close()

	var views []SlotView
	for rows.Next() {
		var (
			v          SlotView
			start, end string
		)
		if err := rows.Scan(&v.ID, &v.UserID, &v.PostID, &start, &end, &v.Type, &v.UserName); err != nil {
			return nil, wrapErr("scan slot view", err)
		}
		if v.Start, v.End, err = parseSlotTimes(start, end); err != nil {
			return nil, fmt.Errorf("slot %d: %w", v.ID, err)
		}
		views = append(views, v)
	}
	return views, wrapErr("slots in month", rows.Err())
}

// ReplaceSlots implements roster.Store: the scope-wide delete and the
// insert of the new set run in one transaction.
func (s *Store) ReplaceSlots(ctx context.Context, scope roster.SlotScope, keepBefore time.Time, slots []roster.Slot) (int, error) {
	mw, err := roster.MonthWindow(scope.Year, int(scope.Month))
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrapErr("begin replace", err)
	}
	defer tx.Rollback()

	deleteFrom := mw.Start
	if !keepBefore.IsZero() && keepBefore.After(deleteFrom) {
		deleteFrom = keepBefore
	}
	marks := make([]string, len(scope.Types))
	args := []any{mw.End.Format(timeFormat), deleteFrom.Format(timeFormat)}
	for i, t := range scope.Types {
		marks[i] = "?"
		args = append(args, string(t))
	}
	query := `DELETE FROM on_call_slots WHERE start < ? AND start >= ? AND type IN (` +
		strings.Join(marks, ",") + `)`
	if scope.PostID != 0 {
		query += ` AND post_id = ?`
		args = append(args, scope.PostID)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return 0, wrapErr("delete scope", err)
	}

	for _, slot := range slots {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO on_call_slots (user_id, post_id, start, end, type)
			VALUES (?, ?, ?, ?, ?)`,
			slot.UserID, nullableID(slot.PostID),
			slot.Start.Format(timeFormat), slot.End.Format(timeFormat), slot.Type); err != nil {
			return 0, wrapErr("insert slot", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, wrapErr("commit replace", err)
	}
	return len(slots), nil
}

// SaveSlot implements roster.Store: on a single-cover day the existing
// slot of the same type is replaced whoever holds it; on a multi-cover
// day only the holder's own slot is, so one assign cannot wipe other
// people's cover.
func (s *Store) SaveSlot(ctx context.Context, slot roster.Slot) (roster.Slot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return roster.Slot{}, wrapErr("begin save slot", err)
	}
	defer tx.Rollback()

	day := roster.DateOf(slot.Start)
	dayStart := day.Time().Format(timeFormat)
	dayEnd := day.AddDays(1).Time().Format(timeFormat)

	var covers int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM on_call_slots WHERE type = ? AND start >= ? AND start < ?`,
		slot.Type, dayStart, dayEnd).Scan(&covers); err != nil {
		return roster.Slot{}, wrapErr("count day cover", err)
	}
	del := `DELETE FROM on_call_slots WHERE type = ? AND start >= ? AND start < ?`
	args := []any{slot.Type, dayStart, dayEnd}
	if covers > 1 {
		del += ` AND user_id = ?`
		args = append(args, slot.UserID)
	}
	if _, err := tx.ExecContext(ctx, del, args...); err != nil {
		return roster.Slot{}, wrapErr("overwrite slot", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO on_call_slots (user_id, post_id, start, end, type)
		VALUES (?, ?, ?, ?, ?)`,
		slot.UserID, nullableID(slot.PostID),
		slot.Start.Format(timeFormat), slot.End.Format(timeFormat), slot.Type)
	if err != nil {
		return roster.Slot{}, wrapErr("insert slot", err)
	}
	slot.ID, _ = res.LastInsertId()
	return slot, wrapErr("commit save slot", tx.Commit())
}

// DeleteSlot implements roster.Store.
func (s *Store) DeleteSlot(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM on_call_slots WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete slot", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("slot %d: %w", id, roster.ErrSlotNotFound)
	}
	return nil
}

// ApprovedLeaveOverlapping implements roster.Store.
func (s *Store) ApprovedLeaveOverlapping(ctx context.Context, from, to time.Time) ([]roster.Leave, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, start, end, type, status
		FROM leave
		WHERE status = 'approved' AND start < ? AND end > ?
		ORDER BY id`,
		to.Format(timeFormat), from.Format(timeFormat))
	if err != nil {
		return nil, wrapErr("leave overlapping", err)
	}
	defer rows.Close()

	var leaves []roster.Leave
	for rows.Next() {
		var (
			l          roster.Leave
			start, end string
		)
		if err := rows.Scan(&l.ID, &l.UserID, &start, &end, &l.Type, &l.Status); err != nil {
			return nil, wrapErr("scan leave", err)
		}
		if l.Start, l.End, err = parseSlotTimes(start, end); err != nil {
			return nil, fmt.Errorf("leave %d: %w", l.ID, err)
		}
		leaves = append(leaves, l)
	}
	return leaves, wrapErr("leave overlapping", rows.Err())
}

// HolidaysInRange implements roster.Store.
func (s *Store) HolidaysInRange(ctx context.Context, from, to roster.Date) ([]roster.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, date, name, observed FROM holidays WHERE date >= ? AND date <= ? ORDER BY date`,
		from.String(), to.String())
	if err != nil {
		return nil, wrapErr("holidays in range", err)
	}
	defer rows.Close()
	return scanHolidays(rows)
}

// AppendAudit implements roster.Store.
func (s *Store) AppendAudit(ctx context.Context, entry roster.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	before, _ := json.Marshal(entry.Before)
	after, _ := json.Marshal(entry.After)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audits (id, actor_id, action, before, after, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, nullableID(entry.ActorID), entry.Action,
		string(before), string(after), entry.Reason,
		entry.CreatedAt.Format(timeFormat))
	return wrapErr("append audit", err)
}

// =============================================================================
// HELPERS
// =============================================================================

func scanSlots(rows *sql.Rows) ([]roster.Slot, error) {
	var slots []roster.Slot
	for rows.Next() {
		var (
			slot       roster.Slot
			start, end string
		)
		if err := rows.Scan(&slot.ID, &slot.UserID, &slot.PostID, &start, &end, &slot.Type); err != nil {
			return nil, wrapErr("scan slot", err)
		}
		var err error
		if slot.Start, slot.End, err = parseSlotTimes(start, end); err != nil {
			return nil, fmt.Errorf("slot %d: %w", slot.ID, err)
		}
		slots = append(slots, slot)
	}
	return slots, wrapErr("scan slots", rows.Err())
}

func parseSlotTimes(start, end string) (time.Time, time.Time, error) {
	st, err := time.ParseInLocation(timeFormat, start, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse start %q: %w", start, err)
	}
	en, err := time.ParseInLocation(timeFormat, end, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse end %q: %w", end, err)
	}
	return st, en, nil
}

func (s *Store) deleteByID(ctx context.Context, table, label string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return wrapErr("delete "+label, err)
	}
	return requireRow(res, label, id)
}

func requireRow(res sql.Result, label string, id int64) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d: %w", label, id, roster.ErrNotFound)
	}
	return nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableDate(d roster.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func clockString(t roster.TimeOfDay) string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func weekdayName(wd time.Weekday) string {
	return [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}[int(wd)]
}
