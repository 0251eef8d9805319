// Package store provides an in-memory roster.Store for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nooarche/NCHD-Roster-V1/roster"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements roster.Store entirely in memory. Seed it with the
// Add* helpers. Safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	people    map[int64]roster.Person
	posts     map[int64]roster.Post
	contracts []roster.Contract
	groups    []roster.Group
	slots     map[int64]roster.Slot
	leave     []roster.Leave
	holidays  []roster.Holiday
	audits    []roster.AuditEntry
	nextID    int64

	// FailNext, when non-nil, is returned by the next mutating slot call
	// and then cleared. Used to exercise the builder's retry path.
	FailNext error
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		people: make(map[int64]roster.Person),
		posts:  make(map[int64]roster.Post),
		slots:  make(map[int64]roster.Slot),
		nextID: 1,
	}
}

// -----------------------------------------------------------------------------
// Seeding helpers
// -----------------------------------------------------------------------------

func (m *Memory) AddPerson(p roster.Person) roster.Person {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID
		m.nextID++
	}
	m.people[p.ID] = p
	return p
}

func (m *Memory) AddPost(p roster.Post) roster.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.nextID
		m.nextID++
	}
	m.posts[p.ID] = p
	return p
}

func (m *Memory) AddContract(c roster.Contract) roster.Contract {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		c.ID = m.nextID
		m.nextID++
	}
	m.contracts = append(m.contracts, c)
	return c
}

func (m *Memory) AddGroup(g roster.Group) roster.Group {
	m.mu.Lock()
	defer m.mu.Unlock()
	if g.ID == 0 {
		g.ID = m.nextID
		m.nextID++
	}
	m.groups = append(m.groups, g)
	return g
}

func (m *Memory) AddSlot(s roster.Slot) roster.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertSlotLocked(s)
}

func (m *Memory) AddLeave(l roster.Leave) roster.Leave {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l.ID == 0 {
		l.ID = m.nextID
		m.nextID++
	}
	m.leave = append(m.leave, l)
	return l
}

func (m *Memory) AddHoliday(h roster.Holiday) roster.Holiday {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h.ID == 0 {
		h.ID = m.nextID
		m.nextID++
	}
	m.holidays = append(m.holidays, h)
	return h
}

// Audits returns a copy of all appended audit entries.
func (m *Memory) Audits() []roster.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]roster.AuditEntry, len(m.audits))
	copy(out, m.audits)
	return out
}

func (m *Memory) insertSlotLocked(s roster.Slot) roster.Slot {
	if s.ID == 0 {
		s.ID = m.nextID
		m.nextID++
	}
	m.slots[s.ID] = s
	return s
}

// -----------------------------------------------------------------------------
// roster.Store
// -----------------------------------------------------------------------------

func (m *Memory) PeopleByID(_ context.Context, ids []int64) (map[int64]roster.Person, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]roster.Person, len(ids))
	for _, id := range ids {
		if p, ok := m.people[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) PostsByID(_ context.Context, ids []int64) (map[int64]roster.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]roster.Post, len(ids))
	for _, id := range ids {
		if p, ok := m.posts[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (m *Memory) ContractsOverlapping(_ context.Context, from, to roster.Date) ([]roster.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []roster.Contract
	for _, c := range m.contracts {
		if c.OverlapsPeriod(from, to) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) GroupsByKind(_ context.Context, kind roster.GroupKind) ([]roster.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []roster.Group
	for _, g := range m.groups {
		if g.Kind == kind {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *Memory) SlotsInRange(_ context.Context, from, to time.Time) ([]roster.Slot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []roster.Slot
	for _, s := range m.slots {
		if roster.Overlaps(s.Start, s.End, from, to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) ReplaceSlots(_ context.Context, scope roster.SlotScope, keepBefore time.Time, slots []roster.Slot) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return 0, err
	}

	mw, err := roster.MonthWindow(scope.Year, int(scope.Month))
	if err != nil {
		return 0, err
	}
	for id, s := range m.slots {
		if s.Start.Before(mw.Start) || !s.Start.Before(mw.End) {
			continue
		}
		if !scope.HasType(s.Type) {
			continue
		}
		if scope.PostID != 0 && s.PostID != scope.PostID {
			continue
		}
		if !keepBefore.IsZero() && s.Start.Before(keepBefore) {
			continue
		}
		delete(m.slots, id)
	}

	for _, s := range slots {
		m.insertSlotLocked(s)
	}
	return len(slots), nil
}

// SaveSlot reassigns the day's cover when the day holds a single slot
// of the type; on a multi-cover day only the holder's own slot is
// replaced, so one assign cannot wipe other people's cover.
func (m *Memory) SaveSlot(_ context.Context, slot roster.Slot) (roster.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return roster.Slot{}, err
	}

	day := roster.DateOf(slot.Start)
	var sameDay []int64
	for id, s := range m.slots {
		if s.Type == slot.Type && roster.DateOf(s.Start).Equal(day) {
			sameDay = append(sameDay, id)
		}
	}
	for _, id := range sameDay {
		if len(sameDay) == 1 || m.slots[id].UserID == slot.UserID {
			delete(m.slots, id)
		}
	}
	return m.insertSlotLocked(slot), nil
}

func (m *Memory) DeleteSlot(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.slots[id]; !ok {
		return roster.ErrSlotNotFound
	}
	delete(m.slots, id)
	return nil
}

func (m *Memory) ApprovedLeaveOverlapping(_ context.Context, from, to time.Time) ([]roster.Leave, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []roster.Leave
	for _, l := range m.leave {
		if l.Approved() && roster.Overlaps(l.Start, l.End, from, to) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) HolidaysInRange(_ context.Context, from, to roster.Date) ([]roster.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []roster.Holiday
	for _, h := range m.holidays {
		if !h.Date.Before(from) && !h.Date.After(to) {
			out = append(out, h)
		}
	}
	return out, nil
}

func (m *Memory) AppendAudit(_ context.Context, entry roster.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audits = append(m.audits, entry)
	return nil
}

func (m *Memory) takeFailure() error {
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		return err
	}
	return nil
}
