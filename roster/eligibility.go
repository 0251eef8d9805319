/*
eligibility.go - Who may be assigned call in a given month

PURPOSE:
  Resolves a pool specification (role list or single post) against the
  contracts and posts in force during the month into an ordered candidate
  list. Ordering is by person ID so rotation is deterministic across runs.

POLICY DEFAULTS:
  A post without an explicit call policy participates by default when
  resolved through a role pool (the historical store behavior), but does
  NOT participate when resolved through post-scoped autofill: a post's own
  staff only self-cover when the post opted in.

CONSISTENCY:
  Overlapping contracts for one person are a hard input error. The store
  is supposed to prevent them; if they show up anyway the resolver refuses
  rather than guessing which post governs.
*/
package roster

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// PoolSpec selects the candidate pool: either by roles (department-wide
// build) or by a single post (autofill). PostID wins when non-zero.
type PoolSpec struct {
	Roles  []string
	PostID int64
}

// Candidate is one assignable person with the post that governs their
// duty and the policy in force for it.
type Candidate struct {
	Person   Person
	Post     Post
	Contract Contract
	Policy   CallPolicy
}

// Resolver computes eligibility for a month.
type Resolver struct {
	store Store
}

// NewResolver creates a resolver over the given store.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve returns the ordered candidate list for the month. An empty list
// is not an error; callers treat it as ErrNoEligibleCandidates when a
// build needs a pool.
func (r *Resolver) Resolve(ctx context.Context, year, month int, spec PoolSpec) ([]Candidate, error) {
	if err := ValidatePeriod(year, month); err != nil {
		return nil, err
	}
	monthStart := NewDate(year, time.Month(month), 1)
	monthEnd := monthStart.AddMonths(1)

	contracts, err := r.store.ContractsOverlapping(ctx, monthStart, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("load contracts: %w", err)
	}
	if err := checkContractConsistency(contracts); err != nil {
		return nil, err
	}

	// Pick one governing contract per person: the one covering the most
	// of the month. Sequential same-month contracts are rare (rotation
	// changeover); the builder still checks per-day coverage.
	governing := make(map[int64]Contract)
	for _, c := range contracts {
		if spec.PostID != 0 && c.PostID != spec.PostID {
			continue
		}
		cur, ok := governing[c.UserID]
		if !ok || overlapDays(c, monthStart, monthEnd) > overlapDays(cur, monthStart, monthEnd) {
			governing[c.UserID] = c
		}
	}
	if len(governing) == 0 {
		return nil, nil
	}

	userIDs := make([]int64, 0, len(governing))
	postIDs := make([]int64, 0, len(governing))
	for uid, c := range governing {
		userIDs = append(userIDs, uid)
		postIDs = append(postIDs, c.PostID)
	}
	people, err := r.store.PeopleByID(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	posts, err := r.store.PostsByID(ctx, postIDs)
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}

	var candidates []Candidate
	for uid, c := range governing {
		person, ok := people[uid]
		if !ok {
			continue
		}
		post, ok := posts[c.PostID]
		if !ok {
			continue
		}
		if spec.PostID == 0 && !roleMatches(person.Role, spec.Roles) {
			continue
		}
		// A post unrosterable for the entire month can never be assigned.
		if !post.RosterableOn(monthStart) && !post.RosterableOn(monthEnd.AddDays(-1)) {
			continue
		}

		policy, ok := effectivePolicy(post, spec.PostID != 0)
		if !ok || !policy.ParticipatesInCall {
			continue
		}

		candidates = append(candidates, Candidate{
			Person:   person,
			Post:     post,
			Contract: c,
			Policy:   policy,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Person.ID < candidates[j].Person.ID
	})
	return candidates, nil
}

// effectivePolicy resolves the policy for a candidate. The bool is false
// when the post is out of call entirely.
func effectivePolicy(post Post, postScoped bool) (CallPolicy, bool) {
	if post.CallPolicy != nil {
		return *post.CallPolicy, true
	}
	if postScoped {
		// No policy on the post-scoped path means the post never opted
		// into self-cover.
		return CallPolicy{}, false
	}
	return DefaultCallPolicy(), true
}

func roleMatches(role Role, wanted []string) bool {
	for _, w := range wanted {
		if strings.EqualFold(string(role), w) {
			return true
		}
	}
	return false
}

// checkContractConsistency fails on per-person contract overlap.
func checkContractConsistency(contracts []Contract) error {
	byUser := make(map[int64][]Contract)
	for _, c := range contracts {
		byUser[c.UserID] = append(byUser[c.UserID], c)
	}
	for uid, cs := range byUser {
		if len(cs) < 2 {
			continue
		}
		sort.Slice(cs, func(i, j int) bool { return cs[i].Start.Before(cs[j].Start) })
		for i := 1; i < len(cs); i++ {
			prev := cs[i-1]
			if prev.End.IsZero() || cs[i].Start.Before(prev.End) {
				return &OverlappingContractError{
					UserID:      uid,
					ContractIDs: []int64{prev.ID, cs[i].ID},
				}
			}
		}
	}
	return nil
}

// overlapDays counts the days of [from, to) a contract covers.
func overlapDays(c Contract, from, to Date) int {
	start := from
	if c.Start.After(start) {
		start = c.Start
	}
	end := to
	if !c.End.IsZero() && c.End.Before(end) {
		end = c.End
	}
	days := 0
	for d := start; d.Before(end); d = d.AddDays(1) {
		days++
	}
	return days
}
