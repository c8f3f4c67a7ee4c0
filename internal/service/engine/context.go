package engine

import (
	"context"
	"fmt"
	"time"
)

// RunContext is the shared state of one evaluation run. It is constructed
// fresh per run, handed to every rule in turn, and discarded afterwards.
// Rules execute sequentially, so the memo map needs no locking.
type RunContext struct {
	ctx    context.Context
	now    time.Time
	users  UserStore
	awards AwardStore

	// targets restricts the run to a subset of users; nil means everyone.
	targets map[string]struct{}

	memo map[string]any
}

func newRunContext(ctx context.Context, now time.Time, users UserStore, awards AwardStore, targetIDs []string) *RunContext {
	var targets map[string]struct{}
	if len(targetIDs) > 0 {
		targets = make(map[string]struct{}, len(targetIDs))
		for _, id := range targetIDs {
			targets[id] = struct{}{}
		}
	}

	return &RunContext{
		ctx:     ctx,
		now:     now,
		users:   users,
		awards:  awards,
		targets: targets,
		memo:    make(map[string]any),
	}
}

// Now returns the injected evaluation clock for this run.
func (rc *RunContext) Now() time.Time {
	return rc.now
}

// Targeted reports whether the user is inside the run's target restriction.
// An unrestricted run targets everyone.
func (rc *RunContext) Targeted(userID string) bool {
	if rc.targets == nil {
		return true
	}
	_, ok := rc.targets[userID]
	return ok
}

// GetOrCompute returns the memoized value for key, invoking loader exactly
// once per run for each distinct key. Any rule may share a key with any
// other; that is the point — N rules asking for the same bulk query pay for
// it once.
func (rc *RunContext) GetOrCompute(key string, loader func() (any, error)) (any, error) {
	if v, ok := rc.memo[key]; ok {
		return v, nil
	}
	v, err := loader()
	if err != nil {
		return nil, err
	}
	rc.memo[key] = v
	return v, nil
}

// earliestUserSet memoizes the "first n registrations" cohort as a set.
func (rc *RunContext) earliestUserSet(n int) (map[string]struct{}, error) {
	key := fmt.Sprintf("earliest-users:%d", n)
	v, err := rc.GetOrCompute(key, func() (any, error) {
		ids, err := rc.users.ListEarliestUserIDs(n)
		if err != nil {
			return nil, fmt.Errorf("failed to load earliest %d users: %w", n, err)
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(map[string]struct{}), nil
}
