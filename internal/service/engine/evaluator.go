package engine

import (
	"fmt"
	"sort"

	"github.com/mgrobelny/badgeforge/internal/models"
)

// compositeKey identifies one (user, badge, season) assignment slot. No two
// assignments may share a key; the merge below enforces that.
func compositeKey(userID, slug string, seasonKey *string) string {
	season := ""
	if seasonKey != nil {
		season = *seasonKey
	}
	return userID + "|" + slug + "|" + season
}

// evaluate runs the rule set over the candidate population and merges the
// resulting grants into at most one assignment per composite key.
//
// Rules run sequentially in ascending priority order. A later grant replaces
// a stored assignment only when its priority is strictly lower; on equal
// priority the first-seen grant wins. A rule returning an error aborts the
// whole run — a partially evaluated badge state must never be committed.
func evaluate(rc *RunContext, candidates []models.Candidate, rules []Rule) ([]Assignment, error) {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].EffectivePriority() < ordered[j].EffectivePriority()
	})

	byKey := make(map[string]int)
	var assignments []Assignment

	for i := range ordered {
		rule := &ordered[i]

		grants, err := rule.Eval(rc, candidates)
		if err != nil {
			return nil, fmt.Errorf("rule %s failed: %w", rule.ID, err)
		}

		for _, grant := range grants {
			// Second line of defense behind rule self-filtering.
			if !rc.Targeted(grant.UserID) {
				continue
			}

			season := grant.SeasonKey
			if season == nil {
				season = rule.SeasonKey
			}
			key := compositeKey(grant.UserID, rule.Slug, season)
			priority := rule.EffectivePriority()

			if idx, ok := byKey[key]; ok {
				if assignments[idx].Priority <= priority {
					continue
				}
				assignments[idx] = buildAssignment(rc, rule, grant, season, priority)
				continue
			}

			byKey[key] = len(assignments)
			assignments = append(assignments, buildAssignment(rc, rule, grant, season, priority))
		}
	}

	return assignments, nil
}

func buildAssignment(rc *RunContext, rule *Rule, grant Grant, season *string, priority int) Assignment {
	earned := rc.Now()
	if grant.EarnedAt != nil {
		earned = *grant.EarnedAt
	}

	reason := grant.Reason
	if reason == "" {
		reason = rule.DefaultReason
	}
	if reason == "" {
		reason = rule.Description
	}

	return Assignment{
		UserID:          grant.UserID,
		BadgeSlug:       rule.Slug,
		SeasonKey:       season,
		EarnedAt:        earned,
		Note:            grant.Note,
		Reason:          reason,
		Priority:        priority,
		AllowRevocation: rule.AllowRevocation,
		RuleID:          rule.ID,
	}
}
