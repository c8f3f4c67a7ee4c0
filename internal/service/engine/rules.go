package engine

import (
	"time"

	"github.com/mgrobelny/badgeforge/internal/models"
)

// Badge slugs granted by the primary rules.
const (
	SlugCoreTeam         = "core-team"
	SlugOperationsLead   = "operations-lead"
	SlugFounder          = "founder"
	SlugEarlyAdopter     = "early-adopter"
	SlugTopPoster        = "top-poster"
	SlugThreadWeaver     = "thread-weaver"
	SlugStreakKeeper     = "streak-keeper"
	SlugPolishedProfile  = "polished-profile"
	SlugVerifiedIdentity = "verified-identity"
	SlugConnector        = "connector"
	SlugEventChampion    = "event-champion"
)

// Rule thresholds. The rule set is static configuration, fixed at build time.
const (
	founderCohortSize      = 5
	earlyAdopterCohortSize = 100
	topPosterMinPosts      = 200
	threadWeaverMinTopics  = 25
	threadWeaverMinLikes   = 150
	streakKeeperMinDays    = 30
	connectorMinFollowers  = 50
	profileMinAboutLength  = 80
	profileMinSocialLinks  = 2
)

// defaultPriority applies to rules that leave Priority unset.
const defaultPriority = 100

// Rule is one unit of the evaluation pipeline: a badge slug plus the
// function deciding who holds it. Lower priority wins when two rules target
// the same (user, badge, season) key.
type Rule struct {
	ID              string
	Slug            string
	Description     string
	DefaultReason   string
	SeasonKey       *string
	Priority        int // 0 means unset; treated as defaultPriority
	AllowRevocation bool
	Eval            func(rc *RunContext, candidates []models.Candidate) ([]Grant, error)
}

// EffectivePriority resolves the unset-priority default.
func (r *Rule) EffectivePriority() int {
	if r.Priority == 0 {
		return defaultPriority
	}
	return r.Priority
}

// Grant is a rule's ephemeral proposal of one badge for one user.
// Unset fields fall back to rule-level values during merging.
type Grant struct {
	UserID    string
	EarnedAt  *time.Time
	Note      string
	Reason    string
	SeasonKey *string
}

// Assignment is the engine's final, deduplicated decision for one
// (user, badge, season) key.
type Assignment struct {
	UserID          string     `json:"user_id"`
	BadgeSlug       string     `json:"badge_slug"`
	SeasonKey       *string    `json:"season_key,omitempty"`
	EarnedAt        time.Time  `json:"earned_at"`
	Note            string     `json:"note,omitempty"`
	Reason          string     `json:"reason"`
	Priority        int        `json:"-"`
	AllowRevocation bool       `json:"-"`
	RuleID          string     `json:"rule_id"`
}

// predicateRule builds a rule whose grants are a pure per-candidate
// predicate, self-filtered by the run's target restriction.
func predicateRule(rc *RunContext, candidates []models.Candidate, match func(c *models.Candidate) bool) []Grant {
	var grants []Grant
	for i := range candidates {
		c := &candidates[i]
		if !rc.Targeted(c.ID) {
			continue
		}
		if match(c) {
			grants = append(grants, Grant{UserID: c.ID})
		}
	}
	return grants
}

// DefaultRules returns the full static rule set: the primary rules followed
// by the auto-derived legacy fallback family.
func DefaultRules() []Rule {
	primary := primaryRules()
	return append(primary, legacyFallbackRules(primary)...)
}

func primaryRules() []Rule {
	return []Rule{
		{
			ID:              "staff-core-team",
			Slug:            SlugCoreTeam,
			Description:     "Member of the forum staff",
			DefaultReason:   "Holds the administrator role",
			Priority:        10,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					return c.Admin
				}), nil
			},
		},
		{
			ID:              "staff-operations-lead",
			Slug:            SlugOperationsLead,
			Description:     "Runs day-to-day forum operations",
			DefaultReason:   "Reached the administrator trust tier",
			Priority:        10,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					return c.Stats != nil && c.Stats.TrustLevel.AtLeast(models.TrustAdministrator)
				}), nil
			},
		},
		{
			ID:              "cohort-founder",
			Slug:            SlugFounder,
			Description:     "One of the very first accounts on the forum",
			DefaultReason:   "Among the first accounts ever registered",
			Priority:        20,
			AllowRevocation: true,
			Eval:            cohortEval(founderCohortSize),
		},
		{
			ID:              "cohort-early-adopter",
			Slug:            SlugEarlyAdopter,
			Description:     "Joined during the forum's earliest days",
			DefaultReason:   "Among the earliest registered accounts",
			Priority:        30,
			AllowRevocation: true,
			Eval:            cohortEval(earlyAdopterCohortSize),
		},
		{
			ID:              "stats-top-poster",
			Slug:            SlugTopPoster,
			Description:     "Prolific poster",
			DefaultReason:   "Wrote 200 or more posts",
			Priority:        40,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					return c.Stats != nil && c.Stats.PostCount >= topPosterMinPosts
				}), nil
			},
		},
		{
			ID:              "stats-thread-weaver",
			Slug:            SlugThreadWeaver,
			Description:     "Starts discussions the community values",
			DefaultReason:   "Opened 25+ topics that gathered 150+ likes",
			Priority:        40,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					return c.Stats != nil &&
						c.Stats.TopicCount >= threadWeaverMinTopics &&
						c.Stats.LikesReceived >= threadWeaverMinLikes
				}), nil
			},
		},
		{
			ID:              "stats-streak-keeper",
			Slug:            SlugStreakKeeper,
			Description:     "Showed up every day for a month",
			DefaultReason:   "Kept a 30-day activity streak",
			Priority:        40,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					return c.Stats != nil && c.Stats.LongestStreak >= streakKeeperMinDays
				}), nil
			},
		},
		{
			ID:              "profile-complete",
			Slug:            SlugPolishedProfile,
			Description:     "Filled out a complete public profile",
			DefaultReason:   "Completed display name, bio, about text and social links",
			Priority:        50,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					p := c.Profile
					return p.HasDisplayName &&
						p.HasBio &&
						p.AboutLength >= profileMinAboutLength &&
						p.SocialLinkCount >= profileMinSocialLinks
				}), nil
			},
		},
		{
			ID:              "verified-identity",
			Slug:            SlugVerifiedIdentity,
			Description:     "Linked and verified an external account",
			DefaultReason:   "Verified at least one connected account",
			Priority:        50,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					return c.HasVerifiedAccount()
				}), nil
			},
		},
		{
			ID:              "social-connector",
			Slug:            SlugConnector,
			Description:     "Built a following in the community",
			DefaultReason:   "Followed by 50 or more members",
			Priority:        50,
			AllowRevocation: true,
			Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
				return predicateRule(rc, candidates, func(c *models.Candidate) bool {
					return c.FollowerCount >= connectorMinFollowers
				}), nil
			},
		},
		carryForwardRule(),
	}
}

// cohortEval grants to candidates inside the memoized first-n registration
// cohort. Multiple cohort rules in one run share each bulk query through the
// run context.
func cohortEval(n int) func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
	return func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
		cohort, err := rc.earliestUserSet(n)
		if err != nil {
			return nil, err
		}
		return predicateRule(rc, candidates, func(c *models.Candidate) bool {
			_, ok := cohort[c.ID]
			return ok
		}), nil
	}
}

// carryForwardRule preserves currently-active event-champion awards. It does
// not compute fresh eligibility: the badge is handed out by event staff, and
// without this rule the automatic revocation pass would strip every holder
// on the next full run. Revocation is disabled on purpose; membership only
// grows through manual grants.
func carryForwardRule() Rule {
	return Rule{
		ID:              "carry-event-champion",
		Slug:            SlugEventChampion,
		Description:     "Won a community event",
		DefaultReason:   "Past community event winner",
		Priority:        60,
		AllowRevocation: false,
		Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
			present := make(map[string]struct{}, len(candidates))
			for i := range candidates {
				present[candidates[i].ID] = struct{}{}
			}

			awards, err := rc.awards.ListActiveAwardsBySlug(SlugEventChampion)
			if err != nil {
				return nil, err
			}

			var grants []Grant
			for i := range awards {
				a := &awards[i]
				if _, ok := present[a.UserID]; !ok {
					continue
				}
				if !rc.Targeted(a.UserID) {
					continue
				}
				earned := a.EarnedAt
				grants = append(grants, Grant{
					UserID:    a.UserID,
					EarnedAt:  &earned,
					Note:      a.Note,
					Reason:    a.EarnedReason,
					SeasonKey: a.SeasonKey,
				})
			}
			return grants, nil
		},
	}
}
