package engine

import (
	"github.com/mgrobelny/badgeforge/internal/models"
)

// KnownBadge is one entry of the static registry of badge slugs the platform
// has ever issued. It seeds the legacy fallback rule family and backs the
// catalog validation at boot.
type KnownBadge struct {
	Slug        string
	Label       string
	Description string
}

// KnownBadges lists every slug the legacy platform could have stamped onto
// an imported profile. Slugs also claimed by a primary rule get no fallback
// rule; the primary rule owns them outright.
var KnownBadges = []KnownBadge{
	{Slug: SlugCoreTeam, Label: "Core Team", Description: "Member of the forum staff"},
	{Slug: SlugOperationsLead, Label: "Operations Lead", Description: "Runs day-to-day forum operations"},
	{Slug: SlugFounder, Label: "Founder", Description: "One of the very first accounts on the forum"},
	{Slug: SlugEarlyAdopter, Label: "Early Adopter", Description: "Joined during the forum's earliest days"},
	{Slug: SlugTopPoster, Label: "Top Poster", Description: "Prolific poster"},
	{Slug: SlugThreadWeaver, Label: "Thread Weaver", Description: "Starts discussions the community values"},
	{Slug: SlugStreakKeeper, Label: "Streak Keeper", Description: "Showed up every day for a month"},
	{Slug: SlugPolishedProfile, Label: "Polished Profile", Description: "Filled out a complete public profile"},
	{Slug: SlugVerifiedIdentity, Label: "Verified Identity", Description: "Linked and verified an external account"},
	{Slug: SlugConnector, Label: "Connector", Description: "Built a following in the community"},
	{Slug: SlugEventChampion, Label: "Event Champion", Description: "Won a community event"},
	{Slug: "translator", Label: "Translator", Description: "Helped translate the forum"},
	{Slug: "helpful-flagger", Label: "Helpful Flagger", Description: "Flags that moderators agreed with"},
	{Slug: "beta-tester", Label: "Beta Tester", Description: "Tested the platform before launch"},
}

// Legacy import sources that carry over as badge grants.
const (
	legacySourceOfficial = "official"
	legacySourceTeam     = "team"
)

// legacyPriority puts fallback rules strictly after every primary rule.
const legacyPriority = 1000

// legacyFallbackRules derives one rule per registry entry not already claimed
// by a primary rule. Each checks the candidate's imported profile metadata
// for an official/team tag with that slug. Fallback grants never auto-revoke:
// the import data is static, so a lapsed grant can only mean the registry
// shrank, not that the user lost anything.
func legacyFallbackRules(primary []Rule) []Rule {
	claimed := make(map[string]struct{}, len(primary))
	for i := range primary {
		claimed[primary[i].Slug] = struct{}{}
	}

	var rules []Rule
	for _, kb := range KnownBadges {
		if _, ok := claimed[kb.Slug]; ok {
			continue
		}
		rules = append(rules, legacyRule(kb))
	}
	return rules
}

func legacyRule(kb KnownBadge) Rule {
	return Rule{
		ID:              "legacy-" + kb.Slug,
		Slug:            kb.Slug,
		Description:     kb.Description,
		DefaultReason:   "Imported from the legacy platform",
		Priority:        legacyPriority,
		AllowRevocation: false,
		Eval: func(rc *RunContext, candidates []models.Candidate) ([]Grant, error) {
			var grants []Grant
			for i := range candidates {
				c := &candidates[i]
				if !rc.Targeted(c.ID) {
					continue
				}
				hint, ok := c.Profile.LegacyBadges[kb.Slug]
				if !ok {
					continue
				}
				if hint.Source != legacySourceOfficial && hint.Source != legacySourceTeam {
					continue
				}
				grants = append(grants, Grant{
					UserID: c.ID,
					Note:   hint.Label,
					Reason: hint.Description,
				})
			}
			return grants, nil
		},
	}
}

// RuleSlugs returns the distinct badge slugs the rule set can grant, used by
// the catalog sync to verify every rule has a badge definition.
func RuleSlugs(rules []Rule) []string {
	seen := make(map[string]struct{}, len(rules))
	var slugs []string
	for i := range rules {
		if _, ok := seen[rules[i].Slug]; ok {
			continue
		}
		seen[rules[i].Slug] = struct{}{}
		slugs = append(slugs, rules[i].Slug)
	}
	return slugs
}
