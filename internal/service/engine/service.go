// Package engine implements the badge evaluation and assignment engine: a
// rule pipeline that computes which badges every user currently qualifies
// for, diffs that against persisted awards, and reconciles the difference in
// one atomic commit.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	prommetrics "github.com/mgrobelny/badgeforge/internal/metrics"
	"github.com/mgrobelny/badgeforge/internal/models"
	"github.com/mgrobelny/badgeforge/internal/repository"
	"github.com/mgrobelny/badgeforge/pkg/logger"
)

// UserStore is the user-side data access the engine needs.
type UserStore interface {
	ListUsers(ids []string) ([]models.User, error)
	ListEarliestUserIDs(n int) ([]string, error)
	CountFollows(ids []string) (map[string]models.FollowCounts, error)
}

// AwardStore is the badge/award-side data access the engine needs.
type AwardStore interface {
	ListBadges() ([]models.Badge, error)
	ListAwardsByUsers(userIDs []string) ([]models.UserBadge, error)
	ListActiveAwardsBySlug(slug string) ([]models.UserBadge, error)
	CommitBatch(inserts, updates []*models.UserBadge) error
}

// ChangeKind classifies how a desired assignment relates to persisted state.
type ChangeKind string

// Assignment classifications.
const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeRestored ChangeKind = "restored"
	ChangeNoop     ChangeKind = "noop"
)

// autoRevokeReason is recorded when the engine revokes an award no rule
// re-granted and the row carries no reason of its own.
const autoRevokeReason = "No longer meets the badge criteria"

// Summary describes the outcome for one desired assignment.
type Summary struct {
	Slug      string     `json:"slug"`
	UserID    string     `json:"user_id"`
	SeasonKey *string    `json:"season_key,omitempty"`
	Change    ChangeKind `json:"change"`
}

// Revocation describes one award stripped by the reconciliation pass.
type Revocation struct {
	UserID      string  `json:"user_id"`
	BadgeSlug   string  `json:"badge_slug"`
	SeasonKey   *string `json:"season_key,omitempty"`
	UserBadgeID uint    `json:"user_badge_id"`
}

// RecomputeOptions controls one recompute run.
type RecomputeOptions struct {
	// UserIDs restricts the run to these users; empty means the whole
	// population.
	UserIDs []string
	// DryRun computes and returns the diff without committing anything.
	DryRun bool
	// Now injects the evaluation clock; zero means time.Now().
	Now time.Time
}

// RecomputeResult is the outcome of one recompute run.
type RecomputeResult struct {
	DryRun      bool         `json:"dry_run"`
	Assignments []Assignment `json:"assignments"`
	Summaries   []Summary    `json:"summaries"`
	Revocations []Revocation `json:"revocations"`
}

// Service runs badge evaluation and reconciliation.
type Service struct {
	users  UserStore
	awards AwardStore
	rules  []Rule
	log    *logger.Logger
}

// NewService creates the engine service with the default rule set.
func NewService(users *repository.UserRepository, awards *repository.BadgeRepository, log *logger.Logger) *Service {
	return &Service{
		users:  users,
		awards: awards,
		rules:  DefaultRules(),
		log:    log,
	}
}

// NewServiceWithInterfaces creates the engine service with interface
// dependencies and an explicit rule set (useful for testing).
func NewServiceWithInterfaces(users UserStore, awards AwardStore, rules []Rule, log *logger.Logger) *Service {
	return &Service{
		users:  users,
		awards: awards,
		rules:  rules,
		log:    log,
	}
}

// Rules returns the service's rule set.
func (s *Service) Rules() []Rule {
	return s.rules
}

// Recompute evaluates the rule set, diffs the desired assignments against
// persisted awards, and — unless dry-run — commits every staged mutation in
// one atomic batch. Running it twice over unchanged data yields only noop
// summaries and no revocations the second time.
func (s *Service) Recompute(ctx context.Context, opts RecomputeOptions) (*RecomputeResult, error) {
	now := opts.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	result := &RecomputeResult{
		DryRun:      opts.DryRun,
		Assignments: []Assignment{},
		Summaries:   []Summary{},
		Revocations: []Revocation{},
	}

	candidates, err := s.loadCandidates(opts.UserIDs)
	if err != nil {
		return nil, err
	}

	rc := newRunContext(ctx, now, s.users, s.awards, opts.UserIDs)

	assignments, err := evaluate(rc, candidates, s.rules)
	if err != nil {
		return nil, err
	}
	result.Assignments = assignments

	affected := affectedUserIDs(assignments, opts.UserIDs)
	if len(affected) == 0 {
		// Nothing desired and no explicit scope: skip the award queries
		// entirely.
		s.log.Debug().Msg("Recompute produced no assignments and no scope; short-circuiting")
		return result, nil
	}

	badges, err := s.awards.ListBadges()
	if err != nil {
		return nil, fmt.Errorf("failed to load badges: %w", err)
	}
	badgeIDBySlug := make(map[string]uint, len(badges))
	for i := range badges {
		badgeIDBySlug[badges[i].Slug] = badges[i].ID
	}

	existing, err := s.awards.ListAwardsByUsers(affected)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing awards: %w", err)
	}
	existingByKey := make(map[string]*models.UserBadge, len(existing))
	for i := range existing {
		award := &existing[i]
		existingByKey[compositeKey(award.UserID, award.Badge.Slug, award.SeasonKey)] = award
	}

	var inserts []*models.UserBadge
	var updates []*models.UserBadge
	matched := make(map[string]struct{}, len(assignments))

	for i := range assignments {
		a := &assignments[i]

		badgeID, ok := badgeIDBySlug[a.BadgeSlug]
		if !ok {
			// A rule granting a slug with no badge row is a deployment bug,
			// not a runtime condition to tolerate.
			return nil, fmt.Errorf("no badge definition for slug %q granted by rule %s", a.BadgeSlug, a.RuleID)
		}

		key := compositeKey(a.UserID, a.BadgeSlug, a.SeasonKey)
		matched[key] = struct{}{}

		change := ChangeNoop
		switch award, exists := existingByKey[key]; {
		case !exists:
			change = ChangeCreated
			inserts = append(inserts, &models.UserBadge{
				UserID:       a.UserID,
				BadgeID:      badgeID,
				EarnedAt:     a.EarnedAt,
				SeasonKey:    a.SeasonKey,
				Note:         a.Note,
				EarnedReason: a.Reason,
			})
		case award.RevokedAt != nil:
			change = ChangeRestored
			award.RevokedAt = nil
			award.RevokedReason = ""
			award.EarnedAt = a.EarnedAt
			award.Note = a.Note
			award.EarnedReason = a.Reason
			updates = append(updates, award)
		case !award.EarnedAt.Equal(a.EarnedAt) || award.Note != a.Note || award.EarnedReason != a.Reason:
			change = ChangeUpdated
			award.EarnedAt = a.EarnedAt
			award.Note = a.Note
			award.EarnedReason = a.Reason
			updates = append(updates, award)
		}

		result.Summaries = append(result.Summaries, Summary{
			Slug:      a.BadgeSlug,
			UserID:    a.UserID,
			SeasonKey: a.SeasonKey,
			Change:    change,
		})
	}

	// Revocation pass: any still-active award for an affected user that no
	// rule re-granted gets soft-revoked, unless a rule for its slug opted
	// out of automatic revocation.
	revocable := s.revocableSlugs()
	for i := range existing {
		award := &existing[i]
		if award.RevokedAt != nil {
			continue
		}
		key := compositeKey(award.UserID, award.Badge.Slug, award.SeasonKey)
		if _, ok := matched[key]; ok {
			continue
		}
		if allowed, known := revocable[award.Badge.Slug]; known && !allowed {
			continue
		}

		revokedAt := now
		award.RevokedAt = &revokedAt
		if award.RevokedReason == "" {
			award.RevokedReason = autoRevokeReason
		}
		updates = append(updates, award)

		result.Revocations = append(result.Revocations, Revocation{
			UserID:      award.UserID,
			BadgeSlug:   award.Badge.Slug,
			SeasonKey:   award.SeasonKey,
			UserBadgeID: award.ID,
		})
	}

	if !opts.DryRun && (len(inserts) > 0 || len(updates) > 0) {
		if err := s.awards.CommitBatch(inserts, updates); err != nil {
			return nil, err
		}
	}

	s.recordRunMetrics(result, len(candidates))

	s.log.Info().
		Bool("dry_run", opts.DryRun).
		Int("candidates", len(candidates)).
		Int("assignments", len(assignments)).
		Int("inserts", len(inserts)).
		Int("updates", len(updates)).
		Int("revocations", len(result.Revocations)).
		Msg("Badge recompute complete")

	return result, nil
}

// revocableSlugs reports, per slug the rule set knows about, whether
// automatic revocation is permitted. Slugs absent from the map default to
// permissive in the caller.
func (s *Service) revocableSlugs() map[string]bool {
	out := make(map[string]bool, len(s.rules))
	for i := range s.rules {
		rule := &s.rules[i]
		allowed, seen := out[rule.Slug]
		if !seen {
			allowed = true
		}
		out[rule.Slug] = allowed && rule.AllowRevocation
	}
	return out
}

// affectedUserIDs is the union of assignment users and the explicit scope,
// sorted for deterministic queries.
func affectedUserIDs(assignments []Assignment, requested []string) []string {
	set := make(map[string]struct{}, len(assignments)+len(requested))
	for i := range assignments {
		set[assignments[i].UserID] = struct{}{}
	}
	for _, id := range requested {
		set[id] = struct{}{}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *Service) recordRunMetrics(result *RecomputeResult, candidateCount int) {
	if result.DryRun {
		return
	}
	for _, summary := range result.Summaries {
		prommetrics.RecordAssignmentChange(string(summary.Change))
	}
	prommetrics.RecordRevocations(len(result.Revocations))
	prommetrics.SetCandidatesEvaluated(candidateCount)
}
