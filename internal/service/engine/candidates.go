package engine

import (
	"encoding/json"
	"fmt"

	"github.com/mgrobelny/badgeforge/internal/models"
)

// loadCandidates builds the evaluation-time snapshot of the requested users
// (everyone when ids is empty). Users missing a stats or profile row are
// fine: rules see nil stats and zeroed profile signals, not an error.
func (s *Service) loadCandidates(ids []string) ([]models.Candidate, error) {
	users, err := s.users.ListUsers(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate users: %w", err)
	}
	if len(users) == 0 {
		return nil, nil
	}

	userIDs := make([]string, len(users))
	for i := range users {
		userIDs[i] = users[i].ID
	}

	follows, err := s.users.CountFollows(userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load follow counts: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(users))
	for i := range users {
		c, err := buildCandidate(&users[i], follows[users[i].ID])
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func buildCandidate(u *models.User, fc models.FollowCounts) (models.Candidate, error) {
	c := models.Candidate{
		ID:             u.ID,
		CreatedAt:      u.CreatedAt,
		Admin:          u.IsAdmin(),
		FollowerCount:  fc.Followers,
		FollowingCount: fc.Following,
	}

	if u.Stats != nil {
		c.Stats = &models.CandidateStats{
			TopicCount:    u.Stats.TopicCount,
			PostCount:     u.Stats.PostCount,
			LikesGiven:    u.Stats.LikesGiven,
			LikesReceived: u.Stats.LikesReceived,
			Reputation:    u.Stats.Reputation,
			TrustLevel:    models.ParseTrustLevel(u.Stats.TrustLevel),
			CurrentStreak: u.Stats.CurrentStreak,
			LongestStreak: u.Stats.LongestStreak,
			LastActiveAt:  u.Stats.LastActiveAt,
		}
	}

	if u.Profile != nil {
		p := u.Profile
		c.Profile = models.ProfileSignals{
			HasDisplayName:   u.DisplayName != "" && u.DisplayName != u.Username,
			HasBio:           p.Bio != "",
			AboutLength:      len(p.About),
			SocialLinkCount:  p.SocialLinkCount,
			WebsiteLinkCount: p.WebsiteLinkCount,
			InterestsLength:  len(p.Interests),
		}
		if len(p.BadgeImport) > 0 {
			hints := make(map[string]models.LegacyBadgeHint)
			if err := json.Unmarshal(p.BadgeImport, &hints); err != nil {
				return models.Candidate{}, fmt.Errorf("failed to parse badge import data for user %s: %w", u.ID, err)
			}
			c.Profile.LegacyBadges = hints
		}
	}

	for _, acct := range u.ConnectedAccounts {
		c.Accounts = append(c.Accounts, models.LinkedAccount{
			Provider: acct.Provider,
			Verified: acct.Verified,
		})
	}

	return c, nil
}
