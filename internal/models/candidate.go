package models

import (
	"strings"
	"time"
)

// TrustLevel is the forum trust tier, totally ordered from newcomer up to
// administrator. The zero value is TrustNewcomer.
type TrustLevel int

// Trust tiers in ascending rank.
const (
	TrustNewcomer TrustLevel = iota
	TrustMember
	TrustContributor
	TrustVeteran
	TrustModerator
	TrustAdministrator
)

var trustLevelNames = map[TrustLevel]string{
	TrustNewcomer:      "newcomer",
	TrustMember:        "member",
	TrustContributor:   "contributor",
	TrustVeteran:       "veteran",
	TrustModerator:     "moderator",
	TrustAdministrator: "administrator",
}

// String returns the canonical lowercase name of the tier.
func (t TrustLevel) String() string {
	if name, ok := trustLevelNames[t]; ok {
		return name
	}
	return "newcomer"
}

// AtLeast reports whether the tier ranks at or above min.
func (t TrustLevel) AtLeast(min TrustLevel) bool {
	return t >= min
}

// ParseTrustLevel maps a stored tier name to a TrustLevel. Unknown or empty
// names rank as newcomer rather than failing; stats rows written by older
// versions of the stats pipeline may carry names we no longer use.
func ParseTrustLevel(name string) TrustLevel {
	for level, n := range trustLevelNames {
		if n == strings.ToLower(strings.TrimSpace(name)) {
			return level
		}
	}
	return TrustNewcomer
}

// LegacyBadgeHint is per-slug metadata imported from the legacy platform,
// recorded on the user's profile during migration.
type LegacyBadgeHint struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Source      string `json:"source"` // e.g. "official", "team", "community"
}

// CandidateStats is the activity-statistics snapshot for one candidate.
type CandidateStats struct {
	TopicCount    int
	PostCount     int
	LikesGiven    int
	LikesReceived int
	Reputation    int
	TrustLevel    TrustLevel
	CurrentStreak int
	LongestStreak int
	LastActiveAt  *time.Time
}

// ProfileSignals is the profile-completeness snapshot for one candidate.
// A user with no profile row gets the zero value.
type ProfileSignals struct {
	HasDisplayName   bool
	HasBio           bool
	AboutLength      int
	SocialLinkCount  int
	WebsiteLinkCount int
	InterestsLength  int
	LegacyBadges     map[string]LegacyBadgeHint
}

// LinkedAccount is the connected-account snapshot for one candidate.
type LinkedAccount struct {
	Provider string
	Verified bool
}

// Candidate is one user's evaluation-time snapshot. It is rebuilt fresh on
// every recompute run and immutable for the duration of that run. Stats is
// nil for users whose statistics were never computed.
type Candidate struct {
	ID             string
	CreatedAt      time.Time
	Admin          bool
	Stats          *CandidateStats
	Profile        ProfileSignals
	Accounts       []LinkedAccount
	FollowerCount  int
	FollowingCount int
}

// HasVerifiedAccount reports whether any connected account is verified.
func (c *Candidate) HasVerifiedAccount() bool {
	for _, a := range c.Accounts {
		if a.Verified {
			return true
		}
	}
	return false
}
