// Package models defines domain models for the forum badge engine.
package models

import (
	"encoding/json"
	"time"
)

// Account roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// User represents a forum account.
type User struct {
	ID          string    `gorm:"type:uuid;primaryKey" json:"id"`
	Username    string    `gorm:"uniqueIndex;not null;size:255" json:"username"`
	DisplayName string    `gorm:"size:255" json:"display_name"`
	Email       string    `gorm:"size:255" json:"email"`
	Role        string    `gorm:"size:50;default:member" json:"role"` // 'member' or 'admin'
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Stats             *UserStats         `gorm:"foreignKey:UserID" json:"stats,omitempty"`
	Profile           *UserProfile       `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	ConnectedAccounts []ConnectedAccount `gorm:"foreignKey:UserID" json:"connected_accounts,omitempty"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the account has the administrator role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// UserStats holds denormalized activity statistics for one user.
// A user that was never active may have no stats row at all.
type UserStats struct {
	UserID        string     `gorm:"type:uuid;primaryKey" json:"user_id"`
	TopicCount    int        `gorm:"not null;default:0" json:"topic_count"`
	PostCount     int        `gorm:"not null;default:0" json:"post_count"`
	LikesGiven    int        `gorm:"not null;default:0" json:"likes_given"`
	LikesReceived int        `gorm:"not null;default:0" json:"likes_received"`
	Reputation    int        `gorm:"not null;default:0" json:"reputation"`
	TrustLevel    string     `gorm:"size:50" json:"trust_level"`
	CurrentStreak int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActiveAt  *time.Time `json:"last_active_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UserStats model.
func (UserStats) TableName() string {
	return "user_stats"
}

// UserProfile holds the editable profile fields relevant to badge rules.
// BadgeImport carries per-slug metadata imported from the legacy platform.
type UserProfile struct {
	UserID           string          `gorm:"type:uuid;primaryKey" json:"user_id"`
	Bio              string          `gorm:"type:text" json:"bio"`
	About            string          `gorm:"type:text" json:"about"`
	Interests        string          `gorm:"type:text" json:"interests"`
	SocialLinkCount  int             `gorm:"not null;default:0" json:"social_link_count"`
	WebsiteLinkCount int             `gorm:"not null;default:0" json:"website_link_count"`
	BadgeImport      json.RawMessage `gorm:"type:jsonb" json:"badge_import,omitempty"` // slug -> {label, description, source}
	UpdatedAt        time.Time       `json:"updated_at"`
}

// TableName specifies the table name for UserProfile model.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// ConnectedAccount is an external identity linked to a forum account.
type ConnectedAccount struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;index" json:"user_id"`
	Provider  string    `gorm:"size:100;not null" json:"provider"`
	Verified  bool      `gorm:"not null;default:false" json:"verified"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for ConnectedAccount model.
func (ConnectedAccount) TableName() string {
	return "connected_accounts"
}

// Follow is a directed social-graph edge between two users.
type Follow struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	FollowerID string    `gorm:"type:uuid;not null;index" json:"follower_id"`
	FolloweeID string    `gorm:"type:uuid;not null;index" json:"followee_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// TableName specifies the table name for Follow model.
func (Follow) TableName() string {
	return "follows"
}

// FollowCounts is the aggregated social-graph view of one user.
type FollowCounts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}
