package models

import (
	"time"
)

// Badge represents a badge definition. Definitions are owned by the catalog
// sync; the engine only ever reads them as a slug -> id lookup.
type Badge struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Slug        string     `gorm:"uniqueIndex;not null;size:100" json:"slug"`
	Name        string     `gorm:"not null;size:255" json:"name"`
	Description string     `gorm:"type:text" json:"description"`
	Seasonal    bool       `gorm:"not null;default:false" json:"seasonal"`
	SeasonKey   *string    `gorm:"size:100" json:"season_key,omitempty"`
	ActiveFrom  *time.Time `json:"active_from,omitempty"`
	ActiveUntil *time.Time `json:"active_until,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// UserBadge is the durable record of a badge having been given to a user.
// Rows are never deleted: revocation sets RevokedAt, restoration clears it.
type UserBadge struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        string     `gorm:"type:uuid;not null;index" json:"user_id"`
	User          User       `gorm:"foreignKey:UserID" json:"user,omitempty"`
	BadgeID       uint       `gorm:"not null;index" json:"badge_id"`
	Badge         Badge      `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	EarnedAt      time.Time  `gorm:"not null" json:"earned_at"`
	SeasonKey     *string    `gorm:"size:100" json:"season_key,omitempty"`
	Note          string     `gorm:"type:text" json:"note"`
	EarnedReason  string     `gorm:"type:text" json:"earned_reason"`
	RevokedAt     *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason string     `gorm:"type:text" json:"revoked_reason"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}

// Active reports whether the award is currently held (not revoked).
func (ub *UserBadge) Active() bool {
	return ub.RevokedAt == nil
}
