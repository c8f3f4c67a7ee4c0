package repository

import (
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mgrobelny/badgeforge/internal/models"
)

// BadgeRepository handles badge and award database operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// ListBadges retrieves all badge definitions.
func (r *BadgeRepository) ListBadges() ([]models.Badge, error) {
	var badges []models.Badge
	if err := r.db.Order("slug ASC").Find(&badges).Error; err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	return badges, nil
}

// GetBySlug retrieves a badge by its slug.
func (r *BadgeRepository) GetBySlug(slug string) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.Where("slug = ?", slug).First(&badge).Error; err != nil {
		return nil, fmt.Errorf("failed to get badge by slug %s: %w", slug, err)
	}
	return &badge, nil
}

// UpsertBadge inserts a badge definition or updates the existing row with the
// same slug. Used by the catalog sync; the engine never writes badge rows.
func (r *BadgeRepository) UpsertBadge(badge *models.Badge) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "description", "seasonal", "season_key", "active_from", "active_until", "updated_at",
		}),
	}).Create(badge).Error
	if err != nil {
		return fmt.Errorf("failed to upsert badge %s: %w", badge.Slug, err)
	}
	return nil
}

// ListAwardsByUsers retrieves every persisted award (active or revoked) for
// the given users, with badge definitions preloaded.
func (r *BadgeRepository) ListAwardsByUsers(userIDs []string) ([]models.UserBadge, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	var awards []models.UserBadge
	err := r.db.
		Where("user_id IN ?", userIDs).
		Preload("Badge").
		Order("id ASC").
		Find(&awards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list awards by users: %w", err)
	}
	return awards, nil
}

// ListActiveAwardsBySlug retrieves all non-revoked awards for one badge slug.
func (r *BadgeRepository) ListActiveAwardsBySlug(slug string) ([]models.UserBadge, error) {
	var awards []models.UserBadge
	err := r.db.
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("badges.slug = ? AND user_badges.revoked_at IS NULL", slug).
		Preload("Badge").
		Order("user_badges.id ASC").
		Find(&awards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active awards for slug %s: %w", slug, err)
	}
	return awards, nil
}

// ListUserBadges retrieves a user's currently active awards with badge
// definitions preloaded, most recent first.
func (r *BadgeRepository) ListUserBadges(userID string) ([]models.UserBadge, error) {
	var awards []models.UserBadge
	err := r.db.
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Preload("Badge").
		Order("earned_at DESC").
		Find(&awards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list user badges: %w", err)
	}
	return awards, nil
}

// CountHoldersBySlug returns the number of active holders per badge slug.
func (r *BadgeRepository) CountHoldersBySlug() (map[string]int64, error) {
	type row struct {
		Slug string
		N    int64
	}

	var rows []row
	err := r.db.Model(&models.UserBadge{}).
		Select("badges.slug AS slug, COUNT(*) AS n").
		Joins("JOIN badges ON badges.id = user_badges.badge_id").
		Where("user_badges.revoked_at IS NULL").
		Group("badges.slug").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count badge holders: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Slug] = r.N
	}
	return counts, nil
}

// CommitBatch applies all staged award inserts and updates in one
// transaction. Either every mutation lands or none do.
func (r *BadgeRepository) CommitBatch(inserts, updates []*models.UserBadge) error {
	if len(inserts) == 0 && len(updates) == 0 {
		return nil
	}

	err := r.db.Transaction(func(tx *gorm.DB) error {
		for _, award := range inserts {
			if err := tx.Omit(clause.Associations).Create(award).Error; err != nil {
				return fmt.Errorf("failed to insert award for user %s: %w", award.UserID, err)
			}
		}
		for _, award := range updates {
			if err := tx.Omit(clause.Associations).Save(award).Error; err != nil {
				return fmt.Errorf("failed to update award %d: %w", award.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("award batch commit failed: %w", err)
	}
	return nil
}
