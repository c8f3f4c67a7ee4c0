package repository

import (
	"fmt"

	"github.com/mgrobelny/badgeforge/internal/models"
)

// UserRepository handles user-related database operations.
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user.
func (r *UserRepository) Create(user *models.User) error {
	if err := r.db.Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(id string) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by id %s: %w", id, err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by username.
func (r *UserRepository) GetByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user by username %s: %w", username, err)
	}
	return &user, nil
}

// ListUsers retrieves users with stats, profile and connected accounts
// preloaded. An empty id list means the whole population. Users without a
// stats or profile row come back with those associations nil.
func (r *UserRepository) ListUsers(ids []string) ([]models.User, error) {
	query := r.db.
		Preload("Stats").
		Preload("Profile").
		Preload("ConnectedAccounts").
		Order("created_at ASC")

	if len(ids) > 0 {
		query = query.Where("id IN ?", ids)
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// ListEarliestUserIDs returns the ids of the n earliest-registered accounts.
func (r *UserRepository) ListEarliestUserIDs(n int) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.User{}).
		Order("created_at ASC").
		Limit(n).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list earliest users: %w", err)
	}
	return ids, nil
}

// CountFollows returns follower/following counts for the given users.
// An empty id list aggregates over the whole follows table.
func (r *UserRepository) CountFollows(ids []string) (map[string]models.FollowCounts, error) {
	type row struct {
		UserID string
		N      int
	}

	counts := make(map[string]models.FollowCounts)

	followerQuery := r.db.Model(&models.Follow{}).
		Select("followee_id AS user_id, COUNT(*) AS n").
		Group("followee_id")
	if len(ids) > 0 {
		followerQuery = followerQuery.Where("followee_id IN ?", ids)
	}

	var followers []row
	if err := followerQuery.Scan(&followers).Error; err != nil {
		return nil, fmt.Errorf("failed to count followers: %w", err)
	}
	for _, f := range followers {
		c := counts[f.UserID]
		c.Followers = f.N
		counts[f.UserID] = c
	}

	followingQuery := r.db.Model(&models.Follow{}).
		Select("follower_id AS user_id, COUNT(*) AS n").
		Group("follower_id")
	if len(ids) > 0 {
		followingQuery = followingQuery.Where("follower_id IN ?", ids)
	}

	var following []row
	if err := followingQuery.Scan(&following).Error; err != nil {
		return nil, fmt.Errorf("failed to count following: %w", err)
	}
	for _, f := range following {
		c := counts[f.UserID]
		c.Following = f.N
		counts[f.UserID] = c
	}

	return counts, nil
}
