package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mgrobelny/badgeforge/internal/models"
)

func createUserAt(t *testing.T, db *DB, username string, createdAt time.Time) *models.User {
	t.Helper()

	user := &models.User{
		ID:        uuid.NewString(),
		Username:  username,
		Role:      models.RoleMember,
		CreatedAt: createdAt,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return user
}

func TestUserRepository_GetByID(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	created := createTestUser(t, db, "alice")

	user, err := repo.GetByID(created.ID)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if user.Username != "alice" {
		t.Errorf("Expected username 'alice', got %q", user.Username)
	}

	if _, err := repo.GetByID(uuid.NewString()); err == nil {
		t.Error("Expected error for unknown id")
	}
}

func TestUserRepository_ListUsersPreloadsAssociations(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	alice := createTestUser(t, db, "alice")
	createTestUser(t, db, "bob") // no stats, no profile

	stats := &models.UserStats{UserID: alice.ID, PostCount: 300, TrustLevel: "veteran"}
	if err := db.Create(stats).Error; err != nil {
		t.Fatalf("Failed to create stats: %v", err)
	}
	profile := &models.UserProfile{UserID: alice.ID, Bio: "hello"}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("Failed to create profile: %v", err)
	}
	account := &models.ConnectedAccount{UserID: alice.ID, Provider: "github", Verified: true}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create connected account: %v", err)
	}

	users, err := repo.ListUsers(nil)
	if err != nil {
		t.Fatalf("ListUsers() failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("Expected 2 users, got %d", len(users))
	}

	for _, u := range users {
		switch u.Username {
		case "alice":
			if u.Stats == nil || u.Stats.PostCount != 300 {
				t.Errorf("Expected preloaded stats, got %+v", u.Stats)
			}
			if u.Profile == nil || u.Profile.Bio != "hello" {
				t.Errorf("Expected preloaded profile, got %+v", u.Profile)
			}
			if len(u.ConnectedAccounts) != 1 {
				t.Errorf("Expected 1 connected account, got %d", len(u.ConnectedAccounts))
			}
		case "bob":
			if u.Stats != nil {
				t.Error("Expected nil stats for user without a stats row")
			}
			if u.Profile != nil {
				t.Error("Expected nil profile for user without a profile row")
			}
		}
	}
}

func TestUserRepository_ListUsersScoped(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	alice := createTestUser(t, db, "alice")
	createTestUser(t, db, "bob")

	users, err := repo.ListUsers([]string{alice.ID})
	if err != nil {
		t.Fatalf("ListUsers() failed: %v", err)
	}
	if len(users) != 1 || users[0].ID != alice.ID {
		t.Errorf("Expected only alice, got %d users", len(users))
	}
}

func TestUserRepository_ListEarliestUserIDs(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	third := createUserAt(t, db, "third", base.Add(48*time.Hour))
	first := createUserAt(t, db, "first", base)
	second := createUserAt(t, db, "second", base.Add(24*time.Hour))

	ids, err := repo.ListEarliestUserIDs(2)
	if err != nil {
		t.Fatalf("ListEarliestUserIDs() failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("Expected 2 ids, got %d", len(ids))
	}
	if ids[0] != first.ID || ids[1] != second.ID {
		t.Errorf("Expected registration order [first second], got %v", ids)
	}
	for _, id := range ids {
		if id == third.ID {
			t.Error("Did not expect the latest registrant in the cohort")
		}
	}
}

func TestUserRepository_CountFollows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	carol := createTestUser(t, db, "carol")

	follows := []*models.Follow{
		{FollowerID: bob.ID, FolloweeID: alice.ID},
		{FollowerID: carol.ID, FolloweeID: alice.ID},
		{FollowerID: alice.ID, FolloweeID: bob.ID},
	}
	for _, f := range follows {
		if err := db.Create(f).Error; err != nil {
			t.Fatalf("Failed to create follow: %v", err)
		}
	}

	counts, err := repo.CountFollows([]string{alice.ID, bob.ID, carol.ID})
	if err != nil {
		t.Fatalf("CountFollows() failed: %v", err)
	}

	if c := counts[alice.ID]; c.Followers != 2 || c.Following != 1 {
		t.Errorf("Expected alice 2/1, got %d/%d", c.Followers, c.Following)
	}
	if c := counts[bob.ID]; c.Followers != 1 || c.Following != 1 {
		t.Errorf("Expected bob 1/1, got %d/%d", c.Followers, c.Following)
	}
	if c := counts[carol.ID]; c.Followers != 0 || c.Following != 1 {
		t.Errorf("Expected carol 0/1, got %d/%d", c.Followers, c.Following)
	}

	// Scoped count ignores edges outside the scope entirely.
	counts, err = repo.CountFollows([]string{bob.ID})
	if err != nil {
		t.Fatalf("Scoped CountFollows() failed: %v", err)
	}
	if _, ok := counts[alice.ID]; ok {
		t.Error("Expected no entry for out-of-scope user")
	}
}
