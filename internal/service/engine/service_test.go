package engine

import (
	"context"
	"testing"
	"time"

	"github.com/mgrobelny/badgeforge/internal/models"
	"github.com/mgrobelny/badgeforge/pkg/logger"
)

// Mock stores for testing

type mockUserStore struct {
	users         []models.User
	earliest      []string
	follows       map[string]models.FollowCounts
	earliestCalls int
	listCalls     int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{follows: make(map[string]models.FollowCounts)}
}

func (m *mockUserStore) ListUsers(ids []string) ([]models.User, error) {
	m.listCalls++
	if len(ids) == 0 {
		return m.users, nil
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	var out []models.User
	for _, u := range m.users {
		if _, ok := want[u.ID]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *mockUserStore) ListEarliestUserIDs(n int) ([]string, error) {
	m.earliestCalls++
	if n > len(m.earliest) {
		n = len(m.earliest)
	}
	return m.earliest[:n], nil
}

func (m *mockUserStore) CountFollows(ids []string) (map[string]models.FollowCounts, error) {
	return m.follows, nil
}

type mockAwardStore struct {
	badges      []models.Badge
	awards      []models.UserBadge
	nextAwardID uint
	commits     int
	awardCalls  int
	badgeCalls  int
}

func newMockAwardStore() *mockAwardStore {
	return &mockAwardStore{nextAwardID: 1}
}

func (m *mockAwardStore) addBadge(id uint, slug string) {
	m.badges = append(m.badges, models.Badge{ID: id, Slug: slug, Name: slug})
}

func (m *mockAwardStore) badgeByID(id uint) models.Badge {
	for _, b := range m.badges {
		if b.ID == id {
			return b
		}
	}
	return models.Badge{}
}

func (m *mockAwardStore) addAward(userID string, badgeID uint, earnedAt time.Time) *models.UserBadge {
	award := models.UserBadge{
		ID:       m.nextAwardID,
		UserID:   userID,
		BadgeID:  badgeID,
		EarnedAt: earnedAt,
		Badge:    m.badgeByID(badgeID),
	}
	m.nextAwardID++
	m.awards = append(m.awards, award)
	return &m.awards[len(m.awards)-1]
}

func (m *mockAwardStore) ListBadges() ([]models.Badge, error) {
	m.badgeCalls++
	return m.badges, nil
}

func (m *mockAwardStore) ListAwardsByUsers(userIDs []string) ([]models.UserBadge, error) {
	m.awardCalls++
	want := make(map[string]struct{}, len(userIDs))
	for _, id := range userIDs {
		want[id] = struct{}{}
	}
	var out []models.UserBadge
	for _, a := range m.awards {
		if _, ok := want[a.UserID]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAwardStore) ListActiveAwardsBySlug(slug string) ([]models.UserBadge, error) {
	var out []models.UserBadge
	for _, a := range m.awards {
		if a.Badge.Slug == slug && a.RevokedAt == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

// CommitBatch applies the batch to the in-memory award list so repeated
// recompute runs observe committed state.
func (m *mockAwardStore) CommitBatch(inserts, updates []*models.UserBadge) error {
	m.commits++
	for _, ins := range inserts {
		record := *ins
		record.ID = m.nextAwardID
		record.Badge = m.badgeByID(record.BadgeID)
		m.nextAwardID++
		m.awards = append(m.awards, record)
	}
	for _, upd := range updates {
		for i := range m.awards {
			if m.awards[i].ID == upd.ID {
				badge := m.awards[i].Badge
				m.awards[i] = *upd
				m.awards[i].Badge = badge
			}
		}
	}
	return nil
}

func (m *mockAwardStore) activeAward(userID, slug string) *models.UserBadge {
	for i := range m.awards {
		a := &m.awards[i]
		if a.UserID == userID && a.Badge.Slug == slug && a.RevokedAt == nil {
			return a
		}
	}
	return nil
}

func setupEngine(users *mockUserStore, awards *mockAwardStore) *Service {
	log := logger.New("debug", "console", "stdout")
	return NewServiceWithInterfaces(users, awards, DefaultRules(), log)
}

func seedDefaultBadges(awards *mockAwardStore) {
	for i, kb := range KnownBadges {
		awards.addBadge(uint(i+1), kb.Slug)
	}
}

func adminUser(id string) models.User {
	return models.User{
		ID:       id,
		Username: id,
		Role:     "admin",
		Stats:    &models.UserStats{TrustLevel: "administrator"},
	}
}

func plainUser(id string) models.User {
	return models.User{
		ID:       id,
		Username: id,
		Role:     "member",
		Stats:    &models.UserStats{TrustLevel: "member"},
	}
}

func summaryChanges(result *RecomputeResult) map[string]ChangeKind {
	out := make(map[string]ChangeKind, len(result.Summaries))
	for _, s := range result.Summaries {
		out[s.UserID+"/"+s.Slug] = s.Change
	}
	return out
}

func TestRecomputeAdminEarnsStaffBadges(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)
	users.users = []models.User{adminUser("admin-1")}

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	slugs := make(map[string]bool)
	for _, a := range result.Assignments {
		if a.UserID == "admin-1" {
			slugs[a.BadgeSlug] = true
		}
	}
	if !slugs[SlugCoreTeam] {
		t.Error("Expected core-team assignment for administrator")
	}
	if !slugs[SlugOperationsLead] {
		t.Error("Expected operations-lead assignment for administrator")
	}

	if awards.activeAward("admin-1", SlugCoreTeam) == nil {
		t.Error("Expected committed core-team award")
	}
}

func TestRecomputeCohortMembership(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	// User 7 registered inside the first 100 but outside the first 5.
	users.users = []models.User{plainUser("user-7")}
	users.earliest = []string{"u1", "u2", "u3", "u4", "u5", "u6", "user-7"}

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	var gotEarlyAdopter, gotFounder bool
	for _, a := range result.Assignments {
		switch a.BadgeSlug {
		case SlugEarlyAdopter:
			gotEarlyAdopter = true
		case SlugFounder:
			gotFounder = true
		}
	}
	if !gotEarlyAdopter {
		t.Error("Expected early-adopter for a first-100 registrant")
	}
	if gotFounder {
		t.Error("Did not expect founder outside the first-5 cohort")
	}
}

func TestRecomputeCohortQueriesMemoizedPerSize(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)
	users.users = []models.User{plainUser("u1")}
	users.earliest = []string{"u1"}

	service := setupEngine(users, awards)
	if _, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow}); err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	// Two cohort sizes, two queries; never one per rule invocation beyond
	// that.
	if users.earliestCalls != 2 {
		t.Errorf("Expected 2 earliest-user queries, got %d", users.earliestCalls)
	}
}

func TestRecomputeRevokesLapsedAward(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	// Previously a top poster, now below the threshold. The verified account
	// keeps the user in the run's affected set.
	u := plainUser("writer")
	u.Stats.PostCount = 12
	u.ConnectedAccounts = []models.ConnectedAccount{{Provider: "github", Verified: true}}
	users.users = []models.User{u}
	awards.addAward("writer", badgeIDFor(awards, SlugTopPoster), testNow.Add(-30*24*time.Hour))

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if len(result.Revocations) != 1 {
		t.Fatalf("Expected exactly 1 revocation, got %d", len(result.Revocations))
	}
	rev := result.Revocations[0]
	if rev.UserID != "writer" || rev.BadgeSlug != SlugTopPoster {
		t.Errorf("Unexpected revocation %+v", rev)
	}

	for _, a := range awards.awards {
		if a.UserID == "writer" && a.Badge.Slug == SlugTopPoster {
			if a.RevokedAt == nil {
				t.Error("Expected committed revocation timestamp")
			} else if !a.RevokedAt.Equal(testNow) {
				t.Errorf("Expected revocation at run clock, got %v", a.RevokedAt)
			}
			if a.RevokedReason == "" {
				t.Error("Expected a revocation reason")
			}
		}
	}
}

func TestRecomputeShortCircuitsOnEmptyRun(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)
	// No users at all: zero assignments, no explicit scope.

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if len(result.Summaries) != 0 || len(result.Revocations) != 0 {
		t.Errorf("Expected empty result, got %d summaries and %d revocations",
			len(result.Summaries), len(result.Revocations))
	}
	if awards.awardCalls != 0 || awards.badgeCalls != 0 {
		t.Errorf("Expected no bulk award/badge queries, got %d/%d",
			awards.awardCalls, awards.badgeCalls)
	}
	if awards.commits != 0 {
		t.Errorf("Expected no commit, got %d", awards.commits)
	}
}

func TestRecomputeScopedRunStillRevokes(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	// The scoped user earns nothing but holds a stale award: the explicit
	// scope forces the reconciliation even with zero assignments.
	users.users = []models.User{plainUser("stale")}
	awards.addAward("stale", badgeIDFor(awards, SlugTopPoster), testNow.Add(-time.Hour))

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{
		UserIDs: []string{"stale"},
		Now:     testNow,
	})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if len(result.Revocations) != 1 {
		t.Fatalf("Expected 1 revocation in scoped run, got %d", len(result.Revocations))
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	u := adminUser("admin-1")
	u.Stats.PostCount = 500
	users.users = []models.User{u, plainUser("quiet")}
	users.earliest = []string{"admin-1", "quiet"}

	service := setupEngine(users, awards)

	first, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("First recompute failed: %v", err)
	}
	if awards.commits != 1 {
		t.Fatalf("Expected first run to commit, got %d commits", awards.commits)
	}

	second, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Second recompute failed: %v", err)
	}

	if len(second.Summaries) != len(first.Summaries) {
		t.Errorf("Expected same summary count, got %d then %d",
			len(first.Summaries), len(second.Summaries))
	}
	for _, s := range second.Summaries {
		if s.Change != ChangeNoop {
			t.Errorf("Expected noop on second run, got %s for %s/%s", s.Change, s.UserID, s.Slug)
		}
	}
	if len(second.Revocations) != 0 {
		t.Errorf("Expected no revocations on second run, got %d", len(second.Revocations))
	}
	if awards.commits != 1 {
		t.Errorf("Expected no second commit, got %d commits", awards.commits)
	}
}

func TestRecomputeDryRunCommitsNothing(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)
	users.users = []models.User{adminUser("admin-1")}

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{DryRun: true, Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	if !result.DryRun {
		t.Error("Expected dry-run result")
	}
	if len(result.Summaries) == 0 {
		t.Error("Expected the diff to be reported on dry-run")
	}
	if awards.commits != 0 {
		t.Errorf("Expected no commit on dry-run, got %d", awards.commits)
	}
	if len(awards.awards) != 0 {
		t.Errorf("Expected award state untouched, got %d rows", len(awards.awards))
	}
}

func TestRecomputeRestoresRevokedAward(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	u := plainUser("writer")
	u.Stats.PostCount = 400
	users.users = []models.User{u}

	revokedAt := testNow.Add(-time.Hour)
	award := awards.addAward("writer", badgeIDFor(awards, SlugTopPoster), testNow.Add(-48*time.Hour))
	award.RevokedAt = &revokedAt
	award.RevokedReason = "No longer meets the badge criteria"

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	changes := summaryChanges(result)
	if changes["writer/"+SlugTopPoster] != ChangeRestored {
		t.Errorf("Expected restored, got %s", changes["writer/"+SlugTopPoster])
	}

	restored := awards.activeAward("writer", SlugTopPoster)
	if restored == nil {
		t.Fatal("Expected award to be active again")
	}
	if restored.RevokedReason != "" {
		t.Errorf("Expected cleared revocation reason, got %q", restored.RevokedReason)
	}
}

func TestRecomputeCarryForwardProtectsEventChampion(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	users.users = []models.User{plainUser("winner")}
	award := awards.addAward("winner", badgeIDFor(awards, SlugEventChampion), testNow.Add(-90*24*time.Hour))
	award.EarnedReason = "Won the spring tournament"

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	changes := summaryChanges(result)
	if changes["winner/"+SlugEventChampion] != ChangeNoop {
		t.Errorf("Expected carried-forward award to be noop, got %s",
			changes["winner/"+SlugEventChampion])
	}
	if len(result.Revocations) != 0 {
		t.Errorf("Expected no revocations, got %d", len(result.Revocations))
	}

	carried := awards.activeAward("winner", SlugEventChampion)
	if carried == nil {
		t.Fatal("Expected event-champion award to stay active")
	}
	if !carried.EarnedAt.Equal(testNow.Add(-90 * 24 * time.Hour)) {
		t.Errorf("Expected original earned timestamp preserved, got %v", carried.EarnedAt)
	}
}

func TestRecomputeLegacyImportGrants(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	u := plainUser("veteran")
	u.Profile = &models.UserProfile{
		UserID: "veteran",
		BadgeImport: []byte(`{
			"beta-tester": {"label": "Beta Tester", "description": "Tested before launch", "source": "official"},
			"translator": {"label": "Translator", "description": "Community translation", "source": "community"}
		}`),
	}
	users.users = []models.User{u}

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	var gotBetaTester, gotTranslator bool
	for _, a := range result.Assignments {
		switch a.BadgeSlug {
		case "beta-tester":
			gotBetaTester = true
			if a.Reason != "Tested before launch" {
				t.Errorf("Expected imported description as reason, got %q", a.Reason)
			}
			if a.Note != "Beta Tester" {
				t.Errorf("Expected imported label as note, got %q", a.Note)
			}
		case "translator":
			gotTranslator = true
		}
	}
	if !gotBetaTester {
		t.Error("Expected official import to grant beta-tester")
	}
	if gotTranslator {
		t.Error("Did not expect community-sourced import to grant translator")
	}

	// Legacy grants never auto-revoke: a second run over data with the
	// import gone leaves the award active.
	u.Profile.BadgeImport = nil
	users.users = []models.User{u}
	if _, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow.Add(time.Hour)}); err != nil {
		t.Fatalf("Second recompute failed: %v", err)
	}
	if awards.activeAward("veteran", "beta-tester") == nil {
		t.Error("Expected legacy award to survive without re-grant")
	}
}

func TestRecomputeMissingBadgeDefinitionFails(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	// Seed every badge except core-team.
	for i, kb := range KnownBadges {
		if kb.Slug == SlugCoreTeam {
			continue
		}
		awards.addBadge(uint(i+1), kb.Slug)
	}
	users.users = []models.User{adminUser("admin-1")}

	service := setupEngine(users, awards)
	_, err := service.Recompute(context.Background(), RecomputeOptions{Now: testNow})
	if err == nil {
		t.Fatal("Expected error for missing badge definition")
	}
	if awards.commits != 0 {
		t.Errorf("Expected no commit after failure, got %d", awards.commits)
	}
}

func TestRecomputeScopedRunLeavesOthersAlone(t *testing.T) {
	users := newMockUserStore()
	awards := newMockAwardStore()
	seedDefaultBadges(awards)

	lapsed := plainUser("out-of-scope")
	lapsed.Stats.PostCount = 0
	users.users = []models.User{adminUser("admin-1"), lapsed}
	awards.addAward("out-of-scope", badgeIDFor(awards, SlugTopPoster), testNow.Add(-time.Hour))

	service := setupEngine(users, awards)
	result, err := service.Recompute(context.Background(), RecomputeOptions{
		UserIDs: []string{"admin-1"},
		Now:     testNow,
	})
	if err != nil {
		t.Fatalf("Recompute failed: %v", err)
	}

	for _, rev := range result.Revocations {
		if rev.UserID == "out-of-scope" {
			t.Error("Scoped run must not touch out-of-scope users")
		}
	}
	if awards.activeAward("out-of-scope", SlugTopPoster) == nil {
		t.Error("Expected out-of-scope award to stay active")
	}
}

func badgeIDFor(awards *mockAwardStore, slug string) uint {
	for _, b := range awards.badges {
		if b.Slug == slug {
			return b.ID
		}
	}
	return 0
}
