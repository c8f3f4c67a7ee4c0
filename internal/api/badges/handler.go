// Package badges provides REST API handlers for the badge engine: a
// recompute trigger plus cached read endpoints for user badges and the
// catalog.
package badges

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mgrobelny/badgeforge/internal/cache"
	prommetrics "github.com/mgrobelny/badgeforge/internal/metrics"
	"github.com/mgrobelny/badgeforge/internal/models"
	"github.com/mgrobelny/badgeforge/internal/service/engine"
	"github.com/mgrobelny/badgeforge/pkg/logger"
)

// RecomputeService interface for engine operations.
type RecomputeService interface {
	Recompute(ctx context.Context, opts engine.RecomputeOptions) (*engine.RecomputeResult, error)
}

// BadgeDirectory interface for read operations.
type BadgeDirectory interface {
	ListUserBadges(userID string) ([]models.UserBadge, error)
	ListBadges() ([]models.Badge, error)
	CountHoldersBySlug() (map[string]int64, error)
}

// Cache keys served by the read endpoints.
const (
	catalogCacheKey     = "badges:catalog"
	userBadgesKeyPrefix = "badges:user:"
)

// Handler handles badge API requests.
type Handler struct {
	engine    RecomputeService
	directory BadgeDirectory
	cache     cache.Cache
	cacheTTL  time.Duration
	log       *logger.Logger
}

// NewHandler creates a new badge handler.
func NewHandler(eng RecomputeService, directory BadgeDirectory, c cache.Cache, cacheTTL time.Duration, log *logger.Logger) *Handler {
	return &Handler{
		engine:    eng,
		directory: directory,
		cache:     c,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// Register mounts the badge routes on a router group.
func (h *Handler) Register(api *gin.RouterGroup) {
	api.POST("/badges/recompute", h.Recompute)
	api.GET("/badges", h.GetCatalog)
	api.GET("/users/:id/badges", h.GetUserBadges)
}

type recomputeRequest struct {
	UserIDs []string `json:"user_ids"`
	DryRun  bool     `json:"dry_run"`
}

// Recompute triggers a badge recompute run.
// POST /api/v1/badges/recompute.
func (h *Handler) Recompute(c *gin.Context) {
	var req recomputeRequest
	if c.Request.Body != nil && c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.errorResponse(c, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	start := time.Now()
	result, err := h.engine.Recompute(c.Request.Context(), engine.RecomputeOptions{
		UserIDs: req.UserIDs,
		DryRun:  req.DryRun,
	})
	prommetrics.ObserveRecomputeDuration(time.Since(start).Seconds())

	if err != nil {
		h.log.Error().Err(err).Bool("dry_run", req.DryRun).Msg("Badge recompute failed")
		prommetrics.RecordRecomputeRun("api", "error")
		h.errorResponse(c, http.StatusInternalServerError, "Badge recompute failed")
		return
	}

	prommetrics.RecordRecomputeRun("api", "success")

	if !result.DryRun {
		h.invalidate(c.Request.Context(), result)
	}

	h.log.Info().
		Bool("dry_run", result.DryRun).
		Int("assignments", len(result.Assignments)).
		Int("revocations", len(result.Revocations)).
		Dur("duration", time.Since(start)).
		Msg("Badge recompute triggered via API")

	c.JSON(http.StatusOK, gin.H{
		"result":       result,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserBadges returns a user's active badges.
// GET /api/v1/users/:id/badges.
func (h *Handler) GetUserBadges(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		h.errorResponse(c, http.StatusBadRequest, "user id is required")
		return
	}

	key := userBadgesKeyPrefix + userID
	if body, ok := h.cached(c.Request.Context(), key); ok {
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	userBadges, err := h.directory.ListUserBadges(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to get user badges")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve user badges")
		return
	}

	payload := gin.H{
		"user_id":      userID,
		"badges":       userBadges,
		"total_badges": len(userBadges),
		"generated_at": time.Now().UTC(),
	}
	h.respondAndCache(c, key, payload)
}

// GetCatalog returns all badge definitions with active holder counts.
// GET /api/v1/badges.
func (h *Handler) GetCatalog(c *gin.Context) {
	if body, ok := h.cached(c.Request.Context(), catalogCacheKey); ok {
		c.Data(http.StatusOK, "application/json", body)
		return
	}

	catalog, err := h.directory.ListBadges()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get badge catalog")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge catalog")
		return
	}

	holders, err := h.directory.CountHoldersBySlug()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to count badge holders")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to retrieve badge catalog")
		return
	}

	type catalogEntry struct {
		models.Badge
		Holders int64 `json:"holders"`
	}

	entries := make([]catalogEntry, 0, len(catalog))
	for _, badge := range catalog {
		count := holders[badge.Slug]
		prommetrics.SetActiveBadgeHolders(badge.Slug, count)
		entries = append(entries, catalogEntry{Badge: badge, Holders: count})
	}

	payload := gin.H{
		"badges":       entries,
		"total_badges": len(entries),
		"generated_at": time.Now().UTC(),
	}
	h.respondAndCache(c, catalogCacheKey, payload)
}

// cached returns a cached response body when present. Cache failures degrade
// to a direct read, never to an error response.
func (h *Handler) cached(ctx context.Context, key string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	body, err := h.cache.Get(ctx, key)
	if err != nil {
		h.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		return nil, false
	}
	if body == "" {
		return nil, false
	}
	return []byte(body), true
}

func (h *Handler) respondAndCache(c *gin.Context, key string, payload gin.H) {
	body, err := json.Marshal(payload)
	if err != nil {
		h.errorResponse(c, http.StatusInternalServerError, "Failed to encode response")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(c.Request.Context(), key, string(body), h.cacheTTL); err != nil {
			h.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		}
	}

	c.Data(http.StatusOK, "application/json", body)
}

// invalidate drops cached responses touched by a committed recompute.
func (h *Handler) invalidate(ctx context.Context, result *engine.RecomputeResult) {
	if h.cache == nil {
		return
	}

	keys := []string{catalogCacheKey}
	seen := make(map[string]struct{})
	for _, summary := range result.Summaries {
		if _, ok := seen[summary.UserID]; ok {
			continue
		}
		seen[summary.UserID] = struct{}{}
		keys = append(keys, userBadgesKeyPrefix+summary.UserID)
	}
	for _, rev := range result.Revocations {
		if _, ok := seen[rev.UserID]; ok {
			continue
		}
		seen[rev.UserID] = struct{}{}
		keys = append(keys, userBadgesKeyPrefix+rev.UserID)
	}

	if err := h.cache.Del(ctx, keys...); err != nil {
		h.log.Warn().Err(err).Msg("Cache invalidation failed")
	}
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
