// Package catalog loads badge definitions from a YAML file and syncs them
// into the database at boot. The engine itself never writes badge rows; this
// is the only owner of the badges table.
package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mgrobelny/badgeforge/internal/models"
	"github.com/mgrobelny/badgeforge/internal/repository"
	"github.com/mgrobelny/badgeforge/pkg/logger"
)

// Definition is one badge entry in the definitions file.
type Definition struct {
	Slug        string  `yaml:"slug"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Seasonal    bool    `yaml:"seasonal"`
	SeasonKey   *string `yaml:"season_key"`
}

type definitionsFile struct {
	Badges []Definition `yaml:"badges"`
}

// BadgeStore is the badge persistence the syncer needs.
type BadgeStore interface {
	UpsertBadge(badge *models.Badge) error
	ListBadges() ([]models.Badge, error)
}

// Syncer upserts badge definitions into the database.
type Syncer struct {
	store BadgeStore
	log   *logger.Logger
}

// NewSyncer creates a catalog syncer.
func NewSyncer(store *repository.BadgeRepository, log *logger.Logger) *Syncer {
	return &Syncer{store: store, log: log}
}

// NewSyncerWithStore creates a catalog syncer with an interface dependency
// (useful for testing).
func NewSyncerWithStore(store BadgeStore, log *logger.Logger) *Syncer {
	return &Syncer{store: store, log: log}
}

// LoadDefinitions parses the YAML definitions file.
func LoadDefinitions(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read badge definitions %s: %w", path, err)
	}

	var file definitionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse badge definitions %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(file.Badges))
	for _, def := range file.Badges {
		if def.Slug == "" {
			return nil, fmt.Errorf("badge definition with empty slug in %s", path)
		}
		if def.Name == "" {
			return nil, fmt.Errorf("badge definition %q has no name", def.Slug)
		}
		if _, dup := seen[def.Slug]; dup {
			return nil, fmt.Errorf("duplicate badge definition %q", def.Slug)
		}
		seen[def.Slug] = struct{}{}
	}

	return file.Badges, nil
}

// Validate checks that every required slug has a definition. Run at boot so
// a rule granting an undefined badge fails the deploy, not the first
// recompute.
func Validate(defs []Definition, requiredSlugs []string) error {
	defined := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		defined[def.Slug] = struct{}{}
	}
	for _, slug := range requiredSlugs {
		if _, ok := defined[slug]; !ok {
			return fmt.Errorf("no badge definition for rule slug %q", slug)
		}
	}
	return nil
}

// Sync upserts every definition. Idempotent: re-running with the same file
// leaves the table unchanged.
func (s *Syncer) Sync(defs []Definition) error {
	for _, def := range defs {
		badge := &models.Badge{
			Slug:        def.Slug,
			Name:        def.Name,
			Description: def.Description,
			Seasonal:    def.Seasonal,
			SeasonKey:   def.SeasonKey,
		}
		if err := s.store.UpsertBadge(badge); err != nil {
			return err
		}
	}

	s.log.Info().
		Int("definitions", len(defs)).
		Msg("Badge catalog synced")

	return nil
}
