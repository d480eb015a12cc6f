package engagement

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/yalla-nemshi/nemshi/internal/domain"
)

// Catalog is the ordered, read-only table of badge definitions.
// It is built once at startup and shared by every evaluator.
type Catalog struct {
	defs []domain.BadgeDefinition
}

// NewCatalog validates defs and returns a catalog holding a private copy.
// Ids must be unique and non-empty, metrics known, targets non-negative.
func NewCatalog(defs ...domain.BadgeDefinition) (*Catalog, error) {
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: entry %d has no id", domain.ErrInvalidCatalog, i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate id %q", domain.ErrInvalidCatalog, d.ID)
		}
		if !d.Metric.Valid() {
			return nil, fmt.Errorf("%w: %q has unknown metric %q", domain.ErrInvalidCatalog, d.ID, d.Metric)
		}
		if d.Target < 0 {
			return nil, fmt.Errorf("%w: %q has negative target", domain.ErrInvalidCatalog, d.ID)
		}
		seen[d.ID] = true
	}
	out := make([]domain.BadgeDefinition, len(defs))
	copy(out, defs)
	return &Catalog{defs: out}, nil
}

// Definitions returns a copy of the entries in catalog order.
func (c *Catalog) Definitions() []domain.BadgeDefinition {
	out := make([]domain.BadgeDefinition, len(c.defs))
	copy(out, c.defs)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.defs) }

// Lookup finds a definition by id.
func (c *Catalog) Lookup(id string) (domain.BadgeDefinition, bool) {
	for _, d := range c.defs {
		if d.ID == id {
			return d, true
		}
	}
	return domain.BadgeDefinition{}, false
}

// catalogFile is the on-disk layout of a custom catalog:
//
//	[[badge]]
//	id = "first_walk"
//	title = "First Steps"
//	...
type catalogFile struct {
	Badges []domain.BadgeDefinition `toml:"badge"`
}

// LoadCatalogFile reads a TOML catalog. An empty path yields DefaultCatalog.
func LoadCatalogFile(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var f catalogFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(f.Badges) == 0 {
		return nil, fmt.Errorf("%w: %s defines no badges", domain.ErrInvalidCatalog, path)
	}
	return NewCatalog(f.Badges...)
}

// ─── Default Catalog ────────────────────────────────────────────────────────
// Mirrors the badge catalog shipped in the mobile app.

// DefaultCatalog returns the 14 built-in badges.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultBadges...)
	if err != nil {
		panic(err)
	}
	return c
}

var defaultBadges = []domain.BadgeDefinition{
	// Walks completed
	{ID: "first_walk", Title: "First Steps", Description: "Complete your first walk.", Metric: domain.MetricWalksCompleted, Target: 1},
	{ID: "five_walks", Title: "Getting Going", Description: "Complete 5 walks.", Metric: domain.MetricWalksCompleted, Target: 5},
	{ID: "ten_walks", Title: "Consistent Walker", Description: "Complete 10 walks.", Metric: domain.MetricWalksCompleted, Target: 10},
	{ID: "twentyfive_walks", Title: "Trail Regular", Description: "Complete 25 walks.", Metric: domain.MetricWalksCompleted, Target: 25},
	{ID: "fifty_walks", Title: "Walk Centurion", Description: "Complete 50 walks.", Metric: domain.MetricWalksCompleted, Target: 50},
	{ID: "hundred_walks", Title: "Habit Master", Description: "Complete 100 walks.", Metric: domain.MetricWalksCompleted, Target: 100},

	// Distance
	{ID: "km_20", Title: "20 km", Description: "Walk 20 km in total.", Metric: domain.MetricDistanceKm, Target: 20},
	{ID: "km_42", Title: "Marathon Mindset", Description: "Walk 42 km in total.", Metric: domain.MetricDistanceKm, Target: 42},
	{ID: "km_100", Title: "Century Club", Description: "Walk 100 km in total.", Metric: domain.MetricDistanceKm, Target: 100},
	{ID: "km_250", Title: "Quarter to 1k", Description: "Walk 250 km in total.", Metric: domain.MetricDistanceKm, Target: 250},
	{ID: "km_500", Title: "Half to 1k", Description: "Walk 500 km in total.", Metric: domain.MetricDistanceKm, Target: 500},

	// Hosting
	{ID: "first_host", Title: "First Host", Description: "Host your first walk.", Metric: domain.MetricWalksHosted, Target: 1},
	{ID: "five_hosts", Title: "Community Leader", Description: "Host 5 walks.", Metric: domain.MetricWalksHosted, Target: 5},
	{ID: "ten_hosts", Title: "Super Host", Description: "Host 10 walks.", Metric: domain.MetricWalksHosted, Target: 10},
}
