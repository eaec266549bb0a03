package catalog

import (
	"context"
	"errors"
	"strings"
	"time"
)

// AccessPattern describes one way a platform hands out access, with the
// role names that pattern supports.
type AccessPattern struct {
	Pattern string   `json:"pattern"`
	Label   string   `json:"label"`
	Roles   []string `json:"roles,omitempty"`
}

// Platform is immutable reference data describing a supported marketing
// platform. Created by seeding, rarely mutated.
type Platform struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Slug                  string          `json:"slug"`
	Category              string          `json:"category"`
	Tier                  int             `json:"tier"`
	ClientFacing          bool            `json:"client_facing"`
	AutomationFeasibility string          `json:"automation_feasibility"`
	SupportedItemTypes    []string        `json:"supported_item_types"`
	AccessPatterns        []AccessPattern `json:"access_patterns,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
}

// SupportsItemType reports whether the platform accepts access items of
// the given type.
func (p Platform) SupportsItemType(itemType string) bool {
	for _, t := range p.SupportedItemTypes {
		if t == itemType {
			return true
		}
	}
	return false
}

var ErrNotFound = errors.New("catalog: platform not found")

// Source lists catalog platforms from the system of record.
type Source interface {
	ListCatalogPlatforms(ctx context.Context) ([]Platform, error)
}

// Catalog is an immutable snapshot of the platform catalog, loaded at
// process start. Lookups never touch the database.
type Catalog struct {
	byID   map[string]Platform
	bySlug map[string]Platform
	list   []Platform
}

// Load reads all platforms from the source and builds lookup indexes.
func Load(ctx context.Context, src Source) (*Catalog, error) {
	platforms, err := src.ListCatalogPlatforms(ctx)
	if err != nil {
		return nil, err
	}
	return FromPlatforms(platforms), nil
}

// FromPlatforms builds a snapshot from an in-memory platform list.
func FromPlatforms(platforms []Platform) *Catalog {
	c := &Catalog{
		byID:   make(map[string]Platform, len(platforms)),
		bySlug: make(map[string]Platform, len(platforms)),
		list:   make([]Platform, len(platforms)),
	}
	copy(c.list, platforms)
	for _, p := range platforms {
		c.byID[p.ID] = p
		c.bySlug[strings.ToLower(p.Slug)] = p
	}
	return c
}

// ByID returns the platform with the given id.
func (c *Catalog) ByID(id string) (Platform, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// BySlug returns the platform with the given slug (case-insensitive).
func (c *Catalog) BySlug(slug string) (Platform, bool) {
	p, ok := c.bySlug[strings.ToLower(strings.TrimSpace(slug))]
	return p, ok
}

// All returns the platforms in seed order.
func (c *Catalog) All() []Platform {
	out := make([]Platform, len(c.list))
	copy(out, c.list)
	return out
}

// Len reports the number of platforms in the snapshot.
func (c *Catalog) Len() int { return len(c.list) }
