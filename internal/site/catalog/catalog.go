// Package catalog holds the property listings guests search and book.
// Listings are read-mostly and small; an in-memory catalog seeded at startup
// serves them without a database round trip.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"stayguard/pkg/sentinel"
)

// Property is a rentable holiday let.
type Property struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Location      string `json:"location"`
	PencePerNight int    `json:"pence_per_night"`
	Sleeps        int    `json:"sleeps"`
	Description   string `json:"description"`
}

// Catalog is a concurrency-safe property index.
type Catalog struct {
	mu         sync.RWMutex
	properties []Property
}

// New returns a catalog seeded with the given listings.
func New(properties []Property) *Catalog {
	return &Catalog{properties: properties}
}

// Seed returns the built-in demo listings used when no external inventory is
// configured.
func Seed() []Property {
	return []Property{
		{ID: "coastal-cottage-whitby", Name: "Coastal Cottage", Location: "Whitby, North Yorkshire", PencePerNight: 14500, Sleeps: 4, Description: "Stone cottage two streets from the harbour."},
		{ID: "city-loft-manchester", Name: "Northern Quarter Loft", Location: "Manchester", PencePerNight: 12000, Sleeps: 2, Description: "Converted mill loft in the Northern Quarter."},
		{ID: "highland-lodge-aviemore", Name: "Highland Lodge", Location: "Aviemore, Scottish Highlands", PencePerNight: 19800, Sleeps: 6, Description: "Timber lodge with views over the Cairngorms."},
		{ID: "seafront-flat-brighton", Name: "Seafront Flat", Location: "Brighton", PencePerNight: 13500, Sleeps: 3, Description: "First-floor flat overlooking the pier."},
		{ID: "canal-barge-birmingham", Name: "Canalside Barge", Location: "Birmingham", PencePerNight: 9800, Sleeps: 2, Description: "Moored narrowboat in the Gas Street Basin."},
	}
}

// Search returns listings whose name or location contains the query,
// case-insensitively. An empty query returns everything.
func (c *Catalog) Search(_ context.Context, location string) []Property {
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(location))
	if query == "" {
		results := make([]Property, len(c.properties))
		copy(results, c.properties)
		return results
	}

	results := make([]Property, 0)
	for _, p := range c.properties {
		if strings.Contains(strings.ToLower(p.Location), query) ||
			strings.Contains(strings.ToLower(p.Name), query) {
			results = append(results, p)
		}
	}
	return results
}

// FindByID returns the listing with the given ID.
func (c *Catalog) FindByID(_ context.Context, propertyID string) (*Property, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.properties {
		if p.ID == propertyID {
			found := p
			return &found, nil
		}
	}
	return nil, fmt.Errorf("property %q: %w", propertyID, sentinel.ErrNotFound)
}
