package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	readings "utility-billing/internal/readings/domain"
	tariffs "utility-billing/internal/tariffs/domain"
	"utility-billing/internal/tariffs/pricing"
)

// Catalog keeps tariff versions per provider and service type.
type Catalog struct {
	mu       sync.RWMutex
	versions map[string][]*tariffs.Tariff
	resolver *pricing.Resolver
}

// NewCatalog creates an empty catalog.
func NewCatalog(resolver *pricing.Resolver) *Catalog {
	if resolver == nil {
		resolver = pricing.NewResolver()
	}
	return &Catalog{
		versions: make(map[string][]*tariffs.Tariff),
		resolver: resolver,
	}
}

func catalogKey(providerID string, service readings.ServiceType) string {
	return providerID + "/" + string(service)
}

// Add stores a new version. Versions of the same provider and service may not overlap.
func (c *Catalog) Add(t *tariffs.Tariff) error {
	if t == nil {
		return tariffs.ErrNilPricing
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	key := catalogKey(t.ProviderID, t.ServiceType)
	for _, existing := range c.versions[key] {
		if existing.Overlaps(t) {
			return fmt.Errorf("%w: %s and %s", tariffs.ErrTariffOverlap, existing.ID, t.ID)
		}
	}
	c.versions[key] = append(c.versions[key], t.Clone())
	return nil
}

// Supersede replaces the stored version closed.ID with closed and adds next.
func (c *Catalog) Supersede(closed, next *tariffs.Tariff) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := catalogKey(closed.ProviderID, closed.ServiceType)
	list := append([]*tariffs.Tariff(nil), c.versions[key]...)
	found := false
	for i, existing := range list {
		if existing.ID == closed.ID {
			list[i] = closed.Clone()
			found = true
		}
	}
	if !found {
		return tariffs.ErrTariffNotFound
	}
	for _, existing := range list {
		if existing.Overlaps(next) {
			return fmt.Errorf("%w: %s and %s", tariffs.ErrTariffOverlap, existing.ID, next.ID)
		}
	}
	c.versions[key] = append(list, next.Clone())
	return nil
}

// TariffFor returns the version active at the instant.
func (c *Catalog) TariffFor(ctx context.Context, providerID string, service readings.ServiceType, at time.Time) (*tariffs.Tariff, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, err := c.resolver.SelectVersion(c.versions[catalogKey(providerID, service)], at)
	if err != nil {
		return nil, fmt.Errorf("provider=%s service=%s: %w", providerID, service, err)
	}
	return t.Clone(), nil
}
