package memory

import (
	"context"
	"sort"
	"sync"

	portfolio "utility-billing/internal/portfolio/domain"
	readings "utility-billing/internal/readings/domain"
)

// Directory is an in-memory registry of buildings, properties, tenants and meters.
type Directory struct {
	mu         sync.RWMutex
	buildings  map[string]portfolio.Building
	properties map[string]portfolio.Property
	tenants    map[string]portfolio.Tenant
	meters     map[string]readings.Meter
}

// NewDirectory creates an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		buildings:  make(map[string]portfolio.Building),
		properties: make(map[string]portfolio.Property),
		tenants:    make(map[string]portfolio.Tenant),
		meters:     make(map[string]readings.Meter),
	}
}

// PutBuilding stores a building.
func (d *Directory) PutBuilding(b portfolio.Building) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildings[b.ID] = b
}

// PutProperty stores a property.
func (d *Directory) PutProperty(p portfolio.Property) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.properties[p.ID] = p
}

// PutTenant stores a tenant.
func (d *Directory) PutTenant(t portfolio.Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tenants[t.ID] = t
}

// PutMeter stores a meter.
func (d *Directory) PutMeter(m readings.Meter) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.meters[m.ID] = m
}

// PropertyOfTenant returns the property a tenant occupies, nil if none.
func (d *Directory) PropertyOfTenant(ctx context.Context, tenantID string) (*portfolio.Property, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[tenantID]
	if !ok {
		return nil, nil
	}
	p, ok := d.properties[t.PropertyID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// MetersOf lists the meters of a property ordered by id.
func (d *Directory) MetersOf(ctx context.Context, propertyID string) ([]readings.Meter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []readings.Meter
	for _, m := range d.meters {
		if m.PropertyID == propertyID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Meter returns a meter by id.
func (d *Directory) Meter(ctx context.Context, meterID string) (*readings.Meter, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.meters[meterID]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// Building returns a building by id.
func (d *Directory) Building(ctx context.Context, buildingID string) (*portfolio.Building, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	b, ok := d.buildings[buildingID]
	if !ok {
		return nil, portfolio.ErrBuildingNotFound
	}
	return &b, nil
}

// PropertiesOf lists the properties of a building ordered by id.
func (d *Directory) PropertiesOf(ctx context.Context, buildingID string) ([]portfolio.Property, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []portfolio.Property
	for _, p := range d.properties {
		if p.BuildingID == buildingID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
