package portfolio

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	// ErrBuildingNotFound is returned when a building is not found.
	ErrBuildingNotFound = errors.New("portfolio: building not found")
	// ErrPropertyNotFound is returned when a property is not found.
	ErrPropertyNotFound = errors.New("portfolio: property not found")
	// ErrTenantNotFound is returned when a tenant is not found.
	ErrTenantNotFound = errors.New("portfolio: tenant not found")
)

// Building groups properties that share heating infrastructure.
type Building struct {
	ID                string
	Name              string
	HeatingProviderID string
	// CirculationBilling enables hot water circulation cost sharing.
	CirculationBilling bool
	DistributionMethod string
}

// Property is a rentable unit.
type Property struct {
	ID         string
	BuildingID string
	Name       string
	Area       decimal.Decimal
}

// Tenant occupies a property and receives invoices.
type Tenant struct {
	ID         string
	PropertyID string
	Name       string
}
