package readings

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ServiceType identifies the utility a meter measures.
type ServiceType string

const (
	ServiceElectricity ServiceType = "electricity"
	ServiceWater       ServiceType = "water"
	ServiceHeating     ServiceType = "heating"
)

// ParseServiceType validates a service type string.
func ParseServiceType(value string) (ServiceType, error) {
	switch ServiceType(value) {
	case ServiceElectricity, ServiceWater, ServiceHeating:
		return ServiceType(value), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownServiceType, value)
	}
}

// Unit returns the billing unit of the service.
func (s ServiceType) Unit() string {
	if s == ServiceWater {
		return "m3"
	}
	return "kWh"
}

// Meter is a physical register attached to a property.
type Meter struct {
	ID            string
	PropertyID    string
	ProviderID    string
	ServiceType   ServiceType
	SerialNumber  string
	SupportsZones bool
	// RegisterLimit is the highest value the register can show before it wraps.
	// Zero means unknown.
	RegisterLimit decimal.Decimal
}
