package postgres

import (
	"context"
	"database/sql"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/shopspring/decimal"

	portfolio "utility-billing/internal/portfolio/domain"
	readings "utility-billing/internal/readings/domain"
)

func builder() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

var meterColumns = []string{
	"id", "property_id", "provider_id", "service_type", "serial_number", "supports_zones", "register_limit",
}

// Directory reads buildings, properties, tenants and meters.
type Directory struct {
	db *sql.DB
}

// NewDirectory constructs a directory.
func NewDirectory(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// PropertyOfTenant returns the property a tenant occupies, nil if none.
func (d *Directory) PropertyOfTenant(ctx context.Context, tenantID string) (*portfolio.Property, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("directory: nil db")
	}
	query, args, err := builder().Select("p.id", "p.building_id", "p.name", "p.area").
		From("tenants t").
		Join("properties p ON p.id = t.property_id").
		Where(sq.Eq{"t.id": tenantID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var p portfolio.Property
	var building sql.NullString
	err = d.db.QueryRowContext(ctx, query, args...).Scan(&p.ID, &building, &p.Name, &p.Area)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.BuildingID = building.String
	return &p, nil
}

// MetersOf lists the meters of a property ordered by id.
func (d *Directory) MetersOf(ctx context.Context, propertyID string) ([]readings.Meter, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("directory: nil db")
	}
	query, args, err := builder().Select(meterColumns...).
		From("meters").
		Where(sq.Eq{"property_id": propertyID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []readings.Meter
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Meter returns a meter by id, nil if none.
func (d *Directory) Meter(ctx context.Context, meterID string) (*readings.Meter, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("directory: nil db")
	}
	query, args, err := builder().Select(meterColumns...).
		From("meters").
		Where(sq.Eq{"id": meterID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	m, err := scanMeter(d.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return m, nil
}

// Building returns a building by id.
func (d *Directory) Building(ctx context.Context, buildingID string) (*portfolio.Building, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("directory: nil db")
	}
	query, args, err := builder().Select("id", "name", "heating_provider_id", "circulation_billing", "distribution_method").
		From("buildings").
		Where(sq.Eq{"id": buildingID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var b portfolio.Building
	var method sql.NullString
	err = d.db.QueryRowContext(ctx, query, args...).Scan(&b.ID, &b.Name, &b.HeatingProviderID, &b.CirculationBilling, &method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, portfolio.ErrBuildingNotFound
		}
		return nil, err
	}
	b.DistributionMethod = method.String
	return &b, nil
}

// PropertiesOf lists the properties of a building ordered by id.
func (d *Directory) PropertiesOf(ctx context.Context, buildingID string) ([]portfolio.Property, error) {
	if d == nil || d.db == nil {
		return nil, errors.New("directory: nil db")
	}
	query, args, err := builder().Select("id", "building_id", "name", "area").
		From("properties").
		Where(sq.Eq{"building_id": buildingID}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []portfolio.Property
	for rows.Next() {
		var p portfolio.Property
		if err := rows.Scan(&p.ID, &p.BuildingID, &p.Name, &p.Area); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMeter(row rowScanner) (*readings.Meter, error) {
	var m readings.Meter
	var service string
	var serial sql.NullString
	var limit decimal.NullDecimal
	if err := row.Scan(&m.ID, &m.PropertyID, &m.ProviderID, &service, &serial, &m.SupportsZones, &limit); err != nil {
		return nil, err
	}
	m.ServiceType = readings.ServiceType(service)
	m.SerialNumber = serial.String
	if limit.Valid {
		m.RegisterLimit = limit.Decimal
	}
	return &m, nil
}
