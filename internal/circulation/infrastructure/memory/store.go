package memory

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	circulation "utility-billing/internal/circulation/domain"
)

func allocationKey(buildingID string, month time.Time) string {
	return buildingID + "/" + circulation.MonthStart(month).Format("2006-01")
}

// AllocationStore keeps allocations in memory. Records are swapped whole.
type AllocationStore struct {
	mu    sync.RWMutex
	items map[string]*circulation.Allocation
}

// NewAllocationStore creates an empty store.
func NewAllocationStore() *AllocationStore {
	return &AllocationStore{items: make(map[string]*circulation.Allocation)}
}

// Find returns the allocation for a building and month, nil if none.
func (s *AllocationStore) Find(ctx context.Context, buildingID string, month time.Time) (*circulation.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.items[allocationKey(buildingID, month)].Clone(), nil
}

// Save replaces the allocation for its building and month.
func (s *AllocationStore) Save(ctx context.Context, allocation *circulation.Allocation) error {
	if allocation == nil {
		return circulation.ErrNilAllocation
	}
	clone := allocation.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[allocationKey(allocation.BuildingID, allocation.Month)] = clone
	return nil
}

// BaselineStore keeps summer baselines in memory.
type BaselineStore struct {
	mu     sync.RWMutex
	values map[string]decimal.Decimal
}

// NewBaselineStore creates an empty store.
func NewBaselineStore() *BaselineStore {
	return &BaselineStore{values: make(map[string]decimal.Decimal)}
}

// SummerBaseline returns the stored baseline.
func (s *BaselineStore) SummerBaseline(ctx context.Context, buildingID string) (decimal.NullDecimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[buildingID]
	if !ok {
		return decimal.NullDecimal{}, nil
	}
	return decimal.NewNullDecimal(v), nil
}

// SaveSummerBaseline stores a baseline.
func (s *BaselineStore) SaveSummerBaseline(ctx context.Context, buildingID string, value decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[buildingID] = value
	return nil
}

// HeatData keeps monthly building heat metering in memory.
type HeatData struct {
	mu     sync.RWMutex
	months map[string]circulation.HeatData
}

// NewHeatData creates an empty reader.
func NewHeatData() *HeatData {
	return &HeatData{months: make(map[string]circulation.HeatData)}
}

// Put stores heat data for a building month.
func (h *HeatData) Put(buildingID string, month time.Time, data circulation.HeatData) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.months[allocationKey(buildingID, month)] = data
}

// MonthlyHeatData returns the heat data, nil if none.
func (h *HeatData) MonthlyHeatData(ctx context.Context, buildingID string, month time.Time) (*circulation.HeatData, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	data, ok := h.months[allocationKey(buildingID, month)]
	if !ok {
		return nil, nil
	}
	return &data, nil
}
