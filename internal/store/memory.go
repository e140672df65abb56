package store

import (
	"context"
	"sort"
	"sync"

	"github.com/landreg/housesync/internal/model"
)

// MemoryStore is a map-backed Store used by tests.
type MemoryStore struct {
	mu        sync.RWMutex
	settings  map[string]string
	areas     map[model.Area]struct{}
	postcodes map[string]model.Postcode
	houses    map[string]model.House
	sales     map[string]model.Sale
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		settings:  make(map[string]string),
		areas:     make(map[model.Area]struct{}),
		postcodes: make(map[string]model.Postcode),
		houses:    make(map[string]model.House),
		sales:     make(map[string]model.Sale),
	}
}

func (m *MemoryStore) Setting(ctx context.Context, name string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.settings[name]
	return data, ok, nil
}

func (m *MemoryStore) SetSetting(ctx context.Context, name, data string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[name] = data
	return nil
}

func (m *MemoryStore) Apply(ctx context.Context, mu model.RecordMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mu.DeleteSaleTUI != "" {
		delete(m.sales, mu.DeleteSaleTUI)
	}
	for _, a := range mu.Areas {
		m.areas[a] = struct{}{}
	}
	if mu.Postcode != nil {
		if _, ok := m.postcodes[mu.Postcode.Postcode]; !ok {
			m.postcodes[mu.Postcode.Postcode] = *mu.Postcode
		}
	}
	if mu.House != nil {
		if _, ok := m.houses[mu.House.HouseID]; !ok {
			m.houses[mu.House.HouseID] = *mu.House
		}
	}
	if mu.Sale != nil {
		if _, ok := m.sales[mu.Sale.TUI]; !ok {
			m.sales[mu.Sale.TUI] = *mu.Sale
		}
	}
	return nil
}

func (m *MemoryStore) AreaValues(ctx context.Context, areaType string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var values []string
	for a := range m.areas {
		if a.AreaType == areaType && a.Area != "" {
			values = append(values, a.Area)
		}
	}
	sort.Strings(values)
	return values, nil
}

// SaleByTUI exposes sale state for tests.
func (m *MemoryStore) SaleByTUI(tui string) (model.Sale, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sales[tui]
	return s, ok
}

// HouseByID exposes house state for tests.
func (m *MemoryStore) HouseByID(id string) (model.House, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.houses[id]
	return h, ok
}

// PostcodeByValue exposes postcode state for tests.
func (m *MemoryStore) PostcodeByValue(pc string) (model.Postcode, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.postcodes[pc]
	return p, ok
}

// Counts reports table sizes for tests.
func (m *MemoryStore) Counts() (sales, houses, postcodes, areas int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sales), len(m.houses), len(m.postcodes), len(m.areas)
}
