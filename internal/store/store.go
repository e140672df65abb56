// Package store provides access to the engine's relational state. The
// settings table and the four derived tables are owned exclusively by
// this engine; providers are created through the factory so tests can
// run against the in-memory one.
package store

import (
	"context"

	"github.com/landreg/housesync/internal/model"
)

// Well-known settings keys.
const (
	KeyUpdateHash          = "update_hash"
	KeyLastUpdated         = "last_updated"
	KeyLastAggregated      = "last_aggregated_counties"
	KeyAggregatingCounties = "aggregating_counties"
	KeyRunLease            = "run_lease"
)

// Store is the provider interface for the persisted state.
type Store interface {
	// Setting returns the value for name and whether it exists.
	Setting(ctx context.Context, name string) (string, bool, error)

	// SetSetting creates or replaces the value for name.
	SetSetting(ctx context.Context, name, data string) error

	// Apply executes one record mutation atomically. Every upsert is
	// conflict-ignore, so re-applying the same mutation is a no-op.
	Apply(ctx context.Context, mu model.RecordMutation) error

	// AreaValues lists the distinct non-blank values recorded for one
	// area type, in stable order.
	AreaValues(ctx context.Context, areaType string) ([]string, error)
}
