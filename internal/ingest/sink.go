package ingest

import (
	"context"

	"github.com/landreg/housesync/internal/feed"
	"github.com/landreg/housesync/internal/store"
)

// StoreSink reconciles each record and applies the resulting mutation
// set in one store transaction.
type StoreSink struct {
	store store.Store
}

func NewStoreSink(st store.Store) *StoreSink {
	return &StoreSink{store: st}
}

func (s *StoreSink) ApplyRecord(ctx context.Context, rec feed.Record) error {
	mu, err := BuildMutation(rec)
	if err != nil {
		return err
	}
	return s.store.Apply(ctx, mu)
}
