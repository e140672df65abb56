package app

import (
	"context"
	"strconv"

	"github.com/landreg/housesync/internal/store"
)

// The lease is advisory: runs are expected to be serialized by the
// external scheduler, this just stops an accidental overlap from
// racing the settings keys. The value is the unix expiry of the
// current holder.

func (app *App) acquireLease(ctx context.Context) (bool, error) {
	raw, ok, err := app.store.Setting(ctx, store.KeyRunLease)
	if err != nil {
		return false, err
	}
	if ok {
		expiry, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && expiry > app.now().Unix() {
			return false, nil
		}
	}

	expiry := app.now().Add(app.config.LeaseTTL).Unix()
	if err := app.store.SetSetting(ctx, store.KeyRunLease, strconv.FormatInt(expiry, 10)); err != nil {
		return false, err
	}
	return true, nil
}

func (app *App) releaseLease(ctx context.Context) error {
	return app.store.SetSetting(ctx, store.KeyRunLease, "0")
}
