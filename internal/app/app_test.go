package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/config"
	"github.com/landreg/housesync/internal/feed"
	"github.com/landreg/housesync/internal/ingest"
	"github.com/landreg/housesync/internal/store"
)

const testFeed = `"{T1}",500000,2024-01-05 00:00,EC1A 1BB,D,Y,F,12,,HIGH STREET,,LONDON,CAMDEN,GREATER LONDON,A,A` + "\n"

// newSyncApp wires just enough of the app to exercise the sync path
// against an httptest feed server.
func newSyncApp(feedURL string) (*App, *store.MemoryStore) {
	st := store.NewMemoryStore()
	logger := zap.NewNop()
	return &App{
		config:   &config.Config{LeaseTTL: time.Hour},
		logger:   logger,
		store:    st,
		detector: feed.NewDetector(feedURL, st, logger),
		engine:   ingest.NewEngine(ingest.NewStoreSink(st), 0, logger, nil),
		now:      func() time.Time { return time.Unix(1700000000, 0) },
	}, st
}

func TestSyncFeed_IngestsAndCommits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testFeed))
	}))
	defer server.Close()

	app, st := newSyncApp(server.URL)
	ctx := context.Background()

	require.NoError(t, app.syncFeed(ctx))

	_, ok := st.SaleByTUI("T1")
	require.True(t, ok)

	digest, ok, err := st.Setting(ctx, store.KeyUpdateHash)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, digest)

	lastUpdated, ok, err := st.Setting(ctx, store.KeyLastUpdated)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1700000000", lastUpdated)
}

func TestSyncFeed_ShortCircuitOnUnchangedDigest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(testFeed))
	}))
	defer server.Close()

	app, st := newSyncApp(server.URL)
	ctx := context.Background()

	require.NoError(t, app.syncFeed(ctx))
	lastUpdated, _, err := st.Setting(ctx, store.KeyLastUpdated)
	require.NoError(t, err)

	// Second run sees the identical digest: no mutations, no
	// last_updated advance.
	app.now = func() time.Time { return time.Unix(1800000000, 0) }
	require.NoError(t, app.syncFeed(ctx))

	again, _, err := st.Setting(ctx, store.KeyLastUpdated)
	require.NoError(t, err)
	require.Equal(t, lastUpdated, again, "last_updated must not advance on no-change")

	sales, houses, postcodes, areas := st.Counts()
	require.Equal(t, 1, sales)
	require.Equal(t, 1, houses)
	require.Equal(t, 1, postcodes)
	require.Equal(t, 8, areas)
}

func TestSyncFeed_FetchFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	app, st := newSyncApp(server.URL)
	err := app.syncFeed(context.Background())
	require.ErrorIs(t, err, feed.ErrFetch)

	_, ok, err2 := st.Setting(context.Background(), store.KeyUpdateHash)
	require.NoError(t, err2)
	require.False(t, ok, "nothing committed on fetch failure")
}

func TestLease_AcquireAndBlock(t *testing.T) {
	app, st := newSyncApp("http://unused")
	ctx := context.Background()

	acquired, err := app.acquireLease(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	// A second caller inside the TTL is shut out.
	acquired, err = app.acquireLease(ctx)
	require.NoError(t, err)
	require.False(t, acquired)

	require.NoError(t, app.releaseLease(ctx))
	acquired, err = app.acquireLease(ctx)
	require.NoError(t, err)
	require.True(t, acquired)

	raw, ok, err := st.Setting(ctx, store.KeyRunLease)
	require.NoError(t, err)
	require.True(t, ok)
	expiry, err := strconv.ParseInt(raw, 10, 64)
	require.NoError(t, err)
	require.Equal(t, time.Unix(1700000000, 0).Add(time.Hour).Unix(), expiry)
}

func TestLease_ExpiredLeaseIsReclaimed(t *testing.T) {
	app, st := newSyncApp("http://unused")
	ctx := context.Background()

	// A stale holder whose expiry already passed.
	require.NoError(t, st.SetSetting(ctx, store.KeyRunLease, "1600000000"))

	acquired, err := app.acquireLease(ctx)
	require.NoError(t, err)
	require.True(t, acquired, "expired leases do not block")
}
