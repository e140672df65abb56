package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/landreg/housesync/internal/analytics"
	"github.com/landreg/housesync/internal/model"
	"github.com/landreg/housesync/internal/store"
)

// analyticsStub fakes the external aggregation service: every trigger
// hands out a polling URL that reports PENDING once, then SUCCESS.
type analyticsStub struct {
	mu       sync.Mutex
	triggers []string
	polls    map[string]int
}

func newAnalyticsStub() *analyticsStub {
	return &analyticsStub{polls: map[string]int{}}
}

func (s *analyticsStub) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if strings.HasPrefix(r.URL.Path, "/api/v1/analyse/") {
			target := strings.TrimPrefix(r.URL.Path, "/api/v1/analyse/")
			s.triggers = append(s.triggers, target)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"result": fmt.Sprintf("/poll/%d", len(s.triggers)),
			})
			return
		}
		if strings.HasPrefix(r.URL.Path, "/poll/") {
			s.polls[r.URL.Path]++
			status := "PENDING"
			if s.polls[r.URL.Path] > 1 {
				status = "SUCCESS"
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
			return
		}
		http.NotFound(w, r)
	})
}

func (s *analyticsStub) triggered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.triggers))
	copy(out, s.triggers)
	return out
}

func newTestOrchestrator(t *testing.T, st store.Store, baseURL string) *Orchestrator {
	t.Helper()
	client := analytics.NewClient(analytics.Config{
		BaseURL:         baseURL,
		PollInterval:    time.Millisecond,
		ErrorBackoff:    time.Millisecond,
		MaxPollAttempts: 5,
	}, zap.NewNop())

	o := NewOrchestrator(st, client, zap.NewNop(), nil)
	o.now = func() time.Time { return time.Unix(1700000000, 0) }
	return o
}

func seedAreas(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	err := st.Apply(ctx, model.RecordMutation{Areas: []model.Area{
		{AreaType: "area", Area: "EC"},
		{AreaType: "area", Area: "SW"},
		{AreaType: "county", Area: "GREATER LONDON"},
		{AreaType: "outcode", Area: "EC1A"},
	}})
	require.NoError(t, err)
}

func TestOrchestrator_GatingWithoutUpdate(t *testing.T) {
	stub := newAnalyticsStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	st := store.NewMemoryStore()
	seedAreas(t, st)
	o := newTestOrchestrator(t, st, server.URL)

	// No update_hash / last_updated yet: the gate holds.
	require.NoError(t, o.Run(context.Background()))
	require.Empty(t, stub.triggered(), "no HTTP calls before the gate opens")
}

func TestOrchestrator_GatingEqualTimestamps(t *testing.T) {
	stub := newAnalyticsStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAreas(t, st)
	require.NoError(t, st.SetSetting(ctx, store.KeyUpdateHash, "abc"))
	require.NoError(t, st.SetSetting(ctx, store.KeyLastUpdated, "100"))
	require.NoError(t, st.SetSetting(ctx, store.KeyLastAggregated, "100"))

	o := newTestOrchestrator(t, st, server.URL)
	require.NoError(t, o.Run(ctx))
	require.Empty(t, stub.triggered(), "equal timestamps never reach DUE")
}

func TestOrchestrator_SkipsWhenAlreadyAggregating(t *testing.T) {
	stub := newAnalyticsStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAreas(t, st)
	require.NoError(t, st.SetSetting(ctx, store.KeyUpdateHash, "abc"))
	require.NoError(t, st.SetSetting(ctx, store.KeyLastUpdated, "100"))
	require.NoError(t, st.SetSetting(ctx, store.KeyAggregatingCounties, "true"))

	o := newTestOrchestrator(t, st, server.URL)
	require.NoError(t, o.Run(ctx))
	require.Empty(t, stub.triggered(), "duplicate aggregation runs are skipped")
}

func TestOrchestrator_FullRun(t *testing.T) {
	stub := newAnalyticsStub()
	server := httptest.NewServer(stub.handler())
	defer server.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAreas(t, st)
	require.NoError(t, st.SetSetting(ctx, store.KeyUpdateHash, "abc"))
	require.NoError(t, st.SetSetting(ctx, store.KeyLastUpdated, "100"))

	o := newTestOrchestrator(t, st, server.URL)
	require.NoError(t, o.Run(ctx))

	// Areas first, then counties, then the country-wide run, each
	// polled to completion before the next is triggered.
	require.Equal(t, []string{
		"area/EC",
		"area/SW",
		"county/GREATER LONDON",
		"COUNTRY/ALL",
	}, stub.triggered())

	lastAggregated, ok, err := st.Setting(ctx, store.KeyLastAggregated)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1700000000", lastAggregated)

	aggregating, ok, err := st.Setting(ctx, store.KeyAggregatingCounties)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "false", aggregating)
}

func TestOrchestrator_FailureClearsFlagForRetry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/v1/analyse/") {
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "/poll/1"})
			return
		}
		// Polling always fails at the transport level.
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	ctx := context.Background()
	st := store.NewMemoryStore()
	seedAreas(t, st)
	require.NoError(t, st.SetSetting(ctx, store.KeyUpdateHash, "abc"))
	require.NoError(t, st.SetSetting(ctx, store.KeyLastUpdated, "100"))

	o := newTestOrchestrator(t, st, server.URL)
	err := o.Run(ctx)
	require.ErrorIs(t, err, analytics.ErrTransport)

	aggregating, _, err2 := st.Setting(ctx, store.KeyAggregatingCounties)
	require.NoError(t, err2)
	require.Equal(t, "false", aggregating, "a failed run must not lock out the next one")

	_, ok, err2 := st.Setting(ctx, store.KeyLastAggregated)
	require.NoError(t, err2)
	require.True(t, ok)
	lastAggregated, _, _ := st.Setting(ctx, store.KeyLastAggregated)
	require.Equal(t, "0", lastAggregated, "timestamp only advances on success")
}
