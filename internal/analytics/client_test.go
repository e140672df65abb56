package analytics

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(baseURL string, maxAttempts uint) *Client {
	return NewClient(Config{
		BaseURL:         baseURL,
		PollInterval:    time.Millisecond,
		ErrorBackoff:    time.Millisecond,
		MaxPollAttempts: maxAttempts,
	}, zap.NewNop())
}

func TestClient_AnalyseReturnsPollingURL(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]string{"result": "/poll/1"})
	}))
	defer server.Close()

	c := testClient(server.URL, 3)
	pollURL, err := c.Analyse(context.Background(), "area", "EC")
	require.NoError(t, err)
	require.Equal(t, "/api/v1/analyse/area/EC", gotPath)
	require.Equal(t, server.URL+"/poll/1", pollURL, "relative polling URLs resolve against the base")
}

func TestClient_AnalyseTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := testClient(server.URL, 3)
	_, err := c.Analyse(context.Background(), "area", "EC")
	require.ErrorIs(t, err, ErrTransport)
}

func TestClient_AwaitCompletion_PendingThenSuccess(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		status := "PENDING"
		if polls.Add(1) >= 3 {
			status = "SUCCESS"
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	}))
	defer server.Close()

	c := testClient(server.URL, 10)
	err := c.AwaitCompletion(context.Background(), server.URL+"/poll/1")
	require.NoError(t, err)
	require.Equal(t, int32(3), polls.Load())
}

func TestClient_AwaitCompletion_TransportErrorsRetried(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "SUCCESS"})
	}))
	defer server.Close()

	c := testClient(server.URL, 10)
	err := c.AwaitCompletion(context.Background(), server.URL+"/poll/1")
	require.NoError(t, err)
}

func TestClient_AwaitCompletion_AttemptBudgetExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "PENDING"})
	}))
	defer server.Close()

	c := testClient(server.URL, 3)
	err := c.AwaitCompletion(context.Background(), server.URL+"/poll/1")
	require.ErrorIs(t, err, ErrPending)
}

func TestClient_AwaitCompletion_ContextCancel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "PENDING"})
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := testClient(server.URL, 0)
	err := c.AwaitCompletion(ctx, server.URL+"/poll/1")
	require.Error(t, err)
}
