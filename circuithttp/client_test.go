package circuithttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := DefaultConfig("test-retry")
	cfg.RetryDelay = time.Millisecond
	cfg.Retries = 3
	cfg.FailureThreshold = 10
	client := New(cfg)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls)
}

func TestDo_FourxxNeverRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := New(DefaultConfig("test-4xx"))
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := client.Do(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, int32(1), calls)
}

func TestDo_BreakerOpensAfterThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := DefaultConfig("test-breaker")
	cfg.Retries = 0
	cfg.FailureThreshold = 2
	cfg.ResetTimeout = time.Hour
	client := New(cfg)

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	for i := 0; i < 2; i++ {
		_, err := client.Do(context.Background(), req)
		require.Error(t, err)
	}

	_, err := client.Do(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, "open", client.State())
}
