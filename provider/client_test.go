package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mygads/govconnect-channelgateway/circuithttp"
	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedResolver(token string) TokenResolver {
	return func(ctx context.Context, villageID kernel.VillageID) (string, *ProviderError) {
		return token, nil
	}
}

func failingResolver(perr *ProviderError) TokenResolver {
	return func(ctx context.Context, villageID kernel.VillageID) (string, *ProviderError) {
		return "", perr
	}
}

func TestSendText_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/send/text", r.URL.Path)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message_id": "msg-1"})
	}))
	defer srv.Close()

	cfg := config.ProviderConfig{GatewayBaseURL: srv.URL}
	client := NewClient(cfg, fixedResolver("tok-123"))

	result := client.SendText(context.Background(), kernel.VillageID("v1"), "08111222333", "hello")
	require.True(t, result.OK)
	assert.Equal(t, "msg-1", result.Data)
}

func TestSendText_DryRun(t *testing.T) {
	cfg := config.ProviderConfig{DryRun: true, GatewayBaseURL: "http://unused.invalid"}
	client := NewClient(cfg, fixedResolver("tok-123"))

	result := client.SendText(context.Background(), kernel.VillageID("v1"), "08111222333", "hello")
	require.True(t, result.OK)
	assert.Contains(t, result.Data, "dryrun-")
}

func TestSendText_TokenResolutionFailure(t *testing.T) {
	cfg := config.ProviderConfig{GatewayBaseURL: "http://unused.invalid"}
	client := NewClient(cfg, failingResolver(configError("no token configured for village")))

	result := client.SendText(context.Background(), kernel.VillageID("v1"), "08111222333", "hello")
	require.False(t, result.OK)
	assert.Equal(t, TypeConfigError, result.Err.Type)
}

func TestSendText_AuthErrorFromProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"invalid token"}`))
	}))
	defer srv.Close()

	cfg := config.ProviderConfig{GatewayBaseURL: srv.URL}
	client := NewClient(cfg, fixedResolver("bad-token"))

	result := client.SendText(context.Background(), kernel.VillageID("v1"), "08111222333", "hello")
	require.False(t, result.OK)
	assert.Equal(t, TypeAuthError, result.Err.Type)
	assert.Equal(t, http.StatusUnauthorized, result.Err.StatusCode)
}

func TestProvisionUser_UsesSupportPlane(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		assert.Equal(t, "Bearer support-key", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(ProvisionUserResult{UserID: "u1", APIKey: "k1"})
	}))
	defer srv.Close()

	cfg := config.ProviderConfig{SupportBaseURL: srv.URL, SupportInternalKey: "support-key"}
	client := NewClient(cfg, fixedResolver("unused"))

	result := client.ProvisionUser(context.Background(), kernel.VillageID("v1"))
	require.True(t, result.OK)
	assert.Equal(t, "u1", result.Data.UserID)
	assert.Equal(t, "k1", result.Data.APIKey)
}

func TestStatus_NetworkError(t *testing.T) {
	cfg := config.ProviderConfig{GatewayBaseURL: "http://127.0.0.1:1"}
	client := NewClient(cfg, fixedResolver("tok"))

	fastFail := circuithttp.DefaultConfig("test-gateway")
	fastFail.Retries = 0
	fastFail.RequestTimeout = 500 * time.Millisecond
	client.gateway = circuithttp.New(fastFail)

	result := client.Status(context.Background(), kernel.VillageID("v1"))
	require.False(t, result.OK)
	assert.Equal(t, TypeNetworkError, result.Err.Type)
}
