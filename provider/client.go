package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Abraxas-365/craftable/logx"
	"github.com/google/uuid"
	"github.com/mygads/govconnect-channelgateway/circuithttp"
	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

// TokenResolver implements spec.md §4.2's token-resolution chain: session
// by village_id, then by instance_name, then the channel account's
// reserved token; CONFIG_ERROR if none exists. Concrete lookups live in
// sessionmgr so this package has no direct store dependency.
type TokenResolver func(ctx context.Context, villageID kernel.VillageID) (string, *ProviderError)

// Client is the typed client for both the support plane and the gateway
// plane (spec.md §4.2), grounded on waa_adapter.go's HTTP send shape.
type Client struct {
	cfg          config.ProviderConfig
	gateway      *circuithttp.Client
	support      *circuithttp.Client
	resolveToken TokenResolver
}

func NewClient(cfg config.ProviderConfig, resolveToken TokenResolver) *Client {
	gwCfg := circuithttp.DefaultConfig("provider-gateway")
	gwCfg.RequestTimeout = cfg.RequestTimeout

	supportCfg := circuithttp.DefaultConfig("provider-support")
	supportCfg.RequestTimeout = cfg.SessionOpTimeout

	return &Client{
		cfg:          cfg,
		gateway:      circuithttp.New(gwCfg),
		support:      circuithttp.New(supportCfg),
		resolveToken: resolveToken,
	}
}

// ============================================================================
// Gateway plane (session-token authenticated)
// ============================================================================

func (c *Client) SendText(ctx context.Context, villageID kernel.VillageID, phone, text string) Result[string] {
	if c.cfg.DryRun {
		return Ok("dryrun-" + uuid.NewString())
	}

	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[string](perr)
	}

	body := map[string]any{"Phone": NormalizePhone(phone), "Message": text}
	var out struct {
		MessageID string `json:"message_id"`
	}
	if perr := c.gatewayCall(ctx, http.MethodPost, "/send/text", token, body, &out); perr != nil {
		return Fail[string](perr)
	}
	return Ok(out.MessageID)
}

func (c *Client) SendVCard(ctx context.Context, villageID kernel.VillageID, phone, contactName, contactPhone string) Result[string] {
	if c.cfg.DryRun {
		return Ok("dryrun-" + uuid.NewString())
	}

	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[string](perr)
	}

	body := map[string]any{"Phone": NormalizePhone(phone), "Vcard": BuildVCard(contactName, contactPhone)}
	var out struct {
		MessageID string `json:"message_id"`
	}
	if perr := c.gatewayCall(ctx, http.MethodPost, "/send/contact", token, body, &out); perr != nil {
		return Fail[string](perr)
	}
	return Ok(out.MessageID)
}

func (c *Client) MarkRead(ctx context.Context, villageID kernel.VillageID, phone string, messageIDs []string) Result[struct{}] {
	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[struct{}](perr)
	}
	body := map[string]any{"Phone": NormalizePhone(phone), "MessageIds": messageIDs}
	if perr := c.gatewayCall(ctx, http.MethodPost, "/chat/markread", token, body, nil); perr != nil {
		return Fail[struct{}](perr)
	}
	return Ok(struct{}{})
}

func (c *Client) SetPresence(ctx context.Context, villageID kernel.VillageID, phone, state string) Result[struct{}] {
	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[struct{}](perr)
	}
	body := map[string]any{"Phone": NormalizePhone(phone), "State": state}
	if perr := c.gatewayCall(ctx, http.MethodPost, "/chat/presence", token, body, nil); perr != nil {
		return Fail[struct{}](perr)
	}
	return Ok(struct{}{})
}

func (c *Client) GetQR(ctx context.Context, villageID kernel.VillageID) Result[QRResult] {
	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[QRResult](perr)
	}
	var out QRResult
	if perr := c.gatewayCall(ctx, http.MethodGet, "/session/qr", token, nil, &out); perr != nil {
		return Fail[QRResult](perr)
	}
	return Ok(out)
}

func (c *Client) PairPhone(ctx context.Context, villageID kernel.VillageID, phone string) Result[string] {
	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[string](perr)
	}
	var out struct {
		Code string `json:"code"`
	}
	body := map[string]any{"Phone": NormalizePhone(phone)}
	if perr := c.gatewayCall(ctx, http.MethodPost, "/session/pairphone", token, body, &out); perr != nil {
		return Fail[string](perr)
	}
	return Ok(out.Code)
}

func (c *Client) Connect(ctx context.Context, villageID kernel.VillageID) Result[struct{}] {
	return c.lifecycleCall(ctx, villageID, "/session/connect")
}

func (c *Client) Disconnect(ctx context.Context, villageID kernel.VillageID) Result[struct{}] {
	return c.lifecycleCall(ctx, villageID, "/session/disconnect")
}

func (c *Client) Logout(ctx context.Context, villageID kernel.VillageID) Result[struct{}] {
	return c.lifecycleCall(ctx, villageID, "/session/logout")
}

func (c *Client) lifecycleCall(ctx context.Context, villageID kernel.VillageID, path string) Result[struct{}] {
	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[struct{}](perr)
	}
	if perr := c.gatewayCall(ctx, http.MethodPost, path, token, nil, nil); perr != nil {
		return Fail[struct{}](perr)
	}
	return Ok(struct{}{})
}

func (c *Client) Status(ctx context.Context, villageID kernel.VillageID) Result[SessionStatus] {
	token, perr := c.resolveToken(ctx, villageID)
	if perr != nil {
		return Fail[SessionStatus](perr)
	}
	var out SessionStatus
	if perr := c.gatewayCall(ctx, http.MethodGet, "/session/status", token, nil, &out); perr != nil {
		return Fail[SessionStatus](perr)
	}
	return Ok(out)
}

// ============================================================================
// Support plane (customer-API-key authenticated)
// ============================================================================

func (c *Client) ProvisionUser(ctx context.Context, villageID kernel.VillageID) Result[ProvisionUserResult] {
	var out ProvisionUserResult
	body := map[string]any{"village_id": villageID.String()}
	if perr := c.supportCall(ctx, http.MethodPost, "/users", body, &out); perr != nil {
		return Fail[ProvisionUserResult](perr)
	}
	return Ok(out)
}

func (c *Client) RotateAPIKey(ctx context.Context, userID string) Result[string] {
	var out struct {
		APIKey string `json:"api_key"`
	}
	if perr := c.supportCall(ctx, http.MethodPost, fmt.Sprintf("/users/%s/rotate-key", userID), nil, &out); perr != nil {
		return Fail[string](perr)
	}
	return Ok(out.APIKey)
}

func (c *Client) CreateSession(ctx context.Context, params CreateSessionParams) Result[CreateSessionResult] {
	var out CreateSessionResult
	if perr := c.supportCall(ctx, http.MethodPost, "/sessions", params, &out); perr != nil {
		return Fail[CreateSessionResult](perr)
	}
	return Ok(out)
}

func (c *Client) DeleteSupportSession(ctx context.Context, supportSessionID string) Result[struct{}] {
	if perr := c.supportCall(ctx, http.MethodDelete, "/sessions/"+supportSessionID, nil, nil); perr != nil {
		return Fail[struct{}](perr)
	}
	return Ok(struct{}{})
}

func (c *Client) FetchSessionSettings(ctx context.Context, supportSessionID string) Result[map[string]any] {
	var out map[string]any
	if perr := c.supportCall(ctx, http.MethodGet, "/sessions/"+supportSessionID+"/settings", nil, &out); perr != nil {
		return Fail[map[string]any](perr)
	}
	return Ok(out)
}

// GatewayBreakerState and SupportBreakerState expose each control plane's
// circuit state for the health endpoint.
func (c *Client) GatewayBreakerState() string { return c.gateway.State() }
func (c *Client) SupportBreakerState() string { return c.support.State() }

// ============================================================================
// HTTP plumbing
// ============================================================================

func (c *Client) gatewayCall(ctx context.Context, method, path, token string, body any, out any) *ProviderError {
	return c.call(ctx, c.gateway, c.cfg.GatewayBaseURL+path, method, token, body, out)
}

func (c *Client) supportCall(ctx context.Context, method, path string, body any, out any) *ProviderError {
	return c.call(ctx, c.support, c.cfg.SupportBaseURL+path, method, c.cfg.SupportInternalKey, body, out)
}

func (c *Client) call(ctx context.Context, client *circuithttp.Client, url, method, token string, body any, out any) *ProviderError {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &ProviderError{Type: TypeValidation, Message: err.Error()}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return &ProviderError{Type: TypeValidation, Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(ctx, req)
	if err != nil && resp == nil {
		if _, ok := err.(interface{ Error() string }); ok {
			logx.Error("provider call failed: %v", err)
		}
		return toProviderError(err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		return errorForStatus(resp.StatusCode, string(data))
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return &ProviderError{Type: TypeServerError, Message: "failed to decode provider response: " + err.Error()}
		}
	}

	return nil
}

func toProviderError(err error) *ProviderError {
	if perr, ok := err.(*ProviderError); ok {
		return perr
	}
	return networkError(err)
}
