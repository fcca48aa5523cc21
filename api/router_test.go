package api

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mygads/govconnect-channelgateway/bus"
	"github.com/mygads/govconnect-channelgateway/ingest"
	"github.com/mygads/govconnect-channelgateway/livechat"
	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/sessionmgr"
	"github.com/mygads/govconnect-channelgateway/spamguard"
	"github.com/mygads/govconnect-channelgateway/store"
)

// fakeStore is a minimal in-memory double covering only what the router's
// handlers exercise; every other Store method is unreachable from these
// tests.
type fakeStore struct {
	messages map[kernel.ConversationKey][]*store.Message
	accounts map[kernel.VillageID]*store.ChannelAccount
	pingErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		messages: make(map[kernel.ConversationKey][]*store.Message),
		accounts: make(map[kernel.VillageID]*store.ChannelAccount),
	}
}

func (f *fakeStore) GetSession(ctx context.Context, villageID kernel.VillageID) (*store.Session, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) GetSessionByInstanceName(ctx context.Context, instanceName string) (*store.Session, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) FindConnectedSessionByNumber(ctx context.Context, waNumber string) (*store.Session, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) UpsertSession(ctx context.Context, s *store.Session) error         { return nil }
func (f *fakeStore) DeleteSession(ctx context.Context, villageID kernel.VillageID) error { return nil }
func (f *fakeStore) GetChannelAccount(ctx context.Context, villageID kernel.VillageID) (*store.ChannelAccount, error) {
	ca, ok := f.accounts[villageID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ca, nil
}
func (f *fakeStore) ListChannelAccounts(ctx context.Context) ([]*store.ChannelAccount, error) {
	out := make([]*store.ChannelAccount, 0, len(f.accounts))
	for _, ca := range f.accounts {
		out = append(out, ca)
	}
	return out, nil
}
func (f *fakeStore) UpsertChannelAccount(ctx context.Context, ca *store.ChannelAccount) error {
	f.accounts[ca.VillageID] = ca
	return nil
}
func (f *fakeStore) InsertMessage(ctx context.Context, msg *store.Message) (store.InsertOutcome, error) {
	key := kernel.ConversationKey{VillageID: msg.VillageID, Channel: msg.Channel, ChannelIdentifier: kernel.ChannelIdentifier(msg.ChannelIdentifier)}
	f.messages[key] = append(f.messages[key], msg)
	return store.Inserted, nil
}
func (f *fakeStore) DeleteMessageByMessageID(ctx context.Context, key kernel.ConversationKey, messageID string) error {
	return nil
}
func (f *fakeStore) ListMessages(ctx context.Context, key kernel.ConversationKey, opts store.ListMessagesOpts) ([]*store.Message, error) {
	return f.messages[key], nil
}
func (f *fakeStore) UpsertConversationOnInbound(ctx context.Context, key kernel.ConversationKey, waUserID, lastMessage string, at time.Time) error {
	return nil
}
func (f *fakeStore) UpsertConversationOnOutbound(ctx context.Context, key kernel.ConversationKey, lastMessage string, at time.Time) error {
	return nil
}
func (f *fakeStore) SetConversationProfile(ctx context.Context, key kernel.ConversationKey, userName, userPhone string) error {
	return nil
}
func (f *fakeStore) GetConversation(ctx context.Context, key kernel.ConversationKey) (*store.Conversation, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) ListConversations(ctx context.Context, opts store.ListConversationsOpts) (store.ConversationPage, error) {
	return store.ConversationPage{}, nil
}
func (f *fakeStore) MarkConversationRead(ctx context.Context, key kernel.ConversationKey) error {
	return nil
}
func (f *fakeStore) SetConversationAIProcessing(ctx context.Context, key kernel.ConversationKey, pendingMessageID string) error {
	return nil
}
func (f *fakeStore) SetConversationAIIdle(ctx context.Context, key kernel.ConversationKey) error {
	return nil
}
func (f *fakeStore) SetConversationAIError(ctx context.Context, key kernel.ConversationKey, preview string) error {
	return nil
}
func (f *fakeStore) SetConversationTakeover(ctx context.Context, key kernel.ConversationKey, isTakeover bool) error {
	return nil
}
func (f *fakeStore) DeleteConversationCascade(ctx context.Context, key kernel.ConversationKey) error {
	return nil
}
func (f *fakeStore) StartTakeover(ctx context.Context, t *store.TakeoverSession) error { return nil }
func (f *fakeStore) EndTakeover(ctx context.Context, key kernel.ConversationKey) error { return nil }
func (f *fakeStore) GetActiveTakeover(ctx context.Context, key kernel.ConversationKey) (*store.TakeoverSession, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) CreatePendingMessage(ctx context.Context, p *store.PendingMessage) error {
	return nil
}
func (f *fakeStore) GetPendingMessageByMessageID(ctx context.Context, messageID string) (*store.PendingMessage, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) GetLatestPendingForConversation(ctx context.Context, key kernel.ConversationKey) (*store.PendingMessage, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) MarkPendingProcessing(ctx context.Context, messageID string) error { return nil }
func (f *fakeStore) MarkPendingCompleted(ctx context.Context, messageIDs []string) error {
	return nil
}
func (f *fakeStore) MarkPendingFailedOrRetry(ctx context.Context, messageIDs []string, errMsg string) error {
	return nil
}
func (f *fakeStore) JanitorSweepPending(ctx context.Context, olderThan time.Duration) (int64, error) {
	return 0, nil
}
func (f *fakeStore) InsertSendLog(ctx context.Context, s *store.SendLog) error { return nil }
func (f *fakeStore) GetSendLogForMessage(ctx context.Context, messageID string) ([]*store.SendLog, error) {
	return nil, nil
}
func (f *fakeStore) GetSettings(ctx context.Context, forceReload bool) (*store.Settings, error) {
	return &store.Settings{ID: store.DefaultSettingsID}, nil
}
func (f *fakeStore) UpdateSettings(ctx context.Context, s *store.Settings) error { return nil }
func (f *fakeStore) Ping(ctx context.Context) error                             { return f.pingErr }

var _ store.Store = (*fakeStore)(nil)

type stubForwarder struct{}

func (stubForwarder) Forward(ctx context.Context, key kernel.ConversationKey, pendingMessageID string, decision spamguard.Decision) error {
	return nil
}

func (stubForwarder) Republish(ctx context.Context, key kernel.ConversationKey, pending *store.PendingMessage) error {
	return nil
}

func newTestDependencies(t *testing.T, fs *fakeStore) *Dependencies {
	t.Helper()

	pc := provider.NewClient(config.ProviderConfig{}, func(ctx context.Context, villageID kernel.VillageID) (string, *provider.ProviderError) {
		return "test-token", nil
	})
	guard := spamguard.New(spamguard.Config{})
	ingestSvc := ingest.NewService(fs, guard, nil, stubForwarder{}, kernel.UnknownVillageID)
	ingestHandler := ingest.NewHandler(ingestSvc, "verify-token")
	sessionMgr := sessionmgr.NewManager(fs, pc, nil, config.ProviderConfig{}, "https://gateway.test.invalid")
	liveChat := livechat.NewService(fs, pc, stubForwarder{})

	return &Dependencies{
		Store:      fs,
		Bus:        bus.NewClient(config.BusConfig{}, "amqp://unused"),
		Provider:   pc,
		SessionMgr: sessionMgr,
		Ingest:     ingestHandler,
		LiveChat:   liveChat,
		Media:      nil,
		Internal:   config.InternalConfig{APIKey: "secret-key"},
	}
}

func testApp(t *testing.T, fs *fakeStore) *fiber.App {
	t.Helper()
	deps := newTestDependencies(t, fs)
	cfg := &config.Config{Server: config.ServerConfig{Environment: "test"}}
	return NewApp(cfg, deps)
}

// The bus client in these tests never dials a real broker, so IsConnected
// always reports false and the aggregate health check never reaches
// "healthy" — these tests exercise the per-check reporting instead of the
// overall status code.

func TestHealth_ReportsDatabaseCheckTrueWhenStoreIsUp(t *testing.T) {
	app := testApp(t, newFakeStore())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"database":true`)
	assert.Contains(t, string(body), `"bus":false`)
}

func TestHealth_ReportsDatabaseCheckFalseWhenStoreIsDown(t *testing.T) {
	fs := newFakeStore()
	fs.pingErr = sql.ErrConnDone
	app := testApp(t, fs)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"database":false`)
}

func TestInternalRoutes_RejectMissingAPIKey(t *testing.T) {
	app := testApp(t, newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/internal/messages?village_id=v1&channel_identifier=user-1", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestInternalRoutes_AcceptCorrectAPIKey(t *testing.T) {
	fs := newFakeStore()
	key := kernel.ConversationKey{VillageID: "v1", Channel: kernel.ChannelWhatsApp, ChannelIdentifier: "user-1"}
	fs.messages[key] = []*store.Message{{MessageID: "m1", MessageText: "hi"}}
	app := testApp(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/internal/messages?village_id=v1&channel_identifier=user-1", nil)
	req.Header.Set("X-Internal-API-Key", "secret-key")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListChannelAccounts_ReturnsUpsertedRows(t *testing.T) {
	fs := newFakeStore()
	fs.accounts["v1"] = &store.ChannelAccount{VillageID: "v1"}
	app := testApp(t, fs)

	req := httptest.NewRequest(http.MethodGet, "/internal/channel-accounts", nil)
	req.Header.Set("X-Internal-API-Key", "secret-key")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), `"v1"`)
}

func TestUnknownRoute_Returns404(t *testing.T) {
	app := testApp(t, newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/internal/does-not-exist", nil)
	req.Header.Set("X-Internal-API-Key", "secret-key")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
