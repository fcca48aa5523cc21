package sessionmgr

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/store"
)

// fakeStore is a minimal in-memory double covering only what Manager
// exercises; every other Store method is unreachable from these tests.
type fakeStore struct {
	sessions        map[kernel.VillageID]*store.Session
	channelAccounts map[kernel.VillageID]*store.ChannelAccount
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions:        make(map[kernel.VillageID]*store.Session),
		channelAccounts: make(map[kernel.VillageID]*store.ChannelAccount),
	}
}

func (f *fakeStore) GetSession(ctx context.Context, villageID kernel.VillageID) (*store.Session, error) {
	s, ok := f.sessions[villageID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return s, nil
}
func (f *fakeStore) GetSessionByInstanceName(ctx context.Context, instanceName string) (*store.Session, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) FindConnectedSessionByNumber(ctx context.Context, waNumber string) (*store.Session, error) {
	for _, s := range f.sessions {
		if s.WANumber.Valid && s.WANumber.String == waNumber && s.Status.Valid && s.Status.String == store.SessionStatusConnected {
			return s, nil
		}
	}
	return nil, sql.ErrNoRows
}
func (f *fakeStore) UpsertSession(ctx context.Context, s *store.Session) error {
	f.sessions[s.VillageID] = s
	return nil
}
func (f *fakeStore) DeleteSession(ctx context.Context, villageID kernel.VillageID) error {
	delete(f.sessions, villageID)
	return nil
}
func (f *fakeStore) GetChannelAccount(ctx context.Context, villageID kernel.VillageID) (*store.ChannelAccount, error) {
	ca, ok := f.channelAccounts[villageID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return ca, nil
}
func (f *fakeStore) ListChannelAccounts(ctx context.Context) ([]*store.ChannelAccount, error) { return nil, nil }
func (f *fakeStore) UpsertChannelAccount(ctx context.Context, ca *store.ChannelAccount) error {
	f.channelAccounts[ca.VillageID] = ca
	return nil
}
func (f *fakeStore) InsertMessage(ctx context.Context, msg *store.Message) (store.InsertOutcome, error) {
	return store.Inserted, nil
}
func (f *fakeStore) DeleteMessageByMessageID(ctx context.Context, key kernel.ConversationKey, messageID string) error {
	return nil
}
func (f *fakeStore) ListMessages(ctx context.Context, key kernel.ConversationKey, opts store.ListMessagesOpts) ([]*store.Message, error) {
	return nil, nil
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
func (f *fakeStore) MarkConversationRead(ctx context.Context, key kernel.ConversationKey) error { return nil }
func (f *fakeStore) SetConversationAIProcessing(ctx context.Context, key kernel.ConversationKey, pendingMessageID string) error {
	return nil
}
func (f *fakeStore) SetConversationAIIdle(ctx context.Context, key kernel.ConversationKey) error { return nil }
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
func (f *fakeStore) CreatePendingMessage(ctx context.Context, p *store.PendingMessage) error { return nil }
func (f *fakeStore) GetPendingMessageByMessageID(ctx context.Context, messageID string) (*store.PendingMessage, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) GetLatestPendingForConversation(ctx context.Context, key kernel.ConversationKey) (*store.PendingMessage, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) MarkPendingProcessing(ctx context.Context, messageID string) error { return nil }
func (f *fakeStore) MarkPendingCompleted(ctx context.Context, messageIDs []string) error { return nil }
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
func (f *fakeStore) Ping(ctx context.Context) error                             { return nil }

var _ store.Store = (*fakeStore)(nil)

func TestCheckDuplicate_FindsDifferentConnectedVillage(t *testing.T) {
	fs := newFakeStore()
	fs.sessions["v2"] = &store.Session{
		VillageID: "v2",
		WANumber:  sql.NullString{String: "628111222333", Valid: true},
		Status:    sql.NullString{String: store.SessionStatusConnected, Valid: true},
	}

	m := NewManager(fs, provider.NewClient(config.ProviderConfig{}, fixedResolverFor(fs)), nil, config.ProviderConfig{}, "")
	conflict, found, err := m.CheckDuplicate(context.Background(), "v1", "628111222333")

	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, kernel.VillageID("v2"), conflict)
}

func TestCheckDuplicate_NoConflictForSameVillage(t *testing.T) {
	fs := newFakeStore()
	fs.sessions["v1"] = &store.Session{
		VillageID: "v1",
		WANumber:  sql.NullString{String: "628111222333", Valid: true},
		Status:    sql.NullString{String: store.SessionStatusConnected, Valid: true},
	}

	m := NewManager(fs, provider.NewClient(config.ProviderConfig{}, fixedResolverFor(fs)), nil, config.ProviderConfig{}, "")
	_, found, err := m.CheckDuplicate(context.Background(), "v1", "628111222333")

	require.NoError(t, err)
	assert.False(t, found)
}

func TestConnect_RefusesWhenNumberAlreadyConnectedOnAnotherVillage(t *testing.T) {
	var disconnectCalled bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/connect":
			w.WriteHeader(http.StatusOK)
		case "/session/status":
			json.NewEncoder(w).Encode(provider.SessionStatus{JID: "628111222333@s.whatsapp.net", Connected: true})
		case "/session/disconnect":
			disconnectCalled = true
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fs := newFakeStore()
	fs.sessions["v1"] = &store.Session{VillageID: "v1", ProviderToken: sql.NullString{String: "tok", Valid: true}}
	fs.sessions["v2"] = &store.Session{
		VillageID: "v2",
		WANumber:  sql.NullString{String: "628111222333", Valid: true},
		Status:    sql.NullString{String: store.SessionStatusConnected, Valid: true},
	}

	cfg := config.ProviderConfig{GatewayBaseURL: srv.URL}
	pc := provider.NewClient(cfg, fixedResolverFor(fs))
	m := NewManager(fs, pc, nil, cfg, "")

	err := m.Connect(context.Background(), "v1")

	require.Error(t, err)
	assert.True(t, disconnectCalled, "expected the hijacking village to be disconnected again")
	assert.Equal(t, store.SessionStatusDisconnected, fs.sessions["v1"].Status.String)
}

func TestConnect_SucceedsWhenNumberIsUnclaimed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/session/connect":
			w.WriteHeader(http.StatusOK)
		case "/session/status":
			json.NewEncoder(w).Encode(provider.SessionStatus{JID: "628111222333@s.whatsapp.net", Connected: true})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fs := newFakeStore()
	fs.sessions["v1"] = &store.Session{VillageID: "v1", ProviderToken: sql.NullString{String: "tok", Valid: true}}

	cfg := config.ProviderConfig{GatewayBaseURL: srv.URL}
	pc := provider.NewClient(cfg, fixedResolverFor(fs))
	m := NewManager(fs, pc, nil, cfg, "")

	err := m.Connect(context.Background(), "v1")

	require.NoError(t, err)
	assert.Equal(t, store.SessionStatusConnected, fs.sessions["v1"].Status.String)
}

func fixedResolverFor(fs *fakeStore) provider.TokenResolver {
	return func(ctx context.Context, villageID kernel.VillageID) (string, *provider.ProviderError) {
		s, ok := fs.sessions[villageID]
		if !ok || !s.ProviderToken.Valid {
			return "", &provider.ProviderError{Type: provider.TypeConfigError, Message: "no token"}
		}
		return s.ProviderToken.String, nil
	}
}

func TestManager_Create_ProvisionsSessionEndToEnd(t *testing.T) {
	var capturedBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/users":
			json.NewEncoder(w).Encode(provider.ProvisionUserResult{UserID: "u1", APIKey: "k1"})
		case r.URL.Path == "/sessions":
			capturedBody, _ = io.ReadAll(r.Body)
			json.NewEncoder(w).Encode(provider.CreateSessionResult{Token: "tok-1", SupportSessionID: "ss-1"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	fs := newFakeStore()
	cfg := config.ProviderConfig{SupportBaseURL: srv.URL, GatewayBaseURL: "http://unused.invalid"}
	pc := provider.NewClient(cfg, fixedResolverFor(fs))
	m := NewManager(fs, pc, nil, cfg, "https://gateway.example.gov")

	session, err := m.Create(context.Background(), "v1", "admin-1", "village-one")

	require.NoError(t, err)
	assert.Equal(t, "tok-1", session.ProviderToken.String)
	assert.Equal(t, "ss-1", session.SupportSessionID.String)
	assert.Equal(t, "k1", session.SupportAPIKey.String)
	assert.Contains(t, string(capturedBody), `"https://gateway.example.gov/webhook"`)
}
