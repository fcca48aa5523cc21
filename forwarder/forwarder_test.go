package forwarder

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/store"
)

// fakeStore is a minimal in-memory double covering only what isSuperseded
// exercises; every other Store method is unreachable from this test.
type fakeStore struct {
	conversations map[kernel.ConversationKey]*store.Conversation
}

func newFakeStore() *fakeStore {
	return &fakeStore{conversations: make(map[kernel.ConversationKey]*store.Conversation)}
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
func (f *fakeStore) UpsertSession(ctx context.Context, s *store.Session) error           { return nil }
func (f *fakeStore) DeleteSession(ctx context.Context, villageID kernel.VillageID) error { return nil }
func (f *fakeStore) GetChannelAccount(ctx context.Context, villageID kernel.VillageID) (*store.ChannelAccount, error) {
	return nil, sql.ErrNoRows
}
func (f *fakeStore) ListChannelAccounts(ctx context.Context) ([]*store.ChannelAccount, error) {
	return nil, nil
}
func (f *fakeStore) UpsertChannelAccount(ctx context.Context, ca *store.ChannelAccount) error {
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
	conv, ok := f.conversations[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return conv, nil
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
func (f *fakeStore) Ping(ctx context.Context) error                             { return nil }

var _ store.Store = (*fakeStore)(nil)

func testKey() kernel.ConversationKey {
	return kernel.ConversationKey{
		VillageID:         "v1",
		Channel:           kernel.ChannelWhatsApp,
		ChannelIdentifier: "62811122333",
	}
}

func TestIsSuperseded_TrueWhenReplyIsForAnOlderMessage(t *testing.T) {
	fs := newFakeStore()
	key := testKey()
	fs.conversations[key] = &store.Conversation{
		PendingMessageID: sql.NullString{String: "m2", Valid: true},
	}

	fwd := &Forwarder{store: fs}

	assert.True(t, fwd.isSuperseded(context.Background(), key, "m1", nil))
}

func TestIsSuperseded_FalseWhenReplyMatchesCurrentPending(t *testing.T) {
	fs := newFakeStore()
	key := testKey()
	fs.conversations[key] = &store.Conversation{
		PendingMessageID: sql.NullString{String: "m1", Valid: true},
	}

	fwd := &Forwarder{store: fs}

	assert.False(t, fwd.isSuperseded(context.Background(), key, "m1", nil))
}

func TestIsSuperseded_FalseWhenReplyIsInBatchedIDs(t *testing.T) {
	fs := newFakeStore()
	key := testKey()
	fs.conversations[key] = &store.Conversation{
		PendingMessageID: sql.NullString{String: "m3", Valid: true},
	}

	fwd := &Forwarder{store: fs}

	assert.False(t, fwd.isSuperseded(context.Background(), key, "m1", []string{"m2", "m3"}))
}

func TestIsSuperseded_FalseWhenConversationHasNoPendingMessage(t *testing.T) {
	fs := newFakeStore()
	key := testKey()
	fs.conversations[key] = &store.Conversation{}

	fwd := &Forwarder{store: fs}

	assert.False(t, fwd.isSuperseded(context.Background(), key, "m1", nil))
}

func TestIsSuperseded_FalseWhenConversationLookupFails(t *testing.T) {
	fs := newFakeStore()
	fwd := &Forwarder{store: fs}

	assert.False(t, fwd.isSuperseded(context.Background(), testKey(), "m1", nil))
}
