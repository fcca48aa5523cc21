// Package store is the persistence layer (C1): composite-key upserts,
// FIFO-truncated message history, and the pending-message queue that
// Forwarder and SpamGuard drive the rest of the pipeline from.
package store

import (
	"context"
	"time"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

// ListMessagesOpts bounds a conversation history read.
type ListMessagesOpts struct {
	Limit int
}

// ListConversationsOpts paginates the conversation index.
type ListConversationsOpts struct {
	VillageID kernel.VillageID
	Filter    ConversationFilter
	Page      int
	PageSize  int
}

// ConversationPage is a page of conversations plus the total row count.
type ConversationPage struct {
	Items []*Conversation
	Total int
}

// Store is the full persistence surface the rest of the gateway is built
// on. A single Postgres-backed implementation satisfies it in production;
// tests may swap in an in-memory double.
type Store interface {
	// Session
	GetSession(ctx context.Context, villageID kernel.VillageID) (*Session, error)
	GetSessionByInstanceName(ctx context.Context, instanceName string) (*Session, error)
	FindConnectedSessionByNumber(ctx context.Context, waNumber string) (*Session, error)
	UpsertSession(ctx context.Context, s *Session) error
	DeleteSession(ctx context.Context, villageID kernel.VillageID) error

	// ChannelAccount
	GetChannelAccount(ctx context.Context, villageID kernel.VillageID) (*ChannelAccount, error)
	ListChannelAccounts(ctx context.Context) ([]*ChannelAccount, error)
	UpsertChannelAccount(ctx context.Context, ca *ChannelAccount) error

	// Message
	InsertMessage(ctx context.Context, msg *Message) (InsertOutcome, error)
	DeleteMessageByMessageID(ctx context.Context, key kernel.ConversationKey, messageID string) error
	ListMessages(ctx context.Context, key kernel.ConversationKey, opts ListMessagesOpts) ([]*Message, error)

	// Conversation
	UpsertConversationOnInbound(ctx context.Context, key kernel.ConversationKey, waUserID, lastMessage string, at time.Time) error
	UpsertConversationOnOutbound(ctx context.Context, key kernel.ConversationKey, lastMessage string, at time.Time) error
	SetConversationProfile(ctx context.Context, key kernel.ConversationKey, userName, userPhone string) error
	GetConversation(ctx context.Context, key kernel.ConversationKey) (*Conversation, error)
	ListConversations(ctx context.Context, opts ListConversationsOpts) (ConversationPage, error)
	MarkConversationRead(ctx context.Context, key kernel.ConversationKey) error
	SetConversationAIProcessing(ctx context.Context, key kernel.ConversationKey, pendingMessageID string) error
	SetConversationAIIdle(ctx context.Context, key kernel.ConversationKey) error
	SetConversationAIError(ctx context.Context, key kernel.ConversationKey, preview string) error
	SetConversationTakeover(ctx context.Context, key kernel.ConversationKey, isTakeover bool) error
	DeleteConversationCascade(ctx context.Context, key kernel.ConversationKey) error

	// TakeoverSession
	StartTakeover(ctx context.Context, t *TakeoverSession) error
	EndTakeover(ctx context.Context, key kernel.ConversationKey) error
	GetActiveTakeover(ctx context.Context, key kernel.ConversationKey) (*TakeoverSession, error)

	// PendingMessage
	CreatePendingMessage(ctx context.Context, p *PendingMessage) error
	GetPendingMessageByMessageID(ctx context.Context, messageID string) (*PendingMessage, error)
	GetLatestPendingForConversation(ctx context.Context, key kernel.ConversationKey) (*PendingMessage, error)
	MarkPendingProcessing(ctx context.Context, messageID string) error
	MarkPendingCompleted(ctx context.Context, messageIDs []string) error
	MarkPendingFailedOrRetry(ctx context.Context, messageIDs []string, errMsg string) error
	JanitorSweepPending(ctx context.Context, olderThan time.Duration) (int64, error)

	// SendLog
	InsertSendLog(ctx context.Context, s *SendLog) error
	GetSendLogForMessage(ctx context.Context, messageID string) ([]*SendLog, error)

	// Settings
	GetSettings(ctx context.Context, forceReload bool) (*Settings, error)
	UpdateSettings(ctx context.Context, s *Settings) error

	// Health
	Ping(ctx context.Context) error
}
