// Package livechat is the admin-facing conversation surface (C9):
// listing, detail, the takeover lifecycle, and the admin send/retry
// operations wired in front of the same store and provider the
// automated pipeline uses.
package livechat

import (
	"context"
	"time"

	"github.com/Abraxas-365/craftable/logx"
	"github.com/google/uuid"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/store"
)

// Republisher is the narrow surface livechat needs from the forwarder to
// retry a stuck AI request.
type Republisher interface {
	Republish(ctx context.Context, key kernel.ConversationKey, pending *store.PendingMessage) error
}

// ConversationDetail bundles a conversation with its recent history and
// any active takeover.
type ConversationDetail struct {
	Conversation *store.Conversation
	Messages     []*store.Message
	Takeover     *store.TakeoverSession
}

const detailMessageLimit = 50

type Service struct {
	store     store.Store
	provider  *provider.Client
	forwarder Republisher
}

func NewService(st store.Store, pc *provider.Client, fwd Republisher) *Service {
	return &Service{store: st, provider: pc, forwarder: fwd}
}

func (s *Service) Conversations(ctx context.Context, opts store.ListConversationsOpts) (store.ConversationPage, error) {
	return s.store.ListConversations(ctx, opts)
}

func (s *Service) Conversation(ctx context.Context, key kernel.ConversationKey) (*ConversationDetail, error) {
	conv, err := s.store.GetConversation(ctx, key)
	if err != nil {
		return nil, ErrConversationNotFound(key.String())
	}

	messages, err := s.store.ListMessages(ctx, key, store.ListMessagesOpts{Limit: detailMessageLimit})
	if err != nil {
		return nil, err
	}

	takeover, _ := s.store.GetActiveTakeover(ctx, key)

	if err := s.store.MarkConversationRead(ctx, key); err != nil {
		logx.Error("livechat: mark-read failed for %v: %v", key, err)
	}

	return &ConversationDetail{Conversation: conv, Messages: messages, Takeover: takeover}, nil
}

func (s *Service) StartTakeover(ctx context.Context, key kernel.ConversationKey, adminID, adminName, reason string) error {
	t := &store.TakeoverSession{
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: string(key.ChannelIdentifier),
		AdminID:           adminID,
		StartedAt:         time.Now(),
	}
	if adminName != "" {
		t.AdminName.String, t.AdminName.Valid = adminName, true
	}
	if reason != "" {
		t.Reason.String, t.Reason.Valid = reason, true
	}
	return s.store.StartTakeover(ctx, t)
}

func (s *Service) EndTakeover(ctx context.Context, key kernel.ConversationKey) error {
	return s.store.EndTakeover(ctx, key)
}

// AdminSend delivers an admin-authored message: stored immediately for
// webchat, sent via the provider first (then stored on success) for
// WhatsApp.
func (s *Service) AdminSend(ctx context.Context, key kernel.ConversationKey, message, adminID string) error {
	now := time.Now()

	if key.Channel == kernel.ChannelWhatsApp {
		result := s.provider.SendText(ctx, key.VillageID, string(key.ChannelIdentifier), message)
		if !result.OK {
			return ErrSendFailed(result.Err)
		}
	}

	msg := &store.Message{
		ID:                uuid.NewString(),
		VillageID:         key.VillageID,
		Channel:           key.Channel,
		ChannelIdentifier: string(key.ChannelIdentifier),
		MessageID:         uuid.NewString(),
		MessageText:       message,
		Direction:         kernel.DirectionOut,
		Source:            kernel.SourceAdmin,
		Timestamp:         now,
	}
	if _, err := s.store.InsertMessage(ctx, msg); err != nil {
		return err
	}

	return s.store.UpsertConversationOnOutbound(ctx, key, message, now)
}

func (s *Service) MarkAsRead(ctx context.Context, key kernel.ConversationKey) error {
	return s.store.MarkConversationRead(ctx, key)
}

// DeleteConversation removes a conversation together with its messages,
// takeover sessions and pending messages. It sends no notification to
// the AI orchestrator, whose per-user profile cache is left unchanged.
func (s *Service) DeleteConversation(ctx context.Context, key kernel.ConversationKey) error {
	if err := s.store.DeleteConversationCascade(ctx, key); err != nil {
		return err
	}
	logx.Info("livechat: conversation %v deleted", key)
	return nil
}

// RetryAI re-publishes the latest pending message for the conversation.
func (s *Service) RetryAI(ctx context.Context, key kernel.ConversationKey) error {
	pending, err := s.store.GetLatestPendingForConversation(ctx, key)
	if err != nil {
		return ErrNoPendingToRetry(key.String())
	}

	if err := s.store.SetConversationAIProcessing(ctx, key, pending.MessageID); err != nil {
		logx.Error("livechat: set-processing failed for retry on %v: %v", key, err)
	}

	return s.forwarder.Republish(ctx, key, pending)
}
