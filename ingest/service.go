package ingest

import (
	"context"
	"time"

	"github.com/Abraxas-365/craftable/logx"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/spamguard"
	"github.com/mygads/govconnect-channelgateway/store"
)

// Forwarder is the narrow surface Ingest needs from the forwarding
// component (C8): publish a conversation's accumulated bubble context to
// the AI orchestrator.
type Forwarder interface {
	Forward(ctx context.Context, key kernel.ConversationKey, pendingMessageID string, decision spamguard.Decision) error
}

// Service implements spec.md §4.7: parse, filter, resolve tenant,
// persist, run SpamGuard, and hand off to the Forwarder.
type Service struct {
	store            store.Store
	guard            *spamguard.Guard
	media            *MediaStore
	forwarder        Forwarder
	defaultVillageID kernel.VillageID
}

func NewService(st store.Store, guard *spamguard.Guard, media *MediaStore, fwd Forwarder, defaultVillageID kernel.VillageID) *Service {
	return &Service{store: st, guard: guard, media: media, forwarder: fwd, defaultVillageID: defaultVillageID}
}

// HandleWebhook is the single entry point for both the JSON and
// form-mode webhook routes.
func (s *Service) HandleWebhook(ctx context.Context, body []byte, isForm bool) error {
	env, err := ParseEnvelope(body, isForm)
	if err != nil {
		return err
	}

	if env.Type != "Message" {
		return nil
	}

	msg, err := ParseMessage(env.Payload)
	if err != nil {
		return err
	}

	if reject, reason := Filter(msg, false); reject {
		logx.Info("ingest: webhook message filtered: %s", reason)
		return nil
	}

	villageID := s.resolveTenant(ctx, env.InstanceName)
	channelIdentifier := ExtractPhone(msg.JID)
	key := kernel.ConversationKey{VillageID: villageID, Channel: kernel.ChannelWhatsApp, ChannelIdentifier: kernel.ChannelIdentifier(channelIdentifier)}

	mediaResult := MediaResult{}
	if msg.HasMedia && s.media != nil {
		mediaResult = s.media.Save(ctx, channelIdentifier, msg.MessageID, msg)
	}

	receivedAt := time.Unix(msg.Timestamp, 0)
	if msg.Timestamp == 0 {
		receivedAt = time.Now()
	}

	storeMsg := toStoreMessage(key, msg, mediaResult, receivedAt)
	outcome, err := s.store.InsertMessage(ctx, storeMsg)
	if err != nil {
		return err
	}
	if outcome == store.Duplicate {
		logx.Info("ingest: duplicate message_id %s ignored", msg.MessageID)
		return nil
	}

	// Under an active takeover the conversation stays visible to the
	// admin but the AI pipeline is bypassed entirely: no SpamGuard
	// evaluation, no publish (spec.md §4.9's "Takeover effect on AI").
	if takeover, err := s.store.GetActiveTakeover(ctx, key); err == nil && takeover != nil {
		if err := s.store.UpsertConversationOnInbound(ctx, key, channelIdentifier, msg.Text, receivedAt); err != nil {
			logx.Error("ingest: conversation upsert failed under takeover for %s: %v", key, err)
		}
		return nil
	}

	userKey := kernel.UserKey{VillageID: villageID, UserID: channelIdentifier}
	decision := s.guard.Evaluate(userKey, msg.MessageID, normalizeForSpam(msg.Text), receivedAt)

	if decision.Rejected {
		if err := s.store.DeleteMessageByMessageID(ctx, key, msg.MessageID); err != nil {
			logx.Error("ingest: failed to delete spam-rejected message %s: %v", msg.MessageID, err)
		}
		logx.Info("ingest: message %s rejected by spam guard: %s", msg.MessageID, decision.RejectReason)
		return nil
	}

	if decision.SupersedePrevious && len(decision.SuppressedMessageIDs) > 0 {
		if err := s.store.MarkPendingCompleted(ctx, decision.SuppressedMessageIDs); err != nil {
			logx.Error("ingest: failed to mark superseded pending messages completed: %v", err)
		}
	}

	pending := &store.PendingMessage{
		ID:                newUUID(),
		VillageID:         villageID,
		Channel:           kernel.ChannelWhatsApp,
		ChannelIdentifier: channelIdentifier,
		MessageID:         msg.MessageID,
		MessageText:       msg.Text,
		Status:            store.PendingStatusPending,
	}
	if err := s.store.CreatePendingMessage(ctx, pending); err != nil {
		return err
	}

	if err := s.store.UpsertConversationOnInbound(ctx, key, channelIdentifier, msg.Text, receivedAt); err != nil {
		logx.Error("ingest: conversation upsert failed for %s: %v", key, err)
	}
	if err := s.store.SetConversationAIProcessing(ctx, key, pending.MessageID); err != nil {
		logx.Error("ingest: set-processing failed for %s: %v", key, err)
	}

	return s.forwarder.Forward(ctx, key, pending.MessageID, decision)
}

func (s *Service) resolveTenant(ctx context.Context, instanceName string) kernel.VillageID {
	if instanceName == "" {
		return s.fallbackVillage()
	}
	if session, err := s.store.GetSession(ctx, kernel.VillageID(instanceName)); err == nil {
		return session.VillageID
	}
	if session, err := s.store.GetSessionByInstanceName(ctx, instanceName); err == nil {
		return session.VillageID
	}
	logx.Info("ingest: no session matches instanceName %q, degrading to default village", instanceName)
	return s.fallbackVillage()
}

func (s *Service) fallbackVillage() kernel.VillageID {
	if s.defaultVillageID != "" {
		return s.defaultVillageID
	}
	return kernel.UnknownVillageID
}
