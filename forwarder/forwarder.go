// Package forwarder is the publish/reply bridge (C8) between Ingest and
// the AI orchestrator: it builds the outbound bubble event, and consumes
// the orchestrator's reply, error, and status events back onto the
// pending-message queue and the provider.
package forwarder

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Abraxas-365/craftable/logx"

	"github.com/mygads/govconnect-channelgateway/bus"
	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/spamguard"
	"github.com/mygads/govconnect-channelgateway/store"
)

const guidanceBubbleDelay = 500 * time.Millisecond

// Forwarder wires the bus, the store, and the provider client together.
type Forwarder struct {
	bus      *bus.Client
	store    store.Store
	provider *provider.Client
	guard    *spamguard.Guard
	cfg      config.InternalConfig
}

func New(busClient *bus.Client, st store.Store, pc *provider.Client, guard *spamguard.Guard, cfg config.InternalConfig) *Forwarder {
	f := &Forwarder{bus: busClient, store: st, provider: pc, guard: guard, cfg: cfg}
	busClient.Consume(bus.QueueAIReply, bus.RoutingAIReply, f.handleReply)
	busClient.Consume(bus.QueueAIError, bus.RoutingAIError, f.handleError)
	busClient.Consume(bus.QueueMessageStat, bus.RoutingMessageStatus, f.handleStatus)
	return f
}

// Forward implements ingest.Forwarder: build the bubble event and
// publish it, retrying at the call site on failure.
func (f *Forwarder) Forward(ctx context.Context, key kernel.ConversationKey, pendingMessageID string, decision spamguard.Decision) error {
	contextTexts := make([]string, len(decision.Context))
	var last spamguard.InFlightMessage
	for i, m := range decision.Context {
		contextTexts[i] = m.Text
		last = m
	}
	batched := make([]string, len(decision.Context))
	for i, m := range decision.Context {
		batched[i] = m.MessageID
	}

	event := OutboundEvent{
		VillageID:         key.VillageID.String(),
		WAUserID:          key.ChannelIdentifier.String(),
		Message:           last.Text,
		MessageID:         last.MessageID,
		ReceivedAt:        last.ReceivedAt.Unix(),
		BatchedMessageIDs: batched,
		SpamGuard: SpamGuardInfo{
			SupersedePrevious:    decision.SupersedePrevious,
			SuppressedMessageIDs: decision.SuppressedMessageIDs,
			ContextMessages:      contextTexts,
		},
	}

	retryKey := key.VillageID.String() + ":" + key.ChannelIdentifier.String() + ":" + last.MessageID
	return f.bus.PublishWithRetry(ctx, retryKey, bus.RoutingWhatsAppMessageReceived, event, f.cfg.PublishRetryDelay)
}

// Republish re-sends a single pending message to the AI orchestrator,
// bypassing SpamGuard — used by livechat's retryAI operation.
func (f *Forwarder) Republish(ctx context.Context, key kernel.ConversationKey, pending *store.PendingMessage) error {
	event := OutboundEvent{
		VillageID:         key.VillageID.String(),
		WAUserID:          key.ChannelIdentifier.String(),
		Message:           pending.MessageText,
		MessageID:         pending.MessageID,
		ReceivedAt:        pending.CreatedAt.Unix(),
		BatchedMessageIDs: []string{pending.MessageID},
		SpamGuard:         SpamGuardInfo{ContextMessages: []string{pending.MessageText}},
		IsRetry:           true,
	}
	retryKey := key.VillageID.String() + ":" + key.ChannelIdentifier.String() + ":" + pending.MessageID
	return f.bus.PublishWithRetry(ctx, retryKey, bus.RoutingWhatsAppMessageReceived, event, f.cfg.PublishRetryDelay)
}

func (f *Forwarder) handleReply(ctx context.Context, routingKey string, body []byte) error {
	var evt AIReplyEvent
	if err := decodeJSON(body, &evt); err != nil {
		return err
	}

	key := kernel.ConversationKey{
		VillageID:         kernel.VillageID(evt.VillageID),
		Channel:           kernel.ChannelWhatsApp,
		ChannelIdentifier: kernel.ChannelIdentifier(evt.WAUserID),
	}

	if f.isSuperseded(ctx, key, evt.MessageID, evt.BatchedMessageIDs) {
		logx.Info("forwarder: reply for superseded message %s suppressed", evt.MessageID)
		return nil
	}

	text := NormalizeReplyText(evt.ReplyText)
	result := f.provider.SendText(ctx, key.VillageID, evt.WAUserID, text)
	if !result.OK {
		logx.Error("forwarder: failed to send reply for %s: %v", evt.MessageID, result.Err)
		return nil
	}

	if evt.GuidanceText != "" {
		go func() {
			time.Sleep(guidanceBubbleDelay)
			bg := context.Background()
			if r := f.provider.SendText(bg, key.VillageID, evt.WAUserID, NormalizeReplyText(evt.GuidanceText)); !r.OK {
				logx.Error("forwarder: guidance bubble send failed for %s: %v", evt.MessageID, r.Err)
			}
		}()
	}

	completed := append([]string{evt.MessageID}, evt.BatchedMessageIDs...)
	if err := f.store.MarkPendingCompleted(ctx, completed); err != nil {
		logx.Error("forwarder: failed to mark pending completed for %s: %v", evt.MessageID, err)
	}
	if err := f.store.UpsertConversationOnOutbound(ctx, key, text, time.Now()); err != nil {
		logx.Error("forwarder: conversation upsert-on-outbound failed for %v: %v", key, err)
	}
	if err := f.store.SetConversationAIIdle(ctx, key); err != nil {
		logx.Error("forwarder: set-idle failed for %v: %v", key, err)
	}

	f.guard.ClearBubble(kernel.UserKey{VillageID: key.VillageID, UserID: evt.WAUserID})
	return nil
}

func (f *Forwarder) handleError(ctx context.Context, routingKey string, body []byte) error {
	var evt AIErrorEvent
	if err := decodeJSON(body, &evt); err != nil {
		return err
	}

	key := kernel.ConversationKey{
		VillageID:         kernel.VillageID(evt.VillageID),
		Channel:           kernel.ChannelWhatsApp,
		ChannelIdentifier: kernel.ChannelIdentifier(evt.WAUserID),
	}

	if err := f.store.SetConversationAIError(ctx, key, preview(evt.ErrorMessage)); err != nil {
		logx.Error("forwarder: set-ai-error failed for %v: %v", key, err)
	}

	batched := append([]string{evt.MessageID}, evt.BatchedMessageIDs...)
	if err := f.store.MarkPendingFailedOrRetry(ctx, batched, evt.ErrorMessage); err != nil {
		logx.Error("forwarder: mark-failed-or-retry failed for %v: %v", batched, err)
	}
	return nil
}

func (f *Forwarder) handleStatus(ctx context.Context, routingKey string, body []byte) error {
	var evt MessageStatusEvent
	if err := decodeJSON(body, &evt); err != nil {
		return err
	}

	switch evt.Status {
	case string(store.PendingStatusCompleted):
		return f.store.MarkPendingCompleted(ctx, []string{evt.MessageID})
	case string(store.PendingStatusFailed):
		return f.store.MarkPendingFailedOrRetry(ctx, []string{evt.MessageID}, evt.ErrorText)
	case string(store.PendingStatusProcessing):
		return f.store.MarkPendingProcessing(ctx, evt.MessageID)
	default:
		logx.Info("forwarder: ignoring unknown message.status value %q", evt.Status)
		return nil
	}
}

// isSuperseded reports whether this reply is for a message no longer
// current. `MarkPendingCompleted` deletes a superseded pending row as
// soon as a later message supersedes it (ingest.Service.HandleWebhook),
// so the pending row itself can't be used to detect this once the reply
// finally arrives — only the conversation's current pending_message_id,
// advanced on every supersede, survives to compare against.
func (f *Forwarder) isSuperseded(ctx context.Context, key kernel.ConversationKey, messageID string, batchedMessageIDs []string) bool {
	conv, err := f.store.GetConversation(ctx, key)
	if err != nil || !conv.PendingMessageID.Valid {
		return false
	}

	current := conv.PendingMessageID.String
	if current == messageID {
		return false
	}
	for _, id := range batchedMessageIDs {
		if id == current {
			return false
		}
	}
	return true
}

func decodeJSON(body []byte, out any) error {
	return json.Unmarshal(body, out)
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max]
}
