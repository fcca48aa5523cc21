package ingest

import (
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/store"
)

func newUUID() string { return uuid.NewString() }

// normalizeForSpam is the text key SpamGuard partitions identical-count
// and text-ban state by: trimmed and case-folded so "Hello" and "hello "
// collide.
func normalizeForSpam(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

func toStoreMessage(key kernel.ConversationKey, msg *WebhookMessage, media MediaResult, receivedAt time.Time) *store.Message {
	return &store.Message{
		ID:                newUUID(),
		VillageID:         key.VillageID,
		WAUserID:          sql.NullString{String: string(key.ChannelIdentifier), Valid: true},
		Channel:           key.Channel,
		ChannelIdentifier: string(key.ChannelIdentifier),
		MessageID:         msg.MessageID,
		MessageText:       msg.Text,
		Direction:         kernel.DirectionIn,
		Source:            kernel.SourceWAWebhook,
		Timestamp:         receivedAt,
		HasMedia:          msg.HasMedia,
		MediaType:         sql.NullString{String: msg.MediaType, Valid: msg.MediaType != ""},
		MediaURL:          sql.NullString{String: media.InternalURL, Valid: media.InternalURL != ""},
		MediaPublicURL:    sql.NullString{String: media.PublicURL, Valid: media.PublicURL != ""},
	}
}
