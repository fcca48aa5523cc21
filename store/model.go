package store

import (
	"database/sql"
	"time"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

// Session is the one-per-village provider account record (spec.md §3).
type Session struct {
	VillageID        kernel.VillageID `db:"village_id"`
	InstanceName     sql.NullString   `db:"instance_name"`
	AdminID          sql.NullString   `db:"admin_id"`
	ProviderToken    sql.NullString   `db:"provider_token"`
	Status           sql.NullString   `db:"status"`
	WANumber         sql.NullString   `db:"wa_number"`
	SupportUserID    sql.NullString   `db:"support_user_id"`
	SupportAPIKey    sql.NullString   `db:"support_api_key"`
	SupportSessionID sql.NullString   `db:"support_session_id"`
	LastConnectedAt  sql.NullTime     `db:"last_connected_at"`
}

const (
	SessionStatusConnected    = "connected"
	SessionStatusDisconnected = "disconnected"
)

// ChannelAccount is the one-per-village outbound-enablement record.
type ChannelAccount struct {
	VillageID      kernel.VillageID `db:"village_id"`
	WANumber       sql.NullString   `db:"wa_number"`
	WAToken        sql.NullString   `db:"wa_token"`
	WebhookURL     sql.NullString   `db:"webhook_url"`
	EnabledWA      bool             `db:"enabled_wa"`
	EnabledWebchat bool             `db:"enabled_webchat"`
}

// Message is a single stored inbound or outbound message.
type Message struct {
	ID                string           `db:"id"`
	VillageID         kernel.VillageID `db:"village_id"`
	WAUserID          sql.NullString   `db:"wa_user_id"`
	Channel           kernel.Channel   `db:"channel"`
	ChannelIdentifier string           `db:"channel_identifier"`
	MessageID         string           `db:"message_id"`
	MessageText       string           `db:"message_text"`
	Direction         kernel.Direction `db:"direction"`
	Source            kernel.Source    `db:"source"`
	Timestamp         time.Time        `db:"timestamp"`
	HasMedia          bool             `db:"has_media"`
	MediaType         sql.NullString   `db:"media_type"`
	MediaURL          sql.NullString   `db:"media_url"`
	MediaPublicURL    sql.NullString   `db:"media_public_url"`
}

// InsertOutcome distinguishes a fresh insert from an idempotent no-op,
// so callers pattern-match instead of inspecting a unique-constraint error
// (spec.md §9 "exception-for-control-flow" redesign note).
type InsertOutcome int

const (
	Inserted InsertOutcome = iota
	Duplicate
)

// Conversation is the one-per-(village,channel,channel_identifier) summary row.
type Conversation struct {
	VillageID         kernel.VillageID `db:"village_id"`
	Channel           kernel.Channel   `db:"channel"`
	ChannelIdentifier string           `db:"channel_identifier"`
	WAUserID          sql.NullString   `db:"wa_user_id"`
	UserName          sql.NullString   `db:"user_name"`
	UserPhone         sql.NullString   `db:"user_phone"`
	LastMessage       sql.NullString   `db:"last_message"`
	LastMessageAt     sql.NullTime     `db:"last_message_at"`
	UnreadCount       int              `db:"unread_count"`
	IsTakeover        bool             `db:"is_takeover"`
	AIStatus          sql.NullString   `db:"ai_status"`
	AIErrorMessage    sql.NullString   `db:"ai_error_message"`
	PendingMessageID  sql.NullString   `db:"pending_message_id"`
}

const (
	AIStatusProcessing = "processing"
	AIStatusError      = "error"
)

// ConversationFilter selects the listing mode for livechat.conversations.
type ConversationFilter string

const (
	FilterAll      ConversationFilter = "all"
	FilterTakeover ConversationFilter = "takeover"
	FilterBot      ConversationFilter = "bot"
)

// TakeoverSession records one admin-takeover window on a conversation.
type TakeoverSession struct {
	ID                string           `db:"id"`
	VillageID         kernel.VillageID `db:"village_id"`
	Channel           kernel.Channel   `db:"channel"`
	ChannelIdentifier string           `db:"channel_identifier"`
	AdminID           string           `db:"admin_id"`
	AdminName         sql.NullString   `db:"admin_name"`
	Reason            sql.NullString   `db:"reason"`
	StartedAt         time.Time        `db:"started_at"`
	EndedAt           sql.NullTime     `db:"ended_at"`
}

// PendingMessageStatus is the lifecycle state of a PendingMessage row.
type PendingMessageStatus string

const (
	PendingStatusPending    PendingMessageStatus = "pending"
	PendingStatusProcessing PendingMessageStatus = "processing"
	PendingStatusCompleted  PendingMessageStatus = "completed"
	PendingStatusFailed     PendingMessageStatus = "failed"
)

const MaxPendingRetries = 5

// PendingMessage tracks one inbound message awaiting (or past) an AI reply.
type PendingMessage struct {
	ID                string               `db:"id"`
	VillageID         kernel.VillageID     `db:"village_id"`
	WAUserID          sql.NullString       `db:"wa_user_id"`
	Channel           kernel.Channel       `db:"channel"`
	ChannelIdentifier string               `db:"channel_identifier"`
	MessageID         string               `db:"message_id"`
	MessageText       string               `db:"message_text"`
	Status            PendingMessageStatus `db:"status"`
	RetryCount        int                  `db:"retry_count"`
	ErrorMsg          sql.NullString       `db:"error_msg"`
	CreatedAt         time.Time            `db:"created_at"`
	UpdatedAt         time.Time            `db:"updated_at"`
}

// SendLog is an append-only audit row of one outbound send attempt.
type SendLog struct {
	ID                string           `db:"id"`
	VillageID         kernel.VillageID `db:"village_id"`
	ChannelIdentifier string           `db:"channel_identifier"`
	MessageID         sql.NullString   `db:"message_id"`
	Status            string           `db:"status"`
	ErrorText         sql.NullString   `db:"error_text"`
	CreatedAt         time.Time        `db:"created_at"`
}

const (
	SendLogStatusSent   = "sent"
	SendLogStatusFailed = "failed"
)

// Settings is the process-wide, singleton-row admin toggle set.
type Settings struct {
	ID               string `db:"id"`
	AutoReadMessages bool   `db:"auto_read_messages"`
	TypingIndicator  bool   `db:"typing_indicator"`
}

const DefaultSettingsID = "default"
