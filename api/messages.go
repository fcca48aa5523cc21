package api

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/store"
)

// ListMessages implements `GET /internal/messages?village_id&channel_identifier|wa_user_id&channel&limit`.
func (d *Dependencies) ListMessages(c *fiber.Ctx) error {
	villageID := kernel.VillageID(c.Query("village_id"))
	identifier := c.Query("channel_identifier")
	if identifier == "" {
		identifier = c.Query("wa_user_id")
	}
	channel := channelFromQuery(c, kernel.ChannelWhatsApp)

	limit, _ := strconv.Atoi(c.Query("limit"))

	key := kernel.ConversationKey{VillageID: villageID, Channel: channel, ChannelIdentifier: kernel.ChannelIdentifier(identifier)}
	messages, err := d.Store.ListMessages(c.Context(), key, store.ListMessagesOpts{Limit: limit})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"messages": messages})
}

type storeMessageRequest struct {
	VillageID         string `json:"village_id"`
	Channel           string `json:"channel"`
	ChannelIdentifier string `json:"channel_identifier"`
	MessageID         string `json:"message_id"`
	MessageText       string `json:"message_text"`
	Direction         string `json:"direction"`
	Source            string `json:"source"`
}

// StoreMessage implements `POST /internal/messages`, used by the AI
// orchestrator to record its own OUT messages (and IN messages it wants
// reflected back into history) without re-entering SpamGuard/Forwarder.
func (d *Dependencies) StoreMessage(c *fiber.Ctx) error {
	var req storeMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	if req.VillageID == "" || req.ChannelIdentifier == "" || req.MessageText == "" {
		return ErrBadRequest("village_id, channel_identifier, and message_text are required")
	}

	messageID := req.MessageID
	if messageID == "" {
		messageID = uuid.NewString()
	}

	msg := &store.Message{
		ID:                uuid.NewString(),
		VillageID:         kernel.VillageID(req.VillageID),
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: req.ChannelIdentifier,
		MessageID:         messageID,
		MessageText:       req.MessageText,
		Direction:         directionOrDefault(req.Direction),
		Source:            sourceOrDefault(req.Source),
		Timestamp:         time.Now(),
	}

	outcome, err := d.Store.InsertMessage(c.Context(), msg)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message_id": msg.MessageID, "duplicate": outcome == store.Duplicate})
}

type sendRequest struct {
	VillageID string `json:"village_id"`
	WAUserID  string `json:"wa_user_id"`
	Message   string `json:"message"`
}

// SendMessage implements `POST /internal/send {village_id?,wa_user_id,message}`.
func (d *Dependencies) SendMessage(c *fiber.Ctx) error {
	var req sendRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	if req.WAUserID == "" || req.Message == "" {
		return ErrBadRequest("wa_user_id and message are required")
	}

	villageID := kernel.VillageID(req.VillageID)
	result := d.Provider.SendText(c.Context(), villageID, req.WAUserID, req.Message)

	logEntry := &store.SendLog{
		ID:                uuid.NewString(),
		VillageID:         villageID,
		ChannelIdentifier: req.WAUserID,
		CreatedAt:         time.Now(),
	}
	if result.OK {
		logEntry.Status = store.SendLogStatusSent
	} else {
		logEntry.Status = store.SendLogStatusFailed
		logEntry.ErrorText.String, logEntry.ErrorText.Valid = result.Err.Error(), true
	}
	_ = d.Store.InsertSendLog(c.Context(), logEntry)

	if !result.OK {
		return result.Err.ToErrx()
	}
	return c.JSON(fiber.Map{"message_id": result.Data})
}

type typingRequest struct {
	VillageID string `json:"village_id"`
	WAUserID  string `json:"wa_user_id"`
	State     string `json:"state"`
}

// SetTyping implements `POST /internal/typing` (composing/paused presence).
func (d *Dependencies) SetTyping(c *fiber.Ctx) error {
	var req typingRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	result := d.Provider.SetPresence(c.Context(), kernel.VillageID(req.VillageID), req.WAUserID, req.State)
	if !result.OK {
		return result.Err.ToErrx()
	}
	return c.SendStatus(fiber.StatusOK)
}

type markReadRequest struct {
	VillageID  string   `json:"village_id"`
	WAUserID   string   `json:"wa_user_id"`
	MessageIDs []string `json:"message_ids"`
}

// MarkMessagesRead implements `POST /internal/messages/read`.
func (d *Dependencies) MarkMessagesRead(c *fiber.Ctx) error {
	var req markReadRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	result := d.Provider.MarkRead(c.Context(), kernel.VillageID(req.VillageID), req.WAUserID, req.MessageIDs)
	if !result.OK {
		return result.Err.ToErrx()
	}
	return c.SendStatus(fiber.StatusOK)
}

type userProfileRequest struct {
	VillageID         string `json:"village_id"`
	Channel           string `json:"channel"`
	ChannelIdentifier string `json:"channel_identifier"`
	UserName          string `json:"user_name"`
	UserPhone         string `json:"user_phone"`
}

// SetUserProfile implements `PATCH /internal/conversations/user-profile`.
func (d *Dependencies) SetUserProfile(c *fiber.Ctx) error {
	var req userProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	key := kernel.ConversationKey{
		VillageID:         kernel.VillageID(req.VillageID),
		Channel:           channelOrDefault(req.Channel),
		ChannelIdentifier: kernel.ChannelIdentifier(req.ChannelIdentifier),
	}
	if err := d.Store.SetConversationProfile(c.Context(), key, req.UserName, req.UserPhone); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

func channelOrDefault(v string) kernel.Channel {
	if v == string(kernel.ChannelWebchat) {
		return kernel.ChannelWebchat
	}
	return kernel.ChannelWhatsApp
}

func directionOrDefault(v string) kernel.Direction {
	if v == string(kernel.DirectionIn) {
		return kernel.DirectionIn
	}
	return kernel.DirectionOut
}

func sourceOrDefault(v string) kernel.Source {
	switch kernel.Source(v) {
	case kernel.SourceWAWebhook, kernel.SourceSystem, kernel.SourceAdmin:
		return kernel.Source(v)
	default:
		return kernel.SourceAI
	}
}
