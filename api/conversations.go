package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/store"
)

func keyFromParams(c *fiber.Ctx) kernel.ConversationKey {
	return kernel.ConversationKey{
		VillageID:         kernel.VillageID(c.Params("village_id")),
		Channel:           channelOrDefault(c.Params("channel")),
		ChannelIdentifier: kernel.ChannelIdentifier(c.Params("channel_identifier")),
	}
}

// ListConversations implements `GET/DELETE /internal/conversations[...]`'s
// listing branch.
func (d *Dependencies) ListConversations(c *fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))

	opts := store.ListConversationsOpts{
		VillageID: villageID(c),
		Filter:    store.ConversationFilter(c.Query("filter", string(store.FilterAll))),
		Page:      page,
		PageSize:  pageSize,
	}
	result, err := d.LiveChat.Conversations(c.Context(), opts)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"items": result.Items, "total": result.Total})
}

// GetConversation implements the detail branch of
// `GET/DELETE /internal/conversations[...]`.
func (d *Dependencies) GetConversation(c *fiber.Ctx) error {
	detail, err := d.LiveChat.Conversation(c.Context(), keyFromParams(c))
	if err != nil {
		return err
	}
	return c.JSON(detail)
}

// DeleteConversation implements the delete branch.
func (d *Dependencies) DeleteConversation(c *fiber.Ctx) error {
	if err := d.LiveChat.DeleteConversation(c.Context(), keyFromParams(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

type adminSendRequest struct {
	Message string `json:"message"`
	AdminID string `json:"admin_id"`
}

// AdminSendMessage implements `POST /internal/conversations/:id/send`.
func (d *Dependencies) AdminSendMessage(c *fiber.Ctx) error {
	var req adminSendRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	if req.Message == "" {
		return ErrBadRequest("message is required")
	}
	if err := d.LiveChat.AdminSend(c.Context(), keyFromParams(c), req.Message, req.AdminID); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// MarkConversationRead implements `POST /internal/conversations/:id/read`.
func (d *Dependencies) MarkConversationRead(c *fiber.Ctx) error {
	if err := d.LiveChat.MarkAsRead(c.Context(), keyFromParams(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// RetryAI implements `POST /internal/conversations/:id/retry`.
func (d *Dependencies) RetryAI(c *fiber.Ctx) error {
	if err := d.LiveChat.RetryAI(c.Context(), keyFromParams(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

type takeoverRequest struct {
	VillageID         string `json:"village_id"`
	Channel           string `json:"channel"`
	ChannelIdentifier string `json:"channel_identifier"`
	AdminID           string `json:"admin_id"`
	AdminName         string `json:"admin_name"`
	Reason            string `json:"reason"`
}

func (r takeoverRequest) key() kernel.ConversationKey {
	return kernel.ConversationKey{
		VillageID:         kernel.VillageID(r.VillageID),
		Channel:           channelOrDefault(r.Channel),
		ChannelIdentifier: kernel.ChannelIdentifier(r.ChannelIdentifier),
	}
}

// StartTakeover implements `POST /internal/takeover[...]`.
func (d *Dependencies) StartTakeover(c *fiber.Ctx) error {
	var req takeoverRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	if req.AdminID == "" {
		return ErrBadRequest("admin_id is required")
	}
	if err := d.LiveChat.StartTakeover(c.Context(), req.key(), req.AdminID, req.AdminName, req.Reason); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// EndTakeover implements `DELETE /internal/takeover[...]`.
func (d *Dependencies) EndTakeover(c *fiber.Ctx) error {
	key := kernel.ConversationKey{
		VillageID:         villageID(c),
		Channel:           channelFromQuery(c, kernel.ChannelWhatsApp),
		ChannelIdentifier: kernel.ChannelIdentifier(c.Query("channel_identifier")),
	}
	if err := d.LiveChat.EndTakeover(c.Context(), key); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// GetTakeover implements `GET /internal/takeover[...]`.
func (d *Dependencies) GetTakeover(c *fiber.Ctx) error {
	key := kernel.ConversationKey{
		VillageID:         villageID(c),
		Channel:           channelFromQuery(c, kernel.ChannelWhatsApp),
		ChannelIdentifier: kernel.ChannelIdentifier(c.Query("channel_identifier")),
	}
	takeover, err := d.Store.GetActiveTakeover(c.Context(), key)
	if err != nil {
		return c.JSON(fiber.Map{"active": false})
	}
	return c.JSON(fiber.Map{"active": true, "takeover": takeover})
}
