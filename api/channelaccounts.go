package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
	"github.com/mygads/govconnect-channelgateway/store"
)

// ListChannelAccounts implements the supplemented `GET /internal/channel-accounts`
// list form (SPEC_FULL.md §5).
func (d *Dependencies) ListChannelAccounts(c *fiber.Ctx) error {
	accounts, err := d.Store.ListChannelAccounts(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"channel_accounts": accounts})
}

// GetChannelAccount implements `GET /internal/channel-accounts/:village_id`.
func (d *Dependencies) GetChannelAccount(c *fiber.Ctx) error {
	account, err := d.Store.GetChannelAccount(c.Context(), kernel.VillageID(c.Params("village_id")))
	if err != nil {
		return err
	}
	return c.JSON(account)
}

type putChannelAccountRequest struct {
	WANumber       string `json:"wa_number"`
	WAToken        string `json:"wa_token"`
	WebhookURL     string `json:"webhook_url"`
	EnabledWA      bool   `json:"enabled_wa"`
	EnabledWebchat bool   `json:"enabled_webchat"`
}

// PutChannelAccount implements `PUT /internal/channel-accounts/:village_id`.
func (d *Dependencies) PutChannelAccount(c *fiber.Ctx) error {
	var req putChannelAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}

	villageID := kernel.VillageID(c.Params("village_id"))
	account := &store.ChannelAccount{
		VillageID:      villageID,
		EnabledWA:      req.EnabledWA,
		EnabledWebchat: req.EnabledWebchat,
	}
	if req.WANumber != "" {
		account.WANumber.String, account.WANumber.Valid = req.WANumber, true
	}
	if req.WAToken != "" {
		account.WAToken.String, account.WAToken.Valid = req.WAToken, true
	}
	if req.WebhookURL != "" {
		account.WebhookURL.String, account.WebhookURL.Valid = req.WebhookURL, true
	}

	if err := d.Store.UpsertChannelAccount(c.Context(), account); err != nil {
		return err
	}
	return c.JSON(account)
}
