// Package api is the thin fiber façade (C10) wiring the webhook ingress
// and the internal API table (spec.md §6) onto sessionmgr, ingest,
// forwarder, and livechat.
package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mygads/govconnect-channelgateway/bus"
	"github.com/mygads/govconnect-channelgateway/ingest"
	"github.com/mygads/govconnect-channelgateway/livechat"
	"github.com/mygads/govconnect-channelgateway/pkg/config"
	"github.com/mygads/govconnect-channelgateway/provider"
	"github.com/mygads/govconnect-channelgateway/sessionmgr"
	"github.com/mygads/govconnect-channelgateway/store"
)

// Dependencies is the set of components the router dispatches onto. All
// fields are already-constructed singletons assembled in cmd/gateway.
type Dependencies struct {
	Store      store.Store
	Bus        *bus.Client
	Provider   *provider.Client
	SessionMgr *sessionmgr.Manager
	Ingest     *ingest.Handler
	LiveChat   *livechat.Service
	Media      *ingest.MediaStore
	Internal   config.InternalConfig
}

// RegisterRoutes mounts the webhook ingress and internal API onto app.
func RegisterRoutes(app *fiber.App, d *Dependencies) {
	app.Get("/health", d.Health)

	app.Post("/webhook", d.Ingest.Receive)
	app.Post("/webhook/whatsapp", d.Ingest.Receive)
	app.Get("/webhook/whatsapp", d.Ingest.VerifyChallenge)

	internalRoutes := app.Group("/internal", InternalAuth(d.Internal.APIKey))

	internalRoutes.Get("/messages", d.ListMessages)
	internalRoutes.Post("/messages", d.StoreMessage)
	internalRoutes.Post("/send", d.SendMessage)
	internalRoutes.Post("/typing", d.SetTyping)
	internalRoutes.Post("/messages/read", d.MarkMessagesRead)
	internalRoutes.Patch("/conversations/user-profile", d.SetUserProfile)

	internalRoutes.Get("/whatsapp/status", d.WAStatus)
	internalRoutes.Post("/whatsapp/connect", d.WAConnect)
	internalRoutes.Post("/whatsapp/disconnect", d.WADisconnect)
	internalRoutes.Post("/whatsapp/logout", d.WALogout)
	internalRoutes.Get("/whatsapp/qr", d.WAQR)
	internalRoutes.Post("/whatsapp/pairphone", d.WAPairPhone)
	internalRoutes.Get("/whatsapp/settings", d.WASettings)
	internalRoutes.Post("/whatsapp/session", d.WACreateSession)
	internalRoutes.Get("/whatsapp/check-duplicate", d.WACheckDuplicate)
	internalRoutes.Post("/whatsapp/force-disconnect", d.WAForceDisconnect)

	internalRoutes.Post("/takeover", d.StartTakeover)
	internalRoutes.Delete("/takeover", d.EndTakeover)
	internalRoutes.Get("/takeover", d.GetTakeover)

	internalRoutes.Get("/conversations", d.ListConversations)
	internalRoutes.Get("/conversations/:village_id/:channel/:channel_identifier", d.GetConversation)
	internalRoutes.Delete("/conversations/:village_id/:channel/:channel_identifier", d.DeleteConversation)
	internalRoutes.Post("/conversations/:village_id/:channel/:channel_identifier/send", d.AdminSendMessage)
	internalRoutes.Post("/conversations/:village_id/:channel/:channel_identifier/read", d.MarkConversationRead)
	internalRoutes.Post("/conversations/:village_id/:channel/:channel_identifier/retry", d.RetryAI)

	internalRoutes.Get("/channel-accounts", d.ListChannelAccounts)
	internalRoutes.Get("/channel-accounts/:village_id", d.GetChannelAccount)
	internalRoutes.Put("/channel-accounts/:village_id", d.PutChannelAccount)

	internalRoutes.Post("/media/upload", d.UploadMedia)
	internalRoutes.Get("/messages/:message_id/sendlog", d.GetSendLog)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "route not found", "path": c.Path()})
	})
}
