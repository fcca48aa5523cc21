package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

// InternalAuth enforces spec.md §6's mandatory X-Internal-API-Key header
// on every /internal route.
func InternalAuth(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Get("X-Internal-API-Key") != apiKey {
			return ErrUnauthorized()
		}
		return c.Next()
	}
}

func channelFromQuery(c *fiber.Ctx, fallback kernel.Channel) kernel.Channel {
	switch c.Query("channel") {
	case string(kernel.ChannelWhatsApp):
		return kernel.ChannelWhatsApp
	case string(kernel.ChannelWebchat):
		return kernel.ChannelWebchat
	default:
		return fallback
	}
}
