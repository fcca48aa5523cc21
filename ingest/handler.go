package ingest

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/Abraxas-365/craftable/logx"
)

// Handler wires Service onto fiber routes, grounded on
// whatssapp.WebhookHandler's verify/receive split.
type Handler struct {
	service      *Service
	verifyToken  string
}

func NewHandler(service *Service, verifyToken string) *Handler {
	return &Handler{service: service, verifyToken: verifyToken}
}

// VerifyChallenge answers the provider's GET webhook-verification
// handshake.
func (h *Handler) VerifyChallenge(c *fiber.Ctx) error {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.verifyToken {
		return c.SendString(challenge)
	}
	return fiber.NewError(fiber.StatusForbidden, "verification failed")
}

// Receive accepts the inbound webhook POST. It always answers 200 (the
// provider retries aggressively on anything else) and processes the body
// asynchronously relative to the HTTP response only in the sense that
// failures are logged, never surfaced to the caller.
func (h *Handler) Receive(c *fiber.Ctx) error {
	isForm := strings.Contains(c.Get("Content-Type"), "multipart/form-data") ||
		strings.Contains(c.Get("Content-Type"), "application/x-www-form-urlencoded")

	if err := h.service.HandleWebhook(c.Context(), c.Body(), isForm); err != nil {
		logx.Error("ingest: webhook handling failed: %v", err)
	}
	return c.SendStatus(fiber.StatusOK)
}
