package api

import "github.com/gofiber/fiber/v2"

// GetSendLog implements the supplemented `GET /internal/messages/:message_id/sendlog`
// audit-read endpoint (SPEC_FULL.md §5).
func (d *Dependencies) GetSendLog(c *fiber.Ctx) error {
	entries, err := d.Store.GetSendLogForMessage(c.Context(), c.Params("message_id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"sendlog": entries})
}
