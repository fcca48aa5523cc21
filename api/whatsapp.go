package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/mygads/govconnect-channelgateway/pkg/kernel"
)

func villageID(c *fiber.Ctx) kernel.VillageID {
	v := c.Query("village_id")
	if v == "" {
		v = c.Get("X-Village-ID")
	}
	return kernel.VillageID(v)
}

// WAStatus implements `GET /internal/whatsapp/status`.
func (d *Dependencies) WAStatus(c *fiber.Ctx) error {
	session, err := d.SessionMgr.Status(c.Context(), villageID(c))
	if err != nil {
		return err
	}
	return c.JSON(session)
}

// WAConnect implements `POST /internal/whatsapp/connect`.
func (d *Dependencies) WAConnect(c *fiber.Ctx) error {
	if err := d.SessionMgr.Connect(c.Context(), villageID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// WADisconnect implements `POST /internal/whatsapp/disconnect`.
func (d *Dependencies) WADisconnect(c *fiber.Ctx) error {
	if err := d.SessionMgr.Disconnect(c.Context(), villageID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// WALogout implements `POST /internal/whatsapp/logout`.
func (d *Dependencies) WALogout(c *fiber.Ctx) error {
	if err := d.SessionMgr.Logout(c.Context(), villageID(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}

// WAQR implements `GET /internal/whatsapp/qr`.
func (d *Dependencies) WAQR(c *fiber.Ctx) error {
	result := d.Provider.GetQR(c.Context(), villageID(c))
	if !result.OK {
		return result.Err.ToErrx()
	}
	return c.JSON(result.Data)
}

type pairPhoneRequest struct {
	Phone string `json:"phone"`
}

// WAPairPhone implements `POST /internal/whatsapp/pairphone`.
func (d *Dependencies) WAPairPhone(c *fiber.Ctx) error {
	var req pairPhoneRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	result := d.Provider.PairPhone(c.Context(), villageID(c), req.Phone)
	if !result.OK {
		return result.Err.ToErrx()
	}
	return c.JSON(fiber.Map{"pairing_code": result.Data})
}

// WASettings implements `GET /internal/whatsapp/settings`.
func (d *Dependencies) WASettings(c *fiber.Ctx) error {
	session, err := d.Store.GetSession(c.Context(), villageID(c))
	if err != nil {
		return err
	}
	if !session.SupportSessionID.Valid {
		return ErrBadRequest("session has no provider-side settings yet")
	}
	result := d.Provider.FetchSessionSettings(c.Context(), session.SupportSessionID.String)
	if !result.OK {
		return result.Err.ToErrx()
	}
	return c.JSON(result.Data)
}

type createSessionRequest struct {
	VillageID string `json:"village_id"`
	AdminID   string `json:"admin_id"`
	Slug      string `json:"slug"`
}

// WACreateSession implements `POST /internal/whatsapp/session`.
func (d *Dependencies) WACreateSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	if req.VillageID == "" {
		return ErrBadRequest("village_id is required")
	}
	session, err := d.SessionMgr.Create(c.Context(), kernel.VillageID(req.VillageID), req.AdminID, req.Slug)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(session)
}

// WACheckDuplicate implements `GET /internal/whatsapp/check-duplicate?wa_number`.
func (d *Dependencies) WACheckDuplicate(c *fiber.Ctx) error {
	conflict, found, err := d.SessionMgr.CheckDuplicate(c.Context(), villageID(c), c.Query("wa_number"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"duplicate": found, "conflicting_village_id": conflict})
}

type forceDisconnectRequest struct {
	TargetVillageID string `json:"target_village_id"`
}

// WAForceDisconnect implements `POST /internal/whatsapp/force-disconnect {target_village_id}`.
func (d *Dependencies) WAForceDisconnect(c *fiber.Ctx) error {
	var req forceDisconnectRequest
	if err := c.BodyParser(&req); err != nil {
		return ErrBadRequest(err.Error())
	}
	if req.TargetVillageID == "" {
		return ErrBadRequest("target_village_id is required")
	}
	if err := d.SessionMgr.ForceDisconnectOther(c.Context(), villageID(c), kernel.VillageID(req.TargetVillageID)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusOK)
}
