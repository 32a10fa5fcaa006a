package controller

import (
	"fingerprint-be/internal/dto"
	"fingerprint-be/internal/pkg/serverutils"
	"fingerprint-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IFingerprintController interface {
	RegisterRoutes(r fiber.Router)
	Register(ctx *fiber.Ctx) error
	Verify(ctx *fiber.Ctx) error
	Identify(ctx *fiber.Ctx) error
	Capture(ctx *fiber.Ctx) error
}

type fingerprintController struct {
	fingerprintService service.IFingerprintService
}

func NewFingerprintController(fingerprintService service.IFingerprintService) IFingerprintController {
	return &fingerprintController{
		fingerprintService: fingerprintService,
	}
}

func (c *fingerprintController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/fingerprint/v1")
	h.Post("register", c.Register)
	h.Post("verify", c.Verify)
	h.Post("identify", c.Identify)
	h.Post("capture", c.Capture)
}

func (c *fingerprintController) Register(ctx *fiber.Ctx) error {
	var req dto.RegisterRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.fingerprintService.RegisterMultiSample(ctx.Context(), req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success register fingerprint", res))
}

func (c *fingerprintController) Verify(ctx *fiber.Ctx) error {
	var req dto.VerifyRequest
	if err := ctx.BodyParser(&req); err != nil {
		return err
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.fingerprintService.VerifySimple(ctx.Context(), req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success verify fingerprint", res))
}

func (c *fingerprintController) Identify(ctx *fiber.Ctx) error {
	var req dto.IdentifyRequest
	// Body is optional: an empty request searches the configured root.
	if len(ctx.Body()) > 0 {
		if err := ctx.BodyParser(&req); err != nil {
			return err
		}
	}

	res, err := c.fingerprintService.IdentifyLive(ctx.Context(), req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success identify fingerprint", res))
}

func (c *fingerprintController) Capture(ctx *fiber.Ctx) error {
	res, err := c.fingerprintService.Capture(ctx.Context())
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success capture fingerprint", res))
}
