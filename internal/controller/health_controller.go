package controller

import (
	"fingerprint-be/internal/pkg/serverutils"
	"fingerprint-be/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IHealthController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
}

type healthController struct {
	fingerprintService service.IFingerprintService
}

func NewHealthController(fingerprintService service.IFingerprintService) IHealthController {
	return &healthController{
		fingerprintService: fingerprintService,
	}
}

func (c *healthController) RegisterRoutes(r fiber.Router) {
	r.Get("/health", c.Show)
}

func (c *healthController) Show(ctx *fiber.Ctx) error {
	res := c.fingerprintService.Health()
	// Degraded service still answers 200; callers read deviceConnected.
	return ctx.JSON(serverutils.SuccessResponse("Success show health", res))
}
