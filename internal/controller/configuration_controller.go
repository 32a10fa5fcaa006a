package controller

import (
	"fingerprint-be/internal/config"
	"fingerprint-be/internal/pkg/serverutils"

	"github.com/gofiber/fiber/v2"
)

type IConfigurationController interface {
	RegisterRoutes(r fiber.Router)
	Show(ctx *fiber.Ctx) error
	Update(ctx *fiber.Ctx) error
	Validate(ctx *fiber.Ctx) error
	Reset(ctx *fiber.Ctx) error
}

type configurationController struct {
	store    *config.Store
	defaults config.Snapshot
}

func NewConfigurationController(store *config.Store, defaults config.Snapshot) IConfigurationController {
	return &configurationController{
		store:    store,
		defaults: defaults,
	}
}

func (c *configurationController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/configuration/v1")
	h.Get("", c.Show)
	h.Patch("", c.Update)
	h.Post("validate", c.Validate)
	h.Post("reset", c.Reset)
}

func (c *configurationController) Show(ctx *fiber.Ctx) error {
	return ctx.JSON(serverutils.SuccessResponse("Success show configuration", c.store.Snapshot()))
}

func (c *configurationController) Update(ctx *fiber.Ctx) error {
	var patch config.Update
	if err := ctx.BodyParser(&patch); err != nil {
		return err
	}

	snap, err := c.store.Apply(patch)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success update configuration", snap))
}

// Validate dry-runs a full settings document without committing it.
func (c *configurationController) Validate(ctx *fiber.Ctx) error {
	snap := c.store.Snapshot()
	if err := ctx.BodyParser(&snap); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse("Success validate configuration", config.Validate(snap)))
}

func (c *configurationController) Reset(ctx *fiber.Ctx) error {
	snap := c.store.Reset(c.defaults)
	return ctx.JSON(serverutils.SuccessResponse("Success reset configuration", snap))
}
