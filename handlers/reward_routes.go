// handlers/reward_routes.go
package handlers

import (
	"gamification-engine/middleware"
	"gamification-engine/models"
	"gamification-engine/services"

	"github.com/gofiber/fiber/v2"
)

func SetupRewardRoutes(app *fiber.App, rewards *services.RewardService) {
	securedGroup := app.Group("/rewards", middleware.UserContextMiddleware())

	securedGroup.Get("/", func(c *fiber.Ctx) error {
		items, err := rewards.ListRewards(c.UserContext(), true)
		if err != nil {
			return respondError(c, "failed to load rewards", err)
		}
		return c.JSON(items)
	})

	securedGroup.Post("/:id/redeem", func(c *fiber.Ctx) error {
		redemption, err := rewards.RedeemReward(c.UserContext(), userID(c), c.Params("id"))
		if err != nil {
			return respondError(c, "redemption failed", err)
		}
		return c.Status(fiber.StatusCreated).JSON(redemption)
	})

	securedGroup.Get("/redemptions", func(c *fiber.Ctx) error {
		list, err := rewards.ListRedemptions(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load redemptions", err)
		}
		return c.JSON(list)
	})

	adminGroup := app.Group("/s/admin/rewards", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/", func(c *fiber.Ctx) error {
		var item models.RewardItem
		if err := c.BodyParser(&item); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		item.Active = true
		if err := rewards.CreateReward(c.UserContext(), &item); err != nil {
			return respondError(c, "failed to create reward", err)
		}
		return c.Status(fiber.StatusCreated).JSON(item)
	})

	adminGroup.Patch("/:id", func(c *fiber.Ctx) error {
		var req struct {
			Active bool `json:"active"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		if err := rewards.SetActive(c.UserContext(), c.Params("id"), req.Active); err != nil {
			return respondError(c, "failed to update reward", err)
		}
		return c.JSON(fiber.Map{"id": c.Params("id"), "active": req.Active})
	})
}
