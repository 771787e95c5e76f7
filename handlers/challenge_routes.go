// handlers/challenge_routes.go
package handlers

import (
	"gamification-engine/middleware"
	"gamification-engine/models"
	"gamification-engine/services"

	"github.com/gofiber/fiber/v2"
)

type progressRequest struct {
	TeamID        string `json:"team_id"`
	UserID        string `json:"user_id"`
	ObjectiveType string `json:"objective_type"`
	Amount        int64  `json:"amount"`
}

func SetupChallengeRoutes(app *fiber.App, challenges *services.ChallengeService) {
	securedGroup := app.Group("/challenges", middleware.UserContextMiddleware())

	securedGroup.Get("/", func(c *fiber.Ctx) error {
		list, err := challenges.ListChallenges(c.UserContext(), models.ChallengeStatus(c.Query("status")))
		if err != nil {
			return respondError(c, "failed to load challenges", err)
		}
		return c.JSON(list)
	})

	securedGroup.Get("/:id", func(c *fiber.Ctx) error {
		ch, err := challenges.GetChallenge(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, "failed to load challenge", err)
		}
		return c.JSON(ch)
	})

	securedGroup.Get("/:id/standings", func(c *fiber.Ctx) error {
		rows, err := challenges.GetTeamStandings(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, "failed to load standings", err)
		}
		return c.JSON(rows)
	})

	adminGroup := app.Group("/s/admin/challenges", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/", func(c *fiber.Ctx) error {
		var req struct {
			models.Challenge
			TeamIDs []string `json:"team_ids"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		ch := req.Challenge
		if err := challenges.CreateChallenge(c.UserContext(), &ch, req.TeamIDs); err != nil {
			return respondError(c, "failed to create challenge", err)
		}
		return c.Status(fiber.StatusCreated).JSON(ch)
	})

	// Either team_id or user_id must be set, matching the challenge mode.
	adminGroup.Post("/:id/progress", func(c *fiber.Ctx) error {
		var req progressRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		if req.TeamID != "" {
			row, err := challenges.UpdateTeamChallengeProgress(c.UserContext(), c.Params("id"), req.TeamID, req.ObjectiveType, req.Amount)
			if err != nil {
				return respondError(c, "failed to update team progress", err)
			}
			return c.JSON(row)
		}
		row, err := challenges.UpdateParticipantProgress(c.UserContext(), c.Params("id"), req.UserID, req.ObjectiveType, req.Amount)
		if err != nil {
			return respondError(c, "failed to update participant progress", err)
		}
		return c.JSON(row)
	})

	adminGroup.Post("/:id/rank", func(c *fiber.Ctx) error {
		rows, err := challenges.UpdateRanking(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, "failed to rank teams", err)
		}
		return c.JSON(rows)
	})

	adminGroup.Post("/:id/distribute", func(c *fiber.Ctx) error {
		report, err := challenges.DistributeRewards(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, "failed to distribute rewards", err)
		}
		return c.JSON(report)
	})
}
