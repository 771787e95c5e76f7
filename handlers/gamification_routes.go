// handlers/gamification_routes.go
package handlers

import (
	"strconv"
	"strings"
	"time"

	"gamification-engine/middleware"
	"gamification-engine/models"
	"gamification-engine/services"
	"gamification-engine/utils"

	"github.com/gofiber/fiber/v2"
)

func SetupGamificationRoutes(app *fiber.App, engine *services.Engine) {
	// 🔐 Secured routes. The gateway forwards /api/v1/gamification/s/user/... -> /user/...
	securedGroup := app.Group("/", middleware.UserContextMiddleware())

	securedGroup.Get("/user/points", func(c *fiber.Ctx) error {
		total, cached, err := engine.Points.CachedTotal(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load points", err)
		}
		return c.JSON(fiber.Map{"user_id": userID(c), "total_points": total, "cached": cached})
	})

	// Worth of an action for the caller's department (X-User-Department), global row otherwise.
	securedGroup.Get("/points/actions/:action", func(c *fiber.Ctx) error {
		points, err := engine.Config.GetPointsConfig(c.UserContext(), c.Params("action"), departmentOf(c))
		if err != nil {
			return respondError(c, "failed to resolve action points", err)
		}
		return c.JSON(fiber.Map{"action": c.Params("action"), "department": departmentOf(c), "points": points})
	})

	securedGroup.Get("/user/points/history", func(c *fiber.Ctx) error {
		history, err := engine.Points.GetHistory(c.UserContext(), userID(c), c.QueryInt("page", 1), c.QueryInt("page_size", 20))
		if err != nil {
			return respondError(c, "failed to load points history", err)
		}
		return c.JSON(history)
	})

	securedGroup.Get("/user/level", func(c *fiber.Ctx) error {
		progress, err := engine.Levels.GetLevelProgress(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load level progress", err)
		}
		return c.JSON(progress)
	})

	securedGroup.Get("/user/badges", func(c *fiber.Ctx) error {
		earned, err := engine.Badges.ListUserBadges(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load badges", err)
		}
		progress, err := engine.Badges.ListProgress(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load badge progress", err)
		}
		return c.JSON(fiber.Map{"earned": earned, "progress": progress})
	})

	securedGroup.Get("/badges", func(c *fiber.Ctx) error {
		badges, err := engine.Badges.ListBadges(c.UserContext())
		if err != nil {
			return respondError(c, "failed to load badge catalog", err)
		}
		return c.JSON(badges)
	})

	securedGroup.Post("/badges/:id/give", func(c *fiber.Ctx) error {
		var req struct {
			ReceiverID string `json:"receiver_id"`
			Message    string `json:"message"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		gift, err := engine.Badges.GiveBadge(c.UserContext(), userID(c), req.ReceiverID, c.Params("id"), req.Message, time.Now())
		if err != nil {
			return respondError(c, "failed to give badge", err)
		}
		return c.Status(fiber.StatusCreated).JSON(gift)
	})

	securedGroup.Get("/user/streaks", func(c *fiber.Ctx) error {
		streaks, err := engine.Streaks.ListStreaks(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load streaks", err)
		}
		return c.JSON(streaks)
	})

	securedGroup.Get("/user/streaks/:type", func(c *fiber.Ctx) error {
		streak, err := engine.Streaks.GetCurrentStreak(c.UserContext(), userID(c), c.Params("type"))
		if err != nil {
			return respondError(c, "failed to load streak", err)
		}
		atRisk, err := engine.Streaks.IsAtRisk(c.UserContext(), userID(c), c.Params("type"), time.Now())
		if err != nil {
			return respondError(c, "failed to check streak", err)
		}
		return c.JSON(fiber.Map{"streak": streak, "at_risk": atRisk})
	})

	securedGroup.Get("/user/currency", func(c *fiber.Ctx) error {
		balance, err := engine.Currency.GetBalance(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load balance", err)
		}
		return c.JSON(balance)
	})

	securedGroup.Get("/user/currency/history", func(c *fiber.Ctx) error {
		txns, total, err := engine.Currency.GetTransactionHistory(c.UserContext(), userID(c), c.QueryInt("limit", 20), c.QueryInt("offset", 0))
		if err != nil {
			return respondError(c, "failed to load transactions", err)
		}
		return c.JSON(fiber.Map{"transactions": txns, "total": total})
	})

	securedGroup.Post("/user/currency/convert", func(c *fiber.Ctx) error {
		var req struct {
			Points int64 `json:"points"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		res, err := engine.Currency.ConvertPointsToCurrency(c.UserContext(), userID(c), req.Points, 0)
		if err != nil {
			return respondError(c, "conversion failed", err)
		}
		return c.JSON(res)
	})

	securedGroup.Get("/rankings/:type", func(c *fiber.Ctx) error {
		typ := models.RankingType(c.Params("type"))
		rows, err := engine.Rankings.GetRankings(c.UserContext(), typ, time.Now(), c.QueryInt("limit", 50))
		if err != nil {
			return respondError(c, "failed to load rankings", err)
		}
		resp := fiber.Map{"type": typ, "rankings": rows}
		if mine, err := engine.Rankings.GetUserRanking(c.UserContext(), typ, userID(c), time.Now()); err == nil {
			resp["me"] = mine
		}
		return c.JSON(resp)
	})

	securedGroup.Get("/leaderboard/live", func(c *fiber.Ctx) error {
		top, err := engine.Rankings.LiveTop(c.UserContext(), c.QueryInt("limit", 10))
		if err != nil {
			return respondError(c, "failed to load leaderboard", err)
		}
		position, err := engine.Rankings.LivePosition(c.UserContext(), userID(c))
		if err != nil {
			return respondError(c, "failed to load leaderboard position", err)
		}
		return c.JSON(fiber.Map{"top": top, "me": fiber.Map{"user_id": userID(c), "position": position}})
	})

	// 🔐 Admin routes
	adminGroup := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireRole("admin"))

	adminGroup.Post("/points/award", func(c *fiber.Ctx) error {
		var req struct {
			UserID      string                 `json:"user_id"`
			Amount      int64                  `json:"amount"`
			Source      string                 `json:"source"`
			Description string                 `json:"description"`
			EventID     string                 `json:"event_id"`
			Metadata    map[string]interface{} `json:"metadata"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		if req.Source == "" {
			req.Source = models.SourceManualAdjustment
		}
		if req.Metadata == nil {
			req.Metadata = map[string]interface{}{}
		}
		req.Metadata["granted_by"] = userID(c)

		res, err := engine.Points.Award(c.UserContext(), services.AwardInput{
			UserID:      req.UserID,
			Amount:      req.Amount,
			Source:      req.Source,
			Description: req.Description,
			Metadata:    req.Metadata,
			EventID:     req.EventID,
		})
		if err != nil {
			return respondError(c, "failed to award points", err)
		}
		status := fiber.StatusCreated
		if res.Duplicate {
			status = fiber.StatusOK
		}
		return c.Status(status).JSON(res)
	})

	adminGroup.Get("/config/points", func(c *fiber.Ctx) error {
		rows, err := engine.Config.ListPointsConfig(c.UserContext())
		if err != nil {
			return respondError(c, "failed to load points config", err)
		}
		return c.JSON(rows)
	})

	adminGroup.Put("/config/points", func(c *fiber.Ctx) error {
		var cfg models.GamificationConfig
		if err := c.BodyParser(&cfg); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		if err := engine.Config.UpsertPointsConfig(c.UserContext(), &cfg); err != nil {
			return respondError(c, "failed to save points config", err)
		}
		return c.JSON(cfg)
	})

	// multipart: name, description, rarity, category, social_badge,
	// criteria_type, criteria_value, criteria_source, icon (optional file)
	adminGroup.Post("/badges", func(c *fiber.Ctx) error {
		criteriaValue, _ := strconv.ParseInt(c.FormValue("criteria_value"), 10, 64)
		badge := &models.Badge{
			Code:        strings.TrimSpace(c.FormValue("code")),
			Name:        strings.TrimSpace(c.FormValue("name")),
			Description: c.FormValue("description"),
			Rarity:      models.BadgeRarity(c.FormValue("rarity")),
			Category:    c.FormValue("category"),
			SocialBadge: c.FormValue("social_badge") == "true",
			Active:      true,
		}
		criteria := &models.BadgeCriteria{
			Type:        models.CriteriaType(c.FormValue("criteria_type")),
			Value:       criteriaValue,
			Description: c.FormValue("criteria_description"),
			SourceTag:   c.FormValue("criteria_source"),
		}
		if err := engine.Badges.CreateBadge(c.UserContext(), badge, criteria); err != nil {
			return respondError(c, "failed to create badge", err)
		}

		if fileHeader, err := c.FormFile("icon"); err == nil {
			if !utils.R2Ready() {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "icon storage is not configured", "badge": badge})
			}
			iconURL, err := utils.UploadBadgeIcon(c.UserContext(), fileHeader, badge.Code)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "icon upload failed", "cause": err.Error(), "badge": badge})
			}
			if err := engine.Badges.SetIcon(c.UserContext(), badge.ID, iconURL); err != nil {
				return respondError(c, "failed to save icon", err)
			}
			badge.IconURL = iconURL
		}
		return c.Status(fiber.StatusCreated).JSON(badge)
	})

	adminGroup.Post("/badges/:id/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID string `json:"user_id"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		granted, err := engine.Badges.GrantBadge(c.UserContext(), req.UserID, c.Params("id"), models.SourceManualAdjustment)
		if err != nil {
			return respondError(c, "failed to grant badge", err)
		}
		return c.JSON(fiber.Map{"granted": granted})
	})

	adminGroup.Post("/activities", func(c *fiber.Ctx) error {
		var ev services.ActivityEvent
		if err := c.BodyParser(&ev); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body", "cause": err.Error()})
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now()
		}
		if ev.Department == nil {
			ev.Department = departmentOf(c)
		}
		res, err := engine.Dispatcher.Dispatch(c.UserContext(), ev)
		if err != nil {
			return respondError(c, "failed to process activity", err)
		}
		return c.JSON(res)
	})
}
