package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamification-engine/utils"

	"github.com/gofiber/fiber/v2"
)

// StreamUserEventsSSE streams level-ups, badges, milestones and challenge
// rewards to the authenticated user as they are recorded.
func (s *EventService) StreamUserEventsSSE(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing user context"})
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	reqCtx := c.Context()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		ctx := context.Background()
		cursorAt, cursorID := time.Now().UTC(), ""
		if latest, err := s.Latest(ctx, userID, 1); err == nil && len(latest) > 0 {
			cursorAt, cursorID = latest[0].CreatedAt, latest[0].ID
		} else if err != nil {
			utils.LogError("SSE init error for user %s: %v", userID, err)
		}

		// Initial keepalive (comment event)
		w.WriteString(":\n\n")
		w.Flush()

		for {
			select {
			case <-ticker.C:
				events, err := s.ListSince(ctx, userID, cursorAt, cursorID, 100)
				if err != nil {
					utils.LogError("SSE query error for user %s: %v", userID, err)
					continue
				}
				if len(events) == 0 {
					if _, err := w.WriteString(":\n\n"); err != nil {
						return
					}
					if err := w.Flush(); err != nil {
						return
					}
					continue
				}

				last := events[len(events)-1]
				cursorAt, cursorID = last.CreatedAt, last.ID
				for _, ev := range events {
					payload, _ := json.Marshal(ev)
					fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
				}
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}

			case <-reqCtx.Done():
				return
			}
		}
	})

	return nil
}
