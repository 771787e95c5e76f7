package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gamification-engine/models"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EventEmitter records user-facing gamification events.
type EventEmitter interface {
	Emit(ctx context.Context, userID string, typ models.EventType, title string, payload interface{}) error
}

type EventService struct {
	DB *gorm.DB
}

func NewEventService(db *gorm.DB) *EventService {
	return &EventService{DB: db}
}

func (s *EventService) Emit(ctx context.Context, userID string, typ models.EventType, title string, payload interface{}) error {
	ev := models.GamificationEvent{
		UserID: userID,
		Type:   typ,
		Title:  title,
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode %s payload: %w", typ, err)
		}
		ev.Payload = datatypes.JSON(raw)
	}
	return s.DB.WithContext(ctx).Create(&ev).Error
}

// ListSince returns the user's events after the (since, afterID) cursor, oldest
// first. The id breaks ties between events sharing a timestamp.
func (s *EventService) ListSince(ctx context.Context, userID string, since time.Time, afterID string, limit int) ([]models.GamificationEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	since = since.UTC()
	var events []models.GamificationEvent
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND (created_at > ? OR (created_at = ? AND id > ?))", userID, since, since, afterID).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// Latest returns the newest events for a user, newest first.
func (s *EventService) Latest(ctx context.Context, userID string, limit int) ([]models.GamificationEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []models.GamificationEvent
	err := s.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

// rarityLabel renders a rarity for display, e.g. "legendary" -> "Legendary".
// Casers are stateful, so each call gets its own.
func rarityLabel(r models.BadgeRarity) string {
	return cases.Title(language.English).String(string(r))
}
