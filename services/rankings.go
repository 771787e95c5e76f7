package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gamification-engine/cache"
	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/gorm"
)

// LiveBoard is the cached leaderboard kept next to the ledger.
type LiveBoard interface {
	SetTotal(ctx context.Context, userID string, total int64) error
	TopN(ctx context.Context, n int64) ([]cache.LeaderboardEntry, error)
	GetRank(ctx context.Context, userID string) (int64, error)
}

type RankingService struct {
	DB   *gorm.DB
	Live LiveBoard
}

func NewRankingService(db *gorm.DB, live LiveBoard) *RankingService {
	return &RankingService{DB: db, Live: live}
}

// RankingPeriod returns the [start, end) window of a ranking type around now.
// Weeks start on Monday; all-time starts at the epoch and ends at now.
func RankingPeriod(typ models.RankingType, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	switch typ {
	case models.RankingWeekly:
		offset := (int(day.Weekday()) + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case models.RankingMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case models.RankingAllTime:
		return time.Unix(0, 0).UTC(), now, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: unknown ranking type %q", ErrInvalidInput, typ)
	}
}

type userPoints struct {
	UserID string
	Points int64
}

// RecomputeRankings replaces the snapshot of the current period with fresh
// positions aggregated from the points ledger.
func (s *RankingService) RecomputeRankings(ctx context.Context, typ models.RankingType, now time.Time) ([]models.Ranking, error) {
	start, end, err := RankingPeriod(typ, now)
	if err != nil {
		return nil, err
	}

	q := s.DB.WithContext(ctx).Model(&models.PointEntry{}).
		Select("user_id, SUM(amount) AS points").
		Group("user_id").
		Order("points DESC, user_id ASC")
	if typ != models.RankingAllTime {
		q = q.Where("created_at >= ? AND created_at < ?", start, end)
	}
	var totals []userPoints
	if err := q.Scan(&totals).Error; err != nil {
		return nil, fmt.Errorf("aggregate %s points: %w", typ, err)
	}

	rows := make([]models.Ranking, 0, len(totals))
	for i, t := range totals {
		rows = append(rows, models.Ranking{
			Type:        typ,
			PeriodStart: start,
			PeriodEnd:   end,
			UserID:      t.UserID,
			Points:      t.Points,
			Position:    i + 1,
		})
	}

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("type = ? AND period_start = ?", typ, start).Delete(&models.Ranking{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(&rows, 1000).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store %s rankings: %w", typ, err)
	}

	if typ == models.RankingAllTime && s.Live != nil {
		for _, t := range totals {
			if err := s.Live.SetTotal(ctx, t.UserID, t.Points); err != nil {
				utils.LogWarn("⚠️ Live leaderboard refresh failed: %v", err)
				break
			}
		}
	}

	utils.LogInfo("📊 %s rankings recomputed: %d user(s)", typ, len(rows))
	return rows, nil
}

// GetRankings returns the stored snapshot of the period containing now.
func (s *RankingService) GetRankings(ctx context.Context, typ models.RankingType, now time.Time, limit int) ([]models.Ranking, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	q, err := s.periodQuery(ctx, typ, now)
	if err != nil {
		return nil, err
	}
	var out []models.Ranking
	err = q.Order("position ASC").Limit(limit).Find(&out).Error
	return out, err
}

// GetUserRanking returns the user's row in the current snapshot, or ErrNotFound.
func (s *RankingService) GetUserRanking(ctx context.Context, typ models.RankingType, userID string, now time.Time) (*models.Ranking, error) {
	q, err := s.periodQuery(ctx, typ, now)
	if err != nil {
		return nil, err
	}
	var r models.Ranking
	err = q.Where("user_id = ?", userID).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: no %s ranking for %s", ErrNotFound, typ, userID)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// LivePosition is the user's 1-based place on the live leaderboard, falling back
// to the all-time snapshot. 0 means unranked.
func (s *RankingService) LivePosition(ctx context.Context, userID string) (int, error) {
	if s.Live != nil {
		rank, err := s.Live.GetRank(ctx, userID)
		if err == nil && rank > 0 {
			return int(rank), nil
		}
		if err != nil {
			utils.LogWarn("⚠️ Live rank unavailable for %s, using snapshot: %v", userID, err)
		}
	}
	r, err := s.GetUserRanking(ctx, models.RankingAllTime, userID, time.Now())
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return r.Position, nil
}

func (s *RankingService) periodQuery(ctx context.Context, typ models.RankingType, now time.Time) (*gorm.DB, error) {
	start, _, err := RankingPeriod(typ, now)
	if err != nil {
		return nil, err
	}
	return s.DB.WithContext(ctx).Where("type = ? AND period_start = ?", typ, start), nil
}

// LiveTop reads the cached leaderboard, falling back to the all-time snapshot.
func (s *RankingService) LiveTop(ctx context.Context, n int) ([]cache.LeaderboardEntry, error) {
	if s.Live != nil {
		entries, err := s.Live.TopN(ctx, int64(n))
		if err == nil {
			return entries, nil
		}
		utils.LogWarn("⚠️ Live leaderboard unavailable, using snapshot: %v", err)
	}
	rows, err := s.GetRankings(ctx, models.RankingAllTime, time.Now(), n)
	if err != nil {
		return nil, err
	}
	out := make([]cache.LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, cache.LeaderboardEntry{UserID: r.UserID, Points: r.Points, Position: r.Position})
	}
	return out, nil
}
