package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CurrencyWriter is the write side of the currency ledger.
type CurrencyWriter interface {
	AddTransaction(ctx context.Context, in TransactionInput) (*models.CurrencyTransaction, error)
}

// BadgeGranter grants a badge outside of criteria evaluation.
type BadgeGranter interface {
	GrantBadge(ctx context.Context, userID, badgeID, source string) (bool, error)
}

type ChallengeService struct {
	DB       *gorm.DB
	Points   PointsAwarder
	Currency CurrencyWriter
	Badges   BadgeGranter
	Events   EventEmitter
	Now      func() time.Time
}

func NewChallengeService(db *gorm.DB, points PointsAwarder, currency CurrencyWriter, badges BadgeGranter, events EventEmitter) *ChallengeService {
	return &ChallengeService{
		DB:       db,
		Points:   points,
		Currency: currency,
		Badges:   badges,
		Events:   events,
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateChallenge stores a challenge with its objectives (indexed by order)
// and participating teams. Status follows the schedule at creation time.
func (s *ChallengeService) CreateChallenge(ctx context.Context, ch *models.Challenge, teamIDs []string) error {
	if strings.TrimSpace(ch.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if ch.StartsAt.IsZero() || !ch.EndsAt.After(ch.StartsAt) {
		return fmt.Errorf("%w: challenge needs a start and an end after it", ErrInvalidInput)
	}
	for i := range ch.Objectives {
		obj := &ch.Objectives[i]
		if strings.TrimSpace(obj.Type) == "" || obj.Target <= 0 {
			return fmt.Errorf("%w: objective %d needs a type and a positive target", ErrInvalidInput, i)
		}
		obj.Position = i
	}
	ch.Teams = nil
	seen := map[string]bool{}
	for _, id := range teamIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ch.Teams = append(ch.Teams, models.ChallengeTeam{TeamID: id})
	}

	now := s.Now()
	switch {
	case !now.Before(ch.EndsAt):
		ch.Status = models.ChallengeEnded
	case !now.Before(ch.StartsAt):
		ch.Status = models.ChallengeActive
	default:
		ch.Status = models.ChallengeUpcoming
	}
	ch.StartsAt = ch.StartsAt.UTC()
	ch.EndsAt = ch.EndsAt.UTC()

	if err := s.DB.WithContext(ctx).Create(ch).Error; err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	utils.LogSuccess("🏁 Challenge created: %s (%s, %d objectives)", ch.Title, ch.Status, len(ch.Objectives))
	return nil
}

func (s *ChallengeService) GetChallenge(ctx context.Context, challengeID string) (*models.Challenge, error) {
	var ch models.Challenge
	err := s.DB.WithContext(ctx).
		Preload("Objectives", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Teams").
		Where("id = ?", challengeID).
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: challenge %s", ErrNotFound, challengeID)
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context, status models.ChallengeStatus) ([]models.Challenge, error) {
	q := s.DB.WithContext(ctx).
		Preload("Objectives", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Order("starts_at DESC")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.Challenge
	err := q.Find(&out).Error
	return out, err
}

// applyObjectiveProgress advances every objective of objectiveType by amount,
// capped at its target. The result has one entry per objective. A challenge
// without objectives is never complete.
func applyObjectiveProgress(objectives []models.ChallengeObjective, current []models.ObjectiveProgress, objectiveType string, amount int64) ([]models.ObjectiveProgress, int64, bool) {
	byIndex := make(map[int]models.ObjectiveProgress, len(current))
	for _, p := range current {
		byIndex[p.ObjectiveIndex] = p
	}

	out := make([]models.ObjectiveProgress, 0, len(objectives))
	var total int64
	completed := len(objectives) > 0
	for _, obj := range objectives {
		p := byIndex[obj.Position]
		p.ObjectiveIndex = obj.Position
		if obj.Type == objectiveType {
			p.Current += amount
			if p.Current > obj.Target {
				p.Current = obj.Target
			}
		}
		p.Completed = p.Current >= obj.Target
		total += p.Current
		completed = completed && p.Completed
		out = append(out, p)
	}
	return out, total, completed
}

func (s *ChallengeService) openChallenge(ctx context.Context, challengeID string, amount int64) (*models.Challenge, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	now := s.Now()
	if ch.Status == models.ChallengeEnded || !now.Before(ch.EndsAt) {
		return nil, ErrChallengeEnded
	}
	if ch.Status == models.ChallengeUpcoming && now.Before(ch.StartsAt) {
		return nil, ErrChallengeNotActive
	}
	return ch, nil
}

var (
	errVersionConflict = errors.New("version conflict")
	errAlreadyCounted  = errors.New("event already counted")
)

// commitProgress writes a CAS-guarded progress update. With a non-empty
// eventID the event marker goes into the same transaction, so an event
// advances a challenge at most once.
func (s *ChallengeService) commitProgress(ctx context.Context, model interface{}, id string, version int64, updates map[string]interface{}, challengeID, subjectID, eventID string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if eventID != "" {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.ChallengeProgressEvent{
				ChallengeID: challengeID,
				EventID:     eventID,
				SubjectID:   subjectID,
			})
			if res.Error != nil {
				return fmt.Errorf("record progress event: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return errAlreadyCounted
			}
		}
		res := tx.Model(model).Where("id = ? AND version = ?", id, version).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errVersionConflict
		}
		return nil
	})
}

// UpdateTeamChallengeProgress adds amount to the team's objectives of the given
// type, then re-ranks the challenge.
func (s *ChallengeService) UpdateTeamChallengeProgress(ctx context.Context, challengeID, teamID, objectiveType string, amount int64) (*models.ChallengeTeamProgress, error) {
	return s.ApplyTeamProgress(ctx, "", challengeID, teamID, objectiveType, amount)
}

// ApplyTeamProgress is UpdateTeamChallengeProgress keyed by the activity event
// that caused it. Re-applying the same eventID leaves progress unchanged.
func (s *ChallengeService) ApplyTeamProgress(ctx context.Context, eventID, challengeID, teamID, objectiveType string, amount int64) (*models.ChallengeTeamProgress, error) {
	ch, err := s.openChallenge(ctx, challengeID, amount)
	if err != nil {
		return nil, err
	}
	if !ch.TeamBased {
		return nil, fmt.Errorf("%w: challenge %s is not team based", ErrInvalidInput, challengeID)
	}
	if len(ch.Teams) > 0 && !hasTeam(ch.Teams, teamID) {
		return nil, ErrNotParticipating
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var tp models.ChallengeTeamProgress
		err := s.DB.WithContext(ctx).Where("challenge_id = ? AND team_id = ?", challengeID, teamID).First(&tp).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			initial, _, _ := applyObjectiveProgress(ch.Objectives, nil, "", 0)
			tp = models.ChallengeTeamProgress{ChallengeID: challengeID, TeamID: teamID, Progress: initial}
			if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&tp).Error; err != nil {
				return nil, fmt.Errorf("create team progress: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		progress, total, completed := applyObjectiveProgress(ch.Objectives, tp.Progress, objectiveType, amount)
		updates := map[string]interface{}{
			"progress":       datatypes.JSONSlice[models.ObjectiveProgress](progress),
			"total_progress": total,
			"completed":      completed,
			"version":        tp.Version + 1,
		}
		if completed && tp.CompletedAt == nil {
			updates["completed_at"] = s.Now()
		}

		err = s.commitProgress(ctx, &models.ChallengeTeamProgress{}, tp.ID, tp.Version, updates, challengeID, teamID, eventID)
		switch {
		case errors.Is(err, errVersionConflict):
			continue
		case errors.Is(err, errAlreadyCounted):
			utils.LogDebug("⏭️ Event %s already counted for team %s in %s", eventID, teamID, challengeID)
		case err != nil:
			return nil, fmt.Errorf("update team progress: %w", err)
		case completed && tp.CompletedAt == nil:
			utils.LogSuccess("🏆 Team %s completed challenge %s", teamID, ch.Title)
		}

		// replays re-rank as well
		if _, err := s.UpdateRanking(ctx, challengeID); err != nil {
			return nil, err
		}

		var fresh models.ChallengeTeamProgress
		if err := s.DB.WithContext(ctx).Where("id = ?", tp.ID).First(&fresh).Error; err != nil {
			return nil, err
		}
		return &fresh, nil
	}
	return nil, fmt.Errorf("team progress %s/%s: %w", challengeID, teamID, ErrConcurrentUpdate)
}

// UpdateParticipantProgress is the individual counterpart for non-team challenges.
func (s *ChallengeService) UpdateParticipantProgress(ctx context.Context, challengeID, userID, objectiveType string, amount int64) (*models.ChallengeParticipant, error) {
	return s.ApplyParticipantProgress(ctx, "", challengeID, userID, objectiveType, amount)
}

// ApplyParticipantProgress is UpdateParticipantProgress keyed by an activity event.
func (s *ChallengeService) ApplyParticipantProgress(ctx context.Context, eventID, challengeID, userID, objectiveType string, amount int64) (*models.ChallengeParticipant, error) {
	ch, err := s.openChallenge(ctx, challengeID, amount)
	if err != nil {
		return nil, err
	}
	if ch.TeamBased {
		return nil, fmt.Errorf("%w: challenge %s is team based", ErrInvalidInput, challengeID)
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		var cp models.ChallengeParticipant
		err := s.DB.WithContext(ctx).Where("challenge_id = ? AND user_id = ?", challengeID, userID).First(&cp).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			initial, _, _ := applyObjectiveProgress(ch.Objectives, nil, "", 0)
			cp = models.ChallengeParticipant{ChallengeID: challengeID, UserID: userID, Progress: initial}
			if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&cp).Error; err != nil {
				return nil, fmt.Errorf("create participant progress: %w", err)
			}
			continue
		}
		if err != nil {
			return nil, err
		}

		progress, total, completed := applyObjectiveProgress(ch.Objectives, cp.Progress, objectiveType, amount)
		updates := map[string]interface{}{
			"progress":       datatypes.JSONSlice[models.ObjectiveProgress](progress),
			"total_progress": total,
			"completed":      completed,
			"version":        cp.Version + 1,
		}
		if completed && cp.CompletedAt == nil {
			updates["completed_at"] = s.Now()
		}

		err = s.commitProgress(ctx, &models.ChallengeParticipant{}, cp.ID, cp.Version, updates, challengeID, userID, eventID)
		switch {
		case errors.Is(err, errVersionConflict):
			continue
		case errors.Is(err, errAlreadyCounted):
			utils.LogDebug("⏭️ Event %s already counted for %s in %s", eventID, userID, challengeID)
		case err != nil:
			return nil, fmt.Errorf("update participant progress: %w", err)
		}

		var fresh models.ChallengeParticipant
		if err := s.DB.WithContext(ctx).Where("id = ?", cp.ID).First(&fresh).Error; err != nil {
			return nil, err
		}
		return &fresh, nil
	}
	return nil, fmt.Errorf("participant progress %s/%s: %w", challengeID, userID, ErrConcurrentUpdate)
}

func hasTeam(teams []models.ChallengeTeam, teamID string) bool {
	for _, t := range teams {
		if t.TeamID == teamID {
			return true
		}
	}
	return false
}

// rankTeams orders by total progress desc, then earliest completion (unfinished
// last), then team id so equal snapshots always rank the same way.
func rankTeams(rows []models.ChallengeTeamProgress) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.TotalProgress != b.TotalProgress {
			return a.TotalProgress > b.TotalProgress
		}
		switch {
		case a.CompletedAt != nil && b.CompletedAt != nil:
			if !a.CompletedAt.Equal(*b.CompletedAt) {
				return a.CompletedAt.Before(*b.CompletedAt)
			}
		case a.CompletedAt != nil:
			return true
		case b.CompletedAt != nil:
			return false
		}
		return a.TeamID < b.TeamID
	})
	for i := range rows {
		rank := i + 1
		rows[i].Rank = &rank
	}
}

// UpdateRanking recomputes and stores sequential ranks starting at 1.
func (s *ChallengeService) UpdateRanking(ctx context.Context, challengeID string) ([]models.ChallengeTeamProgress, error) {
	var rows []models.ChallengeTeamProgress
	if err := s.DB.WithContext(ctx).Where("challenge_id = ?", challengeID).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load team progress: %w", err)
	}
	rankTeams(rows)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range rows {
			if err := tx.Model(&models.ChallengeTeamProgress{}).
				Where("id = ?", r.ID).
				UpdateColumn("rank", *r.Rank).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store ranks for %s: %w", challengeID, err)
	}
	return rows, nil
}

// GetTeamStandings returns team progress ordered by rank.
func (s *ChallengeService) GetTeamStandings(ctx context.Context, challengeID string) ([]models.ChallengeTeamProgress, error) {
	var rows []models.ChallengeTeamProgress
	err := s.DB.WithContext(ctx).
		Where("challenge_id = ?", challengeID).
		Order("rank ASC").
		Find(&rows).Error
	return rows, err
}

// teamRewardPercent is the share of the reward a team gets for its rank.
func teamRewardPercent(rank, totalTeams int) int64 {
	switch {
	case rank == 1:
		return 100
	case rank == 2:
		return 70
	case rank == 3:
		return 50
	case rank <= (totalTeams+1)/2:
		return 30
	default:
		return 10
	}
}

type Payout struct {
	UserID   string `json:"user_id"`
	TeamID   string `json:"team_id,omitempty"`
	Rank     int    `json:"rank,omitempty"`
	Percent  int64  `json:"percent"`
	Points   int64  `json:"points"`
	Currency int64  `json:"currency"`
}

type DistributionReport struct {
	ChallengeID        string   `json:"challenge_id"`
	AlreadyDistributed bool     `json:"already_distributed"`
	Payouts            []Payout `json:"payouts"`
}

// DistributeRewards pays a challenge out once. The distributed flag is claimed
// before any payout, so a second call (or a concurrent one) is a no-op.
// Team rewards are scaled by rank and split evenly, remainder dropped, among the
// team's active members; individual challenges pay the full reward to every
// participant who completed it.
func (s *ChallengeService) DistributeRewards(ctx context.Context, challengeID string) (*DistributionReport, error) {
	report := &DistributionReport{ChallengeID: challengeID}

	res := s.DB.WithContext(ctx).Model(&models.Challenge{}).
		Where("id = ? AND rewards_distributed = ?", challengeID, false).
		Updates(map[string]interface{}{"rewards_distributed": true, "distributed_at": s.Now()})
	if res.Error != nil {
		return nil, fmt.Errorf("claim distribution for %s: %w", challengeID, res.Error)
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetChallenge(ctx, challengeID); err != nil {
			return nil, err
		}
		report.AlreadyDistributed = true
		return report, nil
	}

	ch, err := s.GetChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	if ch.TeamBased {
		err = s.distributeTeams(ctx, ch, report)
	} else {
		err = s.distributeParticipants(ctx, ch, report)
	}
	if err != nil {
		return report, err
	}

	utils.LogSuccess("🎉 Rewards distributed for %s to %d user(s)", ch.Title, len(report.Payouts))
	return report, nil
}

func (s *ChallengeService) distributeTeams(ctx context.Context, ch *models.Challenge, report *DistributionReport) error {
	ranked, err := s.UpdateRanking(ctx, ch.ID)
	if err != nil {
		return err
	}

	for _, team := range ranked {
		rank := *team.Rank
		pct := teamRewardPercent(rank, len(ranked))

		var members []models.TeamMember
		if err := s.DB.WithContext(ctx).
			Where("team_id = ? AND is_active = ?", team.TeamID, true).
			Order("user_id ASC").
			Find(&members).Error; err != nil {
			return fmt.Errorf("load members of %s: %w", team.TeamID, err)
		}
		if len(members) == 0 {
			utils.LogWarn("⚠️ Team %s has no active members, skipping payout", team.TeamID)
			continue
		}

		n := int64(len(members))
		points := ch.RewardPoints * pct / 100 / n
		currency := ch.RewardCurrency * pct / 100 / n

		var badges []string
		if team.Completed {
			badges = ch.RewardBadgeIDs
		}
		for _, m := range members {
			p := Payout{UserID: m.UserID, TeamID: team.TeamID, Rank: rank, Percent: pct, Points: points, Currency: currency}
			if err := s.payout(ctx, ch, p, badges); err != nil {
				return err
			}
			report.Payouts = append(report.Payouts, p)
		}
	}
	return nil
}

func (s *ChallengeService) distributeParticipants(ctx context.Context, ch *models.Challenge, report *DistributionReport) error {
	var done []models.ChallengeParticipant
	if err := s.DB.WithContext(ctx).
		Where("challenge_id = ? AND completed = ?", ch.ID, true).
		Order("completed_at ASC").
		Find(&done).Error; err != nil {
		return fmt.Errorf("load completed participants: %w", err)
	}
	for _, cp := range done {
		p := Payout{UserID: cp.UserID, Percent: 100, Points: ch.RewardPoints, Currency: ch.RewardCurrency}
		if err := s.payout(ctx, ch, p, ch.RewardBadgeIDs); err != nil {
			return err
		}
		report.Payouts = append(report.Payouts, p)
	}
	return nil
}

func (s *ChallengeService) payout(ctx context.Context, ch *models.Challenge, p Payout, badgeIDs []string) error {
	if p.Points > 0 && s.Points != nil {
		if _, err := s.Points.Award(ctx, AwardInput{
			UserID:      p.UserID,
			Amount:      p.Points,
			Source:      models.SourceChallengeReward,
			Description: "Challenge reward: " + ch.Title,
			Metadata:    map[string]interface{}{"challenge_id": ch.ID, "team_id": p.TeamID, "rank": p.Rank, "percent": p.Percent},
			EventID:     fmt.Sprintf("challenge:%s:%s:%s", ch.ID, p.TeamID, p.UserID),
		}); err != nil {
			return fmt.Errorf("award challenge points to %s: %w", p.UserID, err)
		}
	}
	if p.Currency > 0 && s.Currency != nil {
		if _, err := s.Currency.AddTransaction(ctx, TransactionInput{
			UserID:      p.UserID,
			Type:        models.TransactionEarn,
			Amount:      p.Currency,
			Source:      models.SourceChallengeReward,
			Description: "Challenge reward: " + ch.Title,
			Metadata:    map[string]interface{}{"challenge_id": ch.ID, "team_id": p.TeamID, "rank": p.Rank},
		}); err != nil {
			return fmt.Errorf("credit challenge currency to %s: %w", p.UserID, err)
		}
	}
	if s.Badges != nil {
		for _, badgeID := range badgeIDs {
			if _, err := s.Badges.GrantBadge(ctx, p.UserID, badgeID, models.SourceChallengeReward); err != nil {
				return fmt.Errorf("grant challenge badge to %s: %w", p.UserID, err)
			}
		}
	}
	if s.Events != nil {
		if err := s.Events.Emit(ctx, p.UserID, models.EventChallengeReward, "Challenge reward: "+ch.Title, p); err != nil {
			utils.LogWarn("⚠️ Failed to record challenge_reward event for %s: %v", p.UserID, err)
		}
	}
	return nil
}

// AdvanceStatuses moves challenges along upcoming -> active -> ended and
// distributes rewards for ended challenges that haven't paid out yet.
func (s *ChallengeService) AdvanceStatuses(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	activated := s.DB.WithContext(ctx).Model(&models.Challenge{}).
		Where("status = ? AND starts_at <= ? AND ends_at > ?", models.ChallengeUpcoming, now, now).
		Update("status", models.ChallengeActive)
	if activated.Error != nil {
		return 0, activated.Error
	}

	ended := s.DB.WithContext(ctx).Model(&models.Challenge{}).
		Where("status <> ? AND ends_at <= ?", models.ChallengeEnded, now).
		Update("status", models.ChallengeEnded)
	if ended.Error != nil {
		return 0, ended.Error
	}

	var pending []models.Challenge
	if err := s.DB.WithContext(ctx).
		Where("status = ? AND rewards_distributed = ?", models.ChallengeEnded, false).
		Find(&pending).Error; err != nil {
		return 0, err
	}
	for _, ch := range pending {
		if _, err := s.DistributeRewards(ctx, ch.ID); err != nil {
			utils.LogError("❌ Reward distribution failed for challenge %s: %v", ch.ID, err)
		}
	}

	changed := int(activated.RowsAffected + ended.RowsAffected)
	if changed > 0 {
		utils.LogInfo("🗓️ Challenge statuses advanced: %d activated, %d ended", activated.RowsAffected, ended.RowsAffected)
	}
	return changed, nil
}
