package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gamification-engine/models"

	"gorm.io/gorm"
)

var challengeClock = time.Date(2026, 9, 14, 12, 0, 0, 0, time.UTC)

type challengeFixture struct {
	db       *gorm.DB
	svc      *ChallengeService
	points   *PointsService
	currency *CurrencyService
	badges   *BadgeService
}

func setupChallengeService(t *testing.T) *challengeFixture {
	t.Helper()

	db := setupTestDB(t)
	events := NewEventService(db)
	points := NewPointsService(db, NewConfigService(db))
	currency := NewCurrencyService(db, 0)
	badges := NewBadgeService(db, points, events, nil)
	svc := NewChallengeService(db, points, currency, badges, events)
	svc.Now = func() time.Time { return challengeClock }
	return &challengeFixture{db: db, svc: svc, points: points, currency: currency, badges: badges}
}

func (f *challengeFixture) addMembers(t *testing.T, teamID string, active bool, userIDs ...string) {
	t.Helper()
	for _, u := range userIDs {
		m := models.TeamMember{TeamID: teamID, UserID: u, IsActive: active, JoinedAt: challengeClock}
		if err := f.db.Create(&m).Error; err != nil {
			t.Fatalf("Failed to add member %s: %v", u, err)
		}
	}
}

func newTeamChallenge(t *testing.T, f *challengeFixture, teams ...string) *models.Challenge {
	t.Helper()

	ch := &models.Challenge{
		Title:          "Q3 sprint",
		RewardPoints:   1000,
		RewardCurrency: 100,
		TeamBased:      true,
		StartsAt:       challengeClock.Add(-time.Hour),
		EndsAt:         challengeClock.Add(24 * time.Hour),
		Objectives: []models.ChallengeObjective{
			{Type: "task_completed", Target: 50, Description: "Close 50 tasks"},
		},
	}
	if err := f.svc.CreateChallenge(context.Background(), ch, teams); err != nil {
		t.Fatalf("Failed to create challenge: %v", err)
	}
	return ch
}

func TestApplyObjectiveProgress(t *testing.T) {
	objectives := []models.ChallengeObjective{
		{Position: 0, Type: "task_completed", Target: 10},
		{Position: 1, Type: "report_filed", Target: 3},
	}

	progress, total, done := applyObjectiveProgress(objectives, nil, "task_completed", 4)
	if total != 4 || done {
		t.Errorf("Expected total 4 not completed, got %d %v", total, done)
	}
	if len(progress) != 2 || progress[0].Current != 4 || progress[1].Current != 0 {
		t.Errorf("Unexpected progress: %+v", progress)
	}

	progress, total, done = applyObjectiveProgress(objectives, progress, "task_completed", 100)
	if progress[0].Current != 10 || !progress[0].Completed {
		t.Errorf("Objective must cap at its target, got %+v", progress[0])
	}
	if done {
		t.Error("Challenge is not complete until every objective is")
	}

	progress, total, done = applyObjectiveProgress(objectives, progress, "report_filed", 3)
	if !done || total != 13 {
		t.Errorf("Expected completed with total 13, got %v %d", done, total)
	}

	_, _, done = applyObjectiveProgress(nil, nil, "task_completed", 5)
	if done {
		t.Error("A challenge without objectives never completes")
	}
}

func TestTeamRewardPercent(t *testing.T) {
	tests := []struct {
		rank, teams int
		want        int64
	}{
		{1, 1, 100},
		{2, 3, 70},
		{3, 3, 50},
		{4, 8, 30},
		{5, 8, 10},
		{4, 5, 10},
		{4, 7, 30},
	}
	for _, tt := range tests {
		if got := teamRewardPercent(tt.rank, tt.teams); got != tt.want {
			t.Errorf("teamRewardPercent(%d, %d) = %d, want %d", tt.rank, tt.teams, got, tt.want)
		}
	}
}

func TestRankTeams_TieBreaks(t *testing.T) {
	early := challengeClock.Add(-2 * time.Hour)
	late := challengeClock.Add(-time.Hour)
	rows := []models.ChallengeTeamProgress{
		{TeamID: "d", TotalProgress: 10},
		{TeamID: "c", TotalProgress: 30, CompletedAt: &late},
		{TeamID: "b", TotalProgress: 30, CompletedAt: &early},
		{TeamID: "a", TotalProgress: 10},
		{TeamID: "e", TotalProgress: 30},
	}
	rankTeams(rows)

	want := []string{"b", "c", "e", "a", "d"}
	for i, r := range rows {
		if r.TeamID != want[i] {
			t.Errorf("Position %d: expected %s, got %s", i+1, want[i], r.TeamID)
		}
		if r.Rank == nil || *r.Rank != i+1 {
			t.Errorf("Team %s: expected rank %d, got %v", r.TeamID, i+1, r.Rank)
		}
	}
}

func TestCreateChallenge_Validation(t *testing.T) {
	f := setupChallengeService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		ch   *models.Challenge
	}{
		{"no title", &models.Challenge{StartsAt: challengeClock, EndsAt: challengeClock.Add(time.Hour)}},
		{"no start", &models.Challenge{Title: "x", EndsAt: challengeClock}},
		{"end before start", &models.Challenge{Title: "x", StartsAt: challengeClock, EndsAt: challengeClock.Add(-time.Hour)}},
		{"zero target", &models.Challenge{Title: "x", StartsAt: challengeClock, EndsAt: challengeClock.Add(time.Hour),
			Objectives: []models.ChallengeObjective{{Type: "task_completed", Target: 0}}}},
	}
	for _, tt := range tests {
		if err := f.svc.CreateChallenge(ctx, tt.ch, nil); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected ErrInvalidInput, got %v", tt.name, err)
		}
	}
}

func TestCreateChallenge_StatusFromSchedule(t *testing.T) {
	f := setupChallengeService(t)
	ctx := context.Background()

	upcoming := &models.Challenge{Title: "later", StartsAt: challengeClock.Add(time.Hour), EndsAt: challengeClock.Add(2 * time.Hour)}
	if err := f.svc.CreateChallenge(ctx, upcoming, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if upcoming.Status != models.ChallengeUpcoming {
		t.Errorf("Expected upcoming, got %s", upcoming.Status)
	}

	active := newTeamChallenge(t, f, "t1", "t1", "t2")
	if active.Status != models.ChallengeActive {
		t.Errorf("Expected active, got %s", active.Status)
	}
	stored, err := f.svc.GetChallenge(ctx, active.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(stored.Teams) != 2 {
		t.Errorf("Duplicate team ids must be collapsed, got %d teams", len(stored.Teams))
	}
	if len(stored.Objectives) != 1 || stored.Objectives[0].Position != 0 {
		t.Errorf("Unexpected objectives: %+v", stored.Objectives)
	}
}

func TestUpdateTeamChallengeProgress(t *testing.T) {
	f := setupChallengeService(t)
	ctx := context.Background()
	ch := newTeamChallenge(t, f, "alpha", "beta")

	tp, err := f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "alpha", "task_completed", 20)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tp.TotalProgress != 20 || tp.Completed {
		t.Errorf("Expected 20 not completed, got %d %v", tp.TotalProgress, tp.Completed)
	}
	if tp.Rank == nil || *tp.Rank != 1 {
		t.Errorf("Single team must rank 1, got %v", tp.Rank)
	}

	// Other objective types don't count.
	tp, err = f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "alpha", "report_filed", 5)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tp.TotalProgress != 20 {
		t.Errorf("Expected 20, got %d", tp.TotalProgress)
	}

	tp, err = f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "alpha", "task_completed", 45)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if tp.TotalProgress != 50 || !tp.Completed || tp.CompletedAt == nil {
		t.Errorf("Expected capped 50 and completed, got %d %v %v", tp.TotalProgress, tp.Completed, tp.CompletedAt)
	}
	completedAt := *tp.CompletedAt

	tp, err = f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "alpha", "task_completed", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !tp.CompletedAt.Equal(completedAt) {
		t.Errorf("CompletedAt must be set once, changed from %v to %v", completedAt, tp.CompletedAt)
	}

	if _, err := f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "gamma", "task_completed", 1); !errors.Is(err, ErrNotParticipating) {
		t.Errorf("Expected ErrNotParticipating, got %v", err)
	}
	if _, err := f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "beta", "task_completed", 0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero amount, got %v", err)
	}
}

func TestUpdateTeamChallengeProgress_RejectsClosedChallenges(t *testing.T) {
	f := setupChallengeService(t)
	ctx := context.Background()
	ch := newTeamChallenge(t, f, "alpha")

	upcoming := &models.Challenge{
		Title: "next", TeamBased: true,
		StartsAt: challengeClock.Add(time.Hour), EndsAt: challengeClock.Add(2 * time.Hour),
		Objectives: []models.ChallengeObjective{{Type: "task_completed", Target: 1}},
	}
	if err := f.svc.CreateChallenge(ctx, upcoming, []string{"alpha"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, err := f.svc.UpdateTeamChallengeProgress(ctx, upcoming.ID, "alpha", "task_completed", 1); !errors.Is(err, ErrChallengeNotActive) {
		t.Errorf("Expected ErrChallengeNotActive, got %v", err)
	}

	f.svc.Now = func() time.Time { return ch.EndsAt }
	if _, err := f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "alpha", "task_completed", 1); !errors.Is(err, ErrChallengeEnded) {
		t.Errorf("Expected ErrChallengeEnded at the end time, got %v", err)
	}

	if _, err := f.svc.UpdateTeamChallengeProgress(ctx, "missing", "alpha", "task_completed", 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestDistributeRewards_ThreeTeams(t *testing.T) {
	f := setupChallengeService(t)
	ctx := context.Background()

	trophy := &models.Badge{Name: "Sprint Winner", Rarity: models.RarityRare, Active: true}
	if err := f.badges.CreateBadge(ctx, trophy, &models.BadgeCriteria{Type: models.CriteriaCount, Value: 1000, Description: "sprint winner"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	ch := &models.Challenge{
		Title:          "Q3 sprint",
		RewardPoints:   1000,
		RewardCurrency: 100,
		RewardBadgeIDs: []string{trophy.ID},
		TeamBased:      true,
		StartsAt:       challengeClock.Add(-time.Hour),
		EndsAt:         challengeClock.Add(24 * time.Hour),
		Objectives:     []models.ChallengeObjective{{Type: "task_completed", Target: 50}},
	}
	if err := f.svc.CreateChallenge(ctx, ch, []string{"alpha", "beta", "gamma"}); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	f.addMembers(t, "alpha", true, "a1", "a2")
	f.addMembers(t, "beta", true, "b1")
	f.addMembers(t, "gamma", true, "g1", "g2", "g3")
	f.addMembers(t, "gamma", false, "g4")

	for team, amount := range map[string]int64{"alpha": 50, "beta": 35, "gamma": 25} {
		if _, err := f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, team, "task_completed", amount); err != nil {
			t.Fatalf("Progress for %s: %v", team, err)
		}
	}

	standings, err := f.svc.GetTeamStandings(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	for i, want := range []string{"alpha", "beta", "gamma"} {
		if standings[i].TeamID != want || *standings[i].Rank != i+1 {
			t.Errorf("Rank %d: expected %s, got %s (rank %v)", i+1, want, standings[i].TeamID, standings[i].Rank)
		}
	}

	report, err := f.svc.DistributeRewards(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(report.Payouts) != 6 {
		t.Fatalf("Expected 6 payouts (active members only), got %d", len(report.Payouts))
	}

	want := map[string]struct{ points, currency int64 }{
		"a1": {500, 50}, "a2": {500, 50}, // 100% split 2 ways
		"b1": {700, 70},                                   // 70%
		"g1": {166, 16}, "g2": {166, 16}, "g3": {166, 16}, // 50% split 3 ways, remainder dropped
	}
	for _, p := range report.Payouts {
		w, ok := want[p.UserID]
		if !ok {
			t.Errorf("Unexpected payout to %s", p.UserID)
			continue
		}
		if p.Points != w.points || p.Currency != w.currency {
			t.Errorf("%s: expected %d/%d, got %d/%d", p.UserID, w.points, w.currency, p.Points, p.Currency)
		}
		cur, _ := f.currency.GetBalance(ctx, p.UserID)
		if cur.Balance != w.currency {
			t.Errorf("%s: expected balance %d, got %d", p.UserID, w.currency, cur.Balance)
		}
		n, _ := f.points.CountBySource(ctx, p.UserID, models.SourceChallengeReward)
		if n != 1 {
			t.Errorf("%s: expected 1 challenge_reward entry, got %d", p.UserID, n)
		}
	}

	// Only the completed team gets the badge.
	if n := countRows(t, f.db, &models.UserBadge{}, "badge_id = ?", trophy.ID); n != 2 {
		t.Errorf("Expected 2 trophy holders, got %d", n)
	}
	if n := countRows(t, f.db, &models.GamificationEvent{}, "type = ?", models.EventChallengeReward); n != 6 {
		t.Errorf("Expected 6 challenge_reward events, got %d", n)
	}

	again, err := f.svc.DistributeRewards(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !again.AlreadyDistributed || len(again.Payouts) != 0 {
		t.Errorf("Second distribution must be a no-op, got %+v", again)
	}
	if n := countRows(t, f.db, &models.PointEntry{}, "source = ?", models.SourceChallengeReward); n != 6 {
		t.Errorf("Expected 6 challenge_reward entries after re-run, got %d", n)
	}
}

func TestDistributeRewards_Individual(t *testing.T) {
	f := setupChallengeService(t)
	ctx := context.Background()

	ch := &models.Challenge{
		Title:          "Learning month",
		RewardPoints:   200,
		RewardCurrency: 20,
		StartsAt:       challengeClock.Add(-time.Hour),
		EndsAt:         challengeClock.Add(time.Hour),
		Objectives: []models.ChallengeObjective{
			{Type: "training_completed", Target: 2},
		},
	}
	if err := f.svc.CreateChallenge(ctx, ch, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := f.svc.UpdateParticipantProgress(ctx, ch.ID, "u1", "training_completed", 2); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	cp, err := f.svc.UpdateParticipantProgress(ctx, ch.ID, "u2", "training_completed", 1)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cp.Completed {
		t.Error("u2 has not completed the challenge")
	}

	if _, err := f.svc.UpdateTeamChallengeProgress(ctx, ch.ID, "alpha", "training_completed", 1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Team progress on an individual challenge must fail, got %v", err)
	}

	report, err := f.svc.DistributeRewards(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(report.Payouts) != 1 || report.Payouts[0].UserID != "u1" {
		t.Fatalf("Expected only u1 paid, got %+v", report.Payouts)
	}
	if total, _ := f.points.GetTotal(ctx, "u1"); total != 200 {
		t.Errorf("Expected 200 points for u1, got %d", total)
	}
	if total, _ := f.points.GetTotal(ctx, "u2"); total != 0 {
		t.Errorf("Expected nothing for u2, got %d", total)
	}
}

func TestAdvanceStatuses(t *testing.T) {
	f := setupChallengeService(t)
	ctx := context.Background()

	ch := &models.Challenge{
		Title:        "Short one",
		RewardPoints: 10,
		StartsAt:     challengeClock.Add(time.Hour),
		EndsAt:       challengeClock.Add(2 * time.Hour),
		Objectives:   []models.ChallengeObjective{{Type: "goal_achieved", Target: 1}},
	}
	if err := f.svc.CreateChallenge(ctx, ch, nil); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := f.svc.AdvanceStatuses(ctx, challengeClock.Add(90*time.Minute)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got, _ := f.svc.GetChallenge(ctx, ch.ID)
	if got.Status != models.ChallengeActive {
		t.Errorf("Expected active, got %s", got.Status)
	}

	f.svc.Now = func() time.Time { return challengeClock.Add(90 * time.Minute) }
	if _, err := f.svc.UpdateParticipantProgress(ctx, ch.ID, "u1", "goal_achieved", 1); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if _, err := f.svc.AdvanceStatuses(ctx, challengeClock.Add(3*time.Hour)); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	got, _ = f.svc.GetChallenge(ctx, ch.ID)
	if got.Status != models.ChallengeEnded || !got.RewardsDistributed {
		t.Errorf("Expected ended and distributed, got %s distributed=%v", got.Status, got.RewardsDistributed)
	}
	if total, _ := f.points.GetTotal(ctx, "u1"); total != 10 {
		t.Errorf("Expected automatic payout of 10, got %d", total)
	}
}
