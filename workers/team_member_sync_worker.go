// workers/team_member_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gamification-engine/models"
	"gamification-engine/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RemoteTeamMember matches the JSON rows of the collaboration platform's membership feed.
type RemoteTeamMember struct {
	TeamID    string    `json:"team_id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	IsActive  bool      `json:"is_active"`
	JoinedAt  time.Time `json:"joined_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GetTeamMemberChangesResponse struct {
	Members []RemoteTeamMember `json:"members"`
}

type TeamMemberSyncWorker struct {
	db           *gorm.DB
	interval     time.Duration
	baseURL      string // e.g., "http://localhost:8500"
	endpointPath string // e.g., "/api/v1/public/team-members"
	serviceToken string
	httpClient   *http.Client
}

func NewTeamMemberSyncWorker(db *gorm.DB, syncServiceBaseURL, endpointPath, serviceToken string, interval time.Duration) *TeamMemberSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &TeamMemberSyncWorker{
		db:           db,
		interval:     interval,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (w *TeamMemberSyncWorker) Start(ctx context.Context) {
	utils.LogInfo("🔁 Starting Team Member Sync Worker (sync-service → team_members)…")
	go w.run(ctx)
}

func (w *TeamMemberSyncWorker) run(ctx context.Context) {
	// Initial sync backfills everything
	if err := w.syncBatch(ctx, time.Time{}); err != nil {
		utils.LogWarn("⚠️ Initial team sync failed: %v", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.syncBatch(ctx, w.getLastSyncTime()); err != nil {
				utils.LogError("❌ Team sync batch failed: %v", err)
			}
		case <-ctx.Done():
			utils.LogInfo("⏹️ Team Member Sync Worker stopped")
			return
		}
	}
}

// getLastSyncTime is the newest UpdatedAt in the local membership snapshot.
func (w *TeamMemberSyncWorker) getLastSyncTime() time.Time {
	var members []models.TeamMember
	err := w.db.Order("updated_at DESC").Limit(1).Find(&members).Error
	if err != nil || len(members) == 0 || members[0].UpdatedAt.IsZero() {
		return time.Unix(0, 0)
	}
	return members[0].UpdatedAt
}

// syncBatch fetches membership changes since the given time and upserts them on (team_id, user_id).
func (w *TeamMemberSyncWorker) syncBatch(ctx context.Context, since time.Time) error {
	sinceStr := since.UTC().Format(time.RFC3339)

	base, err := url.Parse(w.baseURL)
	if err != nil {
		return fmt.Errorf("invalid base sync service URL '%s': %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", sinceStr)
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	utils.LogDebug("[TEAM_SYNC] ➡️  GET %s", finalURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("sync service non-200 response: %d: %s", resp.StatusCode, string(body))
	}

	var response GetTeamMemberChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return fmt.Errorf("failed to decode sync service response: %w", err)
	}

	if len(response.Members) == 0 {
		utils.LogDebug("[TEAM_SYNC] ✅ No membership changes since %s", sinceStr)
		return nil
	}

	var upsertCount, errorCount int
	for _, remote := range response.Members {
		if remote.TeamID == "" || remote.UserID == "" {
			errorCount++
			continue
		}
		local := models.TeamMember{
			TeamID:    remote.TeamID,
			UserID:    remote.UserID,
			Role:      remote.Role,
			IsActive:  remote.IsActive,
			JoinedAt:  remote.JoinedAt.UTC(),
			UpdatedAt: remote.UpdatedAt.UTC(),
		}

		if err := w.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role", "is_active", "joined_at", "updated_at"}),
		}).Create(&local).Error; err != nil {
			errorCount++
			utils.LogWarn("[TEAM_SYNC] ⚠️ Failed to upsert team_member (team=%q, user=%q): %v", remote.TeamID, remote.UserID, err)
		} else {
			upsertCount++
		}
	}

	utils.LogSuccess("[TEAM_SYNC] ✅ Synced %d member(s) (%d upserted, %d errors)", len(response.Members), upsertCount, errorCount)
	return nil
}
