// workers/activity_event_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"gamification-engine/services"
	"gamification-engine/utils"
)

// ActivityDispatcher applies one platform activity to the engine.
type ActivityDispatcher interface {
	Dispatch(ctx context.Context, ev services.ActivityEvent) (*services.DispatchResult, error)
}

// ActivityFeedClient reads the platform's activity feed.
type ActivityFeedClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

func NewActivityFeedClient(baseURL, token string) *ActivityFeedClient {
	return &ActivityFeedClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *ActivityFeedClient) GetActivities(ctx context.Context, since time.Time) ([]services.ActivityEvent, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	u := base.JoinPath("/api/v1/public/activity-events")

	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", c.Token)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call sync service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response struct {
		Events []services.ActivityEvent `json:"events"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Events, nil
}

// ActivityEventWorker polls the feed and dispatches every event.
// The cursor only advances when a batch applied cleanly; re-delivered events
// are recognised by their id.
type ActivityEventWorker struct {
	client     *ActivityFeedClient
	dispatcher ActivityDispatcher
	interval   time.Duration
	lastSync   time.Time
}

func NewActivityEventWorker(client *ActivityFeedClient, dispatcher ActivityDispatcher, interval time.Duration) *ActivityEventWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &ActivityEventWorker{
		client:     client,
		dispatcher: dispatcher,
		interval:   interval,
		lastSync:   time.Now().UTC().Add(-24 * time.Hour),
	}
}

func (w *ActivityEventWorker) Start(ctx context.Context) {
	utils.LogInfo("🔁 Starting Activity Event Worker (sync-service → engine)…")
	go w.run(ctx)
}

func (w *ActivityEventWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			utils.LogInfo("⏹️ Activity Event Worker stopped")
			return
		case <-ticker.C:
			if _, err := w.pollOnce(ctx); err != nil {
				utils.LogError("❌ Activity poll failed: %v", err)
			}
		}
	}
}

// pollOnce fetches and dispatches one batch, returning how many events were applied.
func (w *ActivityEventWorker) pollOnce(ctx context.Context) (int, error) {
	pollTime := time.Now().UTC()

	events, err := w.client.GetActivities(ctx, w.lastSync)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		w.lastSync = pollTime
		return 0, nil
	}

	applied := 0
	var failed error
	for _, ev := range events {
		res, err := w.dispatcher.Dispatch(ctx, ev)
		switch {
		case err == nil:
			if !res.Duplicate {
				applied++
			}
		case services.IsValidationError(err):
			// dropped, not retried
			utils.LogWarn("⚠️ Skipping activity %s: %v", ev.ID, err)
		default:
			utils.LogError("❌ Failed to dispatch activity %s: %v", ev.ID, err)
			failed = err
		}
	}

	if failed != nil {
		// keep the cursor so the next tick retries the window
		return applied, fmt.Errorf("batch incomplete: %w", failed)
	}
	w.lastSync = pollTime
	utils.LogSuccess("✅ Applied %d of %d activity event(s)", applied, len(events))
	return applied, nil
}
