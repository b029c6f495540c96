package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docmate-health/docmate/pkg/model"
	"go.uber.org/zap"
)

// ErrRemediesAttached is returned when a report already holds remedies
var ErrRemediesAttached = errors.New("remedies already attached")

// ReportCache is the newest-first report history. Writes are serialized per
// ReportCache value; two processes sharing one Store can still lose updates.
type ReportCache struct {
	store  Store
	mu     sync.Mutex
	logger *zap.Logger
}

// NewReportCache creates a ReportCache over store
func NewReportCache(store Store, logger *zap.Logger) *ReportCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportCache{
		store:  store,
		logger: logger,
	}
}

// LoadAll returns the stored history. Absent, unreadable or malformed data
// yields an empty list.
func (c *ReportCache) LoadAll(ctx context.Context) []model.SavedReport {
	reports, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("failed to load report history, treating as empty", zap.Error(err))
		return []model.SavedReport{}
	}
	return reports
}

// Get returns the report with id
func (c *ReportCache) Get(ctx context.Context, id string) (model.SavedReport, bool) {
	for _, r := range c.LoadAll(ctx) {
		if r.ID == id {
			return r, true
		}
	}
	return model.SavedReport{}, false
}

// Append inserts r at the head of the history
func (c *ReportCache) Append(ctx context.Context, r model.SavedReport) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reports := c.LoadAll(ctx)
	reports = append([]model.SavedReport{r}, reports...)
	return c.save(ctx, reports)
}

// AttachRemedies sets the remedies of report id once. A missing id is a
// no-op; a report that already holds remedies is left untouched and
// ErrRemediesAttached is returned.
func (c *ReportCache) AttachRemedies(ctx context.Context, id string, remedies model.RemediesResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	reports := c.LoadAll(ctx)
	for i := range reports {
		if reports[i].ID != id {
			continue
		}
		if reports[i].HasRemedies() {
			return fmt.Errorf("report %s: %w", id, ErrRemediesAttached)
		}
		if reports[i].FullData == nil {
			reports[i].FullData = &model.ReportData{}
		}
		reports[i].FullData.Remedies = &remedies
		return c.save(ctx, reports)
	}

	c.logger.Debug("report not found, remedies not attached", zap.String("report_id", id))
	return nil
}

func (c *ReportCache) load(ctx context.Context) ([]model.SavedReport, error) {
	raw, ok, err := c.store.GetItem(ctx, ReportsKey)
	if err != nil {
		return nil, err
	}
	if !ok || raw == "" {
		return []model.SavedReport{}, nil
	}

	var reports []model.SavedReport
	if err := json.Unmarshal([]byte(raw), &reports); err != nil {
		return nil, fmt.Errorf("failed to decode report history: %w", err)
	}
	if reports == nil {
		reports = []model.SavedReport{}
	}
	return reports, nil
}

func (c *ReportCache) save(ctx context.Context, reports []model.SavedReport) error {
	data, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("failed to encode report history: %w", err)
	}
	if err := c.store.SetItem(ctx, ReportsKey, string(data)); err != nil {
		return fmt.Errorf("failed to save report history: %w", err)
	}
	return nil
}

// ActionTracker persists the ids of completed action-plan items
type ActionTracker struct {
	store  Store
	mu     sync.Mutex
	logger *zap.Logger
}

// NewActionTracker creates an ActionTracker over store
func NewActionTracker(store Store, logger *zap.Logger) *ActionTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActionTracker{store: store, logger: logger}
}

// Completed returns the stored ids; unreadable data yields none
func (t *ActionTracker) Completed(ctx context.Context) []string {
	raw, ok, err := t.store.GetItem(ctx, CompletedActionsKey)
	if err != nil || !ok {
		if err != nil {
			t.logger.Warn("failed to load completed actions", zap.Error(err))
		}
		return []string{}
	}

	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil || ids == nil {
		return []string{}
	}
	return ids
}

// Toggle flips the completion of item id and persists the completed ids of
// the resulting plan
func (t *ActionTracker) Toggle(ctx context.Context, plan []model.ActionItem, id string) ([]model.ActionItem, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	updated := make([]model.ActionItem, len(plan))
	ids := make([]string, 0, len(plan))
	for i, item := range plan {
		if item.ID == id {
			item.Completed = !item.Completed
		}
		if item.Completed {
			ids = append(ids, item.ID)
		}
		updated[i] = item
	}

	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to encode completed actions: %w", err)
	}
	if err := t.store.SetItem(ctx, CompletedActionsKey, string(data)); err != nil {
		return nil, fmt.Errorf("failed to save completed actions: %w", err)
	}
	return updated, nil
}

// InsightsTTL is how long cached insights stay fresh
const InsightsTTL = 24 * time.Hour

type insightsEntry struct {
	Timestamp int64              `json:"timestamp"`
	Data      model.InsightsView `json:"data"`
}

// InsightsCache keeps the last insights of each user for InsightsTTL
type InsightsCache struct {
	store  Store
	now    func() time.Time
	logger *zap.Logger
}

// NewInsightsCache creates an InsightsCache over store
func NewInsightsCache(store Store, logger *zap.Logger) *InsightsCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightsCache{store: store, now: time.Now, logger: logger}
}

// Get returns the cached insights of userID while they are fresh
func (c *InsightsCache) Get(ctx context.Context, userID string) (*model.InsightsView, bool) {
	raw, ok, err := c.store.GetItem(ctx, InsightsKey(userID))
	if err != nil {
		c.logger.Warn("failed to read insights cache", zap.Error(err), zap.String("user_id", userID))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry insightsEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("discarding malformed insights cache", zap.Error(err), zap.String("user_id", userID))
		return nil, false
	}
	if c.now().Sub(time.UnixMilli(entry.Timestamp)) >= InsightsTTL {
		return nil, false
	}
	return &entry.Data, true
}

// Put caches insights for userID, stamped with the current time
func (c *InsightsCache) Put(ctx context.Context, userID string, view model.InsightsView) error {
	data, err := json.Marshal(insightsEntry{Timestamp: c.now().UnixMilli(), Data: view})
	if err != nil {
		return fmt.Errorf("failed to encode insights: %w", err)
	}
	return c.store.SetItem(ctx, InsightsKey(userID), string(data))
}

// Invalidate drops the cached insights of userID
func (c *InsightsCache) Invalidate(ctx context.Context, userID string) error {
	return c.store.RemoveItem(ctx, InsightsKey(userID))
}
