package handlers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"channel-clock/internal/database"
	"channel-clock/internal/metrics"
	"channel-clock/internal/models"
	"channel-clock/internal/scheduler"
)

const (
	// MaxHistoryLimit caps ?limit.
	MaxHistoryLimit = 500
	// historyTimeout bounds a history query.
	historyTimeout = 5 * time.Second
)

// StatusSource exposes the scheduler's latest dispatch.
type StatusSource interface {
	Snapshot() *scheduler.Snapshot
	Regions() []*models.Region
}

// HistoryStore reads persisted label events.
type HistoryStore interface {
	GetLabelHistory(ctx context.Context, regionID string, limit int) ([]*models.LabelEvent, error)
}

type Handlers struct {
	Status  StatusSource
	History HistoryStore // nil when DATABASE_URL is unset
	Metrics *metrics.Metrics

	// History and metrics require Basic Auth when both are set.
	AdminLogin    string
	AdminPassword string
}

// Register mounts all routes on app.
func (h *Handlers) Register(app *fiber.App) {
	var guard []fiber.Handler
	if h.AdminLogin != "" && h.AdminPassword != "" {
		guard = append(guard, AdminGuard(h.AdminLogin, h.AdminPassword))
	}

	app.Get("/health", h.Health)
	if h.Metrics != nil {
		app.Get("/metrics", append(guard, adaptor.HTTPHandler(h.Metrics.Handler()))...)
	}

	api := app.Group("/api")
	api.Get("/status", h.GetStatus)
	api.Get("/history/:region", append(guard, h.GetHistory)...)
}

// Health handles GET /health.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// GetStatus handles GET /api/status with the result of the latest dispatch.
func (h *Handlers) GetStatus(c *fiber.Ctx) error {
	snap := h.Status.Snapshot()
	if snap == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "no dispatch yet"})
	}
	c.Set("Cache-Control", "no-store")
	return c.JSON(snap)
}

// GetHistory handles GET /api/history/:region?limit=N, newest first.
func (h *Handlers) GetHistory(c *fiber.Ctx) error {
	if h.History == nil {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "label history is disabled"})
	}

	regionID := strings.ToUpper(c.Params("region"))
	if !h.knownRegion(regionID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown region"})
	}

	limit := database.DefaultHistoryLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > MaxHistoryLimit {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and " + strconv.Itoa(MaxHistoryLimit)})
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), historyTimeout)
	defer cancel()
	events, err := h.History.GetLabelHistory(ctx, regionID, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "db error"})
	}
	if events == nil {
		events = []*models.LabelEvent{}
	}
	return c.JSON(fiber.Map{"region_id": regionID, "events": events})
}

func (h *Handlers) knownRegion(id string) bool {
	for _, r := range h.Status.Regions() {
		if r.ID == id {
			return true
		}
	}
	return false
}
