package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/hostpilotpro/captain-cortex/internal/cache"
	"github.com/hostpilotpro/captain-cortex/internal/cortex"
	"github.com/hostpilotpro/captain-cortex/internal/middleware/validation"
	"github.com/hostpilotpro/captain-cortex/internal/storage/models"
)

type Engine interface {
	ProcessQuestion(ctx context.Context, req cortex.Request) (*cortex.Response, error)
	InvalidateCache(pattern string) int
	InvalidateOrganization(organizationID string) int
	CacheStats() cache.Stats
}

type Recorder interface {
	Record(ctx context.Context, req cortex.Request, resp *cortex.Response) (string, error)
	List(ctx context.Context, userID string, limit int) ([]models.QueryRecord, error)
}

type askResponse struct {
	ID string `json:"id,omitempty"`
	*cortex.Response
}

type Config struct {
	MaxQuestionLength int
	// HistoryLimit is the page size when ?limit= is absent.
	HistoryLimit int
	Logger       *zap.Logger
}

func (cfg *Config) defaults() {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
}

type CortexHandler struct {
	engine            Engine
	recorder          Recorder
	maxQuestionLength int
	historyLimit      int
	logger            *zap.Logger
}

// NewCortexHandler builds the HTTP handlers. recorder may be nil, in which
// case answers are not persisted and history is empty.
func NewCortexHandler(engine Engine, recorder Recorder, cfg Config) *CortexHandler {
	cfg.defaults()
	return &CortexHandler{
		engine:            engine,
		recorder:          recorder,
		maxQuestionLength: cfg.MaxQuestionLength,
		historyLimit:      cfg.HistoryLimit,
		logger:            cfg.Logger,
	}
}

func (h *CortexHandler) Register(router fiber.Router) {
	router.Post("/cortex/ask", h.Ask)
	router.Get("/cortex/cache/stats", h.CacheStats)
	router.Delete("/cortex/cache", h.InvalidateCache)
	router.Get("/cortex/history", h.History)
}

func (h *CortexHandler) Ask(c *fiber.Ctx) error {
	req, ok := c.Locals(validation.RequestKey).(cortex.Request)
	if !ok {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if err := validation.Check(&req, h.maxQuestionLength); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
	}

	resp, err := h.engine.ProcessQuestion(c.UserContext(), req)
	if err != nil {
		h.logger.Error("Failed to process question",
			zap.String("organization_id", req.OrganizationID),
			zap.Error(err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process question",
		})
	}

	return c.JSON(askResponse{ID: h.record(c.UserContext(), req, resp), Response: resp})
}

func (h *CortexHandler) record(ctx context.Context, req cortex.Request, resp *cortex.Response) string {
	if h.recorder == nil {
		return ""
	}
	id, err := h.recorder.Record(ctx, req, resp)
	if err != nil {
		h.logger.Warn("Failed to record question", zap.Error(err))
	}
	return id
}

func (h *CortexHandler) CacheStats(c *fiber.Ctx) error {
	return c.JSON(h.engine.CacheStats())
}

// InvalidateCache drops cached answers by ?organizationId= or by key
// ?pattern=. With neither, the whole cache is cleared.
func (h *CortexHandler) InvalidateCache(c *fiber.Ctx) error {
	var removed int
	if org := c.Query("organizationId"); org != "" {
		removed = h.engine.InvalidateOrganization(org)
	} else {
		removed = h.engine.InvalidateCache(c.Query("pattern"))
	}

	h.logger.Info("Answer cache invalidated", zap.Int("removed", removed))
	return c.JSON(fiber.Map{
		"removed": removed,
	})
}

func (h *CortexHandler) History(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	if h.recorder == nil {
		return c.JSON(fiber.Map{
			"history": []models.QueryRecord{},
		})
	}

	records, err := h.recorder.List(c.UserContext(), userID, c.QueryInt("limit", h.historyLimit))
	if err != nil {
		h.logger.Error("Failed to load history", zap.String("user_id", userID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"history": records,
	})
}
