// Package api exposes the HTTP interface: expense and category management,
// receipt upload, rule administration, engine settings, dashboard summaries,
// and exports.
package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/imagestore"
	"github.com/ponpaku/ai-kakeibo-2/internal/pipeline"
	"github.com/ponpaku/ai-kakeibo-2/internal/storage"
)

// Server holds the HTTP handlers' dependencies.
type Server struct {
	store    *storage.SQLiteStorage
	pipeline *pipeline.Pipeline
	images   *imagestore.Store
	logger   *slog.Logger
}

// NewServer wires the handlers.
func NewServer(store *storage.SQLiteStorage, p *pipeline.Pipeline, images *imagestore.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:    store,
		pipeline: p,
		images:   images,
		logger:   logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router(corsOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	corsCfg.AllowOrigins = corsOrigins
	corsCfg.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsCfg))

	api := router.Group("/api")
	{
		api.GET("/health", s.health)

		expenses := api.Group("/expenses")
		{
			expenses.GET("", s.listExpenses)
			expenses.POST("", s.createManualExpense)
			expenses.GET("/:id", s.getExpense)
			expenses.PATCH("/:id", s.updateExpense)
			expenses.DELETE("/:id", s.deleteExpense)
			expenses.POST("/:id/reclassify", s.reclassifyExpense)
			expenses.POST("/:id/reprocess", s.reprocessExpense)
			expenses.POST("/:id/items", s.addItems)
		}

		items := api.Group("/items")
		{
			items.PATCH("/:id", s.updateItem)
			items.DELETE("/:id", s.deleteItem)
		}

		categories := api.Group("/categories")
		{
			categories.GET("", s.listCategories)
			categories.POST("", s.createCategory)
			categories.PATCH("/:id", s.updateCategory)
			categories.DELETE("/:id", s.deleteCategory)
		}

		ruleRoutes := api.Group("/rules")
		{
			ruleRoutes.GET("", s.listRules)
			ruleRoutes.POST("", s.createRule)
			ruleRoutes.PATCH("/:id", s.updateRule)
			ruleRoutes.DELETE("/:id", s.deleteRule)
			ruleRoutes.POST("/test", s.testRule)
		}

		receipts := api.Group("/receipts")
		{
			receipts.POST("", s.uploadReceipt)
			receipts.GET("/:id/image", s.receiptImage)
		}

		settings := api.Group("/settings")
		{
			settings.GET("/engine", s.getEngineSettings)
			settings.PATCH("/engine", s.updateEngineSettings)
		}

		dashboard := api.Group("/dashboard")
		{
			dashboard.GET("/categories", s.categorySummary)
			dashboard.GET("/monthly", s.monthlySummary)
		}

		api.GET("/export", s.exportExpenses)
	}

	return router
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps domain errors to HTTP statuses.
func (s *Server) respondError(c *gin.Context, err error) {
	var validationErr *common.ValidationError

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrDuplicateEntry):
		status = http.StatusConflict
	case errors.Is(err, common.ErrEngineDisabled):
		status = http.StatusServiceUnavailable
	case errors.As(err, &validationErr),
		errors.Is(err, common.ErrInvalidPattern),
		errors.Is(err, common.ErrUnknownCategory),
		errors.Is(err, storage.ErrInvalidExpense),
		errors.Is(err, storage.ErrInvalidItem),
		errors.Is(err, storage.ErrInvalidRule),
		errors.Is(err, storage.ErrInvalidReceipt),
		errors.Is(err, storage.ErrEmptyString),
		errors.Is(err, storage.ErrEmptySlice),
		errors.Is(err, storage.ErrNilParameter):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
