package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/storage"
)

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// expenseDetail is the full expense payload with items and receipt metadata.
type expenseDetail struct {
	Receipt *model.Receipt      `json:"receipt,omitempty"`
	Items   []model.ExpenseItem `json:"items"`
	model.Expense
}

func (s *Server) listExpenses(c *gin.Context) {
	var filter storage.ExpenseFilter

	if v := c.Query("from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from date"})
			return
		}
		filter.From = &t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid to date"})
			return
		}
		filter.To = &t
	}
	if v := c.Query("status"); v != "" {
		status := model.ExpenseStatus(v)
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filter.Status = &status
	}
	if v := c.Query("category_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
			return
		}
		filter.CategoryID = &id
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	expenses, err := s.store.ListExpenses(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if expenses == nil {
		expenses = []model.Expense{}
	}
	c.JSON(http.StatusOK, gin.H{"expenses": expenses})
}

func (s *Server) getExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	expense, err := s.store.GetExpense(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	items, err := s.store.GetItemsByExpense(ctx, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if items == nil {
		items = []model.ExpenseItem{}
	}

	detail := expenseDetail{Expense: *expense, Items: items}
	if receipt, err := s.store.GetReceiptByExpense(ctx, id); err == nil {
		detail.Receipt = receipt
	}
	c.JSON(http.StatusOK, detail)
}

// manualExpenseRequest is the payload for hand-entered expenses.
type manualExpenseRequest struct {
	OccurredAt    time.Time           `json:"occurred_at" binding:"required"`
	StoreName     string              `json:"store_name"`
	TotalAmount   int64               `json:"total_amount"`
	Currency      string              `json:"currency"`
	PaymentMethod string              `json:"payment_method"`
	Note          string              `json:"note"`
	Items         []manualItemRequest `json:"items" binding:"required,min=1"`
}

type manualItemRequest struct {
	ProductName string   `json:"product_name" binding:"required"`
	Quantity    *float64 `json:"quantity"`
	UnitPrice   *int64   `json:"unit_price"`
	LineTotal   int64    `json:"line_total"`
	CategoryID  *int64   `json:"category_id"`
}

func (s *Server) createManualExpense(c *gin.Context) {
	var req manualExpenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	expense := &model.Expense{
		OccurredAt:    req.OccurredAt,
		StoreName:     req.StoreName,
		TotalAmount:   req.TotalAmount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Note:          req.Note,
	}
	items := make([]model.ExpenseItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = model.ExpenseItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			CategoryID:  item.CategoryID,
		}
	}

	if err := s.pipeline.CreateManualExpense(c.Request.Context(), expense, items); err != nil {
		s.respondError(c, err)
		return
	}

	created, err := s.store.GetExpense(c.Request.Context(), expense.ID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) updateExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var patch model.ExpensePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.store.UpdateExpense(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, err)
		return
	}

	expense, err := s.store.GetExpense(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, expense)
}

func (s *Server) deleteExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	// Remove the stored image alongside the rows.
	if receipt, err := s.store.GetReceiptByExpense(ctx, id); err == nil {
		if err := s.images.Remove(receipt.StoredFilename); err != nil {
			s.logger.Warn("Failed to remove receipt image", "receipt_id", receipt.ID, "error", err)
		}
	}

	if err := s.store.DeleteExpense(ctx, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) reclassifyExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.pipeline.Reclassify(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": string(model.StatusProcessing)})
}

func (s *Server) reprocessExpense(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	skipClassify := c.Query("skip_classify") == "true"
	if err := s.pipeline.Reprocess(c.Request.Context(), id, skipClassify); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": string(model.StatusPending)})
}

func (s *Server) addItems(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req []manualItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]model.ExpenseItem, len(req))
	for i, item := range req {
		items[i] = model.ExpenseItem{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal,
			CategoryID:  item.CategoryID,
		}
		if item.CategoryID != nil {
			source := model.SourceManual
			items[i].CategorySource = &source
		}
	}

	if err := s.store.CreateItems(c.Request.Context(), id, items); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"items": items})
}
