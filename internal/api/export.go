package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"

	"github.com/ponpaku/ai-kakeibo-2/internal/storage"
)

var exportHeader = []string{
	"日付", "店舗", "商品名", "数量", "単価", "金額", "カテゴリ", "分類方法", "ステータス",
}

// exportRow is one line item flattened for export.
type exportRow struct {
	date     string
	store    string
	product  string
	quantity string
	unit     string
	amount   int64
	category string
	source   string
	status   string
}

func (s *Server) exportExpenses(c *gin.Context) {
	filter := storage.ExpenseFilter{}
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

	rows, err := s.collectExportRows(c, filter)
	if err != nil {
		s.respondError(c, err)
		return
	}

	switch c.DefaultQuery("format", "xlsx") {
	case "csv":
		s.writeCSV(c, rows)
	case "xlsx":
		s.writeXLSX(c, rows)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown format, expected csv or xlsx"})
	}
}

func (s *Server) collectExportRows(c *gin.Context, filter storage.ExpenseFilter) ([]exportRow, error) {
	ctx := c.Request.Context()

	categories, err := s.store.ListCategories(ctx, true)
	if err != nil {
		return nil, err
	}
	names := make(map[int64]string, len(categories))
	for _, category := range categories {
		names[category.ID] = category.Name
	}

	expenses, err := s.store.ListExpenses(ctx, filter)
	if err != nil {
		return nil, err
	}

	var rows []exportRow
	for _, expense := range expenses {
		items, err := s.store.GetItemsByExpense(ctx, expense.ID)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			row := exportRow{
				date:    expense.OccurredAt.Format("2006-01-02"),
				store:   expense.StoreName,
				product: item.ProductName,
				amount:  item.LineTotal,
				status:  string(expense.Status),
			}
			if item.Quantity != nil {
				row.quantity = strconv.FormatFloat(*item.Quantity, 'f', -1, 64)
			}
			if item.UnitPrice != nil {
				row.unit = strconv.FormatInt(*item.UnitPrice, 10)
			}
			if item.CategoryID != nil {
				row.category = names[*item.CategoryID]
			}
			if item.CategorySource != nil {
				row.source = string(*item.CategorySource)
			}
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (s *Server) writeCSV(c *gin.Context, rows []exportRow) {
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="kakeibo.csv"`)
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for _, row := range rows {
		_ = w.Write([]string{
			row.date, row.store, row.product, row.quantity, row.unit,
			strconv.FormatInt(row.amount, 10), row.category, row.source, row.status,
		})
	}
	w.Flush()
}

func (s *Server) writeXLSX(c *gin.Context, rows []exportRow) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Sheet1"
	for i, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, title)
	}
	for r, row := range rows {
		values := []any{
			row.date, row.store, row.product, row.quantity, row.unit,
			row.amount, row.category, row.source, row.status,
		}
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="kakeibo-%s.xlsx"`, time.Now().Format("20060102")))
	c.Status(http.StatusOK)

	if err := f.Write(c.Writer); err != nil {
		s.logger.Error("Failed to write export", "error", err)
	}
}
