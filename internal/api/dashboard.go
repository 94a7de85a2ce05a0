package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ponpaku/ai-kakeibo-2/internal/storage"
)

// monthRange resolves the requested calendar month, defaulting to the
// current one.
func monthRange(c *gin.Context) (time.Time, time.Time, bool) {
	month := c.Query("month")
	var from time.Time
	if month == "" {
		now := time.Now()
		from = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.Local)
	} else {
		var err error
		from, err = time.ParseInLocation("2006-01", month, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month, expected YYYY-MM"})
			return time.Time{}, time.Time{}, false
		}
	}
	return from, from.AddDate(0, 1, 0), true
}

func (s *Server) categorySummary(c *gin.Context) {
	from, to, ok := monthRange(c)
	if !ok {
		return
	}

	summaries, err := s.store.GetCategorySummary(c.Request.Context(), from, to)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if summaries == nil {
		summaries = []storage.CategorySummary{}
	}

	var total int64
	for _, summary := range summaries {
		total += summary.Total
	}
	c.JSON(http.StatusOK, gin.H{
		"month":      from.Format("2006-01"),
		"total":      total,
		"categories": summaries,
	})
}

func (s *Server) monthlySummary(c *gin.Context) {
	months, _ := strconv.Atoi(c.DefaultQuery("months", "6"))

	summaries, err := s.store.GetMonthlySummary(c.Request.Context(), months)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if summaries == nil {
		summaries = []storage.MonthlySummary{}
	}
	c.JSON(http.StatusOK, gin.H{"months": summaries})
}
