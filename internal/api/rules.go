package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/rules"
)

func (s *Server) listRules(c *gin.Context) {
	ruleList, err := s.store.ListRules(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	if ruleList == nil {
		ruleList = []model.CategoryRule{}
	}
	c.JSON(http.StatusOK, gin.H{"rules": ruleList})
}

type ruleRequest struct {
	Name       string          `json:"name"`
	Pattern    string          `json:"pattern" binding:"required"`
	MatchKind  model.MatchKind `json:"match_kind" binding:"required"`
	CategoryID int64           `json:"category_id" binding:"required"`
	Confidence *float64        `json:"confidence"`
	Priority   *int            `json:"priority"`
	IsActive   *bool           `json:"is_active"`
}

func (s *Server) createRule(c *gin.Context) {
	var req ruleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := rules.ValidatePattern(req.Pattern, req.MatchKind); err != nil {
		s.respondError(c, err)
		return
	}

	rule := model.CategoryRule{
		Name:       req.Name,
		Pattern:    req.Pattern,
		MatchKind:  req.MatchKind,
		CategoryID: req.CategoryID,
		Confidence: 0.9,
		Priority:   100,
		IsActive:   true,
	}
	if req.Confidence != nil {
		rule.Confidence = *req.Confidence
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := s.store.CreateRule(c.Request.Context(), &rule); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

func (s *Server) updateRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var patch model.RulePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// A pattern or kind change must re-validate against the pair that will
	// actually be stored.
	if patch.Pattern.Present() || patch.MatchKind.Present() {
		current, err := s.store.GetRule(c.Request.Context(), id)
		if err != nil {
			s.respondError(c, err)
			return
		}
		pattern := current.Pattern
		kind := current.MatchKind
		if v, ok := patch.Pattern.Get(); patch.Pattern.Present() && ok {
			pattern = v
		}
		if v, ok := patch.MatchKind.Get(); patch.MatchKind.Present() && ok {
			kind = v
		}
		if err := rules.ValidatePattern(pattern, kind); err != nil {
			s.respondError(c, err)
			return
		}
	}

	if err := s.store.UpdateRule(c.Request.Context(), id, patch); err != nil {
		s.respondError(c, err)
		return
	}

	rule, err := s.store.GetRule(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

func (s *Server) deleteRule(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.store.DeleteRule(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// testRuleRequest dry-runs the full active rule set against sample text.
type testRuleRequest struct {
	ProductName string `json:"product_name" binding:"required"`
	StoreName   string `json:"store_name"`
	Note        string `json:"note"`
}

func (s *Server) testRule(c *gin.Context) {
	var req testRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	matcher := rules.NewMatcher(s.store)
	rule, err := matcher.FindMatch(c.Request.Context(), []string{req.ProductName, req.StoreName, req.Note})
	if err != nil {
		s.respondError(c, err)
		return
	}
	if rule == nil {
		c.JSON(http.StatusOK, gin.H{"matched": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"matched": true, "rule": rule})
}
