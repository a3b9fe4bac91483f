package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/metrics"
)

type runEvaluationRequest struct {
	Dataset  string `json:"dataset" binding:"required"`
	Provider string `json:"provider" binding:"required"`
	Model    string `json:"model" binding:"required"`
}

// handleRunEvaluation scores one provider/model pair against a named dataset
// and records the run.
func (s *Server) handleRunEvaluation(c *gin.Context) {
	var req runEvaluationRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evaluation request: " + errBind.Error()})
		return
	}
	if s.Invoke == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no model invoker configured"})
		return
	}

	result, errEval := s.Registry.Evaluate(c.Request.Context(), req.Dataset, req.Provider, req.Model, s.Invoke)
	if errEval != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errEval.Error()})
		return
	}

	metrics.EvaluationRuns.Inc()
	c.JSON(http.StatusOK, result)
}

// handleListEvaluations lists recent evaluation runs, newest first.
func (s *Server) handleListEvaluations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, errParse := strconv.Atoi(raw)
		if errParse != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	runs, errRuns := s.Registry.Runs(c.Request.Context(), limit)
	if errRuns != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errRuns.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
