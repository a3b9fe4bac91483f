package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/policy"
)

// handleGetPolicyTable returns the active table snapshot.
func (s *Server) handleGetPolicyTable(c *gin.Context) {
	c.JSON(http.StatusOK, s.PolicyStore.Current())
}

// handlePutPolicyTable validates and atomically swaps in a full table. A
// rejected table leaves the previous one active.
func (s *Server) handlePutPolicyTable(c *gin.Context) {
	var table policy.Table
	if errBind := c.ShouldBindJSON(&table); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid table payload: " + errBind.Error()})
		return
	}

	if errSwap := s.PolicyStore.Swap(c.Request.Context(), &table, actorFromContext(c)); errSwap != nil {
		if errors.Is(errSwap, policy.ErrInvalidTable) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errSwap.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errSwap.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"version": s.PolicyStore.Current().Version})
}

// handlePutPolicyRule upserts one rule into the current table and swaps the
// result in whole.
func (s *Server) handlePutPolicyRule(c *gin.Context) {
	var rule policy.Rule
	if errBind := c.ShouldBindJSON(&rule); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rule payload: " + errBind.Error()})
		return
	}
	rule.ID = c.Param("id")

	if errUpsert := s.PolicyStore.UpsertRule(c.Request.Context(), rule, actorFromContext(c)); errUpsert != nil {
		if errors.Is(errUpsert, policy.ErrInvalidTable) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": errUpsert.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": errUpsert.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"version": s.PolicyStore.Current().Version})
}
