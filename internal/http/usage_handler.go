package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGetUsage reports the caller-selected user's current-day quota record.
func (s *Server) handleGetUsage(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	record, errUsage := s.Ledger.Usage(c.Request.Context(), userID)
	if errUsage != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": errUsage.Error()})
		return
	}

	c.JSON(http.StatusOK, record)
}
