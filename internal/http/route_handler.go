package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/policy"
	"github.com/modelgate/modelgate/internal/quota"
	"github.com/modelgate/modelgate/internal/selector"
	log "github.com/sirupsen/logrus"
)

// handleRoute serves the inbound routing endpoint.
func (s *Server) handleRoute(c *gin.Context) {
	var reqCtx policy.RequestContext
	if errBind := c.ShouldBindJSON(&reqCtx); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + errBind.Error()})
		return
	}
	if strings.TrimSpace(reqCtx.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	decision, errRoute := s.Router.Route(c.Request.Context(), reqCtx)
	if errRoute != nil {
		var quotaErr *quota.QuotaExceededError
		switch {
		case errors.As(errRoute, &quotaErr):
			// Enough detail for the caller to retry later or fall back.
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":      "quota exceeded",
				"reason":     quotaErr.Reason,
				"limit":      quotaErr.Limit,
				"remaining":  quotaErr.Remaining,
				"reset_time": quotaErr.ResetTime,
			})
		case errors.Is(errRoute, selector.ErrNoEligibleProvider):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no eligible provider"})
		case errors.Is(errRoute, c.Request.Context().Err()) && c.Request.Context().Err() != nil:
			c.Status(http.StatusRequestTimeout)
		default:
			log.WithError(errRoute).Error("route request failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}

	c.JSON(http.StatusOK, decision)
}
