// Package http exposes the routing core over gin: the inbound route
// endpoint, the admin policy/usage/evaluation API, and process metrics.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelgate/modelgate/internal/eval"
	"github.com/modelgate/modelgate/internal/policy"
	"github.com/modelgate/modelgate/internal/quota"
	"github.com/modelgate/modelgate/internal/router"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server bundles the handlers' dependencies.
type Server struct {
	Router      *router.Router
	PolicyStore *policy.Store
	Ledger      *quota.Ledger
	Registry    *eval.Registry
	// Invoke runs a provider during benchmark runs. Never used on the
	// routing path.
	Invoke      eval.InvokeFunc
	AdminSecret string
}

// Register mounts all routes on engine.
func (s *Server) Register(engine *gin.Engine) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	engine.POST("/v1/route", s.handleRoute)

	admin := engine.Group("/v0/admin", AdminAuthMiddleware(s.AdminSecret))
	{
		admin.GET("/policy/table", s.handleGetPolicyTable)
		admin.PUT("/policy/table", s.handlePutPolicyTable)
		admin.PUT("/policy/rules/:id", s.handlePutPolicyRule)
		admin.GET("/usage/:user_id", s.handleGetUsage)
		admin.POST("/evaluations", s.handleRunEvaluation)
		admin.GET("/evaluations", s.handleListEvaluations)
	}
}
