package http_api

import "github.com/gin-gonic/gin"

// routes sets up the routes for the HTTP server.
func (s *HTTPServer) routes() {
	s.router.GET("/health", s.health)
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.metrics))
	}

	v1 := s.router.Group("/api/v1")
	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions", s.findSessions)
	v1.GET("/sessions/:id", s.getSession)
	v1.GET("/sessions/:id/queue", s.queuePosition)

	jobs := v1.Group("/jobs")
	jobs.POST("/reconcile", s.runJob(s.handlemint.ReconcilePayments))
	jobs.POST("/mint", s.runJob(s.handlemint.MintPaidSessions))
	jobs.POST("/confirm", s.runJob(s.handlemint.ConfirmMints))
	jobs.POST("/refresh-state", s.runJob(s.handlemint.RefreshState))
}
