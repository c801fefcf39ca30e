package http_api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/core-coin/handlemint/internal/models"
)

// CreateSessionRequest represents the JSON body for starting a purchase
type CreateSessionRequest struct {
	Handle          string `json:"handle" binding:"required"`
	Email           string `json:"email" binding:"omitempty,email"`
	CreatedBySystem string `json:"created_by_system" binding:"omitempty,oneof=UI CLI SPO"`
}

// SessionResponse is the public view of a session
type SessionResponse struct {
	ID              string `json:"id"`
	Handle          string `json:"handle"`
	PaymentAddress  string `json:"payment_address"`
	Cost            int64  `json:"cost"`
	Status          string `json:"status"`
	WorkflowStatus  string `json:"workflow_status"`
	TxID            string `json:"tx_id,omitempty"`
	RefundAmount    int64  `json:"refund_amount,omitempty"`
	Start           int64  `json:"start"`
	CreatedBySystem string `json:"created_by_system"`
}

func toSessionResponse(session *models.ActiveSession) SessionResponse {
	return SessionResponse{
		ID:              session.ID,
		Handle:          session.Handle,
		PaymentAddress:  session.PaymentAddress,
		Cost:            session.Cost,
		Status:          string(session.Status),
		WorkflowStatus:  string(session.WorkflowStatus),
		TxID:            session.TxID,
		RefundAmount:    session.RefundAmount,
		Start:           session.Start,
		CreatedBySystem: string(session.CreatedBySystem),
	}
}

// errorStatus maps service errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrHandleUnavailable), errors.Is(err, models.ErrActiveSessionExists):
		return http.StatusConflict
	case errors.Is(err, models.ErrNoPaymentAddress):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *HTTPServer) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorw("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"success": false, "error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

// createSession is a handler for POST /api/v1/sessions.
func (s *HTTPServer) createSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debugw("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	session, err := s.handlemint.CreateSession(c.Request.Context(), &models.SessionRequest{
		Handle:          req.Handle,
		EmailAddress:    req.Email,
		CreatedBySystem: models.CreatedBySystem(req.CreatedBySystem),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSessionResponse(session))
}

// getSession is a handler for GET /api/v1/sessions/:id.
func (s *HTTPServer) getSession(c *gin.Context) {
	session, err := s.handlemint.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, toSessionResponse(session))
}

// findSessions looks sessions up by one of handle, payment_address, email or tx_id.
func (s *HTTPServer) findSessions(c *gin.Context) {
	filter := models.SessionFilter{
		Handle:         c.Query("handle"),
		PaymentAddress: c.Query("payment_address"),
		Email:          c.Query("email"),
		TxID:           c.Query("tx_id"),
	}
	if filter == (models.SessionFilter{}) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "one of handle, payment_address, email or tx_id is required"})
		return
	}

	sessions, err := s.handlemint.FindSessions(c.Request.Context(), filter)
	if err != nil {
		s.fail(c, err)
		return
	}
	response := make([]SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		response = append(response, toSessionResponse(session))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": response})
}

func (s *HTTPServer) queuePosition(c *gin.Context) {
	info, err := s.handlemint.QueuePosition(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// runJob wraps a cron job as an endpoint. Expected outcomes such as a held lock answer
// 200 with error set so schedulers don't alert on them.
func (s *HTTPServer) runJob(job func(ctx context.Context) (*models.JobResult, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := job(c.Request.Context())
		if err != nil && !models.IsBenign(err) {
			c.JSON(http.StatusInternalServerError, result)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
