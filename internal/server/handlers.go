package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mbd888/paypilot/internal/engine"
	"github.com/mbd888/paypilot/internal/health"
	"github.com/mbd888/paypilot/internal/logging"
	"github.com/mbd888/paypilot/internal/trust"
	"github.com/mbd888/paypilot/internal/validation"
)

// evaluateHandler handles POST /v1/risk/evaluate
func (s *Server) evaluateHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req engine.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	eval, err := s.engine.Evaluate(ctx, req)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
				"details": verrs,
			})
			return
		}

		// Internal failure still answers with the conservative degraded
		// decision so clients always have something actionable.
		logging.L(ctx).Error("evaluation failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "internal_error",
			"decision":   "WARN",
			"message":    "Policy engine unavailable",
			"aiRequired": false,
		})
		return
	}

	s.realtimeHub.BroadcastEvaluation(map[string]interface{}{
		"userId":    req.UserID,
		"riskScore": eval.RiskScore,
		"decision":  eval.Decision,
		"degraded":  eval.Degraded,
	})

	c.JSON(http.StatusOK, eval)
}

// overrideRequest is the POST /v1/risk/override payload
type overrideRequest struct {
	UserID    string `json:"userId"`
	RiskScore int    `json:"riskScore"`
	Decision  string `json:"decision"`
}

// overrideHandler handles POST /v1/risk/override
func (s *Server) overrideHandler(c *gin.Context) {
	ctx := c.Request.Context()

	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	u, err := s.engine.RecordOverride(ctx, req.UserID, req.RiskScore, req.Decision)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": verrs.Error(),
				"details": verrs,
			})
			return
		}

		logging.L(ctx).Error("failed to record override", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to record override",
		})
		return
	}

	s.realtimeHub.BroadcastOverride(map[string]interface{}{
		"userId":     u.UserID,
		"riskScore":  req.RiskScore,
		"decision":   req.Decision,
		"trustScore": u.TrustScore,
	})

	c.JSON(http.StatusOK, gin.H{
		"status":     "override recorded",
		"userId":     u.UserID,
		"trustScore": u.TrustScore,
	})
}

// userProfileHandler handles GET /v1/risk/users/:userId
func (s *Server) userProfileHandler(c *gin.Context) {
	ctx := c.Request.Context()
	userID := c.Param("userId")

	if !validation.IsValidUserID(userID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_user_id",
			"message": "userId must be at most 64 word characters",
		})
		return
	}

	u, err := s.engine.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, trust.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "user_not_found",
				"message": "No trust record for this user",
			})
			return
		}
		logging.L(ctx).Error("failed to load user profile", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load user profile",
		})
		return
	}

	c.JSON(http.StatusOK, u)
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.healthChecks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "PayPilot",
		"description": "Pre-transaction financial risk gate",
		"version":     "0.1.0",
	})
}
