package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	obscontext "github.com/fourpaws/billing/internal/observability/context"
	"github.com/gin-gonic/gin"
)

// @Summary      Create Checkout Session
// @Description  Start a hosted checkout for the premium subscription
// @Tags         billing
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /billing/checkout [post]
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	userID, ok := obscontext.UserIDFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	url, err := s.billingSvc.CreateCheckoutSession(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"url": url}})
}

// @Summary      Create Portal Session
// @Description  Open the provider's customer portal for the caller
// @Tags         billing
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /billing/portal [post]
func (s *Server) CreatePortalSession(c *gin.Context) {
	userID, ok := obscontext.UserIDFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	url, err := s.billingSvc.CreatePortalSession(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"url": url}})
}

// @Summary      Get Subscription
// @Description  Return the caller's current subscription tier
// @Tags         billing
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /billing/subscription [get]
func (s *Server) GetSubscriptionTier(c *gin.Context) {
	userID, ok := obscontext.UserIDFromGin(c)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	tier, err := s.subSvc.GetTier(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"tier": tier}})
}

type syncSubscriptionRequest struct {
	UserID string `json:"user_id"`
}

// @Summary      Sync Subscription
// @Description  Re-derive a user's tier from the provider's live state
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        request body syncSubscriptionRequest true "Sync Request"
// @Success      200  {object}  map[string]string
// @Router       /billing/sync [post]
func (s *Server) SyncSubscription(c *gin.Context) {
	var req syncSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	raw := strings.TrimSpace(req.UserID)
	if raw == "" {
		AbortWithError(c, newValidationError("user_id", "required", "user_id is required"))
		return
	}
	parsed, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || parsed == 0 {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}

	if !s.syncLimiter.Allow(raw) {
		AbortWithError(c, ErrTooManyRequests)
		return
	}

	tier, err := s.billingSvc.SyncUserSubscription(c.Request.Context(), snowflake.ID(parsed))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"tier": tier}})
}

// @Summary      List System Events
// @Description  List recorded audit events
// @Tags         billing
// @Accept       json
// @Produce      json
// @Security     ApiKeyAuth
// @Param        user_id     query  string  false  "User ID"
// @Param        event_type  query  string  false  "Event Type"
// @Param        limit       query  int     false  "Limit"
// @Success      200  {object}  []auditdomain.SystemEvent
// @Router       /billing/events [get]
func (s *Server) ListSystemEvents(c *gin.Context) {
	var query struct {
		UserID    string `form:"user_id"`
		EventType string `form:"event_type"`
		Limit     int    `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	filter := auditdomain.ListFilter{
		EventType: strings.TrimSpace(query.EventType),
		Limit:     query.Limit,
	}
	if raw := strings.TrimSpace(query.UserID); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed == 0 {
			AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
			return
		}
		filter.UserID = snowflake.ID(parsed)
	}

	resp, err := s.auditSvc.List(c.Request.Context(), filter)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
