package server

import (
	"errors"
	"io"
	"net/http"

	auditdomain "github.com/fourpaws/billing/internal/audit/domain"
	billingdomain "github.com/fourpaws/billing/internal/billing/domain"
	"github.com/fourpaws/billing/internal/billing/stripe"
	obscontext "github.com/fourpaws/billing/internal/observability/context"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxWebhookBody caps webhook payload reads. Stripe events stay well
// under this.
const maxWebhookBody = 1 << 20

// @Summary      Stripe Webhook
// @Description  Receive and process a Stripe webhook delivery
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /webhooks/stripe [post]
func (s *Server) HandleStripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	event, err := s.stripe.ParseEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, stripe.ErrInvalidSignature) {
			AbortWithError(c, &APIError{
				Status:  http.StatusBadRequest,
				Code:    "invalid_signature",
				Message: "webhook signature verification failed",
			})
			return
		}
		AbortWithError(c, err)
		return
	}

	// Fast path for redeliveries of events we finished recently. The
	// database unique index still backstops anything the cache misses.
	if _, seen := s.processedEvents.Get(event.ExternalID); seen {
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	ctx := obscontext.WithActor(c.Request.Context(), auditdomain.ActorStripe)
	if err := s.billingSvc.ProcessEvent(ctx, event); err != nil {
		if errors.Is(err, billingdomain.ErrEventAlreadyProcessed) {
			s.processedEvents.Set(event.ExternalID, struct{}{}, processedEventTTL)
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
		// Non-2xx tells Stripe to redeliver.
		s.log.Error("webhook processing failed",
			zap.String("event_id", event.ExternalID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err),
		)
		AbortWithError(c, err)
		return
	}

	s.processedEvents.Set(event.ExternalID, struct{}{}, processedEventTTL)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
