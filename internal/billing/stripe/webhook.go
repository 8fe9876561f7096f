package stripe

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fourpaws/billing/internal/billing/domain"
	"github.com/stripe/stripe-go/v83/webhook"
)

var ErrInvalidSignature = errors.New("invalid_webhook_signature")

// ParseEvent verifies the delivery signature and maps the event body into
// the engine's payload shape. Object payloads are decoded from the raw
// JSON rather than the SDK's typed structs so that deliveries produced
// under other API versions still parse.
func (c *Client) ParseEvent(payload []byte, signature string) (*domain.Event, error) {
	if len(payload) == 0 || signature == "" {
		return nil, ErrInvalidSignature
	}

	stripeEvent, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, ErrInvalidSignature
	}

	event := &domain.Event{
		ExternalID: stripeEvent.ID,
		Type:       domain.EventType(stripeEvent.Type),
		Payload:    json.RawMessage(payload),
	}
	if stripeEvent.Created > 0 {
		event.CreatedAt = time.Unix(stripeEvent.Created, 0).UTC()
	}

	if err := decodeObject(event, stripeEvent.Data.Raw); err != nil {
		return nil, err
	}
	return event, nil
}

// objectRef decodes Stripe fields that arrive either as a bare id string
// or as an expanded object carrying an id.
type objectRef string

func (r *objectRef) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*r = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = objectRef(s)
		return nil
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = objectRef(obj.ID)
	return nil
}

func decodeObject(event *domain.Event, raw json.RawMessage) error {
	eventType := string(event.Type)
	switch {
	case strings.HasPrefix(eventType, "customer.subscription."):
		var sub struct {
			ID                string    `json:"id"`
			Customer          objectRef `json:"customer"`
			Status            string    `json:"status"`
			CancelAtPeriodEnd bool      `json:"cancel_at_period_end"`
			Metadata          map[string]string
			Items             struct {
				Data []struct {
					Price struct {
						Product objectRef `json:"product"`
					} `json:"price"`
				} `json:"data"`
			} `json:"items"`
		}
		if err := json.Unmarshal(raw, &sub); err != nil {
			return domain.ErrInvalidPayload
		}
		payload := &domain.SubscriptionPayload{
			ID:                sub.ID,
			CustomerID:        string(sub.Customer),
			Status:            sub.Status,
			CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
			Metadata:          sub.Metadata,
		}
		for _, item := range sub.Items.Data {
			if item.Price.Product != "" {
				payload.ProductIDs = append(payload.ProductIDs, string(item.Price.Product))
			}
		}
		event.Subscription = payload
		return nil

	case strings.HasPrefix(eventType, "customer."):
		var cust struct {
			ID       string `json:"id"`
			Email    string `json:"email"`
			Metadata map[string]string
		}
		if err := json.Unmarshal(raw, &cust); err != nil {
			return domain.ErrInvalidPayload
		}
		event.Customer = &domain.CustomerPayload{
			ID:       cust.ID,
			Email:    cust.Email,
			Metadata: cust.Metadata,
		}
		return nil

	case strings.HasPrefix(eventType, "invoice."):
		var inv struct {
			ID                 string    `json:"id"`
			Customer           objectRef `json:"customer"`
			Subscription       objectRef `json:"subscription"`
			NextPaymentAttempt *int64    `json:"next_payment_attempt"`
			Parent             *struct {
				SubscriptionDetails *struct {
					Subscription objectRef `json:"subscription"`
				} `json:"subscription_details"`
			} `json:"parent"`
		}
		if err := json.Unmarshal(raw, &inv); err != nil {
			return domain.ErrInvalidPayload
		}
		payload := &domain.InvoicePayload{
			ID:             inv.ID,
			CustomerID:     string(inv.Customer),
			SubscriptionID: string(inv.Subscription),
		}
		// Newer API versions moved the subscription reference under parent.
		if payload.SubscriptionID == "" && inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
			payload.SubscriptionID = string(inv.Parent.SubscriptionDetails.Subscription)
		}
		if inv.NextPaymentAttempt != nil && *inv.NextPaymentAttempt > 0 {
			next := time.Unix(*inv.NextPaymentAttempt, 0).UTC()
			payload.NextPaymentAttempt = &next
		}
		event.Invoice = payload
		return nil

	case strings.HasPrefix(eventType, "payment_intent."):
		var intent struct {
			ID       string    `json:"id"`
			Customer objectRef `json:"customer"`
			Metadata map[string]string
		}
		if err := json.Unmarshal(raw, &intent); err != nil {
			return domain.ErrInvalidPayload
		}
		event.PaymentIntent = &domain.PaymentIntentPayload{
			ID:         intent.ID,
			CustomerID: string(intent.Customer),
			Metadata:   intent.Metadata,
		}
		return nil

	default:
		var obj struct {
			ID       string    `json:"id"`
			Customer objectRef `json:"customer"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return domain.ErrInvalidPayload
		}
		event.Other = &domain.ObjectPayload{
			ID:         obj.ID,
			CustomerID: string(obj.Customer),
		}
		return nil
	}
}
