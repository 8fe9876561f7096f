package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventStatus is the processing state of a stored billing event.
// pending -> processed and pending -> failed are the only transitions;
// both targets are terminal.
type EventStatus string

const (
	StatusPending   EventStatus = "pending"
	StatusProcessed EventStatus = "processed"
	StatusFailed    EventStatus = "failed"
)

// EventType enumerates the provider event kinds the engine knows about.
// Anything else is recorded for audit and left pending.
type EventType string

const (
	EventCustomerCreated          EventType = "customer.created"
	EventCustomerUpdated          EventType = "customer.updated"
	EventSubscriptionCreated      EventType = "customer.subscription.created"
	EventSubscriptionUpdated      EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      EventType = "customer.subscription.deleted"
	EventSubscriptionTrialWillEnd EventType = "customer.subscription.trial_will_end"
	EventCheckoutCompleted        EventType = "checkout.session.completed"
	EventInvoicePaid              EventType = "invoice.paid"
	EventInvoicePaymentSucceeded  EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     EventType = "invoice.payment_failed"
	EventInvoiceActionRequired    EventType = "invoice.payment_action_required"
	EventInvoiceCreated           EventType = "invoice.created"
	EventInvoiceFinalized         EventType = "invoice.finalized"
	EventInvoiceUpdated           EventType = "invoice.updated"
	EventPaymentIntentSucceeded   EventType = "payment_intent.succeeded"
	EventPaymentIntentCreated     EventType = "payment_intent.created"
	EventPaymentIntentFailed      EventType = "payment_intent.payment_failed"
	EventChargeSucceeded          EventType = "charge.succeeded"
	EventPaymentMethodAttached    EventType = "payment_method.attached"
)

// Provider subscription statuses the engine branches on.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
	SubscriptionStatusUnpaid   = "unpaid"
)

// Metadata keys set when this service creates provider objects.
const (
	MetadataUserIDKey         = "user_id"
	MetadataSubscriptionIDKey = "subscription_id"
)

// BillingEvent is the durable record of a received provider event. Rows
// are created on receipt with status pending, moved once to processed
// or failed, and never deleted.
type BillingEvent struct {
	ID                 snowflake.ID   `gorm:"primaryKey" json:"id"`
	ExternalEventID    string         `gorm:"type:text;not null;uniqueIndex" json:"external_event_id"`
	UserID             *snowflake.ID  `gorm:"index" json:"user_id,omitempty"`
	ExternalCustomerID *string        `gorm:"type:text" json:"external_customer_id,omitempty"`
	EventType          string         `gorm:"type:text;not null" json:"event_type"`
	Status             EventStatus    `gorm:"type:text;not null;default:'pending';index" json:"status"`
	Payload            datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ExternalCreatedAt  *time.Time     `json:"external_created_at,omitempty"`
	ProcessedAt        *time.Time     `json:"processed_at,omitempty"`
	Error              *string        `gorm:"type:text" json:"error,omitempty"`
	CreatedAt          time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (BillingEvent) TableName() string { return "billing_events" }

// Event is a parsed provider webhook delivery.
type Event struct {
	ExternalID string
	Type       EventType
	CreatedAt  time.Time
	// Payload is the full original event body, retained for audit and replay.
	Payload json.RawMessage

	// At most one of the following is set, depending on the event's
	// object type.
	Customer      *CustomerPayload
	Subscription  *SubscriptionPayload
	Invoice       *InvoicePayload
	PaymentIntent *PaymentIntentPayload
	Other         *ObjectPayload
}

// CustomerPayload is the slice of a provider customer the engine reads.
type CustomerPayload struct {
	ID       string
	Email    string
	Metadata map[string]string
}

// SubscriptionPayload is the slice of a provider subscription the engine reads.
type SubscriptionPayload struct {
	ID                string
	CustomerID        string
	Status            string
	CancelAtPeriodEnd bool
	ProductIDs        []string
	Metadata          map[string]string
}

// HasProduct reports whether the subscription's line items include the
// given product.
func (s *SubscriptionPayload) HasProduct(productID string) bool {
	if s == nil || strings.TrimSpace(productID) == "" {
		return false
	}
	for _, id := range s.ProductIDs {
		if id == productID {
			return true
		}
	}
	return false
}

// InvoicePayload is the slice of a provider invoice the engine reads.
type InvoicePayload struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	// NextPaymentAttempt is nil once the provider has exhausted its
	// retry schedule.
	NextPaymentAttempt *time.Time
}

// PaymentIntentPayload is the slice of a provider payment intent the engine reads.
type PaymentIntentPayload struct {
	ID         string
	CustomerID string
	Metadata   map[string]string
}

// ObjectPayload carries the common fields of audit-only objects.
type ObjectPayload struct {
	ID         string
	CustomerID string
}

// CustomerID returns the provider customer referenced by the event, if any.
func (e *Event) CustomerID() string {
	switch {
	case e == nil:
		return ""
	case e.Customer != nil:
		return e.Customer.ID
	case e.Subscription != nil:
		return e.Subscription.CustomerID
	case e.Invoice != nil:
		return e.Invoice.CustomerID
	case e.PaymentIntent != nil:
		return e.PaymentIntent.CustomerID
	case e.Other != nil:
		return e.Other.CustomerID
	default:
		return ""
	}
}

// MetadataUserID returns the user id carried in the event object's
// metadata, if any.
func (e *Event) MetadataUserID() string {
	if e == nil {
		return ""
	}
	var metadata map[string]string
	switch {
	case e.Customer != nil:
		metadata = e.Customer.Metadata
	case e.Subscription != nil:
		metadata = e.Subscription.Metadata
	case e.PaymentIntent != nil:
		metadata = e.PaymentIntent.Metadata
	}
	return strings.TrimSpace(metadata[MetadataUserIDKey])
}
