/**
 * @description
 * This file defines the typed representation of incoming payment-provider
 * webhook events and the internal billing events the service publishes to
 * RabbitMQ for downstream consumers.
 *
 * Provider events are decoded into a tagged union immediately after signature
 * verification, so every branch of the reconciler works on a strongly-typed
 * payload instead of a loosely-typed bag.
 */
package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v72"
)

// Provider event types the reconciler acts on. Anything else is acknowledged
// and dropped for forward compatibility with the provider's vocabulary.
const (
	EventCheckoutCompleted       = "checkout.session.completed"
	EventSubscriptionCreated     = "customer.subscription.created"
	EventSubscriptionUpdated     = "customer.subscription.updated"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
)

// SignupMetadata is the signup form payload attached to the checkout session
// and echoed back verbatim on the completion event. It is the reconciler's
// only record of signup intent.
type SignupMetadata struct {
	Name          string `json:"name"`
	Email         string `json:"email"`
	Phone         string `json:"phone"`
	StoreName     string `json:"storeName"`
	StorePassword string `json:"storePassword"`
}

// CheckoutCompletedEvent carries the data of a completed hosted checkout.
// This is the only event addressed by email rather than customer reference.
type CheckoutCompletedEvent struct {
	SessionID      string
	CustomerID     string
	SubscriptionID string
	Metadata       SignupMetadata
}

// SubscriptionEvent carries the data of a subscription created/updated
// notification. Period timestamps are optional: the provider may emit the
// creation notice before the billing period is finalized.
type SubscriptionEvent struct {
	SubscriptionID string
	CustomerID     string
	PriceID        string
	Status         string
	PeriodStart    *time.Time
	PeriodEnd      *time.Time
}

// SubscriptionDeletedEvent signals a terminal cancellation.
type SubscriptionDeletedEvent struct {
	SubscriptionID string
	CustomerID     string
}

// InvoiceEvent carries the data of an invoice payment outcome.
type InvoiceEvent struct {
	InvoiceID       string
	CustomerID      string
	AmountPaidMinor int64
}

// ProviderEvent is a tagged union over the handled event types. Exactly one
// payload field is non-nil for a handled Type; none are set for unknown types.
type ProviderEvent struct {
	Type string

	CheckoutCompleted       *CheckoutCompletedEvent
	SubscriptionCreated     *SubscriptionEvent
	SubscriptionUpdated     *SubscriptionEvent
	SubscriptionDeleted     *SubscriptionDeletedEvent
	InvoicePaymentSucceeded *InvoiceEvent
	InvoicePaymentFailed    *InvoiceEvent
}

// ProviderEventFromStripe decodes a verified Stripe event into the tagged
// union. Unknown event types decode to a bare ProviderEvent carrying only the
// type. A non-nil error means the payload could not be parsed at all.
func ProviderEventFromStripe(ev stripe.Event) (ProviderEvent, error) {
	out := ProviderEvent{Type: ev.Type}

	switch ev.Type {
	case EventCheckoutCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(ev.Data.Raw, &session); err != nil {
			return out, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		payload := &CheckoutCompletedEvent{SessionID: session.ID}
		if session.Customer != nil {
			payload.CustomerID = session.Customer.ID
		}
		if session.Subscription != nil {
			payload.SubscriptionID = session.Subscription.ID
		}
		payload.Metadata = SignupMetadata{
			Name:          session.Metadata["name"],
			Email:         session.Metadata["email"],
			Phone:         session.Metadata["phone"],
			StoreName:     session.Metadata["storeName"],
			StorePassword: session.Metadata["storePassword"],
		}
		out.CheckoutCompleted = payload

	case EventSubscriptionCreated, EventSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return out, fmt.Errorf("failed to decode subscription: %w", err)
		}
		payload := subscriptionEventFromStripe(&sub)
		if ev.Type == EventSubscriptionCreated {
			out.SubscriptionCreated = payload
		} else {
			out.SubscriptionUpdated = payload
		}

	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(ev.Data.Raw, &sub); err != nil {
			return out, fmt.Errorf("failed to decode subscription: %w", err)
		}
		payload := &SubscriptionDeletedEvent{SubscriptionID: sub.ID}
		if sub.Customer != nil {
			payload.CustomerID = sub.Customer.ID
		}
		out.SubscriptionDeleted = payload

	case EventInvoicePaymentSucceeded, EventInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(ev.Data.Raw, &invoice); err != nil {
			return out, fmt.Errorf("failed to decode invoice: %w", err)
		}
		payload := &InvoiceEvent{InvoiceID: invoice.ID, AmountPaidMinor: invoice.AmountPaid}
		if invoice.Customer != nil {
			payload.CustomerID = invoice.Customer.ID
		}
		if ev.Type == EventInvoicePaymentSucceeded {
			out.InvoicePaymentSucceeded = payload
		} else {
			out.InvoicePaymentFailed = payload
		}
	}

	return out, nil
}

func subscriptionEventFromStripe(sub *stripe.Subscription) *SubscriptionEvent {
	payload := &SubscriptionEvent{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.Customer != nil {
		payload.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		payload.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		payload.PeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		payload.PeriodEnd = &t
	}
	return payload
}

// Internal billing events published to the billing_events exchange.

// SubscriptionActivatedEvent is published once a tenant's first checkout
// completes and the owner account exists.
type SubscriptionActivatedEvent struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan"`
	Timestamp time.Time `json:"timestamp"`
}

// SubscriptionCanceledEvent is published when the provider reports a
// subscription as deleted.
type SubscriptionCanceledEvent struct {
	TenantID  uuid.UUID `json:"tenant_id"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentFailedEvent is published on each failed invoice payment.
type PaymentFailedEvent struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	FailedAttempts int       `json:"failed_attempts"`
	Timestamp      time.Time `json:"timestamp"`
}
