/**
 * @description
 * This package provides a client for interacting with the Stripe API. It
 * encapsulates hosted checkout session creation, subscription retrieval, and
 * webhook signature verification behind a small surface so the rest of the
 * service never touches Stripe globals.
 *
 * @dependencies
 * - github.com/stripe/stripe-go/v72: The official Stripe client library.
 */
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"github.com/stripe/stripe-go/v72/webhook"
)

// Client is a thin wrapper over a dedicated Stripe API client instance. The
// API key is injected at construction time rather than set process-wide.
type Client struct {
	api *client.API
}

// NewClient creates a new Stripe client with the given secret key.
func NewClient(apiKey string) *Client {
	api := &client.API{}
	api.Init(apiKey, nil)
	return &Client{api: api}
}

// CheckoutSessionParams describes a subscription-mode hosted checkout session.
// Metadata is attached verbatim and echoed back on the completion webhook.
type CheckoutSessionParams struct {
	CustomerEmail string
	PriceID       string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// SubscriptionInfo is the subset of a Stripe subscription the billing service
// cares about. Period timestamps are nil when Stripe has not finalized them.
type SubscriptionInfo struct {
	ID          string
	CustomerID  string
	PriceID     string
	Status      string
	PeriodStart *time.Time
	PeriodEnd   *time.Time
}

// CreateCheckoutSession requests a hosted checkout session from Stripe and
// returns the redirect URL. No local state is created; the pending session
// lives entirely with Stripe until a webhook arrives.
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutSessionParams) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Params:        stripe.Params{Context: ctx},
		CustomerEmail: stripe.String(p.CustomerEmail),
		PaymentMethodTypes: stripe.StringSlice([]string{
			"card",
		}),
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(p.SuccessURL),
		CancelURL:  stripe.String(p.CancelURL),
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("failed to create checkout session: %w", providerError(err))
	}
	return session.URL, nil
}

// GetSubscription retrieves a subscription by id.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*SubscriptionInfo, error) {
	sub, err := c.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve subscription %s: %w", subscriptionID, providerError(err))
	}

	info := &SubscriptionInfo{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		info.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		info.PriceID = sub.Items.Data[0].Price.ID
	}
	if sub.CurrentPeriodStart > 0 {
		t := time.Unix(sub.CurrentPeriodStart, 0).UTC()
		info.PeriodStart = &t
	}
	if sub.CurrentPeriodEnd > 0 {
		t := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		info.PeriodEnd = &t
	}
	return info, nil
}

// ConstructEvent verifies the signature over the raw webhook body and returns
// the parsed event. The body must not be interpreted before this succeeds.
func ConstructEvent(payload []byte, signatureHeader, secret string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, signatureHeader, secret)
}

// providerError unwraps the human-readable Stripe message so callers can
// surface it without leaking the full API error structure.
func providerError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
		return errors.New(stripeErr.Msg)
	}
	return err
}
