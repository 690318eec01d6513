/**
 * @description
 * This file defines the core domain models for the billing-service.
 * It includes the Tenant struct that maps to the tenants table, the
 * TenantAdmin owner account, and the append-only PaymentLog ledger.
 */
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Subscription statuses tracked locally. Provider-originated updates may carry
// additional vocabulary; those values are stored verbatim.
const (
	SubscriptionStatusInactive = "inactive"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Subscription plans.
const (
	PlanMonthly = "monthly"
	PlanYearly  = "yearly"
)

// Tenant represents one signed-up business. The row is created during signup
// and is only mutated by the billing service after that; cancellation sets
// status, it never removes the row.
type Tenant struct {
	ID                    uuid.UUID       `json:"id"`
	Email                 string          `json:"email"`
	Slug                  string          `json:"slug"`
	Name                  string          `json:"name"`
	EmailVerified         bool            `json:"email_verified"`
	StripeCustomerID      *string         `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  *string         `json:"stripe_subscription_id,omitempty"`
	StripePriceID         *string         `json:"stripe_price_id,omitempty"`
	SubscriptionStatus    string          `json:"subscription_status"`
	SubscriptionPlan      *string         `json:"subscription_plan,omitempty"`
	CurrentPeriodStart    *time.Time      `json:"current_period_start,omitempty"`
	CurrentPeriodEnd      *time.Time      `json:"current_period_end,omitempty"`
	NextPaymentDate       *time.Time      `json:"next_payment_date,omitempty"`
	FailedPaymentAttempts int             `json:"failed_payment_attempts"`
	LastPaymentDate       *time.Time      `json:"last_payment_date,omitempty"`
	IsActive              bool            `json:"is_active"`
	WebsiteData           json.RawMessage `json:"website_data,omitempty"`
}

// TenantAdmin is the owner account for a tenant. At most one row exists per
// (email, tenant) pair; creation is conditional on absence.
type TenantAdmin struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	TenantID     uuid.UUID `json:"tenant_id"`
}

// PaymentLog is an append-only ledger entry, one per paid invoice. Amount is
// in major currency units, floor-rounded from the provider's minor units.
type PaymentLog struct {
	ID              uuid.UUID `json:"id"`
	StripeInvoiceID string    `json:"stripe_invoice_id"`
	Amount          int64     `json:"amount"`
	Status          string    `json:"status"`
	Description     string    `json:"description"`
	TenantID        uuid.UUID `json:"tenant_id"`
}

// BillingStatus is a DTO returned to an authenticated tenant admin asking
// about the tenant's current subscription.
type BillingStatus struct {
	Status                string     `json:"status"`
	Plan                  *string    `json:"plan,omitempty"`
	IsActive              bool       `json:"is_active"`
	CurrentPeriodEnd      *time.Time `json:"current_period_end,omitempty"`
	NextPaymentDate       *time.Time `json:"next_payment_date,omitempty"`
	LastPaymentDate       *time.Time `json:"last_payment_date,omitempty"`
	FailedPaymentAttempts int        `json:"failed_payment_attempts"`
}

// DefaultWebsiteData builds the initial site-configuration blob written when a
// tenant's checkout completes. The storefront editor takes over from there.
func DefaultWebsiteData(storeName string) json.RawMessage {
	blob := map[string]interface{}{
		"hero": map[string]interface{}{
			"title":    "Welcome to " + storeName,
			"subtitle": "Premium pet care services",
			"image":    "/default-hero.jpg",
		},
		"about": "We provide the best care for your pets.",
	}
	data, _ := json.Marshal(blob)
	return data
}
