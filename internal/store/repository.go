/**
 * @description
 * This file defines the repository interface the billing service depends on,
 * together with the sentinel errors and parameter structs shared by its
 * implementations. The PostgreSQL implementation lives in
 * postgres_repository.go; tests substitute stubs.
 */
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pawsuite/billing-service/internal/domain"
)

var (
	ErrTenantNotFound = errors.New("tenant not found")
)

// ActivateTenantParams carries everything a completed checkout writes onto the
// tenant row in one update. Pointer fields stay untouched in the row when the
// provider has not produced them yet.
type ActivateTenantParams struct {
	Email                string
	Name                 string
	StripeCustomerID     string
	StripeSubscriptionID string
	StripePriceID        string
	SubscriptionPlan     string
	CurrentPeriodStart   *time.Time
	CurrentPeriodEnd     *time.Time
	NextPaymentDate      *time.Time
	LastPaymentDate      time.Time
	WebsiteData          json.RawMessage
}

// SubscriptionDetailsParams carries the fields a gated subscription
// created/updated event overwrites, addressed by customer reference.
type SubscriptionDetailsParams struct {
	StripeSubscriptionID string
	StripePriceID        string
	SubscriptionPlan     string
	Status               string
	CurrentPeriodStart   time.Time
	CurrentPeriodEnd     time.Time
	NextPaymentDate      time.Time
}

// Repository defines the persistence operations used by the billing service.
type Repository interface {
	FindTenantByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
	FindTenantByEmail(ctx context.Context, email string) (*domain.Tenant, error)
	FindTenantByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error)

	// ActivateTenant applies the full checkout-completion update, addressed by
	// email (the only pre-activation lookup key), and returns the updated row.
	ActivateTenant(ctx context.Context, params ActivateTenantParams) (*domain.Tenant, error)

	// UpdateSubscriptionDetails applies a complete subscription created/updated
	// event, addressed by customer reference.
	UpdateSubscriptionDetails(ctx context.Context, customerID string, params SubscriptionDetailsParams) error

	// UpdateSubscriptionPeriod overwrites the status and billing period only,
	// addressed by customer reference. The status is stored verbatim.
	UpdateSubscriptionPeriod(ctx context.Context, customerID string, status string, periodStart, periodEnd time.Time) error

	// MarkSubscriptionCanceled sets the canceled status and clears the active
	// flag, addressed by customer reference.
	MarkSubscriptionCanceled(ctx context.Context, customerID string) error

	// RecordFailedPayment sets past_due and increments the failed-payment
	// counter atomically in the database, returning the new counter value.
	RecordFailedPayment(ctx context.Context, tenantID uuid.UUID) (int, error)

	// RefreshLastPayment stamps the last successful payment time.
	RefreshLastPayment(ctx context.Context, tenantID uuid.UUID, paidAt time.Time) error

	// CreatePaymentLog appends a ledger row. It reports false when a row for
	// the same invoice reference already exists.
	CreatePaymentLog(ctx context.Context, entry *domain.PaymentLog) (bool, error)

	// CreateTenantAdminIfAbsent creates the owner account unless one already
	// exists for the (email, tenant) pair. It reports whether a row was created.
	CreateTenantAdminIfAbsent(ctx context.Context, admin *domain.TenantAdmin) (bool, error)
}
