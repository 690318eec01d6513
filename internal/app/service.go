/**
 * @description
 * This file contains the core business logic for the billing service. The
 * Service struct orchestrates checkout initiation against the payment
 * provider and serves tenant-facing billing queries. The webhook
 * reconciliation logic lives in reconciler.go.
 *
 * @dependencies
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/stripeclient, pkg/rabbitmq: For external service communication.
 * - golang.org/x/crypto/bcrypt: For owner-account credential hashing.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/pawsuite/billing-service/internal/domain"
	"github.com/pawsuite/billing-service/internal/store"
	"github.com/pawsuite/billing-service/pkg/rabbitmq"
	"github.com/pawsuite/billing-service/pkg/stripeclient"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPlan is returned when a checkout request names an unknown plan or
// one whose price reference is not configured for this deployment.
var ErrInvalidPlan = errors.New("invalid or unconfigured plan")

// PaymentProvider is the surface of the payment provider the service uses.
type PaymentProvider interface {
	CreateCheckoutSession(ctx context.Context, p stripeclient.CheckoutSessionParams) (string, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error)
}

// PasswordHasher turns a plaintext credential into an opaque digest.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
}

// BcryptHasher is the production PasswordHasher.
type BcryptHasher struct{}

// Hash hashes the plaintext with bcrypt at the default cost.
func (BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Service provides the business logic for billing and reconciliation.
type Service struct {
	repo      store.Repository
	provider  PaymentProvider
	producer  rabbitmq.Publisher
	hasher    PasswordHasher
	plans     domain.PlanCatalog
	baseURL   string
	portalURL string
}

// NewService creates a new billing service instance.
func NewService(
	repo store.Repository,
	provider PaymentProvider,
	producer rabbitmq.Publisher,
	hasher PasswordHasher,
	plans domain.PlanCatalog,
	baseURL string,
	portalURL string,
) *Service {
	return &Service{
		repo:      repo,
		provider:  provider,
		producer:  producer,
		hasher:    hasher,
		plans:     plans,
		baseURL:   baseURL,
		portalURL: portalURL,
	}
}

// CreateCheckoutSession resolves the requested plan and asks the provider for
// a subscription-mode hosted checkout session. The full signup payload rides
// along as session metadata; the completion webhook is the only place it comes
// back to us, so it has to go out verbatim.
func (s *Service) CreateCheckoutSession(ctx context.Context, email, planID string, metadata domain.SignupMetadata) (string, error) {
	plan, ok := s.plans.Resolve(planID)
	if !ok {
		return "", ErrInvalidPlan
	}

	url, err := s.provider.CreateCheckoutSession(ctx, stripeclient.CheckoutSessionParams{
		CustomerEmail: email,
		PriceID:       plan.PriceID,
		SuccessURL:    s.baseURL + "/create/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:     s.baseURL + "/create",
		Metadata: map[string]string{
			"name":          metadata.Name,
			"email":         metadata.Email,
			"phone":         metadata.Phone,
			"storeName":     metadata.StoreName,
			"storePassword": metadata.StorePassword,
		},
	})
	if err != nil {
		return "", fmt.Errorf("checkout creation failed: %w", err)
	}

	log.Printf("Checkout session created for %s (plan %s)", email, plan.ID)
	return url, nil
}

// Plans returns the static pricing catalog for the pricing page.
func (s *Service) Plans() []domain.Plan {
	return s.plans.Plans()
}

// PortalURL returns the customer self-service portal link, or an empty string
// when the deployment has none configured.
func (s *Service) PortalURL() string {
	return s.portalURL
}

// BillingStatus returns the current subscription snapshot for a tenant.
func (s *Service) BillingStatus(ctx context.Context, tenantID uuid.UUID) (*domain.BillingStatus, error) {
	tenant, err := s.repo.FindTenantByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &domain.BillingStatus{
		Status:                tenant.SubscriptionStatus,
		Plan:                  tenant.SubscriptionPlan,
		IsActive:              tenant.IsActive,
		CurrentPeriodEnd:      tenant.CurrentPeriodEnd,
		NextPaymentDate:       tenant.NextPaymentDate,
		LastPaymentDate:       tenant.LastPaymentDate,
		FailedPaymentAttempts: tenant.FailedPaymentAttempts,
	}, nil
}
