/**
 * @description
 * This file contains the webhook reconciliation logic: a projection from
 * verified provider events onto tenant records. Events arrive in any order,
 * any number of times; every branch applies exactly the update its event type
 * implies and nothing else, so redelivery is always safe.
 *
 * A "tenant not found" condition is acknowledged, never escalated: the
 * provider's retry policy is keyed on acknowledgment, and redelivering an
 * event that can never match a tenant would loop forever.
 */
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pawsuite/billing-service/internal/domain"
	"github.com/pawsuite/billing-service/internal/store"
	"github.com/pawsuite/billing-service/pkg/rabbitmq"
)

// ProcessEvent applies a single verified provider event to tenant state.
// A nil return means the event was handled (possibly as a no-op) and must be
// acknowledged; a non-nil return means an internal fault and the provider
// should redeliver.
func (s *Service) ProcessEvent(ctx context.Context, ev domain.ProviderEvent) error {
	switch ev.Type {
	case domain.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, ev.CheckoutCompleted)
	case domain.EventSubscriptionCreated:
		return s.handleSubscriptionCreated(ctx, ev.SubscriptionCreated)
	case domain.EventSubscriptionUpdated:
		return s.handleSubscriptionUpdated(ctx, ev.SubscriptionUpdated)
	case domain.EventSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, ev.SubscriptionDeleted)
	case domain.EventInvoicePaymentSucceeded:
		return s.handleInvoicePaymentSucceeded(ctx, ev.InvoicePaymentSucceeded)
	case domain.EventInvoicePaymentFailed:
		return s.handleInvoicePaymentFailed(ctx, ev.InvoicePaymentFailed)
	default:
		log.Printf("Unhandled webhook event type: %s", ev.Type)
		return nil
	}
}

// handleCheckoutCompleted is the activation path: it records the customer
// reference, fills the subscription snapshot, seeds the storefront content,
// and creates the owner admin account exactly once. It is the only handler
// addressed by email; every later event uses the customer reference.
func (s *Service) handleCheckoutCompleted(ctx context.Context, ev *domain.CheckoutCompletedEvent) error {
	if ev.Metadata.Email == "" {
		log.Printf("Checkout completion without metadata email (session %s); dropping", ev.SessionID)
		return nil
	}

	// The session only names the subscription; period and price live on the
	// subscription object, so fetch it. Stripe may not have finalized the
	// billing period yet, in which case the period fields stay nil and a
	// later subscription event fills them in.
	var (
		priceID     string
		periodStart *time.Time
		periodEnd   *time.Time
	)
	subscriptionID := ev.SubscriptionID
	if subscriptionID != "" {
		sub, err := s.provider.GetSubscription(ctx, subscriptionID)
		if err != nil {
			return fmt.Errorf("failed to retrieve subscription for checkout %s: %w", ev.SessionID, err)
		}
		priceID = sub.PriceID
		periodStart = sub.PeriodStart
		periodEnd = sub.PeriodEnd
	}

	passwordHash, err := s.hasher.Hash(ev.Metadata.StorePassword)
	if err != nil {
		return fmt.Errorf("failed to hash owner password: %w", err)
	}

	plan := s.plans.PlanForPriceID(priceID)
	tenant, err := s.repo.ActivateTenant(ctx, store.ActivateTenantParams{
		Email:                ev.Metadata.Email,
		Name:                 ev.Metadata.StoreName,
		StripeCustomerID:     ev.CustomerID,
		StripeSubscriptionID: subscriptionID,
		StripePriceID:        priceID,
		SubscriptionPlan:     plan,
		CurrentPeriodStart:   periodStart,
		CurrentPeriodEnd:     periodEnd,
		NextPaymentDate:      periodEnd,
		LastPaymentDate:      time.Now().UTC(),
		WebsiteData:          domain.DefaultWebsiteData(ev.Metadata.StoreName),
	})
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			log.Printf("No tenant for checkout email %s; acknowledging", ev.Metadata.Email)
			return nil
		}
		return err
	}

	created, err := s.repo.CreateTenantAdminIfAbsent(ctx, &domain.TenantAdmin{
		Email:        ev.Metadata.Email,
		Name:         ev.Metadata.Name,
		PasswordHash: passwordHash,
		Role:         "root",
		TenantID:     tenant.ID,
	})
	if err != nil {
		return fmt.Errorf("failed to create tenant admin: %w", err)
	}
	if created {
		log.Printf("Owner admin created for tenant %s", tenant.Slug)
	}

	s.publishBillingEvent(ctx, rabbitmq.RoutingKeySubscriptionActivated, domain.SubscriptionActivatedEvent{
		TenantID:  tenant.ID,
		Email:     tenant.Email,
		Plan:      plan,
		Timestamp: time.Now().UTC(),
	})

	log.Printf("Checkout completed for tenant %s (plan %s)", tenant.Slug, plan)
	return nil
}

// handleSubscriptionCreated confirms the subscription snapshot once the
// provider reports a finalized billing period. An event without both period
// timestamps carries nothing we do not already have, so it is a no-op rather
// than an overwrite of good data with nulls.
func (s *Service) handleSubscriptionCreated(ctx context.Context, ev *domain.SubscriptionEvent) error {
	if ev.PeriodStart == nil || ev.PeriodEnd == nil {
		log.Printf("Subscription %s created without period timestamps; nothing to apply", ev.SubscriptionID)
		return nil
	}

	err := s.repo.UpdateSubscriptionDetails(ctx, ev.CustomerID, store.SubscriptionDetailsParams{
		StripeSubscriptionID: ev.SubscriptionID,
		StripePriceID:        ev.PriceID,
		SubscriptionPlan:     s.plans.PlanForPriceID(ev.PriceID),
		Status:               domain.SubscriptionStatusActive,
		CurrentPeriodStart:   *ev.PeriodStart,
		CurrentPeriodEnd:     *ev.PeriodEnd,
		NextPaymentDate:      *ev.PeriodEnd,
	})
	if errors.Is(err, store.ErrTenantNotFound) {
		// Likely a pre-activation race: the tenant is not addressable by
		// customer reference until checkout completion lands.
		log.Printf("No tenant for customer %s on subscription created; acknowledging", ev.CustomerID)
		return nil
	}
	return err
}

// handleSubscriptionUpdated overwrites status and billing period, gated the
// same way as creation. The status is the provider's vocabulary, stored
// verbatim.
func (s *Service) handleSubscriptionUpdated(ctx context.Context, ev *domain.SubscriptionEvent) error {
	if ev.PeriodStart == nil || ev.PeriodEnd == nil {
		log.Printf("Subscription %s updated without period timestamps; nothing to apply", ev.SubscriptionID)
		return nil
	}

	err := s.repo.UpdateSubscriptionPeriod(ctx, ev.CustomerID, ev.Status, *ev.PeriodStart, *ev.PeriodEnd)
	if errors.Is(err, store.ErrTenantNotFound) {
		log.Printf("No tenant for customer %s on subscription updated; acknowledging", ev.CustomerID)
		return nil
	}
	return err
}

// handleSubscriptionDeleted applies the terminal cancellation. It has no
// timestamp dependency and the same end state however many times it runs.
func (s *Service) handleSubscriptionDeleted(ctx context.Context, ev *domain.SubscriptionDeletedEvent) error {
	tenant, err := s.repo.FindTenantByStripeCustomerID(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			log.Printf("No tenant for customer %s on subscription deleted; acknowledging", ev.CustomerID)
			return nil
		}
		return err
	}

	if err := s.repo.MarkSubscriptionCanceled(ctx, ev.CustomerID); err != nil && !errors.Is(err, store.ErrTenantNotFound) {
		return err
	}

	s.publishBillingEvent(ctx, rabbitmq.RoutingKeySubscriptionCanceled, domain.SubscriptionCanceledEvent{
		TenantID:  tenant.ID,
		Timestamp: time.Now().UTC(),
	})

	log.Printf("Subscription canceled for tenant %s", tenant.Slug)
	return nil
}

// handleInvoicePaymentSucceeded appends a ledger row and refreshes the last
// payment stamp. The amount converts from minor to major units, floored.
// Redelivered invoices hit the ledger's uniqueness guard and change nothing.
func (s *Service) handleInvoicePaymentSucceeded(ctx context.Context, ev *domain.InvoiceEvent) error {
	tenant, err := s.repo.FindTenantByStripeCustomerID(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			log.Printf("No tenant for customer %s on invoice %s; acknowledging", ev.CustomerID, ev.InvoiceID)
			return nil
		}
		return err
	}

	created, err := s.repo.CreatePaymentLog(ctx, &domain.PaymentLog{
		StripeInvoiceID: ev.InvoiceID,
		Amount:          ev.AmountPaidMinor / 100,
		Status:          "succeeded",
		Description:     "Subscription payment",
		TenantID:        tenant.ID,
	})
	if err != nil {
		return err
	}
	if !created {
		log.Printf("Invoice %s already logged for tenant %s; skipping", ev.InvoiceID, tenant.Slug)
		return nil
	}

	return s.repo.RefreshLastPayment(ctx, tenant.ID, time.Now().UTC())
}

// handleInvoicePaymentFailed marks the tenant past due and bumps the failure
// counter. The increment happens in the database, so two racing deliveries
// both count.
func (s *Service) handleInvoicePaymentFailed(ctx context.Context, ev *domain.InvoiceEvent) error {
	tenant, err := s.repo.FindTenantByStripeCustomerID(ctx, ev.CustomerID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			log.Printf("No tenant for customer %s on failed invoice %s; acknowledging", ev.CustomerID, ev.InvoiceID)
			return nil
		}
		return err
	}

	attempts, err := s.repo.RecordFailedPayment(ctx, tenant.ID)
	if err != nil {
		if errors.Is(err, store.ErrTenantNotFound) {
			return nil
		}
		return err
	}

	s.publishBillingEvent(ctx, rabbitmq.RoutingKeyPaymentFailed, domain.PaymentFailedEvent{
		TenantID:       tenant.ID,
		FailedAttempts: attempts,
		Timestamp:      time.Now().UTC(),
	})

	log.Printf("Failed payment recorded for tenant %s (attempt %d)", tenant.Slug, attempts)
	return nil
}

// publishBillingEvent publishes an advisory billing event. Broker failures
// are logged and swallowed: the webhook acknowledgment must not depend on the
// message bus.
func (s *Service) publishBillingEvent(ctx context.Context, routingKey string, body interface{}) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(ctx, rabbitmq.BillingEventsExchange, routingKey, body); err != nil {
		log.Printf("Failed to publish %s: %v", routingKey, err)
	}
}
