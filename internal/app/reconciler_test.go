package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pawsuite/billing-service/internal/domain"
	"github.com/pawsuite/billing-service/internal/store"
	"github.com/pawsuite/billing-service/pkg/stripeclient"
)

// fakeRepo is an in-memory single-tenant repository used to exercise the
// reconciler's ordering and idempotence behavior end to end.
type fakeRepo struct {
	tenant *domain.Tenant
	admins map[string]*domain.TenantAdmin
	logs   map[string]*domain.PaymentLog
}

func newFakeRepo(tenant *domain.Tenant) *fakeRepo {
	return &fakeRepo{
		tenant: tenant,
		admins: make(map[string]*domain.TenantAdmin),
		logs:   make(map[string]*domain.PaymentLog),
	}
}

func (f *fakeRepo) FindTenantByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	if f.tenant == nil || f.tenant.ID != id {
		return nil, store.ErrTenantNotFound
	}
	return f.tenant, nil
}

func (f *fakeRepo) FindTenantByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	if f.tenant == nil || !strings.EqualFold(f.tenant.Email, email) {
		return nil, store.ErrTenantNotFound
	}
	return f.tenant, nil
}

func (f *fakeRepo) FindTenantByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	if f.tenant == nil || f.tenant.StripeCustomerID == nil || *f.tenant.StripeCustomerID != customerID {
		return nil, store.ErrTenantNotFound
	}
	return f.tenant, nil
}

func (f *fakeRepo) ActivateTenant(ctx context.Context, params store.ActivateTenantParams) (*domain.Tenant, error) {
	if f.tenant == nil || !strings.EqualFold(f.tenant.Email, params.Email) {
		return nil, store.ErrTenantNotFound
	}
	t := f.tenant
	t.Name = params.Name
	t.EmailVerified = true
	t.StripeCustomerID = &params.StripeCustomerID
	t.StripeSubscriptionID = &params.StripeSubscriptionID
	t.StripePriceID = &params.StripePriceID
	t.SubscriptionStatus = domain.SubscriptionStatusActive
	plan := params.SubscriptionPlan
	t.SubscriptionPlan = &plan
	t.CurrentPeriodStart = params.CurrentPeriodStart
	t.CurrentPeriodEnd = params.CurrentPeriodEnd
	t.NextPaymentDate = params.NextPaymentDate
	paidAt := params.LastPaymentDate
	t.LastPaymentDate = &paidAt
	t.IsActive = true
	t.WebsiteData = params.WebsiteData
	return t, nil
}

func (f *fakeRepo) UpdateSubscriptionDetails(ctx context.Context, customerID string, params store.SubscriptionDetailsParams) error {
	t, err := f.FindTenantByStripeCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	t.StripeSubscriptionID = &params.StripeSubscriptionID
	t.StripePriceID = &params.StripePriceID
	plan := params.SubscriptionPlan
	t.SubscriptionPlan = &plan
	t.SubscriptionStatus = params.Status
	start, end, next := params.CurrentPeriodStart, params.CurrentPeriodEnd, params.NextPaymentDate
	t.CurrentPeriodStart = &start
	t.CurrentPeriodEnd = &end
	t.NextPaymentDate = &next
	return nil
}

func (f *fakeRepo) UpdateSubscriptionPeriod(ctx context.Context, customerID string, status string, periodStart, periodEnd time.Time) error {
	t, err := f.FindTenantByStripeCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	t.SubscriptionStatus = status
	start, end := periodStart, periodEnd
	t.CurrentPeriodStart = &start
	t.CurrentPeriodEnd = &end
	t.NextPaymentDate = &end
	return nil
}

func (f *fakeRepo) MarkSubscriptionCanceled(ctx context.Context, customerID string) error {
	t, err := f.FindTenantByStripeCustomerID(ctx, customerID)
	if err != nil {
		return err
	}
	t.SubscriptionStatus = domain.SubscriptionStatusCanceled
	t.IsActive = false
	return nil
}

func (f *fakeRepo) RecordFailedPayment(ctx context.Context, tenantID uuid.UUID) (int, error) {
	t, err := f.FindTenantByID(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	t.SubscriptionStatus = domain.SubscriptionStatusPastDue
	t.FailedPaymentAttempts++
	return t.FailedPaymentAttempts, nil
}

func (f *fakeRepo) RefreshLastPayment(ctx context.Context, tenantID uuid.UUID, paidAt time.Time) error {
	t, err := f.FindTenantByID(ctx, tenantID)
	if err != nil {
		return err
	}
	t.LastPaymentDate = &paidAt
	return nil
}

func (f *fakeRepo) CreatePaymentLog(ctx context.Context, entry *domain.PaymentLog) (bool, error) {
	if _, exists := f.logs[entry.StripeInvoiceID]; exists {
		return false, nil
	}
	f.logs[entry.StripeInvoiceID] = entry
	return true, nil
}

func (f *fakeRepo) CreateTenantAdminIfAbsent(ctx context.Context, admin *domain.TenantAdmin) (bool, error) {
	key := strings.ToLower(admin.Email) + "|" + admin.TenantID.String()
	if _, exists := f.admins[key]; exists {
		return false, nil
	}
	f.admins[key] = admin
	return true, nil
}

type providerStub struct {
	sub        *stripeclient.SubscriptionInfo
	subErr     error
	lastParams stripeclient.CheckoutSessionParams
	url        string
	urlErr     error
}

func (p *providerStub) CreateCheckoutSession(ctx context.Context, params stripeclient.CheckoutSessionParams) (string, error) {
	p.lastParams = params
	return p.url, p.urlErr
}

func (p *providerStub) GetSubscription(ctx context.Context, subscriptionID string) (*stripeclient.SubscriptionInfo, error) {
	return p.sub, p.subErr
}

type recordingPublisher struct {
	routingKeys []string
}

func (r *recordingPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	r.routingKeys = append(r.routingKeys, routingKey)
	return nil
}

func (r *recordingPublisher) Close() {}

type fakeHasher struct{}

func (fakeHasher) Hash(plaintext string) (string, error) {
	return "digest:" + plaintext, nil
}

const (
	testMonthlyPrice = "price_monthly_test"
	testYearlyPrice  = "price_yearly_test"
)

func newTestService(repo store.Repository, provider PaymentProvider) (*Service, *recordingPublisher) {
	pub := &recordingPublisher{}
	plans := domain.NewPlanCatalog(testMonthlyPrice, testYearlyPrice)
	return NewService(repo, provider, pub, fakeHasher{}, plans, "https://pawsuite.test", "https://billing.stripe.com/p/session"), pub
}

func signupTenant() *domain.Tenant {
	return &domain.Tenant{
		ID:                 uuid.New(),
		Email:              "owner@clinic.test",
		Slug:               "clinic",
		SubscriptionStatus: domain.SubscriptionStatusInactive,
	}
}

func checkoutEvent() domain.ProviderEvent {
	return domain.ProviderEvent{
		Type: domain.EventCheckoutCompleted,
		CheckoutCompleted: &domain.CheckoutCompletedEvent{
			SessionID:      "cs_test_1",
			CustomerID:     "cus_1",
			SubscriptionID: "sub_1",
			Metadata: domain.SignupMetadata{
				Name:          "Dana Owner",
				Email:         "owner@clinic.test",
				Phone:         "555-0100",
				StoreName:     "Clinic Pets",
				StorePassword: "hunter2",
			},
		},
	}
}

func subscriptionInfoWithPeriod(start, end time.Time) *stripeclient.SubscriptionInfo {
	return &stripeclient.SubscriptionInfo{
		ID:          "sub_1",
		CustomerID:  "cus_1",
		PriceID:     testYearlyPrice,
		Status:      "active",
		PeriodStart: &start,
		PeriodEnd:   &end,
	}
}

func TestProcessEvent_CheckoutCompletedActivatesTenant(t *testing.T) {
	repo := newFakeRepo(signupTenant())
	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(1, 0, 0)
	provider := &providerStub{sub: subscriptionInfoWithPeriod(start, end)}
	svc, pub := newTestService(repo, provider)

	if err := svc.ProcessEvent(context.Background(), checkoutEvent()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	tenant := repo.tenant
	if tenant.SubscriptionStatus != domain.SubscriptionStatusActive {
		t.Fatalf("expected active status, got %q", tenant.SubscriptionStatus)
	}
	if tenant.StripeCustomerID == nil || *tenant.StripeCustomerID != "cus_1" {
		t.Fatal("expected customer reference to be recorded")
	}
	if tenant.SubscriptionPlan == nil || *tenant.SubscriptionPlan != domain.PlanYearly {
		t.Fatal("expected yearly plan resolved from the price reference")
	}
	if tenant.CurrentPeriodEnd == nil || !tenant.CurrentPeriodEnd.Equal(end) {
		t.Fatal("expected period end from the retrieved subscription")
	}
	if tenant.NextPaymentDate == nil || !tenant.NextPaymentDate.Equal(*tenant.CurrentPeriodEnd) {
		t.Fatal("expected next payment date to equal period end")
	}
	if !tenant.EmailVerified || !tenant.IsActive {
		t.Fatal("expected tenant marked verified and active")
	}
	if len(tenant.WebsiteData) == 0 {
		t.Fatal("expected initial website data to be populated")
	}
	if len(repo.admins) != 1 {
		t.Fatalf("expected exactly one admin, got %d", len(repo.admins))
	}
	for _, admin := range repo.admins {
		if admin.Role != "root" {
			t.Fatalf("expected root role, got %q", admin.Role)
		}
		if admin.PasswordHash != "digest:hunter2" {
			t.Fatalf("expected hashed credential, got %q", admin.PasswordHash)
		}
	}
	if len(pub.routingKeys) != 1 || pub.routingKeys[0] != "billing.subscription.activated" {
		t.Fatalf("expected activation event published, got %v", pub.routingKeys)
	}
}

func TestProcessEvent_CheckoutCompletedTwiceCreatesOneAdmin(t *testing.T) {
	repo := newFakeRepo(signupTenant())
	start := time.Now().UTC()
	provider := &providerStub{sub: subscriptionInfoWithPeriod(start, start.AddDate(0, 1, 0))}
	svc, _ := newTestService(repo, provider)

	for i := 0; i < 2; i++ {
		if err := svc.ProcessEvent(context.Background(), checkoutEvent()); err != nil {
			t.Fatalf("delivery %d: expected nil error, got %v", i+1, err)
		}
	}

	if len(repo.admins) != 1 {
		t.Fatalf("expected exactly one admin after redelivery, got %d", len(repo.admins))
	}
}

func TestProcessEvent_CheckoutCompletedUnknownEmailIsAcknowledged(t *testing.T) {
	repo := newFakeRepo(nil)
	provider := &providerStub{sub: &stripeclient.SubscriptionInfo{ID: "sub_1", PriceID: testMonthlyPrice}}
	svc, _ := newTestService(repo, provider)

	if err := svc.ProcessEvent(context.Background(), checkoutEvent()); err != nil {
		t.Fatalf("expected lookup miss to be acknowledged, got %v", err)
	}
	if len(repo.admins) != 0 {
		t.Fatal("did not expect an admin for a missing tenant")
	}
}

func TestProcessEvent_SubscriptionCreatedWithoutTimestampsDoesNotNullPeriod(t *testing.T) {
	repo := newFakeRepo(signupTenant())
	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	provider := &providerStub{sub: subscriptionInfoWithPeriod(start, end)}
	svc, _ := newTestService(repo, provider)

	if err := svc.ProcessEvent(context.Background(), checkoutEvent()); err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// A late, incomplete creation notice must not disturb the period set by
	// the completed checkout.
	err := svc.ProcessEvent(context.Background(), domain.ProviderEvent{
		Type: domain.EventSubscriptionCreated,
		SubscriptionCreated: &domain.SubscriptionEvent{
			SubscriptionID: "sub_1",
			CustomerID:     "cus_1",
			PriceID:        testYearlyPrice,
			Status:         "incomplete",
		},
	})
	if err != nil {
		t.Fatalf("expected gated no-op, got %v", err)
	}

	tenant := repo.tenant
	if tenant.CurrentPeriodEnd == nil || !tenant.CurrentPeriodEnd.Equal(end) {
		t.Fatal("expected period end to survive the incomplete event")
	}
	if tenant.SubscriptionStatus != domain.SubscriptionStatusActive {
		t.Fatalf("expected status untouched, got %q", tenant.SubscriptionStatus)
	}
}

func TestProcessEvent_SubscriptionCreatedBeforeCheckoutConverges(t *testing.T) {
	repo := newFakeRepo(signupTenant())
	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(1, 0, 0)
	provider := &providerStub{sub: subscriptionInfoWithPeriod(start, end)}
	svc, _ := newTestService(repo, provider)

	created := domain.ProviderEvent{
		Type: domain.EventSubscriptionCreated,
		SubscriptionCreated: &domain.SubscriptionEvent{
			SubscriptionID: "sub_1",
			CustomerID:     "cus_1",
			PriceID:        testYearlyPrice,
			Status:         "active",
			PeriodStart:    &start,
			PeriodEnd:      &end,
		},
	}

	// Before checkout the tenant has no customer reference, so the creation
	// notice cannot match anything: a no-op, not a failure.
	if err := svc.ProcessEvent(context.Background(), created); err != nil {
		t.Fatalf("expected pre-activation no-op, got %v", err)
	}
	if repo.tenant.StripeSubscriptionID != nil {
		t.Fatal("did not expect subscription reference before checkout")
	}

	if err := svc.ProcessEvent(context.Background(), checkoutEvent()); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := svc.ProcessEvent(context.Background(), created); err != nil {
		t.Fatalf("redelivered created: %v", err)
	}

	tenant := repo.tenant
	if tenant.StripeSubscriptionID == nil || *tenant.StripeSubscriptionID != "sub_1" {
		t.Fatal("expected subscription reference after convergence")
	}
	if tenant.CurrentPeriodEnd == nil || !tenant.CurrentPeriodEnd.Equal(end) {
		t.Fatal("expected period end after convergence")
	}
	if tenant.SubscriptionStatus != domain.SubscriptionStatusActive {
		t.Fatalf("expected active status after convergence, got %q", tenant.SubscriptionStatus)
	}
}

func TestProcessEvent_SubscriptionUpdatedCopiesStatusVerbatim(t *testing.T) {
	customerID := "cus_1"
	tenant := signupTenant()
	tenant.StripeCustomerID = &customerID
	repo := newFakeRepo(tenant)
	svc, _ := newTestService(repo, &providerStub{})

	start := time.Now().UTC().Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	err := svc.ProcessEvent(context.Background(), domain.ProviderEvent{
		Type: domain.EventSubscriptionUpdated,
		SubscriptionUpdated: &domain.SubscriptionEvent{
			SubscriptionID: "sub_1",
			CustomerID:     customerID,
			Status:         "unpaid",
			PeriodStart:    &start,
			PeriodEnd:      &end,
		},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	if repo.tenant.SubscriptionStatus != "unpaid" {
		t.Fatalf("expected provider status stored verbatim, got %q", repo.tenant.SubscriptionStatus)
	}
	if repo.tenant.NextPaymentDate == nil || !repo.tenant.NextPaymentDate.Equal(end) {
		t.Fatal("expected next payment date to track the new period end")
	}
}

func TestProcessEvent_SubscriptionDeletedIsIdempotent(t *testing.T) {
	customerID := "cus_1"
	tenant := signupTenant()
	tenant.StripeCustomerID = &customerID
	tenant.SubscriptionStatus = domain.SubscriptionStatusActive
	tenant.IsActive = true
	repo := newFakeRepo(tenant)
	svc, pub := newTestService(repo, &providerStub{})

	deleted := domain.ProviderEvent{
		Type:                domain.EventSubscriptionDeleted,
		SubscriptionDeleted: &domain.SubscriptionDeletedEvent{SubscriptionID: "sub_1", CustomerID: customerID},
	}

	for i := 0; i < 2; i++ {
		if err := svc.ProcessEvent(context.Background(), deleted); err != nil {
			t.Fatalf("delivery %d: expected nil error, got %v", i+1, err)
		}
		if repo.tenant.SubscriptionStatus != domain.SubscriptionStatusCanceled {
			t.Fatalf("delivery %d: expected canceled, got %q", i+1, repo.tenant.SubscriptionStatus)
		}
		if repo.tenant.IsActive {
			t.Fatalf("delivery %d: expected active flag cleared", i+1)
		}
	}
	if len(pub.routingKeys) != 2 {
		t.Fatalf("expected a cancellation event per delivery, got %v", pub.routingKeys)
	}
}

func TestProcessEvent_InvoicePaymentSucceededConvertsMinorUnits(t *testing.T) {
	customerID := "cus_1"
	tenant := signupTenant()
	tenant.StripeCustomerID = &customerID
	repo := newFakeRepo(tenant)
	svc, _ := newTestService(repo, &providerStub{})

	err := svc.ProcessEvent(context.Background(), domain.ProviderEvent{
		Type:                    domain.EventInvoicePaymentSucceeded,
		InvoicePaymentSucceeded: &domain.InvoiceEvent{InvoiceID: "in_1", CustomerID: customerID, AmountPaidMinor: 4999},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	entry, ok := repo.logs["in_1"]
	if !ok {
		t.Fatal("expected a payment log entry")
	}
	if entry.Amount != 49 {
		t.Fatalf("expected floor-rounded major units 49, got %d", entry.Amount)
	}
	if repo.tenant.LastPaymentDate == nil {
		t.Fatal("expected last payment date refreshed")
	}
}

func TestProcessEvent_DuplicateInvoiceIsLoggedOnce(t *testing.T) {
	customerID := "cus_1"
	tenant := signupTenant()
	tenant.StripeCustomerID = &customerID
	repo := newFakeRepo(tenant)
	svc, _ := newTestService(repo, &providerStub{})

	ev := domain.ProviderEvent{
		Type:                    domain.EventInvoicePaymentSucceeded,
		InvoicePaymentSucceeded: &domain.InvoiceEvent{InvoiceID: "in_1", CustomerID: customerID, AmountPaidMinor: 4900},
	}
	for i := 0; i < 2; i++ {
		if err := svc.ProcessEvent(context.Background(), ev); err != nil {
			t.Fatalf("delivery %d: expected nil error, got %v", i+1, err)
		}
	}

	if len(repo.logs) != 1 {
		t.Fatalf("expected one ledger row for a redelivered invoice, got %d", len(repo.logs))
	}
}

func TestProcessEvent_InvoicePaymentSucceededUnknownTenantIsAcknowledged(t *testing.T) {
	repo := newFakeRepo(signupTenant()) // no customer reference yet
	svc, _ := newTestService(repo, &providerStub{})

	err := svc.ProcessEvent(context.Background(), domain.ProviderEvent{
		Type:                    domain.EventInvoicePaymentSucceeded,
		InvoicePaymentSucceeded: &domain.InvoiceEvent{InvoiceID: "in_1", CustomerID: "cus_unknown", AmountPaidMinor: 4999},
	})
	if err != nil {
		t.Fatalf("expected lookup miss to be acknowledged, got %v", err)
	}
	if len(repo.logs) != 0 {
		t.Fatal("did not expect a ledger row without a tenant")
	}
}

func TestProcessEvent_InvoicePaymentFailedIncrementsCounter(t *testing.T) {
	customerID := "cus_1"
	tenant := signupTenant()
	tenant.StripeCustomerID = &customerID
	tenant.SubscriptionStatus = domain.SubscriptionStatusActive
	repo := newFakeRepo(tenant)
	svc, pub := newTestService(repo, &providerStub{})

	ev := domain.ProviderEvent{
		Type:                 domain.EventInvoicePaymentFailed,
		InvoicePaymentFailed: &domain.InvoiceEvent{InvoiceID: "in_1", CustomerID: customerID},
	}
	for i := 0; i < 2; i++ {
		if err := svc.ProcessEvent(context.Background(), ev); err != nil {
			t.Fatalf("delivery %d: expected nil error, got %v", i+1, err)
		}
	}

	if repo.tenant.FailedPaymentAttempts != 2 {
		t.Fatalf("expected two recorded failures, got %d", repo.tenant.FailedPaymentAttempts)
	}
	if repo.tenant.SubscriptionStatus != domain.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %q", repo.tenant.SubscriptionStatus)
	}
	if len(pub.routingKeys) != 2 {
		t.Fatalf("expected a failure event per delivery, got %v", pub.routingKeys)
	}
}

func TestProcessEvent_UnknownEventTypeIsAcknowledged(t *testing.T) {
	tenant := signupTenant()
	repo := newFakeRepo(tenant)
	svc, pub := newTestService(repo, &providerStub{})

	if err := svc.ProcessEvent(context.Background(), domain.ProviderEvent{Type: "charge.refunded"}); err != nil {
		t.Fatalf("expected unknown event to be acknowledged, got %v", err)
	}

	if repo.tenant.SubscriptionStatus != domain.SubscriptionStatusInactive {
		t.Fatalf("did not expect a status change, got %q", repo.tenant.SubscriptionStatus)
	}
	if repo.tenant.StripeCustomerID != nil || repo.tenant.IsActive {
		t.Fatal("did not expect any tenant mutation for an unknown event")
	}
	if len(pub.routingKeys) != 0 {
		t.Fatal("did not expect any published events")
	}
}
