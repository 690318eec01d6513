/**
 * @description
 * This file provides the PostgreSQL implementation of the Repository
 * interface. It contains all the SQL queries against the tenants,
 * tenant_admins and payment_logs tables.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pawsuite/billing-service/internal/domain"
)

// PostgresRepository is the concrete Repository backed by a pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const tenantColumns = `
	id, email, slug, name, email_verified,
	stripe_customer_id, stripe_subscription_id, stripe_price_id,
	subscription_status, subscription_plan,
	current_period_start, current_period_end, next_payment_date,
	failed_payment_attempts, last_payment_date, is_active, website_data
`

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(
		&t.ID, &t.Email, &t.Slug, &t.Name, &t.EmailVerified,
		&t.StripeCustomerID, &t.StripeSubscriptionID, &t.StripePriceID,
		&t.SubscriptionStatus, &t.SubscriptionPlan,
		&t.CurrentPeriodStart, &t.CurrentPeriodEnd, &t.NextPaymentDate,
		&t.FailedPaymentAttempts, &t.LastPaymentDate, &t.IsActive, &t.WebsiteData,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindTenantByID retrieves a tenant by its primary key.
func (r *PostgresRepository) FindTenantByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	return scanTenant(r.db.QueryRow(ctx, query, id))
}

// FindTenantByEmail retrieves a tenant by email. Email is only a valid lookup
// key before the first checkout completion sets the customer reference.
func (r *PostgresRepository) FindTenantByEmail(ctx context.Context, email string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE lower(email) = lower($1)`
	return scanTenant(r.db.QueryRow(ctx, query, email))
}

// FindTenantByStripeCustomerID retrieves a tenant by its external customer reference.
func (r *PostgresRepository) FindTenantByStripeCustomerID(ctx context.Context, customerID string) (*domain.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE stripe_customer_id = $1`
	return scanTenant(r.db.QueryRow(ctx, query, customerID))
}

// ActivateTenant applies the checkout-completion update to the tenant row
// addressed by email and returns the updated row.
func (r *PostgresRepository) ActivateTenant(ctx context.Context, params ActivateTenantParams) (*domain.Tenant, error) {
	query := `
		UPDATE tenants SET
			name = $2,
			email_verified = TRUE,
			stripe_customer_id = $3,
			stripe_subscription_id = $4,
			stripe_price_id = $5,
			subscription_status = 'active',
			subscription_plan = $6,
			current_period_start = $7,
			current_period_end = $8,
			next_payment_date = $9,
			last_payment_date = $10,
			is_active = TRUE,
			website_data = $11,
			updated_at = NOW()
		WHERE lower(email) = lower($1)
		RETURNING ` + tenantColumns
	return scanTenant(r.db.QueryRow(ctx, query,
		params.Email,
		params.Name,
		params.StripeCustomerID,
		params.StripeSubscriptionID,
		params.StripePriceID,
		params.SubscriptionPlan,
		params.CurrentPeriodStart,
		params.CurrentPeriodEnd,
		params.NextPaymentDate,
		params.LastPaymentDate,
		params.WebsiteData,
	))
}

// UpdateSubscriptionDetails applies a complete subscription created/updated
// event to the tenant addressed by customer reference.
func (r *PostgresRepository) UpdateSubscriptionDetails(ctx context.Context, customerID string, params SubscriptionDetailsParams) error {
	query := `
		UPDATE tenants SET
			stripe_subscription_id = $2,
			stripe_price_id = $3,
			subscription_plan = $4,
			subscription_status = $5,
			current_period_start = $6,
			current_period_end = $7,
			next_payment_date = $8,
			updated_at = NOW()
		WHERE stripe_customer_id = $1
	`
	tag, err := r.db.Exec(ctx, query,
		customerID,
		params.StripeSubscriptionID,
		params.StripePriceID,
		params.SubscriptionPlan,
		params.Status,
		params.CurrentPeriodStart,
		params.CurrentPeriodEnd,
		params.NextPaymentDate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// UpdateSubscriptionPeriod overwrites status and billing period for the tenant
// addressed by customer reference. Next payment date always tracks period end.
func (r *PostgresRepository) UpdateSubscriptionPeriod(ctx context.Context, customerID string, status string, periodStart, periodEnd time.Time) error {
	query := `
		UPDATE tenants SET
			subscription_status = $2,
			current_period_start = $3,
			current_period_end = $4,
			next_payment_date = $4,
			updated_at = NOW()
		WHERE stripe_customer_id = $1
	`
	tag, err := r.db.Exec(ctx, query, customerID, status, periodStart, periodEnd)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// MarkSubscriptionCanceled sets the terminal canceled state. Re-running it is
// harmless; the end state is identical.
func (r *PostgresRepository) MarkSubscriptionCanceled(ctx context.Context, customerID string) error {
	query := `
		UPDATE tenants SET
			subscription_status = 'canceled',
			is_active = FALSE,
			updated_at = NOW()
		WHERE stripe_customer_id = $1
	`
	tag, err := r.db.Exec(ctx, query, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// RecordFailedPayment increments the failed-payment counter in the database so
// concurrent deliveries cannot lose an increment.
func (r *PostgresRepository) RecordFailedPayment(ctx context.Context, tenantID uuid.UUID) (int, error) {
	query := `
		UPDATE tenants SET
			subscription_status = 'past_due',
			failed_payment_attempts = failed_payment_attempts + 1,
			updated_at = NOW()
		WHERE id = $1
		RETURNING failed_payment_attempts
	`
	var attempts int
	err := r.db.QueryRow(ctx, query, tenantID).Scan(&attempts)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrTenantNotFound
		}
		return 0, err
	}
	return attempts, nil
}

// RefreshLastPayment stamps the last successful payment time.
func (r *PostgresRepository) RefreshLastPayment(ctx context.Context, tenantID uuid.UUID, paidAt time.Time) error {
	query := `UPDATE tenants SET last_payment_date = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, tenantID, paidAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTenantNotFound
	}
	return nil
}

// CreatePaymentLog appends a ledger row. The unique index on
// stripe_invoice_id makes redelivered invoice notifications a no-op.
func (r *PostgresRepository) CreatePaymentLog(ctx context.Context, entry *domain.PaymentLog) (bool, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO payment_logs (id, stripe_invoice_id, amount, status, description, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (stripe_invoice_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		entry.ID, entry.StripeInvoiceID, entry.Amount, entry.Status, entry.Description, entry.TenantID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CreateTenantAdminIfAbsent creates the owner account unless one already
// exists for the (email, tenant) pair.
func (r *PostgresRepository) CreateTenantAdminIfAbsent(ctx context.Context, admin *domain.TenantAdmin) (bool, error) {
	if admin.ID == uuid.Nil {
		admin.ID = uuid.New()
	}
	query := `
		INSERT INTO tenant_admins (id, email, name, password_hash, role, tenant_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email, tenant_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		admin.ID, admin.Email, admin.Name, admin.PasswordHash, admin.Role, admin.TenantID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
