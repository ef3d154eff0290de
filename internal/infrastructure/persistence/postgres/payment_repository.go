package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/servilink/escrow-engine/internal/domain"
)

const paymentColumns = `
	id, booking_id, client_id, provider_id,
	gross_cents, platform_fee_cents, processing_fee_cents, provider_net_cents, currency,
	gateway_intent_id, status, refund_cents, refund_reason, failure_reason,
	created_at, updated_at, completed_at, refunded_at`

type PaymentRepository struct {
	q Executor
}

func NewPaymentRepository(q Executor) *PaymentRepository {
	return &PaymentRepository{q: q}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, booking_id, client_id, provider_id,
			gross_cents, platform_fee_cents, processing_fee_cents, provider_net_cents, currency,
			gateway_intent_id, status, refund_cents, refund_reason, failure_reason,
			created_at, updated_at, completed_at, refunded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	_, err := r.q.Exec(ctx, query,
		payment.ID,
		payment.BookingID,
		payment.ClientID,
		payment.ProviderID,
		payment.GrossCents,
		payment.PlatformFeeCents,
		payment.ProcessingFeeCents,
		payment.ProviderNetCents,
		payment.Currency,
		payment.GatewayIntentID,
		payment.Status,
		payment.RefundCents,
		payment.RefundReason,
		payment.FailureReason,
		payment.CreatedAt,
		payment.UpdatedAt,
		payment.CompletedAt,
		payment.RefundedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewConflictError(fmt.Sprintf("payment already exists for booking %s", payment.BookingID))
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $1, refund_cents = $2, refund_reason = $3, failure_reason = $4,
			updated_at = $5, completed_at = $6, refunded_at = $7
		WHERE id = $8
	`

	result, err := r.q.Exec(ctx, query,
		payment.Status,
		payment.RefundCents,
		payment.RefundReason,
		payment.FailureReason,
		payment.UpdatedAt,
		payment.CompletedAt,
		payment.RefundedAt,
		payment.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("payment", payment.ID.String())
	}

	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE id = $1`
	return scanPayment(r.q.QueryRow(ctx, query, id), id.String())
}

func (r *PaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE id = $1 FOR UPDATE`
	return scanPayment(r.q.QueryRow(ctx, query, id), id.String())
}

func (r *PaymentRepository) FindByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE booking_id = $1`
	return scanPayment(r.q.QueryRow(ctx, query, bookingID), bookingID)
}

func (r *PaymentRepository) FindByIntentIDForUpdate(ctx context.Context, intentID string) (*domain.Payment, error) {
	query := `SELECT` + paymentColumns + ` FROM payments WHERE gateway_intent_id = $1 FOR UPDATE`
	return scanPayment(r.q.QueryRow(ctx, query, intentID), intentID)
}

func (r *PaymentRepository) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]*domain.Payment, error) {
	query := `
		SELECT` + paymentColumns + `
		FROM payments
		WHERE client_id = $1 OR provider_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.q.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query payments by user_id: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Payment, error) {
		var p domain.Payment
		err := scanPaymentInto(row, &p)
		return &p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments by user_id: %w", err)
	}
	return results, nil
}

func (r *PaymentRepository) Stats(ctx context.Context) (*domain.PaymentStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('COMPLETED', 'REFUNDED', 'DISPUTED')),
			COUNT(*) FILTER (WHERE status = 'FAILED'),
			COALESCE(SUM(gross_cents) FILTER (WHERE status IN ('COMPLETED', 'REFUNDED', 'DISPUTED')), 0),
			COALESCE(SUM(platform_fee_cents) FILTER (WHERE status IN ('COMPLETED', 'REFUNDED', 'DISPUTED')), 0),
			(SELECT COALESCE(SUM(amount_cents), 0) FROM escrows WHERE status = 'HELD')
		FROM payments
	`

	var s domain.PaymentStats
	err := r.q.QueryRow(ctx, query).Scan(
		&s.TotalPayments,
		&s.CompletedPayments,
		&s.FailedPayments,
		&s.CompletedGrossCents,
		&s.PlatformFeeCents,
		&s.PendingEscrowCents,
	)
	if err != nil {
		return nil, fmt.Errorf("query payment stats: %w", err)
	}

	if settled := s.CompletedPayments + s.FailedPayments; settled > 0 {
		s.SuccessRate = float64(s.CompletedPayments) / float64(settled)
	}

	return &s, nil
}

func scanPayment(row pgx.Row, id string) (*domain.Payment, error) {
	var p domain.Payment
	if err := scanPaymentInto(row, &p); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("payment", id)
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}
	return &p, nil
}

func scanPaymentInto(row pgx.Row, p *domain.Payment) error {
	return row.Scan(
		&p.ID, &p.BookingID, &p.ClientID, &p.ProviderID,
		&p.GrossCents, &p.PlatformFeeCents, &p.ProcessingFeeCents, &p.ProviderNetCents, &p.Currency,
		&p.GatewayIntentID, &p.Status, &p.RefundCents, &p.RefundReason, &p.FailureReason,
		&p.CreatedAt, &p.UpdatedAt, &p.CompletedAt, &p.RefundedAt,
	)
}
