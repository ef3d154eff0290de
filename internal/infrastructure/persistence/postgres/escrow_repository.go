package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/servilink/escrow-engine/internal/domain"
)

const escrowColumns = `
	id, payment_id, booking_id, amount_cents, status,
	release_date, released_at, release_requested_at, gateway_transfer_id,
	created_at, updated_at`

type EscrowRepository struct {
	q Executor
}

func NewEscrowRepository(q Executor) *EscrowRepository {
	return &EscrowRepository{q: q}
}

func (r *EscrowRepository) Create(ctx context.Context, escrow *domain.Escrow) error {
	query := `
		INSERT INTO escrows (
			id, payment_id, booking_id, amount_cents, status,
			release_date, released_at, release_requested_at, gateway_transfer_id,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.q.Exec(ctx, query,
		escrow.ID,
		escrow.PaymentID,
		escrow.BookingID,
		escrow.AmountCents,
		escrow.Status,
		escrow.ReleaseDate,
		escrow.ReleasedAt,
		escrow.ReleaseRequestedAt,
		escrow.GatewayTransferID,
		escrow.CreatedAt,
		escrow.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewConflictError(fmt.Sprintf("escrow already exists for payment %s", escrow.PaymentID))
		}
		return fmt.Errorf("failed to create escrow: %w", err)
	}

	return nil
}

func (r *EscrowRepository) Update(ctx context.Context, escrow *domain.Escrow) error {
	query := `
		UPDATE escrows
		SET status = $1, release_date = $2, released_at = $3, release_requested_at = $4,
			gateway_transfer_id = $5, updated_at = $6
		WHERE id = $7
	`

	result, err := r.q.Exec(ctx, query,
		escrow.Status,
		escrow.ReleaseDate,
		escrow.ReleasedAt,
		escrow.ReleaseRequestedAt,
		escrow.GatewayTransferID,
		escrow.UpdatedAt,
		escrow.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update escrow: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("escrow", escrow.ID.String())
	}

	return nil
}

func (r *EscrowRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT` + escrowColumns + ` FROM escrows WHERE id = $1`
	return scanEscrow(r.q.QueryRow(ctx, query, id), id.String())
}

func (r *EscrowRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT` + escrowColumns + ` FROM escrows WHERE id = $1 FOR UPDATE`
	return scanEscrow(r.q.QueryRow(ctx, query, id), id.String())
}

func (r *EscrowRepository) FindByPaymentIDForUpdate(ctx context.Context, paymentID uuid.UUID) (*domain.Escrow, error) {
	query := `SELECT` + escrowColumns + ` FROM escrows WHERE payment_id = $1 FOR UPDATE`
	return scanEscrow(r.q.QueryRow(ctx, query, paymentID), paymentID.String())
}

func (r *EscrowRepository) FindByTransferIDForUpdate(ctx context.Context, transferID string) (*domain.Escrow, error) {
	query := `SELECT` + escrowColumns + ` FROM escrows WHERE gateway_transfer_id = $1 FOR UPDATE`
	return scanEscrow(r.q.QueryRow(ctx, query, transferID), transferID)
}

// FindDueForRelease returns held escrows past their release date that have no
// transfer in flight yet.
func (r *EscrowRepository) FindDueForRelease(ctx context.Context, now time.Time, limit int) ([]*domain.Escrow, error) {
	query := `
		SELECT` + escrowColumns + `
		FROM escrows
		WHERE status = 'HELD'
		  AND release_date <= $1
		  AND gateway_transfer_id IS NULL
		ORDER BY release_date ASC
		LIMIT $2
	`
	return r.collectEscrows(ctx, query, now, limit)
}

// FindAwaitingConfirmation returns held escrows whose transfer was requested
// before the cutoff but never confirmed by a webhook.
func (r *EscrowRepository) FindAwaitingConfirmation(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Escrow, error) {
	query := `
		SELECT` + escrowColumns + `
		FROM escrows
		WHERE status = 'HELD'
		  AND gateway_transfer_id IS NOT NULL
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2
	`
	return r.collectEscrows(ctx, query, cutoff, limit)
}

func (r *EscrowRepository) collectEscrows(ctx context.Context, query string, args ...any) ([]*domain.Escrow, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escrows: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.Escrow, error) {
		var e domain.Escrow
		err := scanEscrowInto(row, &e)
		return &e, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan escrows: %w", err)
	}
	return results, nil
}

func scanEscrow(row pgx.Row, id string) (*domain.Escrow, error) {
	var e domain.Escrow
	if err := scanEscrowInto(row, &e); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("escrow", id)
		}
		return nil, fmt.Errorf("failed to scan escrow: %w", err)
	}
	return &e, nil
}

func scanEscrowInto(row pgx.Row, e *domain.Escrow) error {
	return row.Scan(
		&e.ID, &e.PaymentID, &e.BookingID, &e.AmountCents, &e.Status,
		&e.ReleaseDate, &e.ReleasedAt, &e.ReleaseRequestedAt, &e.GatewayTransferID,
		&e.CreatedAt, &e.UpdatedAt,
	)
}
