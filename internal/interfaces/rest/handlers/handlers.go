package handlers

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/servilink/escrow-engine/internal/application/services"
	"github.com/servilink/escrow-engine/internal/domain"
)

// Service interfaces are narrowed to what the handlers call so tests can stub
// them without standing up the full wiring.

type IntentCreator interface {
	CreateIntent(ctx context.Context, cmd services.CreateIntentCommand) (*services.IntentResult, error)
}

type EscrowReleaser interface {
	Release(ctx context.Context, cmd services.ReleaseCommand) (*domain.Escrow, error)
}

type Refunder interface {
	Refund(ctx context.Context, cmd services.RefundCommand) (*services.RefundResult, error)
}

type EventHandler interface {
	HandleEvent(ctx context.Context, evt *domain.GatewayEvent) error
}

type Querier interface {
	GetPayment(ctx context.Context, id uuid.UUID, requesterID string, role domain.Role) (*domain.Payment, error)
	ListUserPayments(ctx context.Context, userID, requesterID string, role domain.Role, limit, offset int) ([]*domain.Payment, error)
	Stats(ctx context.Context, role domain.Role) (*domain.PaymentStats, error)
}

type Handlers struct {
	intents    IntentCreator
	escrows    EscrowReleaser
	refunds    Refunder
	reconciler EventHandler
	queries    Querier
	logger     *slog.Logger
}

func NewHandlers(
	intents IntentCreator,
	escrows EscrowReleaser,
	refunds Refunder,
	reconciler EventHandler,
	queries Querier,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		intents:    intents,
		escrows:    escrows,
		refunds:    refunds,
		reconciler: reconciler,
		queries:    queries,
		logger:     logger,
	}
}
