package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/servilink/escrow-engine/internal/application"
)

type TransferConfirmer interface {
	ConfirmTransfer(ctx context.Context, transferID string, succeeded bool) error
}

// ConfirmWorker polls the gateway for transfers whose outcome webhook never
// arrived. It is the safety net behind the reconciler: the escrow stays HELD
// with a recorded transfer id until one of the two confirms it.
type ConfirmWorker struct {
	store        application.Store
	gateway      application.GatewayClient
	confirmer    TransferConfirmer
	interval     time.Duration
	confirmAfter time.Duration
	batchSize    int
	logger       *slog.Logger
}

func NewConfirmWorker(
	store application.Store,
	gateway application.GatewayClient,
	confirmer TransferConfirmer,
	interval time.Duration,
	confirmAfter time.Duration,
	batchSize int,
	logger *slog.Logger,
) *ConfirmWorker {
	return &ConfirmWorker{
		store:        store,
		gateway:      gateway,
		confirmer:    confirmer,
		interval:     interval,
		confirmAfter: confirmAfter,
		batchSize:    batchSize,
		logger:       logger,
	}
}

func (w *ConfirmWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting transfer confirmation worker", "interval", w.interval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping transfer confirmation worker")
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single confirmation cycle.
func (w *ConfirmWorker) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.confirmAfter)

	pending, err := w.store.Escrows().FindAwaitingConfirmation(ctx, cutoff, w.batchSize)
	if err != nil {
		w.logger.Error("failed to list unconfirmed transfers", "error", err)
		return
	}

	for _, escrow := range pending {
		transferID := *escrow.GatewayTransferID

		resp, err := w.gateway.GetTransfer(ctx, transferID)
		if err != nil {
			w.logger.Error("failed to fetch transfer status", "transfer_id", transferID, "error", err)
			continue
		}

		switch resp.Status {
		case application.TransferStatusSucceeded:
			err = w.confirmer.ConfirmTransfer(ctx, transferID, true)
		case application.TransferStatusFailed:
			err = w.confirmer.ConfirmTransfer(ctx, transferID, false)
		default:
			continue
		}
		if err != nil {
			w.logger.Error("failed to apply transfer outcome", "transfer_id", transferID, "error", err)
		}
	}
}
