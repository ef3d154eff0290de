package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/application/services"
	"github.com/servilink/escrow-engine/internal/domain"
)

// schedulerID is the synthetic requester the sweep releases escrows as.
const schedulerID = "release-scheduler"

type Releaser interface {
	Release(ctx context.Context, cmd services.ReleaseCommand) (*domain.Escrow, error)
}

// ReleaseWorker sweeps held escrows past their release date on a cron
// schedule and pushes each through the same release path the API uses.
type ReleaseWorker struct {
	store     application.Store
	releaser  Releaser
	schedule  string
	batchSize int
	cron      *cron.Cron
	logger    *slog.Logger
}

func NewReleaseWorker(
	store application.Store,
	releaser Releaser,
	schedule string,
	batchSize int,
	logger *slog.Logger,
) *ReleaseWorker {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &ReleaseWorker{
		store:     store,
		releaser:  releaser,
		schedule:  schedule,
		batchSize: batchSize,
		cron:      c,
		logger:    logger,
	}
}

func (w *ReleaseWorker) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.schedule, func() { w.RunOnce(ctx) }); err != nil {
		return err
	}

	w.logger.Info("starting release sweep", "schedule", w.schedule, "batch_size", w.batchSize)
	w.cron.Start()

	go func() {
		<-ctx.Done()
		w.logger.Info("stopping release sweep")
		w.cron.Stop()
	}()

	return nil
}

// RunOnce executes a single sweep cycle.
func (w *ReleaseWorker) RunOnce(ctx context.Context) {
	due, err := w.store.Escrows().FindDueForRelease(ctx, time.Now().UTC(), w.batchSize)
	if err != nil {
		w.logger.Error("failed to list due escrows", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	w.logger.Info("releasing due escrows", "count", len(due))

	for _, escrow := range due {
		_, err := w.releaser.Release(ctx, services.ReleaseCommand{
			EscrowID:      escrow.ID,
			RequesterID:   schedulerID,
			RequesterRole: domain.RoleAdmin,
		})
		if err != nil {
			// A conflict here means something else released it first.
			if domain.IsErrorCode(err, domain.ErrCodeInvalidState) || domain.IsErrorCode(err, domain.ErrCodeConflict) {
				continue
			}
			w.logger.Error("scheduled release failed", "escrow_id", escrow.ID, "error", err)
		}
	}
}
