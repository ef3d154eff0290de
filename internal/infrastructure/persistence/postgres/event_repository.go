package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/servilink/escrow-engine/internal/domain"
)

// EventRepository records consumed webhook deliveries. The unique constraint
// on event_id is what makes webhook processing idempotent: the insert and the
// state transition commit in the same transaction, so a redelivered event
// either sees its row already present or replays from scratch.
type EventRepository struct {
	q Executor
}

func NewEventRepository(q Executor) *EventRepository {
	return &EventRepository{q: q}
}

func (r *EventRepository) MarkConsumed(ctx context.Context, event *domain.GatewayEvent) (bool, error) {
	query := `
		INSERT INTO gateway_events (event_id, event_type, object_id, payload, received_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`

	result, err := r.q.Exec(ctx, query,
		event.ID,
		event.Type,
		event.ObjectID,
		[]byte(event.Raw),
		time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to record gateway event: %w", err)
	}

	return result.RowsAffected() == 1, nil
}
