package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/domain"
)

const statsCacheKey = "escrow-engine:payments:stats"

// QueryService serves the read side: single payment lookups, per-user
// listings and the aggregate stats snapshot.
type QueryService struct {
	store    application.Store
	cache    application.Cache
	statsTTL time.Duration
	logger   *slog.Logger
}

func NewQueryService(store application.Store, cache application.Cache, statsTTL time.Duration, logger *slog.Logger) *QueryService {
	if statsTTL <= 0 {
		statsTTL = 30 * time.Second
	}
	return &QueryService{
		store:    store,
		cache:    cache,
		statsTTL: statsTTL,
		logger:   logger,
	}
}

// GetPayment returns the payment only if the requester is a party to it or an
// admin.
func (s *QueryService) GetPayment(ctx context.Context, id uuid.UUID, requesterID string, role domain.Role) (*domain.Payment, error) {
	payment, err := s.store.Payments().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !payment.AccessibleBy(requesterID, role) {
		return nil, domain.NewForbiddenError("view this payment")
	}
	return payment, nil
}

// ListUserPayments returns payments where the user is client or provider,
// newest first. Only the user themselves or an admin may list.
func (s *QueryService) ListUserPayments(ctx context.Context, userID, requesterID string, role domain.Role, limit, offset int) ([]*domain.Payment, error) {
	if role != domain.RoleAdmin && requesterID != userID {
		return nil, domain.NewForbiddenError("list another user's payments")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.Payments().FindByUserID(ctx, userID, limit, offset)
}

// Stats returns the aggregate snapshot, cache-aside. Cache failures degrade to
// a direct read.
func (s *QueryService) Stats(ctx context.Context, role domain.Role) (*domain.PaymentStats, error) {
	if role != domain.RoleAdmin {
		return nil, domain.NewForbiddenError("view payment stats")
	}

	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, statsCacheKey)
		if err != nil {
			s.logger.Warn("stats cache read failed", "error", err)
		} else if ok {
			var stats domain.PaymentStats
			if err := json.Unmarshal(raw, &stats); err == nil {
				return &stats, nil
			}
			s.logger.Warn("stats cache entry malformed, recomputing")
		}
	}

	stats, err := s.store.Payments().Stats(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		raw, err := json.Marshal(stats)
		if err == nil {
			if err := s.cache.Set(ctx, statsCacheKey, raw, s.statsTTL); err != nil {
				s.logger.Warn("stats cache write failed", "error", err)
			}
		}
	}

	return stats, nil
}
