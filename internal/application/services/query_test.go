package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/servilink/escrow-engine/internal/application/services"
	"github.com/servilink/escrow-engine/internal/domain"
)

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	gets    int
	sets    int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string][]byte)}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	raw, ok := c.entries[key]
	return raw, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[key] = value
	return nil
}

func seedQueryPayment(t *testing.T, store *memStore, status domain.PaymentStatus) *domain.Payment {
	fees, err := domain.DefaultFeePolicy().ComputeFees(10000)
	require.NoError(t, err)

	payment, err := domain.NewPayment("booking-"+string(status), "client-1", "provider-1", fees, "USD", "pi_"+string(status))
	require.NoError(t, err)

	switch status {
	case domain.PaymentCompleted:
		require.NoError(t, payment.Complete(time.Now().UTC()))
	case domain.PaymentFailed:
		require.NoError(t, payment.Fail("declined"))
	}

	store.SeedPayment(payment)
	return payment
}

func TestGetPayment_AccessControl(t *testing.T) {
	store := newMemStore()
	svc := services.NewQueryService(store, nil, 0, testLogger())
	payment := seedQueryPayment(t, store, domain.PaymentCompleted)

	got, err := svc.GetPayment(context.Background(), payment.ID, "client-1", domain.RoleClient)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, got.ID)

	_, err = svc.GetPayment(context.Background(), payment.ID, "provider-1", domain.RoleProvider)
	require.NoError(t, err)

	_, err = svc.GetPayment(context.Background(), payment.ID, "stranger", domain.RoleClient)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeForbidden))

	_, err = svc.GetPayment(context.Background(), payment.ID, "stranger", domain.RoleAdmin)
	require.NoError(t, err)
}

func TestListUserPayments_OwnerOrAdminOnly(t *testing.T) {
	store := newMemStore()
	svc := services.NewQueryService(store, nil, 0, testLogger())
	seedQueryPayment(t, store, domain.PaymentCompleted)

	payments, err := svc.ListUserPayments(context.Background(), "client-1", "client-1", domain.RoleClient, 0, 0)
	require.NoError(t, err)
	assert.Len(t, payments, 1)

	_, err = svc.ListUserPayments(context.Background(), "client-1", "someone-else", domain.RoleClient, 0, 0)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeForbidden))

	payments, err = svc.ListUserPayments(context.Background(), "client-1", "admin-1", domain.RoleAdmin, 0, 0)
	require.NoError(t, err)
	assert.Len(t, payments, 1)
}

func TestStats_AdminOnly(t *testing.T) {
	store := newMemStore()
	svc := services.NewQueryService(store, nil, 0, testLogger())

	_, err := svc.Stats(context.Background(), domain.RoleClient)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeForbidden))
}

func TestStats_Computation(t *testing.T) {
	store := newMemStore()
	svc := services.NewQueryService(store, nil, 0, testLogger())

	seedQueryPayment(t, store, domain.PaymentCompleted)
	seedQueryPayment(t, store, domain.PaymentFailed)
	seedQueryPayment(t, store, domain.PaymentPending)

	stats, err := svc.Stats(context.Background(), domain.RoleAdmin)
	require.NoError(t, err)

	assert.Equal(t, int64(3), stats.TotalPayments)
	assert.Equal(t, int64(1), stats.CompletedPayments)
	assert.Equal(t, int64(1), stats.FailedPayments)
	assert.Equal(t, int64(10000), stats.CompletedGrossCents)
	assert.Equal(t, int64(1500), stats.PlatformFeeCents)
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
}

func TestStats_CacheAside(t *testing.T) {
	store := newMemStore()
	cache := newFakeCache()
	svc := services.NewQueryService(store, cache, time.Minute, testLogger())

	seedQueryPayment(t, store, domain.PaymentCompleted)

	first, err := svc.Stats(context.Background(), domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)

	// A payment completed after the snapshot is invisible until the TTL
	// expires.
	seedQueryPayment(t, store, domain.PaymentFailed)

	second, err := svc.Stats(context.Background(), domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, first.TotalPayments, second.TotalPayments)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 2, cache.gets)
}
