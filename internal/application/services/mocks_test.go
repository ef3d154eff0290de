package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/servilink/escrow-engine/internal/application"
	"github.com/servilink/escrow-engine/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory application.Store. WithTx serializes on a mutex,
// which is enough to exercise the services' locking discipline in tests.
type memStore struct {
	mu   sync.Mutex
	data *memData
}

type memData struct {
	payments map[uuid.UUID]*domain.Payment
	escrows  map[uuid.UUID]*domain.Escrow
	events   map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		data: &memData{
			payments: make(map[uuid.UUID]*domain.Payment),
			escrows:  make(map[uuid.UUID]*domain.Escrow),
			events:   make(map[string]bool),
		},
	}
}

func (s *memStore) Payments() application.PaymentRepository { return &memPayments{s} }
func (s *memStore) Escrows() application.EscrowRepository   { return &memEscrows{s} }
func (s *memStore) Events() application.EventStore          { return &memEvents{s} }

func (s *memStore) WithTx(_ context.Context, fn func(application.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&txStore{data: s.data})
}

// SeedPayment stores a copy of p.
func (s *memStore) SeedPayment(p *domain.Payment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.data.payments[p.ID] = &cp
}

func (s *memStore) SeedEscrow(e *domain.Escrow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.data.escrows[e.ID] = &cp
}

func (s *memStore) Payment(id uuid.UUID) *domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.data.payments[id]; ok {
		cp := *p
		return &cp
	}
	return nil
}

func (s *memStore) Escrow(id uuid.UUID) *domain.Escrow {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.data.escrows[id]; ok {
		cp := *e
		return &cp
	}
	return nil
}

// txStore operates on the shared data without re-locking; the enclosing
// WithTx holds the mutex.
type txStore struct {
	data *memData
}

func (s *txStore) Payments() application.PaymentRepository { return &memPayments{s} }
func (s *txStore) Escrows() application.EscrowRepository   { return &memEscrows{s} }
func (s *txStore) Events() application.EventStore          { return &memEvents{s} }

func (s *txStore) WithTx(_ context.Context, fn func(application.Store) error) error {
	return fn(s)
}

type dataHolder interface {
	hold() (*memData, func())
}

func (s *memStore) hold() (*memData, func()) {
	s.mu.Lock()
	return s.data, s.mu.Unlock
}

func (s *txStore) hold() (*memData, func()) {
	return s.data, func() {}
}

type memPayments struct{ h dataHolder }

func (r *memPayments) Create(_ context.Context, p *domain.Payment) error {
	data, done := r.h.hold()
	defer done()
	for _, existing := range data.payments {
		if existing.BookingID == p.BookingID {
			return domain.NewConflictError("payment already exists for booking " + p.BookingID)
		}
	}
	cp := *p
	data.payments[p.ID] = &cp
	return nil
}

func (r *memPayments) Update(_ context.Context, p *domain.Payment) error {
	data, done := r.h.hold()
	defer done()
	if _, ok := data.payments[p.ID]; !ok {
		return domain.NewNotFoundError("payment", p.ID.String())
	}
	cp := *p
	data.payments[p.ID] = &cp
	return nil
}

func (r *memPayments) FindByID(_ context.Context, id uuid.UUID) (*domain.Payment, error) {
	data, done := r.h.hold()
	defer done()
	p, ok := data.payments[id]
	if !ok {
		return nil, domain.NewNotFoundError("payment", id.String())
	}
	cp := *p
	return &cp, nil
}

func (r *memPayments) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	return r.FindByID(ctx, id)
}

func (r *memPayments) FindByBookingID(_ context.Context, bookingID string) (*domain.Payment, error) {
	data, done := r.h.hold()
	defer done()
	for _, p := range data.payments {
		if p.BookingID == bookingID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("payment", bookingID)
}

func (r *memPayments) FindByIntentIDForUpdate(_ context.Context, intentID string) (*domain.Payment, error) {
	data, done := r.h.hold()
	defer done()
	for _, p := range data.payments {
		if p.GatewayIntentID == intentID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("payment", intentID)
}

func (r *memPayments) FindByUserID(_ context.Context, userID string, limit, offset int) ([]*domain.Payment, error) {
	data, done := r.h.hold()
	defer done()
	var out []*domain.Payment
	for _, p := range data.payments {
		if p.ClientID == userID || p.ProviderID == userID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memPayments) Stats(_ context.Context) (*domain.PaymentStats, error) {
	data, done := r.h.hold()
	defer done()
	stats := &domain.PaymentStats{}
	for _, p := range data.payments {
		stats.TotalPayments++
		switch p.Status {
		case domain.PaymentCompleted, domain.PaymentRefunded, domain.PaymentDisputed:
			stats.CompletedPayments++
			stats.CompletedGrossCents += p.GrossCents
			stats.PlatformFeeCents += p.PlatformFeeCents
		case domain.PaymentFailed:
			stats.FailedPayments++
		}
	}
	for _, e := range data.escrows {
		if e.Status == domain.EscrowHeld {
			stats.PendingEscrowCents += e.AmountCents
		}
	}
	if settled := stats.CompletedPayments + stats.FailedPayments; settled > 0 {
		stats.SuccessRate = float64(stats.CompletedPayments) / float64(settled)
	}
	return stats, nil
}

type memEscrows struct{ h dataHolder }

func (r *memEscrows) Create(_ context.Context, e *domain.Escrow) error {
	data, done := r.h.hold()
	defer done()
	for _, existing := range data.escrows {
		if existing.PaymentID == e.PaymentID {
			return domain.NewConflictError("escrow already exists for payment " + e.PaymentID.String())
		}
	}
	cp := *e
	data.escrows[e.ID] = &cp
	return nil
}

func (r *memEscrows) Update(_ context.Context, e *domain.Escrow) error {
	data, done := r.h.hold()
	defer done()
	if _, ok := data.escrows[e.ID]; !ok {
		return domain.NewNotFoundError("escrow", e.ID.String())
	}
	cp := *e
	data.escrows[e.ID] = &cp
	return nil
}

func (r *memEscrows) FindByID(_ context.Context, id uuid.UUID) (*domain.Escrow, error) {
	data, done := r.h.hold()
	defer done()
	e, ok := data.escrows[id]
	if !ok {
		return nil, domain.NewNotFoundError("escrow", id.String())
	}
	cp := *e
	return &cp, nil
}

func (r *memEscrows) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*domain.Escrow, error) {
	return r.FindByID(ctx, id)
}

func (r *memEscrows) FindByPaymentIDForUpdate(_ context.Context, paymentID uuid.UUID) (*domain.Escrow, error) {
	data, done := r.h.hold()
	defer done()
	for _, e := range data.escrows {
		if e.PaymentID == paymentID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("escrow", paymentID.String())
}

func (r *memEscrows) FindByTransferIDForUpdate(_ context.Context, transferID string) (*domain.Escrow, error) {
	data, done := r.h.hold()
	defer done()
	for _, e := range data.escrows {
		if e.GatewayTransferID != nil && *e.GatewayTransferID == transferID {
			cp := *e
			return &cp, nil
		}
	}
	return nil, domain.NewNotFoundError("escrow", transferID)
}

func (r *memEscrows) FindDueForRelease(_ context.Context, now time.Time, limit int) ([]*domain.Escrow, error) {
	data, done := r.h.hold()
	defer done()
	var out []*domain.Escrow
	for _, e := range data.escrows {
		if e.Status == domain.EscrowHeld && e.IsDue(now) && e.GatewayTransferID == nil {
			cp := *e
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memEscrows) FindAwaitingConfirmation(_ context.Context, cutoff time.Time, limit int) ([]*domain.Escrow, error) {
	data, done := r.h.hold()
	defer done()
	var out []*domain.Escrow
	for _, e := range data.escrows {
		if e.Status == domain.EscrowHeld && e.GatewayTransferID != nil && e.UpdatedAt.Before(cutoff) {
			cp := *e
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type memEvents struct{ h dataHolder }

func (r *memEvents) MarkConsumed(_ context.Context, evt *domain.GatewayEvent) (bool, error) {
	data, done := r.h.hold()
	defer done()
	if data.events[evt.ID] {
		return false, nil
	}
	data.events[evt.ID] = true
	return true, nil
}

// mockGateway is a hand-rolled gateway client with overridable behavior and
// call counters.
type mockGateway struct {
	mu sync.Mutex

	authorizeFn   func(req application.AuthorizeRequest, key string) (*application.AuthorizeResponse, error)
	transferFn    func(req application.TransferRequest, key string) (*application.TransferResponse, error)
	refundFn      func(req application.RefundRequest, key string) (*application.RefundResponse, error)
	getTransferFn func(transferID string) (*application.TransferResponse, error)

	authorizeCalls int
	transferCalls  int
	refundCalls    int

	authorizeKeys []string
	transferKeys  []string
	refundKeys    []string
}

func newMockGateway() *mockGateway {
	return &mockGateway{}
}

func (m *mockGateway) Authorize(_ context.Context, req application.AuthorizeRequest, key string) (*application.AuthorizeResponse, error) {
	m.mu.Lock()
	m.authorizeCalls++
	m.authorizeKeys = append(m.authorizeKeys, key)
	fn := m.authorizeFn
	m.mu.Unlock()

	if fn != nil {
		return fn(req, key)
	}
	return &application.AuthorizeResponse{
		IntentID:     "pi_" + uuid.New().String(),
		ClientSecret: "secret_test",
		Status:       "requires_confirmation",
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func (m *mockGateway) Transfer(_ context.Context, req application.TransferRequest, key string) (*application.TransferResponse, error) {
	m.mu.Lock()
	m.transferCalls++
	m.transferKeys = append(m.transferKeys, key)
	fn := m.transferFn
	m.mu.Unlock()

	if fn != nil {
		return fn(req, key)
	}
	return &application.TransferResponse{
		TransferID: "tr_" + uuid.New().String(),
		Status:     application.TransferStatusPending,
	}, nil
}

func (m *mockGateway) Refund(_ context.Context, req application.RefundRequest, key string) (*application.RefundResponse, error) {
	m.mu.Lock()
	m.refundCalls++
	m.refundKeys = append(m.refundKeys, key)
	fn := m.refundFn
	m.mu.Unlock()

	if fn != nil {
		return fn(req, key)
	}
	return &application.RefundResponse{
		RefundID: "re_" + uuid.New().String(),
		Status:   "succeeded",
	}, nil
}

func (m *mockGateway) GetTransfer(_ context.Context, transferID string) (*application.TransferResponse, error) {
	m.mu.Lock()
	fn := m.getTransferFn
	m.mu.Unlock()

	if fn != nil {
		return fn(transferID)
	}
	return &application.TransferResponse{
		TransferID: transferID,
		Status:     application.TransferStatusPending,
	}, nil
}

// mockBookings is an in-memory booking collaborator that records status
// updates.
type mockBookings struct {
	mu       sync.Mutex
	bookings map[string]*domain.Booking
	updates  []bookingUpdate
}

type bookingUpdate struct {
	BookingID string
	Status    domain.BookingStatus
}

func newMockBookings() *mockBookings {
	return &mockBookings{bookings: make(map[string]*domain.Booking)}
}

func (m *mockBookings) Seed(b *domain.Booking) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.bookings[b.ID] = &cp
}

func (m *mockBookings) GetBooking(_ context.Context, id string) (*domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, domain.NewNotFoundError("booking", id)
	}
	cp := *b
	return &cp, nil
}

func (m *mockBookings) UpdateBookingStatus(_ context.Context, id string, status domain.BookingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates = append(m.updates, bookingUpdate{BookingID: id, Status: status})
	if b, ok := m.bookings[id]; ok {
		b.Status = status
	}
	return nil
}

func (m *mockBookings) Updates() []bookingUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bookingUpdate(nil), m.updates...)
}

// recordingNotifier captures notifications instead of publishing them.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

type sentNotification struct {
	UserID    string
	EventType string
	Payload   map[string]any
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{}
}

func (n *recordingNotifier) Notify(_ context.Context, userID, eventType string, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{UserID: userID, EventType: eventType, Payload: payload})
	return nil
}

func (n *recordingNotifier) Sent() []sentNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentNotification(nil), n.sent...)
}
