package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"

	"github.com/google/uuid"
)

// memStore is a mutex-guarded in-memory stand-in for the SQL store. Its
// ReserveAll is atomic and all-or-nothing, matching the transactional
// semantics of the real implementation.
type memStore struct {
	mu           sync.Mutex
	products     map[string]*models.Product
	sellers      map[string]*models.Seller
	reservations []models.StockReservation
	reserveErr   error
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]*models.Product),
		sellers:  make(map[string]*models.Seller),
	}
}

func (m *memStore) addProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	m.products[p.ID] = &cp
}

func (m *memStore) addSeller(s models.Seller) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	m.sellers[s.ID] = &cp
}

func (m *memStore) GetProductByID(ctx context.Context, id string) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.products[id]
	if !ok {
		return nil, &ProductNotFoundError{ProductIDs: []string{id}}
	}
	cp := *p
	return &cp, nil
}

func (m *memStore) GetProductsByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*models.Product)
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			cp := *p
			result[id] = &cp
		}
	}
	return result, nil
}

func (m *memStore) GetSellersByIDs(ctx context.Context, ids []string) (map[string]*models.Seller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make(map[string]*models.Seller)
	for _, id := range ids {
		if s, ok := m.sellers[id]; ok {
			cp := *s
			result[id] = &cp
		}
	}
	return result, nil
}

func (m *memStore) pendingLocked(productID string, now time.Time) int {
	reserved := 0
	for _, r := range m.reservations {
		if r.ProductID == productID && r.Status == models.ReservationStatusPending && r.ExpiresAt.After(now) {
			reserved += r.Quantity
		}
	}
	return reserved
}

func (m *memStore) PendingReservedUnits(ctx context.Context, productID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingLocked(productID, time.Now()), nil
}

func (m *memStore) ReserveAll(ctx context.Context, sessionID string, holds []store.ReservationHold, ttl time.Duration) ([]models.StockReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reserveErr != nil {
		return nil, m.reserveErr
	}

	now := time.Now()
	for _, hold := range holds {
		product := m.products[hold.ProductID]
		available := int(product.StockCeiling()) - m.pendingLocked(hold.ProductID, now)
		if hold.Quantity > available {
			return nil, &store.InsufficientHoldError{
				ProductID: hold.ProductID,
				Requested: hold.Quantity,
				Available: available,
			}
		}
	}

	created := make([]models.StockReservation, 0, len(holds))
	for _, hold := range holds {
		r := models.StockReservation{
			ID:                uuid.New().String(),
			ProductID:         hold.ProductID,
			CheckoutSessionID: sessionID,
			Quantity:          hold.Quantity,
			Status:            models.ReservationStatusPending,
			ExpiresAt:         now.Add(ttl),
			CreatedAt:         now,
		}
		m.reservations = append(m.reservations, r)
		created = append(created, r)
	}
	return created, nil
}

func (m *memStore) ExpireReservations(ctx context.Context, productID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var released int64
	for i := range m.reservations {
		r := &m.reservations[i]
		if productID != "" && r.ProductID != productID {
			continue
		}
		if r.Status == models.ReservationStatusPending && !r.ExpiresAt.After(now) {
			r.Status = models.ReservationStatusExpired
			released++
		}
	}
	return released, nil
}

func (m *memStore) ConfirmReservations(ctx context.Context, sessionID string) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var confirmed, lapsed int64
	for i := range m.reservations {
		r := &m.reservations[i]
		if r.CheckoutSessionID != sessionID {
			continue
		}
		switch {
		case r.Status == models.ReservationStatusPending && r.ExpiresAt.After(now):
			r.Status = models.ReservationStatusConfirmed
			confirmed++
		case r.Status == models.ReservationStatusExpired,
			r.Status == models.ReservationStatusPending && !r.ExpiresAt.After(now):
			lapsed++
		}
	}
	return confirmed, lapsed, nil
}

func (m *memStore) CancelReservations(ctx context.Context, sessionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cancelled int64
	for i := range m.reservations {
		r := &m.reservations[i]
		if r.CheckoutSessionID == sessionID && r.Status == models.ReservationStatusPending {
			r.Status = models.ReservationStatusCancelled
			cancelled++
		}
	}
	return cancelled, nil
}

func (m *memStore) GetReservationsBySession(ctx context.Context, sessionID string) ([]models.StockReservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.StockReservation
	for _, r := range m.reservations {
		if r.CheckoutSessionID == sessionID {
			result = append(result, r)
		}
	}
	return result, nil
}

func (m *memStore) reservationCount(sessionID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.reservations {
		if r.CheckoutSessionID == sessionID {
			n++
		}
	}
	return n
}

// fixedOracle answers every route with the same distance.
type fixedOracle struct {
	km float64
}

func (o *fixedOracle) RouteDistance(ctx context.Context, origin, dest models.Coordinates) (float64, error) {
	return o.km, nil
}

// stubProvider returns a canned payment session, or an error.
type stubProvider struct {
	session *PaymentSession
	err     error
	params  []PaymentSessionParams
}

func (p *stubProvider) CreateSession(ctx context.Context, params PaymentSessionParams) (*PaymentSession, error) {
	p.params = append(p.params, params)
	if p.err != nil {
		return nil, p.err
	}
	return p.session, nil
}

// stubAvailability returns a canned advisory answer, or an error.
type stubAvailability struct {
	result *DeliveryAvailabilityResult
	err    error
}

func (a *stubAvailability) Check(ctx context.Context, coords models.Coordinates, date, timeSlot string) (*DeliveryAvailabilityResult, error) {
	if a.err != nil {
		return nil, a.err
	}
	return a.result, nil
}

// recordingPublisher captures published events.
type recordingPublisher struct {
	mu        sync.Mutex
	ready     []*models.CheckoutReadyEvent
	rejected  []*models.CheckoutRejectedEvent
	created   []*models.ReservationsCreatedEvent
	confirmed []*models.ReservationsConfirmedEvent
	conflicts []*models.ReservationConflictEvent
}

func (p *recordingPublisher) PublishCheckoutReady(ctx context.Context, e *models.CheckoutReadyEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ready = append(p.ready, e)
	return nil
}

func (p *recordingPublisher) PublishCheckoutRejected(ctx context.Context, e *models.CheckoutRejectedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rejected = append(p.rejected, e)
	return nil
}

func (p *recordingPublisher) PublishReservationsCreated(ctx context.Context, e *models.ReservationsCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *recordingPublisher) PublishReservationsConfirmed(ctx context.Context, e *models.ReservationsConfirmedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.confirmed = append(p.confirmed, e)
	return nil
}

func (p *recordingPublisher) PublishReservationConflict(ctx context.Context, e *models.ReservationConflictEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conflicts = append(p.conflicts, e)
	return nil
}

func managedProduct(id, title, sellerID string, stock int64, support ...string) models.Product {
	if len(support) == 0 {
		support = []string{models.DeliverySupportPickup, models.DeliverySupportDelivery}
	}
	return models.Product{
		ID:              id,
		Title:           title,
		SellerID:        sellerID,
		PriceCents:      500,
		Stock:           int64ToNull(stock),
		DeliverySupport: support,
	}
}

func int64ToNull(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: true}
}
