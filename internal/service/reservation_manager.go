package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/store"
	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// ReservationStore is the mutable side of the stock ledger. ReserveAll must
// perform the availability re-check and the PENDING inserts in one atomic
// unit per batch (row locks or equivalent), all-or-nothing.
type ReservationStore interface {
	GetProductsByIDs(ctx context.Context, ids []string) (map[string]*models.Product, error)
	ReserveAll(ctx context.Context, sessionID string, holds []store.ReservationHold, ttl time.Duration) ([]models.StockReservation, error)
	ExpireReservations(ctx context.Context, productID string) (int64, error)
	ConfirmReservations(ctx context.Context, sessionID string) (confirmed, lapsed int64, err error)
	CancelReservations(ctx context.Context, sessionID string) (int64, error)
	GetReservationsBySession(ctx context.Context, sessionID string) ([]models.StockReservation, error)
}

// ReservationManager creates, expires, confirms and cancels time-bounded
// holds against the stock ledger on behalf of checkout attempts.
type ReservationManager struct {
	store  ReservationStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewReservationManager creates a new reservation manager
func NewReservationManager(store ReservationStore, ttl time.Duration) *ReservationManager {
	return &ReservationManager{
		store:  store,
		ttl:    ttl,
		logger: util.GetLogger(),
	}
}

// Reserve creates PENDING holds for every cart line whose product has
// managed stock. Products without tracked stock are skipped: no reservation
// row, implicitly always available. The batch is all-or-nothing; if any line
// cannot be covered, zero rows are created and the short line is reported.
func (m *ReservationManager) Reserve(ctx context.Context, sessionID string, lines []models.CartLine) ([]models.StockReservation, error) {
	ctx, span := util.StartSpan(ctx, "ReservationManager.Reserve")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReserveLatency.Observe(time.Since(start).Seconds())
	}()

	ids := make([]string, 0, len(lines))
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			ids = append(ids, line.ProductID)
		}
	}

	products, err := m.store.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	quantities := make(map[string]int, len(lines))
	for _, line := range lines {
		quantities[line.ProductID] += line.Quantity
	}

	holds := make([]store.ReservationHold, 0, len(ids))
	for _, id := range ids {
		product, ok := products[id]
		if !ok {
			return nil, &ProductNotFoundError{ProductIDs: []string{id}}
		}
		if !product.ManagedStock() {
			continue
		}
		holds = append(holds, store.ReservationHold{ProductID: id, Quantity: quantities[id]})
	}

	if len(holds) == 0 {
		return nil, nil
	}

	created, err := m.store.ReserveAll(ctx, sessionID, holds, m.ttl)
	if err != nil {
		var short *store.InsufficientHoldError
		if errors.As(err, &short) {
			util.ReservationBatchFailed.WithLabelValues("insufficient_stock").Inc()
			title := short.ProductID
			if p, ok := products[short.ProductID]; ok {
				title = p.Title
			}
			return nil, &InsufficientStockError{Lines: []InsufficientLine{{
				ProductID: short.ProductID,
				Requested: short.Requested,
				Available: short.Available,
				Title:     title,
			}}}
		}
		util.ReservationBatchFailed.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to reserve stock: %w", err)
	}

	util.ReservationsCreatedTotal.Add(float64(len(created)))
	m.logger.Info("Stock reserved",
		zap.String("session_id", sessionID),
		zap.Int("reservations", len(created)))
	return created, nil
}

// Expire reclaims lapsed PENDING holds, freeing their units. An empty
// productID sweeps globally. Idempotent: lapsed holds already flipped, and
// confirmed holds, are untouched.
func (m *ReservationManager) Expire(ctx context.Context, productID string) (int64, error) {
	released, err := m.store.ExpireReservations(ctx, productID)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		util.ReservationsExpiredTotal.Add(float64(released))
		m.logger.Info("Expired reservations released",
			zap.String("product_id", productID),
			zap.Int64("released", released))
	}
	return released, nil
}

// Confirm flips the session's PENDING holds to CONFIRMED when the external
// payment settles. If any hold had already lapsed by settlement time, the
// count of confirmed rows is still returned together with a
// ReservationLapsedError: a paid order without held stock must reach the
// reconciliation process, never be silently ignored.
func (m *ReservationManager) Confirm(ctx context.Context, sessionID string) (int64, error) {
	ctx, span := util.StartSpan(ctx, "ReservationManager.Confirm")
	defer span.End()

	confirmed, lapsed, err := m.store.ConfirmReservations(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm reservations: %w", err)
	}

	util.ReservationsConfirmedTotal.Add(float64(confirmed))
	m.logger.Info("Reservations confirmed",
		zap.String("session_id", sessionID),
		zap.Int64("confirmed", confirmed),
		zap.Int64("lapsed", lapsed))

	if lapsed > 0 {
		util.ReservationConflictsTotal.Inc()
		return confirmed, &ReservationLapsedError{SessionID: sessionID, Lapsed: lapsed}
	}
	return confirmed, nil
}

// Cancel flips the session's PENDING holds to CANCELLED. Used when the
// payment session lapses unpaid or the attempt fails before one exists.
func (m *ReservationManager) Cancel(ctx context.Context, sessionID string) (int64, error) {
	cancelled, err := m.store.CancelReservations(ctx, sessionID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reservations: %w", err)
	}
	if cancelled > 0 {
		m.logger.Info("Reservations cancelled",
			zap.String("session_id", sessionID),
			zap.Int64("cancelled", cancelled))
	}
	return cancelled, nil
}

// ReservationsForSession retrieves the persisted holds for a payment session.
func (m *ReservationManager) ReservationsForSession(ctx context.Context, sessionID string) ([]models.StockReservation, error) {
	return m.store.GetReservationsBySession(ctx, sessionID)
}
