package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"checkout-service/internal/models"

	"github.com/google/uuid"
)

// ReservationHold is one line of a reservation batch.
type ReservationHold struct {
	ProductID string
	Quantity  int
}

// InsufficientHoldError is returned by ReserveAll when a line cannot be
// covered inside the reservation transaction. The whole batch is rolled back.
type InsufficientHoldError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientHoldError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested=%d, available=%d",
		e.ProductID, e.Requested, e.Available)
}

// sortedHolds returns the holds in ProductID order. Row locks are always
// taken in this order regardless of how the cart listed its lines, so two
// concurrent batches over the same products cannot deadlock on each other.
func sortedHolds(holds []ReservationHold) []ReservationHold {
	out := make([]ReservationHold, len(holds))
	copy(out, holds)
	sort.Slice(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

// ReserveAll creates PENDING reservations for every hold in one transaction.
// Each product row is locked with FOR UPDATE before availability is re-read,
// so two concurrent batches for the last unit cannot both pass the check.
// If any hold cannot be covered the transaction is rolled back and an
// InsufficientHoldError for that product is returned: all-or-nothing.
func (s *Store) ReserveAll(ctx context.Context, sessionID string, holds []ReservationHold, ttl time.Duration) ([]models.StockReservation, error) {
	if len(holds) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	expiresAt := time.Now().Add(ttl)
	created := make([]models.StockReservation, 0, len(holds))

	for _, hold := range sortedHolds(holds) {
		var stock int64
		err := tx.GetContext(ctx, &stock, `
			SELECT COALESCE(stock, max_stock) FROM products WHERE id = $1 FOR UPDATE`,
			hold.ProductID)
		if err != nil {
			return nil, fmt.Errorf("failed to lock product %s: %w", hold.ProductID, err)
		}

		var reserved int
		err = tx.GetContext(ctx, &reserved, `
			SELECT COALESCE(SUM(quantity), 0) FROM stock_reservations
			WHERE product_id = $1 AND status = $2 AND expires_at > NOW()`,
			hold.ProductID, models.ReservationStatusPending)
		if err != nil {
			return nil, fmt.Errorf("failed to read pending reservations: %w", err)
		}

		available := int(stock) - reserved
		if hold.Quantity > available {
			return nil, &InsufficientHoldError{
				ProductID: hold.ProductID,
				Requested: hold.Quantity,
				Available: available,
			}
		}

		reservation := models.StockReservation{
			ID:                uuid.New().String(),
			ProductID:         hold.ProductID,
			CheckoutSessionID: sessionID,
			Quantity:          hold.Quantity,
			Status:            models.ReservationStatusPending,
			ExpiresAt:         expiresAt,
		}

		err = tx.GetContext(ctx, &reservation.CreatedAt, `
			INSERT INTO stock_reservations (id, product_id, checkout_session_id, quantity, status, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING created_at`,
			reservation.ID, reservation.ProductID, reservation.CheckoutSessionID,
			reservation.Quantity, reservation.Status, reservation.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to insert reservation: %w", err)
		}

		created = append(created, reservation)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

// ExpireReservations flips lapsed PENDING reservations to EXPIRED and returns
// the number of rows released. An empty productID sweeps every product.
// Safe to run concurrently with ReserveAll and with itself.
func (s *Store) ExpireReservations(ctx context.Context, productID string) (int64, error) {
	query := `
		UPDATE stock_reservations SET status = $1
		WHERE status = $2 AND expires_at <= NOW()`
	args := []interface{}{models.ReservationStatusExpired, models.ReservationStatusPending}

	if productID != "" {
		query += " AND product_id = $3"
		args = append(args, productID)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to expire reservations: %w", err)
	}
	return res.RowsAffected()
}

// ConfirmReservations flips the session's live PENDING reservations to
// CONFIRMED. The second count reports holds that had already lapsed before
// settlement arrived; the caller must surface those to reconciliation.
func (s *Store) ConfirmReservations(ctx context.Context, sessionID string) (confirmed, lapsed int64, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_reservations SET status = $1
		WHERE checkout_session_id = $2 AND status = $3 AND expires_at > NOW()`,
		models.ReservationStatusConfirmed, sessionID, models.ReservationStatusPending)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to confirm reservations: %w", err)
	}
	confirmed, err = res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}

	err = s.db.GetContext(ctx, &lapsed, `
		SELECT COUNT(*) FROM stock_reservations
		WHERE checkout_session_id = $1
		AND (status = $2 OR (status = $3 AND expires_at <= NOW()))`,
		sessionID, models.ReservationStatusExpired, models.ReservationStatusPending)
	if err != nil {
		return confirmed, 0, fmt.Errorf("failed to count lapsed reservations: %w", err)
	}
	return confirmed, lapsed, nil
}

// CancelReservations flips the session's PENDING reservations to CANCELLED.
// Used when a checkout attempt fails before a payment session exists.
func (s *Store) CancelReservations(ctx context.Context, sessionID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_reservations SET status = $1
		WHERE checkout_session_id = $2 AND status = $3`,
		models.ReservationStatusCancelled, sessionID, models.ReservationStatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reservations: %w", err)
	}
	return res.RowsAffected()
}

// GetReservationsBySession retrieves all reservations for a payment session.
func (s *Store) GetReservationsBySession(ctx context.Context, sessionID string) ([]models.StockReservation, error) {
	var reservations []models.StockReservation
	err := s.db.SelectContext(ctx, &reservations, `
		SELECT * FROM stock_reservations
		WHERE checkout_session_id = $1 ORDER BY created_at`, sessionID)
	return reservations, err
}
