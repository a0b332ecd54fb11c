package service

import (
	"context"
	"errors"
	"time"

	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConflictPublisher feeds the external reconciliation process.
type ConflictPublisher interface {
	PublishReservationsConfirmed(ctx context.Context, event *models.ReservationsConfirmedEvent) error
	PublishReservationConflict(ctx context.Context, event *models.ReservationConflictEvent) error
}

// SettlementHandler reacts to the payment provider's asynchronous outcome:
// a settled payment confirms the session's holds, a lapsed session releases
// them. Reservation status transitions are idempotent, so redelivered events
// are no-ops.
type SettlementHandler struct {
	reservations *ReservationManager
	publisher    ConflictPublisher
	logger       *zap.Logger
}

// NewSettlementHandler creates a new settlement handler
func NewSettlementHandler(reservations *ReservationManager, publisher ConflictPublisher) *SettlementHandler {
	return &SettlementHandler{
		reservations: reservations,
		publisher:    publisher,
		logger:       util.GetLogger(),
	}
}

// HandlePaymentSettled confirms the session's holds. When the holds had
// already lapsed before settlement, the conflict goes to the reconciliation
// feed instead of failing the event.
func (h *SettlementHandler) HandlePaymentSettled(ctx context.Context, event *models.PaymentSettledEvent) error {
	ctx, span := util.StartSpan(ctx, "SettlementHandler.HandlePaymentSettled")
	defer span.End()

	h.logger.Info("Handling payment settlement",
		zap.String("session_id", event.SessionID),
		zap.String("tx_id", event.TxID))

	confirmed, err := h.reservations.Confirm(ctx, event.SessionID)

	var lapsed *ReservationLapsedError
	if errors.As(err, &lapsed) {
		h.logger.Warn("Payment settled after reservations lapsed",
			zap.String("session_id", event.SessionID),
			zap.Int64("lapsed", lapsed.Lapsed))

		if h.publisher != nil {
			conflict := &models.ReservationConflictEvent{
				BaseEvent: models.BaseEvent{
					EventID:   uuid.New().String(),
					EventType: models.EventTypeReservationConflict,
					Timestamp: time.Now(),
				},
				SessionID: event.SessionID,
				Lapsed:    lapsed.Lapsed,
			}
			if perr := h.publisher.PublishReservationConflict(ctx, conflict); perr != nil {
				h.logger.Error("Failed to publish ReservationConflict event", zap.Error(perr))
				return perr
			}
		}
	} else if err != nil {
		return err
	}

	if h.publisher != nil && confirmed > 0 {
		confirmedEvent := &models.ReservationsConfirmedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeReservationsConfirmed,
				Timestamp: time.Now(),
			},
			SessionID: event.SessionID,
			Confirmed: confirmed,
		}
		if perr := h.publisher.PublishReservationsConfirmed(ctx, confirmedEvent); perr != nil {
			h.logger.Error("Failed to publish ReservationsConfirmed event", zap.Error(perr))
		}
	}
	return nil
}

// HandleSessionExpired releases the holds of a payment session that lapsed
// unpaid. Expiry would reclaim them anyway; this just frees the units early.
func (h *SettlementHandler) HandleSessionExpired(ctx context.Context, event *models.PaymentSessionExpiredEvent) error {
	ctx, span := util.StartSpan(ctx, "SettlementHandler.HandleSessionExpired")
	defer span.End()

	cancelled, err := h.reservations.Cancel(ctx, event.SessionID)
	if err != nil {
		return err
	}

	h.logger.Info("Payment session lapsed, holds released",
		zap.String("session_id", event.SessionID),
		zap.Int64("cancelled", cancelled))
	return nil
}
