package worker

import (
	"context"
	"log"
	"time"

	"checkout-service/internal/broker"
	"checkout-service/internal/service"
)

// SettlementWorker consumes payment provider events and drives the
// reservation lifecycle: settled payments confirm holds, lapsed sessions
// release them.
type SettlementWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
}

// NewSettlementWorker creates a new settlement worker
func NewSettlementWorker(consumer *broker.Consumer, settlement *service.SettlementHandler) *SettlementWorker {
	eventHandler := broker.NewEventHandler()

	eventHandler.OnPaymentSettled(settlement.HandlePaymentSettled)
	eventHandler.OnSessionExpired(settlement.HandleSessionExpired)

	return &SettlementWorker{
		consumer:     consumer,
		eventHandler: eventHandler,
	}
}

// Start starts the worker
func (w *SettlementWorker) Start(ctx context.Context) error {
	log.Println("Starting settlement worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *SettlementWorker) Stop() error {
	log.Println("Stopping settlement worker...")
	return w.consumer.Close()
}

// ExpiryWorker periodically sweeps lapsed PENDING reservations. Availability
// reads already exclude lapsed rows, so the sweep only keeps the table tidy
// and the expiry metric honest; missing a tick is harmless.
type ExpiryWorker struct {
	reservations *service.ReservationManager
	interval     time.Duration
}

// NewExpiryWorker creates a new expiry sweeper
func NewExpiryWorker(reservations *service.ReservationManager, interval time.Duration) *ExpiryWorker {
	return &ExpiryWorker{
		reservations: reservations,
		interval:     interval,
	}
}

// Start runs the sweep loop until the context is cancelled
func (w *ExpiryWorker) Start(ctx context.Context) error {
	log.Printf("Starting expiry sweeper (interval %s)...", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Expiry sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.reservations.Expire(ctx, ""); err != nil {
				log.Printf("Expiry sweep failed: %v", err)
			}
		}
	}
}
