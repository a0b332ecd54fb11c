package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"checkout-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing checkout domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishCheckoutReady publishes CheckoutReady event
func (ep *EventPublisher) PublishCheckoutReady(ctx context.Context, event *models.CheckoutReadyEvent) error {
	key := fmt.Sprintf("session-%s", event.SessionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishCheckoutRejected publishes CheckoutRejected event
func (ep *EventPublisher) PublishCheckoutRejected(ctx context.Context, event *models.CheckoutRejectedEvent) error {
	key := fmt.Sprintf("buyer-%s", event.BuyerID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReservationsCreated publishes ReservationsCreated event
func (ep *EventPublisher) PublishReservationsCreated(ctx context.Context, event *models.ReservationsCreatedEvent) error {
	key := fmt.Sprintf("session-%s", event.SessionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReservationsConfirmed publishes ReservationsConfirmed event
func (ep *EventPublisher) PublishReservationsConfirmed(ctx context.Context, event *models.ReservationsConfirmedEvent) error {
	key := fmt.Sprintf("session-%s", event.SessionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishReservationConflict publishes ReservationConflict event for the
// reconciliation feed
func (ep *EventPublisher) PublishReservationConflict(ctx context.Context, event *models.ReservationConflictEvent) error {
	key := fmt.Sprintf("session-%s", event.SessionID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler routes incoming payment events
type EventHandler struct {
	onPaymentSettled func(context.Context, *models.PaymentSettledEvent) error
	onSessionExpired func(context.Context, *models.PaymentSessionExpiredEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnPaymentSettled registers a handler for PaymentSettled events
func (eh *EventHandler) OnPaymentSettled(handler func(context.Context, *models.PaymentSettledEvent) error) {
	eh.onPaymentSettled = handler
}

// OnSessionExpired registers a handler for PaymentSessionExpired events
func (eh *EventHandler) OnSessionExpired(handler func(context.Context, *models.PaymentSessionExpiredEvent) error) {
	eh.onSessionExpired = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentSettled:
		if eh.onPaymentSettled != nil {
			var event models.PaymentSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentSettled event: %w", err)
			}
			return eh.onPaymentSettled(ctx, &event)
		}

	case models.EventTypePaymentSessionExpired, models.EventTypePaymentSessionAborted:
		if eh.onSessionExpired != nil {
			var event models.PaymentSessionExpiredEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal PaymentSessionExpired event: %w", err)
			}
			return eh.onSessionExpired(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
