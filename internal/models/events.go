package models

import "time"

// Event types
const (
	EventTypeCheckoutReady         = "CHECKOUT_READY"
	EventTypeCheckoutRejected      = "CHECKOUT_REJECTED"
	EventTypeReservationsCreated   = "RESERVATIONS_CREATED"
	EventTypeReservationsConfirmed = "RESERVATIONS_CONFIRMED"
	EventTypeReservationConflict   = "RESERVATION_CONFLICT"
	EventTypePaymentSettled        = "PAYMENT_SETTLED"
	EventTypePaymentSessionExpired = "PAYMENT_SESSION_EXPIRED"
	EventTypePaymentSessionAborted = "PAYMENT_SESSION_ABORTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// CheckoutReadyEvent published when a checkout attempt produced a payment session
type CheckoutReadyEvent struct {
	BaseEvent
	SessionID     string     `json:"session_id"`
	BuyerID       string     `json:"buyer_id"`
	SubtotalCents int64      `json:"subtotal_cents"`
	TotalCents    int64      `json:"total_cents"`
	Lines         []CartLine `json:"lines"`
}

// CheckoutRejectedEvent published when an attempt terminates in REJECTED
type CheckoutRejectedEvent struct {
	BaseEvent
	BuyerID string `json:"buyer_id"`
	Reason  string `json:"reason"`
}

// ReservationsCreatedEvent published after the best-effort stock hold succeeds
type ReservationsCreatedEvent struct {
	BaseEvent
	SessionID    string   `json:"session_id"`
	Reservations []string `json:"reservation_ids"`
}

// ReservationsConfirmedEvent published when settlement flips holds to CONFIRMED
type ReservationsConfirmedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Confirmed int64  `json:"confirmed"`
}

// ReservationConflictEvent published when payment settled but the holds had
// already lapsed. Feeds the external reconciliation process.
type ReservationConflictEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Lapsed    int64  `json:"lapsed"`
}

// PaymentSettledEvent is consumed from the payment provider's webhook bridge
type PaymentSettledEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	TxID      string `json:"tx_id"`
}

// PaymentSessionExpiredEvent is consumed when the provider session lapsed unpaid
type PaymentSessionExpiredEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}
