package service

import (
	"errors"
	"fmt"
	"strings"
)

// Validation-class errors carry enough structure for the caller to render an
// actionable message: they always identify which items or sellers blocked
// the attempt. Infrastructure-class errors stay generic.

var (
	// ErrEmptyCart rejects a checkout request with no line items.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrPaymentProvider is returned when session creation fails. The
	// provider detail is logged, never returned to the caller.
	ErrPaymentProvider = errors.New("payment session could not be created")
)

// ProductNotFoundError reports cart lines that did not resolve to a product.
type ProductNotFoundError struct {
	ProductIDs []string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("products not found: %s", strings.Join(e.ProductIDs, ", "))
}

// CartInvalidError reports malformed cart lines (zero or negative quantity,
// negative price).
type CartInvalidError struct {
	Reason string
}

func (e *CartInvalidError) Error() string {
	return fmt.Sprintf("invalid cart: %s", e.Reason)
}

// InsufficientLine describes one cart line the stock ledger could not cover.
type InsufficientLine struct {
	ProductID string `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
	Title     string `json:"title"`
}

// InsufficientStockError aggregates every short line of a cart in one error,
// never just the first.
type InsufficientStockError struct {
	Lines []InsufficientLine
}

func (e *InsufficientStockError) Error() string {
	titles := make([]string, len(e.Lines))
	for i, l := range e.Lines {
		titles[i] = l.Title
	}
	return fmt.Sprintf("insufficient stock for: %s", strings.Join(titles, ", "))
}

// DeliveryModeError aggregates every product in the cart that does not
// support the requested delivery mode.
type DeliveryModeError struct {
	Mode   string
	Titles []string
}

func (e *DeliveryModeError) Error() string {
	return fmt.Sprintf("delivery mode %s not supported for: %s", e.Mode, strings.Join(e.Titles, ", "))
}

// BlockedSeller identifies a seller whose payout onboarding is incomplete.
type BlockedSeller struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// PayoutNotConfiguredError aggregates every seller in the cart that cannot
// receive a payout yet.
type PayoutNotConfiguredError struct {
	Sellers []BlockedSeller
}

func (e *PayoutNotConfiguredError) Error() string {
	names := make([]string, len(e.Sellers))
	for i, s := range e.Sellers {
		names[i] = s.Name
	}
	return fmt.Sprintf("sellers without payout setup: %s", strings.Join(names, ", "))
}

// ReservationLapsedError is returned by Confirm when payment settled after
// the session's holds had already expired. The order is paid with no held
// stock, a business conflict for the reconciliation process.
type ReservationLapsedError struct {
	SessionID string
	Lapsed    int64
}

func (e *ReservationLapsedError) Error() string {
	return fmt.Sprintf("payment settled for session %s but %d reservation(s) already lapsed", e.SessionID, e.Lapsed)
}
